package query

import (
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"
)

// now is swapped in tests to pin the year bounds.
var now = time.Now

// State is the typed view of a page's query. The zero value of each field
// means "unset" and imposes no constraint. Page is 1-based.
type State struct {
	Search     string   `json:"search,omitempty"`
	Frequency  string   `json:"frequency,omitempty"`
	Geography  []string `json:"geography,omitempty"`
	Demography []string `json:"demography,omitempty"`
	Source     string   `json:"source,omitempty"`
	Begin      int      `json:"begin,omitempty"`
	End        int      `json:"end,omitempty"`
	Page       int      `json:"page"`
}

// Updates maps keys to their next raw value. An empty string removes the key.
type Updates map[Key]string

// Join encodes a multi-select selection.
func Join(codes []string) string {
	return strings.Join(codes, ",")
}

// ─── Decode ───────────────────────────────────────────────────────────────────

// Decode reads recognised keys from v into a State. It never fails:
// anything unparseable falls back to the facet default.
func Decode(cfg PageConfig, v url.Values) State {
	st := State{Page: 1}
	for _, f := range cfg.Facets {
		raw := strings.TrimSpace(v.Get(string(f.Key)))
		if raw == "" {
			continue
		}
		switch f.Kind {
		case KindText:
			if f.Key == KeySearch {
				st.Search = raw
			}
		case KindSingle:
			code, ok := f.match(raw)
			if !ok {
				continue
			}
			switch f.Key {
			case KeyFrequency:
				st.Frequency = code
			case KeySource:
				st.Source = code
			}
		case KindMulti:
			codes := decodeMulti(f, raw)
			switch f.Key {
			case KeyGeography:
				st.Geography = codes
			case KeyDemography:
				st.Demography = codes
			}
		case KindYear:
			year, ok := parseYear(raw)
			if !ok {
				continue
			}
			switch f.Key {
			case KeyBegin:
				st.Begin = year
			case KeyEnd:
				st.End = year
			}
		case KindPage:
			if n, err := strconv.Atoi(raw); err == nil && n >= 1 {
				st.Page = n
			}
		}
	}
	if st.Begin != 0 && st.End != 0 && st.Begin > st.End {
		st.Begin, st.End = st.End, st.Begin
	}
	return st
}

// decodeMulti keeps known codes in option order, dropping duplicates.
func decodeMulti(f Facet, raw string) []string {
	parts := strings.Split(raw, ",")
	if f.Options == nil {
		var out []string
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" && !slices.Contains(out, p) {
				out = append(out, p)
			}
		}
		return out
	}
	var out []string
	for _, opt := range f.Options {
		for _, p := range parts {
			if strings.EqualFold(strings.TrimSpace(p), opt) {
				out = append(out, opt)
				break
			}
		}
	}
	return out
}

func parseYear(raw string) (int, bool) {
	y, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	if y < MinYear || y > now().Year() {
		return 0, false
	}
	return y, true
}

// ─── Encode ───────────────────────────────────────────────────────────────────

// Encode merges updates over a copy of current and strips every key whose
// resulting value is empty. It does not touch current.
func Encode(updates Updates, current url.Values) url.Values {
	next := url.Values{}
	for k, vs := range current {
		if len(vs) > 0 {
			next.Set(k, vs[0])
		}
	}
	for k, v := range updates {
		next.Set(string(k), v)
	}
	for k := range next {
		if strings.TrimSpace(next.Get(k)) == "" {
			next.Del(k)
		}
	}
	return next
}

// Apply is the single write path for filter changes on a page. Besides
// Encode it drops page when any other key changes value, and never emits
// the default page.
func Apply(cfg PageConfig, current url.Values, updates Updates) url.Values {
	next := Encode(updates, current)
	if !cfg.Paginated() {
		return next
	}
	if !sameFilters(Decode(cfg, current), Decode(cfg, next)) {
		next.Del(string(KeyPage))
	}
	if next.Get(string(KeyPage)) == "1" {
		next.Del(string(KeyPage))
	}
	return next
}

// sameFilters compares every field but Page.
func sameFilters(a, b State) bool {
	return a.Search == b.Search &&
		a.Frequency == b.Frequency &&
		a.Source == b.Source &&
		a.Begin == b.Begin &&
		a.End == b.End &&
		slices.Equal(a.Geography, b.Geography) &&
		slices.Equal(a.Demography, b.Demography)
}

// Reset clears every filter on the page.
func Reset(PageConfig) url.Values {
	return url.Values{}
}

// Values encodes a whole state canonically: only keys the page recognises,
// only non-default values, multi-select codes in option order.
func Values(cfg PageConfig, st State) url.Values {
	upd := Updates{}
	for _, f := range cfg.Facets {
		switch f.Key {
		case KeySearch:
			upd[f.Key] = st.Search
		case KeyFrequency:
			upd[f.Key] = st.Frequency
		case KeySource:
			upd[f.Key] = st.Source
		case KeyGeography:
			upd[f.Key] = Join(decodeMulti(f, Join(st.Geography)))
		case KeyDemography:
			upd[f.Key] = Join(decodeMulti(f, Join(st.Demography)))
		case KeyBegin:
			upd[f.Key] = yearString(st.Begin)
		case KeyEnd:
			upd[f.Key] = yearString(st.End)
		case KeyPage:
			if st.Page > 1 {
				upd[f.Key] = strconv.Itoa(st.Page)
			}
		}
	}
	return Encode(upd, url.Values{})
}

func yearString(y int) string {
	if y == 0 {
		return ""
	}
	return strconv.Itoa(y)
}

// Parse decodes a raw "a=b&c=d" string, tolerating a leading "?" and
// malformed pairs.
func Parse(cfg PageConfig, raw string) (State, url.Values) {
	v, _ := url.ParseQuery(strings.TrimPrefix(strings.TrimSpace(raw), "?"))
	if v == nil {
		v = url.Values{}
	}
	return Decode(cfg, v), v
}

// Canonical re-encodes v through Decode. The bool is true when v was
// already canonical.
func Canonical(cfg PageConfig, v url.Values) (url.Values, bool) {
	c := Values(cfg, Decode(cfg, v))
	return c, c.Encode() == v.Encode()
}

// ─── State helpers ────────────────────────────────────────────────────────────

// Active returns the keys that currently constrain results, in facet order.
// Page is never counted.
func (s State) Active(cfg PageConfig) []Key {
	var keys []Key
	for _, f := range cfg.Facets {
		if s.isSet(f.Key) {
			keys = append(keys, f.Key)
		}
	}
	return keys
}

// Unconstrained reports whether no filter other than page is set.
func (s State) Unconstrained() bool {
	return s.Search == "" && s.Frequency == "" && s.Source == "" &&
		len(s.Geography) == 0 && len(s.Demography) == 0 && s.Begin == 0 && s.End == 0
}

func (s State) isSet(k Key) bool {
	switch k {
	case KeySearch:
		return s.Search != ""
	case KeyFrequency:
		return s.Frequency != ""
	case KeySource:
		return s.Source != ""
	case KeyGeography:
		return len(s.Geography) > 0
	case KeyDemography:
		return len(s.Demography) > 0
	case KeyBegin:
		return s.Begin != 0
	case KeyEnd:
		return s.End != 0
	}
	return false
}

// String returns the canonical query string for s on cfg.
func (s State) String(cfg PageConfig) string {
	return Values(cfg, s).Encode()
}
