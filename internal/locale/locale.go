// Package locale resolves the portal's two display languages and the
// localized labels of facet codes. Labels are resolved at render time and
// never persisted; stored state only ever holds codes.
package locale

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	English = language.BritishEnglish
	Malay   = language.MustParse("ms-MY")

	// Supported lists the display languages, default first.
	Supported = []language.Tag{English, Malay}

	matcher = language.NewMatcher(Supported)
)

// Resolve maps user input to a supported language. It accepts the portal's
// short codes ("en", "bm"), BCP 47 tags and Accept-Language header values.
// Anything unrecognised resolves to English.
func Resolve(s string) language.Tag {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "en":
		return English
	case "bm", "ms":
		return Malay
	}
	tags, _, err := language.ParseAcceptLanguage(s)
	if err != nil || len(tags) == 0 {
		return English
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return English
	}
	return Supported[idx]
}

// Short is the portal's document suffix: "en" or "bm".
func Short(t language.Tag) string {
	if isMalay(t) {
		return "bm"
	}
	return "en"
}

// Alt is the ISO 639-1 suffix used by the SDMX download documents.
func Alt(t language.Tag) string {
	if isMalay(t) {
		return "ms"
	}
	return "en"
}

func isMalay(t language.Tag) bool {
	base, _ := t.Base()
	mb, _ := Malay.Base()
	return base == mb
}

// ─── Labels ───────────────────────────────────────────────────────────────────

var labels = map[string][2]string{
	// frequency
	"DAILY":       {"Daily", "Harian"},
	"WEEKLY":      {"Weekly", "Mingguan"},
	"MONTHLY":     {"Monthly", "Bulanan"},
	"QUARTERLY":   {"Quarterly", "Suku Tahunan"},
	"YEARLY":      {"Yearly", "Tahunan"},
	"INTRADAY":    {"Intraday", "Intrahari"},
	"INFREQUENT":  {"Infrequent", "Tidak Tetap"},
	"AS_REQUIRED": {"As Required", "Mengikut Keperluan"},
	"ONE_OFF":     {"One-off", "Sekali Sahaja"},
	// geography
	"NATIONAL": {"National", "Nasional"},
	"STATE":    {"State", "Negeri"},
	"DISTRICT": {"District", "Daerah"},
	"PARLIMEN": {"Parliamentary Constituency", "Parlimen"},
	"DUN":      {"State Constituency", "DUN"},
	// demography
	"SEX":         {"Sex", "Jantina"},
	"ETHNICITY":   {"Ethnicity", "Etnik"},
	"AGE":         {"Age", "Umur"},
	"RELIGION":    {"Religion", "Agama"},
	"NATIONALITY": {"Nationality", "Kewarganegaraan"},
	"DISABILITY":  {"Disability", "Kecacatan"},
	"MARITAL":     {"Marital Status", "Status Perkahwinan"},
}

// Label returns the display text for code in t. Unknown codes are
// title-cased ("AS_NEEDED" → "As Needed").
func Label(t language.Tag, code string) string {
	if l, ok := labels[strings.ToUpper(code)]; ok {
		if isMalay(t) {
			return l[1]
		}
		return l[0]
	}
	words := strings.ReplaceAll(strings.ToLower(code), "_", " ")
	return cases.Title(t).String(words)
}

// Labels maps Label over codes.
func Labels(t language.Tag, codes []string) []string {
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = Label(t, c)
	}
	return out
}
