package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/text/language"

	"github.com/derickschaefer/opendosm/internal/locale"
	"github.com/derickschaefer/opendosm/internal/metrics"
	"github.com/derickschaefer/opendosm/internal/model"
)

// Document names a kind of upstream document.
type Document string

const (
	DocCatalogue      Document = "catalogue"
	DocPublications   Document = "publications"
	DocPublication    Document = "publication"
	DocTechnicalNotes Document = "technical-notes"
	DocUpcoming       Document = "upcoming"
	DocNSDP           Document = "nsdp"
)

// Documents lists every document kind.
var Documents = []Document{DocCatalogue, DocPublications, DocPublication, DocTechnicalNotes, DocUpcoming, DocNSDP}

// Ref addresses one document instance.
type Ref struct {
	Doc  Document
	Lang language.Tag
	ID   string // publication id, DocPublication only
}

// Path is the key passed to the Source.
func (r Ref) Path() string {
	q := url.Values{"language": {r.Lang.String()}}.Encode()
	switch r.Doc {
	case DocCatalogue:
		return "catalogue/index_" + locale.Short(r.Lang) + ".json"
	case DocUpcoming:
		return "pub/upcoming_" + locale.Short(r.Lang) + ".json"
	case DocNSDP:
		return "sdmx/download_" + locale.Alt(r.Lang) + ".json"
	case DocPublications:
		return "publication/?" + q
	case DocTechnicalNotes:
		return "publication/technical-notes/?" + q
	case DocPublication:
		return "publication-resource/" + url.PathEscape(r.ID) + "?" + q
	}
	return ""
}

// CacheKey identifies the document in the local store.
func (r Ref) CacheKey() string {
	k := string(r.Doc) + "|" + r.Lang.String()
	if r.ID != "" {
		k += "|" + r.ID
	}
	return k
}

// Client reads and decodes portal documents. Publication listings and
// resources come from the API; the catalogue, release calendar and SDMX
// downloads are static documents on the CDN or bucket.
type Client struct {
	api  Source
	docs Source
}

// NewClient creates a Client. docs may be nil, in which case api serves
// every document.
func NewClient(api, docs Source) *Client {
	if docs == nil {
		docs = api
	}
	return &Client{api: api, docs: docs}
}

func (c *Client) source(d Document) Source {
	switch d {
	case DocCatalogue, DocUpcoming, DocNSDP:
		return c.docs
	}
	return c.api
}

// Fetch returns the raw bytes of ref.
func (c *Client) Fetch(ctx context.Context, ref Ref) ([]byte, error) {
	if ref.Doc == DocPublication && strings.TrimSpace(ref.ID) == "" {
		return nil, fmt.Errorf("publication: empty id: %w", ErrNotFound)
	}
	b, err := c.source(ref.Doc).Get(ctx, ref.Path())
	switch {
	case err == nil:
		metrics.ContentFetches.WithLabelValues(string(ref.Doc), "ok").Inc()
		return b, nil
	case errors.Is(err, ErrNotFound):
		metrics.ContentFetches.WithLabelValues(string(ref.Doc), "not_found").Inc()
	default:
		metrics.ContentFetches.WithLabelValues(string(ref.Doc), "error").Inc()
	}
	return nil, fmt.Errorf("%s: %w", ref.Doc, err)
}

// ─── Decoders ─────────────────────────────────────────────────────────────────

// DecodeCatalogue decodes the catalogue index. Source filters are sorted.
func DecodeCatalogue(b []byte) (*model.CatalogueIndex, error) {
	var idx model.CatalogueIndex
	if err := json.Unmarshal(b, &idx); err != nil {
		return nil, fmt.Errorf("decoding catalogue: %w", err)
	}
	sort.Strings(idx.SourceFilters)
	return &idx, nil
}

// rawPublication accepts both "description" and the technical notes' "desc".
type rawPublication struct {
	model.Publication
	Desc string `json:"desc"`
}

// DecodePublications decodes a {"results": [...]} publication listing.
func DecodePublications(b []byte) ([]model.Publication, error) {
	var raw struct {
		Results []rawPublication `json:"results"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("decoding publications: %w", err)
	}
	pubs := make([]model.Publication, len(raw.Results))
	for i, r := range raw.Results {
		p := r.Publication
		if p.Description == "" {
			p.Description = r.Desc
		}
		pubs[i] = p
	}
	return pubs, nil
}

func DecodePublication(b []byte) (*model.PublicationDetail, error) {
	var d model.PublicationDetail
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("decoding publication: %w", err)
	}
	if d.Resources == nil {
		d.Resources = []model.Resource{}
	}
	return &d, nil
}

func DecodeUpcoming(b []byte) ([]model.UpcomingPublication, error) {
	var raw struct {
		Results []model.UpcomingPublication `json:"results"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("decoding upcoming: %w", err)
	}
	return raw.Results, nil
}

func DecodeNSDP(b []byte) ([]model.NSDPItem, error) {
	var items []model.NSDPItem
	if err := json.Unmarshal(b, &items); err != nil {
		return nil, fmt.Errorf("decoding nsdp: %w", err)
	}
	return items, nil
}

// Decode dispatches on doc and returns the decoded value.
func Decode(doc Document, b []byte) (interface{}, error) {
	switch doc {
	case DocCatalogue:
		return DecodeCatalogue(b)
	case DocPublications, DocTechnicalNotes:
		return DecodePublications(b)
	case DocPublication:
		return DecodePublication(b)
	case DocUpcoming:
		return DecodeUpcoming(b)
	case DocNSDP:
		return DecodeNSDP(b)
	}
	return nil, fmt.Errorf("unknown document %q", doc)
}
