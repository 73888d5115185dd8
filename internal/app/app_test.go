package app

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/derickschaefer/opendosm/internal/config"
	"github.com/derickschaefer/opendosm/internal/content"
	"github.com/derickschaefer/opendosm/internal/locale"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		APIURL:   config.DefaultAPIURL,
		CDNURL:   config.DefaultCDNURL,
		Language: "bm",
		Timeout:  config.DefaultTimeout,
		Rate:     config.DefaultRate,
		DBPath:   filepath.Join(t.TempDir(), "nested", "opendosm.db"),
	}
}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestNewResolvesLanguage(t *testing.T) {
	d, err := New(testConfig(t), quiet)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if d.Lang != locale.Malay {
		t.Errorf("Lang: expected %v, got %v", locale.Malay, d.Lang)
	}
	if d.Store != nil {
		t.Error("store should not be opened by New")
	}
	if d.Analytics.Enabled() {
		t.Error("analytics should be disabled without a URL")
	}
}

func TestDocsSourcePrefersBucket(t *testing.T) {
	cfg := testConfig(t)
	src, err := docsSource(cfg)
	if err != nil {
		t.Fatalf("docsSource: %v", err)
	}
	if _, ok := src.(*content.HTTPSource); !ok {
		t.Errorf("expected CDN source, got %T", src)
	}
	cfg.S3Bucket = "dosm-public"
	src, err = docsSource(cfg)
	if err != nil {
		t.Fatalf("docsSource bucket: %v", err)
	}
	if _, ok := src.(*content.S3Source); !ok {
		t.Errorf("expected bucket source, got %T", src)
	}
}

func TestRequireStoreAndClose(t *testing.T) {
	d, err := New(testConfig(t), quiet)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	before := d.Loader
	if err := d.RequireStore(); err != nil {
		t.Fatalf("RequireStore: %v", err)
	}
	if d.Store == nil || d.Loader == before {
		t.Error("RequireStore should open the store and rebuild the loader")
	}
	if err := d.RequireStore(); err != nil {
		t.Errorf("second RequireStore should be a no-op: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close should be a no-op: %v", err)
	}
}
