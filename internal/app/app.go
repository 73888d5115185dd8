// Package app wires together configuration, the content sources, the
// analytics client and the local store into a single Deps struct that
// commands and the HTTP service receive at runtime.
package app

import (
	"fmt"
	"log/slog"

	"golang.org/x/text/language"

	"github.com/derickschaefer/opendosm/internal/analytics"
	"github.com/derickschaefer/opendosm/internal/config"
	"github.com/derickschaefer/opendosm/internal/content"
	"github.com/derickschaefer/opendosm/internal/loader"
	"github.com/derickschaefer/opendosm/internal/locale"
	"github.com/derickschaefer/opendosm/internal/store"
)

// Deps holds all runtime dependencies injected into command Run functions.
// Store is nil until RequireStore or UseCache succeeds.
type Deps struct {
	Config    *config.Config
	Logger    *slog.Logger
	Lang      language.Tag
	Content   *content.Client
	Analytics *analytics.Client
	Store     *store.Store
	Loader    *loader.Loader
}

// New builds a Deps from resolved config. The store is not opened.
func New(cfg *config.Config, log *slog.Logger) (*Deps, error) {
	if log == nil {
		log = slog.Default()
	}
	api := content.NewHTTPSource(content.HTTPOptions{
		BaseURL: cfg.APIURL,
		Timeout: cfg.Timeout,
		Rate:    cfg.Rate,
	})
	docs, err := docsSource(cfg)
	if err != nil {
		return nil, err
	}
	d := &Deps{
		Config:    cfg,
		Logger:    log,
		Lang:      locale.Resolve(cfg.Language),
		Content:   content.NewClient(api, docs),
		Analytics: analytics.New(cfg.AnalyticsURL, cfg.AnalyticsToken, cfg.Timeout),
	}
	d.Loader = d.newLoader()
	log.Debug("deps ready",
		"api", cfg.APIURL,
		"bucket", cfg.S3Bucket,
		"analytics", d.Analytics.Enabled(),
		"token", cfg.RedactedToken(),
		"lang", d.Lang.String())
	return d, nil
}

// docsSource picks the bucket when one is configured, else the CDN.
func docsSource(cfg *config.Config) (content.Source, error) {
	if cfg.S3Bucket != "" {
		src, err := content.NewS3Source(content.S3Options{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
		})
		if err != nil {
			return nil, fmt.Errorf("configuring bucket: %w", err)
		}
		return src, nil
	}
	return content.NewHTTPSource(content.HTTPOptions{
		BaseURL: cfg.CDNURL,
		Timeout: cfg.Timeout,
		Rate:    cfg.Rate,
	}), nil
}

func (d *Deps) newLoader() *loader.Loader {
	opts := loader.Options{NoCache: d.Config.NoCache, Refresh: d.Config.Refresh}
	if d.Store == nil {
		return loader.New(d.Content, nil, d.Analytics, opts, d.Logger)
	}
	return loader.New(d.Content, d.Store, d.Analytics, opts, d.Logger)
}

// RequireStore opens the local store and routes document loads through it.
func (d *Deps) RequireStore() error {
	if d.Store != nil {
		return nil
	}
	s, err := store.Open(d.Config.DBPath)
	if err != nil {
		return fmt.Errorf("opening local store: %w", err)
	}
	d.Store = s
	d.Loader = d.newLoader()
	return nil
}

// UseCache opens the store when it can. A store that cannot be opened, for
// example because another process holds the lock, only costs the cache.
func (d *Deps) UseCache() {
	if err := d.RequireStore(); err != nil {
		d.Logger.Warn("continuing without local cache", "err", err)
	}
}

// Close releases the store if it was opened.
func (d *Deps) Close() error {
	if d.Store == nil {
		return nil
	}
	err := d.Store.Close()
	d.Store = nil
	return err
}
