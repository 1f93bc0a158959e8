// Package app assembles a pipeline and its providers from a Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/FranksOps/prospector/internal/authority"
	"github.com/FranksOps/prospector/internal/cache"
	"github.com/FranksOps/prospector/internal/config"
	"github.com/FranksOps/prospector/internal/contact"
	"github.com/FranksOps/prospector/internal/fingerprint"
	"github.com/FranksOps/prospector/internal/pipeline"
	"github.com/FranksOps/prospector/internal/scraper"
	"github.com/FranksOps/prospector/internal/serp"
	"github.com/FranksOps/prospector/internal/storage"
	"github.com/FranksOps/prospector/internal/storage/csvbackend"
	"github.com/FranksOps/prospector/internal/storage/jsonbackend"
	"github.com/FranksOps/prospector/internal/storage/postgres"
	"github.com/FranksOps/prospector/internal/storage/sqlite"
	"github.com/FranksOps/prospector/internal/storage/xlsx"
	"github.com/FranksOps/prospector/pkg/proxy"
	"github.com/FranksOps/prospector/pkg/useragent"
	"github.com/spf13/afero"
)

// App is a ready-to-run pipeline plus everything that must be released
// after it.
type App struct {
	Pipeline *pipeline.Pipeline

	closers []func() error
}

// Close releases providers and backends in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Options tweak construction; the zero value is production.
type Options struct {
	// InsecureSkipVerify disables certificate checks in the contact crawler.
	InsecureSkipVerify bool
}

// New builds the pipeline described by cfg. cfg must already be validated.
// On error everything opened so far is closed.
func New(ctx context.Context, fsys afero.Fs, cfg *config.Config, opts Options, logger *slog.Logger) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	pcfg, err := cfg.Pipeline()
	if err != nil {
		return nil, err
	}

	var store cache.Store = cache.Disabled{}
	if cfg.Cache.Enabled {
		store = cache.NewFileStore(fsys, cfg.Cache.Dir, logger)
	}

	serper, err := serp.NewSerper(serp.SerperConfig{
		APIKey:            cfg.Search.APIKey,
		Endpoint:          cfg.Search.Endpoint,
		Country:           cfg.Search.Country,
		Timeout:           cfg.Search.Timeout,
		RequestsPerSecond: cfg.Search.RequestsPerSecond,
	})
	if err != nil {
		return nil, err
	}
	a.onClose(func() error { serper.Close(); return nil })

	ahrefs, err := authority.NewAhrefs(authority.AhrefsConfig{
		APIKey:            cfg.Authority.APIKey,
		Endpoint:          cfg.Authority.Endpoint,
		Timeout:           cfg.Authority.Timeout,
		RequestsPerSecond: cfg.Authority.RequestsPerSecond,
	})
	if err != nil {
		return nil, err
	}
	a.onClose(func() error { ahrefs.Close(); return nil })

	resolver, err := newContactResolver(fsys, cfg.Contacts, opts, logger)
	if err != nil {
		return nil, err
	}

	results, err := OpenBackend(ctx, fsys, cfg.Sheets.Backend, cfg.Sheets.Results)
	if err != nil {
		return nil, fmt.Errorf("app: results workbook: %w", err)
	}
	a.onClose(results.Close)

	var partners storage.Backend
	if cfg.Sheets.Partners != "" {
		if partners, err = OpenBackend(ctx, fsys, cfg.Sheets.Backend, cfg.Sheets.Partners); err != nil {
			return nil, fmt.Errorf("app: partner workbook: %w", err)
		}
		a.onClose(partners.Close)
	}

	a.Pipeline, err = pipeline.New(pcfg, pipeline.Deps{
		Search: serp.NewSearcher(serper, store, logger),
		Authority: authority.NewExplorer(ahrefs, store, authority.ExplorerConfig{
			BacklinkThreshold: cfg.Authority.BacklinkThreshold,
		}, logger),
		Contacts: contact.NewCached(resolver, store, logger),
		Results:  results,
		Partners: partners,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func newContactResolver(fsys afero.Fs, cfg config.ContactConfig, opts Options, logger *slog.Logger) (*contact.CrawlResolver, error) {
	profile, err := fingerprint.ParseProfile(cfg.Fingerprint)
	if err != nil {
		return nil, err
	}
	mode, err := useragent.ParseMode(cfg.UserAgentMode)
	if err != nil {
		return nil, err
	}

	var proxies *proxy.Pool
	if cfg.ProxiesFile != "" {
		proxies = proxy.New(proxy.Config{})
		if err := proxies.LoadFile(fsys, cfg.ProxiesFile); err != nil {
			return nil, err
		}
		logger.Info("proxies loaded", "count", proxies.Len())
	}

	fetcher, err := scraper.NewFetcher(scraper.FetchConfig{
		Timeout:            cfg.Timeout,
		UseCookieJar:       true,
		Proxies:            proxies,
		UserAgents:         useragent.NewRotator(mode, nil),
		Fingerprint:        profile,
		InsecureSkipVerify: opts.InsecureSkipVerify,
	})
	if err != nil {
		return nil, err
	}

	return contact.NewCrawlResolver(fetcher, contact.CrawlConfig{
		MaxDepth:          cfg.MaxDepth,
		MaxPages:          cfg.MaxPages,
		Concurrency:       cfg.Concurrency,
		RespectRobots:     cfg.RespectRobots,
		UserAgent:         cfg.UserAgent,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Jitter:            cfg.Jitter,
		UseSitemap:        cfg.UseSitemap,
	}, logger), nil
}

// OpenBackend opens a workbook of the given kind. location is a file path
// (xlsx, json, sqlite), a directory (csv) or a DSN (postgres).
func OpenBackend(ctx context.Context, fsys afero.Fs, kind, location string) (storage.Backend, error) {
	switch kind {
	case config.BackendXLSX:
		return xlsx.New(location)
	case config.BackendCSV:
		return csvbackend.New(fsys, location)
	case config.BackendJSON:
		return jsonbackend.New(fsys, location)
	case config.BackendSQLite:
		return sqlite.New(location)
	case config.BackendPostgres:
		return postgres.New(ctx, location)
	}
	return nil, fmt.Errorf("%w: %q", config.ErrUnknownBackend, kind)
}
