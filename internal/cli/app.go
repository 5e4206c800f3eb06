package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ppiankov/lexsearch/internal/cache"
	"github.com/ppiankov/lexsearch/internal/embedding"
	"github.com/ppiankov/lexsearch/internal/fetch"
	"github.com/ppiankov/lexsearch/internal/lawapi"
	"github.com/ppiankov/lexsearch/internal/logging"
	"github.com/ppiankov/lexsearch/internal/model"
	"github.com/ppiankov/lexsearch/internal/pipeline"
	"github.com/ppiankov/lexsearch/internal/render"
	"github.com/ppiankov/lexsearch/internal/retrieve"
	"github.com/ppiankov/lexsearch/internal/search"
	"github.com/ppiankov/lexsearch/internal/store"
	"github.com/ppiankov/lexsearch/internal/store/gormstore"
	"github.com/ppiankov/lexsearch/internal/store/sqlite"
	"github.com/ppiankov/lexsearch/internal/util"
	"github.com/ppiankov/lexsearch/internal/vectorindex"
	"github.com/ppiankov/lexsearch/internal/worker"
)

// app holds the components a command needs. Parts a command does not use
// stay nil.
type app struct {
	cfg *model.Config
	log *zap.SugaredLogger

	api       *lawapi.Client
	retriever retrieve.DocumentFetcher
	store     store.Store
	embedder  embedding.Provider
	indexes   *vectorindex.Manager
}

// newApp loads the configuration and builds the logger.
func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: log}, nil
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warnw("Closing store failed", "error", err)
		}
	}
	_ = a.log.Sync()
}

func lexsearchHome() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("error finding home directory: %w", err)
	}
	return filepath.Join(home, ".lexsearch"), nil
}

// withRetriever builds the API client and the tiered retriever. The HTTP
// detail pages go through robots.txt and the response cache; the API does
// not, so a transient not-found answer is never replayed.
func (a *app) withRetriever() error {
	cfg := a.cfg

	var responses cache.Cache
	if cfg.Cache.Enabled {
		dir := cfg.Cache.Dir
		if dir == "" {
			home, err := lexsearchHome()
			if err != nil {
				return err
			}
			dir = filepath.Join(home, "cache")
		}
		responses = cache.NewLayeredCache(cfg.Cache.MemoryTTL, dir, cfg.Cache.DiskTTL)
	}

	fetcher := fetch.New(fetch.Options{
		Timeout:   cfg.HTTP.Timeout,
		UserAgent: cfg.HTTP.UserAgent,
		MaxBytes:  cfg.HTTP.MaxBodyBytes,
		Proxy:     util.NewProxyFunc(cfg.HTTP.HTTPProxy, cfg.HTTP.HTTPSProxy, cfg.HTTP.NoProxy),
		Limiter:   worker.NewLimiter(cfg.HTTP.RequestsPerSecond, cfg.HTTP.Burst),
		CacheTTL:  cfg.Cache.DiskTTL,
		Logger:    a.log.Named("fetch"),
	})

	pages := fetcher
	if responses != nil {
		pages = pages.WithCache(responses)
	}
	if cfg.HTTP.RespectRobots {
		pages = pages.WithRobots(util.NewRobotsChecker(cfg.HTTP.UserAgent, fetcher.Client(), cfg.HTTP.Timeout))
	}

	a.api = lawapi.NewClient(cfg.Source.APIBaseURL, cfg.Source.APIKey, fetcher, a.log.Named("lawapi"))

	opts := retrieve.Options{
		PageBaseURL: cfg.Source.PageBaseURL,
		Logger:      a.log.Named("retrieve"),
	}
	if cfg.Render.Enabled && cfg.Render.Workers > 0 {
		opts.Renderer = render.NewChrome(render.Options{
			ChromePath:      cfg.Render.ChromePath,
			UserAgent:       cfg.HTTP.UserAgent,
			PageLoadTimeout: cfg.Render.PageLoadTimeout,
			SettleDelay:     cfg.Render.SettleDelay,
			ContentTimeout:  cfg.Render.ContentTimeout,
			Logger:          a.log.Named("render"),
		})
		opts.Gate = worker.NewGate(cfg.Render.Workers)
	}

	a.retriever = retrieve.NewRetrying(
		retrieve.New(a.api, pages, opts),
		cfg.Ingest.Attempts,
		cfg.Ingest.RetryBackoff,
		a.log.Named("retry"),
	)
	return nil
}

// withStore opens the configured document store.
func (a *app) withStore() error {
	switch a.cfg.Store.Driver {
	case "mysql":
		s, err := gormstore.Open(a.cfg.Store.DSN, a.log.Named("store"))
		if err != nil {
			return fmt.Errorf("open mysql store: %w", err)
		}
		a.store = s
	default:
		s, err := sqlite.NewStore(a.cfg.Store.Path)
		if err != nil {
			return fmt.Errorf("open sqlite store: %w", err)
		}
		a.log.Debugw("Opened document store", "driver", "sqlite", "path", s.Path())
		a.store = s
	}
	return nil
}

// withVectors builds the embedding provider and the index manager.
func (a *app) withVectors() error {
	provider, err := embedding.NewProvider(embedding.ConfigFromModel(a.cfg.Embedding, a.cfg.HTTP))
	if err != nil {
		return err
	}
	if provider == nil {
		return errors.New("no embedding provider configured (set embedding.provider)")
	}
	a.embedder = provider
	return a.withIndexes()
}

// checkEmbedder fails fast when the embedding service does not answer, so a
// long run does not store documents it can never vectorize.
func (a *app) checkEmbedder(ctx context.Context) error {
	if a.embedder == nil {
		return nil
	}
	if !a.embedder.IsAvailable(ctx) {
		return fmt.Errorf("embedding provider %s is not available", a.embedder.Name())
	}
	return nil
}

// withIndexes builds the index manager alone, for commands that never embed.
func (a *app) withIndexes() error {
	dir := a.cfg.Index.Dir
	if dir == "" {
		home, err := lexsearchHome()
		if err != nil {
			return err
		}
		dir = filepath.Join(home, "index")
	}

	indexes, err := vectorindex.NewManager(dir, a.cfg.Embedding.Dimension, vectorindex.Options{
		Type:   vectorindex.Type(a.cfg.Index.Type),
		NList:  a.cfg.Index.NList,
		NProbe: a.cfg.Index.NProbe,
		Logger: a.log.Named("index"),
	})
	if err != nil {
		return err
	}
	a.indexes = indexes
	return nil
}

// newPipeline assembles an ingestion pipeline from whatever was built.
func (a *app) newPipeline() *pipeline.Pipeline {
	opts := pipeline.Options{
		MaxInputRunes: a.cfg.Embedding.MaxInputRunes,
		Logger:        a.log.Named("pipeline"),
	}
	if a.embedder != nil {
		opts.Embedder = a.embedder
	}
	// A nil *Manager must not become a non-nil interface.
	if a.indexes != nil {
		opts.Indexes = a.indexes
	}
	return pipeline.New(a.retriever, a.store, opts)
}

// newSearcher assembles the similarity search service.
func (a *app) newSearcher() *search.Service {
	return search.NewService(a.embedder, a.indexes, a.store, search.Options{
		QueryCache:    cache.NewMemoryCache(a.cfg.Search.QueryCacheTTL, a.cfg.Search.QueryCacheTTL),
		QueryCacheTTL: a.cfg.Search.QueryCacheTTL,
		MaxInputRunes: a.cfg.Embedding.MaxInputRunes,
		Logger:        a.log.Named("search"),
	})
}

// kindsFor expands a --target value. "all" selects every kind.
func kindsFor(target string) ([]model.Kind, error) {
	if target == "all" {
		return model.Kinds(), nil
	}
	kind, err := model.ParseKind(target)
	if err != nil {
		return nil, err
	}
	return []model.Kind{kind}, nil
}
