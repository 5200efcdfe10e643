package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/chatforge/nlukit/internal/config"
	"github.com/chatforge/nlukit/internal/events"
	"github.com/chatforge/nlukit/internal/importer"
	"github.com/chatforge/nlukit/internal/nlu"
	"github.com/chatforge/nlukit/internal/provider"
	"github.com/chatforge/nlukit/internal/storage"
	"github.com/chatforge/nlukit/internal/storage/postgres"
	"github.com/chatforge/nlukit/internal/storage/sqlite"
	"github.com/chatforge/nlukit/pkg/types"
)

// app wires the full service graph: storage, event bus, knowledge map,
// services, provider sync and supporting tooling.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	store    storage.Store
	bus      *events.Bus
	cache    *nlu.KnowledgeMap
	values   *nlu.ValueService
	entities *nlu.EntityService
	linker   *nlu.Linker
	scorer   *nlu.Scorer
	dataset  *nlu.DatasetBuilder
	importer *importer.Importer
	registry *provider.Registry
}

// newApp loads the configuration and builds the service graph. The returned
// app owns the store handle; call close when done.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.Logging)

	store, err := openStore(cfg.Storage)
	if err != nil {
		return nil, err
	}

	bus := events.NewBus(logger)
	cache := nlu.NewKnowledgeMap(store.Entities(), logger)
	cache.Subscribe(bus)

	values := nlu.NewValueService(store.Values(), bus, logger)
	entities := nlu.NewEntityService(store.Entities(), values, cache, bus, logger)
	annotator := nlu.NewKeywordAnnotator(logger)
	linker := nlu.NewLinker(entities, values, store.Samples(), store.SampleEntities(), annotator, logger)

	a := &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		bus:      bus,
		cache:    cache,
		values:   values,
		entities: entities,
		linker:   linker,
		scorer:   nlu.NewScorer(cache),
		dataset:  nlu.NewDatasetBuilder(store, logger),
		importer: importer.New(store, linker, logger),
		registry: provider.NewRegistry(),
	}

	if cfg.Provider.BaseURL != "" {
		p := provider.NewHTTPProvider(provider.HTTPConfig{
			Name:              cfg.Provider.Name,
			BaseURL:           cfg.Provider.BaseURL,
			Token:             cfg.Provider.Token,
			Timeout:           cfg.Provider.Timeout,
			MaxFailures:       uint32(cfg.Provider.MaxFailures),
			OpenTimeout:       cfg.Provider.OpenTimeout,
			RequestsPerSecond: cfg.Provider.RequestsPerSecond,
		}, logger)
		a.registry.Register(p)
		provider.NewSync(p, store.Entities(), store.Values(), logger).Subscribe(bus)
	}

	if err := a.bootstrap(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("failed to close store")
	}
}

// provider returns the configured provider, failing when none is set up.
func (a *app) provider() (provider.Provider, error) {
	p, err := a.registry.Get(a.cfg.Provider.Name)
	if err != nil {
		return nil, fmt.Errorf("no NLU provider configured, set NLUKIT_PROVIDER_URL: %w", err)
	}
	return p, nil
}

// bootstrap seeds the builtin intent entity and the default language on
// first run. Both operations are idempotent.
func (a *app) bootstrap(ctx context.Context) error {
	// Intent classifies the whole utterance, so it is a trait entity.
	defaults := &types.Entity{Builtin: true, Lookups: []types.Lookup{types.LookupTrait}}
	if _, err := a.store.Entities().FindOneOrCreate(ctx, "intent", defaults); err != nil {
		return fmt.Errorf("failed to seed the intent entity: %w", err)
	}

	code := a.cfg.NLU.DefaultLanguage
	if _, err := a.store.Languages().GetByCode(ctx, code); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		lang := &types.Language{Title: code, Code: code, IsDefault: true}
		if err := a.store.Languages().Create(ctx, lang); err != nil && !errors.Is(err, storage.ErrConflict) {
			return fmt.Errorf("failed to seed the default language: %w", err)
		}
	}
	return nil
}

func openStore(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Engine {
	case "sqlite":
		return sqlite.Open(cfg.SQLitePath)
	case "postgres":
		return postgres.Open(cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage engine %q", cfg.Engine)
	}
}
