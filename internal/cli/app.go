package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/soyeahso/maestro/internal/classify"
	"github.com/soyeahso/maestro/internal/config"
	"github.com/soyeahso/maestro/internal/coordinator"
	"github.com/soyeahso/maestro/internal/hooks"
	"github.com/soyeahso/maestro/internal/llm"
	"github.com/soyeahso/maestro/internal/logging"
	"github.com/soyeahso/maestro/internal/query"
	"github.com/soyeahso/maestro/internal/responder"
	"github.com/soyeahso/maestro/internal/routing"
	"github.com/soyeahso/maestro/internal/session"
	"github.com/soyeahso/maestro/internal/store"
	"github.com/soyeahso/maestro/internal/version"
)

// app is the assembled request stack shared by serve, ask, query and mcp.
type app struct {
	cfg       config.Config
	db        *store.DB
	hooks     *hooks.Manager
	llm       *llm.Registry
	schema    query.Schema
	pipeline  *query.Pipeline
	sqlExpert *responder.SQLExpert
	registry  *responder.Registry
	locker    *session.Locker
	router    *routing.Router
	startedAt time.Time
}

func buildApp(ctx context.Context, cfg config.Config, p config.Paths, log *logging.Logger) (*app, error) {
	a := &app{cfg: cfg, startedAt: time.Now()}

	if err := p.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("create data dirs: %w", err)
	}
	db, err := store.Open(p.DatabasePath(cfg.Database), log)
	if err != nil {
		return nil, err
	}
	a.db = db
	if cfg.Database.Seed {
		if err := seedIfEmpty(ctx, db, log); err != nil {
			db.Close()
			return nil, err
		}
	}

	a.hooks = hooks.NewManager(log)
	if n := a.hooks.RegisterConfig(cfg.Hooks); n > 0 {
		log.Info().Int("hooks", n).Msg("shell hooks registered")
	}

	a.llm = llm.NewRegistryFromConfig(cfg.LLM, log)
	gen := llm.NewGenerator(a.llm, llm.GeneratorConfig{
		Primary:   cfg.LLM.Model,
		Fallbacks: cfg.LLM.Fallbacks,
		MaxTokens: cfg.LLM.MaxTokens,
	}, log)

	a.schema, err = db.Describe(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("describe knowledge schema: %w", err)
	}
	a.pipeline = query.NewPipeline(gen, store.NewKnowledgeExecutor(db), query.LimitsFromConfig(cfg.Query), log)
	a.pipeline.OnReject(func(re *query.RejectError) {
		a.hooks.EmitAsync(ctx, hooks.EventQueryRejected, map[string]any{"stage": re.Stage})
	})

	a.sqlExpert = responder.NewSQLExpert(a.pipeline, a.schema, log)
	a.registry, err = responder.NewRegistry(
		responder.NewLuthier(db, gen, log),
		responder.NewJazzTeacher(db, gen, log),
		a.sqlExpert,
		responder.NewDevPM(store.NewBenchmarkStore(db), a.status, gen, log),
	)
	if err != nil {
		db.Close()
		return nil, err
	}

	var fallback classify.SemanticClassifier
	if !cfg.Routing.DisableFallback && len(a.llm.List()) > 0 {
		fallback = classify.NewLLMCategorizer(gen)
	}

	var sessions session.Store = session.NewMemoryStore()
	if cfg.Session.Store == "sqlite" {
		sessions = store.NewSQLiteSessionStore(db)
	}
	a.locker = session.NewLocker(cfg.Session.Conflict, cfg.Session.RetryAfter.Std())

	a.router = routing.NewRouter(routing.Deps{
		Classifier: classify.New(classify.ConfigFromRouting(cfg.Routing), fallback, log),
		Dispatcher: coordinator.New(a.registry, coordinator.ConfigFrom(cfg.Coordinator), a.hooks, log),
		Directory:  a.registry,
		Store:      sessions,
		Locker:     a.locker,
		Hooks:      a.hooks,
	}, log)

	log.Debug().
		Strs("responders", a.registry.IDs()).
		Strs("providers", a.llm.List()).
		Str("sessionStore", cfg.Session.Store).
		Str("conflict", a.locker.Mode()).
		Msg("app assembled")
	return a, nil
}

// Close waits for async hooks, then closes the database.
func (a *app) Close() error {
	a.hooks.Wait()
	return a.db.Close()
}

// status backs the dev_pm system_status tool.
func (a *app) status(ctx context.Context) (map[string]any, error) {
	counts, err := a.db.Counts(ctx)
	if err != nil {
		return nil, err
	}
	schema, err := a.db.SchemaVersion(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"schemaVersion":  schema,
		"version":        version.Version,
		"uptimeSeconds":  int64(time.Since(a.startedAt).Seconds()),
		"providers":      a.llm.List(),
		"responders":     a.registry.IDs(),
		"knowledge":      counts,
		"sessionStore":   a.cfg.Session.Store,
		"conflictMode":   a.locker.Mode(),
		"activeSessions": a.locker.Active(),
	}, nil
}

func seedIfEmpty(ctx context.Context, db *store.DB, log *logging.Logger) error {
	counts, err := db.Counts(ctx)
	if err != nil {
		return err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	if total > 0 {
		return nil
	}
	seeded, err := db.Seed(ctx)
	if err != nil {
		return fmt.Errorf("seed knowledge: %w", err)
	}
	log.Info().Interface("rows", seeded).Msg("knowledge fixtures seeded")
	return nil
}
