package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/vyrodovalexey/avauthz/internal/api"
	"github.com/vyrodovalexey/avauthz/internal/audit"
	"github.com/vyrodovalexey/avauthz/internal/auth/keys"
	"github.com/vyrodovalexey/avauthz/internal/auth/token"
	"github.com/vyrodovalexey/avauthz/internal/authz/rbac"
	"github.com/vyrodovalexey/avauthz/internal/authz/store"
	"github.com/vyrodovalexey/avauthz/internal/cache"
	"github.com/vyrodovalexey/avauthz/internal/config"
	"github.com/vyrodovalexey/avauthz/internal/database"
	"github.com/vyrodovalexey/avauthz/internal/health"
	"github.com/vyrodovalexey/avauthz/internal/middleware"
	"github.com/vyrodovalexey/avauthz/internal/observability"
	"github.com/vyrodovalexey/avauthz/internal/secrets"
)

const metricsNamespace = "avauthz"

// seedActor is recorded as the author of rules seeded from configuration.
const seedActor = "config-seed"

// application holds all application components.
type application struct {
	cfg      *config.Config
	server   *api.Server
	health   *health.Handler
	pipeline *audit.Pipeline
	sink     audit.Sink
	cache    cache.Cache
	db       *sql.DB
	secrets  secrets.Provider
	tracer   *observability.Tracer
	watcher  *config.Watcher
	limiter  *middleware.RateLimiter
}

// appMetrics groups the per-package metrics registered on one registry.
type appMetrics struct {
	registry   *prometheus.Registry
	tokens     *token.Metrics
	policy     *rbac.Metrics
	store      *store.Metrics
	cache      *cache.Metrics
	audit      *audit.Metrics
	middleware *middleware.Metrics
	health     *health.Metrics
}

func newAppMetrics(logger observability.Logger) *appMetrics {
	m := &appMetrics{
		registry:   prometheus.NewRegistry(),
		tokens:     token.NewMetrics(metricsNamespace),
		policy:     rbac.NewMetrics(metricsNamespace),
		store:      store.NewMetrics(metricsNamespace),
		cache:      cache.NewMetrics(metricsNamespace),
		audit:      audit.NewMetrics(metricsNamespace),
		middleware: middleware.NewMetrics(metricsNamespace),
		health:     health.NewMetrics(metricsNamespace),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m.tokens.MustRegister(m.registry)
	m.policy.MustRegister(m.registry)
	m.store.MustRegister(m.registry)
	m.cache.MustRegister(m.registry)
	m.audit.MustRegister(m.registry)
	m.middleware.MustRegister(m.registry)
	m.health.MustRegister(m.registry)

	if err := secrets.RegisterMetrics(m.registry); err != nil {
		logger.Warn("failed to register secrets metrics", observability.Error(err))
	}
	return m
}

// initApplication wires every component. Configuration and key errors are
// fatal.
func initApplication(cfg *config.Config, configPath string, logger observability.Logger) *application {
	ctx := context.Background()
	app := &application{cfg: cfg}
	metrics := newAppMetrics(logger)

	tracer, err := observability.NewTracer(ctx, cfg.Tracing)
	if err != nil {
		logger.Fatal("failed to initialize tracer", observability.Error(err))
	}
	app.tracer = tracer

	sp, err := secrets.NewProvider(ctx, &cfg.Secrets, observability.Zap(logger))
	if err != nil {
		logger.Fatal("failed to create secrets provider", observability.Error(err))
	}
	app.secrets = sp

	if cfg.Database.Enabled() {
		app.db = initDatabase(ctx, cfg.Database, logger)
	}

	sink, err := openAuditSink(cfg.Audit.Sink, app.db)
	if err != nil {
		logger.Fatal("failed to open audit sink", observability.Error(err))
	}
	app.sink = sink

	pipeline, err := audit.NewPipeline(sink, cfg.Audit,
		audit.WithLogger(logger),
		audit.WithMetrics(metrics.audit),
	)
	if err != nil {
		logger.Fatal("failed to create audit pipeline", observability.Error(err))
	}
	app.pipeline = pipeline

	keyProvider, jwksEnvs := initKeys(ctx, cfg.Keys, sp, pipeline, logger)

	tokens, err := token.NewService(cfg.Token, keyProvider,
		token.WithLogger(logger),
		token.WithMetrics(metrics.tokens),
	)
	if err != nil {
		logger.Fatal("failed to create token service", observability.Error(err))
	}

	app.cache, err = cache.New(ctx, cfg.Cache, logger, cache.WithSecrets(sp), cache.WithMetrics(metrics.cache))
	if err != nil {
		logger.Fatal("failed to create cache", observability.Error(err))
	}

	backing, breaker := buildStore(cfg.Store, app.db, app.cache, metrics.store, logger)
	admin := store.NewAdmin(backing, pipeline, logger)
	seedRules(ctx, admin, cfg, logger)
	resolver := store.NewResolver(backing,
		store.WithResolverLogger(logger),
		store.WithResolverMetrics(metrics.store),
	)

	engine, err := rbac.NewEngine(cfg.Policy,
		rbac.WithEngineLogger(logger),
		rbac.WithEngineMetrics(metrics.policy),
	)
	if err != nil {
		logger.Fatal("failed to create policy engine", observability.Error(err))
	}

	if configPath != "" {
		app.watcher = startConfigWatcher(configPath, engine, pipeline, logger)
	}

	extractor := middleware.NewClientIPExtractor(cfg.Server.TrustedProxies)
	middleware.SetGlobalIPExtractor(extractor)

	guard := middleware.NewGuard(tokens, engine,
		middleware.WithResolver(resolver),
		middleware.WithAuditor(pipeline),
		middleware.WithGuardLogger(logger),
		middleware.WithGuardMetrics(metrics.middleware),
		middleware.WithTokenCookie(cfg.Server.TokenCookie),
		middleware.WithSkipPaths(cfg.Server.SkipPaths...),
		middleware.WithGuardClientIPExtractor(extractor),
	)

	_, app.limiter = middleware.RateLimitFromConfig(cfg.Server.RateLimit, logger,
		middleware.WithRateLimiterMetrics(metrics.middleware),
		middleware.WithRateLimiterExtractor(extractor),
	)

	app.health = health.NewHandler(version, logger, health.WithMetrics(metrics.health))
	registerChecks(app, keyProvider, breaker, cfg.Audit)

	router := api.NewRouter(api.Services{
		Tokens:           tokens,
		Engine:           engine,
		Guard:            guard,
		Keys:             keyProvider,
		Admin:            admin,
		Resolver:         resolver,
		Audit:            pipeline,
		Health:           app.health,
		RefreshLimiter:   app.limiter,
		JWKSEnvironments: jwksEnvs,
		Gatherer:         metrics.registry,
		Logger:           logger,
	})

	handler := buildMiddlewareChain(router, tracer, metrics.middleware, extractor, logger)
	app.server = api.NewServer(cfg.Server, handler, logger)

	logger.Info("application initialized",
		observability.String("store", cfg.Store.Type),
		observability.String("cache", cfg.Cache.Type),
		observability.String("audit_sink", cfg.Audit.Sink.Type),
		observability.Bool("database", app.db != nil),
		observability.Int("seed_rules", len(cfg.Store.Seed)),
	)
	return app
}

func initDatabase(ctx context.Context, cfg database.Config, logger observability.Logger) *sql.DB {
	db, err := database.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", observability.Error(err))
	}
	if cfg.Migrate {
		applied, err := database.Migrate(ctx, db, logger)
		if err != nil {
			logger.Fatal("failed to apply migrations", observability.Error(err))
		}
		logger.Info("database ready", observability.Strings("migrations_applied", applied))
	}
	return db
}

// openAuditSink creates the durable sink selected by cfg.
func openAuditSink(cfg audit.SinkConfig, db *sql.DB) (audit.Sink, error) {
	switch cfg.Type {
	case "", audit.SinkMemory:
		return audit.NewMemorySink(), nil
	case audit.SinkSQL:
		if db == nil {
			return nil, fmt.Errorf("audit sink %q requires a database", cfg.Type)
		}
		return audit.NewSQLSink(db), nil
	case audit.SinkWriter:
		return audit.OpenWriterSink(cfg.Output, cfg.Format)
	default:
		return nil, fmt.Errorf("unknown audit sink %q", cfg.Type)
	}
}

// initKeys loads the active key and the preloaded environments. It returns
// the environments published in the key set.
func initKeys(
	ctx context.Context,
	cfg config.KeysConfig,
	sp secrets.Provider,
	auditor *audit.Pipeline,
	logger observability.Logger,
) (keys.Provider, []keys.Environment) {
	provider := keys.NewProvider(sp,
		keys.WithLogger(logger),
		keys.WithSecretPrefix(cfg.SecretPrefix),
		keys.WithLoadHook(func(ctx context.Context, pair *keys.KeyPair) {
			auditor.Log(ctx, audit.NewEvent(audit.EventKeyLoaded, audit.SeverityLow, "signing key loaded").
				With("environment", pair.Environment.String()).
				With("kid", pair.KeyID).
				With("algorithm", pair.Algorithm).
				WithTags("keys"))
		}),
	)

	active, err := provider.Active(ctx)
	if err != nil {
		logger.Fatal("failed to load active signing key", observability.Error(err))
	}
	envs := []keys.Environment{active.Environment}

	for _, name := range cfg.Preload {
		env, err := keys.ParseEnvironment(name)
		if err != nil {
			logger.Fatal("invalid preload environment", observability.Error(err))
		}
		if slices.Contains(envs, env) {
			continue
		}
		if _, err := provider.KeyFor(ctx, env); err != nil {
			logger.Fatal("failed to preload signing key",
				observability.String("environment", env.String()),
				observability.Error(err),
			)
		}
		envs = append(envs, env)
	}

	logger.Info("signing keys loaded",
		observability.String("active", active.Environment.String()),
		observability.String("kid", active.KeyID),
		observability.String("algorithm", active.Algorithm),
		observability.Int("published", len(envs)),
	)
	return provider, envs
}

// buildStore layers the permission store: backing store, circuit breaker,
// then the read-through cache.
func buildStore(
	cfg config.StoreConfig,
	db *sql.DB,
	c cache.Cache,
	metrics *store.Metrics,
	logger observability.Logger,
) (store.Store, *store.BreakerStore) {
	var base store.Store
	switch cfg.Type {
	case config.StoreSQL:
		base = store.NewSQLStore(db)
	default:
		base = store.NewMemoryStore()
	}

	breaker := store.NewBreakerStore(base, "permissions", cfg.Breaker,
		store.WithBreakerLogger(logger),
		store.WithBreakerMetrics(metrics),
	)

	cacheOpts := []store.CachedOption{
		store.WithCacheLogger(logger),
		store.WithCacheMetrics(metrics),
	}
	if ttl := cfg.CacheTTL.Duration(); ttl > 0 {
		cacheOpts = append(cacheOpts, store.WithCacheTTL(ttl))
	}
	return store.NewCachedStore(breaker, c, cacheOpts...), breaker
}

// seedRules upserts the configured rules. Failures are logged and skipped.
func seedRules(ctx context.Context, admin *store.Admin, cfg *config.Config, logger observability.Logger) {
	actor := store.Actor{SubjectID: seedActor, Role: cfg.Policy.AdminRole}
	for _, rule := range cfg.Store.Seed {
		if _, _, err := admin.Upsert(ctx, actor, rule); err != nil {
			logger.Warn("failed to seed permission rule",
				observability.String("role", rule.Role),
				observability.String("descriptor", rule.Descriptor()),
				observability.Error(err),
			)
		}
	}
}

// startConfigWatcher reloads the policy section when the file changes.
func startConfigWatcher(
	configPath string,
	engine rbac.Engine,
	auditor config.Auditor,
	logger observability.Logger,
) *config.Watcher {
	watcher, err := config.NewWatcher(configPath,
		config.PolicyReloader(engine, auditor, logger),
		config.WithLogger(logger),
	)
	if err != nil {
		logger.Warn("failed to create config watcher", observability.Error(err))
		return nil
	}

	if err := watcher.Start(context.Background()); err != nil {
		logger.Warn("failed to start config watcher", observability.Error(err))
		return nil
	}
	return watcher
}

// registerChecks adds the readiness checks. Keys and database are critical;
// cache, breaker and audit backlog only degrade readiness.
func registerChecks(app *application, kp keys.Provider, breaker *store.BreakerStore, auditCfg audit.Config) {
	app.health.AddCheck(health.KeyCheck("signing_keys", kp))
	if app.db != nil {
		app.health.AddCheck(health.SQLCheck("database", app.db))
	}
	app.health.AddCheck(health.CacheCheck("cache", app.cache, health.WithCritical(false)))
	app.health.AddCheck(health.BreakerCheck("permission_store", breaker.State, health.WithCritical(false)))

	limit := auditCfg.MaxBufferSize
	if limit == 0 {
		limit = 10 * auditCfg.BatchSize
	}
	app.health.AddCheck(health.BacklogCheck("audit_backlog", app.pipeline.Len, limit, health.WithCritical(false)))
}

// buildMiddlewareChain wraps the router; the outermost handler runs first.
func buildMiddlewareChain(
	handler http.Handler,
	tracer *observability.Tracer,
	metrics *middleware.Metrics,
	extractor *middleware.ClientIPExtractor,
	logger observability.Logger,
) http.Handler {
	opts := []middleware.Option{
		middleware.WithMetrics(metrics),
		middleware.WithClientIPExtractor(extractor),
	}

	h := tracer.HTTPMiddleware(handler)
	h = middleware.Logging(logger, opts...)(h)
	h = middleware.RequestID()(h)
	h = middleware.Recovery(logger, opts...)(h)
	return h
}

// closeSink releases sinks that hold a file.
func closeSink(s audit.Sink) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
