package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xenking/lotto-share/internal/backend"
	"github.com/xenking/lotto-share/internal/domain/checkout"
	"github.com/xenking/lotto-share/internal/domain/purchase"
	"github.com/xenking/lotto-share/internal/domain/session"
	"github.com/xenking/lotto-share/internal/handler"
	"github.com/xenking/lotto-share/internal/storage/memory"
	"github.com/xenking/lotto-share/internal/storage/postgres"
	"github.com/xenking/lotto-share/internal/storage/redis"
	"github.com/xenking/lotto-share/pkg/health"
	"github.com/xenking/lotto-share/pkg/httpmiddleware"
)

// stores are the persistence dependencies selected by configuration.
type stores struct {
	sessions  session.Store
	checkouts checkout.Repository
	ready     map[string]health.Pinger
	closers   []func()
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStores connects the configured session store. Checkout records go to
// PostgreSQL whenever a database is configured and stay in memory otherwise.
func openStores(ctx context.Context, lg *zap.Logger, cfg *Config, clock clockwork.Clock) (_ *stores, rerr error) {
	s := &stores{ready: make(map[string]health.Pinger)}
	defer func() {
		if rerr != nil {
			s.Close()
		}
	}()

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		p, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		s.closers = append(s.closers, p.Close)
		if err := postgres.RunMigrations(ctx, p); err != nil {
			return nil, errors.Wrap(err, "run migrations")
		}
		pool = p
		s.ready["postgres"] = p
		s.checkouts = postgres.NewCheckoutRepository(p)
	} else {
		s.checkouts = memory.NewCheckoutRepository()
	}

	switch cfg.Session.Store {
	case SessionPostgres:
		store := postgres.NewSessionStore(pool, cfg.Session.TTL)
		go sweepSessions(ctx, lg, store, cfg.Session.SweepInterval, clock)
		s.sessions = store
	case SessionRedis:
		client, err := redis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, errors.Wrap(err, "create redis client")
		}
		s.closers = append(s.closers, func() { _ = client.Close() })
		store := redis.NewSessionStore(client, cfg.Session.TTL)
		s.ready["redis"] = store
		s.sessions = store
	default:
		store := memory.NewSessionStore(cfg.Session.TTL, clock)
		go store.RunSweeper(ctx, cfg.Session.SweepInterval)
		s.sessions = store
	}

	lg.Info("Stores ready",
		zap.String("sessions", cfg.Session.Store),
		zap.Bool("persistent_checkouts", pool != nil),
	)
	return s, nil
}

// sweepSessions deletes expired PostgreSQL sessions until ctx is done.
func sweepSessions(ctx context.Context, lg *zap.Logger, store *postgres.SessionStore, interval time.Duration, clock clockwork.Clock) {
	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			n, err := store.Sweep(ctx)
			if err != nil {
				lg.Warn("Sweep sessions", zap.Error(err))
				continue
			}
			if n > 0 {
				lg.Debug("Swept expired sessions", zap.Int64("count", n))
			}
		}
	}
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the web server. m is usually
// the *app.Telemetry of go-faster/sdk.
func Run(ctx context.Context, lg *zap.Logger, m httpmiddleware.TelemetryProvider, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("backend", cfg.Backend.URL),
	)
	clock := clockwork.NewRealClock()

	schedule, err := cfg.Draw.Schedule()
	if err != nil {
		return errors.Wrap(err, "draw schedule")
	}

	st, err := openStores(ctx, lg, cfg, clock)
	if err != nil {
		return err
	}
	defer st.Close()

	var limiter *rate.Limiter
	if cfg.Backend.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Backend.RateLimit), cfg.Backend.Burst)
	}
	client, err := backend.New(cfg.Backend.URL, backend.Options{
		Timeout:        cfg.Backend.Timeout,
		Limiter:        limiter,
		OnUnauthorized: handler.ClearOnUnauthorized,
		MeterProvider:  m.MeterProvider(),
		TracerProvider: m.TracerProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create backend client")
	}

	metrics, err := purchase.NewMetrics(m.MeterProvider(), m.TracerProvider())
	if err != nil {
		return errors.Wrap(err, "create purchase metrics")
	}
	tracker := purchase.NewTracker(ctx, purchase.TrackerConfig{
		Poller: purchase.PollerConfig{
			Interval:         cfg.Purchase.Interval,
			Grace:            cfg.Purchase.Grace,
			ReconcileOnEntry: cfg.Purchase.ReconcileOnEntry,
		},
		MaxLifetime: cfg.Purchase.MaxLifetime,
		Retention:   cfg.Purchase.Retention,
	}, clock, metrics)
	defer tracker.Close()

	// Health check service.
	healthSvc := health.New(health.Options{Clock: clock})
	healthSvc.AddReadinessCheck("backend", 5*time.Second, health.PingCheck(client))
	for name, p := range st.ready {
		healthSvc.AddReadinessCheck(name, 5*time.Second, health.PingCheck(p))
	}
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc", time.Second, health.GCMaxPauseCheck(time.Second))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	h := handler.New(
		handler.Config{
			CookieSecure: cfg.Session.CookieSecure,
			CookieMaxAge: cfg.Session.TTL,
		},
		handler.Deps{
			Backend:   client,
			Sessions:  st.sessions,
			Checkouts: st.checkouts,
			Tracker:   tracker,
			Schedule:  schedule,
			Clock:     clock,
		},
	)

	// Mux: health endpoints + the /web API on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	mux.Handle("/web/", h.Routes())
	route := httpmiddleware.MuxRoutes(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// Checkout and my-tickets wait on the backend for up to its timeout.
		WriteTimeout:   cfg.Backend.Timeout + 5*time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", httpmiddleware.RequestIDHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:     cfg.RateLimit.Max,
				Window:  cfg.RateLimit.Window,
				KeyFunc: httpmiddleware.CookieOrIP(session.CookieName),
			}),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.RequestID(),
			httpmiddleware.Instrument("lotto-web", route, m),
			httpmiddleware.LogRequests(route),
			httpmiddleware.Labeler(route),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
