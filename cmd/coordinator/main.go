package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/RamXX/tminus/internal/app"
	"github.com/RamXX/tminus/internal/config"
	"github.com/RamXX/tminus/internal/httpapi"
	"github.com/RamXX/tminus/internal/logger"
	"github.com/RamXX/tminus/internal/provideradapter"
	"github.com/RamXX/tminus/internal/queue"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg)

	log.Info().Str("env", cfg.Env).Msg("tminus coordinator starting")

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("data_dir", cfg.DataDir).Msg("create data dir")
	}

	q, err := queue.New(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("construct queue client")
	}
	defer q.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := q.Ping(pingCtx); err != nil {
		log.Warn().Err(err).Msg("redis ping failed — continuing, pipelines will retry")
	} else {
		log.Info().Msg("redis connected")
	}
	cancel()

	masterKey := os.Getenv("TMINUS_MASTER_KEY")
	if masterKey == "" {
		log.Fatal().Msg("TMINUS_MASTER_KEY is required (base64 AES-256 key for account token envelope encryption)")
	}

	deps := app.Deps{
		Queue:             q,
		Provider:          provideradapter.Unconfigured{},
		MasterKeyB64:      masterKey,
		RatePerSecond:     10,
		RateBurst:         20,
		QueueWorkers:      cfg.QueueWorkers,
		ReconcileSchedule: cfg.ReconcileSchedule,
		ReconcileEnabled:  cfg.ReconcileEnabled,
		Logger:            log,
	}

	registry := app.NewRegistry(cfg.DataDir, deps, log)

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := registry.StartKnownUsers(startCtx); err != nil {
		startCancel()
		log.Fatal().Err(err).Msg("resume known users")
	}
	startCancel()
	log.Info().Int("resumed_users", len(registry.Users())).Msg("known users resumed")

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      newTopRouter(registry, cfg, log),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("tminus coordinator listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-done
	log.Info().Msg("shutdown signal received")

	ctx, shutdownCancel := context.WithTimeout(context.Background(), cfg.GracefulTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful http shutdown failed")
	}

	registry.Close()
	log.Info().Msg("tminus coordinator stopped")
}

// userRouters lazily compiles and caches one internal/httpapi router
// per user, so the chi + middleware chain is built once per user
// rather than once per request.
type userRouters struct {
	mu       sync.Mutex
	handlers map[string]http.Handler
	registry *app.Registry
	httpCfg  httpapi.Config
	logger   zerolog.Logger
}

func (u *userRouters) forUser(ctx context.Context, userID string) (http.Handler, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if h, ok := u.handlers[userID]; ok {
		return h, nil
	}
	a, err := u.registry.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	h := httpapi.NewRouter(u.httpCfg, u.logger.With().Str("user_id", userID).Logger(), a.Coordinator())
	u.handlers[userID] = h
	return h, nil
}

// newTopRouter mounts one per-user internal/httpapi router under
// /users/{userID}/*, lazily opening that user's App (store + actors +
// pipelines) on first request — the multi-tenant directory §6.4
// describes sitting in front of the single-user RPC surface §6.3
// specifies. Account linking/onboarding (which userIDs exist at all)
// is an external collaborator's concern per spec.md §1; this process
// only needs to resolve an already-known userID to its running App.
func newTopRouter(registry *app.Registry, cfg *config.Config, log zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	routers := &userRouters{
		handlers: map[string]http.Handler{},
		registry: registry,
		httpCfg: httpapi.Config{
			AllowedOrigins: cfg.AllowedOrigins,
			MaxBodyBytes:   cfg.MaxBodyBytes,
		},
		logger: log,
	}

	r.Route("/users/{userID}", func(r chi.Router) {
		r.Handle("/*", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			userID := chi.URLParam(req, "userID")
			h, err := routers.forUser(req.Context(), userID)
			if err != nil {
				log.Error().Err(err).Str("user_id", userID).Msg("resolve user router")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":{"status":500,"message":"user unavailable"}}`))
				return
			}
			// Strip the /users/{userID} prefix the same way chi.Mount
			// does internally for a plain http.Handler: rewrite the
			// shared RouteContext's RoutePath to the wildcard
			// remainder before handing off to the per-user router.
			rctx := chi.RouteContext(req.Context())
			rctx.RoutePath = "/" + chi.URLParam(req, "*")
			h.ServeHTTP(w, req)
		}))
	})

	return r
}
