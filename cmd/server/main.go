// main is the entry point for the IZZA Catering API server.
//
// It reads configuration from the environment (and .env), opens the
// SQLite database, wires the auth backend, store, session registry and
// notification hub together, registers every screen route, and serves
// until SIGINT or SIGTERM.
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE — how this file fits into the project
// ────────────────────────────────────────────────────────────────────
// This file is the "composition root" — the single place where all the
// independent packages (db, auth, store, session, notify, handlers) are
// wired together. Keeping this wiring in main.go means every other
// package stays easy to test in isolation (they never import each other
// in a circle).
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/izzacatering/backend/internal/auth"
	"github.com/izzacatering/backend/internal/config"
	"github.com/izzacatering/backend/internal/db"
	"github.com/izzacatering/backend/internal/handlers"
	"github.com/izzacatering/backend/internal/logging"
	"github.com/izzacatering/backend/internal/metrics"
	"github.com/izzacatering/backend/internal/middleware"
	"github.com/izzacatering/backend/internal/notify"
	"github.com/izzacatering/backend/internal/seed"
	"github.com/izzacatering/backend/internal/session"
	"github.com/izzacatering/backend/internal/store"
)

func main() {
	// ── Configuration ────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	log := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)
	if cfg.InsecureSecret() {
		log.Warn("JWT_SECRET is the development default; set a real secret before deploying")
	}

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── Database ─────────────────────────────────────────────────────
	// db.Open creates the file if it doesn't exist and runs all CREATE
	// TABLE IF NOT EXISTS migrations automatically.
	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	provider := auth.NewProvider(database, cfg.JWT.Secret, cfg.JWT.TTL, log)

	// ── Notifications ────────────────────────────────────────────────
	// Without Redis every notification goes straight into the local hub.
	// With Redis the relay publishes to the channel and feeds the hub
	// from it, so every instance's streams see every notification.
	hub := notify.NewHub(notify.DefaultBuffer)
	var pub store.Publisher = hub
	if cfg.Redis.URL != "" {
		relay, err := notify.NewRedisRelay(ctx, cfg.Redis.URL, cfg.Redis.Channel, hub, log)
		if err != nil {
			return err
		}
		defer relay.Close()
		go func() {
			if err := relay.Run(ctx); err != nil {
				log.Error("notification relay stopped", "err", err)
			}
		}()
		pub = relay
	}

	st := store.New(database, log, metrics.CountPublishes(pub))
	sessions := session.NewRegistry(provider, st.Users, log)
	defer sessions.Close()
	sessions.StartCleanup(ctx, time.Minute)
	seeder := seed.New(provider, st, cfg.ShiftEarnings, log)

	// ── Start-up data ────────────────────────────────────────────────
	if cfg.Admin.Email != "" {
		admin, err := seeder.Bootstrap(ctx, seed.Admin{
			Email: cfg.Admin.Email, Password: cfg.Admin.Password, Name: cfg.Admin.Name,
		})
		if err != nil {
			return err
		}
		log.Info("admin account ready", "email", admin.Email)
	}
	if cfg.SeedDemo {
		fixture, err := seed.Demo()
		if err != nil {
			return err
		}
		res, err := seeder.Apply(ctx, fixture)
		if err != nil {
			return err
		}
		log.Info("demo data seeded", "users", res.Users, "events", res.Events,
			"attendance", res.Attendance, "payments", res.Payments, "broadcasts", res.Broadcasts)
	}

	// ── Middleware & metrics ─────────────────────────────────────────
	limiter := middleware.NewRateLimiter(cfg.AuthRateLimit, cfg.AuthRateBurst, log)
	limiter.StartCleanup(ctx, 10*time.Minute)

	gauges := []struct {
		subsystem, name, help string
		fn                    func() float64
	}{
		{"sessions", "active", "Signed-in sessions held in memory.", func() float64 { return float64(sessions.Len()) }},
		{"notifications", "subscribers", "Open notification streams.", func() float64 { return float64(hub.Subscribers()) }},
		{"notifications", "dropped", "Notifications dropped for slow streams since start-up.", func() float64 { return float64(hub.Dropped()) }},
	}
	for _, g := range gauges {
		if err := metrics.RegisterGauge(g.subsystem, g.name, g.help, g.fn); err != nil {
			return err
		}
	}

	// ── Handlers ─────────────────────────────────────────────────────
	closing := make(chan struct{})
	srv := &handlers.Server{
		Store:         st,
		Sessions:      sessions,
		Hub:           hub,
		Seeder:        seeder,
		Limiter:       limiter,
		Log:           log,
		ShiftEarnings: cfg.ShiftEarnings,
		CORSOrigin:    cfg.CORSOrigin,
		Closing:       closing,
	}

	httpSrv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      srv.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	// Hijacked WebSocket connections are invisible to Shutdown; closing
	// this channel tells each stream handler to say goodbye.
	httpSrv.RegisterOnShutdown(func() { close(closing) })

	errCh := make(chan error, 1)
	go func() {
		log.Info("IZZA Catering API listening", "addr", cfg.Addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}
