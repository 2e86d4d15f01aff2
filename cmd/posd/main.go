package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/xelth-com/eckpos/internal/backend"
	"github.com/xelth-com/eckpos/internal/config"
	"github.com/xelth-com/eckpos/internal/connectivity"
	"github.com/xelth-com/eckpos/internal/database"
	"github.com/xelth-com/eckpos/internal/handlers"
	"github.com/xelth-com/eckpos/internal/interceptor"
	"github.com/xelth-com/eckpos/internal/pos"
	"github.com/xelth-com/eckpos/internal/session"
	"github.com/xelth-com/eckpos/internal/store"
	"github.com/xelth-com/eckpos/internal/sync"
	"github.com/xelth-com/eckpos/internal/websocket"
	"golang.org/x/sync/errgroup"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogging(cfg)

	syncCfg, err := config.LoadSyncConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load sync configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Local store. Without it the till still sells, online only.
	st := openStore(ctx, cfg.Database)
	defer func() {
		if err := st.Close(); err != nil {
			log.Warn().Err(err).Msg("⚠️ Error closing local store")
		}
	}()

	// 3. Backend access
	sessions := session.NewHolder(session.FromToken(cfg.Backend.Token))
	client := backend.New(cfg.Backend.BaseURL, cfg.Backend.RequestTimeout, sessions)

	monitor := connectivity.NewMonitor(
		connectivity.NewHTTPProber(cfg.Backend.BaseURL, cfg.Backend.RequestTimeout),
		syncCfg.HealthCheckEvery(),
	)
	requests := interceptor.New(client, st, monitor)

	// 4. Sync manager and status fan-out
	hub := websocket.NewHub()
	manager := sync.NewManager(st, client, syncCfg, sync.WithMonitor(monitor))
	manager.OnEvent(func(ev sync.Event) {
		hub.Broadcast("sync_event", ev)
	})

	checkout := pos.NewCheckout(requests, cfg.POS.TaxRate, cfg.POS.Currency)
	lookup := pos.NewLookup(requests)

	router := handlers.NewRouter(
		cfg.TerminalID,
		monitor,
		sessions,
		hub,
		handlers.NewSyncHandler(manager),
		handlers.NewPosHandler(checkout, lookup),
	)
	server := &http.Server{
		Addr:              ":" + cfg.Server.StatusPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 5. Run everything until a signal arrives
	monitor.Start(ctx)
	defer monitor.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		if err := manager.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		manager.Stop()
		return nil
	})
	g.Go(func() error {
		log.Info().
			Str("port", cfg.Server.StatusPort).
			Str("terminal", cfg.TerminalID).
			Str("backend", client.BaseURL()).
			Bool("online", monitor.IsOnline()).
			Msg("🚀 POS terminal ready")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("🛑 Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("❌ Terminal stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("✅ Terminal stopped")
}

func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.NodeEnv != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

// openStore falls back to an unavailable store so sales keep working online.
func openStore(ctx context.Context, cfg config.DatabaseConfig) store.Store {
	db, err := database.Connect(cfg)
	if err != nil {
		log.Error().Err(err).Msg("❌ Local database unavailable, offline mode disabled")
		return store.NewUnavailable(err)
	}

	st := store.NewGormStore(db)
	if err := st.Init(ctx); err != nil {
		log.Error().Err(err).Msg("❌ Local store init failed, offline mode disabled")
		_ = st.Close()
		return store.NewUnavailable(err)
	}
	log.Info().Str("driver", cfg.Driver).Msg("✅ Local store ready")
	return st
}
