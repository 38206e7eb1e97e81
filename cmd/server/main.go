package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"github.com/tejuiceB/FractionFi/internal/config"
	"github.com/tejuiceB/FractionFi/internal/engine"
	"github.com/tejuiceB/FractionFi/internal/ledger"
	"github.com/tejuiceB/FractionFi/internal/registry"
	"github.com/tejuiceB/FractionFi/internal/store"
	"github.com/tejuiceB/FractionFi/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to load config")
	}
	setupLogging(cfg.Logging)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	st, err := openStore(cfg.Store)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to open store")
	}

	hub := ws.NewHub()
	eng := engine.New(st, registry.New(st), ledger.New(), hub)
	if err := eng.Restore(ctx); err != nil {
		log.Fatal().Err(err).Msg("unable to rebuild books")
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", hub.Handler(cfg.Feed.SendTimeout))
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: mux,
	}

	t, ctx := tomb.WithContext(ctx)
	t.Go(func() error {
		return hub.Run(ctx)
	})
	t.Go(func() error {
		log.Info().Str("addr", cfg.Server.ListenAddr).Msg("server running")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	t.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := t.Wait(); err != nil {
		log.Error().Err(err).Msg("server exited with error")
		os.Exit(1)
	}
}

func openStore(cfg config.StoreConfig) (store.Store, error) {
	if cfg.PostgresDSN == "" {
		log.Warn().Msg("no postgres dsn configured, using in-memory store")
		return store.NewMemory(), nil
	}
	return store.OpenPostgres(cfg.PostgresDSN)
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
