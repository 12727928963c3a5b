package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/telhawk-systems/abusehawk/internal/config"
	"github.com/telhawk-systems/abusehawk/internal/event"
	"github.com/telhawk-systems/abusehawk/internal/logging"
	"github.com/telhawk-systems/abusehawk/internal/pipeline"
	"github.com/telhawk-systems/abusehawk/internal/state"
	"github.com/telhawk-systems/abusehawk/internal/transport"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Stream events from NATS and publish alerts",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runStream(); err != nil {
			fatal(err)
		}
	},
}

func runStream() error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Done()

	nc, err := transport.NewNATSClient(transport.NATSConfig{
		URL:          cfg.NATS.URL,
		Subject:      cfg.NATS.Subject,
		AlertSubject: cfg.NATS.AlertSubject,
	}, log)
	if err != nil {
		return err
	}
	defer nc.Close()

	p, err := pipeline.Build(cfg, store, nc, log)
	if err != nil {
		return err
	}

	startMetricsListener(cfg.Metrics.Listen, log)

	events := make(chan event.Event, 1024)
	if err := nc.Subscribe(events); err != nil {
		return err
	}
	log.Info("engine started",
		"subject", cfg.NATS.Subject, "alert_subject", cfg.NATS.AlertSubject,
		logging.Backend(cfg.State.Backend))

	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down, draining open windows")
			drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return p.Drain(drainCtx)
		case e := <-events:
			if err := p.Process(ctx, e); err != nil {
				return err
			}
		}
	}
}

// openStore builds, migrates, and initializes the configured state backend.
func openStore(ctx context.Context, cfg *config.Config, log *logging.Logger) (state.Store, error) {
	if cfg.State.Backend == "postgres" {
		log.Info("running state schema migrations")
		m, err := migrate.New("file://migrations", cfg.State.Postgres.DSN())
		if err != nil {
			return nil, err
		}
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return nil, err
		}
	}
	store, err := pipeline.NewStore(cfg.State)
	if err != nil {
		return nil, err
	}
	if err := store.Initialize(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func startMetricsListener(addr string, log *logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error("metrics listener failed", logging.Error(err))
		}
	}()
}
