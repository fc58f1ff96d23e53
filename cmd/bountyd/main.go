// Command bountyd runs the bounty engine: REST API, Prometheus metrics and
// the polling scheduler. Without a database URL it runs fully in memory with
// a simulated venue, which is the local development mode.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/PrismoFinance/bounties/internal/app"
	"github.com/PrismoFinance/bounties/internal/app/domain/bounty"
	"github.com/PrismoFinance/bounties/internal/app/httpapi"
	"github.com/PrismoFinance/bounties/internal/app/metrics"
	"github.com/PrismoFinance/bounties/internal/app/storage/postgres"
	"github.com/PrismoFinance/bounties/internal/app/venue/simvenue"
	"github.com/PrismoFinance/bounties/internal/config"
	"github.com/PrismoFinance/bounties/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault("bountyd").WithError(err).Error("loading configuration failed")
		os.Exit(1)
	}

	log := logger.New(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}).WithField("component", "bountyd")

	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("bountyd exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	var stores app.Stores
	if cfg.DatabaseURL != "" {
		pg, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pg.Close()
		stores = app.Stores{Bounties: pg, Triggers: pg, Events: pg, EscrowTasks: pg}
		log.Info("using postgres storage")
	} else {
		log.Warn("no database configured, using in-memory storage")
	}

	pair := bounty.Pair{Address: "pair-uatom-uusdc", BaseDenom: "uatom", QuoteDenom: "uusdc"}
	vn := simvenue.New(pair, decimal.NewFromFloat(8.5), time.Now().UnixNano(), log.WithField("component", "simvenue"))

	collab := app.Collaborators{
		Venue:     vn,
		Bank:      simvenue.NewBank(log.WithField("component", "simbank")),
		Delegator: simvenue.NewDelegator(log.WithField("component", "simdelegator")),
		Addresses: simvenue.AddressValidator{},
	}

	application, err := app.New(cfg, stores, collab, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		return err
	}

	api := httpapi.New(application, log.WithField("component", "httpapi"))
	root := chi.NewRouter()
	root.Mount("/", api.Router())
	root.Handle("/metrics", metrics.Handler())

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http server shutdown failed")
	}
	return application.Stop(shutdownCtx)
}
