// Package server assembles and runs the application: it opens the
// database, migrates the schema, wires the services together, and serves
// the HTTP API until a shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hearthledger/hearthledger/internal/logging"
	"github.com/hearthledger/hearthledger/internal/server/batch"
	"github.com/hearthledger/hearthledger/internal/server/config"
	"github.com/hearthledger/hearthledger/internal/server/httpapi"
	"github.com/hearthledger/hearthledger/internal/server/repositories/repomanager"
	"github.com/hearthledger/hearthledger/internal/server/services"
	"github.com/hearthledger/hearthledger/internal/server/ws"
)

// shutdownTimeout bounds how long in-flight requests may run after a
// shutdown signal.
const shutdownTimeout = 10 * time.Second

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	handler http.Handler
	hub     *ws.Hub
}

// newLogger picks the logging backend configured in cfg.
func newLogger(cfg *config.Config) logging.Logger {
	if cfg.LogBackend == "zerolog" {
		zl := zerolog.New(os.Stdout).With().Timestamp().Logger()
		return logging.NewZerologLogger(zl)
	}
	return logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
}

func NewApp(cfg *config.Config) (*App, error) {
	logger := newLogger(cfg)

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	hub := ws.NewHub(logger)

	mappingService := services.NewMappingService(db, rm)
	reportService := services.NewReportService(db, rm, logger, cfg.ReportCacheTTL)
	insightService := services.NewInsightService(db, rm, logger, hub)
	writer := batch.NewWriter(db, rm, logger, cfg.BatchRetryBackoff)
	transactionService := services.NewTransactionService(db, rm, logger, mappingService, reportService, hub, writer)
	groupService := services.NewGroupService(db, rm, logger, cfg.SecretKey, cfg.InvitationValidity)
	receiptService := services.NewReceiptService(db, rm, cfg)

	api := httpapi.NewServer(logger, transactionService, groupService, reportService, mappingService, insightService, receiptService, hub)

	return &App{
		config:  cfg,
		logger:  logger,
		db:      db,
		handler: api.Routes(),
		hub:     hub,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	srv := &http.Server{
		Addr:    app.config.EndpointAddrHTTP,
		Handler: app.handler,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(ctx, "http shutdown error", "error", err.Error())
		}
	}()

	app.logger.Info(ctx, "http server listening", "addr", app.config.EndpointAddrHTTP)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, "http server error", "error", err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting app")

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, app.db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.hub.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "closing db", "error", err.Error())
	}
	app.logger.Info(ctx, "app stopped")
	return nil
}
