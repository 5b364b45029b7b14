package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"assessment-service/internal/app"
	"assessment-service/internal/config"
	"assessment-service/internal/infra/events"
	"assessment-service/internal/logger"
	"assessment-service/internal/monitoring"
	"assessment-service/internal/scoring"
	transport "assessment-service/internal/transport/http"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the assessment server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.Init(logger.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	defer log.Sync() //nolint:errcheck

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	normalization, err := scoring.ParseNormalization(cfg.Scoring.Normalization)
	if err != nil {
		return err
	}
	engine := scoring.NewEngine(scoring.WithScale(cfg.Scoring.Scale), scoring.WithNormalization(normalization))

	store, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	publisher, err := events.NewPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange, log.Named("events"))
	if err != nil {
		return err
	}
	defer publisher.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.New(reg)

	opts := []app.Option{
		app.WithEngine(engine),
		app.WithGradingCost(cfg.Grading.Cost),
		app.WithLogger(log.Named("app")),
		app.WithMetrics(metrics),
		app.WithEvents(publisher),
	}
	attempts := app.NewAttemptService(store.attempts, store.quizzes, store.ledger, store.drafts, opts...)
	settlement := app.NewSettlementService(store.attempts, store.quizzes, opts...)

	handlers := transport.NewHandlers(attempts, settlement, log.Named("http"))
	router := transport.NewRouter(handlers, transport.NewWSHandler(attempts, log.Named("ws")), metrics)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting assessment service", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
