package app

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/navaneethakrishnanms/paper-ai-evaluation/internal/aggregator"
	"github.com/navaneethakrishnanms/paper-ai-evaluation/internal/config"
	"github.com/navaneethakrishnanms/paper-ai-evaluation/internal/delivery/httpd"
	"github.com/navaneethakrishnanms/paper-ai-evaluation/internal/models"
	"github.com/navaneethakrishnanms/paper-ai-evaluation/internal/repository"
	"github.com/navaneethakrishnanms/paper-ai-evaluation/internal/service"
	"github.com/navaneethakrishnanms/paper-ai-evaluation/internal/service/integration"
	"github.com/navaneethakrishnanms/paper-ai-evaluation/internal/worker"
	"github.com/navaneethakrishnanms/paper-ai-evaluation/pkg/clock"
)

type App struct {
	server       *http.Server
	logger       zerolog.Logger
	config       *config.Config
	db           *sql.DB
	eventsClient integration.EventsClient
	orchestrator *worker.Orchestrator
	runCancel    context.CancelFunc
}

func New(cfg *config.Config, log zerolog.Logger, db *sql.DB) (*App, error) {
	gradingClient := integration.NewGradingClient(
		cfg.Grading.URL,
		cfg.Grading.SubmitEndpoint,
		cfg.Grading.StatusEndpoint,
		cfg.Grading.ResultEndpoint,
		cfg.Grading.Timeout,
		log,
	)

	var eventsClient integration.EventsClient
	if cfg.RabbitMQ.Enabled {
		client, err := integration.NewEventsClient(
			cfg.RabbitMQ.URL,
			cfg.RabbitMQ.Exchange,
			cfg.RabbitMQ.RoutingKey,
			cfg.RabbitMQ.QueueName,
			log,
		)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create RabbitMQ client")
			// Events are best effort, keep running without them.
		} else {
			eventsClient = client
		}
	}

	var resultRepo repository.ResultRepository
	if db != nil {
		resultRepo = repository.NewResultRepository(db, log)
	}

	limiter := integration.NewRateLimitedClient(
		cfg.Grading.MaxRetries,
		cfg.Grading.BackoffBase,
		cfg.Grading.BackoffMax,
		clock.New(),
		log,
	)

	aggCfg := aggregator.Config{
		Specs:         make(map[string]models.SectionSpec),
		PassThreshold: cfg.Scoring.PassThreshold,
	}
	for _, section := range cfg.Scoring.Sections {
		aggCfg.Specs[section] = models.SectionSpec{DropThreshold: cfg.Scoring.DropThreshold}
	}

	store := worker.NewBatchStore()
	orchestrator := worker.NewOrchestrator(
		store,
		gradingClient,
		limiter,
		aggCfg,
		resultRepo,
		eventsClient,
		clock.New(),
		cfg.Polling.Interval,
		cfg.Polling.MaxPolls,
		log,
	)

	runCtx, runCancel := context.WithCancel(context.Background())
	orchestrator.SetBaseContext(runCtx)

	reporter := service.NewStatusReporter()
	evaluationService := service.NewEvaluationService(
		store,
		orchestrator,
		reporter,
		resultRepo,
		models.GradingMode(cfg.Scoring.Mode),
		log,
	)

	handler := httpd.NewHandler(evaluationService, log)

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		ExposedHeaders:   cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           cfg.CORS.MaxAge,
	}))

	handler.RegisterRoutes(router)

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &App{
		server:       server,
		logger:       log,
		config:       cfg,
		db:           db,
		eventsClient: eventsClient,
		orchestrator: orchestrator,
		runCancel:    runCancel,
	}, nil
}

func (a *App) Run() error {
	a.logger.Info().Msgf("Starting evaluation service on %s", a.config.Server.Address)
	return a.server.ListenAndServe()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info().Msg("Shutting down evaluation service...")

	// Stop in-flight batch goroutines first so they do not write after close.
	a.runCancel()

	if a.eventsClient != nil {
		if err := a.eventsClient.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close RabbitMQ connection")
		}
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close database connection")
		}
	}

	return a.server.Shutdown(ctx)
}
