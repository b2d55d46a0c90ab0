// Package main is the entry point for the SignalCraft alert routing service.
// It initializes all components and starts the HTTP server and queue workers.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"signalcraft-go/internal/api"
	"signalcraft-go/internal/broadcast"
	"signalcraft-go/internal/config"
	"signalcraft-go/internal/escalation"
	"signalcraft-go/internal/grouping"
	"signalcraft-go/internal/notify"
	"signalcraft-go/internal/pipeline"
	"signalcraft-go/internal/queue"
	memoryqueue "signalcraft-go/internal/queue/memory"
	redisqueue "signalcraft-go/internal/queue/redis"
	"signalcraft-go/internal/rules"
	"signalcraft-go/internal/store"
	memorystor "signalcraft-go/internal/store/memory"
	postgresstor "signalcraft-go/internal/store/postgres"
	redisstor "signalcraft-go/internal/store/redis"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	flag.Parse()

	// Bootstrap logger until configuration is loaded
	logger := initLogger(&config.LoggerConfig{Level: "info", Format: "json"})

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", "error", err, "path", *configPath)
		os.Exit(1)
	}
	logger = initLogger(&cfg.Logger)

	logger.Info("configuration loaded",
		"path", *configPath,
		"storage_mode", cfg.Storage.Mode,
	)

	// Initialize dependencies based on storage mode
	deps, cleanup, err := initDependencies(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize dependencies", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	// Create context that listens for shutdown signals
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Start queue workers in background
	go func() {
		if err := deps.notifyWorker.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("notification worker error", "error", err)
			cancel()
		}
	}()
	go func() {
		if err := deps.escalationWorker.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("escalation worker error", "error", err)
			cancel()
		}
	}()

	// Start HTTP server
	go func() {
		if err := deps.server.Start(); err != nil {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	logger.Info("SignalCraft started",
		"address", cfg.Server.Address(),
		"storage_mode", cfg.Storage.Mode,
	)

	// Wait for shutdown signal
	<-ctx.Done()
	logger.Info("shutdown signal received")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer shutdownCancel()

	if err := deps.server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("SignalCraft stopped")
}

// dependencies holds all initialized service dependencies.
type dependencies struct {
	server           *api.Server
	notifyWorker     *notify.Worker
	escalationWorker *escalation.Worker
}

// initDependencies creates and wires all service dependencies based on config.
// Returns the dependencies and a cleanup function.
func initDependencies(cfg *config.Config, logger *slog.Logger) (*dependencies, func(), error) {
	var (
		groupRepo       store.GroupRepository
		eventRepo       store.EventRepository
		ruleRepo        store.RuleRepository
		escalationIndex store.EscalationIndex
		jobQueue        queue.Queue
		broadcaster     broadcast.Broadcaster
		cleanupFuncs    []func()
	)

	if cfg.Storage.UseMemory() {
		// Initialize in-memory implementations
		logger.Info("initializing in-memory storage")

		groupRepo = memorystor.NewGroupRepository()
		eventRepo = memorystor.NewEventRepository()
		ruleRepo = memorystor.NewRuleRepository()
		escalationIndex = memorystor.NewEscalationIndex()

		memQueue := memoryqueue.NewQueue()
		jobQueue = memQueue
		cleanupFuncs = append(cleanupFuncs, func() { _ = memQueue.Close() })

		broadcaster = broadcast.Noop{}
	} else {
		// Initialize real storage implementations
		logger.Info("initializing production storage (PostgreSQL, Redis, Kafka)")

		// Initialize PostgreSQL
		ctx := context.Background()
		db, err := postgresstor.NewDB(ctx, &cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		cleanupFuncs = append(cleanupFuncs, db.Close)

		// Run migrations
		if err := db.RunMigrations(ctx); err != nil {
			return nil, nil, err
		}
		logger.Info("database migrations completed")

		groupRepo = postgresstor.NewGroupRepository(db)
		eventRepo = postgresstor.NewEventRepository(db)
		ruleRepo = postgresstor.NewRuleRepository(db)

		// Initialize Redis for the delayed-job queue and escalation index
		redisQueue, err := redisqueue.NewQueue(&cfg.Redis, cfg.Pipeline.QueuePollInterval)
		if err != nil {
			return nil, nil, err
		}
		jobQueue = redisQueue
		cleanupFuncs = append(cleanupFuncs, func() { _ = redisQueue.Close() })

		escalationIndex = redisstor.NewEscalationIndexWithClient(redisQueue.Client())

		// Initialize Kafka event broadcasting
		kafkaBroadcaster := broadcast.NewKafkaBroadcaster(&cfg.Kafka)
		broadcaster = kafkaBroadcaster
		cleanupFuncs = append(cleanupFuncs, func() { _ = kafkaBroadcaster.Close() })
	}

	// Initialize core services
	engine := rules.NewEngine(ruleRepo, cfg.Pipeline.RuleCacheTTL, logger)
	notifier := notify.NewNotifier(jobQueue)
	scheduler := escalation.NewScheduler(jobQueue, escalationIndex, groupRepo, logger)
	groupService := grouping.NewService(
		groupRepo,
		eventRepo,
		scheduler,
		broadcaster,
		cfg.Pipeline.ReopenOnRecurrence,
		logger,
	)
	pipelineService := pipeline.NewService(
		groupService,
		eventRepo,
		engine,
		notifier,
		scheduler,
		broadcaster,
		cfg.Pipeline.DefaultChannelID,
		logger,
	)

	// Initialize queue workers
	sender := notify.NewLogSender(logger)
	notifyWorker := notify.NewWorker(jobQueue, sender, logger)
	escalationWorker := escalation.NewWorker(scheduler, groupRepo, notifier, logger)

	// Initialize API handlers
	ingestHandler := api.NewIngestHandler(pipelineService, logger)
	groupHandler := api.NewGroupHandler(groupService, eventRepo, logger)
	ruleHandler := api.NewRuleHandler(ruleRepo, engine, logger)

	// Initialize HTTP server
	server := api.NewServer(api.ServerDeps{
		Config:        &cfg.Server,
		Logger:        logger,
		IngestHandler: ingestHandler,
		GroupHandler:  groupHandler,
		RuleHandler:   ruleHandler,
	})

	// Build cleanup function
	cleanup := func() {
		for i := len(cleanupFuncs) - 1; i >= 0; i-- {
			cleanupFuncs[i]()
		}
	}

	return &dependencies{
		server:           server,
		notifyWorker:     notifyWorker,
		escalationWorker: escalationWorker,
	}, cleanup, nil
}

// initLogger creates and configures the application logger.
func initLogger(cfg *config.LoggerConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}
