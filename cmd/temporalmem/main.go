package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/temporalmem/temporalmem/config"
	"github.com/temporalmem/temporalmem/pkg/api"
	"github.com/temporalmem/temporalmem/pkg/api/events"
	"github.com/temporalmem/temporalmem/pkg/api/handlers"
	"github.com/temporalmem/temporalmem/pkg/embedding/mock"
	"github.com/temporalmem/temporalmem/pkg/embedding/openai"
	"github.com/temporalmem/temporalmem/pkg/lock"
	"github.com/temporalmem/temporalmem/pkg/logger"
	"github.com/temporalmem/temporalmem/pkg/memory"
	"github.com/temporalmem/temporalmem/pkg/metrics"
	"github.com/temporalmem/temporalmem/pkg/store/badger"
	"github.com/temporalmem/temporalmem/pkg/store/memstore"
	"github.com/temporalmem/temporalmem/pkg/telemetry/tracing"
	"github.com/temporalmem/temporalmem/pkg/vector/chromem"
	"github.com/temporalmem/temporalmem/pkg/vector/local"
	"github.com/temporalmem/temporalmem/pkg/version"
)

var (
	configPath  = flag.String("config", "", "Path to configuration file")
	versionFlag = flag.Bool("version", false, "Print version information")
	helpFlag    = flag.Bool("help", false, "Print help information")

	// CLI overrides
	appName    = flag.String("app-name", "", "Override app name")
	serverPort = flag.Int("port", 0, "Override server port")
	logLevel   = flag.String("log-level", "", "Override log level")
	debugMode  = flag.Bool("debug", false, "Enable debug mode")
)

func main() {
	flag.Parse()

	if *helpFlag {
		printHelp()
		os.Exit(0)
	}
	if *versionFlag {
		printVersion()
		os.Exit(0)
	}

	// Load a local .env if present; real environments set variables directly.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath, buildOverrides())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration:\n%s\n", err)
		os.Exit(1)
	}

	logCfg := &logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}
	if cfg.App.Debug || *debugMode {
		logCfg.Level = logger.DebugLevel
	}
	log := logger.New(logCfg)
	logger.SetGlobal(log)

	log.Info("Starting temporalmem",
		"version", version.Version,
		"buildTime", version.BuildTime,
		"gitCommit", version.GitCommit,
		"app", cfg.App.Name,
		"environment", cfg.App.Environment,
	)
	log.Debug("Configuration loaded", "config", cfg.String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, cfg.App.Name, version.Version)
	if err != nil {
		log.Error("Failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Error("Error shutting down tracing", "error", err)
		}
	}()

	// Metadata store is the source of truth; pick the backend first.
	var store memory.MetadataStore
	switch cfg.Metadata.Type {
	case "badger":
		store, err = badger.New(&badger.Config{
			Path:             cfg.Metadata.Badger.Path,
			SyncWrites:       cfg.Metadata.Badger.SyncWrites,
			ValueLogFileSize: cfg.Metadata.Badger.ValueLogFileSize,
		})
		if err != nil {
			log.Error("Failed to open Badger metadata store", "error", err)
			os.Exit(1)
		}
		log.Info("Initialized Badger metadata store", "path", cfg.Metadata.Badger.Path)
	case "memory":
		store = memstore.New()
		log.Info("Initialized in-memory metadata store")
	default:
		store = memstore.New()
		log.Warn("Unknown metadata store type, using in-memory store", "type", cfg.Metadata.Type)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Error closing metadata store", "error", err)
		}
	}()

	var index memory.VectorIndex
	switch cfg.Vector.Type {
	case "chromem":
		index, err = chromem.New(&chromem.Config{
			Path:      cfg.Vector.Path,
			Compress:  cfg.Vector.Compress,
			Dimension: cfg.Vector.Dimension,
		})
		if err != nil {
			log.Error("Failed to open chromem vector index", "error", err)
			os.Exit(1)
		}
		log.Info("Initialized chromem vector index", "path", cfg.Vector.Path, "dimension", cfg.Vector.Dimension)
	default:
		index = local.New(cfg.Vector.Dimension)
		log.Info("Initialized local vector index", "dimension", cfg.Vector.Dimension)
	}
	defer func() {
		if err := index.Close(); err != nil {
			log.Error("Error closing vector index", "error", err)
		}
	}()

	var embedder memory.Embedder
	switch cfg.Embedding.Provider {
	case "openai":
		apiKey := cfg.Embedding.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		embedder, err = openai.New(&openai.Config{
			APIKey:            apiKey,
			Model:             cfg.Embedding.Model,
			Dimension:         cfg.Embedding.Dimension,
			RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		})
		if err != nil {
			log.Error("Failed to create OpenAI embedder", "error", err)
			os.Exit(1)
		}
		log.Info("Initialized OpenAI embedder", "model", cfg.Embedding.Model, "dimension", cfg.Embedding.Dimension)
	default:
		embedder = mock.New(cfg.Embedding.Dimension)
		log.Info("Initialized mock embedder", "dimension", cfg.Embedding.Dimension)
	}

	var locker memory.SlotLocker
	if cfg.Lock.Type == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Lock.Redis.Address,
			Password: cfg.Lock.Redis.Password,
			DB:       cfg.Lock.Redis.DB,
		})
		defer client.Close()
		locker = lock.NewRedisSlotLocker(client, lock.Config{TTL: cfg.Lock.Redis.TTL})
		log.Info("Initialized Redis slot locker", "address", cfg.Lock.Redis.Address)
	}

	metricsManager := metrics.NewManager(metrics.Config{
		Enabled:             cfg.Metrics.Enabled,
		Port:                cfg.Metrics.Port,
		Path:                cfg.Metrics.Path,
		HTTPDurationBuckets: metrics.DefaultConfig().HTTPDurationBuckets,
	})
	if metricsManager.Enabled() {
		go func() {
			log.Info("Starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := metricsManager.StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
				log.Error("Metrics server error", "error", err)
			}
		}()
	}

	broadcaster := events.NewBroadcaster()

	eng := memory.NewEngine(memory.EngineConfig{
		RetryBudget:     cfg.Engine.RetryBudget,
		ReindexInterval: cfg.Engine.ReindexInterval,
		TypeDefaults:    typeDefaults(cfg.Engine.HalfLifeDays),
		Locker:          locker,
	}, store, index, embedder, log, metricsManager, events.NewSink(broadcaster))
	if err := eng.Start(ctx); err != nil {
		log.Error("Failed to start memory engine", "error", err)
		os.Exit(1)
	}

	// Export the reindex backlog size while the engine runs.
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				metricsManager.SetIndexPending(eng.PendingReindex())
			case <-ctx.Done():
				return
			}
		}
	}()

	wsHandler := handlers.NewWebSocketHandler(log, handlers.WebSocketConfig{
		AllowedOrigins: cfg.Server.CORS.AllowedOrigins,
	})
	go wsHandler.Run(ctx, broadcaster)

	apiHandlers := &api.Handlers{
		Memory:  handlers.NewMemoryHandler(eng, log),
		Health:  handlers.NewHealthHandler(eng),
		Events:  wsHandler,
		Metrics: metricsManager,
	}

	httpServer := api.NewHTTPServer(cfg, log, apiHandlers)

	serverErrChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
		if err := httpServer.Start(); err != nil {
			serverErrChan <- err
		}
	}()

	log.Info("temporalmem is running",
		"http_port", cfg.Server.Port,
		"metrics_port", cfg.Metrics.Port,
	)
	log.Info("Press Ctrl+C to stop")

	select {
	case sig := <-sigChan:
		log.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErrChan:
		log.Error("HTTP server error", "error", err)
	case <-ctx.Done():
		log.Info("Context cancelled")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	log.Info("Shutting down HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down HTTP server", "error", err)
	}

	log.Info("Stopping memory engine")
	if err := eng.Stop(shutdownCtx); err != nil {
		log.Error("Error during engine shutdown", "error", err)
	}

	log.Info("temporalmem stopped gracefully")
}

// typeDefaults converts the configured half-life map into engine defaults,
// dropping unknown record types.
func typeDefaults(halfLives map[string]int) memory.TypeDefaults {
	defaults := make(memory.TypeDefaults, len(halfLives))
	for name, days := range halfLives {
		t := memory.Type(name)
		if !t.Valid() || days < 0 {
			continue
		}
		defaults[t] = days
	}
	return defaults
}

func buildOverrides() map[string]interface{} {
	overrides := make(map[string]interface{})

	if *appName != "" {
		overrides["app.name"] = *appName
	}
	if *serverPort != 0 {
		overrides["server.port"] = *serverPort
	}
	if *logLevel != "" {
		overrides["log.level"] = *logLevel
	}
	if *debugMode {
		overrides["app.debug"] = true
	}

	return overrides
}

func printVersion() {
	fmt.Printf("temporalmem - Temporal Memory Engine\n")
	fmt.Printf("Version:    %s\n", version.Version)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Printf("Git Commit: %s\n", version.GitCommit)
	fmt.Printf("Go Version: %s\n", version.GoVersion)
}

func printHelp() {
	fmt.Printf("temporalmem - Slot-based memory store with temporal decay ranking\n\n")
	fmt.Printf("Usage: temporalmem [options]\n\n")
	fmt.Printf("Options:\n")
	flag.PrintDefaults()
	fmt.Printf("\nExamples:\n")
	fmt.Printf("  temporalmem                                # Run with default config\n")
	fmt.Printf("  temporalmem -config config.yaml            # Use specific config file\n")
	fmt.Printf("  temporalmem -port 9090 -log-level debug    # Override specific options\n")
	fmt.Printf("  temporalmem -version                       # Print version info\n")
}
