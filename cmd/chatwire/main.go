package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/chatwire/chatwire/internal/api"
	"github.com/chatwire/chatwire/internal/channel"
	"github.com/chatwire/chatwire/internal/conversation"
	"github.com/chatwire/chatwire/internal/genai"
	"github.com/chatwire/chatwire/internal/leads"
	"github.com/chatwire/chatwire/internal/lockfile"
	"github.com/chatwire/chatwire/internal/recovery"
	"github.com/chatwire/chatwire/internal/store"
	"github.com/chatwire/chatwire/internal/util"
	"github.com/chatwire/chatwire/internal/worker"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for ChatWire state data.
	DefaultStateDir = "/var/lib/chatwire"
	// DefaultDBFileName is the default SQLite database filename.
	DefaultDBFileName = "chatwire.db"
	// shutdownTimeout bounds graceful HTTP shutdown after a signal.
	shutdownTimeout = 15 * time.Second
)

func main() {
	config := loadEnvironmentConfig()
	config = parseCommandLineFlags(config)
	initializeLogger(config.Debug)

	slog.Info("Bootstrapping ChatWire",
		"stateDir", config.StateDir,
		"dsnType", store.DetectDSNType(config.DSN),
		"apiAddr", config.APIAddr,
		"aiConfigured", config.OpenAIKey != "")

	if err := ensureDirectoriesExist(config); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	if err := runService(config); err != nil {
		slog.Error("ChatWire failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("ChatWire exited successfully")
}

// Config holds the resolved service configuration.
type Config struct {
	APIAddr        string
	DSN            string
	StateDir       string
	OpenAIKey      string
	OpenAIBaseURL  string
	OpenAIModel    string
	WebhookTimeout time.Duration
	Workers        int
	QueueSize      int
	RatePerMinute  int
	RateBurst      int
	Debug          bool
}

// initializeLogger sets up structured logging on stderr.
func initializeLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from the environment and an
// optional .env file, applying defaults for anything unset.
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", "error", err)
	}

	config := Config{
		APIAddr:        os.Getenv("CHATWIRE_API_ADDR"),
		DSN:            os.Getenv("CHATWIRE_DSN"),
		StateDir:       os.Getenv("CHATWIRE_STATE_DIR"),
		OpenAIKey:      os.Getenv("CHATWIRE_OPENAI_API_KEY"),
		OpenAIBaseURL:  os.Getenv("CHATWIRE_OPENAI_BASE_URL"),
		OpenAIModel:    os.Getenv("CHATWIRE_OPENAI_MODEL"),
		WebhookTimeout: util.ParseDurationEnv("CHATWIRE_WEBHOOK_TIMEOUT", leads.DefaultWebhookTimeout),
		Workers:        util.ParseIntEnv("CHATWIRE_WORKERS", worker.DefaultWorkers),
		QueueSize:      util.ParseIntEnv("CHATWIRE_QUEUE_SIZE", worker.DefaultQueueSize),
		RatePerMinute:  util.ParseIntEnv("CHATWIRE_RATE_LIMIT", api.DefaultRatePerMinute),
		RateBurst:      util.ParseIntEnv("CHATWIRE_RATE_BURST", api.DefaultRateBurst),
		Debug:          util.ParseBoolEnv("CHATWIRE_DEBUG", false),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
	}
	if config.APIAddr == "" {
		config.APIAddr = api.DefaultAddr
	}
	if config.DSN == "" {
		config.DSN = filepath.Join(config.StateDir, DefaultDBFileName)
	}
	return config
}

// parseCommandLineFlags overlays command line flags on the environment
// configuration.
func parseCommandLineFlags(config Config) Config {
	stateDir := flag.String("state-dir", config.StateDir, "state directory for ChatWire data (overrides $CHATWIRE_STATE_DIR)")
	dsn := flag.String("dsn", config.DSN, "database DSN: PostgreSQL URL or SQLite file path (overrides $CHATWIRE_DSN)")
	apiAddr := flag.String("api-addr", config.APIAddr, "webhook server listen address (overrides $CHATWIRE_API_ADDR)")
	openaiKey := flag.String("openai-api-key", config.OpenAIKey, "completion backend API key (overrides $CHATWIRE_OPENAI_API_KEY)")
	openaiBaseURL := flag.String("openai-base-url", config.OpenAIBaseURL, "completion backend base URL (overrides $CHATWIRE_OPENAI_BASE_URL)")
	openaiModel := flag.String("openai-model", config.OpenAIModel, "completion model (overrides $CHATWIRE_OPENAI_MODEL)")
	debug := flag.Bool("debug", config.Debug, "enable debug logging and completion call dumps (overrides $CHATWIRE_DEBUG)")
	flag.Parse()

	// A -state-dir override moves the derived SQLite path with it, but never
	// an explicitly configured DSN.
	if *dsn == config.DSN && config.DSN == filepath.Join(config.StateDir, DefaultDBFileName) && *stateDir != config.StateDir {
		*dsn = filepath.Join(*stateDir, DefaultDBFileName)
	}

	config.StateDir = *stateDir
	config.DSN = *dsn
	config.APIAddr = *apiAddr
	config.OpenAIKey = *openaiKey
	config.OpenAIBaseURL = *openaiBaseURL
	config.OpenAIModel = *openaiModel
	config.Debug = *debug
	return config
}

// ensureDirectoriesExist creates the directory for a file-based database.
func ensureDirectoriesExist(config Config) error {
	if store.DetectDSNType(config.DSN) != "sqlite" {
		return nil
	}
	dbDir := filepath.Dir(config.DSN)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
	}
	return nil
}

// buildGenAIOptions constructs completion client options.
func buildGenAIOptions(config Config) []genai.Option {
	opts := []genai.Option{
		genai.WithStateDir(config.StateDir),
		genai.WithDebugMode(config.Debug),
	}
	if config.OpenAIKey != "" {
		opts = append(opts, genai.WithAPIKey(config.OpenAIKey))
	}
	if config.OpenAIBaseURL != "" {
		opts = append(opts, genai.WithBaseURL(config.OpenAIBaseURL))
	}
	if config.OpenAIModel != "" {
		opts = append(opts, genai.WithModel(config.OpenAIModel))
	}
	return opts
}

// newChannelRegistry registers one adapter per supported channel.
func newChannelRegistry() *channel.Registry {
	registry := channel.NewRegistry()
	registry.MustRegister(channel.NewTelegramAdapter())
	registry.MustRegister(channel.NewWhatsAppAdapter())
	registry.MustRegister(channel.NewMessengerAdapter())
	registry.MustRegister(channel.NewInstagramAdapter())
	return registry
}

// runService wires the modules together and serves until a shutdown signal
// or a fatal server error.
func runService(config Config) error {
	lock, err := lockfile.AcquireLock(config.StateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := store.NewStore(store.WithDSN(config.DSN))
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cleared, err := recovery.NewSweeper(st).Run(ctx); err != nil {
		slog.Warn("Lead flow-state sweep finished with errors", "error", err, "cleared", cleared)
	}

	ai := genai.NewClient(buildGenAIOptions(config)...)
	registry := newChannelRegistry()

	// The pool outlives the signal context so queued deliveries finish
	// during the drain.
	pool := worker.NewPool(config.Workers, config.QueueSize)
	pool.Start(context.Background())

	notifier := leads.NewNotifier(leads.WithTimeout(config.WebhookTimeout))
	extractor := leads.NewExtractor(st, ai, notifier)
	resolver := conversation.NewResolver(st, ai)

	srv := api.NewServer(st, resolver, extractor, registry, pool,
		api.WithAddr(config.APIAddr),
		api.WithRateLimit(config.RatePerMinute, config.RateBurst),
	)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		slog.Info("Shutdown signal received", "signal", sig.String())
	case err := <-serveErr:
		pool.Stop()
		return err
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown failed", "error", err)
	}
	pool.Stop()
	return nil
}
