// tablemind orchestrator server. Drives LLM analysis conversations over
// client-held tables, streaming events to the browser and suspending while
// the browser executes tool calls locally.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/tablemind/tablemind/pkg/agent"
	"github.com/tablemind/tablemind/pkg/agent/prompt"
	"github.com/tablemind/tablemind/pkg/api"
	"github.com/tablemind/tablemind/pkg/cleanup"
	"github.com/tablemind/tablemind/pkg/config"
	"github.com/tablemind/tablemind/pkg/llm"
	"github.com/tablemind/tablemind/pkg/quota"
	"github.com/tablemind/tablemind/pkg/ratelimit"
	"github.com/tablemind/tablemind/pkg/services"
	"github.com/tablemind/tablemind/pkg/store"
	"github.com/tablemind/tablemind/pkg/version"
)

// janitorInterval is how often memory-mode sweeps expired sessions.
const janitorInterval = time.Minute

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// setupLogging installs the process-wide logger at the level named by
// LOG_LEVEL (debug, info, warn, error).
func setupLogging(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}

func main() {
	// Parse command-line flags
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	// 1. Configure logging
	setupLogging(getEnv("LOG_LEVEL", "info"))

	httpPort := getEnv("HTTP_PORT", "8080")
	slog.Info("Starting tablemind",
		"version", version.Full(),
		"http_port", httpPort,
		"config_dir", *configDir)

	ctx := context.Background()

	// 2. Initialize configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 3. Connect Redis when configured; otherwise run on in-memory backends
	var redisClient *redis.Client
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			slog.Error("Invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			slog.Error("Failed to connect to Redis", "addr", opts.Addr, "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				slog.Error("Error closing Redis client", "error", err)
			}
		}()
		slog.Info("Connected to Redis", "addr", opts.Addr)
	}

	var (
		sessions   store.SessionStore
		limiter    ratelimit.Limiter
		accountant quota.Accountant
		locker     store.TurnLocker
	)
	if redisClient != nil {
		sessions = store.NewRedisStore(redisClient, cfg.Session.TTL)
		limiter = ratelimit.NewRedisLimiter(redisClient, cfg.RateLimit)
		accountant = quota.NewRedisAccountant(redisClient, cfg.Quota)
		locker = store.NewRedisTurnLock(redisClient, cfg.Session.LockTTL)
	} else {
		slog.Info("REDIS_URL not set, using in-memory backends")
		memStore := store.NewMemoryStore(cfg.Session.TTL)
		janitor := cleanup.NewJanitor(memStore, janitorInterval)
		janitor.Start(ctx)
		defer janitor.Stop()

		sessions = memStore
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimit)
		accountant = quota.NewMemoryAccountant(cfg.Quota)
		locker = store.NewMemoryTurnLock(cfg.Session.LockTTL)
	}

	// 4. Create LLM client
	apiKey := os.Getenv(cfg.LLM.APIKeyEnv)
	if apiKey == "" {
		slog.Error("LLM API key is not set", "env", cfg.LLM.APIKeyEnv)
		os.Exit(1)
	}
	llmClient, err := llm.NewAnthropicFromAPIKey(apiKey, cfg.LLM.Timeout)
	if err != nil {
		slog.Error("Failed to initialize LLM client", "error", err)
		os.Exit(1)
	}
	slog.Info("LLM client initialized", "timeout", cfg.LLM.Timeout)

	// 5. Assemble the agent runtime
	runner := agent.NewRunner(sessions, llmClient, accountant, cfg.TierRegistry, cfg.Session, prompt.NewBuilder())
	analysisService := services.NewAnalysisService(sessions, cfg.Session, cfg.TierRegistry)
	slog.Info("Services initialized")

	// 6. Create HTTP server
	httpServer := api.NewServer(analysisService, runner, limiter, accountant, locker, redisClient)

	// 7. Start HTTP server (non-blocking)
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + httpPort
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("tablemind started successfully")

	// 8. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 9. Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
