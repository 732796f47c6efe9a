package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketchat/internal/config"
	"marketchat/internal/constants"
	"marketchat/internal/database"
	"marketchat/internal/identity"
	"marketchat/internal/metrics"
	"marketchat/internal/retry"
	"marketchat/internal/session"
	"marketchat/internal/tracing"
	"marketchat/internal/transport"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("MarketChat %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting MarketChat")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else if cfg.LogLevel != "" {
		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
			logger.SetLevel(logrus.InfoLevel)
		} else {
			logger.SetLevel(level)
		}
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	// Initialize OpenTelemetry tracing
	tracingManager := tracing.NewTracingManager(tracing.TracingConfig{
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: cfg.Tracing.ServiceVersion,
		Environment:    cfg.Tracing.Environment,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
		Enabled:        cfg.Tracing.Enabled,
		UseStdout:      cfg.Tracing.UseStdout,
	}, logger)

	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	// Initialize the local message store with exponential backoff retry
	var db *database.Database
	if cfg.Database.Path != "" {
		backoff := retry.NewBackoff(retry.BackoffConfig{
			InitialDelay: time.Duration(constants.DefaultBackoffInitialMs) * time.Millisecond,
			MaxDelay:     time.Duration(constants.DefaultBackoffMaxSec) * time.Second,
			Multiplier:   2.0,
			MaxAttempts:  constants.DefaultDatabaseAttempts,
			Jitter:       true,
		})
		err = backoff.Retry(ctx, func() error {
			var initErr error
			db, initErr = database.New(cfg.Database.Path)
			if initErr != nil {
				logger.Warnf("Failed to initialize database: %v", initErr)
			}
			return initErr
		})
		if err != nil {
			return fmt.Errorf("failed to initialize database after retries: %w", err)
		}
		defer db.Close()
	} else {
		logger.Info("No database path configured, running without durable history")
	}

	ids := identity.NewStaticProvider(cfg.User.ID)

	broker := transport.NewClient(transport.Config{
		URL:         cfg.Broker.URL,
		Login:       cfg.Broker.Login,
		Passcode:    cfg.Broker.Passcode,
		Heartbeat:   time.Duration(cfg.Broker.HeartbeatSec) * time.Second,
		DialTimeout: time.Duration(cfg.Broker.DialTimeoutSec) * time.Second,
	}, logger)

	sessionCfg := session.Config{
		TypingDebounce: time.Duration(cfg.Presence.TypingDebounceMs) * time.Millisecond,
		TypingExpiry:   time.Duration(cfg.Presence.TypingExpiryMs) * time.Millisecond,
		Reconnect: retry.BackoffConfig{
			InitialDelay: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
			MaxDelay:     time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
			Multiplier:   constants.DefaultReconnectMultiplier,
			MaxAttempts:  cfg.Retry.MaxAttempts,
			Jitter:       true,
		},
		AutoReconnect: cfg.Broker.AutoReconnect,
		LogBufferSize: constants.DefaultLogBufferSize,
	}

	var store session.MessageStore
	if db != nil {
		store = db
	}
	sess := session.New(sessionCfg, broker, ids, store, logger)

	if db != nil {
		restoreCtx, cancel := context.WithTimeout(ctx, time.Duration(constants.DefaultStoreTimeoutSec)*time.Second)
		pending, restoreErr := db.GetPendingMessages(restoreCtx)
		cancel()
		if restoreErr != nil {
			logger.Warnf("Failed to restore queued messages: %v", restoreErr)
		} else {
			sess.RestorePending(pending)
		}
	}

	if db != nil {
		go monitorStaleMessages(ctx, db, logger,
			time.Duration(constants.DefaultStaleCheckIntervalMin)*time.Minute,
			time.Duration(constants.DefaultStaleThresholdMin)*time.Minute)
	}

	sess.Connect(ctx)
	defer sess.Disconnect()

	server := NewServer(cfg, sess, db, logger)
	serverErrCh := make(chan error, constants.ServerErrorChannelSize)
	go func() {
		if err := server.Start(); err != nil {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}

// monitorStaleMessages periodically gauges how many outbound messages have
// been stuck in sending or failed for longer than the threshold. Surfaced at
// /metrics so operators can spot a silently wedged queue.
func monitorStaleMessages(ctx context.Context, db *database.Database, logger *logrus.Logger, interval, threshold time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := db.GetStaleMessageCount(ctx, threshold)
			if err != nil {
				logger.WithError(err).Warn("Failed to count stale messages")
				continue
			}
			metrics.SetGauge("stale_messages", float64(count), nil, "Outbound messages stuck in sending or failed")
		}
	}
}
