package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattjoyce/linerelay/internal/completion"
	"github.com/mattjoyce/linerelay/internal/config"
	"github.com/mattjoyce/linerelay/internal/history"
	"github.com/mattjoyce/linerelay/internal/ledger"
	"github.com/mattjoyce/linerelay/internal/line"
	"github.com/mattjoyce/linerelay/internal/lock"
	"github.com/mattjoyce/linerelay/internal/log"
	"github.com/mattjoyce/linerelay/internal/relay"
	"github.com/mattjoyce/linerelay/internal/storage"
	"github.com/mattjoyce/linerelay/internal/webhook"
)

const pruneInterval = time.Hour

// app is the wired service.
type app struct {
	server  *webhook.Server
	relay   *relay.Relay
	ledger  *ledger.Ledger
	db      *sql.DB
	pidLock *lock.PIDLock
}

// newApp wires every component from cfg. The ledger (and its lock) is
// skipped when state.path is empty.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{}

	provider, err := completion.New(completion.Config{
		Provider:  cfg.Completion.Provider,
		APIKey:    cfg.Completion.APIKey,
		Model:     cfg.Completion.Model,
		BaseURL:   cfg.Completion.BaseURL,
		MaxTokens: cfg.Completion.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("completion provider ready", "provider", provider.Name(), "model", provider.Model())

	client, err := line.NewClient(line.ClientConfig{
		ChannelAccessToken: cfg.LINE.ChannelAccessToken,
		Endpoint:           cfg.LINE.APIEndpoint,
		Timeout:            cfg.LINE.ReplyTimeout,
	})
	if err != nil {
		return nil, err
	}

	mode, err := history.ParseMode(cfg.Relay.History)
	if err != nil {
		return nil, err
	}

	opts := []relay.Option{relay.WithLogger(log.WithComponent("relay"))}
	if cfg.State.Path != "" {
		lockPath := lock.PathFor(cfg.State.Path)
		a.pidLock, err = lock.AcquirePIDLock(lockPath)
		if err != nil {
			return nil, fmt.Errorf("acquire PID lock (another instance may be running): %w", err)
		}
		logger.Info("acquired PID lock", "path", lockPath)

		a.db, err = storage.OpenSQLite(ctx, cfg.State.Path)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open database %s: %w", cfg.State.Path, err)
		}
		logger.Info("database opened", "path", cfg.State.Path)

		a.ledger = ledger.New(a.db)
		opts = append(opts, relay.WithLedger(a.ledger))
	} else {
		logger.Warn("event ledger disabled; redelivered events will be answered again")
	}

	a.relay = relay.New(relay.Config{
		Mode:              mode,
		SystemPrompt:      cfg.Relay.SystemPrompt,
		FallbackMessage:   cfg.Relay.FallbackMessage,
		CompletionTimeout: cfg.Completion.Timeout,
	}, provider, client, history.NewMemory(), opts...)

	webhookConfig, err := webhook.FromGlobalConfig(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.server = webhook.New(webhookConfig, line.NewParser(cfg.LINE.ChannelSecret), a.relay, log.WithComponent("webhook"))

	return a, nil
}

// Close releases the database and the PID lock.
func (a *app) Close() {
	if a.db != nil {
		_ = a.db.Close()
		a.db = nil
	}
	if a.pidLock != nil {
		_ = a.pidLock.Release()
		a.pidLock = nil
	}
}

// pruneLedger deletes expired ledger rows now and then every interval until
// ctx is done.
func pruneLedger(ctx context.Context, l *ledger.Ledger, retention, interval time.Duration, logger *slog.Logger) {
	prune := func() {
		n, err := l.Prune(ctx, retention)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("ledger prune failed", "error", err)
			}
			return
		}
		logger.Debug("ledger pruned", "deleted", n, "retention", retention.String())
	}

	prune()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath, envFile := configFlags(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	if err := config.LoadDotEnv(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load env file: %v\n", err)
		return 1
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("linerelay starting", "version", version, "config", cfg.SourceFile, "history", cfg.Relay.History)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return 1
	}
	defer a.Close()

	if a.ledger != nil {
		go pruneLedger(ctx, a.ledger, cfg.State.EventRetention, pruneInterval, log.WithComponent("ledger"))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := a.server.Start(ctx); err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("webhook: %w", err)
		}
	}()

	logger.Info("linerelay running (press Ctrl+C to stop)", "listen", cfg.Service.Listen, "callback_path", cfg.Service.CallbackPath)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
		<-done
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		cancel()
		return 1
	}

	logger.Info("linerelay stopped")
	return 0
}
