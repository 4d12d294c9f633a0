package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/nhle/portal-notify/internal/app"
	"github.com/nhle/portal-notify/internal/credential"
	"github.com/nhle/portal-notify/internal/fetch"
	"github.com/nhle/portal-notify/internal/model"
	"github.com/nhle/portal-notify/internal/seen"
	"github.com/nhle/portal-notify/internal/store"
	appsync "github.com/nhle/portal-notify/internal/sync"
	"github.com/nhle/portal-notify/internal/transport"
	"github.com/nhle/portal-notify/internal/ui/scopeform"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "portal-notify: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := model.DefaultConfigPath()
	cfg, err := model.LoadConfig(cfgPath)
	if err != nil {
		return err
	}

	if cfg.Server.BaseURL == "" || cfg.Session.Role == "" {
		token, err := scopeform.Run(cfg)
		if err != nil {
			return err
		}
		if err := model.SaveConfig(cfgPath, cfg); err != nil {
			return err
		}
		if token != "" {
			if err := credential.SaveToken(token); err != nil {
				return fmt.Errorf("saving session token: %w", err)
			}
		}
	}

	logger := newLogger()
	defer logger.Sync()

	state, err := store.NewStateStore(model.DefaultStatePath())
	if err != nil {
		return err
	}
	defer state.Close()

	notes := store.NewNotificationStore()
	client := fetch.NewClient(cfg.Server.BaseURL, credential.Token())
	fetcher := fetch.NewFetcher(client, time.Duration(cfg.Sync.StalenessSec)*time.Second, logger)
	seenSvc := seen.NewService(client, notes, state, logger)

	channel := transport.New(transport.Config{
		URL:         cfg.Server.SocketURL,
		MaxAttempts: cfg.Sync.ReconnectAttempts,
		Logger:      logger,
	})
	defer channel.Close()

	controller := appsync.New(appsync.Config{
		Fetcher:  fetcher,
		Channel:  channel,
		Notes:    notes,
		State:    state,
		Coalesce: time.Duration(cfg.Sync.CoalesceMs) * time.Millisecond,
		Logger:   logger,
	})

	scope := cfg.Scope()

	everSeen, err := state.HasSeen(context.Background(), scope.Key())
	if err != nil {
		logger.Warn("reading has-seen flag failed", zap.Error(err))
	}

	// Render last-known-good data before the first fetch lands.
	controller.Prime(context.Background(), scope)

	// A failed connect is not fatal: the snapshot path still works and
	// the channel can be revived on the next start.
	if cfg.Server.SocketURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		if err := channel.Connect(ctx); err != nil {
			logger.Warn("push channel unavailable, snapshot-only mode", zap.Error(err))
		}
		cancel()
	}

	controller.SetScope(scope)
	defer controller.Teardown()

	p := tea.NewProgram(
		app.New(notes, seenSvc, controller, scope, everSeen),
		tea.WithAltScreen(),
	)
	_, err = p.Run()
	return err
}

// newLogger writes structured logs to the data directory so the TUI keeps
// stdout. Falls back to a no-op logger when the file cannot be opened.
func newLogger() *zap.Logger {
	logPath := filepath.Join(filepath.Dir(model.DefaultStatePath()), "portal-notify.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return zap.NewNop()
	}

	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{logPath}
	cfg.ErrorOutputPaths = []string{logPath}

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
