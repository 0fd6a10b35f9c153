package types

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/questbot/questbot/pkg/command"
	"github.com/questbot/questbot/pkg/layout"
	"github.com/questbot/questbot/pkg/ledger"
	"github.com/questbot/questbot/pkg/redis"
	"github.com/questbot/questbot/pkg/retry"
)

// Transport is a chat connection feeding the dispatcher.
type Transport interface {
	Open(ctx context.Context) error
	Close() error
}

type App struct {
	// Layout maps commands to ledger columns.
	Layout *layout.Layout

	// Store is the tabular ledger backend (Google Sheets or in-memory).
	Store ledger.Store

	// Updater applies point deltas to the ledger.
	Updater *ledger.Updater

	// Dispatcher serializes chat commands onto the ledger.
	Dispatcher *command.Dispatcher

	// Redis Client (ledger lock and live outcome feed), nil when disabled
	RedisClient *redis.Client

	// Transport is the chat connection, nil when running HTTP-only.
	Transport Transport

	// Cron runs the periodic template check, according to CronSpec.
	Cron     *cron.Cron
	CronSpec string

	// Zap Logger
	Logger *zap.Logger

	// HTTP Server
	Server *http.Server

	mu          sync.RWMutex
	checked     bool
	templateErr error
	checkedAt   time.Time
}

// SetTemplateStatus records the result of the latest template check.
func (a *App) SetTemplateStatus(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.checked = true
	a.templateErr = err
	a.checkedAt = time.Now().UTC()
}

// TemplateStatus returns the latest template check result. checkedAt is zero before the first check.
func (a *App) TemplateStatus() (checkedAt time.Time, err error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.checked {
		return time.Time{}, errors.New("template not checked yet")
	}
	return a.checkedAt, a.templateErr
}

// Ready reports whether the ledger template passed its latest check.
func (a *App) Ready() bool {
	_, err := a.TemplateStatus()
	return err == nil
}

// Start starts the application and blocks until ctx is done.
func (a *App) Start(ctx context.Context) {
	if a.Cron != nil {
		a.Cron.Start()
		a.Logger.Info("Cron started", zap.String("cronSpec", a.CronSpec))
	}

	if a.Transport != nil {
		err := retry.WithBackoff(ctx, retry.DefaultConfig(), a.Logger, "open chat transport", func() error {
			return a.Transport.Open(ctx)
		})
		if err != nil {
			a.Logger.Fatal("Unable to open chat transport", zap.Error(err))
		}
		a.Logger.Info("Chat transport connected")
	}

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("HTTP server stopped", zap.Error(err))
		}
	}()
	<-ctx.Done()

	if a.Transport != nil {
		a.Logger.Info("Closing chat transport")
		if err := a.Transport.Close(); err != nil {
			a.Logger.Error("Failed to close chat transport", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error("Failed to shutdown HTTP server", zap.Error(err))
	}

	if a.Cron != nil {
		<-a.Cron.Stop().Done()
	}

	if a.Dispatcher != nil {
		a.Logger.Info("Draining ledger dispatcher")
		a.Dispatcher.Stop()
	}

	if a.RedisClient != nil {
		a.Logger.Info("Closing Redis connection")
		if err := a.RedisClient.Close(); err != nil {
			a.Logger.Error("Failed to close Redis connection", zap.Error(err))
		}
	}

	a.Logger.Info("さようなら!")
	_ = a.Logger.Sync()
}
