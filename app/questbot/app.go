package questbot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/questbot/questbot/app/questbot/discord"
	"github.com/questbot/questbot/app/questbot/types"
	"github.com/questbot/questbot/pkg/command"
	"github.com/questbot/questbot/pkg/layout"
	"github.com/questbot/questbot/pkg/ledger"
	"github.com/questbot/questbot/pkg/logging"
	"github.com/questbot/questbot/pkg/redis"
	"github.com/questbot/questbot/pkg/retry"
	"github.com/questbot/questbot/pkg/sheets"
	"github.com/questbot/questbot/pkg/utils"
)

const (
	backendSheets = "sheets"
	backendMemory = "memory"
)

func Initialize(ctx context.Context) *types.App {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr
		panic(err)
	}

	lay := layout.Default()
	if path := utils.Env("LEDGER_LAYOUT_FILE", ""); path != "" {
		lay, err = layout.Load(path)
		if err != nil {
			logger.Fatal("Unable to load ledger layout", zap.String("path", path), zap.Error(err))
		}
		logger.Info("Ledger layout loaded", zap.String("path", path))
	}

	store, err := newStore(ctx, logger, lay)
	if err != nil {
		logger.Fatal("Unable to initialize ledger store", zap.Error(err))
	}

	// Initialize Redis client for the cross-process ledger lock and the live feed (optional)
	var redisClient *redis.Client
	if utils.EnvBool("REDIS_ENABLED", false) {
		redisClient, err = redis.NewClient(ctx, logger)
		if err != nil {
			logger.Warn("Failed to initialize Redis client - ledger lock and live feed will be disabled",
				zap.Error(err))
			redisClient = nil
		} else {
			logger.Info("Redis client initialized for ledger lock and live feed")
		}
	} else {
		logger.Info("Redis disabled - ledger lock and live feed will not be available")
	}

	updater := ledger.NewUpdater(store, lay.Schema(), logger)

	cfg := command.Config{
		Ledger:  updater,
		Layout:  lay,
		Logger:  logger,
		Timeout: utils.EnvDuration("COMMAND_TIMEOUT", 30*time.Second),
	}
	if redisClient != nil {
		key := "questbot:lock:" + utils.Env("SHEETS_SPREADSHEET_ID", backendMemory)
		cfg.Locker = redisClient.NewLock(key, utils.EnvDuration("LEDGER_LOCK_TTL", 30*time.Second))
		cfg.Publisher = redisClient
	}
	dispatcher, err := command.NewDispatcher(cfg)
	if err != nil {
		logger.Fatal("Unable to initialize dispatcher", zap.Error(err))
	}

	app := &types.App{
		Layout:      lay,
		Store:       store,
		Updater:     updater,
		Dispatcher:  dispatcher,
		RedisClient: redisClient,
		CronSpec:    utils.Env("TEMPLATE_CHECK_CRON", "0 * * * * *"),
		Logger:      logger,
	}

	if utils.EnvBool("DISCORD_ENABLED", true) {
		transport, err := discord.New(discord.ConfigFromEnv(), dispatcher, logger)
		if err != nil {
			logger.Fatal("Unable to initialize discord transport", zap.Error(err))
		}
		app.Transport = transport
	} else {
		logger.Info("Discord disabled - commands are only accepted over HTTP")
	}

	if err := SetupScheduler(ctx, app); err != nil {
		logger.Fatal("Unable to setup template check scheduler", zap.Error(err))
	}

	return app
}

// newStore connects the configured ledger backend. The Sheets connection is retried
// with backoff since the API rejects bursts at startup.
func newStore(ctx context.Context, logger *zap.Logger, lay *layout.Layout) (ledger.Store, error) {
	backend := utils.Env("LEDGER_BACKEND", backendSheets)
	switch backend {
	case backendMemory:
		logger.Warn("Using in-memory ledger - points are lost on restart")
		return ledger.NewMemoryStore(lay.Header()), nil
	case backendSheets:
		var store *sheets.Store
		err := retry.WithBackoff(ctx, retry.DefaultConfig(), logger, "connect google sheets", func() error {
			var err error
			store, err = sheets.New(ctx, sheets.ConfigFromEnv(), logger)
			if errors.Is(err, sheets.ErrMisconfigured) {
				return retry.Permanent(err)
			}
			return err
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown LEDGER_BACKEND %q", backend)
	}
}

// SetupScheduler sets up the cron scheduler running the template check.
// The first check runs synchronously so readiness is known before serving.
func SetupScheduler(ctx context.Context, app *types.App) error {
	// Seconds field, optional
	app.Cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cron.DefaultLogger)))

	_, err := app.Cron.AddFunc(app.CronSpec, func() {
		// keep each run bounded
		rctx, cancel := context.WithTimeout(ctx, 25*time.Second)
		defer cancel()
		CheckTemplate(rctx, app)
	})
	if err != nil {
		return fmt.Errorf("invalid TEMPLATE_CHECK_CRON %q: %w", app.CronSpec, err)
	}

	rctx, cancel := context.WithTimeout(ctx, 25*time.Second)
	defer cancel()
	CheckTemplate(rctx, app)
	return nil
}

// CheckTemplate reads the ledger header row and verifies every configured column resolves.
func CheckTemplate(ctx context.Context, app *types.App) {
	header, err := app.Store.ReadRow(ctx, 1)
	if err == nil {
		err = app.Updater.Schema().Validate(header)
	}

	wasReady := app.Ready()
	app.SetTemplateStatus(err)

	switch {
	case err != nil:
		app.Logger.Warn("Ledger template check failed", zap.Error(err))
	case !wasReady:
		app.Logger.Info("Ledger template check passed", zap.Int("columns", len(header)))
	}
}
