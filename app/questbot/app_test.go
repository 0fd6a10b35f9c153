package questbot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/questbot/questbot/app/questbot/types"
	"github.com/questbot/questbot/pkg/layout"
	"github.com/questbot/questbot/pkg/ledger"
)

func newTestApp(header ...string) (*types.App, *ledger.MemoryStore) {
	lay := layout.Default()
	if len(header) == 0 {
		header = lay.Header()
	}
	store := ledger.NewMemoryStore(header)
	return &types.App{
		Layout:   lay,
		Store:    store,
		Updater:  ledger.NewUpdater(store, lay.Schema(), zap.NewNop()),
		CronSpec: "0 * * * * *",
		Logger:   zap.NewNop(),
	}, store
}

func TestCheckTemplate(t *testing.T) {
	app, _ := newTestApp()
	assert.False(t, app.Ready())

	CheckTemplate(context.Background(), app)
	assert.True(t, app.Ready())
	checkedAt, err := app.TemplateStatus()
	assert.NoError(t, err)
	assert.False(t, checkedAt.IsZero())
}

func TestCheckTemplateMissingColumn(t *testing.T) {
	app, _ := newTestApp("discord nickname", "Discord Username", "Quest")
	CheckTemplate(context.Background(), app)
	assert.False(t, app.Ready())
	_, err := app.TemplateStatus()
	assert.ErrorIs(t, err, ledger.ErrColumnNotFound)
}

func TestSetupScheduler(t *testing.T) {
	app, _ := newTestApp()
	require.NoError(t, SetupScheduler(context.Background(), app))
	assert.NotNil(t, app.Cron)
	assert.Len(t, app.Cron.Entries(), 1)
	assert.True(t, app.Ready(), "first check runs before serving")

	app, _ = newTestApp()
	app.CronSpec = "not a spec"
	assert.Error(t, SetupScheduler(context.Background(), app))
}

func TestNewStoreBackends(t *testing.T) {
	t.Setenv("LEDGER_BACKEND", "memory")
	store, err := newStore(context.Background(), zap.NewNop(), layout.Default())
	require.NoError(t, err)
	header, err := store.ReadRow(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, layout.Default().Header(), header)

	t.Setenv("LEDGER_BACKEND", "csv")
	_, err = newStore(context.Background(), zap.NewNop(), layout.Default())
	assert.Error(t, err)
}
