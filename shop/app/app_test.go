package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/shopbot/core/bootstrap"
	"github.com/m3rciful/shopbot/core/clock"
	coreconfig "github.com/m3rciful/shopbot/core/config"
	coredatabase "github.com/m3rciful/shopbot/core/database"
	tg "github.com/m3rciful/shopbot/core/telegram"
	"github.com/m3rciful/shopbot/shop/bot"
	"github.com/m3rciful/shopbot/shop/config"
)

func loadConfig(t *testing.T, driver string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	body := `
telegram:
  token: "123:abc"
  admin_id: 42
database:
  name: shop
shop:
  crypto:
    address: "TXYZ"
  roster:
    driver: ` + driver + `
    path: ` + filepath.Join(dir, "roster.yaml") + `
`
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func quietLogger(*coreconfig.Config) error { return nil }

func TestNewWiresFileRoster(t *testing.T) {
	cfg := loadConfig(t, "file")
	a, err := New(cfg, Options{
		Bootstrap: bootstrap.Options{LoggerInit: quietLogger},
		Clock:     clock.Fake(time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)),
	})
	require.NoError(t, err)

	assert.True(t, a.Roster.Add(context.Background(), 7))
	reopened, err := OpenRoster(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.True(t, reopened.Contains(7))

	_, cmd, ok := a.Registry().LookupCommand("/broadcast hi")
	require.True(t, ok)
	assert.True(t, cmd.AdminOnly)

	opts, err := a.TelegramRunOptions()
	require.NoError(t, err)
	assert.Equal(t, bot.AllowedUpdates, opts.AllowedUpdates)
	assert.Same(t, cfg.CoreConfig(), opts.Config)
	require.NotEmpty(t, opts.Middlewares)
	assert.Equal(t, "roster", opts.Middlewares[len(opts.Middlewares)-1].Name)

	endpoints := map[any]bool{}
	for _, r := range opts.Routes {
		endpoints[r.Endpoint] = true
	}
	for _, want := range []string{tele.OnText, tele.OnPhoto, tele.OnCallback, tele.OnCheckout, tele.OnPayment, "/start"} {
		assert.True(t, endpoints[want], want)
	}

	assert.Error(t, opts.OnStart(context.Background(), tg.Runtime{}))
	require.NoError(t, opts.OnStop(context.Background(), tg.Runtime{}))
}

func TestNewPropagatesDatabaseFailure(t *testing.T) {
	cfg := loadConfig(t, "postgres")
	boom := errors.New("connection refused")
	_, err := New(cfg, Options{Bootstrap: bootstrap.Options{
		LoggerInit: quietLogger,
		Connect:    func(coredatabase.Config) (*sqlx.DB, error) { return nil, boom },
	}})
	assert.ErrorIs(t, err, boom)
}

func TestOpenRosterNeedsDatabaseForPostgres(t *testing.T) {
	cfg := loadConfig(t, "postgres")
	_, err := OpenRoster(context.Background(), cfg, nil)
	assert.Error(t, err)
}
