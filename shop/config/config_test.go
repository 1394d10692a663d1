package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/shopbot/core/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const sample = `
telegram:
  token: "123:abc"
  admin_id: 42
logging:
  level: info
database:
  name: shop
shop:
  crypto:
    address: "TXYZ"
  support_contact: "@help"
  services:
    - key: vpn
      name: VPN
      price_stars: 100
      price_crypto: "1.25"
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, coreconfig.RunModeLongpoll, cfg.Telegram.RunMode)
	assert.Equal(t, 30, cfg.Telegram.HTTPTimeoutSeconds)
	assert.Equal(t, 2, cfg.Telegram.SendRetries)
	assert.Equal(t, "XTR", cfg.Shop.StarsCurrency)
	assert.Equal(t, "USDT", cfg.Shop.Crypto.Currency)
	assert.Equal(t, 180*time.Second, cfg.Shop.Deadline())
	assert.Equal(t, 60*time.Second, cfg.Shop.TickInterval())
	assert.Equal(t, int64(42), cfg.Shop.AdminChatID)
	assert.Equal(t, 25.0, cfg.Shop.BroadcastPerSecond)
	assert.Equal(t, RosterFile, cfg.Shop.Roster.Driver)
	assert.Equal(t, "data/roster.yaml", cfg.Shop.Roster.Path)
	assert.False(t, cfg.UsesPostgres())
	assert.Same(t, &cfg.Config, cfg.CoreConfig())

	cat, err := cfg.Shop.Catalog()
	require.NoError(t, err)
	svc, ok := cat.Lookup("vpn")
	require.True(t, ok)
	assert.Equal(t, "1.25", svc.PriceCrypto.String())
}

func TestEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("BOT_TOKEN", "999:env")
	t.Setenv("SHOP_ROSTER_DRIVER", "postgres")
	t.Setenv("SHOP_COUNTDOWN_DEADLINE_SECONDS", "30")

	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)
	assert.Equal(t, "999:env", cfg.Telegram.Token)
	assert.True(t, cfg.UsesPostgres())
	assert.Equal(t, 30*time.Second, cfg.Shop.Deadline())
}

func TestEmptyServicesFallBackToDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "telegram:\n  token: t\n  admin_id: 1\n"))
	require.NoError(t, err)
	cat, err := cfg.Shop.Catalog()
	require.NoError(t, err)
	assert.NotEmpty(t, cat.List())
}

func TestNormalizeRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"no admin":       "telegram:\n  token: t\n",
		"bad driver":     "telegram:\n  token: t\n  admin_id: 1\nshop:\n  roster:\n    driver: redis\n",
		"postgres no db": "telegram:\n  token: t\n  admin_id: 1\nshop:\n  roster:\n    driver: postgres\n",
		"bad price":      "telegram:\n  token: t\n  admin_id: 1\nshop:\n  services:\n    - key: a\n      price_stars: 1\n      price_crypto: lots\n",
		"bad node":       "telegram:\n  token: t\n  admin_id: 1\nshop:\n  order_node_id: 5000\n",
		"bad retries":    "telegram:\n  token: t\n  admin_id: 1\n  send_retries: -1\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
	assert.Error(t, Normalize(nil))
}
