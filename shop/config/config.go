// Package config loads the shop bot configuration: the reusable core
// sections plus the database and the shop itself.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	coreconfig "github.com/m3rciful/shopbot/core/config"
	coredatabase "github.com/m3rciful/shopbot/core/database"
	"github.com/m3rciful/shopbot/shop/catalog"
)

const (
	// RosterFile keeps the roster in a YAML file.
	RosterFile = "file"
	// RosterPostgres keeps the roster in the roster_users table.
	RosterPostgres = "postgres"
)

// ServiceConfig describes one catalog entry.
type ServiceConfig struct {
	Key         string `yaml:"key"`
	Name        string `yaml:"name"`
	PriceStars  int64  `yaml:"price_stars"`
	PriceCrypto string `yaml:"price_crypto"`
}

// CryptoConfig holds the manual crypto payment details.
type CryptoConfig struct {
	Address  string `yaml:"address" envconfig:"SHOP_CRYPTO_ADDRESS"`
	Currency string `yaml:"currency" envconfig:"SHOP_CRYPTO_CURRENCY"`
}

// CountdownConfig sets the support countdown after an order is submitted.
type CountdownConfig struct {
	DeadlineSeconds int `yaml:"deadline_seconds" envconfig:"SHOP_COUNTDOWN_DEADLINE_SECONDS"`
	TickSeconds     int `yaml:"tick_seconds" envconfig:"SHOP_COUNTDOWN_TICK_SECONDS"`
}

// RosterConfig selects where known user ids are persisted.
type RosterConfig struct {
	Driver string `yaml:"driver" envconfig:"SHOP_ROSTER_DRIVER"`
	Path   string `yaml:"path" envconfig:"SHOP_ROSTER_PATH"`
}

// ShopConfig is the commerce part of the configuration.
type ShopConfig struct {
	Services           []ServiceConfig `yaml:"services"`
	Crypto             CryptoConfig    `yaml:"crypto"`
	StarsCurrency      string          `yaml:"stars_currency" envconfig:"SHOP_STARS_CURRENCY"`
	Countdown          CountdownConfig `yaml:"countdown"`
	SupportContact     string          `yaml:"support_contact" envconfig:"SHOP_SUPPORT_CONTACT"`
	BroadcastPerSecond float64         `yaml:"broadcast_per_second" envconfig:"SHOP_BROADCAST_PER_SECOND"`
	OrderNodeID        int64           `yaml:"order_node_id" envconfig:"SHOP_ORDER_NODE_ID"`
	// AdminChatID receives order cards; defaults to telegram.admin_id.
	AdminChatID int64        `yaml:"admin_chat_id" envconfig:"SHOP_ADMIN_CHAT_ID"`
	Roster      RosterConfig `yaml:"roster"`
}

// Config is the full configuration of the shop bot.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database coredatabase.Config `yaml:"database"`
	Shop     ShopConfig          `yaml:"shop"`
}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Config
}

// Deadline returns the support countdown length.
func (c ShopConfig) Deadline() time.Duration {
	return time.Duration(c.Countdown.DeadlineSeconds) * time.Second
}

// TickInterval returns how often the countdown anchor is refreshed.
func (c ShopConfig) TickInterval() time.Duration {
	return time.Duration(c.Countdown.TickSeconds) * time.Second
}

// UsesPostgres reports whether the roster needs a database.
func (c *Config) UsesPostgres() bool {
	return c.Shop.Roster.Driver == RosterPostgres
}

// Catalog builds the service catalog. An empty list falls back to the
// built-in services.
func (c ShopConfig) Catalog() (*catalog.Catalog, error) {
	if len(c.Services) == 0 {
		return catalog.New(catalog.Defaults())
	}
	services := make([]catalog.Service, 0, len(c.Services))
	for _, s := range c.Services {
		price := decimal.Zero
		if raw := strings.TrimSpace(s.PriceCrypto); raw != "" {
			p, err := decimal.NewFromString(raw)
			if err != nil {
				return nil, fmt.Errorf("shop.services[%s].price_crypto: %w", s.Key, err)
			}
			price = p
		}
		services = append(services, catalog.Service{
			Key:         s.Key,
			Name:        s.Name,
			PriceStars:  s.PriceStars,
			PriceCrypto: price,
		})
	}
	return catalog.New(services)
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates the configuration and fills shop defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return err
	}
	if cfg.Telegram.AdminID == 0 {
		return fmt.Errorf("telegram.admin_id is required")
	}

	s := &cfg.Shop
	if s.StarsCurrency == "" {
		s.StarsCurrency = "XTR"
	}
	if s.Crypto.Currency == "" {
		s.Crypto.Currency = "USDT"
	}
	if s.Countdown.DeadlineSeconds == 0 {
		s.Countdown.DeadlineSeconds = 180
	}
	if s.Countdown.TickSeconds == 0 {
		s.Countdown.TickSeconds = 60
	}
	if s.Countdown.DeadlineSeconds < 0 || s.Countdown.TickSeconds < 0 {
		return fmt.Errorf("shop.countdown values must be > 0")
	}
	if s.BroadcastPerSecond == 0 {
		s.BroadcastPerSecond = 25
	}
	if s.BroadcastPerSecond < 0 {
		return fmt.Errorf("shop.broadcast_per_second must be >= 0")
	}
	if s.OrderNodeID < 0 || s.OrderNodeID > 1023 {
		return fmt.Errorf("shop.order_node_id must be within 0..1023")
	}
	if s.AdminChatID == 0 {
		s.AdminChatID = cfg.Telegram.AdminID
	}

	driver := strings.ToLower(strings.TrimSpace(s.Roster.Driver))
	if driver == "" {
		driver = RosterFile
	}
	switch driver {
	case RosterFile:
		if strings.TrimSpace(s.Roster.Path) == "" {
			s.Roster.Path = "data/roster.yaml"
		}
	case RosterPostgres:
		if strings.TrimSpace(cfg.Database.Name) == "" {
			return fmt.Errorf("database.name is required when shop.roster.driver is 'postgres'")
		}
	default:
		return fmt.Errorf("invalid shop.roster.driver %q; allowed: file, postgres", s.Roster.Driver)
	}
	s.Roster.Driver = driver

	if _, err := s.Catalog(); err != nil {
		return err
	}
	return nil
}
