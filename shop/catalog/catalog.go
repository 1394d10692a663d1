// Package catalog holds the purchasable services offered by the bot.
package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Service is a single purchasable item.
type Service struct {
	Key         string
	Name        string
	PriceStars  int64
	PriceCrypto decimal.Decimal
}

// Catalog is an immutable, ordered set of services.
type Catalog struct {
	order []string
	byKey map[string]Service
}

// Defaults mirrors the services the bot shipped with.
func Defaults() []Service {
	return []Service{
		{Key: "yt_premium", Name: "YouTube Premium", PriceStars: 500, PriceCrypto: decimal.RequireFromString("6.5")},
		{Key: "disney", Name: "Disney+", PriceStars: 450, PriceCrypto: decimal.RequireFromString("5.9")},
		{Key: "adobe", Name: "Adobe", PriceStars: 250, PriceCrypto: decimal.RequireFromString("3.2")},
		{Key: "chatgpt_1m", Name: "ChatGPT 1 Month", PriceStars: 1, PriceCrypto: decimal.RequireFromString("0.1")},
	}
}

// New validates services and builds a Catalog preserving their order.
func New(services []Service) (*Catalog, error) {
	if len(services) == 0 {
		return nil, errors.New("catalog: no services configured")
	}
	c := &Catalog{byKey: make(map[string]Service, len(services))}
	for _, s := range services {
		s.Key = strings.TrimSpace(s.Key)
		switch {
		case s.Key == "":
			return nil, errors.New("catalog: service key is required")
		case strings.ContainsAny(s.Key, "|\f"):
			return nil, fmt.Errorf("catalog: service key %q contains reserved characters", s.Key)
		case s.PriceStars <= 0:
			return nil, fmt.Errorf("catalog: service %q must have a positive stars price", s.Key)
		case s.PriceCrypto.IsNegative():
			return nil, fmt.Errorf("catalog: service %q has a negative crypto price", s.Key)
		}
		if _, dup := c.byKey[s.Key]; dup {
			return nil, fmt.Errorf("catalog: duplicate service key %q", s.Key)
		}
		if strings.TrimSpace(s.Name) == "" {
			s.Name = s.Key
		}
		c.byKey[s.Key] = s
		c.order = append(c.order, s.Key)
	}
	return c, nil
}

// Lookup returns the service registered under key.
func (c *Catalog) Lookup(key string) (Service, bool) {
	s, ok := c.byKey[key]
	return s, ok
}

// List returns services in configured order.
func (c *Catalog) List() []Service {
	out := make([]Service, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.byKey[k])
	}
	return out
}
