// Package ledger records submitted orders and their moderation status for
// the lifetime of the process.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"

	"github.com/m3rciful/shopbot/core/clock"
	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/shop/session"
	"github.com/m3rciful/shopbot/shop/texts"
)

const component = "ledger"

var (
	// ErrOrderNotFound is returned for ids the ledger has never issued.
	ErrOrderNotFound = errors.New("ledger: order not found")
	// ErrInvalidStatus is returned when a transition targets a non-terminal status.
	ErrInvalidStatus = errors.New("ledger: invalid target status")
)

// Status is the moderation status of an order.
type Status string

const (
	StatusWaitingAdmin Status = "WAITING_ADMIN"
	StatusConfirmed    Status = "CONFIRMED"
	StatusCancelled    Status = "CANCELLED"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusCancelled
}

// ID identifies an order. It is derived from the creation time.
type ID = snowflake.ID

// ParseID parses the decimal form of an order id.
func ParseID(s string) (ID, error) {
	id, err := snowflake.ParseString(strings.TrimPrefix(strings.TrimSpace(s), "#"))
	if err != nil {
		return 0, fmt.Errorf("ledger: parse order id %q: %w", s, err)
	}
	return id, nil
}

// Order is a submitted checkout awaiting or past moderation.
type Order struct {
	ID            ID
	UserID        int64
	ChatID        int64
	CustomerName  string
	CustomerLogin string
	Language      texts.Lang
	ServiceKey    string
	ServiceName   string
	PaymentMethod session.Method
	PaidAmount    decimal.Decimal
	Currency      string
	PaymentRef    string
	Email         string
	ScreenshotRef string
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Ledger is an in-memory, concurrency-safe order book.
type Ledger struct {
	node  *snowflake.Node
	clock clock.Clock

	mu     sync.RWMutex
	orders map[ID]*Order
}

// New creates a Ledger issuing ids from the given snowflake node.
func New(nodeID int64, c clock.Clock) (*Ledger, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("ledger: snowflake node %d: %w", nodeID, err)
	}
	if c == nil {
		c = clock.Real()
	}
	return &Ledger{
		node:   node,
		clock:  c,
		orders: make(map[ID]*Order),
	}, nil
}

// Create assigns a fresh id, sets the status to WAITING_ADMIN and stores
// the order. Caller-provided id, status and timestamps are ignored.
func (l *Ledger) Create(ctx context.Context, o Order) (Order, error) {
	if o.UserID == 0 {
		return Order{}, errors.New("ledger: order without user")
	}
	if o.ServiceKey == "" {
		return Order{}, errors.New("ledger: order without service")
	}

	l.mu.Lock()
	o.ID = l.node.Generate()
	for {
		if _, taken := l.orders[o.ID]; !taken {
			break
		}
		o.ID = l.node.Generate()
	}
	now := l.clock.Now()
	o.Status = StatusWaitingAdmin
	o.CreatedAt = now
	o.UpdatedAt = now
	stored := o
	l.orders[o.ID] = &stored
	l.mu.Unlock()

	logger.Info(ctx, component, "order.created",
		slog.String("order_id", o.ID.String()),
		slog.Int64("user_id", o.UserID),
		slog.String("service", o.ServiceKey),
		slog.String("method", string(o.PaymentMethod)),
		slog.String("amount", o.PaidAmount.String()),
		slog.String("email", o.Email),
	)
	return o, nil
}

// Get returns a copy of the order.
func (l *Ledger) Get(id ID) (Order, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	o, ok := l.orders[id]
	if !ok {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	return *o, nil
}

// Transition moves a waiting order to the terminal status to and returns
// the status it had before. Orders already in a terminal status are left
// untouched and their current status is returned without error, so the
// caller can tell whether a real transition happened.
func (l *Ledger) Transition(ctx context.Context, id ID, to Status) (Status, error) {
	if !to.Terminal() {
		return "", fmt.Errorf("%w: %s", ErrInvalidStatus, to)
	}
	l.mu.Lock()
	o, ok := l.orders[id]
	if !ok {
		l.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	prev := o.Status
	if prev.Terminal() {
		l.mu.Unlock()
		logger.Debug(ctx, component, "order.transition.noop",
			slog.String("order_id", id.String()),
			slog.String("status", "skip"),
			slog.String("current", string(prev)),
			slog.String("requested", string(to)),
		)
		return prev, nil
	}
	o.Status = to
	o.UpdatedAt = l.clock.Now()
	l.mu.Unlock()

	logger.Info(ctx, component, "order.transition",
		slog.String("order_id", id.String()),
		slog.String("from", string(prev)),
		slog.String("to", string(to)),
	)
	return prev, nil
}

// List returns orders most recent first, optionally restricted to the
// given statuses.
func (l *Ledger) List(statuses ...Status) []Order {
	l.mu.RLock()
	out := make([]Order, 0, len(l.orders))
	for _, o := range l.orders {
		if len(statuses) > 0 && !containsStatus(statuses, o.Status) {
			continue
		}
		out = append(out, *o)
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// Len returns the number of orders.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.orders)
}

func containsStatus(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
