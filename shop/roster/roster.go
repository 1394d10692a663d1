// Package roster keeps the append-only set of users the bot has talked to.
// Broadcasts go to every id in it.
package roster

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/m3rciful/shopbot/core/logger"
)

const component = "roster"

// Store persists roster ids.
type Store interface {
	Load(ctx context.Context) ([]int64, error)
	// Append persists a newly seen id.
	Append(ctx context.Context, id int64) error
}

// Roster is the in-memory id set backed by a Store.
type Roster struct {
	store Store

	mu    sync.RWMutex
	seen  map[int64]struct{}
	order []int64
}

// Open loads the roster from store.
func Open(ctx context.Context, store Store) (*Roster, error) {
	if store == nil {
		return nil, errors.New("roster: nil store")
	}
	ids, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	r := &Roster{store: store, seen: make(map[int64]struct{}, len(ids))}
	for _, id := range ids {
		if _, dup := r.seen[id]; dup {
			continue
		}
		r.seen[id] = struct{}{}
		r.order = append(r.order, id)
	}
	logger.Info(ctx, component, "roster.loaded", slog.Int("users", len(r.order)))
	return r, nil
}

// Add records id and persists it when it is new. Persistence failures are
// logged and do not undo the in-memory insert.
func (r *Roster) Add(ctx context.Context, id int64) bool {
	if id == 0 {
		return false
	}
	r.mu.Lock()
	if _, ok := r.seen[id]; ok {
		r.mu.Unlock()
		return false
	}
	r.seen[id] = struct{}{}
	r.order = append(r.order, id)
	// Saving under the lock keeps the file writes in insertion order.
	err := r.store.Append(ctx, id)
	r.mu.Unlock()

	if err != nil {
		logger.Warn(ctx, component, "roster.save_failed",
			slog.Int64("user_id", id),
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return true
	}
	logger.Debug(ctx, component, "roster.added", slog.Int64("user_id", id))
	return true
}

// Contains reports whether id has been seen.
func (r *Roster) Contains(id int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.seen[id]
	return ok
}

// IDs returns every id in first-seen order.
func (r *Roster) IDs() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]int64(nil), r.order...)
}

// Len returns the number of known users.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
