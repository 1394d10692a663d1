// Package countdown runs one periodic countdown per session. Each tick
// edits a message in place; the last one unlocks it.
package countdown

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/shopbot/core/clock"
	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/shop/chat"
)

const component = "countdown"

// Timer describes a countdown bound to a message.
type Timer struct {
	SessionKey int64
	Anchor     chat.MessageRef
	StartedAt  time.Time
	Deadline   time.Duration
	Interval   time.Duration
	// Label is opaque to the scheduler and handed back to the Notifier.
	Label string
}

// Remaining returns the time left at now.
func (t Timer) Remaining(now time.Time) time.Duration {
	return t.Deadline - now.Sub(t.StartedAt)
}

// Notifier renders countdown updates. An error means the anchor is gone
// and the countdown stops.
type Notifier interface {
	Tick(ctx context.Context, t Timer, remaining time.Duration) error
	Expire(ctx context.Context, t Timer) error
}

type entry struct {
	mu        sync.Mutex
	ctx       context.Context
	spec      Timer
	pending   *clock.Timer
	cancelled bool
	ticks     int
}

// Scheduler owns the active countdowns, keyed by session.
type Scheduler struct {
	clock    clock.Clock
	notifier Notifier

	mu      sync.Mutex
	entries map[int64]*entry
}

// New returns a Scheduler that reports through n.
func New(c clock.Clock, n Notifier) *Scheduler {
	if c == nil {
		c = clock.Real()
	}
	return &Scheduler{
		clock:    c,
		notifier: n,
		entries:  make(map[int64]*entry),
	}
}

// Start registers t, replacing and cancelling any countdown already
// running for the same session. A zero StartedAt means now.
func (s *Scheduler) Start(ctx context.Context, t Timer) error {
	if t.Deadline <= 0 {
		return fmt.Errorf("countdown: deadline must be positive, got %s", t.Deadline)
	}
	if t.Interval <= 0 {
		return fmt.Errorf("countdown: interval must be positive, got %s", t.Interval)
	}
	if t.StartedAt.IsZero() {
		t.StartedAt = s.clock.Now()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	e := &entry{ctx: context.WithoutCancel(ctx), spec: t}

	s.mu.Lock()
	prev := s.entries[t.SessionKey]
	s.entries[t.SessionKey] = e
	s.mu.Unlock()

	if prev != nil {
		prev.cancel()
		logger.Debug(ctx, component, "timer.replaced",
			slog.Int64("user_id", t.SessionKey),
			slog.Int("ticks", prev.ticks),
		)
	}

	e.mu.Lock()
	if !e.cancelled {
		e.pending = s.clock.AfterFunc(s.nextDelay(e.spec), func() { s.fire(e) })
	}
	e.mu.Unlock()

	logger.Info(ctx, component, "timer.started",
		slog.Int64("user_id", t.SessionKey),
		slog.Int64("chat_id", t.Anchor.ChatID),
		slog.Duration("deadline", t.Deadline),
		slog.Duration("interval", t.Interval),
	)
	return nil
}

// Cancel stops the countdown for sessionKey. Once it returns no further
// notifications are issued for that countdown.
func (s *Scheduler) Cancel(sessionKey int64) bool {
	s.mu.Lock()
	e, ok := s.entries[sessionKey]
	if ok {
		delete(s.entries, sessionKey)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	e.cancel()
	return true
}

// Active reports whether a countdown is running for sessionKey.
func (s *Scheduler) Active(sessionKey int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[sessionKey]
	return ok
}

// Len returns the number of running countdowns.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stop cancels every running countdown.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	entries := make([]*entry, 0, len(s.entries))
	for key, e := range s.entries {
		entries = append(entries, e)
		delete(s.entries, key)
	}
	s.mu.Unlock()
	for _, e := range entries {
		e.cancel()
	}
}

func (e *entry) cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelled = true
	e.pending.Stop()
}

func (s *Scheduler) nextDelay(t Timer) time.Duration {
	remaining := t.Remaining(s.clock.Now())
	if remaining < t.Interval {
		if remaining < 0 {
			return 0
		}
		return remaining
	}
	return t.Interval
}

// fire runs one tick. It holds the entry lock for the whole notification
// so Cancel cannot return while an update is still in flight.
func (s *Scheduler) fire(e *entry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancelled {
		return
	}

	ctx := e.ctx
	remaining := e.spec.Remaining(s.clock.Now())
	if remaining <= 0 {
		e.cancelled = true
		s.release(e)
		if err := s.notifier.Expire(ctx, e.spec); err != nil {
			logger.Warn(ctx, component, "timer.expire_failed",
				slog.Int64("user_id", e.spec.SessionKey),
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
			return
		}
		logger.Info(ctx, component, "timer.expired",
			slog.Int64("user_id", e.spec.SessionKey),
			slog.Int("ticks", e.ticks),
		)
		return
	}

	e.ticks++
	if err := s.notifier.Tick(ctx, e.spec, remaining); err != nil {
		e.cancelled = true
		s.release(e)
		logger.Warn(ctx, component, "timer.self_cancel",
			slog.Int64("user_id", e.spec.SessionKey),
			slog.String("status", "cancelled"),
			slog.String("err", err.Error()),
		)
		return
	}
	e.pending = s.clock.AfterFunc(s.nextDelay(e.spec), func() { s.fire(e) })
}

// release drops e from the registry unless it was already replaced.
func (s *Scheduler) release(e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.entries[e.spec.SessionKey]; ok && cur == e {
		delete(s.entries, e.spec.SessionKey)
	}
}

// FormatRemaining renders d as MM:SS, rounding up to whole seconds.
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64((d + time.Second - 1) / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
