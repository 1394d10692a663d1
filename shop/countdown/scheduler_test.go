package countdown

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/shopbot/core/clock"
	"github.com/m3rciful/shopbot/shop/chat"
)

var epoch = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

type event struct {
	kind      string
	at        time.Duration
	anchor    chat.MessageRef
	remaining time.Duration
}

type recorder struct {
	clock    *clock.FakeClock
	mu       sync.Mutex
	events   []event
	failTick bool
}

func (r *recorder) Tick(_ context.Context, t Timer, remaining time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failTick {
		return errors.New("message to edit not found")
	}
	r.events = append(r.events, event{kind: "tick", at: r.clock.Now().Sub(epoch), anchor: t.Anchor, remaining: remaining})
	return nil
}

func (r *recorder) Expire(_ context.Context, t Timer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{kind: "expire", at: r.clock.Now().Sub(epoch), anchor: t.Anchor})
	return nil
}

func (r *recorder) all() []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event(nil), r.events...)
}

func newScheduler() (*Scheduler, *recorder, *clock.FakeClock) {
	c := clock.Fake(epoch)
	rec := &recorder{clock: c}
	return New(c, rec), rec, c
}

func anchor(id int) chat.MessageRef { return chat.MessageRef{ChatID: 100, MessageID: id} }

func TestCountdownTicksAndExpiresOnce(t *testing.T) {
	s, rec, c := newScheduler()
	require.NoError(t, s.Start(context.Background(), Timer{
		SessionKey: 1,
		Anchor:     anchor(1),
		Deadline:   180 * time.Second,
		Interval:   60 * time.Second,
	}))
	require.True(t, s.Active(1))

	c.Advance(60 * time.Second)
	c.Advance(60 * time.Second)
	c.Advance(60 * time.Second)
	c.Advance(10 * time.Minute)

	assert.Equal(t, []event{
		{kind: "tick", at: 60 * time.Second, anchor: anchor(1), remaining: 120 * time.Second},
		{kind: "tick", at: 120 * time.Second, anchor: anchor(1), remaining: 60 * time.Second},
		{kind: "expire", at: 180 * time.Second, anchor: anchor(1)},
	}, rec.all())
	assert.False(t, s.Active(1))
	assert.Zero(t, c.Pending())
}

func TestCountdownShortensLastTick(t *testing.T) {
	s, rec, c := newScheduler()
	require.NoError(t, s.Start(context.Background(), Timer{
		SessionKey: 1, Anchor: anchor(1), Deadline: 200 * time.Second, Interval: 60 * time.Second,
	}))
	c.Advance(time.Hour)

	evs := rec.all()
	require.Len(t, evs, 4)
	assert.Equal(t, 180*time.Second, evs[2].at)
	assert.Equal(t, 20*time.Second, evs[2].remaining)
	assert.Equal(t, "expire", evs[3].kind)
	assert.Equal(t, 200*time.Second, evs[3].at)
}

func TestStartReplacesPrevious(t *testing.T) {
	s, rec, c := newScheduler()
	ctx := context.Background()
	require.NoError(t, s.Start(ctx, Timer{SessionKey: 1, Anchor: anchor(1), Deadline: 180 * time.Second, Interval: 60 * time.Second}))
	c.Advance(30 * time.Second)
	require.NoError(t, s.Start(ctx, Timer{SessionKey: 1, Anchor: anchor(2), Deadline: 180 * time.Second, Interval: 60 * time.Second}))
	c.Advance(time.Hour)

	for _, ev := range rec.all() {
		assert.Equal(t, anchor(2), ev.anchor, "old anchor still updated: %+v", ev)
	}
	assert.Len(t, rec.all(), 3)
	assert.Equal(t, 0, s.Len())
}

func TestSessionsAreIndependent(t *testing.T) {
	s, rec, c := newScheduler()
	ctx := context.Background()
	require.NoError(t, s.Start(ctx, Timer{SessionKey: 1, Anchor: anchor(1), Deadline: 120 * time.Second, Interval: 60 * time.Second}))
	require.NoError(t, s.Start(ctx, Timer{SessionKey: 2, Anchor: anchor(2), Deadline: 120 * time.Second, Interval: 60 * time.Second}))
	assert.Equal(t, 2, s.Len())

	c.Advance(time.Hour)
	expired := 0
	for _, ev := range rec.all() {
		if ev.kind == "expire" {
			expired++
		}
	}
	assert.Equal(t, 2, expired)
}

func TestTickFailureSelfCancels(t *testing.T) {
	s, rec, c := newScheduler()
	rec.failTick = true
	require.NoError(t, s.Start(context.Background(), Timer{SessionKey: 1, Anchor: anchor(1), Deadline: 180 * time.Second, Interval: 60 * time.Second}))

	c.Advance(time.Hour)
	assert.Empty(t, rec.all())
	assert.False(t, s.Active(1))
	assert.Zero(t, c.Pending())
}

func TestCancelStopsNotifications(t *testing.T) {
	s, rec, c := newScheduler()
	require.NoError(t, s.Start(context.Background(), Timer{SessionKey: 1, Anchor: anchor(1), Deadline: 180 * time.Second, Interval: 60 * time.Second}))
	c.Advance(60 * time.Second)
	require.True(t, s.Cancel(1))
	require.False(t, s.Cancel(1))

	c.Advance(time.Hour)
	assert.Len(t, rec.all(), 1)
}

func TestStopCancelsAll(t *testing.T) {
	s, rec, c := newScheduler()
	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		require.NoError(t, s.Start(ctx, Timer{SessionKey: i, Anchor: anchor(int(i)), Deadline: time.Minute, Interval: time.Second * 30}))
	}
	s.Stop()
	c.Advance(time.Hour)
	assert.Empty(t, rec.all())
	assert.Zero(t, s.Len())
}

func TestStartValidates(t *testing.T) {
	s, _, _ := newScheduler()
	assert.Error(t, s.Start(context.Background(), Timer{SessionKey: 1, Interval: time.Second}))
	assert.Error(t, s.Start(context.Background(), Timer{SessionKey: 1, Deadline: time.Second}))
}

func TestStartedAtInPast(t *testing.T) {
	s, rec, c := newScheduler()
	require.NoError(t, s.Start(context.Background(), Timer{
		SessionKey: 1,
		Anchor:     anchor(1),
		StartedAt:  epoch.Add(-170 * time.Second),
		Deadline:   180 * time.Second,
		Interval:   60 * time.Second,
	}))
	c.Advance(10 * time.Second)
	evs := rec.all()
	require.Len(t, evs, 1)
	assert.Equal(t, "expire", evs[0].kind)
}

func TestFormatRemaining(t *testing.T) {
	assert.Equal(t, "03:00", FormatRemaining(180*time.Second))
	assert.Equal(t, "01:01", FormatRemaining(60*time.Second+500*time.Millisecond))
	assert.Equal(t, "00:00", FormatRemaining(-time.Second))
}
