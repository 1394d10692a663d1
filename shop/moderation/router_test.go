package moderation

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/shopbot/core/clock"
	"github.com/m3rciful/shopbot/shop/chat"
	"github.com/m3rciful/shopbot/shop/chat/chattest"
	"github.com/m3rciful/shopbot/shop/ledger"
	"github.com/m3rciful/shopbot/shop/session"
	"github.com/m3rciful/shopbot/shop/texts"
)

const (
	admin    int64 = 1
	stranger int64 = 2
	buyer    int64 = 500
)

type staticRoster []int64

func (s staticRoster) IDs() []int64 { return append([]int64(nil), s...) }

type fixture struct {
	router *Router
	orders *ledger.Ledger
	chat   *chattest.Recorder
}

func newFixture(t *testing.T, roster staticRoster) *fixture {
	t.Helper()
	orders, err := ledger.New(3, clock.Fake(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	rec := chattest.New()
	r, err := New(orders, roster, rec, Options{AdminID: admin})
	require.NoError(t, err)
	return &fixture{router: r, orders: orders, chat: rec}
}

func (f *fixture) order(t *testing.T, screenshot string) ledger.Order {
	t.Helper()
	o, err := f.orders.Create(context.Background(), ledger.Order{
		UserID:        buyer,
		ChatID:        buyer,
		CustomerName:  "Ann",
		CustomerLogin: "ann",
		Language:      texts.English,
		ServiceKey:    "disney",
		ServiceName:   "Disney+",
		PaymentMethod: session.MethodCrypto,
		PaidAmount:    decimal.RequireFromString("5.9"),
		Currency:      "USDT",
		PaymentRef:    "ref-1",
		Email:         "a@b.com",
		ScreenshotRef: screenshot,
	})
	require.NoError(t, err)
	return o
}

func (f *fixture) operatorSaid(t *testing.T) string {
	t.Helper()
	c, ok := f.chat.Last(admin)
	require.True(t, ok)
	return c.Text
}

func TestAnnounceSendsCard(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	withShot := f.order(t, "file-1")
	require.NoError(t, f.router.Announce(ctx, withShot))
	card, ok := f.chat.Last(admin)
	require.True(t, ok)
	assert.Equal(t, chattest.KindPhoto, card.Kind)
	assert.Equal(t, "file-1", card.FileRef)
	assert.Contains(t, card.Text, withShot.ID.String())
	assert.Contains(t, card.Text, "@ann")
	require.NotNil(t, card.Keyboard)
	assert.Equal(t, ActionConfirm, card.Keyboard.Rows[0][0].Action)
	assert.Equal(t, withShot.ID.String(), card.Keyboard.Rows[0][0].Payload)

	plain := f.order(t, "")
	require.NoError(t, f.router.Announce(ctx, plain))
	card, _ = f.chat.Last(admin)
	assert.Equal(t, chattest.KindSend, card.Kind)
}

func TestConfirmNotifiesOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	o := f.order(t, "file-1")
	require.NoError(t, f.router.Announce(ctx, o))

	require.NoError(t, f.router.Confirm(ctx, admin, o.ID.String()))
	require.NoError(t, f.router.Confirm(ctx, admin, "#"+o.ID.String()))

	got, err := f.orders.Get(o.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusConfirmed, got.Status)

	notices := f.chat.To(buyer)
	require.Len(t, notices, 1)
	assert.Equal(t, texts.T(texts.English, texts.OrderConfirmed, o.ID.String(), "Disney+", "a@b.com"), notices[0].Text)
	assert.Contains(t, f.operatorSaid(t), "already")

	edits := f.chat.To(admin, chattest.KindEdit)
	require.Len(t, edits, 1)
	assert.True(t, edits[0].Ref.Captioned)
	assert.Contains(t, edits[0].Text, "✅ confirmed")
}

func TestCancelThenConfirmIsNoop(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	o := f.order(t, "")

	require.NoError(t, f.router.Cancel(ctx, admin, o.ID.String()))
	require.NoError(t, f.router.Confirm(ctx, admin, o.ID.String()))

	got, _ := f.orders.Get(o.ID)
	assert.Equal(t, ledger.StatusCancelled, got.Status)
	notices := f.chat.To(buyer)
	require.Len(t, notices, 1)
	assert.Equal(t, texts.T(texts.English, texts.OrderCancelled, o.ID.String(), "Disney+"), notices[0].Text)
}

func TestUnknownOrderIsReported(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	err := f.router.Confirm(ctx, admin, "1234567890")
	require.ErrorIs(t, err, ledger.ErrOrderNotFound)
	assert.Equal(t, "⚠️ Order #1234567890 not found.", f.operatorSaid(t))

	err = f.router.Cancel(ctx, admin, "garbage")
	require.ErrorIs(t, err, ledger.ErrOrderNotFound)
	assert.Contains(t, f.operatorSaid(t), "not found")
}

func TestNonAdminIsIgnored(t *testing.T) {
	f := newFixture(t, staticRoster{10, 11})
	ctx := context.Background()
	o := f.order(t, "")

	require.NoError(t, f.router.Confirm(ctx, stranger, o.ID.String()))
	require.NoError(t, f.router.SelectMessageTarget(ctx, stranger, o.ID.String()))
	handled, err := f.router.Message(ctx, stranger, "hi")
	require.NoError(t, err)
	assert.False(t, handled)
	sent, failed, err := f.router.Broadcast(ctx, stranger, "spam")
	require.NoError(t, err)
	assert.Zero(t, sent+failed)
	require.NoError(t, f.router.Orders(ctx, stranger))

	got, _ := f.orders.Get(o.ID)
	assert.Equal(t, ledger.StatusWaitingAdmin, got.Status)
	assert.Empty(t, f.chat.Calls())
}

func TestCustomerUnreachableIsReported(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	o := f.order(t, "")
	f.chat.FailChat(buyer)

	err := f.router.Confirm(ctx, admin, o.ID.String())
	require.ErrorIs(t, err, chat.ErrDelivery)
	got, _ := f.orders.Get(o.ID)
	assert.Equal(t, ledger.StatusConfirmed, got.Status)
	assert.Contains(t, f.operatorSaid(t), "could not be reached")
}

func TestMessageForwardsOnce(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	o := f.order(t, "")

	handled, err := f.router.Message(ctx, admin, "no target yet")
	require.NoError(t, err)
	assert.False(t, handled)

	require.NoError(t, f.router.SelectMessageTarget(ctx, admin, o.ID.String()))
	id, ok := f.router.PendingTarget()
	require.True(t, ok)
	assert.Equal(t, o.ID, id)

	handled, err = f.router.Message(ctx, admin, "Your code: *ABC-123*")
	require.NoError(t, err)
	assert.True(t, handled)
	msgs := f.chat.To(buyer)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Your code: *ABC-123*", msgs[0].Text)
	_, ok = f.router.PendingTarget()
	assert.False(t, ok)

	handled, err = f.router.Message(ctx, admin, "second")
	require.NoError(t, err)
	assert.False(t, handled)
	assert.Len(t, f.chat.To(buyer), 1)
}

func TestSelectUnknownTarget(t *testing.T) {
	f := newFixture(t, nil)
	err := f.router.SelectMessageTarget(context.Background(), admin, "42")
	require.ErrorIs(t, err, ledger.ErrOrderNotFound)
	_, ok := f.router.PendingTarget()
	assert.False(t, ok)
}

func TestBroadcastCountsFailures(t *testing.T) {
	f := newFixture(t, staticRoster{10, 11, 12, 13, 14})
	f.chat.FailChat(11)
	f.chat.FailChat(13)

	sent, failed, err := f.router.Broadcast(context.Background(), admin, "hi")
	require.NoError(t, err)
	assert.Equal(t, 3, sent)
	assert.Equal(t, 2, failed)
	for _, id := range []int64{10, 12, 14} {
		require.Len(t, f.chat.To(id), 1)
		assert.Equal(t, "hi", f.chat.To(id)[0].Text)
	}
	assert.Equal(t, "📣 Broadcast finished: 3 sent, 2 failed.", f.operatorSaid(t))
}

func TestBroadcastStopsOnCancelledContext(t *testing.T) {
	orders, err := ledger.New(3, nil)
	require.NoError(t, err)
	rec := chattest.New()
	r, err := New(orders, staticRoster{10, 11, 12}, rec, Options{AdminID: admin, BroadcastPerSecond: 0.001})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sent, failed, err := r.Broadcast(ctx, admin, "hi")
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, sent)
	assert.Zero(t, failed)
	assert.Empty(t, rec.To(10))
}

func TestOrdersListing(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	require.NoError(t, f.router.Orders(ctx, admin))
	assert.Equal(t, msgNoOrders, f.operatorSaid(t))

	first := f.order(t, "")
	second := f.order(t, "")
	require.NoError(t, f.router.Confirm(ctx, admin, first.ID.String()))

	require.NoError(t, f.router.Orders(ctx, admin, ledger.StatusWaitingAdmin))
	listing := f.operatorSaid(t)
	assert.Contains(t, listing, second.ID.String())
	assert.NotContains(t, listing, first.ID.String())
	assert.Contains(t, listing, "Orders (1)")
}

func TestHandleCallback(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	o := f.order(t, "")

	handled, err := f.router.HandleCallback(ctx, admin, ActionConfirm, o.ID.String())
	require.NoError(t, err)
	assert.True(t, handled)
	got, _ := f.orders.Get(o.ID)
	assert.Equal(t, ledger.StatusConfirmed, got.Status)

	handled, err = f.router.HandleCallback(ctx, admin, "lang", "en")
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestParseStatuses(t *testing.T) {
	got, err := ParseStatuses([]string{"waiting", "Confirmed"})
	require.NoError(t, err)
	assert.Equal(t, []ledger.Status{ledger.StatusWaitingAdmin, ledger.StatusConfirmed}, got)

	got, err = ParseStatuses([]string{"all"})
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = ParseStatuses([]string{"lost"})
	assert.Error(t, err)
}

func TestNewRequiresAdmin(t *testing.T) {
	orders, _ := ledger.New(1, nil)
	_, err := New(orders, staticRoster{}, chattest.New(), Options{})
	assert.Error(t, err)
}
