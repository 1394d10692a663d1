package bot

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/shopbot/core/clock"
	tg "github.com/m3rciful/shopbot/core/telegram"
	"github.com/m3rciful/shopbot/shop/catalog"
	"github.com/m3rciful/shopbot/shop/chat/chattest"
	"github.com/m3rciful/shopbot/shop/flow"
	"github.com/m3rciful/shopbot/shop/ledger"
	"github.com/m3rciful/shopbot/shop/moderation"
	"github.com/m3rciful/shopbot/shop/roster"
	"github.com/m3rciful/shopbot/shop/session"
	"github.com/m3rciful/shopbot/shop/texts"
)

const operator int64 = 1

type fixture struct {
	bot      *tele.Bot
	h        *Handlers
	reg      *tg.Registry
	chat     *chattest.Recorder
	sessions *session.Store
	orders   *ledger.Ledger
	roster   *roster.Roster
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	c := clock.Fake(time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC))

	b, err := tele.NewBot(tele.Settings{Offline: true})
	require.NoError(t, err)
	cat, err := catalog.New(catalog.Defaults())
	require.NoError(t, err)
	orders, err := ledger.New(2, c)
	require.NoError(t, err)
	users, err := roster.Open(ctx, roster.NewFileStore(filepath.Join(t.TempDir(), "roster.yaml")))
	require.NoError(t, err)

	rec := chattest.New()
	mod, err := moderation.New(orders, users, rec, moderation.Options{AdminID: operator})
	require.NoError(t, err)
	sessions := session.NewStore(c)
	ctl, err := flow.New(flow.Deps{
		Sessions:  sessions,
		Orders:    orders,
		Catalog:   cat,
		Messenger: rec,
		Invoicer:  rec,
		Announcer: mod,
		Clock:     c,
	}, flow.Options{
		Deadline:       180 * time.Second,
		TickInterval:   60 * time.Second,
		CryptoCurrency: "USDT",
		CryptoAddress:  "TWallet",
		SupportContact: "@support",
	})
	require.NoError(t, err)
	t.Cleanup(ctl.Stop)

	h, err := NewHandlers(ctl, mod, users, operator)
	require.NoError(t, err)
	reg := tg.NewRegistry()
	require.NoError(t, h.Register(reg))

	return &fixture{bot: b, h: h, reg: reg, chat: rec, sessions: sessions, orders: orders, roster: users}
}

func (f *fixture) callback(t *testing.T, userID int64, data string) {
	t.Helper()
	upd := tele.Update{Callback: &tele.Callback{
		ID:      "cb",
		Sender:  &tele.User{ID: userID, FirstName: "Ann", Username: "ann"},
		Message: &tele.Message{Chat: &tele.Chat{ID: userID}},
		Data:    data,
	}}
	key, _, _ := strings.Cut(strings.TrimPrefix(data, "\f"), "|")
	handler, ok := f.reg.GetCallback(key)
	require.True(t, ok, key)
	require.NoError(t, handler(f.bot.NewContext(upd)))
}

func textFrom(userID int64, text string) tele.Update {
	return tele.Update{Message: &tele.Message{
		Sender: &tele.User{ID: userID},
		Chat:   &tele.Chat{ID: userID},
		Text:   text,
	}}
}

func TestRegisterBindsFlowAndOperatorCallbacks(t *testing.T) {
	f := newFixture(t)
	for _, key := range []string{"lang", "svc", "method", "paid", "support", "confirm", "cancel", "msg"} {
		_, ok := f.reg.GetCallback(key)
		assert.True(t, ok, key)
	}
	key, cmd, ok := f.reg.LookupCommand("/list done")
	require.True(t, ok)
	assert.Equal(t, "/orders", key)
	assert.True(t, cmd.AdminOnly)
}

func TestLanguageCallbackShowsServices(t *testing.T) {
	f := newFixture(t)
	f.callback(t, 100, "\flang|en")

	last, ok := f.chat.Last(100)
	require.True(t, ok)
	require.NotNil(t, last.Keyboard)
	assert.Equal(t, flow.ActionService, last.Keyboard.Rows[0][0].Action)
	assert.Equal(t, texts.English, f.sessions.Get(100).Language)
}

func TestStarsPaymentReachesPaid(t *testing.T) {
	f := newFixture(t)
	f.callback(t, 200, "\flang|en")
	f.callback(t, 200, "\fsvc|disney")
	f.callback(t, 200, "\fmethod|stars")

	invoices := f.chat.To(200, chattest.KindInvoice)
	require.Len(t, invoices, 1)
	inv := invoices[0].Invoice
	require.Equal(t, session.StateStarsPending, f.sessions.Get(200).State)

	upd := tele.Update{Message: &tele.Message{
		Sender: &tele.User{ID: 200},
		Chat:   &tele.Chat{ID: 200},
		Payment: &tele.Payment{
			Currency:         inv.Currency,
			Total:            int(inv.Amount),
			Payload:          inv.Payload,
			TelegramChargeID: "charge-1",
		},
	}}
	require.NoError(t, f.h.payment(f.bot.NewContext(upd)))

	s := f.sessions.Get(200)
	assert.Equal(t, session.StatePaid, s.State)
	assert.Equal(t, "charge-1", s.PaymentRef)
	assert.True(t, decimal.NewFromInt(inv.Amount).Equal(s.PaidAmount))
}

func TestTrackUsersAddsSenders(t *testing.T) {
	f := newFixture(t)
	var called int
	h := f.h.TrackUsers().Use(func(tele.Context) error {
		called++
		return nil
	})

	require.NoError(t, h(f.bot.NewContext(textFrom(300, "hi"))))
	bot := tele.Update{Message: &tele.Message{Sender: &tele.User{ID: 301, IsBot: true}, Chat: &tele.Chat{ID: 301}}}
	require.NoError(t, h(f.bot.NewContext(bot)))

	assert.Equal(t, 2, called)
	assert.True(t, f.roster.Contains(300))
	assert.False(t, f.roster.Contains(301))
}

func TestOperatorReplyForwardsToCustomer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	handled, err := f.h.operatorReply(f.bot.NewContext(textFrom(55, "hello")))
	require.NoError(t, err)
	assert.False(t, handled)

	handled, err = f.h.operatorReply(f.bot.NewContext(textFrom(operator, "hello")))
	require.NoError(t, err)
	assert.False(t, handled)

	o, err := f.orders.Create(ctx, ledger.Order{
		UserID:        400,
		ChatID:        400,
		Language:      texts.English,
		ServiceKey:    "disney",
		ServiceName:   "Disney+",
		PaymentMethod: session.MethodStars,
		PaidAmount:    decimal.NewFromInt(450),
		Currency:      "XTR",
		PaymentRef:    "charge-2",
		Email:         "a@b.com",
	})
	require.NoError(t, err)
	require.NoError(t, f.h.mod.SelectMessageTarget(ctx, operator, o.ID.String()))

	handled, err = f.h.operatorReply(f.bot.NewContext(textFrom(operator, "Your code is 42")))
	require.NoError(t, err)
	assert.True(t, handled)
	last, ok := f.chat.Last(400)
	require.True(t, ok)
	assert.Equal(t, "Your code is 42", last.Text)
}

func TestPeerOf(t *testing.T) {
	b, err := tele.NewBot(tele.Settings{Offline: true})
	require.NoError(t, err)

	c := b.NewContext(tele.Update{Message: &tele.Message{
		Sender: &tele.User{ID: 7, FirstName: "Ann", LastName: "Lee", Username: "ann"},
		Chat:   &tele.Chat{ID: -100},
	}})
	assert.Equal(t, flow.Peer{UserID: 7, ChatID: -100, Name: "Ann Lee", Username: "ann"}, PeerOf(c))

	c = b.NewContext(tele.Update{PreCheckoutQuery: &tele.PreCheckoutQuery{Sender: &tele.User{ID: 8, FirstName: "Bo"}}})
	assert.Equal(t, flow.Peer{UserID: 8, ChatID: 8, Name: "Bo"}, PeerOf(c))
}

func TestNoticesUseSessionLanguage(t *testing.T) {
	f := newFixture(t)
	f.callback(t, 400, "\flang|ru")
	state := f.sessions.Get(400).State

	require.NoError(t, f.h.RateLimited(f.bot.NewContext(textFrom(400, "again"))))
	last, ok := f.chat.Last(400)
	require.True(t, ok)
	assert.Equal(t, texts.T(texts.Russian, texts.RateLimited), last.Text)

	stale := tele.Update{Callback: &tele.Callback{
		ID:      "cb",
		Sender:  &tele.User{ID: 400},
		Message: &tele.Message{Chat: &tele.Chat{ID: 400}},
		Data:    "\fgone|x",
	}}
	require.NoError(t, f.h.unsupported(f.bot.NewContext(stale)))
	last, _ = f.chat.Last(400)
	assert.Equal(t, texts.T(texts.Russian, texts.UnsupportedInput), last.Text)
	assert.Equal(t, state, f.sessions.Get(400).State)
}
