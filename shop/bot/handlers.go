package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/shopbot/core/logger"
	tg "github.com/m3rciful/shopbot/core/telegram"
	"github.com/m3rciful/shopbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/shopbot/core/telegram/helpers"
	"github.com/m3rciful/shopbot/core/telegram/middleware"
	"github.com/m3rciful/shopbot/core/telegram/router"
	"github.com/m3rciful/shopbot/shop/flow"
	"github.com/m3rciful/shopbot/shop/ledger"
	"github.com/m3rciful/shopbot/shop/moderation"
	"github.com/m3rciful/shopbot/shop/roster"
	"github.com/m3rciful/shopbot/shop/texts"
)

const component = "bot"

// AllowedUpdates are the update kinds the shop reacts to.
var AllowedUpdates = []string{"message", "callback_query", "pre_checkout_query"}

// Handlers translates Telegram updates into flow events and operator commands.
type Handlers struct {
	flow    *flow.Controller
	mod     *moderation.Router
	roster  *roster.Roster
	adminID int64
}

// NewHandlers wires the update handlers.
func NewHandlers(ctl *flow.Controller, mod *moderation.Router, users *roster.Roster, adminID int64) (*Handlers, error) {
	switch {
	case ctl == nil:
		return nil, errors.New("bot: flow controller is required")
	case mod == nil:
		return nil, errors.New("bot: moderation router is required")
	case users == nil:
		return nil, errors.New("bot: roster is required")
	}
	return &Handlers{flow: ctl, mod: mod, roster: users, adminID: adminID}, nil
}

// Register adds the shop commands and callbacks to reg.
func (h *Handlers) Register(reg *tg.Registry) error {
	cmds := []struct {
		name string
		cmd  tg.Command
	}{
		{"/start", tg.Command{Handler: h.start, Description: "Start a new order"}},
		{"/support", tg.Command{Handler: h.support, Description: "Contact support"}},
		{"/confirm", tg.Command{Handler: h.confirm, Description: "Confirm an order", AdminOnly: true}},
		{"/cancel", tg.Command{Handler: h.cancel, Description: "Cancel an order", AdminOnly: true}},
		{"/msg", tg.Command{Handler: h.selectTarget, Description: "Message an order's customer", AdminOnly: true}},
		{"/broadcast", tg.Command{Handler: h.broadcast, Description: "Message every user", AdminOnly: true}},
		{"/orders", tg.Command{Handler: h.orders, Description: "List orders", AdminOnly: true, Aliases: []string{"list"}}},
	}
	for _, c := range cmds {
		if err := reg.RegisterCommand(c.name, c.cmd); err != nil {
			return err
		}
	}

	for _, key := range []string{flow.ActionLanguage, flow.ActionService, flow.ActionMethod, flow.ActionPaid, flow.ActionSupport} {
		if err := reg.RegisterCallback(key, h.flowCallback); err != nil {
			return err
		}
	}
	for _, key := range []string{moderation.ActionConfirm, moderation.ActionCancel, moderation.ActionMessage} {
		if err := reg.RegisterCallback(key, h.operatorCallback); err != nil {
			return err
		}
	}
	return nil
}

// Routes binds commands, callbacks, text, photos and payments.
func (h *Handlers) Routes(reg *tg.Registry) []tg.Route {
	routes := router.CommandRoutes(reg, router.CommandRouteOptions{AdminID: h.adminID})
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{NotFound: h.unsupported}))
	routes = append(routes, router.TextRoutes(reg, router.TextOptions{
		Interceptor: router.InterceptorFunc(h.operatorReply),
		UnknownText: h.text,
		Photo:       h.photo,
		AdminID:     h.adminID,
	})...)
	routes = append(routes,
		tg.Route{Endpoint: tele.OnCheckout, Handler: wrap(h.checkout)},
		tg.Route{Endpoint: tele.OnPayment, Handler: wrap(h.payment)},
	)
	return routes
}

// TrackUsers records every sender in the roster.
func (h *Handlers) TrackUsers() tg.Middleware {
	return tg.Middleware{
		Name: "roster",
		Use: func(next tele.HandlerFunc) tele.HandlerFunc {
			return func(c tele.Context) error {
				if u := c.Sender(); u != nil && !u.IsBot {
					h.roster.Add(tghelpers.BuildContext(c), u.ID)
				}
				return next(c)
			}
		},
	}
}

func wrap(next tele.HandlerFunc) tele.HandlerFunc {
	return middleware.RecoverMiddleware(middleware.LoggerMiddleware(next))
}

// PeerOf extracts who sent the update and where to answer.
func PeerOf(c tele.Context) flow.Peer {
	var p flow.Peer
	if u := c.Sender(); u != nil {
		p.UserID = u.ID
		p.Username = u.Username
		p.Name = strings.TrimSpace(u.FirstName + " " + u.LastName)
	}
	if ch := c.Chat(); ch != nil {
		p.ChatID = ch.ID
	} else {
		p.ChatID = p.UserID
	}
	return p
}

func (h *Handlers) start(c tele.Context) error {
	return h.flow.Start(tghelpers.BuildContext(c), PeerOf(c))
}

func (h *Handlers) support(c tele.Context) error {
	return h.flow.RequestSupport(tghelpers.BuildContext(c), PeerOf(c))
}

func (h *Handlers) text(c tele.Context) error {
	return h.flow.Handle(tghelpers.BuildContext(c), flow.Event{
		Type:    flow.EventText,
		Peer:    PeerOf(c),
		Payload: c.Text(),
	})
}

func (h *Handlers) photo(c tele.Context) error {
	m := c.Message()
	if m == nil || m.Photo == nil {
		return nil
	}
	return h.flow.Handle(tghelpers.BuildContext(c), flow.Event{
		Type:    flow.EventPhoto,
		Peer:    PeerOf(c),
		Payload: m.Photo.FileID,
	})
}

// RateLimited tells a throttled user to slow down.
func (h *Handlers) RateLimited(c tele.Context) error {
	return h.notify(c, texts.RateLimited)
}

// unsupported answers buttons from keyboards the bot no longer serves.
func (h *Handlers) unsupported(c tele.Context) error {
	return h.notify(c, texts.UnsupportedInput)
}

func (h *Handlers) notify(c tele.Context, key texts.Key) error {
	p := PeerOf(c)
	if p.ChatID == 0 {
		return nil
	}
	return h.flow.Notify(tghelpers.BuildContext(c), p, key)
}

func (h *Handlers) flowCallback(c tele.Context) error {
	key, payload := callbacks.Parse(c.Callback())
	return h.flow.Handle(tghelpers.BuildContext(c), flow.Event{
		Type:    flow.EventCallback,
		Peer:    PeerOf(c),
		Action:  key,
		Payload: payload,
	})
}

// checkout approves every Stars pre-checkout query; the order is validated
// when the payment arrives.
func (h *Handlers) checkout(c tele.Context) error {
	q := c.PreCheckoutQuery()
	if q != nil {
		logger.Debug(tghelpers.BuildContext(c), component, "checkout.accept",
			slog.String("payload", q.Payload),
			slog.Int("amount", q.Total),
		)
	}
	return c.Accept()
}

func (h *Handlers) payment(c tele.Context) error {
	m := c.Message()
	if m == nil || m.Payment == nil {
		return nil
	}
	p := m.Payment
	return h.flow.Handle(tghelpers.BuildContext(c), flow.Event{
		Type: flow.EventPaymentConfirmed,
		Peer: PeerOf(c),
		Payment: &flow.Payment{
			Amount:   decimal.NewFromInt(int64(p.Total)),
			Currency: p.Currency,
			Ref:      p.TelegramChargeID,
			Payload:  p.Payload,
		},
	})
}

func (h *Handlers) operatorCallback(c tele.Context) error {
	key, payload := callbacks.Parse(c.Callback())
	_, err := h.mod.HandleCallback(tghelpers.BuildContext(c), senderID(c), key, payload)
	return operatorErr(err)
}

func (h *Handlers) operatorReply(c tele.Context) (bool, error) {
	id := senderID(c)
	if !h.mod.IsAdmin(id) {
		return false, nil
	}
	handled, err := h.mod.Message(tghelpers.BuildContext(c), id, c.Text())
	return handled, operatorErr(err)
}

func (h *Handlers) confirm(c tele.Context) error {
	return h.withOrderArg(c, "/confirm", h.mod.Confirm)
}

func (h *Handlers) cancel(c tele.Context) error {
	return h.withOrderArg(c, "/cancel", h.mod.Cancel)
}

func (h *Handlers) selectTarget(c tele.Context) error {
	return h.withOrderArg(c, "/msg", h.mod.SelectMessageTarget)
}

func (h *Handlers) withOrderArg(c tele.Context, cmd string, op func(ctx context.Context, actor int64, rawID string) error) error {
	args := c.Args()
	if len(args) == 0 {
		return tghelpers.SendText(c, fmt.Sprintf("Usage: %s <order id>", cmd))
	}
	return operatorErr(op(tghelpers.BuildContext(c), senderID(c), args[0]))
}

func (h *Handlers) broadcast(c tele.Context) error {
	text := ""
	if m := c.Message(); m != nil {
		text = strings.TrimSpace(m.Payload)
	}
	if text == "" {
		return tghelpers.SendText(c, "Usage: /broadcast <text>")
	}
	_, _, err := h.mod.Broadcast(tghelpers.BuildContext(c), senderID(c), text)
	return err
}

func (h *Handlers) orders(c tele.Context) error {
	statuses, err := moderation.ParseStatuses(c.Args())
	if err != nil {
		return tghelpers.SendText(c, err.Error())
	}
	return h.mod.Orders(tghelpers.BuildContext(c), senderID(c), statuses...)
}

func senderID(c tele.Context) int64 {
	if u := c.Sender(); u != nil {
		return u.ID
	}
	return 0
}

// operatorErr drops errors the router already reported to the operator.
func operatorErr(err error) error {
	if errors.Is(err, ledger.ErrOrderNotFound) {
		return nil
	}
	return err
}
