// Package moderation implements the operator side of the shop: order
// confirmation and cancellation, direct messages to customers and
// broadcasts to every known user. All commands are silently ignored for
// anyone but the configured admin.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/shop/chat"
	"github.com/m3rciful/shopbot/shop/ledger"
	"github.com/m3rciful/shopbot/shop/texts"
)

const component = "moderation"

// Callback actions of the operator card buttons.
const (
	ActionConfirm = "confirm"
	ActionCancel  = "cancel"
	ActionMessage = "msg"
)

// maxListed caps the orders shown by Orders.
const maxListed = 20

// Roster lists every user a broadcast should reach.
type Roster interface {
	IDs() []int64
}

// Options configure a Router.
type Options struct {
	AdminID int64
	// AdminChatID defaults to AdminID, which is the private chat with the admin.
	AdminChatID int64
	// BroadcastPerSecond paces broadcast deliveries. Zero disables pacing.
	BroadcastPerSecond float64
}

// Router executes operator commands against the ledger and the roster.
type Router struct {
	adminID   int64
	adminChat int64
	orders    *ledger.Ledger
	roster    Roster
	msg       chat.Messenger
	limiter   *rate.Limiter

	mu        sync.Mutex
	target    ledger.ID
	hasTarget bool
	cards     map[ledger.ID]chat.MessageRef
}

// New builds a Router.
func New(orders *ledger.Ledger, roster Roster, msg chat.Messenger, opts Options) (*Router, error) {
	switch {
	case opts.AdminID == 0:
		return nil, errors.New("moderation: admin id is required")
	case orders == nil:
		return nil, errors.New("moderation: ledger is required")
	case roster == nil:
		return nil, errors.New("moderation: roster is required")
	case msg == nil:
		return nil, errors.New("moderation: messenger is required")
	}
	if opts.AdminChatID == 0 {
		opts.AdminChatID = opts.AdminID
	}
	limit := rate.Inf
	if opts.BroadcastPerSecond > 0 {
		limit = rate.Limit(opts.BroadcastPerSecond)
	}
	return &Router{
		adminID:   opts.AdminID,
		adminChat: opts.AdminChatID,
		orders:    orders,
		roster:    roster,
		msg:       msg,
		limiter:   rate.NewLimiter(limit, 1),
		cards:     make(map[ledger.ID]chat.MessageRef),
	}, nil
}

// IsAdmin reports whether userID may run operator commands.
func (r *Router) IsAdmin(userID int64) bool { return userID == r.adminID }

// Announce posts the operator card for a new order. Crypto orders carry
// the transfer screenshot as a photo.
func (r *Router) Announce(ctx context.Context, o ledger.Order) error {
	var (
		ref chat.MessageRef
		err error
	)
	text, kb := cardText(o), cardKeyboard(o.ID)
	if o.ScreenshotRef != "" {
		ref, err = r.msg.SendPhoto(ctx, r.adminChat, o.ScreenshotRef, text, kb)
	} else {
		ref, err = r.msg.SendMessage(ctx, r.adminChat, text, kb)
	}
	if err != nil {
		return fmt.Errorf("moderation: announce order %s: %w", o.ID, err)
	}
	r.mu.Lock()
	r.cards[o.ID] = ref
	r.mu.Unlock()
	logger.Info(ctx, component, "order.announced",
		slog.String("order_id", o.ID.String()),
		slog.Int64("chat_id", r.adminChat),
	)
	return nil
}

// Confirm marks an order as fulfilled and notifies its customer.
func (r *Router) Confirm(ctx context.Context, actor int64, rawID string) error {
	return r.settle(ctx, actor, rawID, ledger.StatusConfirmed)
}

// Cancel rejects an order and notifies its customer.
func (r *Router) Cancel(ctx context.Context, actor int64, rawID string) error {
	return r.settle(ctx, actor, rawID, ledger.StatusCancelled)
}

// settle transitions an order and notifies the customer only when the
// order was still waiting, so repeated commands notify once.
func (r *Router) settle(ctx context.Context, actor int64, rawID string, to ledger.Status) error {
	if !r.allowed(ctx, actor, "settle") {
		return nil
	}
	id, err := r.lookupID(ctx, rawID)
	if err != nil {
		return err
	}
	ctx = logger.WithOrder(ctx, id.String())
	prev, err := r.orders.Transition(ctx, id, to)
	if errors.Is(err, ledger.ErrOrderNotFound) {
		r.notFound(ctx, rawID)
		return err
	}
	if err != nil {
		return err
	}
	if prev != ledger.StatusWaitingAdmin {
		r.tell(ctx, fmt.Sprintf(msgAlreadySettled, id, prev))
		return nil
	}

	o, err := r.orders.Get(id)
	if err != nil {
		return err
	}
	r.updateCard(ctx, o)

	var notice string
	if to == ledger.StatusConfirmed {
		notice = texts.T(o.Language, texts.OrderConfirmed, o.ID.String(), o.ServiceName, o.Email)
	} else {
		notice = texts.T(o.Language, texts.OrderCancelled, o.ID.String(), o.ServiceName)
	}
	if _, err := r.msg.SendMessage(ctx, o.ChatID, notice, nil); err != nil {
		logger.Warn(ctx, component, "customer.notify_failed",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		r.tell(ctx, fmt.Sprintf(msgNotDelivered, id, err))
		return err
	}
	r.tell(ctx, fmt.Sprintf(msgSettled, id, strings.ToLower(string(to))))
	return nil
}

// SelectMessageTarget remembers the order whose customer receives the
// next operator message.
func (r *Router) SelectMessageTarget(ctx context.Context, actor int64, rawID string) error {
	if !r.allowed(ctx, actor, "select_target") {
		return nil
	}
	id, err := r.lookupID(ctx, rawID)
	if err != nil {
		return err
	}
	if _, err := r.orders.Get(id); err != nil {
		r.notFound(ctx, rawID)
		return err
	}
	r.mu.Lock()
	r.target, r.hasTarget = id, true
	r.mu.Unlock()
	r.tell(ctx, fmt.Sprintf(msgAwaitingText, id))
	return nil
}

// PendingTarget returns the order selected for the next message.
func (r *Router) PendingTarget() (ledger.ID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.target, r.hasTarget
}

// Message forwards text verbatim to the customer of the selected order and
// clears the selection. It reports false when the text was not an operator
// message.
func (r *Router) Message(ctx context.Context, actor int64, text string) (bool, error) {
	if !r.IsAdmin(actor) {
		return false, nil
	}
	r.mu.Lock()
	id, ok := r.target, r.hasTarget
	r.hasTarget = false
	r.mu.Unlock()
	if !ok {
		return false, nil
	}

	ctx = logger.WithOrder(ctx, id.String())
	o, err := r.orders.Get(id)
	if err != nil {
		r.notFound(ctx, id.String())
		return true, err
	}
	if _, err := r.msg.SendMessage(ctx, o.ChatID, text, nil); err != nil {
		logger.Warn(ctx, component, "customer.message_failed",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		r.tell(ctx, fmt.Sprintf(msgNotDelivered, id, err))
		return true, err
	}
	logger.Info(ctx, component, "customer.messaged")
	r.tell(ctx, fmt.Sprintf(msgDelivered, id))
	return true, nil
}

// Broadcast sends text to every user in the roster, paced by the rate
// limiter. Failed deliveries are counted and skipped. A cancelled context
// stops the broadcast early.
func (r *Router) Broadcast(ctx context.Context, actor int64, text string) (sent, failed int, err error) {
	if !r.allowed(ctx, actor, "broadcast") {
		return 0, 0, nil
	}
	ids := r.roster.IDs()
	logger.Info(ctx, component, "broadcast.start", slog.Int("recipients", len(ids)))
	for _, id := range ids {
		if err = r.limiter.Wait(ctx); err != nil {
			break
		}
		if _, serr := r.msg.SendMessage(ctx, id, text, nil); serr != nil {
			failed++
			logger.Debug(ctx, component, "broadcast.failed",
				slog.Int64("chat_id", id),
				slog.String("err", serr.Error()),
			)
			continue
		}
		sent++
	}
	logger.Info(ctx, component, "broadcast.done",
		slog.Int("sent", sent),
		slog.Int("failed", failed),
	)
	r.tell(ctx, fmt.Sprintf(msgBroadcastDone, sent, failed))
	return sent, failed, err
}

// Orders sends the operator a listing of recent orders, optionally
// filtered by status.
func (r *Router) Orders(ctx context.Context, actor int64, statuses ...ledger.Status) error {
	if !r.allowed(ctx, actor, "orders") {
		return nil
	}
	list := r.orders.List(statuses...)
	if len(list) == 0 {
		r.tell(ctx, msgNoOrders)
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, msgOrdersHeader, len(list))
	for i, o := range list {
		if i == maxListed {
			fmt.Fprintf(&b, msgOrdersMore, len(list)-maxListed)
			break
		}
		fmt.Fprintf(&b, msgOrderLine, o.ID, o.ServiceName, o.Status, o.Email)
	}
	_, err := r.msg.SendMessage(ctx, r.adminChat, b.String(), nil)
	return err
}

// HandleCallback runs the operator card buttons. It reports false for
// actions it does not own.
func (r *Router) HandleCallback(ctx context.Context, actor int64, action, payload string) (bool, error) {
	switch action {
	case ActionConfirm:
		return true, r.Confirm(ctx, actor, payload)
	case ActionCancel:
		return true, r.Cancel(ctx, actor, payload)
	case ActionMessage:
		return true, r.SelectMessageTarget(ctx, actor, payload)
	}
	return false, nil
}

// ParseStatuses maps operator filter words to ledger statuses.
func ParseStatuses(args []string) ([]ledger.Status, error) {
	var out []ledger.Status
	for _, a := range args {
		switch strings.ToLower(strings.TrimSpace(a)) {
		case "", "all":
		case "waiting", "pending", "waiting_admin":
			out = append(out, ledger.StatusWaitingAdmin)
		case "confirmed", "done":
			out = append(out, ledger.StatusConfirmed)
		case "cancelled", "canceled":
			out = append(out, ledger.StatusCancelled)
		default:
			return nil, fmt.Errorf("moderation: unknown status filter %q", a)
		}
	}
	return out, nil
}

func (r *Router) allowed(ctx context.Context, actor int64, op string) bool {
	if r.IsAdmin(actor) {
		return true
	}
	logger.Debug(ctx, component, "command.denied",
		slog.String("op", op),
		slog.Int64("user_id", actor),
	)
	return false
}

func (r *Router) lookupID(ctx context.Context, raw string) (ledger.ID, error) {
	id, err := ledger.ParseID(raw)
	if err != nil {
		r.notFound(ctx, raw)
		return 0, fmt.Errorf("%w: %w", ledger.ErrOrderNotFound, err)
	}
	return id, nil
}

func (r *Router) notFound(ctx context.Context, raw string) {
	logger.Warn(ctx, component, "order.not_found", slog.String("order_id", raw))
	r.tell(ctx, fmt.Sprintf(msgNotFound, strings.TrimPrefix(strings.TrimSpace(raw), "#")))
}

// tell informs the operator. Failures are logged only.
func (r *Router) tell(ctx context.Context, text string) {
	if _, err := r.msg.SendMessage(ctx, r.adminChat, text, nil); err != nil {
		logger.Warn(ctx, component, "operator.notify_failed",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
}

func (r *Router) updateCard(ctx context.Context, o ledger.Order) {
	r.mu.Lock()
	ref, ok := r.cards[o.ID]
	if ok {
		delete(r.cards, o.ID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	if err := r.msg.EditMessage(ctx, ref, cardText(o), nil); err != nil {
		logger.Debug(ctx, component, "card.edit_failed",
			slog.String("order_id", o.ID.String()),
			slog.String("err", err.Error()),
		)
	}
}
