// Package flow drives the checkout conversation. It maps inbound events to
// session transitions, creates orders and schedules the support countdown.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/shopbot/core/clock"
	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/shop/catalog"
	"github.com/m3rciful/shopbot/shop/chat"
	"github.com/m3rciful/shopbot/shop/countdown"
	"github.com/m3rciful/shopbot/shop/ledger"
	"github.com/m3rciful/shopbot/shop/session"
	"github.com/m3rciful/shopbot/shop/texts"
)

const component = "flow"

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Announcer posts a newly submitted order to the operator.
type Announcer interface {
	Announce(ctx context.Context, o ledger.Order) error
}

// Options tune the checkout.
type Options struct {
	Deadline       time.Duration
	TickInterval   time.Duration
	StarsCurrency  string
	CryptoCurrency string
	CryptoAddress  string
	SupportContact string
}

func (o *Options) normalize() {
	if o.Deadline <= 0 {
		o.Deadline = 180 * time.Second
	}
	if o.TickInterval <= 0 {
		o.TickInterval = 60 * time.Second
	}
	if o.StarsCurrency == "" {
		o.StarsCurrency = "XTR"
	}
	if o.CryptoCurrency == "" {
		o.CryptoCurrency = "USDT"
	}
}

// Deps are the collaborators of a Controller. Announcer and Clock are optional.
type Deps struct {
	Sessions  *session.Store
	Orders    *ledger.Ledger
	Catalog   *catalog.Catalog
	Messenger chat.Messenger
	Invoicer  chat.Invoicer
	Announcer Announcer
	Clock     clock.Clock
}

// orderView is what a countdown needs to re-render its anchor.
type orderView struct {
	lang    texts.Lang
	orderID string
	email   string
}

// Controller is the checkout state machine. Every operation runs inside
// the session store's per-user critical section.
type Controller struct {
	opts      Options
	sessions  *session.Store
	orders    *ledger.Ledger
	catalog   *catalog.Catalog
	msg       chat.Messenger
	inv       chat.Invoicer
	announcer Announcer
	clock     clock.Clock
	timers    *countdown.Scheduler

	mu    sync.Mutex
	views map[int64]orderView
}

// New wires a Controller and its countdown scheduler.
func New(d Deps, opts Options) (*Controller, error) {
	switch {
	case d.Sessions == nil:
		return nil, errors.New("flow: session store is required")
	case d.Orders == nil:
		return nil, errors.New("flow: ledger is required")
	case d.Catalog == nil:
		return nil, errors.New("flow: catalog is required")
	case d.Messenger == nil:
		return nil, errors.New("flow: messenger is required")
	case d.Invoicer == nil:
		return nil, errors.New("flow: invoicer is required")
	}
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	opts.normalize()
	c := &Controller{
		opts:      opts,
		sessions:  d.Sessions,
		orders:    d.Orders,
		catalog:   d.Catalog,
		msg:       d.Messenger,
		inv:       d.Invoicer,
		announcer: d.Announcer,
		clock:     d.Clock,
		views:     make(map[int64]orderView),
	}
	c.timers = countdown.New(d.Clock, c)
	return c, nil
}

// Countdowns exposes the scheduler driving support countdowns.
func (c *Controller) Countdowns() *countdown.Scheduler { return c.timers }

// Stop cancels every running countdown.
func (c *Controller) Stop() { c.timers.Stop() }

// Start resets the session and shows the language picker. A countdown from
// an earlier order keeps running.
func (c *Controller) Start(ctx context.Context, p Peer) error {
	c.sessions.Reset(p.UserID)
	logger.Info(ctx, component, "session.reset", slog.Int64("user_id", p.UserID))
	return c.reply(ctx, p.ChatID, texts.T(texts.Default, texts.ChooseLanguage), languageKeyboard())
}

// ChooseLanguage sets the language from any state and shows the catalog.
// Unknown codes fall back to the default language.
func (c *Controller) ChooseLanguage(ctx context.Context, p Peer, code string) error {
	lang, _ := texts.ParseLang(code)
	var sendErr error
	err := c.apply(ctx, p, "choose_language", func(s *session.Session) error {
		*s = session.New(p.UserID)
		s.Language = lang
		s.State = session.StateLangChosen
		sendErr = c.reply(ctx, p.ChatID, texts.T(lang, texts.ChooseService), c.serviceKeyboard(lang))
		return nil
	})
	if err != nil {
		return err
	}
	return sendErr
}

// ChooseService selects a catalog entry and offers the payment methods.
// It is ignored while a paid checkout waits for its email.
func (c *Controller) ChooseService(ctx context.Context, p Peer, key string) error {
	svc, known := c.catalog.Lookup(key)
	var sendErr error
	err := c.apply(ctx, p, "choose_service", func(s *session.Session) error {
		if !known {
			return fmt.Errorf("%w: %q", ErrUnknownService, key)
		}
		switch s.State {
		case session.StatePaid, session.StateAwaitingEmail:
			return ignore(s)
		}
		lang := s.Language
		*s = session.New(p.UserID)
		s.Language = lang
		s.State = session.StateServiceChosen
		s.SelectedService = svc.Key
		sendErr = c.reply(ctx, p.ChatID,
			texts.T(lang, texts.ServiceSelected, svc.Name, stars(svc), svc.PriceCrypto.String(), c.opts.CryptoCurrency),
			methodKeyboard(lang),
		)
		return nil
	})
	if errors.Is(err, ErrUnknownService) {
		c.reprompt(ctx, p, texts.ServiceNotFound)
	}
	if err != nil {
		return err
	}
	return sendErr
}

// ChoosePaymentMethod issues a Stars invoice or shows the crypto address.
// A failed invoice leaves the session in METHOD_CHOSEN so the user can
// pick a method again.
func (c *Controller) ChoosePaymentMethod(ctx context.Context, p Peer, m session.Method) error {
	var sendErr error
	err := c.apply(ctx, p, "choose_payment_method", func(s *session.Session) error {
		if s.SelectedService == "" {
			return ErrNoServiceSelected
		}
		switch s.State {
		case session.StateServiceChosen, session.StateMethodChosen,
			session.StateStarsPending, session.StateCryptoPending:
		default:
			return ignore(s)
		}
		svc, ok := c.catalog.Lookup(s.SelectedService)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownService, s.SelectedService)
		}

		switch m {
		case session.MethodStars:
			sendErr = c.issueInvoice(ctx, p, s, svc)
		case session.MethodCrypto:
			s.PaymentMethod = session.MethodCrypto
			s.Currency = c.opts.CryptoCurrency
			s.State = session.StateCryptoPending
			sendErr = c.reply(ctx, p.ChatID,
				texts.T(s.Language, texts.CryptoDetails, svc.PriceCrypto.String(), c.opts.CryptoCurrency, c.opts.CryptoAddress),
				nil,
			)
		default:
			return fmt.Errorf("%w: method %q", errIgnored, m)
		}
		return nil
	})
	switch {
	case errors.Is(err, ErrNoServiceSelected):
		c.reprompt(ctx, p, texts.NoService)
	case errors.Is(err, ErrUnknownService):
		c.reprompt(ctx, p, texts.ServiceNotFound)
	}
	if err != nil {
		return err
	}
	return sendErr
}

func (c *Controller) issueInvoice(ctx context.Context, p Peer, s *session.Session, svc catalog.Service) error {
	s.PaymentMethod = session.MethodStars
	s.Currency = c.opts.StarsCurrency
	s.State = session.StateMethodChosen

	inv := chat.Invoice{
		Title:       texts.T(s.Language, texts.InvoiceTitle, svc.Name),
		Description: texts.T(s.Language, texts.InvoiceDesc),
		Payload:     InvoicePayload(svc.Key, uuid.NewString()),
		Currency:    c.opts.StarsCurrency,
		Label:       svc.Name,
		Amount:      svc.PriceStars,
	}
	if err := c.inv.IssueInvoice(ctx, p.ChatID, inv); err != nil {
		logger.Warn(ctx, component, "invoice.failed",
			slog.Int64("user_id", p.UserID),
			slog.String("service", svc.Key),
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		if rerr := c.reply(ctx, p.ChatID, texts.T(s.Language, texts.InvoiceFailed), nil); rerr != nil {
			logger.Debug(ctx, component, "reply.failed", slog.String("err", rerr.Error()))
		}
		return err
	}
	s.State = session.StateStarsPending
	logger.Info(ctx, component, "invoice.issued",
		slog.Int64("user_id", p.UserID),
		slog.String("service", svc.Key),
		slog.Int64("amount", svc.PriceStars),
	)
	return nil
}

// MarkPaid records a confirmed Stars payment. Payments that do not match
// a pending invoice for the selected service are logged and dropped.
func (c *Controller) MarkPaid(ctx context.Context, p Peer, pay Payment) error {
	var sendErr error
	err := c.apply(ctx, p, "mark_paid", func(s *session.Session) error {
		key, ok := ParseInvoicePayload(pay.Payload)
		if s.State != session.StateStarsPending || !ok || key != s.SelectedService {
			logger.Warn(ctx, component, "payment.unexpected",
				slog.Int64("user_id", p.UserID),
				slog.String("state", string(s.State)),
				slog.String("payment_ref", pay.Ref),
				slog.String("payload", pay.Payload),
			)
			return ignore(s)
		}
		ref := pay.Ref
		if ref == "" {
			ref = uuid.NewString()
		}
		s.State = session.StatePaid
		s.PaidAmount = pay.Amount
		if pay.Currency != "" {
			s.Currency = pay.Currency
		}
		s.PaymentRef = ref
		logger.Info(ctx, component, "payment.received",
			slog.Int64("user_id", p.UserID),
			slog.String("service", s.SelectedService),
			slog.String("amount", pay.Amount.String()),
			slog.String("payment_ref", ref),
		)
		sendErr = c.reply(ctx, p.ChatID, texts.T(s.Language, texts.PaymentOK),
			chat.Column(chat.Button{Text: texts.T(s.Language, texts.ContinueButton), Action: ActionPaid}),
		)
		return nil
	})
	if err != nil {
		return err
	}
	return sendErr
}

// RequestEmail moves a paid checkout to the email prompt.
func (c *Controller) RequestEmail(ctx context.Context, p Peer) error {
	var sendErr error
	err := c.apply(ctx, p, "request_email", func(s *session.Session) error {
		switch s.State {
		case session.StatePaid:
			s.State = session.StateAwaitingEmail
			sendErr = c.reply(ctx, p.ChatID, texts.T(s.Language, texts.EnterEmail), nil)
			return nil
		case session.StateMethodChosen, session.StateStarsPending:
			sendErr = c.reply(ctx, p.ChatID, texts.T(s.Language, texts.NoPaymentYet), nil)
			return nil
		}
		return ignore(s)
	})
	if err != nil {
		return err
	}
	return sendErr
}

// SubmitScreenshot accepts proof of a crypto transfer. Photos arriving in
// any other state are ignored.
func (c *Controller) SubmitScreenshot(ctx context.Context, p Peer, fileRef string) error {
	var sendErr error
	err := c.apply(ctx, p, "submit_screenshot", func(s *session.Session) error {
		if s.Awaiting() != session.AwaitingScreenshot || fileRef == "" {
			return ignore(s)
		}
		svc, ok := c.catalog.Lookup(s.SelectedService)
		if !ok {
			return ignore(s)
		}
		s.ScreenshotRef = fileRef
		s.PaymentRef = uuid.NewString()
		s.PaidAmount = svc.PriceCrypto
		s.Currency = c.opts.CryptoCurrency
		s.State = session.StateAwaitingEmail
		logger.Info(ctx, component, "screenshot.received",
			slog.Int64("user_id", p.UserID),
			slog.String("service", svc.Key),
			slog.String("payment_ref", s.PaymentRef),
		)
		sendErr = c.reply(ctx, p.ChatID, texts.T(s.Language, texts.ScreenshotOK), nil)
		return nil
	})
	if err != nil {
		return err
	}
	return sendErr
}

// SubmitEmail consumes the email prompt. The order is created in the same
// critical section that leaves AWAITING_EMAIL, so a duplicate submission
// finds the session already past it and is ignored.
func (c *Controller) SubmitEmail(ctx context.Context, p Peer, text string) error {
	var sendErr error
	err := c.apply(ctx, p, "submit_email", func(s *session.Session) error {
		if s.Awaiting() != session.AwaitingEmail {
			return ignore(s)
		}
		email := strings.TrimSpace(text)
		if !emailPattern.MatchString(email) {
			return fmt.Errorf("%w: %q", ErrInvalidEmail, email)
		}
		name := s.SelectedService
		if svc, ok := c.catalog.Lookup(s.SelectedService); ok {
			name = svc.Name
		}
		o, err := c.orders.Create(ctx, ledger.Order{
			UserID:        p.UserID,
			ChatID:        p.ChatID,
			CustomerName:  p.Name,
			CustomerLogin: p.Username,
			Language:      s.Language,
			ServiceKey:    s.SelectedService,
			ServiceName:   name,
			PaymentMethod: s.PaymentMethod,
			PaidAmount:    s.PaidAmount,
			Currency:      s.Currency,
			PaymentRef:    s.PaymentRef,
			Email:         email,
			ScreenshotRef: s.ScreenshotRef,
		})
		if err != nil {
			return fmt.Errorf("flow: create order: %w", err)
		}
		s.Email = email
		s.State = session.StateOrderSubmitted
		sendErr = c.lockSupport(ctx, p, s, o)
		return nil
	})
	if errors.Is(err, ErrInvalidEmail) {
		c.reprompt(ctx, p, texts.InvalidEmail)
	}
	if err != nil {
		return err
	}
	return sendErr
}

// lockSupport sends the processing notice, starts its countdown, tells the
// operator and locks support until the deadline.
func (c *Controller) lockSupport(ctx context.Context, p Peer, s *session.Session, o ledger.Order) error {
	now := c.clock.Now()
	view := orderView{lang: s.Language, orderID: o.ID.String(), email: o.Email}
	ctx = logger.WithOrder(ctx, view.orderID)

	anchor, err := c.msg.SendMessage(ctx, p.ChatID, c.processingText(view, c.opts.Deadline), nil)
	if err == nil {
		c.setView(p.UserID, view)
		terr := c.timers.Start(ctx, countdown.Timer{
			SessionKey: p.UserID,
			Anchor:     anchor,
			StartedAt:  now,
			Deadline:   c.opts.Deadline,
			Interval:   c.opts.TickInterval,
			Label:      view.orderID,
		})
		if terr != nil {
			c.dropView(p.UserID, view.orderID)
			logger.Warn(ctx, component, "countdown.start_failed",
				slog.String("err", terr.Error()),
			)
		}
	}

	if c.announcer != nil {
		if aerr := c.announcer.Announce(ctx, o); aerr != nil {
			logger.Warn(ctx, component, "order.announce_failed",
				slog.String("status", "fail"),
				slog.String("err", aerr.Error()),
			)
		}
	}

	s.State = session.StateSupportLocked
	s.SupportUnlockAt = now.Add(c.opts.Deadline)
	logger.Info(ctx, component, "order.submitted",
		slog.Int64("user_id", p.UserID),
		slog.Time("support_unlock_at", s.SupportUnlockAt),
	)
	return err
}

// RequestSupport answers the support button: the time left while locked,
// the contact once unlocked.
func (c *Controller) RequestSupport(ctx context.Context, p Peer) error {
	var sendErr error
	err := c.apply(ctx, p, "request_support", func(s *session.Session) error {
		now := c.clock.Now()
		switch s.Phase(now) {
		case session.StateSupportLocked:
			left := countdown.FormatRemaining(s.SupportUnlockAt.Sub(now))
			sendErr = c.reply(ctx, p.ChatID, texts.T(s.Language, texts.SupportLocked, left), nil)
		case session.StateSupportUnlocked:
			s.State = session.StateSupportUnlocked
			sendErr = c.reply(ctx, p.ChatID, texts.T(s.Language, texts.SupportContact, c.opts.SupportContact), nil)
		default:
			return ignore(s)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return sendErr
}

// Handle dispatches a normalized event. Rejected input has already been
// answered with a re-prompt and is not returned as an error.
func (c *Controller) Handle(ctx context.Context, ev Event) error {
	var err error
	switch ev.Type {
	case EventText:
		err = c.handleText(ctx, ev)
	case EventCallback:
		err = c.handleCallback(ctx, ev)
	case EventPhoto:
		err = c.SubmitScreenshot(ctx, ev.Peer, ev.Payload)
	case EventPaymentConfirmed:
		if ev.Payment == nil {
			logger.Debug(ctx, component, "event.ignored",
				slog.Int64("user_id", ev.UserID),
				slog.String("reason", "payment without details"),
			)
			return nil
		}
		err = c.MarkPaid(ctx, ev.Peer, *ev.Payment)
	default:
		logger.Debug(ctx, component, "event.ignored",
			slog.Int64("user_id", ev.UserID),
			slog.String("reason", "unknown event type "+string(ev.Type)),
		)
		return nil
	}
	if userFacing(err) {
		logger.Info(ctx, component, "input.rejected",
			slog.Int64("user_id", ev.UserID),
			slog.String("reason", err.Error()),
		)
		return nil
	}
	return err
}

func (c *Controller) handleText(ctx context.Context, ev Event) error {
	text := strings.TrimSpace(ev.Payload)
	if cmd, _, _ := strings.Cut(text, " "); cmd == "/start" {
		return c.Start(ctx, ev.Peer)
	}
	sess := c.sessions.Get(ev.UserID)
	if sess.Awaiting() == session.AwaitingEmail {
		return c.SubmitEmail(ctx, ev.Peer, text)
	}
	return c.reply(ctx, ev.ChatID, texts.T(sess.Language, texts.UnknownCommand), nil)
}

func (c *Controller) handleCallback(ctx context.Context, ev Event) error {
	switch ev.Action {
	case ActionLanguage:
		return c.ChooseLanguage(ctx, ev.Peer, ev.Payload)
	case ActionService:
		return c.ChooseService(ctx, ev.Peer, ev.Payload)
	case ActionMethod:
		m, ok := session.ParseMethod(ev.Payload)
		if !ok {
			break
		}
		return c.ChoosePaymentMethod(ctx, ev.Peer, m)
	case ActionPaid:
		return c.RequestEmail(ctx, ev.Peer)
	case ActionSupport:
		return c.RequestSupport(ctx, ev.Peer)
	}
	logger.Debug(ctx, component, "event.ignored",
		slog.Int64("user_id", ev.UserID),
		slog.String("reason", "unknown callback "+ev.Action+"|"+ev.Payload),
	)
	return nil
}

// apply runs fn in the user's critical section and swallows ignored events.
func (c *Controller) apply(ctx context.Context, p Peer, op string, fn func(*session.Session) error) error {
	err := c.sessions.Update(p.UserID, fn)
	if errors.Is(err, errIgnored) {
		logger.Debug(ctx, component, "event.ignored",
			slog.String("op", op),
			slog.Int64("user_id", p.UserID),
			slog.String("reason", err.Error()),
		)
		return nil
	}
	return err
}

func ignore(s *session.Session) error {
	return fmt.Errorf("%w in state %s", errIgnored, s.State)
}

// Notify sends the key template to p in their language without touching the
// session state.
func (c *Controller) Notify(ctx context.Context, p Peer, key texts.Key) error {
	lang := c.sessions.Get(p.UserID).Language
	return c.reply(ctx, p.ChatID, texts.T(lang, key), nil)
}

func (c *Controller) reply(ctx context.Context, chatID int64, text string, kb *chat.Keyboard) error {
	_, err := c.msg.SendMessage(ctx, chatID, text, kb)
	return err
}

func (c *Controller) reprompt(ctx context.Context, p Peer, key texts.Key) {
	if err := c.Notify(ctx, p, key); err != nil {
		logger.Debug(ctx, component, "reply.failed",
			slog.Int64("user_id", p.UserID),
			slog.String("err", err.Error()),
		)
	}
}

func (c *Controller) processingText(v orderView, remaining time.Duration) string {
	return texts.T(v.lang, texts.OrderProcessing, v.orderID, v.email, countdown.FormatRemaining(remaining))
}

func languageKeyboard() *chat.Keyboard {
	buttons := make([]chat.Button, 0, len(texts.Languages))
	for _, l := range texts.Languages {
		buttons = append(buttons, chat.Button{Text: l.Name(), Action: ActionLanguage, Payload: string(l)})
	}
	return chat.Column(buttons...)
}

func (c *Controller) serviceKeyboard(lang texts.Lang) *chat.Keyboard {
	services := c.catalog.List()
	buttons := make([]chat.Button, 0, len(services))
	for _, svc := range services {
		buttons = append(buttons, chat.Button{
			Text:    texts.T(lang, texts.ServiceButton, svc.Name, stars(svc)),
			Action:  ActionService,
			Payload: svc.Key,
		})
	}
	return chat.Column(buttons...)
}

func methodKeyboard(lang texts.Lang) *chat.Keyboard {
	return chat.Row(
		chat.Button{Text: texts.T(lang, texts.MethodStars), Action: ActionMethod, Payload: string(session.MethodStars)},
		chat.Button{Text: texts.T(lang, texts.MethodCrypto), Action: ActionMethod, Payload: string(session.MethodCrypto)},
	)
}

func stars(svc catalog.Service) string {
	return strconv.FormatInt(svc.PriceStars, 10)
}
