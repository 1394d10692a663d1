package flow

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnknownService is returned when a service key is not in the catalog.
	ErrUnknownService = errors.New("flow: unknown service")
	// ErrNoServiceSelected is returned when a payment method is chosen first.
	ErrNoServiceSelected = errors.New("flow: no service selected")
	// ErrInvalidEmail is returned for malformed email input. The user may retry.
	ErrInvalidEmail = errors.New("flow: invalid email")

	// errIgnored marks an event that does not apply to the current state.
	errIgnored = errors.New("flow: event ignored")
)

// userFacing reports whether err was already answered with a re-prompt.
func userFacing(err error) bool {
	return errors.Is(err, ErrUnknownService) ||
		errors.Is(err, ErrNoServiceSelected) ||
		errors.Is(err, ErrInvalidEmail)
}

// EventType classifies inbound events.
type EventType string

const (
	EventText             EventType = "TEXT"
	EventCallback         EventType = "CALLBACK"
	EventPhoto            EventType = "PHOTO"
	EventPaymentConfirmed EventType = "PAYMENT_CONFIRMED"
)

// Callback actions carried by the buttons the controller renders.
const (
	ActionLanguage = "lang"
	ActionService  = "svc"
	ActionMethod   = "method"
	ActionPaid     = "paid"
	ActionSupport  = "support"
)

// Peer identifies who sent an event and where to answer.
type Peer struct {
	UserID   int64
	ChatID   int64
	Name     string
	Username string
}

// Payment is a confirmed charge reported by the payment provider.
type Payment struct {
	Amount   decimal.Decimal
	Currency string
	Ref      string
	Payload  string
}

// Event is an inbound update normalized away from the transport.
type Event struct {
	Type EventType
	Peer
	// Action is the callback action; empty for other event types.
	Action string
	// Payload is the message text, callback payload or photo file id.
	Payload string
	Payment *Payment
}

const invoicePrefix = "order"

// InvoicePayload builds the payload attached to a Stars invoice.
func InvoicePayload(serviceKey, nonce string) string {
	return invoicePrefix + ":" + serviceKey + ":" + nonce
}

// ParseInvoicePayload extracts the service key from an invoice payload. The
// nonce never contains ':', so the key runs up to the last separator.
func ParseInvoicePayload(payload string) (string, bool) {
	rest, ok := strings.CutPrefix(payload, invoicePrefix+":")
	if !ok {
		return "", false
	}
	i := strings.LastIndexByte(rest, ':')
	if i <= 0 || i == len(rest)-1 {
		return "", false
	}
	return rest[:i], true
}
