package moderation

import (
	"fmt"
	"strings"

	"github.com/m3rciful/shopbot/shop/chat"
	"github.com/m3rciful/shopbot/shop/ledger"
	"github.com/m3rciful/shopbot/shop/session"
)

// Operator-facing messages. The operator always reads English.
const (
	msgNotFound       = "⚠️ Order #%s not found."
	msgAlreadySettled = "ℹ️ Order #%s is already %s."
	msgSettled        = "✅ Order #%s %s, customer notified."
	msgNotDelivered   = "⚠️ Order #%s: the customer could not be reached (%v)."
	msgAwaitingText   = "✍️ Send the message for the customer of order #%s."
	msgDelivered      = "📨 Message delivered to the customer of order #%s."
	msgBroadcastDone  = "📣 Broadcast finished: %d sent, %d failed."
	msgNoOrders       = "No orders."
	msgOrdersHeader   = "🧾 Orders (%d):\n"
	msgOrderLine      = "#%s · %s · %s · %s\n"
	msgOrdersMore     = "…and %d more\n"
)

var statusBadges = map[ledger.Status]string{
	ledger.StatusWaitingAdmin: "⏳ waiting",
	ledger.StatusConfirmed:    "✅ confirmed",
	ledger.StatusCancelled:    "❌ cancelled",
}

// cardText renders the operator card of an order.
func cardText(o ledger.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🛒 New order #%s\n", o.ID)
	fmt.Fprintf(&b, "📦 Service: %s\n", o.ServiceName)
	switch o.PaymentMethod {
	case session.MethodStars:
		fmt.Fprintf(&b, "💳 Paid: %s %s (Stars)\n", o.PaidAmount.String(), o.Currency)
	case session.MethodCrypto:
		fmt.Fprintf(&b, "🪙 Paid: %s %s (crypto, screenshot attached)\n", o.PaidAmount.String(), o.Currency)
	}
	fmt.Fprintf(&b, "🔖 Ref: %s\n", o.PaymentRef)
	fmt.Fprintf(&b, "📧 Email: %s\n", o.Email)
	fmt.Fprintf(&b, "👤 %s", customerLabel(o))
	if badge, ok := statusBadges[o.Status]; ok {
		fmt.Fprintf(&b, "\n\nStatus: %s", badge)
	}
	return b.String()
}

func customerLabel(o ledger.Order) string {
	name := strings.TrimSpace(o.CustomerName)
	if name == "" {
		name = "customer"
	}
	if o.CustomerLogin != "" {
		return fmt.Sprintf("%s (@%s, id %d)", name, o.CustomerLogin, o.UserID)
	}
	return fmt.Sprintf("%s (id %d)", name, o.UserID)
}

func cardKeyboard(id ledger.ID) *chat.Keyboard {
	payload := id.String()
	return &chat.Keyboard{Rows: [][]chat.Button{
		{
			{Text: "✅ Confirm", Action: ActionConfirm, Payload: payload},
			{Text: "❌ Cancel", Action: ActionCancel, Payload: payload},
		},
		{
			{Text: "✉️ Message customer", Action: ActionMessage, Payload: payload},
		},
	}}
}
