// Package chat defines the contracts the shop core uses to reach users:
// message delivery, in-place edits and invoice issuance. The Telegram
// implementation lives in shop/bot.
package chat

import (
	"context"
	"errors"
	"fmt"
)

// ErrDelivery marks a failed transport call. Implementations wrap the
// underlying error with it so callers can use errors.Is.
var ErrDelivery = errors.New("chat: delivery failed")

// DeliveryError wraps err as an ErrDelivery.
func DeliveryError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrDelivery, err)
}

// MessageRef addresses a previously sent message so it can be edited.
type MessageRef struct {
	ChatID    int64
	MessageID int
	// Captioned marks media messages, whose caption is edited instead of text.
	Captioned bool
}

// IsZero reports whether the ref points nowhere.
func (r MessageRef) IsZero() bool { return r.ChatID == 0 && r.MessageID == 0 }

// Button is an inline button carrying an action key and payload that come
// back as a callback event.
type Button struct {
	Text    string
	Action  string
	Payload string
}

// Keyboard is an inline keyboard laid out in rows.
type Keyboard struct {
	Rows [][]Button
}

// Column builds a keyboard with one button per row.
func Column(buttons ...Button) *Keyboard {
	kb := &Keyboard{Rows: make([][]Button, 0, len(buttons))}
	for _, b := range buttons {
		kb.Rows = append(kb.Rows, []Button{b})
	}
	return kb
}

// Row builds a keyboard with all buttons on a single row.
func Row(buttons ...Button) *Keyboard {
	return &Keyboard{Rows: [][]Button{buttons}}
}

// Messenger delivers and edits messages.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string, kb *Keyboard) (MessageRef, error)
	EditMessage(ctx context.Context, ref MessageRef, text string, kb *Keyboard) error
	SendPhoto(ctx context.Context, chatID int64, fileRef, caption string, kb *Keyboard) (MessageRef, error)
}

// Invoice describes a single-item charge.
type Invoice struct {
	Title       string
	Description string
	Payload     string
	Currency    string
	Label       string
	Amount      int64
}

// Invoicer issues payment invoices.
type Invoicer interface {
	IssueInvoice(ctx context.Context, chatID int64, inv Invoice) error
}
