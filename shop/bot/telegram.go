// Package bot connects the shop core to Telegram: it implements the chat
// contracts on top of telebot and translates updates into flow events and
// operator commands.
package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	tele "gopkg.in/telebot.v4"

	tghelpers "github.com/m3rciful/shopbot/core/telegram/helpers"
	"github.com/m3rciful/shopbot/core/telegram/keyboard"
	tgsender "github.com/m3rciful/shopbot/core/telegram/sender"
	"github.com/m3rciful/shopbot/shop/chat"
)

// ErrNotBound is returned by Telegram before the bot is attached.
var ErrNotBound = errors.New("bot: telegram api not bound")

// API is the subset of *tele.Bot the adapter calls.
type API interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error)
	EditCaption(msg tele.Editable, caption string, opts ...interface{}) (*tele.Message, error)
}

// Telegram implements chat.Messenger and chat.Invoicer. The bot only exists
// once the runtime has started, so it is bound late.
type Telegram struct {
	mu   sync.RWMutex
	api  API
	disp *tgsender.Dispatcher
}

var (
	_ chat.Messenger = (*Telegram)(nil)
	_ chat.Invoicer  = (*Telegram)(nil)
)

// NewTelegram returns an unbound adapter.
func NewTelegram() *Telegram { return &Telegram{} }

// Bind attaches the API and the dispatcher whose retry policy wraps every
// call. A nil dispatcher calls the API directly.
func (t *Telegram) Bind(api API, disp *tgsender.Dispatcher) {
	t.mu.Lock()
	t.api = api
	t.disp = disp
	t.mu.Unlock()
}

func (t *Telegram) do(ctx context.Context, action, endpoint string, kb *chat.Keyboard, run func(API) error) error {
	t.mu.RLock()
	api, disp := t.api, t.disp
	t.mu.RUnlock()
	if api == nil {
		return chat.DeliveryError(action, ErrNotBound)
	}
	call := func() error { return run(api) }
	var err error
	if disp != nil {
		err = disp.Do(ctx, action, endpoint, call)
	} else {
		err = call()
	}
	if err == nil {
		tghelpers.NoteReply(ctx, kb != nil)
	}
	return chat.DeliveryError(action, err)
}

// SendMessage sends plain text.
func (t *Telegram) SendMessage(ctx context.Context, chatID int64, text string, kb *chat.Keyboard) (chat.MessageRef, error) {
	var ref chat.MessageRef
	err := t.do(ctx, "send.message", "sendMessage", kb, func(api API) error {
		m, err := api.Send(tele.ChatID(chatID), text, sendOptions(kb))
		if err != nil {
			return err
		}
		ref = refOf(m, chatID, false)
		return nil
	})
	return ref, err
}

// SendPhoto sends a photo by file id with a caption.
func (t *Telegram) SendPhoto(ctx context.Context, chatID int64, fileRef, caption string, kb *chat.Keyboard) (chat.MessageRef, error) {
	var ref chat.MessageRef
	err := t.do(ctx, "send.photo", "sendPhoto", kb, func(api API) error {
		photo := &tele.Photo{File: tele.File{FileID: fileRef}, Caption: caption}
		m, err := api.Send(tele.ChatID(chatID), photo, sendOptions(kb))
		if err != nil {
			return err
		}
		ref = refOf(m, chatID, true)
		return nil
	})
	return ref, err
}

// EditMessage replaces the text, or the caption of a media message.
// Re-sending identical content is not an error.
func (t *Telegram) EditMessage(ctx context.Context, ref chat.MessageRef, text string, kb *chat.Keyboard) error {
	stored := tele.StoredMessage{MessageID: strconv.Itoa(ref.MessageID), ChatID: ref.ChatID}
	action, endpoint := "edit.message", "editMessageText"
	if ref.Captioned {
		action, endpoint = "edit.caption", "editMessageCaption"
	}
	return t.do(ctx, action, endpoint, kb, func(api API) error {
		var err error
		if ref.Captioned {
			_, err = api.EditCaption(stored, text, sendOptions(kb))
		} else {
			_, err = api.Edit(stored, text, sendOptions(kb))
		}
		if notModified(err) {
			return nil
		}
		return err
	})
}

// IssueInvoice sends a single-price invoice.
func (t *Telegram) IssueInvoice(ctx context.Context, chatID int64, inv chat.Invoice) error {
	return t.do(ctx, "send.invoice", "sendInvoice", nil, func(api API) error {
		_, err := api.Send(tele.ChatID(chatID), &tele.Invoice{
			Title:       inv.Title,
			Description: inv.Description,
			Payload:     inv.Payload,
			Currency:    inv.Currency,
			Prices:      []tele.Price{{Label: inv.Label, Amount: int(inv.Amount)}},
		})
		return err
	})
}

func sendOptions(kb *chat.Keyboard) *tele.SendOptions {
	opts := &tele.SendOptions{DisableWebPagePreview: true}
	if kb != nil {
		opts.ReplyMarkup = Markup(kb)
	}
	return opts
}

// Markup renders a chat keyboard as an inline markup.
func Markup(kb *chat.Keyboard) *tele.ReplyMarkup {
	rows := make([][]keyboard.InlineBtn, 0, len(kb.Rows))
	for _, row := range kb.Rows {
		r := make([]keyboard.InlineBtn, 0, len(row))
		for _, b := range row {
			r = append(r, keyboard.InlineBtn{Text: b.Text, Unique: b.Action, Data: b.Payload})
		}
		rows = append(rows, r)
	}
	return keyboard.InlineButtonsRows(rows...)
}

func refOf(m *tele.Message, chatID int64, captioned bool) chat.MessageRef {
	if m == nil {
		return chat.MessageRef{ChatID: chatID, Captioned: captioned}
	}
	if m.Chat != nil {
		chatID = m.Chat.ID
	}
	return chat.MessageRef{ChatID: chatID, MessageID: m.ID, Captioned: captioned}
}

func notModified(err error) bool {
	return err != nil && strings.Contains(err.Error(), "message is not modified")
}
