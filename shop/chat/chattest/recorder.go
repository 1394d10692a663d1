// Package chattest provides an in-memory chat.Messenger and chat.Invoicer
// that records every call.
package chattest

import (
	"context"
	"errors"
	"sync"

	"github.com/m3rciful/shopbot/shop/chat"
)

// ErrUnreachable is returned for chats or messages marked as failing.
var ErrUnreachable = errors.New("chattest: unreachable")

// Kind distinguishes recorded calls.
type Kind string

const (
	KindSend    Kind = "send"
	KindEdit    Kind = "edit"
	KindPhoto   Kind = "photo"
	KindInvoice Kind = "invoice"
)

// Call is one recorded transport call.
type Call struct {
	Kind     Kind
	ChatID   int64
	Ref      chat.MessageRef
	Text     string
	FileRef  string
	Keyboard *chat.Keyboard
	Invoice  chat.Invoice
}

// Recorder implements chat.Messenger and chat.Invoicer.
type Recorder struct {
	mu          sync.Mutex
	nextID      int
	calls       []Call
	failChats   map[int64]bool
	failEdits   map[chat.MessageRef]bool
	failInvoice bool
}

// New returns an empty Recorder.
func New() *Recorder {
	return &Recorder{
		failChats: make(map[int64]bool),
		failEdits: make(map[chat.MessageRef]bool),
	}
}

// FailChat makes every call targeting chatID fail.
func (r *Recorder) FailChat(chatID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failChats[chatID] = true
}

// FailEdits makes edits of ref fail, as if the message was deleted.
func (r *Recorder) FailEdits(ref chat.MessageRef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failEdits[ref] = true
}

// FailInvoices makes IssueInvoice fail.
func (r *Recorder) FailInvoices(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failInvoice = fail
}

func (r *Recorder) SendMessage(_ context.Context, chatID int64, text string, kb *chat.Keyboard) (chat.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failChats[chatID] {
		return chat.MessageRef{}, chat.DeliveryError("send", ErrUnreachable)
	}
	r.nextID++
	ref := chat.MessageRef{ChatID: chatID, MessageID: r.nextID}
	r.calls = append(r.calls, Call{Kind: KindSend, ChatID: chatID, Ref: ref, Text: text, Keyboard: kb})
	return ref, nil
}

func (r *Recorder) EditMessage(_ context.Context, ref chat.MessageRef, text string, kb *chat.Keyboard) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failChats[ref.ChatID] || r.failEdits[ref] {
		return chat.DeliveryError("edit", ErrUnreachable)
	}
	r.calls = append(r.calls, Call{Kind: KindEdit, ChatID: ref.ChatID, Ref: ref, Text: text, Keyboard: kb})
	return nil
}

func (r *Recorder) SendPhoto(_ context.Context, chatID int64, fileRef, caption string, kb *chat.Keyboard) (chat.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failChats[chatID] {
		return chat.MessageRef{}, chat.DeliveryError("photo", ErrUnreachable)
	}
	r.nextID++
	ref := chat.MessageRef{ChatID: chatID, MessageID: r.nextID, Captioned: true}
	r.calls = append(r.calls, Call{Kind: KindPhoto, ChatID: chatID, Ref: ref, Text: caption, FileRef: fileRef, Keyboard: kb})
	return ref, nil
}

func (r *Recorder) IssueInvoice(_ context.Context, chatID int64, inv chat.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failInvoice || r.failChats[chatID] {
		return chat.DeliveryError("invoice", ErrUnreachable)
	}
	r.calls = append(r.calls, Call{Kind: KindInvoice, ChatID: chatID, Invoice: inv})
	return nil
}

// Calls returns a copy of all recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// To returns recorded calls for chatID, optionally filtered by kind.
func (r *Recorder) To(chatID int64, kinds ...Kind) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if c.ChatID != chatID {
			continue
		}
		if len(kinds) > 0 && !hasKind(kinds, c.Kind) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Last returns the latest call for chatID.
func (r *Recorder) Last(chatID int64) (Call, bool) {
	calls := r.To(chatID)
	if len(calls) == 0 {
		return Call{}, false
	}
	return calls[len(calls)-1], true
}

// Reset forgets recorded calls.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

func hasKind(kinds []Kind, k Kind) bool {
	for _, want := range kinds {
		if want == k {
			return true
		}
	}
	return false
}
