package helpers

import (
	"context"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"
)

const repliesSlot = "replies"

// Replies counts the messages sent while one update is handled.
type Replies struct {
	sent     atomic.Int32
	keyboard atomic.Bool
}

type repliesKey struct{}

// Count returns the number of messages sent and whether any carried a keyboard.
func (r *Replies) Count() (int, bool) {
	if r == nil {
		return 0, false
	}
	return int(r.sent.Load()), r.keyboard.Load()
}

// TrackReplies attaches a counter to c and its request context. Calling it
// again for the same update returns the existing counter.
func TrackReplies(c tele.Context) *Replies {
	if r, ok := c.Get(repliesSlot).(*Replies); ok {
		return r
	}
	r := &Replies{}
	c.Set(repliesSlot, r)
	StoreContext(c, context.WithValue(BuildContext(c), repliesKey{}, r))
	return r
}

// RepliesOf returns the counter attached by TrackReplies, or nil.
func RepliesOf(c tele.Context) *Replies {
	r, _ := c.Get(repliesSlot).(*Replies)
	return r
}

// NoteReply records an outbound message for the update behind ctx. Calls
// made outside an update, such as countdown ticks, are not counted.
func NoteReply(ctx context.Context, keyboard bool) {
	if ctx == nil {
		return
	}
	r, _ := ctx.Value(repliesKey{}).(*Replies)
	if r == nil {
		return
	}
	r.sent.Add(1)
	if keyboard {
		r.keyboard.Store(true)
	}
}
