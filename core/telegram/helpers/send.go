package helpers

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

var dispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher sets the queue used by SendText. Nil sends inline.
func SetDispatcher(d *sender.Dispatcher) {
	dispatcher.Store(d)
}

// SendText replies to the current chat with plain text. With a dispatcher
// set the reply is queued and retried; a full or closed queue falls back to
// sending inline.
func SendText(c tele.Context, text string, opts ...any) error {
	ctx := BuildContext(c)
	run := func() error {
		if err := c.Send(text, opts...); err != nil {
			return err
		}
		NoteReply(ctx, false)
		return nil
	}

	d := dispatcher.Load()
	if d == nil {
		return run()
	}
	err := d.Enqueue(ctx, "send.text", "sendMessage", run)
	if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
		logger.Warn(ctx, "tg.sender", "queue.fallback", slog.String("err", err.Error()))
		return run()
	}
	return err
}
