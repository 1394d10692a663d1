package middleware

import (
	tele "gopkg.in/telebot.v4"

	tghelpers "github.com/m3rciful/shopbot/core/telegram/helpers"
)

// ReplyMetricsMiddleware counts the replies each update produces. Senders
// report through tghelpers.NoteReply on the request context.
func ReplyMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		tghelpers.TrackReplies(c)
		return next(c)
	}
}

// GetCounters reads the reply count and keyboard flag of c.
func GetCounters(c tele.Context) (int, bool) {
	return tghelpers.RepliesOf(c).Count()
}
