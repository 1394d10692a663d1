package callbacks

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Data builds the payload telebot expects for an inline button whose
// unique is key. It mirrors the encoding Parse reads back.
func Data(key, payload string) string {
	if payload == "" {
		return "\f" + key
	}
	return "\f" + key + "|" + payload
}

// Parse splits callback data in telebot's \f<unique>|<payload> encoding.
// A callback already routed by unique keeps its payload untouched.
func Parse(cb *tele.Callback) (string, string) {
	if cb == nil {
		return "", ""
	}
	if cb.Unique != "" {
		return cb.Unique, cb.Data
	}
	raw := strings.TrimPrefix(cb.Data, "\f")
	parts := strings.SplitN(raw, "|", 2)
	key := strings.TrimSpace(parts[0])
	payload := ""
	if len(parts) == 2 {
		payload = parts[1]
	}
	return key, payload
}

// Key returns the unique of the callback in c.
func Key(c tele.Context) string {
	k, _ := Parse(c.Callback())
	return k
}

// Payload returns the data after the unique.
func Payload(c tele.Context) string {
	_, p := Parse(c.Callback())
	return p
}
