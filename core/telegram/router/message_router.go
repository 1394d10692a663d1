package router

import (
	"time"

	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/shopbot/core/telegram"
	tghelpers "github.com/m3rciful/shopbot/core/telegram/helpers"
	"github.com/m3rciful/shopbot/core/telegram/middleware"
)

// Interceptor may claim a text message before command lookup, for example
// an operator reply that is waiting for its text.
type Interceptor interface {
	Intercept(c tele.Context) (handled bool, err error)
}

// InterceptorFunc adapts a function to Interceptor.
type InterceptorFunc func(c tele.Context) (bool, error)

// Intercept calls f.
func (f InterceptorFunc) Intercept(c tele.Context) (bool, error) { return f(c) }

// TextOptions controls fallback behaviour for text and media updates.
type TextOptions struct {
	Interceptor Interceptor
	UnknownText tele.HandlerFunc
	// Photo handles images; without it photos are skipped.
	Photo tele.HandlerFunc
	// AdminID guards AdminOnly commands reached through an alias.
	AdminID int64
}

// TextRoutes builds the OnText and OnPhoto routes. Text goes to the
// interceptor first, then to a matching command (telebot sends unknown
// commands to OnText too), then to the registry fallback or UnknownText.
func TextRoutes(reg *tg.Registry, opts TextOptions) []tg.Route {
	adminOnly := middleware.AdminOnlyMiddleware(middleware.AdminOptions{AdminID: opts.AdminID})
	text := func(c tele.Context) error {
		if opts.Interceptor != nil {
			start := time.Now()
			handled, err := opts.Interceptor.Intercept(c)
			if handled || err != nil {
				summarize(tghelpers.WithHandler(c, "intercept"), c, "intercept", "", start, err)
				return err
			}
		}
		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(c.Text()); ok {
				h := cmd.Handler
				if cmd.AdminOnly {
					h = adminOnly(h)
				}
				return served(c, handlerName(key), h)
			}
			if fb := reg.TextFallback(); fb != nil {
				return served(c, "fallback", fb)
			}
		}
		return served(c, "unknown_text", opts.UnknownText)
	}
	photo := func(c tele.Context) error {
		if opts.Photo == nil {
			return served(c, "unexpected_photo", nil)
		}
		return served(c, "photo", opts.Photo)
	}

	return []tg.Route{
		{Endpoint: tele.OnText, Handler: middleware.RecoverMiddleware(middleware.LoggerMiddleware(text))},
		{Endpoint: tele.OnPhoto, Handler: middleware.RecoverMiddleware(middleware.LoggerMiddleware(photo))},
	}
}
