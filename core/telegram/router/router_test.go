package router

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/shopbot/core/telegram"
)

func textUpdate(id int, userID int64, text string) tele.Update {
	return tele.Update{ID: id, Message: &tele.Message{
		Sender: &tele.User{ID: userID},
		Chat:   &tele.Chat{ID: userID},
		Text:   text,
	}}
}

func TestTextRoutesOrder(t *testing.T) {
	b, err := tele.NewBot(tele.Settings{Offline: true})
	require.NoError(t, err)

	var seen []string
	record := func(name string) tele.HandlerFunc {
		return func(tele.Context) error {
			seen = append(seen, name)
			return nil
		}
	}
	reg := tg.NewRegistry()
	require.NoError(t, reg.RegisterCommand("/orders", tg.Command{
		Handler: record("orders"), Description: "Orders", AdminOnly: true, Aliases: []string{"list"},
	}))

	routes := TextRoutes(reg, TextOptions{
		AdminID: 1,
		Interceptor: InterceptorFunc(func(c tele.Context) (bool, error) {
			if c.Text() == "claimed" {
				seen = append(seen, "intercept")
				return true, nil
			}
			return false, nil
		}),
		UnknownText: record("unknown"),
	})
	require.Len(t, routes, 2)
	text := routes[0].Handler
	assert.Equal(t, tele.OnText, routes[0].Endpoint)

	require.NoError(t, text(b.NewContext(textUpdate(1, 1, "claimed"))))
	require.NoError(t, text(b.NewContext(textUpdate(2, 1, "/list done"))))
	require.NoError(t, text(b.NewContext(textUpdate(3, 2, "/list"))))
	require.NoError(t, text(b.NewContext(textUpdate(4, 2, "hello"))))
	assert.Equal(t, []string{"intercept", "orders", "unknown"}, seen)

	photo := routes[1].Handler
	assert.NoError(t, photo(b.NewContext(textUpdate(5, 2, ""))))
}

func TestTextRoutesReturnHandlerErrors(t *testing.T) {
	b, err := tele.NewBot(tele.Settings{Offline: true})
	require.NoError(t, err)
	boom := errors.New("boom")
	routes := TextRoutes(nil, TextOptions{UnknownText: func(tele.Context) error { return boom }})
	assert.ErrorIs(t, routes[0].Handler(b.NewContext(textUpdate(1, 1, "x"))), boom)
}

type codedErr struct{}

func (codedErr) Error() string { return "coded" }
func (codedErr) Code() string  { return "order not found" }

func TestErrCodeAndHandlerName(t *testing.T) {
	assert.Equal(t, "ORDER_NOT_FOUND", errCode(codedErr{}))
	assert.Equal(t, "ERRORSTRING", errCode(errors.New("x")))
	assert.Equal(t, "orders", handlerName(" /Orders "))
	assert.Equal(t, "unknown", handlerName(""))
}

func TestCommandRoutesGuardAdminCommands(t *testing.T) {
	b, err := tele.NewBot(tele.Settings{Offline: true})
	require.NoError(t, err)
	var calls int
	reg := tg.NewRegistry()
	require.NoError(t, reg.RegisterCommand("/broadcast", tg.Command{
		Handler:     func(tele.Context) error { calls++; return nil },
		Description: "Broadcast",
		AdminOnly:   true,
	}))

	routes := CommandRoutes(reg, CommandRouteOptions{AdminID: 9})
	require.Len(t, routes, 1)
	assert.Equal(t, "/broadcast", routes[0].Endpoint)

	require.NoError(t, routes[0].Handler(b.NewContext(textUpdate(1, 3, "/broadcast hi"))))
	require.NoError(t, routes[0].Handler(b.NewContext(textUpdate(2, 9, "/broadcast hi"))))
	assert.Equal(t, 1, calls)
}
