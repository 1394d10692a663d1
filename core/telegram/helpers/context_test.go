package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/shopbot/core/logger"
)

func TestBuildContextIsStored(t *testing.T) {
	b, err := tele.NewBot(tele.Settings{Offline: true})
	require.NoError(t, err)
	c := b.NewContext(tele.Update{ID: 12, Message: &tele.Message{
		Sender: &tele.User{ID: 5},
		Chat:   &tele.Chat{ID: 6},
	}})

	ctx := BuildContext(c)
	assert.Equal(t, "12:6:5", logger.RIDFrom(ctx))
	assert.Equal(t, int64(6), logger.ChatIDFrom(ctx))
	assert.Same(t, ctx, BuildContext(c))

	ctx = WithHandler(c, "start")
	assert.Equal(t, "start", logger.MetaFrom(BuildContext(c)).Handler)
	assert.Equal(t, int64(5), logger.UserIDFrom(ctx))
}

func TestBuildContextWithoutChat(t *testing.T) {
	b, err := tele.NewBot(tele.Settings{Offline: true})
	require.NoError(t, err)
	c := b.NewContext(tele.Update{ID: 3, PreCheckoutQuery: &tele.PreCheckoutQuery{
		ID:     "q",
		Sender: &tele.User{ID: 44},
	}})
	c.Set("rid", "given")

	ctx := BuildContext(c)
	assert.Equal(t, "given", logger.RIDFrom(ctx))
	assert.Equal(t, int64(44), logger.ChatIDFrom(ctx))
}
