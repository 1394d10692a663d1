package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/m3rciful/shopbot/shop/chat"
	"github.com/m3rciful/shopbot/shop/countdown"
	"github.com/m3rciful/shopbot/shop/texts"
)

// Tick re-renders the processing notice with the time left.
func (c *Controller) Tick(ctx context.Context, t countdown.Timer, remaining time.Duration) error {
	v, ok := c.viewFor(t)
	if !ok {
		return fmt.Errorf("flow: countdown for order %s was superseded", t.Label)
	}
	if err := c.msg.EditMessage(ctx, t.Anchor, c.processingText(v, remaining), nil); err != nil {
		c.dropView(t.SessionKey, t.Label)
		return err
	}
	return nil
}

// Expire turns the processing notice into the unlock notice with a
// support button.
func (c *Controller) Expire(ctx context.Context, t countdown.Timer) error {
	v, ok := c.viewFor(t)
	if !ok {
		v = orderView{lang: texts.Default, orderID: t.Label}
	}
	c.dropView(t.SessionKey, t.Label)
	kb := chat.Column(chat.Button{Text: texts.T(v.lang, texts.SupportButton), Action: ActionSupport})
	return c.msg.EditMessage(ctx, t.Anchor, texts.T(v.lang, texts.OrderUnlocked, v.orderID), kb)
}

func (c *Controller) setView(userID int64, v orderView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.views[userID] = v
}

func (c *Controller) viewFor(t countdown.Timer) (orderView, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.views[t.SessionKey]
	if !ok || v.orderID != t.Label {
		return orderView{}, false
	}
	return v, true
}

// dropView forgets the view for userID if it still belongs to orderID.
func (c *Controller) dropView(userID int64, orderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.views[userID]; ok && v.orderID == orderID {
		delete(c.views, userID)
	}
}
