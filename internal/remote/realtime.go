package remote

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
)

// Realtime reconnect backoff constants.
const (
	initialWatchBackoff   = 5 * time.Second
	watchBackoffFactor    = 2
	maxConsecutiveBackoff = 6 // 5s * 2^6 = 320s cap
)

// ChangeEvent is one change notification for a row the subscriber's
// owner can see. Op is "INSERT", "UPDATE", or "DELETE".
type ChangeEvent struct {
	Table string `json:"table"`
	Op    string `json:"op"`
	ID    string `json:"id"`
}

// subscribeMsg is the first frame sent after dialing, scoping the
// subscription to one owner's rows.
type subscribeMsg struct {
	Action  string `json:"action"`
	OwnerID string `json:"owner_id"`
}

// Subscribe opens a websocket change-notification feed scoped to
// ownerID and returns a channel of events. The feed reconnects with
// exponential backoff on any failure and runs until the context is
// canceled, at which point the channel is closed. Events that arrive
// faster than the consumer drains them are dropped (the consumer
// only uses them as a refresh hint, so losing one is harmless).
func (c *Client) Subscribe(ctx context.Context, ownerID string) <-chan ChangeEvent {
	events := make(chan ChangeEvent, 16)

	go func() {
		defer close(events)
		c.subscribeLoop(ctx, ownerID, events)
	}()

	return events
}

func (c *Client) subscribeLoop(ctx context.Context, ownerID string, events chan<- ChangeEvent) {
	wsURL := c.websocketURL()
	consecutiveFailures := 0

	for {
		if ctx.Err() != nil {
			return
		}

		err := c.runFeed(ctx, wsURL, ownerID, events, &consecutiveFailures)
		if ctx.Err() != nil {
			return
		}

		backoff := initialWatchBackoff
		exp := consecutiveFailures
		if exp > maxConsecutiveBackoff {
			exp = maxConsecutiveBackoff
		}
		for i := 0; i < exp; i++ {
			backoff *= watchBackoffFactor
		}

		c.logger.Warn("realtime feed disconnected",
			slog.String("error", errString(err)),
			slog.Duration("reconnect_in", backoff),
		)

		if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
			return
		}

		consecutiveFailures++
	}
}

// runFeed dials the feed, subscribes, and pumps events until the
// connection fails or the context is canceled. A successfully decoded
// event resets the failure counter.
func (c *Client) runFeed(ctx context.Context, wsURL, ownerID string, events chan<- ChangeEvent, consecutiveFailures *int) error {
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	sub, err := json.Marshal(subscribeMsg{Action: "subscribe", OwnerID: ownerID})
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, sub); err != nil {
		return err
	}

	c.logger.Info("realtime feed connected", slog.String("owner", ownerID))

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var ev ChangeEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			c.logger.Warn("dropping malformed realtime event", slog.String("error", err.Error()))
			continue
		}
		if ev.Table == "" {
			// Heartbeat or ack frame.
			continue
		}

		*consecutiveFailures = 0

		select {
		case events <- ev:
		default:
			c.logger.Debug("realtime event dropped (consumer busy)",
				slog.String("table", ev.Table))
		}
	}
}

// websocketURL derives the ws(s) endpoint from the HTTP base URL.
func (c *Client) websocketURL() string {
	wsBase := c.baseURL
	switch {
	case strings.HasPrefix(wsBase, "https://"):
		wsBase = "wss://" + strings.TrimPrefix(wsBase, "https://")
	case strings.HasPrefix(wsBase, "http://"):
		wsBase = "ws://" + strings.TrimPrefix(wsBase, "http://")
	}

	return wsBase + "/realtime/v1/websocket?apikey=" + url.QueryEscape(c.serviceKey)
}

func errString(err error) string {
	if err == nil {
		return "<nil>"
	}
	return err.Error()
}
