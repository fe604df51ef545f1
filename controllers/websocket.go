package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/assetra/marketx/broadcast"
	"github.com/assetra/marketx/controllers/helpers"
	"github.com/assetra/marketx/types"
)

type SubscribeMessage struct {
	Subscribe    string `json:"subscribe"`
	FromSequence uint64 `json:"from_sequence"`
}

func UpgradeWS(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}

	return fiber.ErrUpgradeRequired
}

// StreamWS serves one subscription per connection: the client names an asset
// and the sequence it last saw, and receives the gapless event stream from
// there on.
func StreamWS(c *websocket.Conn) {
	defer c.Close()

	var msg SubscribeMessage
	if err := c.ReadJSON(&msg); err != nil {
		return
	}

	if _, err := Router.Depth(msg.Subscribe, 1); err != nil {
		c.WriteJSON(helpers.Errors{Errors: []string{types.RejectUnknownAsset}})
		return
	}

	sub, backlog := subscribeStream(c, msg.Subscribe, msg.FromSequence)
	if sub == nil {
		return
	}
	defer Hub.Unsubscribe(sub)

	for _, ev := range backlog {
		if err := c.WriteJSON(ev); err != nil {
			return
		}
	}

	// Reads only drain control frames and detect the peer going away.
	readClosed := make(chan struct{})
	go func() {
		defer close(readClosed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}

			if err := c.WriteJSON(ev); err != nil {
				return
			}
		case <-readClosed:
			return
		}
	}
}

// subscribeStream resumes the client at its last sequence. When the ring no
// longer covers the gap it announces a resync, sends a fresh depth snapshot
// and re-subscribes from the snapshot's sequence; events published in
// between are still retained in the ring and arrive as backlog.
func subscribeStream(c *websocket.Conn, assetID string, from uint64) (*broadcast.Subscriber, []*broadcast.Event) {
	sub, backlog, resync := Hub.Subscribe(assetID, from)
	if !resync {
		return sub, backlog
	}

	if err := c.WriteJSON(broadcast.Event{Type: types.EventResync, AssetID: assetID}); err != nil {
		return nil, nil
	}

	depth, err := Router.Depth(assetID, 0)
	if err != nil {
		return nil, nil
	}

	sub, backlog, resync = Hub.Subscribe(assetID, depth.Sequence)
	if resync {
		return nil, nil
	}

	if err := c.WriteJSON(broadcast.Event{
		Type:     types.EventSnapshot,
		AssetID:  assetID,
		Sequence: depth.Sequence,
		Payload:  depth,
	}); err != nil {
		Hub.Unsubscribe(sub)
		return nil, nil
	}

	return sub, backlog
}
