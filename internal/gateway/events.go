package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/flemzord/qaindex/internal/qaindex"
)

// eventHub fans committed store events out to WebSocket clients. publish
// runs on the store's committing goroutine and never blocks: a client
// whose queue is full is marked lagging and disconnected.
type eventHub struct {
	mu      sync.Mutex
	clients map[*eventClient]struct{}
	buffer  int
	metrics *Metrics
}

type eventClient struct {
	ch      chan qaindex.Event
	lagging chan struct{}
	once    sync.Once
}

func newEventHub(buffer int, metrics *Metrics) *eventHub {
	return &eventHub{
		clients: make(map[*eventClient]struct{}),
		buffer:  buffer,
		metrics: metrics,
	}
}

func (h *eventHub) add() *eventClient {
	c := &eventClient{
		ch:      make(chan qaindex.Event, h.buffer),
		lagging: make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.metrics.streams.Add(1)
	return c
}

func (h *eventHub) remove(c *eventClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	h.metrics.streams.Add(-1)
}

func (h *eventHub) publish(ev qaindex.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.ch <- ev:
		default:
			h.metrics.eventsDropped.Add(1)
			c.once.Do(func() { close(c.lagging) })
		}
	}
}

// handleEvents upgrades to a WebSocket and streams one JSON text message
// per committed mutation until the client disconnects.
func (g *Gateway) handleEvents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			g.logger.Error("websocket accept failed", "error", err)
			return
		}
		defer func() {
			_ = conn.Close(websocket.StatusInternalError, "unexpected close")
		}()

		client := g.events.add()
		defer g.events.remove(client)

		// Clients only listen; CloseRead cancels ctx when they go away.
		ctx := conn.CloseRead(r.Context())

		for {
			select {
			case <-ctx.Done():
				_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			case <-client.lagging:
				_ = conn.Close(websocket.StatusPolicyViolation, "event stream lagging")
				return
			case ev := <-client.ch:
				if err := g.sendEvent(ctx, conn, ev); err != nil {
					return
				}
			}
		}
	}
}

func (g *Gateway) sendEvent(ctx context.Context, conn *websocket.Conn, ev qaindex.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		return err
	}
	g.metrics.eventsSent.Add(1)
	return nil
}
