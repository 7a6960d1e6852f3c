package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"taxitrack/internal/engine"
	"taxitrack/internal/metrics"
	"taxitrack/internal/route"
	"taxitrack/internal/viewmodel"
)

const (
	sendQueueSize = 8
	writeWait     = 10 * time.Second
	maxMessage    = 1 << 20
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// rendererEngine is what the hub needs from the sync engine.
type rendererEngine interface {
	Snapshot() viewmodel.ViewModel
	ViewModelChanged(vm viewmodel.ViewModel)
	RouteBuilt(ctx context.Context, vm viewmodel.ViewModel) error
}

// inbound is a renderer notification.
type inbound struct {
	Type      string               `json:"type"`
	ViewModel *viewmodel.ViewModel `json:"viewModel"`
}

type viewModelMessage struct {
	Type      string              `json:"type"`
	ViewModel viewmodel.ViewModel `json:"viewModel"`
}

type submissionMessage struct {
	Type     string `json:"type"`
	Key      string `json:"key,omitempty"`
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

const (
	msgViewModelChanged = "viewModelChanged"
	msgRouteBuilt       = "routeBuilt"
	msgRouteSubmission  = "routeSubmission"
)

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// wsHub fans published snapshots out to renderers. A slow renderer loses
// its oldest queued frames; the engine is never blocked.
type wsHub struct {
	mu      sync.Mutex
	clients map[string]*wsClient
	engine  rendererEngine
	log     *slog.Logger
	// submitCtx bounds routeBuilt submissions started by renderers.
	submitCtx     context.Context
	submitTimeout time.Duration
}

func newHub(ctx context.Context, submitTimeout time.Duration, logger *slog.Logger) *wsHub {
	return &wsHub{
		clients:       make(map[string]*wsClient),
		log:           logger.With("component", "ws"),
		submitCtx:     ctx,
		submitTimeout: submitTimeout,
	}
}

// Publish implements engine.Publisher.
func (h *wsHub) Publish(vm viewmodel.ViewModel) {
	data, err := json.Marshal(viewModelMessage{Type: msgViewModelChanged, ViewModel: vm})
	if err != nil {
		h.log.Error("encode view model", "err", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		h.enqueueLocked(c, data)
	}
}

func (h *wsHub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade error", "err", err)
		return
	}
	c := &wsClient{id: uuid.NewString(), conn: conn, send: make(chan []byte, sendQueueSize)}

	// Send the most recent snapshot so the renderer draws immediately.
	snapshot, err := json.Marshal(viewModelMessage{Type: msgViewModelChanged, ViewModel: h.engine.Snapshot()})
	if err != nil {
		h.log.Error("encode snapshot", "err", err)
		_ = conn.Close()
		return
	}
	h.add(c, snapshot)

	go h.writePump(c)
	go h.readPump(c)
}

// add queues the connect snapshot and registers c in one step, so no
// publish can reach c ahead of it.
func (h *wsHub) add(c *wsClient, snapshot []byte) {
	h.mu.Lock()
	h.enqueueLocked(c, snapshot)
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()
	metrics.RendererClients.Inc()
	h.log.Info("renderer connected", "client", c.id, "clients", n)
}

func (h *wsHub) remove(c *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	if ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	h.mu.Unlock()
	if ok {
		metrics.RendererClients.Dec()
		h.log.Info("renderer disconnected", "client", c.id)
	}
}

func (h *wsHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *wsHub) sendTo(id string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[id]; ok {
		h.enqueueLocked(c, data)
	}
}

// enqueueLocked drops the oldest frame when the queue is full. h.mu must be held.
func (h *wsHub) enqueueLocked(c *wsClient, data []byte) {
	for {
		select {
		case c.send <- data:
			return
		default:
		}
		select {
		case <-c.send:
			h.log.Debug("dropped frame for slow renderer", "client", c.id)
		default:
		}
	}
}

func (h *wsHub) writePump(c *wsClient) {
	defer c.conn.Close()
	for data := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.log.Debug("ws write error", "client", c.id, "err", err)
			h.remove(c)
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (h *wsHub) readPump(c *wsClient) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessage)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			h.log.Warn("bad renderer message", "client", c.id, "err", err)
			continue
		}
		if msg.ViewModel == nil {
			h.log.Warn("renderer message without view model", "client", c.id, "type", msg.Type)
			continue
		}
		switch msg.Type {
		case msgViewModelChanged:
			h.engine.ViewModelChanged(*msg.ViewModel)
		case msgRouteBuilt:
			go h.submit(c.id, *msg.ViewModel)
		default:
			h.log.Warn("unknown renderer message", "client", c.id, "type", msg.Type)
		}
	}
}

func (h *wsHub) submit(clientID string, vm viewmodel.ViewModel) {
	ctx, cancel := context.WithTimeout(h.submitCtx, h.submitTimeout)
	defer cancel()

	reply := submissionMessage{Type: msgRouteSubmission}
	if d, err := route.FromViewModel(vm); err == nil {
		reply.Key = d.IdempotencyKey()
	}
	err := h.engine.RouteBuilt(ctx, vm)
	switch {
	case err == nil:
		reply.Accepted = reply.Key != ""
	case errors.Is(err, engine.ErrSubmissionInFlight):
		h.log.Debug("route submission already running", "key", reply.Key)
		return
	default:
		reply.Error = err.Error()
	}
	data, err := json.Marshal(reply)
	if err != nil {
		h.log.Error("encode submission reply", "err", err)
		return
	}
	h.sendTo(clientID, data)
}
