// Package fanout implements the client-facing transport: a websocket
// hub that queues inbound RequestResource messages for the driver to
// turn into requests and batches compile results back out to connected
// clients in bounded frames.
package fanout

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/relicforge/resourceserver/internal/resource"
)

const maxResultsPerFrame = 64

// InboundRequest is one decoded RequestResource entry, queued by a
// client's read pump and drained by the driver thread on its next
// tick so that request creation happens only on the driver, per the
// concurrency model.
type InboundRequest struct {
	RawID    string
	ClientID uint32
}

// Hub owns the set of connected clients and the per-tick result
// buckets described in §4.7. It implements requestmgr.Notifier.
type Hub struct {
	mu      sync.Mutex
	clients map[uint32]*Client
	nextID  uint32

	updated  []ResultTuple
	complete map[uint32][]ResultTuple

	register   chan *Client
	unregister chan *Client
	inbound    chan InboundRequest

	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHub constructs a Hub. Decoded inbound requests accumulate on an
// internal queue for the driver to collect via Drain.
func NewHub(ctx context.Context, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}

	hubCtx, cancel := context.WithCancel(ctx)
	return &Hub{
		clients:    make(map[uint32]*Client),
		complete:   make(map[uint32][]ResultTuple),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		inbound:    make(chan InboundRequest, 1024),
		logger:     logger,
		ctx:        hubCtx,
		cancel:     cancel,
	}
}

// Run services registration traffic until the hub's context is
// cancelled or Shutdown is called.
func (h *Hub) Run() {
	h.wg.Add(1)
	defer h.wg.Done()

	for {
		select {
		case <-h.ctx.Done():
			h.disconnectAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			h.logger.Debug("client registered", zap.Uint32("client_id", client.ID))

		case client := <-h.unregister:
			h.mu.Lock()
			if existing, ok := h.clients[client.ID]; ok && existing == client {
				delete(h.clients, client.ID)
				close(client.send)
			}
			delete(h.complete, client.ID)
			h.mu.Unlock()
			h.logger.Debug("client unregistered", zap.Uint32("client_id", client.ID))
		}
	}
}

// Shutdown tears down every connection and stops Run.
func (h *Hub) Shutdown() {
	h.cancel()
	h.wg.Wait()
}

func (h *Hub) disconnectAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, client := range h.clients {
		client.closed.Store(true)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, id)
	}
	h.complete = make(map[uint32][]ResultTuple)
}

// Register assigns the next monotonic ClientID to conn and enrolls it
// with the hub. The transport mints ClientIDs; the core never does.
func (h *Hub) Register(conn *websocket.Conn) *Client {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.mu.Unlock()

	client := newClient(id, conn, h)
	h.register <- client
	return client
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// handleEnvelope decodes one inbound frame and, for RequestResource,
// queues one InboundRequest per resource id for the driver to collect
// on its next Drain. Decoding happens on the client's read pump;
// request creation happens only on the driver thread.
func (h *Hub) handleEnvelope(client *Client, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		h.logger.Warn("malformed envelope", zap.Uint32("client_id", client.ID), zap.Error(err))
		return
	}

	if env.MessageID != MsgRequestResource {
		h.logger.Debug("unrecognized message id", zap.String("message_id", env.MessageID))
		return
	}

	var payload RequestResourcePayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		h.logger.Warn("malformed RequestResource payload", zap.Uint32("client_id", client.ID), zap.Error(err))
		return
	}

	for _, rawID := range payload.ResourceIDs {
		select {
		case h.inbound <- InboundRequest{RawID: rawID, ClientID: client.ID}:
		default:
			h.logger.Warn("inbound queue full, dropping request", zap.Uint32("client_id", client.ID), zap.String("resource_id", rawID))
		}
	}
}

// Drain returns every InboundRequest queued since the last Drain,
// without blocking. Called once per server tick (§4.8 step 1).
func (h *Hub) Drain() []InboundRequest {
	var out []InboundRequest
	for {
		select {
		case item := <-h.inbound:
			out = append(out, item)
		default:
			return out
		}
	}
}

// NotifyUpdated implements requestmgr.Notifier: it queues a broadcast
// tuple for the next Flush.
func (h *Hub) NotifyUpdated(id resource.ID, filePath, log string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.updated = append(h.updated, ResultTuple{ResourceID: id.String(), FilePath: filePath, Log: log})
}

// NotifyRequestComplete implements requestmgr.Notifier: it queues a
// tuple addressed to clientID for the next Flush.
func (h *Hub) NotifyRequestComplete(clientID uint32, id resource.ID, filePath, log string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.complete[clientID] = append(h.complete[clientID], ResultTuple{ResourceID: id.String(), FilePath: filePath, Log: log})
}

// Flush drains the accumulated buckets and emits one framed message
// per chunk of at most maxResultsPerFrame tuples, per server tick.
func (h *Hub) Flush() {
	h.mu.Lock()
	updated := h.updated
	h.updated = nil
	complete := h.complete
	h.complete = make(map[uint32][]ResultTuple)
	clients := make(map[uint32]*Client, len(h.clients))
	for id, c := range h.clients {
		clients[id] = c
	}
	h.mu.Unlock()

	for _, tuples := range chunk(updated) {
		frame, err := marshalEnvelope(MsgResourceUpdated, 0, ResultsPayload{Results: tuples})
		if err != nil {
			h.logger.Warn("failed to marshal ResourceUpdated frame", zap.Error(err))
			continue
		}
		for _, c := range clients {
			c.enqueue(frame)
		}
	}

	for clientID, tuples := range complete {
		client, ok := clients[clientID]
		if !ok {
			continue
		}
		for _, group := range chunk(tuples) {
			frame, err := marshalEnvelope(MsgResourceRequestComplete, clientID, ResultsPayload{Results: group})
			if err != nil {
				h.logger.Warn("failed to marshal ResourceRequestComplete frame", zap.Error(err))
				continue
			}
			client.enqueue(frame)
		}
	}
}
