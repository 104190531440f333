package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mysticduel/duel-server/internal/game"
	"github.com/mysticduel/duel-server/internal/game/rules"
	"github.com/mysticduel/duel-server/internal/netsync"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	requestTimeout = 10 * time.Second
	sendBuffer     = 64
)

// HubConfig configures the match websocket endpoint.
type HubConfig struct {
	AckTimeout       time.Duration
	MaxMessageBytes  int64
	CompactSnapshots bool
}

// client is one websocket connection to a match. Seat is empty for
// read-only spectators.
type client struct {
	hub     *Hub
	conn    *websocket.Conn
	matchID string
	seat    rules.Seat
	logger  *zap.Logger

	mu        sync.Mutex
	send      chan []byte
	closed    bool
	awaiting  bool
	ackSeq    uint64
	ackTimer  *time.Timer
	resyncing bool
}

// Hub is the authoritative end of the sync protocol. It fans engine
// notifications out to every client of a match, turns inbound envelopes
// into engine actions, and pauses a match whose seated peer stops
// acknowledging states.
type Hub struct {
	engine   *game.Engine
	cfg      HubConfig
	logger   *zap.Logger
	upgrader websocket.Upgrader

	register      chan *client
	unregister    chan *client
	notifications chan game.Notification
	done          chan struct{}

	mu    sync.RWMutex
	rooms map[string]map[*client]bool
}

// NewHub creates a hub and installs it as the engine's notification
// handler. Run must be started before clients connect.
func NewHub(engine *game.Engine, cfg HubConfig, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = 5 * time.Second
	}
	h := &Hub{
		engine: engine,
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		register:      make(chan *client),
		unregister:    make(chan *client),
		notifications: make(chan game.Notification, 256),
		done:          make(chan struct{}),
		rooms:         make(map[string]map[*client]bool),
	}
	engine.SetNotificationHandler(h.Notify)
	return h
}

// Notify queues an engine notification without blocking the match.
// A dropped state shows up as a sequence gap on the peers, which then
// ask for a resync.
func (h *Hub) Notify(n game.Notification) {
	select {
	case h.notifications <- n:
	default:
		h.logger.Warn("notification dropped", zap.String("match_id", n.MatchID), zap.Uint64("seq", n.Seq))
	}
}

// Run processes registrations and notifications until ctx ends, then
// closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			room, ok := h.rooms[c.matchID]
			if !ok {
				room = make(map[*client]bool)
				h.rooms[c.matchID] = room
			}
			room[c] = true
			h.mu.Unlock()
			c.logger.Info("client registered")

		case c := <-h.unregister:
			h.remove(c)

		case n := <-h.notifications:
			h.dispatch(n)

		case <-ctx.Done():
			h.mu.Lock()
			for _, room := range h.rooms {
				for c := range room {
					c.close()
				}
			}
			h.rooms = make(map[string]map[*client]bool)
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if room, ok := h.rooms[c.matchID]; ok && room[c] {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, c.matchID)
		}
		c.logger.Info("client unregistered")
	}
	h.mu.Unlock()
	c.close()
}

func (h *Hub) clients(matchID string) []*client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*client, 0, len(h.rooms[matchID]))
	for c := range h.rooms[matchID] {
		out = append(out, c)
	}
	return out
}

// Clients returns how many connections a match has.
func (h *Hub) Clients(matchID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[matchID])
}

func (h *Hub) dispatch(n game.Notification) {
	clients := h.clients(n.MatchID)
	if len(clients) == 0 {
		return
	}
	switch n.Type {
	case game.NotifyPaused:
		h.broadcast(clients, netsync.MsgPaused, n.Seq, netsync.PausePayload{Reason: n.Reason})
	case game.NotifyResumed:
		h.broadcast(clients, netsync.MsgResumed, n.Seq, nil)
	case game.NotifyOver:
		// The final state went out with the STATE notification.
		return
	}

	var events []rules.Event
	if n.Result != nil {
		events = n.Result.Events
	}
	data, err := h.encodeState(n.Snapshot, events, false)
	if err != nil {
		h.logger.Error("failed to encode state", zap.String("match_id", n.MatchID), zap.Error(err))
		return
	}
	for _, c := range clients {
		c.deliverState(data, n.Snapshot.Seq)
	}
}

func (h *Hub) broadcast(clients []*client, typ netsync.MessageType, seq uint64, payload any) {
	data, err := netsync.Encode(typ, seq, payload)
	if err != nil {
		h.logger.Error("failed to encode message", zap.String("type", string(typ)), zap.Error(err))
		return
	}
	for _, c := range clients {
		c.enqueue(data)
	}
}

func (h *Hub) encodeState(snap *game.MatchSnapshot, events []rules.Event, resync bool) ([]byte, error) {
	if h.cfg.CompactSnapshots {
		compact, err := netsync.Compact(snap, h.engine.Factory().Catalog())
		if err != nil {
			return nil, err
		}
		snap = compact
	}
	return netsync.Encode(netsync.MsgState, snap.Seq, netsync.StatePayload{
		Snapshot: snap,
		Events:   events,
		Resync:   resync,
	})
}

// ForceResync sends a full resync state to every client of a match and
// returns how many clients it reached.
func (h *Hub) ForceResync(ctx context.Context, matchID string) (int, error) {
	snap, err := h.engine.Snapshot(ctx, matchID)
	if err != nil {
		return 0, err
	}
	data, err := h.encodeState(snap, nil, true)
	if err != nil {
		return 0, err
	}
	clients := h.clients(matchID)
	for _, c := range clients {
		c.markResyncing()
		c.deliverState(data, snap.Seq)
	}
	h.logger.Info("forced resync", zap.String("match_id", matchID), zap.Int("clients", len(clients)))
	return len(clients), nil
}

// ServeHTTP upgrades a request for /ws?match=<id>&seat=<host|guest>. A
// match that is not hosted is restored from the snapshot store when
// possible.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	matchID := r.URL.Query().Get("match")
	if matchID == "" {
		http.Error(w, "match is required", http.StatusBadRequest)
		return
	}
	seat := rules.Seat(r.URL.Query().Get("seat"))
	if seat != "" && !seat.Valid() {
		http.Error(w, fmt.Sprintf("unknown seat %q", seat), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	if _, err := h.engine.Snapshot(ctx, matchID); errors.Is(err, game.ErrMatchNotFound) {
		if rerr := h.engine.RestoreMatch(ctx, matchID); rerr != nil && !errors.Is(rerr, game.ErrMatchExists) {
			h.logger.Debug("match not restorable", zap.String("match_id", matchID), zap.Error(rerr))
			http.Error(w, "match not found", http.StatusNotFound)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		hub:     h,
		conn:    conn,
		matchID: matchID,
		seat:    seat,
		send:    make(chan []byte, sendBuffer),
		logger: h.logger.With(
			zap.String("match_id", matchID),
			zap.String("seat", string(seat)),
			zap.String("remote", r.RemoteAddr),
		),
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()

	// Registered first, so no state after this snapshot is missed.
	snap, err := h.engine.Snapshot(ctx, matchID)
	if err != nil {
		c.logger.Warn("initial snapshot failed", zap.Error(err))
		return
	}
	data, err := h.encodeState(snap, nil, false)
	if err != nil {
		c.logger.Error("failed to encode state", zap.Error(err))
		return
	}
	c.deliverState(data, snap.Seq)
}

func (c *client) enqueue(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("send buffer full, closing client")
		c.closeLocked()
	}
}

// deliverState starts waiting for the state's ack (seated clients only)
// and then queues it, so an ack can never arrive before it is expected.
// The deadline runs from the oldest unacknowledged state.
func (c *client) deliverState(data []byte, seq uint64) {
	if c.seat != "" {
		c.expectAck(seq)
	}
	c.enqueue(data)
}

func (c *client) expectAck(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if seq > c.ackSeq || !c.awaiting {
		c.ackSeq = seq
	}
	if c.awaiting {
		return
	}
	c.awaiting = true
	if c.ackTimer == nil {
		c.ackTimer = time.AfterFunc(c.hub.cfg.AckTimeout, c.ackTimedOut)
	} else {
		c.ackTimer.Reset(c.hub.cfg.AckTimeout)
	}
}

func (c *client) markResyncing() {
	c.mu.Lock()
	c.resyncing = true
	c.mu.Unlock()
}

func (c *client) ackTimedOut() {
	c.mu.Lock()
	if !c.awaiting || c.closed {
		c.mu.Unlock()
		return
	}
	c.awaiting = false
	seq := c.ackSeq
	c.mu.Unlock()

	reason := fmt.Sprintf("%s did not acknowledge state %d within %s", c.seat, seq, c.hub.cfg.AckTimeout)
	c.logger.Warn("ack timeout, pausing match", zap.Uint64("seq", seq))
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := c.hub.engine.Pause(ctx, c.matchID, reason); err != nil {
		c.logger.Warn("failed to pause match", zap.Error(err))
	}
}

// acked records an ack. An ack that answers a resync resumes the match.
func (c *client) acked(seq uint64) {
	c.mu.Lock()
	if !c.awaiting {
		c.mu.Unlock()
		return
	}
	if seq < c.ackSeq {
		// Progress on an older state restarts the deadline.
		c.ackTimer.Reset(c.hub.cfg.AckTimeout)
		c.mu.Unlock()
		return
	}
	c.awaiting = false
	if c.ackTimer != nil {
		c.ackTimer.Stop()
	}
	resume := c.resyncing
	c.resyncing = false
	c.mu.Unlock()

	if !resume {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := c.hub.engine.Resume(ctx, c.matchID); err != nil {
		c.logger.Warn("failed to resume match", zap.Error(err))
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	c.awaiting = false
	if c.ackTimer != nil {
		c.ackTimer.Stop()
	}
	close(c.send)
}

func (c *client) reply(typ netsync.MessageType, seq uint64, payload any) {
	data, err := netsync.Encode(typ, seq, payload)
	if err != nil {
		c.logger.Error("failed to encode reply", zap.Error(err))
		return
	}
	c.enqueue(data)
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	if c.hub.cfg.MaxMessageBytes > 0 {
		c.conn.SetReadLimit(c.hub.cfg.MaxMessageBytes)
	}
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("connection lost", zap.Error(err))
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		env, err := netsync.Decode(message)
		if err != nil {
			c.reply(netsync.MsgReject, 0, netsync.RejectPayload{Code: rules.CodeUnknownAction, Message: err.Error()})
			continue
		}
		c.handle(env)
	}
}

func (c *client) handle(env netsync.Envelope) {
	switch {
	case env.Type == netsync.MsgAck:
		c.acked(env.Seq)

	case env.Type == netsync.MsgResync:
		c.resync()

	case env.IsAction():
		if c.seat == "" {
			c.reply(netsync.MsgReject, env.Seq, netsync.RejectPayload{
				Code:    rules.CodeNotYourTurn,
				Message: "spectators cannot act",
			})
			return
		}
		action, err := env.Action(c.seat)
		if err != nil {
			c.reply(netsync.MsgReject, env.Seq, netsync.RejectPayload{Code: rules.CodeUnknownAction, Message: err.Error()})
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if _, err := c.hub.engine.Submit(ctx, c.matchID, action); err != nil {
			if _, ok := rules.AsViolation(err); !ok {
				c.logger.Warn("action failed", zap.String("type", string(env.Type)), zap.Error(err))
			}
			c.reply(netsync.MsgReject, env.Seq, netsync.RejectFor(err))
			return
		}
		c.reply(netsync.MsgAck, env.Seq, nil)

	default:
		c.reply(netsync.MsgReject, env.Seq, netsync.RejectPayload{
			Code:    rules.CodeUnknownAction,
			Message: fmt.Sprintf("unknown message type %q", env.Type),
		})
	}
}

func (c *client) resync() {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	snap, err := c.hub.engine.Snapshot(ctx, c.matchID)
	if err != nil {
		c.logger.Warn("resync snapshot failed", zap.Error(err))
		c.reply(netsync.MsgReject, 0, netsync.RejectFor(err))
		return
	}
	data, err := c.hub.encodeState(snap, nil, true)
	if err != nil {
		c.logger.Error("failed to encode state", zap.Error(err))
		return
	}
	c.logger.Info("resync requested", zap.Uint64("seq", snap.Seq))
	c.markResyncing()
	c.deliverState(data, snap.Seq)
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
