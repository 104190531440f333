package netsync

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/mysticduel/duel-server/internal/game"
	"github.com/mysticduel/duel-server/internal/game/rules"
)

var (
	// ErrAckTimeout is returned when the authority does not answer a
	// request within the ack timeout. It is a network failure, not a
	// rules failure.
	ErrAckTimeout = errors.New("ack timeout")
	// ErrPeerUnreachable is returned when the authority cannot be reached
	// or the connection is gone.
	ErrPeerUnreachable = errors.New("peer unreachable")
)

// ClientConfig configures a sync client.
type ClientConfig struct {
	// URL is the websocket endpoint, e.g. ws://localhost:8080/ws.
	URL     string
	MatchID string
	// Seat is the side actions are sent for. Empty connects read-only.
	Seat            rules.Seat
	ConnectTimeout  time.Duration
	AckTimeout      time.Duration
	MaxMessageBytes int64
}

func (c ClientConfig) endpoint() (string, error) {
	u, err := url.Parse(c.URL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", c.URL, err)
	}
	q := u.Query()
	q.Set("match", c.MatchID)
	if c.Seat != "" {
		q.Set("seat", string(c.Seat))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// StateHandler is called after a state is installed in the mirror.
type StateHandler func(snap *game.MatchSnapshot, events []rules.Event)

// PauseHandler is called when the authority pauses or resumes the match.
type PauseHandler func(paused bool, reason string)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithStateHandler sets the state callback.
func WithStateHandler(h StateHandler) ClientOption {
	return func(c *Client) { c.onState = h }
}

// WithPauseHandler sets the pause callback.
func WithPauseHandler(h PauseHandler) ClientOption {
	return func(c *Client) { c.onPause = h }
}

// Client is the non-authoritative end of a match connection. It keeps a
// Mirror current, acknowledges every installed state and asks for a
// resync when the mirror falls out of step.
type Client struct {
	cfg     ClientConfig
	conn    *websocket.Conn
	mirror  *Mirror
	logger  *zap.Logger
	onState StateHandler
	onPause PauseHandler

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu             sync.Mutex
	nextReq        uint64
	pending        map[uint64]chan Envelope
	resyncRequired bool
	err            error
}

// Dial connects to the authority. The dial is bounded by the connect
// timeout; failing to connect is reported as ErrPeerUnreachable.
func Dial(ctx context.Context, cfg ClientConfig, mirror *Mirror, logger *zap.Logger, opts ...ClientOption) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = 5 * time.Second
	}
	endpoint, err := cfg.endpoint()
	if err != nil {
		return nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPeerUnreachable, err)
	}
	if cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(cfg.MaxMessageBytes)
	}

	c := &Client{
		cfg:     cfg,
		conn:    conn,
		mirror:  mirror,
		logger:  logger.With(zap.String("match_id", cfg.MatchID), zap.String("seat", string(cfg.Seat))),
		done:    make(chan struct{}),
		pending: make(map[uint64]chan Envelope),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	go c.readLoop()
	c.logger.Info("connected to match", zap.String("url", endpoint))
	return c, nil
}

// Mirror returns the mirror the client keeps current.
func (c *Client) Mirror() *Mirror { return c.mirror }

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns why the connection ended.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close ends the connection.
func (c *Client) Close() error {
	err := c.conn.Close(websocket.StatusNormalClosure, "client closing")
	c.cancel()
	<-c.done
	return err
}

// InitDeck submits the seat's deck.
func (c *Client) InitDeck(ctx context.Context, deck []string) error {
	return c.Submit(ctx, MsgInitDeck, ActionPayload{Deck: deck})
}

// PlayCard plays a card from hand.
func (c *Client) PlayCard(ctx context.Context, cardID string, target *game.Target) error {
	return c.Submit(ctx, MsgPlayCard, ActionPayload{CardID: cardID, Target: target})
}

// DeclareAttack attacks with a creature.
func (c *Client) DeclareAttack(ctx context.Context, attackerID string, target game.Target) error {
	return c.Submit(ctx, MsgDeclareAttack, ActionPayload{AttackerID: attackerID, Target: &target})
}

// EndTurn ends the seat's turn.
func (c *Client) EndTurn(ctx context.Context) error {
	return c.Submit(ctx, MsgEndTurn, nil)
}

// Submit sends an action and waits for the authority's answer. A reject
// comes back as *rules.Violation; no answer within the ack timeout is
// ErrAckTimeout.
func (c *Client) Submit(ctx context.Context, typ MessageType, payload any) error {
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrPeerUnreachable, err)
	}
	c.nextReq++
	req := c.nextReq
	answer := make(chan Envelope, 1)
	c.pending[req] = answer
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, req)
		c.mu.Unlock()
	}()

	if err := c.send(ctx, typ, req, payload); err != nil {
		return err
	}

	timer := time.NewTimer(c.cfg.AckTimeout)
	defer timer.Stop()
	select {
	case env := <-answer:
		if env.Type != MsgReject {
			return nil
		}
		var p RejectPayload
		if err := env.DecodePayload(&p); err != nil {
			return err
		}
		if p.Code == "" {
			return errors.New(p.Message)
		}
		return p.Violation()
	case <-timer.C:
		return fmt.Errorf("%w: %s request %d", ErrAckTimeout, typ, req)
	case <-c.done:
		return fmt.Errorf("%w: connection closed", ErrPeerUnreachable)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RequestResync asks the authority for a full snapshot.
func (c *Client) RequestResync(ctx context.Context) error {
	c.mu.Lock()
	c.resyncRequired = true
	c.mu.Unlock()
	return c.send(ctx, MsgResync, 0, nil)
}

func (c *Client) send(ctx context.Context, typ MessageType, seq uint64, payload any) error {
	data, err := Encode(typ, seq, payload)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, c.cfg.AckTimeout)
	defer cancel()
	if err := c.conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrPeerUnreachable, typ, err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			c.mu.Lock()
			c.err = err
			c.mu.Unlock()
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				c.logger.Warn("connection lost", zap.Error(err))
			}
			return
		}
		env, err := Decode(data)
		if err != nil {
			c.logger.Warn("dropping message", zap.Error(err))
			continue
		}
		c.handle(env)
	}
}

func (c *Client) handle(env Envelope) {
	switch env.Type {
	case MsgState:
		c.handleState(env)
	case MsgAck, MsgReject:
		c.mu.Lock()
		answer, ok := c.pending[env.Seq]
		c.mu.Unlock()
		if ok {
			answer <- env
			return
		}
		if env.Type == MsgReject {
			var p RejectPayload
			if err := env.DecodePayload(&p); err != nil {
				c.logger.Warn("undecodable reject", zap.Uint64("seq", env.Seq), zap.Error(err))
				return
			}
			c.logger.Warn("unsolicited reject", zap.String("code", string(p.Code)), zap.String("message", p.Message))
		}
	case MsgPaused, MsgResumed:
		var p PausePayload
		if len(env.Payload) > 0 {
			if err := env.DecodePayload(&p); err != nil {
				c.logger.Warn("undecodable pause payload", zap.String("type", string(env.Type)), zap.Error(err))
			}
		}
		paused := env.Type == MsgPaused
		c.logger.Info("match pause state changed", zap.Bool("paused", paused), zap.String("reason", p.Reason))
		if c.onPause != nil {
			c.onPause(paused, p.Reason)
		}
	default:
		c.logger.Debug("ignoring message", zap.String("type", string(env.Type)))
	}
}

func (c *Client) handleState(env Envelope) {
	var p StatePayload
	if err := env.DecodePayload(&p); err != nil {
		c.mirror.MarkDesynchronized(err)
		c.resync()
		return
	}
	err := c.mirror.Apply(p.Snapshot, p.Resync)
	switch {
	case err == nil:
		if p.Resync {
			c.mu.Lock()
			c.resyncRequired = false
			c.mu.Unlock()
		}
		if err := c.send(c.ctx, MsgAck, p.Snapshot.Seq, nil); err != nil {
			c.logger.Warn("failed to ack state", zap.Uint64("seq", p.Snapshot.Seq), zap.Error(err))
		}
		if c.onState != nil {
			c.onState(c.mirror.Snapshot(), p.Events)
		}
	case errors.Is(err, ErrDesynchronized):
		c.resync()
	default:
		c.logger.Warn("state rejected by mirror", zap.Error(err))
		c.resync()
	}
}

// resync requests a snapshot unless one is already outstanding.
func (c *Client) resync() {
	c.mu.Lock()
	outstanding := c.resyncRequired
	c.resyncRequired = true
	c.mu.Unlock()
	if outstanding {
		return
	}
	if err := c.send(c.ctx, MsgResync, 0, nil); err != nil {
		c.logger.Warn("failed to request resync", zap.Error(err))
	}
}
