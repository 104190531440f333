// Package netsync defines the host/guest sync protocol and the
// non-authoritative side of it: a read-only mirror of a match and a
// websocket client that keeps the mirror current.
package netsync

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mysticduel/duel-server/internal/game"
	"github.com/mysticduel/duel-server/internal/game/rules"
)

// MessageType names an envelope.
type MessageType string

// Peer to authority.
const (
	MsgInitDeck      MessageType = "initDeck"
	MsgPlayCard      MessageType = "playCard"
	MsgDeclareAttack MessageType = "declareAttack"
	MsgEndTurn       MessageType = "endTurn"
	MsgResync        MessageType = "resync"
)

// Authority to peer.
const (
	MsgState   MessageType = "state"
	MsgReject  MessageType = "reject"
	MsgPaused  MessageType = "paused"
	MsgResumed MessageType = "resumed"
)

// MsgAck flows both ways. From a peer it acknowledges the state with
// sequence Seq; from the authority it accepts the request numbered Seq.
const MsgAck MessageType = "ack"

// ErrMalformedEnvelope is returned for messages that cannot be decoded.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// Envelope frames every message. For requests Seq is a peer-chosen
// request number; for state messages it is the match sequence number.
type Envelope struct {
	Type    MessageType     `json:"type" jsonschema:"enum=initDeck,enum=playCard,enum=declareAttack,enum=endTurn,enum=resync,enum=ack,enum=state,enum=reject,enum=paused,enum=resumed"`
	Seq     uint64          `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ActionPayload carries the arguments of an inbound action. The seat is
// the one the connection was opened for.
type ActionPayload struct {
	Deck       []string     `json:"deck,omitempty"`
	CardID     string       `json:"cardId,omitempty"`
	AttackerID string       `json:"attackerId,omitempty"`
	Target     *game.Target `json:"target,omitempty"`
}

// StatePayload carries a full snapshot. Resync is set when the state
// answers a resync request.
type StatePayload struct {
	Snapshot *game.MatchSnapshot `json:"snapshot"`
	Events   []rules.Event       `json:"events,omitempty"`
	Resync   bool                `json:"resync,omitempty"`
}

// RejectPayload names the failed precondition.
type RejectPayload struct {
	Code    rules.Code `json:"code"`
	Message string     `json:"message"`
}

// PausePayload explains a pause.
type PausePayload struct {
	Reason string `json:"reason,omitempty"`
}

// NewEnvelope encodes payload into an envelope. A nil payload is omitted.
func NewEnvelope(typ MessageType, seq uint64, payload any) (Envelope, error) {
	env := Envelope{Type: typ, Seq: seq}
	if payload == nil {
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	env.Payload = data
	return env, nil
}

// Encode marshals a whole envelope.
func Encode(typ MessageType, seq uint64, payload any) ([]byte, error) {
	env, err := NewEnvelope(typ, seq, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// Decode parses a raw message.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformedEnvelope)
	}
	return env, nil
}

// DecodePayload unmarshals the payload into v.
func (e Envelope) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%w: %s has no payload", ErrMalformedEnvelope, e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformedEnvelope, e.Type, err)
	}
	return nil
}

// IsAction reports whether the envelope is one of the four match actions.
func (e Envelope) IsAction() bool {
	switch e.Type {
	case MsgInitDeck, MsgPlayCard, MsgDeclareAttack, MsgEndTurn:
		return true
	}
	return false
}

// Action converts an action envelope into an engine action for seat.
// Unknown types still convert; the engine rejects them as UNKNOWN_ACTION.
func (e Envelope) Action(seat rules.Seat) (game.Action, error) {
	a := game.Action{Kind: game.ActionKind(e.Type), Seat: seat}
	if len(e.Payload) == 0 {
		return a, nil
	}
	var p ActionPayload
	if err := e.DecodePayload(&p); err != nil {
		return game.Action{}, err
	}
	a.Deck = p.Deck
	a.CardID = p.CardID
	a.AttackerID = p.AttackerID
	a.Target = p.Target
	return a, nil
}

// RejectFor turns an engine error into a reject payload. Errors that are
// not rule violations are reported without a code.
func RejectFor(err error) RejectPayload {
	if v, ok := rules.AsViolation(err); ok {
		return RejectPayload{Code: v.Code, Message: v.Message}
	}
	return RejectPayload{Message: err.Error()}
}

// Violation rebuilds the rule violation a reject carries.
func (p RejectPayload) Violation() *rules.Violation {
	return &rules.Violation{Code: p.Code, Message: p.Message}
}
