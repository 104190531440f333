package netsync

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mysticduel/duel-server/internal/game"
	"github.com/mysticduel/duel-server/internal/game/rules"
)

func TestEnvelopeToAction(t *testing.T) {
	data, err := Encode(MsgDeclareAttack, 7, ActionPayload{
		AttackerID: "c-1",
		Target:     &game.Target{Seat: rules.SeatGuest},
	})
	require.NoError(t, err)

	env, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, MsgDeclareAttack, env.Type)
	assert.Equal(t, uint64(7), env.Seq)
	assert.True(t, env.IsAction())

	a, err := env.Action(rules.SeatHost)
	require.NoError(t, err)
	assert.Equal(t, game.ActionDeclareAttack, a.Kind)
	assert.Equal(t, rules.SeatHost, a.Seat, "the seat comes from the connection")
	assert.Equal(t, "c-1", a.AttackerID)
	require.NotNil(t, a.Target)
	assert.True(t, a.Target.IsPlayer())
}

func TestEnvelopeWithoutPayload(t *testing.T) {
	data, err := Encode(MsgEndTurn, 1, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"endTurn","seq":1}`, string(data))

	env, err := Decode(data)
	require.NoError(t, err)
	a, err := env.Action(rules.SeatGuest)
	require.NoError(t, err)
	assert.Equal(t, game.ActionEndTurn, a.Kind)

	var p StatePayload
	assert.ErrorIs(t, env.DecodePayload(&p), ErrMalformedEnvelope)
}

func TestDecodeMalformed(t *testing.T) {
	for _, raw := range []string{`not json`, `{"seq":1}`, `[]`} {
		_, err := Decode([]byte(raw))
		assert.ErrorIs(t, err, ErrMalformedEnvelope, raw)
	}

	env := Envelope{Type: MsgPlayCard, Payload: []byte(`{"cardId":5}`)}
	_, err := env.Action(rules.SeatHost)
	assert.ErrorIs(t, err, ErrMalformedEnvelope)
}

func TestRejectFor(t *testing.T) {
	p := RejectFor(rules.Violationf(rules.CodeTargetStealthed, "Shade is stealthed"))
	assert.Equal(t, rules.CodeTargetStealthed, p.Code)
	assert.True(t, rules.IsCode(p.Violation(), rules.CodeTargetStealthed))

	p = RejectFor(errors.New("boom"))
	assert.Empty(t, p.Code)
	assert.Equal(t, "boom", p.Message)
}
