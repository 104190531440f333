package netsync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mysticduel/duel-server/internal/game"
	"github.com/mysticduel/duel-server/internal/game/rules"
)

// fakeAuthority accepts one connection and hands it to the test.
type fakeAuthority struct {
	srv   *httptest.Server
	conns chan *websocket.Conn
	query chan string
}

func newFakeAuthority(t *testing.T) *fakeAuthority {
	t.Helper()
	fa := &fakeAuthority{
		conns: make(chan *websocket.Conn, 1),
		query: make(chan string, 1),
	}
	fa.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		fa.query <- r.URL.RawQuery
		fa.conns <- conn
	}))
	t.Cleanup(fa.srv.Close)
	return fa
}

func (fa *fakeAuthority) url() string {
	return "ws" + strings.TrimPrefix(fa.srv.URL, "http") + "/ws"
}

func (fa *fakeAuthority) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-fa.conns:
		t.Cleanup(func() { conn.CloseNow() })
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("no connection")
		return nil
	}
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	env, err := Decode(data)
	require.NoError(t, err)
	return env
}

func writeEnvelope(t *testing.T, conn *websocket.Conn, typ MessageType, seq uint64, payload any) {
	t.Helper()
	data, err := Encode(typ, seq, payload)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

func dialFake(t *testing.T, fa *fakeAuthority, ackTimeout time.Duration, opts ...ClientOption) (*Client, *websocket.Conn) {
	t.Helper()
	mirror := NewMirror("m-1", testFactory(t), zaptest.NewLogger(t))
	c, err := Dial(context.Background(), ClientConfig{
		URL:            fa.url(),
		MatchID:        "m-1",
		Seat:           rules.SeatHost,
		ConnectTimeout: time.Second,
		AckTimeout:     ackTimeout,
	}, mirror, zaptest.NewLogger(t), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	conn := fa.accept(t)
	return c, conn
}

func TestDialUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	_, err := Dial(context.Background(), ClientConfig{URL: url, MatchID: "m-1", ConnectTimeout: 200 * time.Millisecond}, nil, nil)
	assert.ErrorIs(t, err, ErrPeerUnreachable)
}

func TestClientSendsSeatAndMatch(t *testing.T) {
	fa := newFakeAuthority(t)
	dialFake(t, fa, time.Second)
	q := <-fa.query
	assert.Contains(t, q, "match=m-1")
	assert.Contains(t, q, "seat=host")
}

func TestClientSubmitAckAndReject(t *testing.T) {
	fa := newFakeAuthority(t)
	c, conn := dialFake(t, fa, time.Second)
	ctx := context.Background()

	errs := make(chan error, 1)
	go func() { errs <- c.InitDeck(ctx, []string{"Guard"}) }()
	env := readEnvelope(t, conn)
	assert.Equal(t, MsgInitDeck, env.Type)
	var p ActionPayload
	require.NoError(t, env.DecodePayload(&p))
	assert.Equal(t, []string{"Guard"}, p.Deck)
	writeEnvelope(t, conn, MsgAck, env.Seq, nil)
	require.NoError(t, <-errs)

	go func() { errs <- c.EndTurn(ctx) }()
	env = readEnvelope(t, conn)
	writeEnvelope(t, conn, MsgReject, env.Seq, RejectPayload{Code: rules.CodeNotYourTurn, Message: "guest is active"})
	err := <-errs
	assert.True(t, rules.IsCode(err, rules.CodeNotYourTurn))
}

func TestClientAckTimeout(t *testing.T) {
	fa := newFakeAuthority(t)
	c, conn := dialFake(t, fa, 50*time.Millisecond)

	errs := make(chan error, 1)
	go func() { errs <- c.EndTurn(context.Background()) }()
	readEnvelope(t, conn)
	assert.ErrorIs(t, <-errs, ErrAckTimeout)
}

func TestClientMirrorsAndAcksState(t *testing.T) {
	fa := newFakeAuthority(t)
	factory := testFactory(t)
	snaps := matchSnapshots(t, factory, "m-1", 3)

	seen := make(chan uint64, 8)
	c, conn := dialFake(t, fa, time.Second, WithStateHandler(func(snap *game.MatchSnapshot, _ []rules.Event) {
		seen <- snap.Seq
	}))

	writeEnvelope(t, conn, MsgState, snaps[2].Seq, StatePayload{Snapshot: snaps[2]})
	ack := readEnvelope(t, conn)
	assert.Equal(t, MsgAck, ack.Type)
	assert.Equal(t, uint64(2), ack.Seq)
	assert.Equal(t, uint64(2), <-seen)

	// Skipping seq 3 desynchronizes the mirror and triggers a resync.
	writeEnvelope(t, conn, MsgState, snaps[4].Seq, StatePayload{Snapshot: snaps[4]})
	req := readEnvelope(t, conn)
	assert.Equal(t, MsgResync, req.Type)
	assert.Equal(t, StateDesynchronized, c.Mirror().State())

	writeEnvelope(t, conn, MsgState, snaps[5].Seq, StatePayload{Snapshot: snaps[5], Resync: true})
	ack = readEnvelope(t, conn)
	assert.Equal(t, MsgAck, ack.Type)
	assert.Equal(t, uint64(5), ack.Seq)
	assert.Equal(t, StateSynced, c.Mirror().State())
	assert.Equal(t, uint64(5), <-seen)
}

func TestClientPauseHandler(t *testing.T) {
	fa := newFakeAuthority(t)
	type pause struct {
		paused bool
		reason string
	}
	got := make(chan pause, 2)
	_, conn := dialFake(t, fa, time.Second, WithPauseHandler(func(paused bool, reason string) {
		got <- pause{paused, reason}
	}))

	writeEnvelope(t, conn, MsgPaused, 4, PausePayload{Reason: "ack timeout"})
	writeEnvelope(t, conn, MsgResumed, 4, nil)
	assert.Equal(t, pause{true, "ack timeout"}, <-got)
	assert.Equal(t, pause{false, ""}, <-got)
}

func TestClientLogsUndecodablePayloads(t *testing.T) {
	fa := newFakeAuthority(t)
	core, logs := observer.New(zapcore.WarnLevel)
	got := make(chan bool, 1)
	mirror := NewMirror("m-1", testFactory(t), zaptest.NewLogger(t))
	c, err := Dial(context.Background(), ClientConfig{
		URL:            fa.url(),
		MatchID:        "m-1",
		Seat:           rules.SeatHost,
		ConnectTimeout: time.Second,
		AckTimeout:     time.Second,
	}, mirror, zap.New(core), WithPauseHandler(func(paused bool, _ string) {
		got <- paused
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	conn := fa.accept(t)

	writeEnvelope(t, conn, MsgReject, 9, "not a reject")
	writeEnvelope(t, conn, MsgPaused, 4, []int{1})

	select {
	case paused := <-got:
		assert.True(t, paused, "a pause still applies without a reason")
	case <-time.After(2 * time.Second):
		t.Fatal("pause handler not called")
	}
	assert.Equal(t, 1, logs.FilterMessage("undecodable reject").Len())
	assert.Equal(t, 1, logs.FilterMessage("undecodable pause payload").Len())
	assert.Zero(t, logs.FilterMessage("unsolicited reject").Len())

	select {
	case <-c.Done():
		t.Fatal("client closed on an undecodable payload")
	default:
	}
}

func TestClientDetectsClosedConnection(t *testing.T) {
	fa := newFakeAuthority(t)
	c, conn := dialFake(t, fa, time.Second)
	require.NoError(t, conn.Close(websocket.StatusGoingAway, "shutting down"))

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client did not notice the closed connection")
	}
	assert.Error(t, c.Err())
	assert.ErrorIs(t, c.EndTurn(context.Background()), ErrPeerUnreachable)
}
