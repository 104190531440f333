package netsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mysticduel/duel-server/internal/game"
	"github.com/mysticduel/duel-server/internal/game/rules"
)

func TestMirrorRebuildsCompactCards(t *testing.T) {
	factory := testFactory(t)
	snaps := matchSnapshots(t, factory, "m-1", 0)
	started := snaps[2]

	compact, err := Compact(started, factory.Catalog())
	require.NoError(t, err)
	hostSide, ok := compact.Side(rules.SeatHost)
	require.True(t, ok)
	require.NotEmpty(t, hostSide.Hand)
	assert.Empty(t, hostSide.Hand[0].Ability, "compact snapshots omit catalog text")

	mirror := NewMirror("m-1", factory, zaptest.NewLogger(t))
	require.NoError(t, mirror.Apply(compact, false))
	assert.Equal(t, StateSynced, mirror.State())

	view, ok := mirror.Side(rules.SeatHost)
	require.True(t, ok)
	require.Len(t, view.Hand, len(hostSide.Hand))
	for _, c := range view.Hand {
		assert.Equal(t, "Taunt", c.Template.Ability)
		assert.True(t, c.Flags.Taunt)
	}

	guestView, ok := mirror.Side(rules.SeatGuest)
	require.True(t, ok)
	for _, c := range guestView.Hand {
		assert.True(t, c.Flags.DivineShield)
		assert.Equal(t, 3, c.CurrentHealth)
	}
	assert.Equal(t, hostSide.Hand[0].ID, view.Hand[0].ID, "instance ids survive")
}

func TestMirrorSequenceHandling(t *testing.T) {
	factory := testFactory(t)
	snaps := matchSnapshots(t, factory, "m-1", 4)
	mirror := NewMirror("m-1", factory, zaptest.NewLogger(t))

	require.NoError(t, mirror.Apply(snaps[2], false))
	require.NoError(t, mirror.Apply(snaps[3], false))
	assert.Equal(t, uint64(3), mirror.Seq())

	t.Run("stale states are ignored", func(t *testing.T) {
		require.NoError(t, mirror.Apply(snaps[1], false))
		assert.Equal(t, uint64(3), mirror.Seq())
		assert.Equal(t, StateSynced, mirror.State())
	})

	t.Run("same sequence is reapplied", func(t *testing.T) {
		require.NoError(t, mirror.Apply(snaps[3], false))
		assert.Equal(t, uint64(3), mirror.Seq())
	})

	t.Run("gap desynchronizes", func(t *testing.T) {
		err := mirror.Apply(snaps[5], false)
		assert.ErrorIs(t, err, ErrSequenceGap)
		assert.Equal(t, StateDesynchronized, mirror.State())
		assert.ErrorIs(t, mirror.Cause(), ErrSequenceGap)
		assert.Equal(t, uint64(3), mirror.Seq(), "state is kept until resync")

		assert.ErrorIs(t, mirror.Apply(snaps[4], false), ErrDesynchronized)
	})

	t.Run("resync recovers", func(t *testing.T) {
		require.NoError(t, mirror.Apply(snaps[6], true))
		assert.Equal(t, StateSynced, mirror.State())
		assert.NoError(t, mirror.Cause())
		assert.Equal(t, uint64(6), mirror.Seq())
	})
}

func TestMirrorRejectsMalformedSnapshots(t *testing.T) {
	factory := testFactory(t)
	snaps := matchSnapshots(t, factory, "m-1", 0)

	tests := []struct {
		name   string
		mutate func(s *game.MatchSnapshot) *game.MatchSnapshot
	}{
		{"nil", func(*game.MatchSnapshot) *game.MatchSnapshot { return nil }},
		{"tampered", func(s *game.MatchSnapshot) *game.MatchSnapshot {
			c := *s
			c.Sides = append([]game.SideSnapshot(nil), s.Sides...)
			c.Sides[0].Health = 1
			return &c
		}},
		{"other match", func(s *game.MatchSnapshot) *game.MatchSnapshot {
			c := *s
			c.MatchID = "m-2"
			require.NoError(t, c.Seal())
			return &c
		}},
		{"missing side", func(s *game.MatchSnapshot) *game.MatchSnapshot {
			c := *s
			c.Sides = s.Sides[:1]
			require.NoError(t, c.Seal())
			return &c
		}},
		{"unknown version", func(s *game.MatchSnapshot) *game.MatchSnapshot {
			c := *s
			c.Version = 99
			require.NoError(t, c.Seal())
			return &c
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mirror := NewMirror("m-1", factory, zaptest.NewLogger(t))
			err := mirror.Apply(tt.mutate(snaps[2]), false)
			assert.ErrorIs(t, err, ErrMalformedSnapshot)
			assert.Equal(t, StateDesynchronized, mirror.State())
			assert.Nil(t, mirror.Snapshot())
		})
	}
}

func TestMirrorPaused(t *testing.T) {
	factory := testFactory(t)
	snaps := matchSnapshots(t, factory, "m-1", 0)
	mirror := NewMirror("m-1", factory, nil)

	paused := *snaps[2]
	paused.Paused = true
	require.NoError(t, paused.Seal())

	require.NoError(t, mirror.Apply(snaps[2], false))
	assert.False(t, mirror.Paused())
	require.NoError(t, mirror.Apply(&paused, false))
	assert.True(t, mirror.Paused())
}
