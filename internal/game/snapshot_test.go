package game

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mysticduel/duel-server/internal/catalog"
)

func TestSnapshotChecksum(t *testing.T) {
	h := newMatchHarness(t)
	h.place(host, "Shield Bearer")

	snap, err := h.match.Snapshot()
	require.NoError(t, err)
	require.NotEmpty(t, snap.Checksum)

	ok, err := snap.VerifyChecksum()
	require.NoError(t, err)
	assert.True(t, ok)

	snap.Sides[0].Health = 1
	ok, err = snap.VerifyChecksum()
	require.NoError(t, err)
	assert.False(t, ok, "tampering breaks the checksum")
}

func TestSnapshotSurvivesJSON(t *testing.T) {
	h := newMatchHarness(t)
	h.place(guest, "Berserker")

	snap, err := h.match.Snapshot()
	require.NoError(t, err)
	data, err := json.Marshal(snap)
	require.NoError(t, err)

	var decoded MatchSnapshot
	require.NoError(t, json.Unmarshal(data, &decoded))
	ok, err := decoded.VerifyChecksum()
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRestoreMatchRoundTrip(t *testing.T) {
	h := newMatchHarness(t)
	bearer := h.place(host, "Shield Bearer")
	berserker := h.place(guest, "Berserker")
	res, err := h.attack(host, bearer, creatureTarget(guest, berserker))
	require.NoError(t, err)
	require.True(t, res.Combat.AttackerShieldPopped)
	require.True(t, berserker.Enraged)

	snap, err := h.match.Snapshot()
	require.NoError(t, err)

	restored, err := RestoreMatch(snap, h.factory, testRules(), zaptest.NewLogger(t))
	require.NoError(t, err)

	again, err := restored.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, snap.Checksum, again.Checksum)

	got, ok := restored.Side(host).Field.Get(bearer.ID)
	require.True(t, ok)
	assert.False(t, got.Flags.DivineShield, "a popped shield stays popped")
	gotBerserker, ok := restored.Side(guest).Field.Get(berserker.ID)
	require.True(t, ok)
	assert.Equal(t, 5, gotBerserker.Attack())

	_, err = restored.EndTurn(host)
	require.NoError(t, err)
	assert.Equal(t, snap.Seq+1, restored.Seq())
}

func TestRestoreMatchRejectsUnknownVersion(t *testing.T) {
	h := newMatchHarness(t)
	snap, err := h.match.Snapshot()
	require.NoError(t, err)

	snap.Version = SnapshotVersion + 1
	_, err = RestoreMatch(snap, h.factory, testRules(), nil)
	assert.Error(t, err)

	_, err = RestoreMatch(nil, h.factory, testRules(), nil)
	assert.Error(t, err)
}

func TestRebuildWithoutAbilityText(t *testing.T) {
	factory, _ := newTestFactory(t)

	for _, name := range []string{"Guard", "Shade", "Shield Bearer", "Griffin", "Leech", "Sentinel", "Twin Blade"} {
		t.Run(name, func(t *testing.T) {
			original := factory.NewCard(catalog.CardTemplate{Name: name})

			d := original.Data()
			d.Ability = ""
			d.DivineShield = nil
			d.Stealth = nil
			d.Colors = nil

			rebuilt := factory.Rebuild(d)
			assert.Equal(t, original.Template.Ability, rebuilt.Template.Ability)
			assert.Equal(t, original.Flags, rebuilt.Flags)
			assert.Equal(t, original.ID, rebuilt.ID)
			assert.Equal(t, original.CurrentHealth, rebuilt.CurrentHealth)
		})
	}
}

func TestRebuildFromNameOnly(t *testing.T) {
	factory, _ := newTestFactory(t)

	c := factory.Rebuild(CardData{ID: "c-1", Name: "Berserker"})
	assert.Equal(t, "c-1", c.ID)
	assert.Equal(t, "Enrage", c.Template.Ability)
	assert.True(t, c.Flags.Enrage)
	assert.Equal(t, 4, c.CurrentHealth)
	assert.Equal(t, 3, c.Attack())
}

func TestRebuildKeepsInstanceState(t *testing.T) {
	factory, _ := newTestFactory(t)
	c := factory.NewCard(catalog.CardTemplate{Name: "Shade"})
	c.Flags.Stealth = false
	c.Freeze(true)
	c.TakeDamage(1)

	rebuilt := factory.Rebuild(c.Data())
	assert.False(t, rebuilt.Flags.Stealth)
	assert.True(t, rebuilt.Frozen)
	assert.True(t, rebuilt.FrozenOnOwnTurn)
	assert.Equal(t, 1, rebuilt.CurrentHealth)
}
