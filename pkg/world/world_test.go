package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultWorldIsValid(t *testing.T) {
	w := Default()
	require.NoError(t, w.Validate())
	assert.Empty(t, w.Unreachable())
	assert.NotNil(t, w.Location("golden-dragon-tavern"))
	assert.NotNil(t, w.NPC("gareth"))
}

func TestAttachLocationLinked(t *testing.T) {
	w := Default()

	cellar := &Location{
		ID:    "cellar",
		Name:  "Tavern Cellar",
		Exits: map[string]string{"up": "golden-dragon-tavern"},
	}
	require.NoError(t, w.AttachLocation(cellar, "golden-dragon-tavern"))

	assert.Empty(t, w.Unreachable())

	// The link must be two-way.
	tavern := w.Location("golden-dragon-tavern")
	assert.Equal(t, "cellar", tavern.Exits["down"])
}

func TestAttachLocationKeepsOccupiedExit(t *testing.T) {
	w := Default()

	// The tavern's north exit already leads to town-square; the return
	// link for a south-facing attachment must not displace it.
	cellar := &Location{
		ID:    "cellar",
		Name:  "Tavern Cellar",
		Exits: map[string]string{"south": "golden-dragon-tavern"},
	}
	require.NoError(t, w.AttachLocation(cellar, "golden-dragon-tavern"))

	tavern := w.Location("golden-dragon-tavern")
	assert.Equal(t, "town-square", tavern.Exits["north"])
	assert.Equal(t, "cellar", tavern.Exits["path to Tavern Cellar"])
	assert.Empty(t, w.Unreachable())
	require.NoError(t, w.Validate())
}

func TestAttachLocationOrphanReattached(t *testing.T) {
	w := Default()

	// Payload declares no usable connection; it must be re-attached to
	// the triggering location instead of rejected.
	island := &Location{
		ID:    "misty-isle",
		Name:  "Misty Isle",
		Exits: map[string]string{"west": "nowhere-real"},
	}
	require.NoError(t, w.AttachLocation(island, "town-square"))

	assert.Empty(t, w.Unreachable())
	got := w.Location("misty-isle")
	assert.Equal(t, "town-square", got.Exits["back"])

	// The bogus exit was dropped.
	_, hasBogus := got.Exits["west"]
	assert.False(t, hasBogus)
}

func TestAttachLocationErrors(t *testing.T) {
	w := Default()

	err := w.AttachLocation(&Location{ID: ""}, "town-square")
	assert.Error(t, err)

	err = w.AttachLocation(&Location{ID: "town-square"}, "town-square")
	assert.Error(t, err, "duplicate id must be rejected")

	err = w.AttachLocation(&Location{ID: "new-place"}, "no-such-origin")
	assert.Error(t, err)
}

func TestPlaceNPCCollisionSuffix(t *testing.T) {
	w := Default()

	id, err := w.PlaceNPC(&NPC{ID: "gareth", Name: "Gareth the Younger"}, "town-square")
	require.NoError(t, err)
	assert.Equal(t, "gareth-2", id)

	id, err = w.PlaceNPC(&NPC{ID: "gareth", Name: "Gareth the Youngest"}, "town-square")
	require.NoError(t, err)
	assert.Equal(t, "gareth-3", id)

	require.NoError(t, w.Validate())
}

func TestMoveNPC(t *testing.T) {
	w := Default()

	require.NoError(t, w.MoveNPC("lyra", "town-square"))

	tavern := w.Location("golden-dragon-tavern")
	assert.NotContains(t, tavern.NPCs, "lyra")
	square := w.Location("town-square")
	assert.Contains(t, square.NPCs, "lyra")

	assert.Error(t, w.MoveNPC("nobody", "town-square"))
	assert.Error(t, w.MoveNPC("lyra", "nowhere"))
}

func TestNPCAtMatchesByName(t *testing.T) {
	w := Default()

	npc := w.NPCAt("golden-dragon-tavern", "I ask Gareth about the road north")
	require.NotNil(t, npc)
	assert.Equal(t, "gareth", npc.ID)

	// Lyra is in the tavern, not the square.
	assert.Nil(t, w.NPCAt("town-square", "I wave at Lyra"))
	assert.Nil(t, w.NPCAt("golden-dragon-tavern", "I stare into my ale"))
}

func TestAdvanceTimeCycles(t *testing.T) {
	w := Default()
	w.SetTimeOfDay("dawn")

	assert.Equal(t, "morning", w.AdvanceTime())
	assert.Equal(t, "afternoon", w.AdvanceTime())
	assert.Equal(t, "night", w.AdvanceTime())
	assert.Equal(t, "dawn", w.AdvanceTime())
}

func TestSnapshotIsolation(t *testing.T) {
	w := Default()
	snap := w.Snapshot()

	w.SetWeather("storm")
	require.NoError(t, w.MoveNPC("gareth", "town-square"))

	// The snapshot must not observe mutations made after it was taken.
	assert.Equal(t, "clear", snap.Weather)
	assert.Contains(t, snap.Locations["golden-dragon-tavern"].NPCs, "gareth")
}

func TestValidateDetectsCorruption(t *testing.T) {
	w := Default()
	require.NoError(t, w.Validate())

	w.Locations["floating"] = &Location{ID: "floating", Name: "Floating Keep"}
	err := w.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable")

	delete(w.Locations, "floating")
	w.Locations["town-square"].Exits["east"] = "missing"
	assert.Error(t, w.Validate())
}
