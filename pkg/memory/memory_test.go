package memory

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(participant, summary string, delta int) Entry {
	return Entry{
		ParticipantID: participant,
		Summary:       summary,
		Timestamp:     time.Now(),
		Delta:         delta,
	}
}

func TestRecordRespectsCap(t *testing.T) {
	s := NewStore(3)

	for i := 0; i < 10; i++ {
		s.Record("gareth", entry("alice", fmt.Sprintf("interaction %d", i), 0))
		assert.LessOrEqual(t, s.Count("gareth"), 3)
	}
	assert.Equal(t, 3, s.Count("gareth"))
}

func TestFIFOEviction(t *testing.T) {
	// Three sequential interactions with cap 2 must retain exactly the
	// 2nd and 3rd entries.
	s := NewStore(2)
	s.Record("gareth", entry("alice", "first", 0))
	s.Record("gareth", entry("alice", "second", 0))
	s.Record("gareth", entry("alice", "third", 0))

	got := s.Recent("gareth", "alice", 10)
	require.Len(t, got, 2)
	assert.Equal(t, "second", got[0].Summary)
	assert.Equal(t, "third", got[1].Summary)
}

func TestRelationshipScoreFold(t *testing.T) {
	s := NewStore(10)
	s.Record("gareth", entry("alice", "a kindness", 1))
	s.Record("gareth", entry("alice", "another kindness", 1))
	s.Record("gareth", entry("alice", "an insult", -1))
	s.Record("gareth", entry("bob", "a threat", -1))

	assert.Equal(t, 1, s.Score("gareth", "alice"))
	assert.Equal(t, -1, s.Score("gareth", "bob"))
	assert.Equal(t, 0, s.Score("gareth", "carol"))
	assert.Equal(t, 0, s.Score("lyra", "alice"))
}

func TestScoreSurvivesEviction(t *testing.T) {
	// Eviction drops entries, not the folded relationship score.
	s := NewStore(1)
	s.Record("gareth", entry("alice", "first", 1))
	s.Record("gareth", entry("alice", "second", 1))

	assert.Equal(t, 1, s.Count("gareth"))
	assert.Equal(t, 2, s.Score("gareth", "alice"))
}

func TestRecentFiltersByParticipant(t *testing.T) {
	s := NewStore(10)
	s.Record("gareth", entry("alice", "alice one", 0))
	s.Record("gareth", entry("bob", "bob one", 0))
	s.Record("gareth", entry("alice", "alice two", 0))

	got := s.Recent("gareth", "alice", 10)
	require.Len(t, got, 2)
	assert.Equal(t, "alice one", got[0].Summary)
	assert.Equal(t, "alice two", got[1].Summary)

	all := s.Recent("gareth", "", 2)
	require.Len(t, all, 2)
	assert.Equal(t, "bob one", all[0].Summary)
	assert.Equal(t, "alice two", all[1].Summary)

	assert.Nil(t, s.Recent("nobody", "", 5))
	assert.Nil(t, s.Recent("gareth", "alice", 0))
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	s := NewStore(5)
	s.Record("gareth", entry("alice", "hello", 1))
	s.Record("lyra", entry("bob", "a song request", 0))

	snap := s.Snapshot()

	restored := NewStore(5)
	require.NoError(t, restored.Restore(snap))

	assert.Equal(t, 1, restored.Count("gareth"))
	assert.Equal(t, 1, restored.Score("gareth", "alice"))
	assert.Equal(t, 1, restored.Count("lyra"))
}

func TestRestoreRejectsOverCap(t *testing.T) {
	s := NewStore(2)
	s.Record("gareth", entry("alice", "keep me", 0))

	bad := map[string]*NPCMemory{
		"gareth": {Entries: []Entry{
			entry("alice", "1", 0),
			entry("alice", "2", 0),
			entry("alice", "3", 0),
		}},
	}
	err := s.Restore(bad)
	require.Error(t, err)

	// The live store must be untouched by a failed restore.
	got := s.Recent("gareth", "alice", 10)
	require.Len(t, got, 1)
	assert.Equal(t, "keep me", got[0].Summary)
}

func TestDeltaFor(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"thank you for your help, friend", 1},
		{"you are a liar and a fool", -1},
		{"where is the road north", 0},
		{"thanks, but I fear the danger ahead", 0}, // balanced
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DeltaFor(tt.text), tt.text)
	}
}
