package memory

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultMaxSize is the per-NPC entry cap used when none is configured.
const DefaultMaxSize = 50

// Entry is one remembered interaction between an NPC and a participant.
type Entry struct {
	ParticipantID string    `json:"participant_id"`
	Summary       string    `json:"summary"`
	Timestamp     time.Time `json:"timestamp"`
	Delta         int       `json:"delta"` // relationship change, may be negative
}

// NPCMemory is the bounded ledger for a single NPC: the entry ring plus
// a running relationship score per participant.
type NPCMemory struct {
	Entries      []Entry        `json:"entries"`
	Relationship map[string]int `json:"relationship,omitempty"`
}

// Store holds NPC memories for one game instance. Created lazily per
// NPC on first interaction; memories are never destroyed while the NPC
// exists. Mutation happens only on the orchestrator's resolution path,
// but reads (prompt building, persistence) may come from elsewhere, so
// access is guarded.
type Store struct {
	mu      sync.RWMutex
	maxSize int
	byNPC   map[string]*NPCMemory
}

// NewStore creates a memory store with the given per-NPC entry cap.
// A non-positive cap falls back to DefaultMaxSize.
func NewStore(maxSize int) *Store {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Store{
		maxSize: maxSize,
		byNPC:   make(map[string]*NPCMemory),
	}
}

func (s *Store) MaxSize() int {
	return s.maxSize
}

// Record appends an entry to the NPC's ledger, evicting the oldest
// entry when the cap is reached. Eviction is pure FIFO.
func (s *Store) Record(npcID string, e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.byNPC[npcID]
	if !ok {
		m = &NPCMemory{Relationship: make(map[string]int)}
		s.byNPC[npcID] = m
	}

	m.Entries = append(m.Entries, e)
	if len(m.Entries) > s.maxSize {
		m.Entries = m.Entries[len(m.Entries)-s.maxSize:]
	}
	if m.Relationship == nil {
		m.Relationship = make(map[string]int)
	}
	m.Relationship[e.ParticipantID] += e.Delta
}

// Recent returns up to n of the most recent entries for the NPC,
// oldest first. If participantID is non-empty, only that participant's
// entries are considered.
func (s *Store) Recent(npcID, participantID string, n int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.byNPC[npcID]
	if !ok || n <= 0 {
		return nil
	}

	var filtered []Entry
	if participantID == "" {
		filtered = m.Entries
	} else {
		for _, e := range m.Entries {
			if e.ParticipantID == participantID {
				filtered = append(filtered, e)
			}
		}
	}

	if len(filtered) > n {
		filtered = filtered[len(filtered)-n:]
	}
	out := make([]Entry, len(filtered))
	copy(out, filtered)
	return out
}

// Score returns the folded relationship score between an NPC and a
// participant. Unknown pairs score zero.
func (s *Store) Score(npcID, participantID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.byNPC[npcID]
	if !ok {
		return 0
	}
	return m.Relationship[participantID]
}

// Count returns the number of retained entries for an NPC.
func (s *Store) Count(npcID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.byNPC[npcID]
	if !ok {
		return 0
	}
	return len(m.Entries)
}

// Snapshot returns a deep copy of all ledgers for persistence.
func (s *Store) Snapshot() map[string]*NPCMemory {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*NPCMemory, len(s.byNPC))
	for id, m := range s.byNPC {
		c := &NPCMemory{
			Entries:      append([]Entry(nil), m.Entries...),
			Relationship: make(map[string]int, len(m.Relationship)),
		}
		for p, score := range m.Relationship {
			c.Relationship[p] = score
		}
		out[id] = c
	}
	return out
}

// Restore replaces the store's contents from a persisted snapshot,
// after validating it against the cap invariant. On error the store is
// left untouched.
func (s *Store) Restore(data map[string]*NPCMemory) error {
	if err := validate(data, s.maxSize); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.byNPC = make(map[string]*NPCMemory, len(data))
	for id, m := range data {
		c := &NPCMemory{
			Entries:      append([]Entry(nil), m.Entries...),
			Relationship: make(map[string]int, len(m.Relationship)),
		}
		for p, score := range m.Relationship {
			c.Relationship[p] = score
		}
		s.byNPC[id] = c
	}
	return nil
}

func validate(data map[string]*NPCMemory, maxSize int) error {
	for id, m := range data {
		if m == nil {
			return fmt.Errorf("npc %q has nil memory", id)
		}
		if len(m.Entries) > maxSize {
			return fmt.Errorf("npc %q has %d entries, exceeds cap %d", id, len(m.Entries), maxSize)
		}
	}
	return nil
}

// Relationship delta word tables, scanned case-insensitively over the
// participant's utterance.
var (
	positiveWords = []string{"thank", "thanks", "friend", "help", "good", "kind", "please", "sorry"}
	negativeWords = []string{"bad", "threat", "danger", "fear", "anger", "hate", "liar", "fool"}
)

// DeltaFor derives a relationship delta from an utterance: +1 when
// positive words dominate, -1 when negative ones do, 0 otherwise.
func DeltaFor(text string) int {
	lower := strings.ToLower(text)
	var pos, neg int
	for _, w := range positiveWords {
		if strings.Contains(lower, w) {
			pos++
		}
	}
	for _, w := range negativeWords {
		if strings.Contains(lower, w) {
			neg++
		}
	}
	switch {
	case pos > neg:
		return 1
	case neg > pos:
		return -1
	default:
		return 0
	}
}
