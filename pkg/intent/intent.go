package intent

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies the type of a queued intent. The set is closed:
// raw command text is mapped to a Kind at the producer boundary, and
// the engine never pattern-matches on free text.
type Kind string

const (
	// KindDo is a physical action taken by a participant.
	KindDo Kind = "do"

	// KindSay is an utterance, usually directed at an NPC.
	KindSay Kind = "say"

	// KindScene is a narrative fragment contributed to the shared scene.
	KindScene Kind = "scene"
)

// ParseKind maps a string to a Kind, rejecting anything outside the set.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindDo, KindSay, KindScene:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown intent kind: %q", s)
	}
}

// Intent is a single unit of player-contributed narrative input.
// It is immutable once created. Seq is assigned by the action queue
// and is the sole ordering key; wall-clock time is never used to
// order intents.
type Intent struct {
	ParticipantID string    `json:"participant_id"`
	Kind          Kind      `json:"kind"`
	Text          string    `json:"text"`
	Seq           int64     `json:"seq"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
}

func (i *Intent) Validate() error {
	if i.ParticipantID == "" {
		return fmt.Errorf("participant_id cannot be empty")
	}
	if _, err := ParseKind(string(i.Kind)); err != nil {
		return err
	}
	if i.Text == "" {
		return fmt.Errorf("text cannot be empty")
	}
	return nil
}

// ToJSON serializes the intent for queue storage.
func (i *Intent) ToJSON() ([]byte, error) {
	return json.Marshal(i)
}

// FromJSON parses an intent from queue storage.
func FromJSON(data []byte) (*Intent, error) {
	var in Intent
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, err
	}
	return &in, nil
}
