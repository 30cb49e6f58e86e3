package prompts

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jwebster45206/gm-engine/pkg/world"
)

const deltaMarker = "WORLD-DELTA:"

// WorldDelta is the structured world mutation a generator response may
// carry after its prose. Every field is optional.
type WorldDelta struct {
	Weather     string            `json:"weather,omitempty"`
	TimeOfDay   string            `json:"time_of_day,omitempty"`
	NPCMoves    map[string]string `json:"npc_moves,omitempty"` // npc id -> location id
	NewQuest    *world.Quest      `json:"new_quest,omitempty"`
	NewLocation *world.Location   `json:"new_location,omitempty"`
}

func (d *WorldDelta) Empty() bool {
	return d == nil ||
		(d.Weather == "" && d.TimeOfDay == "" && len(d.NPCMoves) == 0 &&
			d.NewQuest == nil && d.NewLocation == nil)
}

// ExtractDelta splits a generator response into prose and an optional
// WorldDelta. A malformed delta line is dropped with an error while the
// prose is still returned, so narration survives a sloppy generator.
func ExtractDelta(content string) (string, *WorldDelta, error) {
	idx := strings.LastIndex(content, deltaMarker)
	if idx < 0 {
		return strings.TrimSpace(content), nil, nil
	}

	prose := strings.TrimSpace(content[:idx])
	payload := strings.TrimSpace(content[idx+len(deltaMarker):])
	payload = strings.TrimPrefix(payload, "```json")
	payload = strings.TrimPrefix(payload, "```")
	payload = strings.TrimSuffix(payload, "```")
	payload = strings.TrimSpace(payload)

	var delta WorldDelta
	if err := json.Unmarshal([]byte(payload), &delta); err != nil {
		return prose, nil, fmt.Errorf("failed to parse world delta: %w", err)
	}
	return prose, &delta, nil
}
