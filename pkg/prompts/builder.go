package prompts

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jwebster45206/gm-engine/pkg/chat"
	"github.com/jwebster45206/gm-engine/pkg/intent"
	"github.com/jwebster45206/gm-engine/pkg/memory"
	"github.com/jwebster45206/gm-engine/pkg/world"
)

// MemoryPromptLimit bounds how many memory entries are surfaced per NPC.
const MemoryPromptLimit = 5

// IntentContext is the reduced world view serialized into a generator
// prompt for one intent. Only state relevant to the acting participant
// is included.
type IntentContext struct {
	ParticipantName string            `json:"participant_name"`
	Location        *world.Location   `json:"location,omitempty"`
	Weather         string            `json:"weather,omitempty"`
	TimeOfDay       string            `json:"time_of_day,omitempty"`
	NPC             string            `json:"npc,omitempty"`               // summary of the addressed NPC, if any
	NPCMemory       []string          `json:"npc_memory,omitempty"`        // recent interactions with this participant
	Relationship    int               `json:"npc_relationship,omitempty"`  // folded relationship score
	Sheet           map[string]any    `json:"character_sheet,omitempty"`   // optional d20 stat block
	ActiveQuests    []world.Quest     `json:"active_quests,omitempty"`
	Exits           map[string]string `json:"available_exits,omitempty"`
}

// BuildIntentMessages assembles the generator conversation for a single
// intent: narrator instructions, serialized context, prior narrations
// from the same batch (so causality carries forward), and the intent
// itself phrased by kind.
func BuildIntentMessages(ctx *IntentContext, in *intent.Intent, priorNarrations []string) ([]chat.ChatMessage, error) {
	ctxJSON, err := json.Marshal(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal intent context: %w", err)
	}

	messages := []chat.ChatMessage{
		{Role: chat.ChatRoleSystem, Content: BaseSystemPrompt + DeltaInstructions},
		{Role: chat.ChatRoleSystem, Content: "Current game state:\n" + string(ctxJSON)},
	}

	for _, n := range priorNarrations {
		messages = append(messages, chat.ChatMessage{
			Role:    chat.ChatRoleAgent,
			Content: n,
		})
	}

	messages = append(messages, chat.ChatMessage{
		Role:    chat.ChatRoleUser,
		Content: phraseIntent(ctx.ParticipantName, in),
	})
	return messages, nil
}

func phraseIntent(name string, in *intent.Intent) string {
	switch in.Kind {
	case intent.KindDo:
		return fmt.Sprintf("%s does the following: %s", name, in.Text)
	case intent.KindSay:
		return fmt.Sprintf("%s says: %q", name, in.Text)
	case intent.KindScene:
		return fmt.Sprintf("SCENE ELEMENT contributed by %s, to be woven into the narrative: %s", name, in.Text)
	default:
		return in.Text
	}
}

// BuildSummaryMessages assembles the single closing-summary call for a
// resolved batch.
func BuildSummaryMessages(narrations []string) []chat.ChatMessage {
	var b strings.Builder
	b.WriteString("The narrations of this turn, in order:\n\n")
	for i, n := range narrations {
		fmt.Fprintf(&b, "%d. %s\n\n", i+1, n)
	}
	b.WriteString("Write the closing summary of the scene.")

	return []chat.ChatMessage{
		{Role: chat.ChatRoleSystem, Content: SummarySystemPrompt},
		{Role: chat.ChatRoleUser, Content: b.String()},
	}
}

// MemoryLines renders memory entries as short prompt lines.
func MemoryLines(entries []memory.Entry) []string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, e.Summary)
	}
	return lines
}
