package prompts

import (
	"fmt"

	"github.com/jwebster45206/gm-engine/pkg/intent"
)

// FallbackNarration is the deterministic template used when the
// generator is unreachable, so a batch degrades instead of stalling.
func FallbackNarration(name string, in *intent.Intent, locationName string) string {
	where := ""
	if locationName != "" {
		where = fmt.Sprintf(" in %s", locationName)
	}
	switch in.Kind {
	case intent.KindDo:
		return fmt.Sprintf("%s attempts to %s%s. The world shifts quietly in response, the full consequences not yet clear.", name, in.Text, where)
	case intent.KindSay:
		return fmt.Sprintf("%s speaks%s: %q. The words hang in the air, waiting for an answer.", name, where, in.Text)
	case intent.KindScene:
		return fmt.Sprintf("A new element weaves itself into the story%s: %s.", where, in.Text)
	default:
		return fmt.Sprintf("%s acts, and the story moves on.", name)
	}
}

// FallbackSummary closes a batch when the summary call fails.
func FallbackSummary(count int) string {
	if count == 1 {
		return "One action has reshaped the scene. The moment settles, and the players consider what comes next."
	}
	return fmt.Sprintf("After %d actions, the situation has shifted noticeably. New possibilities open before the players.", count)
}
