package world

import "strings"

// NPC is a non-player character. All fields are immutable after
// creation; the only mutable NPC state is its memory ledger, which
// lives in the memory package.
type NPC struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Traits        []string `json:"traits,omitempty"`
	DialogueStyle string   `json:"dialogue_style,omitempty"`
	Knowledge     []string `json:"knowledge,omitempty"`
	Backstory     string   `json:"backstory,omitempty"`
}

func (n *NPC) clone() *NPC {
	c := *n
	c.Traits = append([]string(nil), n.Traits...)
	c.Knowledge = append([]string(nil), n.Knowledge...)
	return &c
}

// Summary returns a short prompt-ready description of the NPC.
func (n *NPC) Summary() string {
	var b strings.Builder
	b.WriteString(n.Name)
	if len(n.Traits) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(n.Traits, ", "))
		b.WriteString(")")
	}
	if n.DialogueStyle != "" {
		b.WriteString(", speaks in a ")
		b.WriteString(n.DialogueStyle)
		b.WriteString(" manner")
	}
	if n.Backstory != "" {
		b.WriteString(". ")
		b.WriteString(n.Backstory)
	}
	return b.String()
}
