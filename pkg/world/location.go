package world

// Location is a place in the game world. Exits map a direction word to
// the ID of a connected location.
type Location struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Ambiance    string            `json:"ambiance,omitempty"`
	Exits       map[string]string `json:"exits,omitempty"`
	NPCs        []string          `json:"npcs,omitempty"`
	Items       []string          `json:"items,omitempty"`
}

func (l *Location) clone() *Location {
	c := *l
	c.Exits = make(map[string]string, len(l.Exits))
	for dir, id := range l.Exits {
		c.Exits[dir] = id
	}
	c.NPCs = append([]string(nil), l.NPCs...)
	c.Items = append([]string(nil), l.Items...)
	return &c
}

func (l *Location) hasNPC(npcID string) bool {
	for _, id := range l.NPCs {
		if id == npcID {
			return true
		}
	}
	return false
}

func (l *Location) removeNPC(npcID string) {
	for i, id := range l.NPCs {
		if id == npcID {
			l.NPCs = append(l.NPCs[:i], l.NPCs[i+1:]...)
			return
		}
	}
}
