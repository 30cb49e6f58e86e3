package world

import (
	"fmt"
	"strings"
	"sync"
)

// Time-of-day cycle, advanced in order and wrapping.
var timeCycle = []string{"dawn", "morning", "afternoon", "night"}

// Quest is an active objective in the world.
type Quest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	GivenBy     string `json:"given_by,omitempty"`
}

// World is the mutable topology of locations, NPCs and ambient state
// for one live game instance. Writer methods are called only by the
// orchestrator between drains; every other component reads through
// Snapshot, never a live view.
type World struct {
	mu sync.RWMutex

	Name      string               `json:"name"`
	Start     string               `json:"start"`
	Locations map[string]*Location `json:"locations"`
	NPCs      map[string]*NPC      `json:"npcs"`
	Weather   string               `json:"weather,omitempty"`
	TimeOfDay string               `json:"time_of_day,omitempty"`
	Quests    []Quest              `json:"quests,omitempty"`
}

// New creates an empty world with a single start location.
func New(name string, start *Location) *World {
	w := &World{
		Name:      name,
		Start:     start.ID,
		Locations: map[string]*Location{start.ID: start},
		NPCs:      make(map[string]*NPC),
		Weather:   "clear",
		TimeOfDay: "morning",
	}
	return w
}

// Default builds the starting world: the Golden Dragon tavern and the
// town square, with the resident tavern NPCs.
func Default() *World {
	tavern := &Location{
		ID:          "golden-dragon-tavern",
		Name:        "The Golden Dragon Tavern",
		Description: "A welcoming tavern in the heart of town. The air is thick with the smell of ale and home cooking.",
		Ambiance:    "A fire crackles softly in the corner, washing the room in golden light.",
		Exits:       map[string]string{"north": "town-square"},
		Items:       []string{"house ale", "notice board"},
	}
	square := &Location{
		ID:          "town-square",
		Name:        "Town Square",
		Description: "The beating heart of the town, where merchants hawk their wares and travelers trade news.",
		Ambiance:    "Sunlight falls on the old cobblestones. The air hums with haggling and gossip.",
		Exits:       map[string]string{"south": "golden-dragon-tavern"},
	}

	w := New("The Borderlands", tavern)
	w.Locations[square.ID] = square

	w.NPCs["gareth"] = &NPC{
		ID:            "gareth",
		Name:          "Gareth",
		Traits:        []string{"stout", "kind-eyed"},
		DialogueStyle: "warm",
		Knowledge:     []string{"local rumors", "travelers", "the tavern trade"},
		Backstory:     "The tavern keeper, a broad middle-aged man with a graying beard.",
	}
	tavern.NPCs = append(tavern.NPCs, "gareth")

	w.NPCs["lyra"] = &NPC{
		ID:            "lyra",
		Name:          "Lyra",
		Traits:        []string{"curious", "quick-witted"},
		DialogueStyle: "lyrical",
		Knowledge:     []string{"songs", "old legends", "roads and ruins"},
		Backstory:     "A wandering bard with silver hair, rarely seen without her harp.",
	}
	tavern.NPCs = append(tavern.NPCs, "lyra")

	return w
}

// Snapshot returns a deep copy safe for concurrent readers.
func (w *World) Snapshot() *World {
	w.mu.RLock()
	defer w.mu.RUnlock()

	c := &World{
		Name:      w.Name,
		Start:     w.Start,
		Locations: make(map[string]*Location, len(w.Locations)),
		NPCs:      make(map[string]*NPC, len(w.NPCs)),
		Weather:   w.Weather,
		TimeOfDay: w.TimeOfDay,
		Quests:    append([]Quest(nil), w.Quests...),
	}
	for id, loc := range w.Locations {
		c.Locations[id] = loc.clone()
	}
	for id, npc := range w.NPCs {
		c.NPCs[id] = npc.clone()
	}
	return c
}

// Restore replaces this world's contents with a deep copy of from.
// The caller is responsible for validating from first; Restore itself
// never partially applies.
func (w *World) Restore(from *World) {
	snap := from.Snapshot()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.Name = snap.Name
	w.Start = snap.Start
	w.Locations = snap.Locations
	w.NPCs = snap.NPCs
	w.Weather = snap.Weather
	w.TimeOfDay = snap.TimeOfDay
	w.Quests = snap.Quests
}

// Location returns a copy of the named location, or nil.
func (w *World) Location(id string) *Location {
	w.mu.RLock()
	defer w.mu.RUnlock()
	loc, ok := w.Locations[id]
	if !ok {
		return nil
	}
	return loc.clone()
}

// NPC returns a copy of the named NPC, or nil.
func (w *World) NPC(id string) *NPC {
	w.mu.RLock()
	defer w.mu.RUnlock()
	npc, ok := w.NPCs[id]
	if !ok {
		return nil
	}
	return npc.clone()
}

// NPCAt reports whether the NPC whose name appears in text is present
// at the given location, returning the NPC. Matching is by simple
// case-insensitive name containment.
func (w *World) NPCAt(locationID, text string) *NPC {
	w.mu.RLock()
	defer w.mu.RUnlock()

	loc, ok := w.Locations[locationID]
	if !ok {
		return nil
	}
	lower := strings.ToLower(text)
	for _, npcID := range loc.NPCs {
		npc, ok := w.NPCs[npcID]
		if !ok {
			continue
		}
		if strings.Contains(lower, strings.ToLower(npc.Name)) {
			return npc.clone()
		}
	}
	return nil
}

// AttachLocation adds a new location to the world. A location that
// declares no connection to an existing location is re-attached to
// fromID rather than rejected, so expansion can never introduce an
// orphan island. All declared exits are made bidirectional.
func (w *World) AttachLocation(loc *Location, fromID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if loc.ID == "" {
		return fmt.Errorf("location id cannot be empty")
	}
	if _, exists := w.Locations[loc.ID]; exists {
		return fmt.Errorf("location %q already exists", loc.ID)
	}
	if _, ok := w.Locations[fromID]; !ok {
		return fmt.Errorf("unknown origin location %q", fromID)
	}

	if loc.Exits == nil {
		loc.Exits = make(map[string]string)
	}

	// Drop exits that point nowhere.
	connected := false
	for dir, target := range loc.Exits {
		if _, ok := w.Locations[target]; !ok {
			delete(loc.Exits, dir)
			continue
		}
		connected = true
	}
	if !connected {
		loc.Exits["back"] = fromID
	}

	// Make every exit a two-way link.
	for dir, target := range loc.Exits {
		tl := w.Locations[target]
		if hasExitTo(tl, loc.ID) {
			continue
		}
		tl.Exits = ensureExits(tl.Exits)
		tl.Exits[reverseDir(dir, tl.Exits, "path to "+loc.Name)] = loc.ID
	}

	w.Locations[loc.ID] = loc
	return nil
}

// PlaceNPC adds an NPC to the world at the given location. A colliding
// id is disambiguated with a deterministic numeric suffix; the id
// actually used is returned.
func (w *World) PlaceNPC(npc *NPC, locationID string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	loc, ok := w.Locations[locationID]
	if !ok {
		return "", fmt.Errorf("unknown location %q", locationID)
	}
	if npc.ID == "" {
		return "", fmt.Errorf("npc id cannot be empty")
	}

	id := npc.ID
	for n := 2; ; n++ {
		if _, exists := w.NPCs[id]; !exists {
			break
		}
		id = fmt.Sprintf("%s-%d", npc.ID, n)
	}
	npc.ID = id

	w.NPCs[id] = npc
	loc.NPCs = append(loc.NPCs, id)
	return id, nil
}

// MoveNPC relocates an NPC to another location.
func (w *World) MoveNPC(npcID, toLocationID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.NPCs[npcID]; !ok {
		return fmt.Errorf("unknown npc %q", npcID)
	}
	to, ok := w.Locations[toLocationID]
	if !ok {
		return fmt.Errorf("unknown location %q", toLocationID)
	}

	for _, loc := range w.Locations {
		if loc.hasNPC(npcID) {
			loc.removeNPC(npcID)
		}
	}
	to.NPCs = append(to.NPCs, npcID)
	return nil
}

func (w *World) SetWeather(weather string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Weather = weather
}

func (w *World) SetTimeOfDay(timeOfDay string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.TimeOfDay = timeOfDay
}

// AdvanceTime moves the time of day one step along the cycle and
// returns the new value.
func (w *World) AdvanceTime() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i, t := range timeCycle {
		if t == w.TimeOfDay {
			w.TimeOfDay = timeCycle[(i+1)%len(timeCycle)]
			return w.TimeOfDay
		}
	}
	w.TimeOfDay = timeCycle[0]
	return w.TimeOfDay
}

func (w *World) AddQuest(q Quest) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Quests = append(w.Quests, q)
}

// Unreachable returns the IDs of locations with no path from the start
// location. A healthy world always returns an empty slice.
func (w *World) Unreachable() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.unreachableLocked()
}

func (w *World) unreachableLocked() []string {
	seen := map[string]bool{}
	stack := []string{w.Start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		loc, ok := w.Locations[id]
		if !ok {
			continue
		}
		for _, target := range loc.Exits {
			stack = append(stack, target)
		}
	}

	var orphans []string
	for id := range w.Locations {
		if !seen[id] {
			orphans = append(orphans, id)
		}
	}
	return orphans
}

// Validate checks structural integrity: the start location exists,
// every exit points at a known location, every placed NPC exists, and
// no location is unreachable from start. Used when restoring a
// persisted world.
func (w *World) Validate() error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if _, ok := w.Locations[w.Start]; !ok {
		return fmt.Errorf("start location %q does not exist", w.Start)
	}
	for id, loc := range w.Locations {
		for dir, target := range loc.Exits {
			if _, ok := w.Locations[target]; !ok {
				return fmt.Errorf("location %q exit %q points at unknown location %q", id, dir, target)
			}
		}
		for _, npcID := range loc.NPCs {
			if _, ok := w.NPCs[npcID]; !ok {
				return fmt.Errorf("location %q references unknown npc %q", id, npcID)
			}
		}
	}
	if orphans := w.unreachableLocked(); len(orphans) > 0 {
		return fmt.Errorf("unreachable locations: %s", strings.Join(orphans, ", "))
	}
	return nil
}

func hasExitTo(loc *Location, targetID string) bool {
	for _, t := range loc.Exits {
		if t == targetID {
			return true
		}
	}
	return false
}

func ensureExits(m map[string]string) map[string]string {
	if m == nil {
		return make(map[string]string)
	}
	return m
}

var opposites = map[string]string{
	"north": "south",
	"south": "north",
	"east":  "west",
	"west":  "east",
	"up":    "down",
	"down":  "up",
	"back":  "onward",
}

// reverseDir picks the direction for the return link. The conventional
// opposite is used only when that slot is free on the target; writing
// into an occupied slot would sever the target's existing exit, so the
// link uses a descriptive label instead.
func reverseDir(dir string, targetExits map[string]string, fallback string) string {
	if opp, ok := opposites[dir]; ok {
		if _, taken := targetExits[opp]; !taken {
			return opp
		}
	}
	label := fallback
	for i := 2; ; i++ {
		if _, taken := targetExits[label]; !taken {
			return label
		}
		label = fmt.Sprintf("%s %d", fallback, i)
	}
}
