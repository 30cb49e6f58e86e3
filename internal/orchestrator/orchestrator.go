package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/jwebster45206/gm-engine/internal/broadcast"
	"github.com/jwebster45206/gm-engine/internal/registry"
	"github.com/jwebster45206/gm-engine/internal/services"
	"github.com/jwebster45206/gm-engine/internal/services/events"
	"github.com/jwebster45206/gm-engine/internal/services/queue"
	"github.com/jwebster45206/gm-engine/pkg/chat"
	"github.com/jwebster45206/gm-engine/pkg/intent"
	"github.com/jwebster45206/gm-engine/pkg/memory"
	"github.com/jwebster45206/gm-engine/pkg/prompts"
	"github.com/jwebster45206/gm-engine/pkg/world"
)

// ErrDrainInProgress is returned to a resolve trigger that arrives while
// another resolution is already running. The in-flight drain covers the
// redundant trigger; no retry is needed.
var ErrDrainInProgress = errors.New("a resolution is already in progress")

// memorySummaryLimit caps the text stored in an NPC memory entry.
const memorySummaryLimit = 120

type state int32

const (
	stateIdle state = iota
	stateDraining
	stateResolving
	stateBroadcasting
)

// Orchestrator is the single writer for one game instance. It drains
// the action queue, resolves each intent in sequence order against the
// world, updates NPC memory, and hands the ordered result set to the
// broadcaster. At most one resolution runs at a time; entry is guarded
// by an atomic state transition rather than a held lock so redundant
// triggers fail fast instead of queueing.
type Orchestrator struct {
	gameID    uuid.UUID
	queue     *queue.ActionQueue
	world     *world.World
	memory    *memory.Store
	registry  *registry.Registry
	generator services.Generator
	caster    *broadcast.Broadcaster
	events    *events.Broadcaster

	// genTimeout bounds each generator call. Zero means no deadline:
	// the call blocks until the generator answers or ctx is cancelled.
	genTimeout time.Duration

	state  atomic.Int32
	logger *slog.Logger
}

type Config struct {
	GameID           uuid.UUID
	Queue            *queue.ActionQueue
	World            *world.World
	Memory           *memory.Store
	Registry         *registry.Registry
	Generator        services.Generator
	Broadcaster      *broadcast.Broadcaster
	Events           *events.Broadcaster
	GeneratorTimeout time.Duration
	Logger           *slog.Logger
}

func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		gameID:     cfg.GameID,
		queue:      cfg.Queue,
		world:      cfg.World,
		memory:     cfg.Memory,
		registry:   cfg.Registry,
		generator:  cfg.Generator,
		caster:     cfg.Broadcaster,
		events:     cfg.Events,
		genTimeout: cfg.GeneratorTimeout,
		logger:     logger,
	}
}

// GameID returns the game instance this orchestrator serves.
func (o *Orchestrator) GameID() uuid.UUID {
	return o.gameID
}

// World returns the live world. Only the orchestrator mutates it;
// everyone else reads snapshots.
func (o *Orchestrator) World() *world.World {
	return o.world
}

// Memory returns the NPC memory store.
func (o *Orchestrator) Memory() *memory.Store {
	return o.memory
}

// Busy reports whether a resolution is currently running.
func (o *Orchestrator) Busy() bool {
	return state(o.state.Load()) != stateIdle
}

// Resolve drains the queue and resolves the snapshot in sequence order.
// An empty queue yields an empty batch, not an error. A concurrent call
// returns ErrDrainInProgress without touching the queue.
func (o *Orchestrator) Resolve(ctx context.Context) (*broadcast.Batch, error) {
	if !o.state.CompareAndSwap(int32(stateIdle), int32(stateDraining)) {
		return nil, ErrDrainInProgress
	}
	defer o.state.Store(int32(stateIdle))

	snapshot, err := o.queue.SnapshotAndClear(ctx, o.gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to drain action queue: %w", err)
	}

	batch := &broadcast.Batch{GameID: o.gameID.String()}
	if len(snapshot) == 0 {
		o.logger.Debug("Resolve triggered with empty queue", "game_id", o.gameID)
		return batch, nil
	}

	o.state.Store(int32(stateResolving))
	o.logger.Info("Resolving intent batch",
		"game_id", o.gameID,
		"intents", len(snapshot),
	)

	// Intents resolve strictly in sequence order, one generator call at
	// a time, so each narration can build on the ones before it.
	var narrations []string
	for _, in := range snapshot {
		narration := o.resolveIntent(ctx, in, narrations)
		narrations = append(narrations, narration)
		batch.Results = append(batch.Results, broadcast.Result{
			Seq:         in.Seq,
			Participant: in.ParticipantID,
			Narration:   narration,
		})
		if o.events != nil {
			if err := o.events.PublishNarration(ctx, batch.GameID, in.Seq, in.ParticipantID, narration); err != nil {
				o.logger.Error("Failed to publish narration event", "error", err)
			}
		}
	}

	batch.Summary = o.summarize(ctx, narrations)
	o.world.AdvanceTime()

	o.state.Store(int32(stateBroadcasting))
	if o.caster != nil {
		o.caster.Deliver(ctx, *batch)
	}
	return batch, nil
}

// resolveIntent produces the narration for one intent, updating NPC
// memory and applying any world delta before returning so the next
// intent in the batch sees the consequences.
func (o *Orchestrator) resolveIntent(ctx context.Context, in *intent.Intent, priorNarrations []string) string {
	locationID := o.locationFor(in.ParticipantID)
	snap := o.world.Snapshot()
	loc := snap.Locations[locationID]

	var npc *world.NPC
	if in.Kind == intent.KindDo || in.Kind == intent.KindSay {
		npc = o.world.NPCAt(locationID, in.Text)
	}

	pctx := &prompts.IntentContext{
		ParticipantName: in.ParticipantID,
		Location:        loc,
		Weather:         snap.Weather,
		TimeOfDay:       snap.TimeOfDay,
		ActiveQuests:    snap.Quests,
	}
	if loc != nil {
		pctx.Exits = loc.Exits
	}
	if npc != nil {
		o.memory.Record(npc.ID, memory.Entry{
			ParticipantID: in.ParticipantID,
			Summary:       truncate(in.Text, memorySummaryLimit),
			Timestamp:     time.Now().UTC(),
			Delta:         memory.DeltaFor(in.Text),
		})
		pctx.NPC = npc.Summary()
		pctx.NPCMemory = prompts.MemoryLines(o.memory.Recent(npc.ID, in.ParticipantID, prompts.MemoryPromptLimit))
		pctx.Relationship = o.memory.Score(npc.ID, in.ParticipantID)
	}
	if p, ok := o.registry.ParticipantByName(in.ParticipantID); ok && p.Sheet != nil {
		pctx.Sheet = p.Sheet.PromptContext()
	}

	messages, err := prompts.BuildIntentMessages(pctx, in, priorNarrations)
	if err != nil {
		o.logger.Error("Failed to build prompt", "error", err, "seq", in.Seq)
		return prompts.FallbackNarration(in.ParticipantID, in, locationName(loc))
	}

	resp, err := o.chat(ctx, messages)
	if err != nil {
		// Generator failure degrades to a deterministic template for
		// this intent only; the batch keeps going.
		o.logger.Warn("Generator unavailable, using fallback narration",
			"error", err,
			"seq", in.Seq,
			"participant", in.ParticipantID,
		)
		return prompts.FallbackNarration(in.ParticipantID, in, locationName(loc))
	}

	prose, delta, err := prompts.ExtractDelta(resp.Message)
	if err != nil {
		o.logger.Warn("Dropping malformed world delta", "error", err, "seq", in.Seq)
	}
	if !delta.Empty() {
		o.applyDelta(ctx, delta, locationID)
	}
	return prose
}

// applyDelta applies a generator-proposed world mutation immediately,
// inside the resolution pass, so later intents in the same batch see it.
func (o *Orchestrator) applyDelta(ctx context.Context, delta *prompts.WorldDelta, originID string) {
	if delta.Weather != "" {
		o.world.SetWeather(delta.Weather)
	}
	if delta.TimeOfDay != "" {
		o.world.SetTimeOfDay(delta.TimeOfDay)
	}
	for npcID, toLoc := range delta.NPCMoves {
		if err := o.world.MoveNPC(npcID, toLoc); err != nil {
			o.logger.Warn("Ignoring invalid NPC move", "npc", npcID, "to", toLoc, "error", err)
		}
	}
	if delta.NewQuest != nil {
		o.world.AddQuest(*delta.NewQuest)
	}
	if delta.NewLocation != nil {
		if err := o.world.AttachLocation(delta.NewLocation, originID); err != nil {
			o.logger.Warn("Rejecting location expansion",
				"location", delta.NewLocation.ID,
				"error", err,
			)
		}
	}

	if o.events != nil {
		snap := o.world.Snapshot()
		if err := o.events.PublishWorldUpdated(ctx, o.gameID.String(), snap.Weather, snap.TimeOfDay); err != nil {
			o.logger.Error("Failed to publish world update", "error", err)
		}
	}
}

// ExpandWorld attaches a new location outside a resolution pass, for
// explicit expansion requests. It shares the single-writer discipline
// with Resolve: expansion never interleaves with an in-progress drain.
func (o *Orchestrator) ExpandWorld(ctx context.Context, loc *world.Location, fromID string) error {
	if !o.state.CompareAndSwap(int32(stateIdle), int32(stateResolving)) {
		return ErrDrainInProgress
	}
	defer o.state.Store(int32(stateIdle))

	if err := o.world.AttachLocation(loc, fromID); err != nil {
		return fmt.Errorf("failed to expand world: %w", err)
	}

	if o.events != nil {
		snap := o.world.Snapshot()
		if err := o.events.PublishWorldUpdated(ctx, o.gameID.String(), snap.Weather, snap.TimeOfDay); err != nil {
			o.logger.Error("Failed to publish world update", "error", err)
		}
	}
	return nil
}

// RestoreState replaces the live world and NPC memory from a validated
// save. It shares the single-writer discipline with Resolve, so a load
// never interleaves with a drain; a validation failure leaves the live
// state untouched.
func (o *Orchestrator) RestoreState(loadedWorld *world.World, loadedMemory map[string]*memory.NPCMemory) error {
	if !o.state.CompareAndSwap(int32(stateIdle), int32(stateResolving)) {
		return ErrDrainInProgress
	}
	defer o.state.Store(int32(stateIdle))

	if err := loadedWorld.Validate(); err != nil {
		return fmt.Errorf("refusing to load invalid world: %w", err)
	}
	if loadedMemory != nil {
		if err := o.memory.Restore(loadedMemory); err != nil {
			return fmt.Errorf("refusing to load invalid npc memory: %w", err)
		}
	}
	o.world.Restore(loadedWorld)
	return nil
}

func (o *Orchestrator) summarize(ctx context.Context, narrations []string) string {
	resp, err := o.chat(ctx, prompts.BuildSummaryMessages(narrations))
	if err != nil {
		o.logger.Warn("Generator unavailable for batch summary", "error", err)
		return prompts.FallbackSummary(len(narrations))
	}
	return resp.Message
}

func (o *Orchestrator) chat(ctx context.Context, messages []chat.ChatMessage) (*chat.ChatResponse, error) {
	if o.genTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.genTimeout)
		defer cancel()
	}
	return o.generator.Chat(ctx, messages)
}

// locationFor resolves a participant's current location, falling back
// to the world start for unknown participants. An intent from a player
// who disconnected mid-batch still resolves; the world reacts even if
// the actor left.
func (o *Orchestrator) locationFor(participantName string) string {
	if p, ok := o.registry.ParticipantByName(participantName); ok && p.Location != "" {
		return p.Location
	}
	return o.world.Snapshot().Start
}

func locationName(loc *world.Location) string {
	if loc == nil {
		return "an unknown place"
	}
	return loc.Name
}

// truncate cuts s to at most n bytes without splitting a UTF-8 rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
