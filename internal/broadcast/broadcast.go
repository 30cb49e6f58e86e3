package broadcast

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/jwebster45206/gm-engine/internal/registry"
	"github.com/jwebster45206/gm-engine/internal/services/events"
)

// Result is one resolved intent's narration, in resolution order.
type Result struct {
	Seq         int64  `json:"seq"`
	Participant string `json:"participant"`
	Narration   string `json:"narration"`
}

// Batch is the full output of one resolution pass.
type Batch struct {
	GameID  string   `json:"game_id"`
	Results []Result `json:"results"`
	Summary string   `json:"summary,omitempty"`
}

// Broadcaster fans resolution batches out to every active session.
// Every session observes the same envelope sequence in the same order.
type Broadcaster struct {
	registry *registry.Registry
	events   *events.Broadcaster
	logger   *slog.Logger
}

func New(reg *registry.Registry, ev *events.Broadcaster, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		registry: reg,
		events:   ev,
		logger:   logger,
	}
}

// Deliver sends a batch to all sessions active at call time. A failing
// session is unregistered asynchronously and never blocks or fails
// delivery to the others.
func (b *Broadcaster) Deliver(ctx context.Context, batch Batch) {
	envelopes := make([]registry.Envelope, 0, len(batch.Results)+1)
	for _, res := range batch.Results {
		envelopes = append(envelopes, registry.Envelope{
			Kind:        "narration",
			Seq:         res.Seq,
			Participant: res.Participant,
			Text:        res.Narration,
		})
	}
	if batch.Summary != "" {
		envelopes = append(envelopes, registry.Envelope{
			Kind: "summary",
			Text: batch.Summary,
		})
	}

	sessions := b.registry.LiveSessions()
	for _, session := range sessions {
		if err := b.deliverTo(session, envelopes); err != nil {
			b.logger.Warn("Dropping stalled session",
				"session_id", session.ID,
				"error", err,
			)
			go func(id uuid.UUID) {
				if err := b.registry.Unregister(id); err != nil {
					b.logger.Debug("Unregister after failed delivery", "session_id", id, "error", err)
				}
			}(session.ID)
		}
	}

	if b.events != nil {
		if err := b.events.PublishBatchCompleted(ctx, batch.GameID, len(batch.Results), batch.Summary); err != nil {
			b.logger.Error("Failed to publish batch completion", "error", err)
		}
	}

	b.logger.Debug("Batch delivered",
		"game_id", batch.GameID,
		"results", len(batch.Results),
		"sessions", len(sessions),
	)
}

func (b *Broadcaster) deliverTo(session *registry.Session, envelopes []registry.Envelope) error {
	for _, env := range envelopes {
		if err := session.Deliver(env); err != nil {
			return err
		}
	}
	return nil
}

// Notice sends a single out-of-band message to one session, such as
// the empty-queue notice on a redundant resolve.
func (b *Broadcaster) Notice(session *registry.Session, text string) {
	if err := session.Deliver(registry.Envelope{Kind: "notice", Text: text}); err != nil {
		b.logger.Debug("Notice dropped", "session_id", session.ID, "error", err)
	}
}
