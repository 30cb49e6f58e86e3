package services

import (
	"context"

	"github.com/jwebster45206/gm-engine/pkg/chat"
)

// Generator is the external text-generation collaborator. The engine
// functions without it: every caller falls back to deterministic
// templates when a call fails.
type Generator interface {
	// InitModel prepares the backing model on startup.
	InitModel(ctx context.Context, modelName string) error

	// Chat produces narrated text for the given conversation.
	Chat(ctx context.Context, messages []chat.ChatMessage) (*chat.ChatResponse, error)
}
