package services

import (
	"context"
	"sync"

	"github.com/jwebster45206/gm-engine/pkg/chat"
)

// MockGenerator is a configurable Generator for testing. It records
// every call so tests can assert on request shaping and ordering.
type MockGenerator struct {
	mu sync.Mutex

	// ChatFunc, when set, overrides the default canned response.
	ChatFunc func(ctx context.Context, messages []chat.ChatMessage) (*chat.ChatResponse, error)

	// InitError is returned from InitModel when set.
	InitError error

	// Response is returned from Chat when ChatFunc is nil.
	Response string

	calls [][]chat.ChatMessage
}

func NewMockGenerator() *MockGenerator {
	return &MockGenerator{
		Response: "The narrator pauses, considering what comes next.",
	}
}

func (m *MockGenerator) InitModel(ctx context.Context, modelName string) error {
	return m.InitError
}

func (m *MockGenerator) Chat(ctx context.Context, messages []chat.ChatMessage) (*chat.ChatResponse, error) {
	m.mu.Lock()
	recorded := make([]chat.ChatMessage, len(messages))
	copy(recorded, messages)
	m.calls = append(m.calls, recorded)
	fn := m.ChatFunc
	resp := m.Response
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, messages)
	}
	return &chat.ChatResponse{Message: resp}, nil
}

// CallCount returns the number of Chat calls recorded so far.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Call returns a copy of the messages passed to the i-th Chat call.
func (m *MockGenerator) Call(i int) []chat.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i >= len(m.calls) {
		return nil
	}
	out := make([]chat.ChatMessage, len(m.calls[i]))
	copy(out, m.calls[i])
	return out
}

// LastCall returns the messages from the most recent Chat call.
func (m *MockGenerator) LastCall() []chat.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	last := m.calls[len(m.calls)-1]
	out := make([]chat.ChatMessage, len(last))
	copy(out, last)
	return out
}

// Reset clears recorded calls.
func (m *MockGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}
