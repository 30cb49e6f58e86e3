package storage

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MockStorage is an in-memory Storage for testing.
type MockStorage struct {
	mu    sync.Mutex
	games map[uuid.UUID]*SavedGame

	// Error overrides, returned when set.
	SaveError   error
	LoadError   error
	DeleteError error
	PingError   error
}

var _ Storage = (*MockStorage)(nil)

func NewMockStorage() *MockStorage {
	return &MockStorage{
		games: make(map[uuid.UUID]*SavedGame),
	}
}

func (m *MockStorage) Ping(ctx context.Context) error {
	return m.PingError
}

func (m *MockStorage) Close() error {
	return nil
}

func (m *MockStorage) SaveGame(ctx context.Context, game *SavedGame) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.games[game.GameID] = game
	return nil
}

func (m *MockStorage) LoadGame(ctx context.Context, gameID uuid.UUID) (*SavedGame, error) {
	if m.LoadError != nil {
		return nil, m.LoadError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.games[gameID], nil
}

func (m *MockStorage) DeleteGame(ctx context.Context, gameID uuid.UUID) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.games, gameID)
	return nil
}
