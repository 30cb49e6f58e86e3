package registry

import (
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/gm-engine/pkg/actor"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry("golden-dragon-tavern", slog.Default())
}

func TestRegistry_BindIdentity(t *testing.T) {
	r := newTestRegistry(t)

	s := r.Register()
	assert.Equal(t, StateConnecting, s.State())
	require.NoError(t, r.StartNaming(s.ID))
	assert.Equal(t, StateNaming, s.State())

	p, err := r.BindIdentity(s.ID, "  gareth ")
	require.NoError(t, err)
	assert.Equal(t, "Gareth", p.Name)
	assert.Equal(t, "golden-dragon-tavern", p.Location)
	assert.Equal(t, StateActive, s.State())
	assert.Same(t, p, s.Participant())
}

func TestRegistry_NameConflict(t *testing.T) {
	r := newTestRegistry(t)

	s1 := r.Register()
	_, err := r.BindIdentity(s1.ID, "Gareth")
	require.NoError(t, err)

	s2 := r.Register()
	_, err = r.BindIdentity(s2.ID, "gareth")
	require.ErrorIs(t, err, ErrNameConflict)

	// The existing session keeps its binding.
	assert.Equal(t, StateActive, s1.State())
	assert.Equal(t, "Gareth", s1.Participant().Name)
	assert.NotEqual(t, StateActive, s2.State())
}

func TestRegistry_ReattachPreservesState(t *testing.T) {
	r := newTestRegistry(t)

	s1 := r.Register()
	p1, err := r.BindIdentity(s1.ID, "Lyra")
	require.NoError(t, err)
	p1.Location = "town-square"
	p1.Inventory = []string{"lute", "silver coin"}

	require.NoError(t, r.Unregister(s1.ID))

	// The participant is idle, not deleted, and the name is free again.
	idle, ok := r.ParticipantByName("lyra")
	require.True(t, ok)
	assert.Equal(t, "town-square", idle.Location)

	s2 := r.Register()
	p2, err := r.BindIdentity(s2.ID, "LYRA")
	require.NoError(t, err)
	assert.Same(t, p1, p2)
	assert.Equal(t, "town-square", p2.Location)
	assert.Equal(t, []string{"lute", "silver coin"}, p2.Inventory)
}

func TestRegistry_AssignSheet(t *testing.T) {
	r := newTestRegistry(t)

	s := r.Register()
	_, err := r.BindIdentity(s.ID, "Alice")
	require.NoError(t, err)

	sheet := &actor.Sheet{Spec: &actor.SheetSpec{ID: "sellsword", Name: "Sellsword", Class: "fighter"}}
	require.NoError(t, r.AssignSheet("alice", sheet))

	p, ok := r.ParticipantByName("Alice")
	require.True(t, ok)
	require.NotNil(t, p.Sheet)
	assert.Equal(t, "fighter", p.Sheet.Spec.Class)

	assert.Error(t, r.AssignSheet("Nobody", sheet))
}

func TestRegistry_AssignSheetConcurrentWithReads(t *testing.T) {
	r := newTestRegistry(t)

	s := r.Register()
	_, err := r.BindIdentity(s.ID, "Alice")
	require.NoError(t, err)

	sheet := &actor.Sheet{Spec: &actor.SheetSpec{ID: "sellsword", Name: "Sellsword", Class: "fighter"}}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = r.AssignSheet("Alice", sheet)
		}()
		go func() {
			defer wg.Done()
			_ = r.Participants()
			_, _ = r.ParticipantByName("Alice")
		}()
	}
	wg.Wait()

	p, ok := r.ParticipantByName("Alice")
	require.True(t, ok)
	require.NotNil(t, p.Sheet)
}

func TestRegistry_UnregisterClosesDelivery(t *testing.T) {
	r := newTestRegistry(t)

	s := r.Register()
	_, err := r.BindIdentity(s.ID, "Gareth")
	require.NoError(t, err)

	require.NoError(t, s.Deliver(Envelope{Kind: "narration", Text: "hello"}))
	require.NoError(t, r.Unregister(s.ID))
	assert.Equal(t, StateClosed, s.State())

	err = s.Deliver(Envelope{Kind: "narration", Text: "too late"})
	assert.ErrorIs(t, err, ErrSessionClosed)

	// The buffered envelope is still readable, then the channel closes.
	env, open := <-s.Out()
	assert.True(t, open)
	assert.Equal(t, "hello", env.Text)
	_, open = <-s.Out()
	assert.False(t, open)
}

func TestRegistry_DeliverBufferFull(t *testing.T) {
	r := newTestRegistry(t)

	s := r.Register()
	_, err := r.BindIdentity(s.ID, "Gareth")
	require.NoError(t, err)

	for i := 0; i < outboundBuffer; i++ {
		require.NoError(t, s.Deliver(Envelope{Kind: "narration", Text: "line"}))
	}
	err = s.Deliver(Envelope{Kind: "narration", Text: "overflow"})
	assert.ErrorIs(t, err, ErrDeliveryFailed)
}

func TestRegistry_LiveSessionsSnapshot(t *testing.T) {
	r := newTestRegistry(t)

	active := r.Register()
	_, err := r.BindIdentity(active.ID, "Gareth")
	require.NoError(t, err)
	r.Register() // still connecting, not live

	live := r.LiveSessions()
	require.Len(t, live, 1)
	assert.Equal(t, active.ID, live[0].ID)
}

func TestRegistry_ConcurrentRegistration(t *testing.T) {
	r := newTestRegistry(t)

	const workers = 16
	var wg sync.WaitGroup
	conflicts := make(chan error, workers)

	// Everyone races for the same name; exactly one binding wins.
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := r.Register()
			if _, err := r.BindIdentity(s.ID, "Gareth"); err != nil {
				conflicts <- err
			}
		}()
	}

	// Snapshot reads must be safe while registrations race.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_ = r.LiveSessions()
		}
	}()

	wg.Wait()
	close(conflicts)

	count := 0
	for err := range conflicts {
		assert.ErrorIs(t, err, ErrNameConflict)
		count++
	}
	assert.Equal(t, workers-1, count)
	assert.Len(t, r.LiveSessions(), 1)
}

func TestCanonicalName(t *testing.T) {
	assert.Equal(t, "Gareth", CanonicalName("GARETH"))
	assert.Equal(t, "Old Tom", CanonicalName("  old tom "))
	assert.Equal(t, "", CanonicalName("   "))
}
