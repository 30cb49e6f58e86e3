package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jwebster45206/gm-engine/pkg/actor"
)

var (
	// ErrNameConflict is returned when a display name is already bound
	// to a different live session.
	ErrNameConflict = errors.New("display name is already in use")

	// ErrSessionNotFound is returned for operations on unknown session IDs.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionClosed is returned when delivering to a session that is
	// no longer active.
	ErrSessionClosed = errors.New("session is closed")

	// ErrDeliveryFailed is returned when a session's outbound buffer is
	// full. The caller should treat the session as stalled.
	ErrDeliveryFailed = errors.New("session delivery failed")

	// ErrInvalidTransition is returned for out-of-order lifecycle moves.
	ErrInvalidTransition = errors.New("invalid session state transition")
)

// SessionState is the lifecycle state of a connected session.
// Transitions are one-directional; there are no reconnection semantics,
// a returning player gets a new session and reattaches by name.
type SessionState string

const (
	StateConnecting SessionState = "connecting"
	StateNaming     SessionState = "naming"
	StateActive     SessionState = "active"
	StateClosing    SessionState = "closing"
	StateClosed     SessionState = "closed"
)

// outboundBuffer is the per-session delivery channel capacity. A full
// buffer counts as a delivery failure so one stalled reader cannot
// back up a broadcast.
const outboundBuffer = 64

// Envelope is one outbound message queued for a session.
type Envelope struct {
	Kind        string `json:"kind"`
	Seq         int64  `json:"seq,omitempty"`
	Participant string `json:"participant,omitempty"`
	Text        string `json:"text"`
}

// Session is one live connection. It is created by Register and owned
// by the Registry until Unregister.
type Session struct {
	ID uuid.UUID

	mu          sync.Mutex
	state       SessionState
	participant *Participant
	out         chan Envelope
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Participant returns the bound participant, or nil before naming completes.
func (s *Session) Participant() *Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.participant
}

// Out returns the outbound delivery channel for this session.
func (s *Session) Out() <-chan Envelope {
	return s.out
}

// Deliver queues an envelope for the session without blocking. It fails
// if the session is not active or its buffer is full.
func (s *Session) Deliver(env Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return ErrSessionClosed
	}
	select {
	case s.out <- env:
		return nil
	default:
		return fmt.Errorf("session %s outbound buffer full: %w", s.ID, ErrDeliveryFailed)
	}
}

// Participant is a named player identity. Identity is the display name,
// unique within a live game. Participants outlive their sessions: when a
// session closes the participant goes idle and keeps its location and
// inventory until someone binds the same name again.
type Participant struct {
	Name       string       `json:"name"`
	Location   string       `json:"location"`
	Inventory  []string     `json:"inventory,omitempty"`
	LastActive time.Time    `json:"last_active"`
	Sheet      *actor.Sheet `json:"sheet,omitempty"`
}

// Registry tracks sessions and participant identities for one game
// instance. Many connection handlers register and unregister
// concurrently; the broadcaster reads snapshots concurrently with both.
type Registry struct {
	mu            sync.RWMutex
	sessions      map[uuid.UUID]*Session
	participants  map[string]*Participant // keyed by canonical name
	liveNames     map[string]uuid.UUID    // canonical name -> owning session
	startLocation string
	logger        *slog.Logger
}

// NewRegistry creates a registry. New participants spawn at startLocation.
func NewRegistry(startLocation string, logger *slog.Logger) *Registry {
	return &Registry{
		sessions:      make(map[uuid.UUID]*Session),
		participants:  make(map[string]*Participant),
		liveNames:     make(map[string]uuid.UUID),
		startLocation: startLocation,
		logger:        logger,
	}
}

var nameCaser = cases.Title(language.English)

// CanonicalName normalizes a display name for identity comparison.
// "gareth", "GARETH" and " Gareth " all refer to the same participant.
func CanonicalName(name string) string {
	return nameCaser.String(strings.ToLower(strings.TrimSpace(name)))
}

// Register creates a new session in the Connecting state.
func (r *Registry) Register() *Session {
	s := &Session{
		ID:    uuid.New(),
		state: StateConnecting,
		out:   make(chan Envelope, outboundBuffer),
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	r.logger.Debug("Session registered", "session_id", s.ID)
	return s
}

// StartNaming moves a session from Connecting to Naming.
func (r *Registry) StartNaming(sessionID uuid.UUID) error {
	r.mu.RLock()
	s, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnecting {
		return fmt.Errorf("cannot start naming from %s: %w", s.state, ErrInvalidTransition)
	}
	s.state = StateNaming
	return nil
}

// BindIdentity binds a display name to a session and activates it.
// First writer wins: the name check and the binding happen under the
// registry lock, so a concurrent loser gets ErrNameConflict and the
// winner's session is untouched. Binding a name whose participant is
// idle reattaches that participant with its location and inventory.
func (r *Registry) BindIdentity(sessionID uuid.UUID, name string) (*Participant, error) {
	canonical := CanonicalName(name)
	if canonical == "" {
		return nil, fmt.Errorf("display name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	if owner, taken := r.liveNames[canonical]; taken && owner != sessionID {
		return nil, fmt.Errorf("%q: %w", canonical, ErrNameConflict)
	}

	p, exists := r.participants[canonical]
	if !exists {
		p = &Participant{
			Name:     canonical,
			Location: r.startLocation,
		}
		r.participants[canonical] = p
	}
	p.LastActive = time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnecting && s.state != StateNaming {
		return nil, fmt.Errorf("cannot bind identity from %s: %w", s.state, ErrInvalidTransition)
	}
	s.participant = p
	s.state = StateActive
	r.liveNames[canonical] = sessionID

	r.logger.Info("Identity bound",
		"session_id", sessionID,
		"name", canonical,
		"reattached", exists,
	)
	return p, nil
}

// Unregister closes a session and demotes its participant to idle.
// Participant state is never deleted here; the name becomes bindable
// again and a later session picks up where this one left off.
func (r *Registry) Unregister(sessionID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	delete(r.sessions, sessionID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return nil
	}
	s.state = StateClosing
	if s.participant != nil {
		canonical := CanonicalName(s.participant.Name)
		if owner, live := r.liveNames[canonical]; live && owner == sessionID {
			delete(r.liveNames, canonical)
		}
		s.participant.LastActive = time.Now().UTC()
	}
	close(s.out)
	s.state = StateClosed

	r.logger.Debug("Session unregistered", "session_id", sessionID)
	return nil
}

// Session looks up a live session by ID.
func (r *Registry) Session(sessionID uuid.UUID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	return s, ok
}

// LiveSessions returns a snapshot of all currently active sessions.
// The returned slice is safe to iterate while registrations and
// unregistrations proceed concurrently.
func (r *Registry) LiveSessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s.State() == StateActive {
			out = append(out, s)
		}
	}
	return out
}

// ParticipantByName returns a copy of the participant bound to a
// display name, live or idle. Callers get a snapshot, never the
// registry's own record, so their reads cannot race with writes made
// under the registry lock.
func (r *Registry) ParticipantByName(name string) (Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participants[CanonicalName(name)]
	if !ok {
		return Participant{}, false
	}
	cp := *p
	cp.Inventory = append([]string(nil), p.Inventory...)
	return cp, true
}

// AssignSheet binds a character sheet to a named participant. All
// participant mutation goes through the registry lock.
func (r *Registry) AssignSheet(name string, sheet *actor.Sheet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[CanonicalName(name)]
	if !ok {
		return fmt.Errorf("no participant named %q", name)
	}
	p.Sheet = sheet
	return nil
}

// Participants returns a deep copy of all participant state, suitable
// for persistence.
func (r *Registry) Participants() map[string]Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Participant, len(r.participants))
	for name, p := range r.participants {
		cp := *p
		cp.Inventory = append([]string(nil), p.Inventory...)
		out[name] = cp
	}
	return out
}

// RestoreParticipants replaces idle participant state from a saved
// game. Names owned by live sessions are left untouched so a load
// never yanks identity out from under a connected player.
func (r *Registry) RestoreParticipants(saved map[string]Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, p := range saved {
		canonical := CanonicalName(name)
		if _, live := r.liveNames[canonical]; live {
			continue
		}
		cp := p
		cp.Name = canonical
		cp.Inventory = append([]string(nil), p.Inventory...)
		r.participants[canonical] = &cp
	}
}

// TouchActivity updates a participant's last-activity timestamp.
func (r *Registry) TouchActivity(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.participants[CanonicalName(name)]; ok {
		p.LastActive = time.Now().UTC()
	}
}
