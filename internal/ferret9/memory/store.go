package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store holds the history of every active channel. It is safe for
// concurrent use; all operations, including sweeps, are serialised by one
// mutex so a sweep can never drop a history that was touched after the sweep
// looked at it.
type Store struct {
	mu     sync.Mutex
	config Config
	convos map[string]*Conversation // key: channel ID
}

// New creates an empty Store. Zero fields in cfg take their defaults.
func New(cfg Config) *Store {
	return &Store{
		config: cfg.withDefaults(),
		convos: make(map[string]*Conversation),
	}
}

// Config returns the limits in effect.
func (s *Store) Config() Config {
	return s.config
}

// Initialize discards any history for id and starts a new one holding only
// the system preamble.
func (s *Store) Initialize(id, preamble string) {
	s.initializeAt(id, preamble, time.Now())
}

func (s *Store) initializeAt(id, preamble string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.create(id, now)
	c.Turns = append(c.Turns, Turn{Role: RoleSystem, Content: preamble})
}

// Append adds a turn to the history for id, creating the history (without a
// system turn) if there is none. User turns with a speaker are stored as
// "speaker: content". A system turn replaces the existing one at index 0.
func (s *Store) Append(id string, role Role, content, speaker string) {
	s.appendAt(id, role, content, speaker, time.Now())
}

func (s *Store) appendAt(id string, role Role, content, speaker string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.convos[id]
	if c == nil || c.expired(now, s.config.MaxAge) {
		c = s.create(id, now)
	}

	if role == RoleUser && speaker != "" {
		content = speaker + ": " + content
	}
	turn := Turn{Role: role, Content: content}

	switch {
	case role != RoleSystem:
		c.Turns = append(c.Turns, turn)
	case len(c.Turns) > 0 && c.Turns[0].Role == RoleSystem:
		c.Turns[0] = turn
	default:
		c.Turns = append([]Turn{turn}, c.Turns...)
	}

	s.trim(c)
	c.LastActivity = now
}

// Begin records a user turn and returns a copy of the resulting history in
// one step. A history that is missing, expired or empty is first started over
// with preamble as its system turn.
func (s *Store) Begin(id, preamble, content, speaker string) []Turn {
	return s.beginAt(id, preamble, content, speaker, time.Now())
}

func (s *Store) beginAt(id, preamble, content, speaker string, now time.Time) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.convos[id]
	if c == nil || c.expired(now, s.config.MaxAge) || len(c.Turns) == 0 {
		c = s.create(id, now)
		c.Turns = append(c.Turns, Turn{Role: RoleSystem, Content: preamble})
	}
	if speaker != "" {
		content = speaker + ": " + content
	}
	c.Turns = append(c.Turns, Turn{Role: RoleUser, Content: content})

	s.trim(c)
	c.LastActivity = now
	return c.copyTurns()
}

// Read returns a copy of the history for id. A history that has been silent
// for longer than MaxAge is deleted and reported as empty. Reading counts as
// activity.
func (s *Store) Read(id string) []Turn {
	return s.readAt(id, time.Now())
}

func (s *Store) readAt(id string, now time.Time) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.convos[id]
	if c == nil {
		return []Turn{}
	}
	if c.expired(now, s.config.MaxAge) {
		delete(s.convos, id)
		return []Turn{}
	}
	c.LastActivity = now
	return c.copyTurns()
}

// Clear forgets the history for id. Clearing an unknown id does nothing.
func (s *Store) Clear(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.convos, id)
}

// SweepExpired deletes every history that has been silent for longer than
// MaxAge and returns how many were removed.
func (s *Store) SweepExpired() int {
	return s.sweepExpiredAt(time.Now())
}

func (s *Store) sweepExpiredAt(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, c := range s.convos {
		if c.expired(now, s.config.MaxAge) {
			delete(s.convos, id)
			n++
		}
	}
	return n
}

// Len returns the number of tracked channels, expired ones included until
// they are swept.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.convos)
}

// Snapshot returns deep copies of every live conversation.
func (s *Store) Snapshot() []Conversation {
	return s.snapshotAt(time.Now())
}

func (s *Store) snapshotAt(now time.Time) []Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Conversation, 0, len(s.convos))
	for _, c := range s.convos {
		if c.expired(now, s.config.MaxAge) {
			continue
		}
		cp := *c
		cp.Turns = c.copyTurns()
		out = append(out, cp)
	}
	return out
}

// Restore loads conversations saved by Snapshot, skipping expired ones and
// any channel that already has a history. The limits of this Store are
// applied to each restored history. Returns the number restored.
func (s *Store) Restore(convs []Conversation) int {
	return s.restoreAt(convs, time.Now())
}

func (s *Store) restoreAt(convs []Conversation, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, in := range convs {
		if in.ID == "" || in.expired(now, s.config.MaxAge) {
			continue
		}
		if _, exists := s.convos[in.ID]; exists {
			continue
		}
		c := in
		c.Turns = in.copyTurns()
		if c.SessionID == "" {
			c.SessionID = uuid.NewString()
		}
		s.trim(&c)
		s.convos[c.ID] = &c
		n++
	}
	return n
}

// create replaces any history for id with an empty one. Must be called with
// mu held.
func (s *Store) create(id string, now time.Time) *Conversation {
	c := &Conversation{
		ID:           id,
		SessionID:    uuid.NewString(),
		StartedAt:    now,
		LastActivity: now,
	}
	s.convos[id] = c
	return c
}

// trim drops the oldest non-system turns until the history fits MaxHistory.
// Must be called with mu held.
func (s *Store) trim(c *Conversation) {
	max := s.config.MaxHistory
	if len(c.Turns) <= max {
		return
	}
	if c.Turns[0].Role != RoleSystem {
		c.Turns = append([]Turn(nil), c.Turns[len(c.Turns)-max:]...)
		return
	}
	kept := make([]Turn, 0, max)
	kept = append(kept, c.Turns[0])
	if max > 1 {
		kept = append(kept, c.Turns[len(c.Turns)-(max-1):]...)
	}
	c.Turns = kept
}
