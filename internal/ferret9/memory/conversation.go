// Package memory keeps the short per-channel history that gives Ferret9
// context across messages. Histories are capped in length and forgotten
// after a period of silence, either lazily on the next read or by the
// periodic Sweeper.
package memory

import "time"

// Role identifies who produced a turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single entry in a channel's history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Conversation is the history kept for one channel.
type Conversation struct {
	ID           string    `json:"id"`         // Discord channel ID
	SessionID    string    `json:"session_id"` // UUID, new each time the history starts over
	Turns        []Turn    `json:"turns"`      // oldest first; a system turn is always at index 0
	StartedAt    time.Time `json:"started_at"`
	LastActivity time.Time `json:"last_activity"`
}

// Config holds the limits applied by the Store.
type Config struct {
	// MaxHistory is the largest number of turns kept per channel,
	// system turn included. Default: 10.
	MaxHistory int

	// MaxAge is how long a channel may stay silent before its history is
	// dropped. Default: 30 minutes.
	MaxAge time.Duration

	// SweepInterval is how often the Sweeper looks for silent channels.
	// Default: 10 minutes.
	SweepInterval time.Duration
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxHistory:    10,
		MaxAge:        30 * time.Minute,
		SweepInterval: 10 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxHistory <= 0 {
		c.MaxHistory = d.MaxHistory
	}
	if c.MaxAge <= 0 {
		c.MaxAge = d.MaxAge
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = d.SweepInterval
	}
	return c
}

func (c *Conversation) expired(now time.Time, maxAge time.Duration) bool {
	return now.Sub(c.LastActivity) > maxAge
}

func (c *Conversation) copyTurns() []Turn {
	out := make([]Turn, len(c.Turns))
	copy(out, c.Turns)
	return out
}
