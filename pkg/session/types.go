package session

import "time"

const (
	DefaultMaxTurns      = 20
	DefaultIdleTimeout   = 30 * time.Minute
	DefaultSweepInterval = 10 * time.Minute
)

// Key identifies one conversation.
type Key struct {
	Room        string
	Participant string
}

func (k Key) String() string {
	return k.Room + "/" + k.Participant
}

// Role is the speaker of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is one recorded utterance.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is a point-in-time copy of a conversation.
type Session struct {
	ID           string    `json:"id"`
	Key          Key       `json:"key"`
	History      []Turn    `json:"history"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// Exchanges is the number of complete user/assistant pairs held.
func (s Session) Exchanges() int {
	return len(s.History) / 2
}

// Config bounds the store and drives the reaper.
type Config struct {
	MaxTurns      int           `json:"max_turns" mapstructure:"max_turns"`
	IdleTimeout   time.Duration `json:"idle_timeout" mapstructure:"idle_timeout"`
	SweepInterval time.Duration `json:"sweep_interval" mapstructure:"sweep_interval"`
}

func DefaultConfig() Config {
	return Config{
		MaxTurns:      DefaultMaxTurns,
		IdleTimeout:   DefaultIdleTimeout,
		SweepInterval: DefaultSweepInterval,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxTurns <= 0 {
		c.MaxTurns = DefaultMaxTurns
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	return c
}
