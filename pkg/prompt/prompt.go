// Package prompt turns a conversation snapshot and a new query into the
// ordered message sequence sent to the generation endpoint.
package prompt

import (
	"strings"
	"sync/atomic"

	"github.com/harun/luna/pkg/session"
)

// Role of a message on the wire.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a generation request.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Build emits the preamble, then every committed turn in order, then query.
// sess is not modified; the query is not part of its history.
func Build(sess session.Session, preamble, query string) []Message {
	msgs := make([]Message, 0, len(sess.History)+2)
	msgs = append(msgs, Message{Role: RoleSystem, Content: preamble})
	for _, turn := range sess.History {
		msgs = append(msgs, Message{Role: roleOf(turn.Role), Content: turn.Content})
	}
	return append(msgs, Message{Role: RoleUser, Content: query})
}

func roleOf(r session.Role) Role {
	if r == session.RoleAssistant {
		return RoleAssistant
	}
	return RoleUser
}

// DefaultPreamble is used when no persona file is configured.
const DefaultPreamble = `Your name is Luna, a tsundere cat. Follow these rules:
1. End sentences with a cat-like "nya" now and then.
2. Act reluctant, but always end up helping kindly ("hmph, I'm only telling you because I have to, nya").
3. Use the odd 😾 😼 🐾 emoji, never too many.
4. Keep it short and to the point, 500 characters at most.
5. Do not use markdown (no **, *, #, - or >).
6. Remember the earlier conversation and continue it naturally.
7. If someone asks your name, answer "Luna".

If there is earlier conversation, pick it up naturally; otherwise answer as if meeting for the first time, nya!`

// Persona holds the active system preamble and can be swapped at runtime.
type Persona struct {
	preamble atomic.Pointer[string]
}

// NewPersona creates a persona; an empty preamble selects DefaultPreamble.
func NewPersona(preamble string) *Persona {
	p := &Persona{}
	p.Set(preamble)
	return p
}

// Preamble returns the current preamble.
func (p *Persona) Preamble() string {
	if s := p.preamble.Load(); s != nil {
		return *s
	}
	return DefaultPreamble
}

// Set replaces the preamble. Blank input restores the default.
func (p *Persona) Set(preamble string) {
	preamble = strings.TrimSpace(preamble)
	if preamble == "" {
		preamble = DefaultPreamble
	}
	p.preamble.Store(&preamble)
}
