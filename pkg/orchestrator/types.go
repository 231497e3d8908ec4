package orchestrator

import (
	"context"
	"fmt"

	"github.com/harun/luna/pkg/commandqueue"
	"github.com/harun/luna/pkg/generation"
	"github.com/harun/luna/pkg/prompt"
	"github.com/harun/luna/pkg/session"
)

// Inbound is one message received by a channel.
type Inbound struct {
	Channel     string
	Room        string
	Participant string
	Text        string
	// MessageID identifies the message within its channel; used to drop
	// redeliveries. May be empty.
	MessageID string
	// Command and Args carry a slash command already split by the channel.
	Command string
	Args    string
}

// Key is the conversation this message belongs to.
func (in Inbound) Key() session.Key {
	return session.Key{Room: in.Room, Participant: in.Participant}
}

func (in Inbound) requestID() string {
	if in.MessageID == "" {
		return ""
	}
	return in.Channel + ":" + in.Room + ":" + in.MessageID
}

// Sender delivers a reply to a room on a channel.
type Sender interface {
	Send(ctx context.Context, channel, room, text string) error
}

// Generator produces a reply for a prompt.
type Generator interface {
	Generate(ctx context.Context, msgs []prompt.Message) (*generation.Result, error)
}

// Submitter schedules a task without waiting for it.
type Submitter interface {
	Submit(ctx context.Context, lane, requestID string, task commandqueue.Task) error
}

// Replies holds every fixed text the bot can send. Greet and Hint take the
// trigger prefix; Status takes the exchange count and the last activity time.
type Replies struct {
	Failure      string `json:"failure" mapstructure:"failure"`
	Unconfigured string `json:"unconfigured" mapstructure:"unconfigured"`
	Fault        string `json:"fault" mapstructure:"fault"`
	Busy         string `json:"busy" mapstructure:"busy"`
	Farewell     string `json:"farewell" mapstructure:"farewell"`
	Greet        string `json:"greet" mapstructure:"greet"`
	Hint         string `json:"hint" mapstructure:"hint"`
	Status       string `json:"status" mapstructure:"status"`
	StatusEmpty  string `json:"status_empty" mapstructure:"status_empty"`
}

func DefaultReplies() Replies {
	return Replies{
		Failure:      "Sorry, nya... my head is too jumbled to answer right now 😿",
		Unconfigured: "My API key isn't set, nya! Put a real API key in the config and I'll work 😾",
		Fault:        "Something went wrong, nya... 😿",
		Busy:         "Too many questions at once, nya! Ask me again in a moment 😾",
		Farewell:     "Hmph, see you then, nya! 😼\nLuna will forget everything we talked about!\nLet's start fresh next time 🐾",
		Greet:        "Why'd you call me, nya? 😾 Need something?\nTo chat, say '%s [question]'!",
		Hint:         "What are you trying to ask, nya? 😾\nExample: %s how's the weather today?",
		Status:       "We've talked %d times so far, nya! 😾\nLast chat: %s",
		StatusEmpty:  "We haven't talked yet, nya 😾",
	}
}

func (r Replies) withDefaults() Replies {
	d := DefaultReplies()
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&r.Failure, d.Failure)
	fill(&r.Unconfigured, d.Unconfigured)
	fill(&r.Fault, d.Fault)
	fill(&r.Busy, d.Busy)
	fill(&r.Farewell, d.Farewell)
	fill(&r.Greet, d.Greet)
	fill(&r.Hint, d.Hint)
	fill(&r.Status, d.Status)
	fill(&r.StatusEmpty, d.StatusEmpty)
	return r
}

// Reply kinds, also used as the replies_total metric label.
const (
	ReplyAnswer       = "answer"
	ReplyFailure      = "failure"
	ReplyUnconfigured = "unconfigured"
	ReplyFault        = "fault"
	ReplyBusy         = "busy"
	ReplyFarewell     = "farewell"
	ReplyGreet        = "greet"
	ReplyHint         = "hint"
	ReplyStatus       = "status"
)

// Outcome is what one workflow sent.
type Outcome struct {
	Kind      string
	Text      string
	Committed bool
}

func (o Outcome) String() string {
	return fmt.Sprintf("%s: %q", o.Kind, o.Text)
}
