package orchestrator

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// CommandKind is what an inbound message asks for.
type CommandKind int

const (
	CommandIgnore CommandKind = iota
	CommandAsk
	CommandHint
	CommandGreet
	CommandReset
	CommandStatus
)

func (k CommandKind) String() string {
	switch k {
	case CommandAsk:
		return "ask"
	case CommandHint:
		return "hint"
	case CommandGreet:
		return "greet"
	case CommandReset:
		return "reset"
	case CommandStatus:
		return "status"
	default:
		return "ignore"
	}
}

// Command is a recognized message.
type Command struct {
	Kind  CommandKind
	Query string
}

// RouterConfig controls command recognition.
type RouterConfig struct {
	Prefix        string   `json:"prefix" mapstructure:"prefix"`
	// TargetRooms limits the rooms Luna answers in. Empty means every room.
	TargetRooms   []string `json:"target_rooms" mapstructure:"target_rooms"`
	Farewells     []string `json:"farewells" mapstructure:"farewells"`
	StatusPhrases []string `json:"status_phrases" mapstructure:"status_phrases"`
}

func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		Prefix:        "luna",
		Farewells:     []string{"bye", "see you", "goodbye"},
		StatusPhrases: []string{"remember?"},
	}
}

// Router maps message text onto commands by plain string matching.
type Router struct {
	prefix    string
	rooms     map[string]bool
	greetings map[string]bool
	farewells map[string]bool
	statuses  map[string]bool
}

func NewRouter(cfg RouterConfig) *Router {
	if strings.TrimSpace(cfg.Prefix) == "" {
		cfg.Prefix = DefaultRouterConfig().Prefix
	}
	prefix := strings.ToLower(strings.TrimSpace(cfg.Prefix))

	r := &Router{
		prefix:    prefix,
		greetings: map[string]bool{prefix: true, prefix + "?": true, prefix + "!": true},
		farewells: make(map[string]bool),
		statuses:  make(map[string]bool),
	}

	if len(cfg.TargetRooms) > 0 {
		r.rooms = make(map[string]bool, len(cfg.TargetRooms))
		for _, room := range cfg.TargetRooms {
			r.rooms[room] = true
		}
	}

	// Each phrase matches alone or after the prefix.
	for _, phrase := range cfg.Farewells {
		phrase = normalize(phrase)
		r.farewells[phrase] = true
		r.farewells[prefix+" "+phrase] = true
	}
	for _, phrase := range cfg.StatusPhrases {
		phrase = normalize(phrase)
		r.statuses[phrase] = true
		r.statuses[prefix+" "+phrase] = true
	}

	return r
}

// Prefix is the trigger word.
func (r *Router) Prefix() string {
	return r.prefix
}

// Allowed reports whether the bot answers in room.
func (r *Router) Allowed(room string) bool {
	return r.rooms == nil || r.rooms[room]
}

// Route recognizes in. Messages from other rooms and unrelated chatter are
// ignored.
func (r *Router) Route(in Inbound) Command {
	if !r.Allowed(in.Room) {
		return Command{Kind: CommandIgnore}
	}

	if in.Command != "" {
		return r.routeSlash(in.Command, in.Args)
	}

	text := strings.TrimSpace(in.Text)
	norm := normalize(text)

	switch {
	case r.farewells[norm]:
		return Command{Kind: CommandReset}
	case r.statuses[norm]:
		return Command{Kind: CommandStatus}
	case r.greetings[norm]:
		return Command{Kind: CommandGreet}
	}

	if r.hasPrefix(text) {
		query := strings.TrimSpace(text[len(r.prefix):])
		if query == "" {
			return Command{Kind: CommandHint}
		}
		return Command{Kind: CommandAsk, Query: query}
	}

	return Command{Kind: CommandIgnore}
}

func (r *Router) routeSlash(command, args string) Command {
	args = strings.TrimSpace(args)
	switch strings.ToLower(command) {
	case "start", "help":
		return Command{Kind: CommandGreet}
	case "reset", "bye":
		return Command{Kind: CommandReset}
	case "status":
		return Command{Kind: CommandStatus}
	case "ask", r.prefix:
		if args == "" {
			return Command{Kind: CommandHint}
		}
		return Command{Kind: CommandAsk, Query: args}
	default:
		return Command{Kind: CommandIgnore}
	}
}

// hasPrefix reports whether text starts with the prefix followed by a space.
func (r *Router) hasPrefix(text string) bool {
	n := len(r.prefix)
	if len(text) <= n || !strings.EqualFold(text[:n], r.prefix) {
		return false
	}
	next, _ := utf8.DecodeRuneInString(text[n:])
	return unicode.IsSpace(next)
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
