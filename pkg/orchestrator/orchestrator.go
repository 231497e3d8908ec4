package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/harun/luna/internal/observability"
	"github.com/harun/luna/internal/tracing"
	"github.com/harun/luna/pkg/commandqueue"
	"github.com/harun/luna/pkg/generation"
	"github.com/harun/luna/pkg/prompt"
	"github.com/harun/luna/pkg/session"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Config holds the conversational surface of the bot.
type Config struct {
	Router  RouterConfig `json:"router" mapstructure:"router"`
	Replies Replies      `json:"replies" mapstructure:"replies"`
	// StatusTimeLayout formats the last activity time in status replies.
	StatusTimeLayout string `json:"status_time_layout" mapstructure:"status_time_layout"`
}

func DefaultConfig() Config {
	return Config{
		Router:           DefaultRouterConfig(),
		Replies:          DefaultReplies(),
		StatusTimeLayout: time.DateTime,
	}
}

// Orchestrator ties the store, prompt, generator and outbound channel together.
type Orchestrator struct {
	store     *session.Store
	persona   *prompt.Persona
	generator Generator
	sender    Sender
	queue     Submitter
	router    *Router
	replies   Replies
	layout    string
	logger    zerolog.Logger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithQueue schedules workflows on q. Without it Dispatch runs each workflow
// on its own goroutine.
func WithQueue(q Submitter) Option {
	return func(o *Orchestrator) {
		o.queue = q
	}
}

// New creates an orchestrator.
func New(cfg Config, store *session.Store, persona *prompt.Persona, generator Generator, sender Sender, opts ...Option) *Orchestrator {
	observability.EnsureRegistered()

	if persona == nil {
		persona = prompt.NewPersona("")
	}
	if cfg.StatusTimeLayout == "" {
		cfg.StatusTimeLayout = time.DateTime
	}

	o := &Orchestrator{
		store:     store,
		persona:   persona,
		generator: generator,
		sender:    sender,
		router:    NewRouter(cfg.Router),
		replies:   cfg.Replies.withDefaults(),
		layout:    cfg.StatusTimeLayout,
		logger:    log.Logger.With().Str("component", "orchestrator").Logger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Router returns the command router.
func (o *Orchestrator) Router() *Router {
	return o.router
}

// Dispatch is the intake entry point for channels. It recognizes the message
// and schedules its workflow without waiting for it. Unrecognized messages
// are dropped silently.
func (o *Orchestrator) Dispatch(ctx context.Context, in Inbound) {
	cmd := o.router.Route(in)
	if cmd.Kind == CommandIgnore {
		return
	}

	key := in.Key()
	ctx = tracing.NewRequestContext(tracing.Detach(ctx))
	ctx = tracing.WithConversation(ctx, key.String())
	ctx = tracing.WithChannel(ctx, in.Channel)
	if in.MessageID != "" {
		ctx = tracing.WithRequestID(ctx, in.MessageID)
	}
	logger := tracing.LoggerFromContext(ctx, o.logger)

	logger.Debug().
		Str("command", cmd.Kind.String()).
		Str("text", in.Text).
		Msg("Message recognized")

	if o.queue == nil {
		go o.Handle(ctx, in, cmd)
		return
	}

	err := o.queue.Submit(ctx, key.String(), in.requestID(), func(taskCtx context.Context) (interface{}, error) {
		return o.Handle(taskCtx, in, cmd), nil
	})
	switch {
	case err == nil:
	case errors.Is(err, commandqueue.ErrDuplicate):
		logger.Debug().Msg("Duplicate message dropped")
	default:
		logger.Warn().Err(err).Msg("Workflow not scheduled")
		go o.deliver(ctx, in, Outcome{Kind: ReplyBusy, Text: o.replies.Busy})
	}
}

// Handle runs one workflow to completion and sends its single reply. Panics
// are recovered into the fault reply.
func (o *Orchestrator) Handle(ctx context.Context, in Inbound, cmd Command) (outcome Outcome) {
	key := in.Key()
	ctx, span := tracing.StartSpan(
		ctx,
		"luna.orchestrator",
		"orchestrator.handle",
		attribute.String("conversation", key.String()),
		attribute.String("channel", in.Channel),
		attribute.String("command", cmd.Kind.String()),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, o.logger)

	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("Workflow panicked")
			span.SetStatus(codes.Error, fmt.Sprint(r))
			outcome = Outcome{Kind: ReplyFault, Text: o.replies.Fault}
		}
		span.SetAttributes(attribute.String("reply", outcome.Kind))
		o.deliver(ctx, in, outcome)
	}()

	switch cmd.Kind {
	case CommandAsk:
		return o.Ask(ctx, key, cmd.Query)
	case CommandReset:
		return o.Reset(ctx, key)
	case CommandStatus:
		return o.Status(key)
	case CommandHint:
		return Outcome{Kind: ReplyHint, Text: fmt.Sprintf(o.replies.Hint, o.router.Prefix())}
	case CommandGreet:
		return Outcome{Kind: ReplyGreet, Text: fmt.Sprintf(o.replies.Greet, o.router.Prefix())}
	default:
		panic(fmt.Sprintf("unhandled command kind %d", cmd.Kind))
	}
}

// Ask answers query within the conversation key and commits the exchange on
// success. The reply is returned, not sent.
func (o *Orchestrator) Ask(ctx context.Context, key session.Key, query string) Outcome {
	logger := tracing.LoggerFromContext(ctx, o.logger)

	sess := o.store.GetOrCreate(key)
	payload := prompt.Build(sess, o.persona.Preamble(), query)
	observability.RecordPromptHistory(len(sess.History))

	res, err := o.generator.Generate(ctx, payload)
	if err != nil {
		if errors.Is(err, generation.ErrUnconfigured) {
			logger.Error().Msg("Generation endpoint is not configured")
			observability.RecordConversationAudit(ctx, "generation_unconfigured", key.String(), "failure", nil)
			return Outcome{Kind: ReplyUnconfigured, Text: o.replies.Unconfigured}
		}
		logger.Error().Err(err).Int("history", len(sess.History)).Msg("Generation failed")
		return Outcome{Kind: ReplyFailure, Text: o.replies.Failure}
	}

	o.store.AppendExchange(key, query, res.Text)

	logger.Info().
		Int("attempts", res.Attempts).
		Int("history", len(sess.History)+2).
		Msg("Exchange committed")

	return Outcome{Kind: ReplyAnswer, Text: res.Text, Committed: true}
}

// Reset forgets the conversation key.
func (o *Orchestrator) Reset(ctx context.Context, key session.Key) Outcome {
	existed := o.store.Clear(key)

	logger := tracing.LoggerFromContext(ctx, o.logger)
	logger.Info().Bool("existed", existed).Msg("Conversation reset")
	observability.RecordConversationAudit(ctx, "conversation_reset", key.String(), "success", map[string]interface{}{
		"existed": existed,
	})

	return Outcome{Kind: ReplyFarewell, Text: o.replies.Farewell}
}

// Status reports how many exchanges key has had without touching its idle clock.
func (o *Orchestrator) Status(key session.Key) Outcome {
	sess, ok := o.store.Lookup(key)
	if !ok {
		return Outcome{Kind: ReplyStatus, Text: o.replies.StatusEmpty}
	}
	return Outcome{
		Kind: ReplyStatus,
		Text: fmt.Sprintf(o.replies.Status, sess.Exchanges(), sess.LastActiveAt.Format(o.layout)),
	}
}

func (o *Orchestrator) deliver(ctx context.Context, in Inbound, outcome Outcome) {
	logger := tracing.LoggerFromContext(ctx, o.logger)

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Reply delivery panicked")
		}
	}()

	observability.RecordReply(outcome.Kind)
	if err := o.sender.Send(ctx, in.Channel, in.Room, outcome.Text); err != nil {
		logger.Error().Err(err).Str("reply", outcome.Kind).Msg("Failed to send reply")
		return
	}
	logger.Debug().Str("reply", outcome.Kind).Msg("Reply sent")
}
