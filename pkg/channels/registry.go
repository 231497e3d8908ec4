package channels

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/harun/luna/pkg/orchestrator"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrUnknownChannel is returned when a message names a channel that was never registered.
var ErrUnknownChannel = errors.New("channel is not registered")

type entry struct {
	ch      Channel
	running bool
}

// Registry owns the bot's channels. Inbound messages flow from a channel
// through the registry to the dispatcher; replies flow back to the channel
// that owns the conversation's room.
type Registry struct {
	mu       sync.RWMutex
	dispatch DispatchFunc
	entries  map[string]*entry
	logger   zerolog.Logger
}

// NewRegistry constructs a channel registry. The dispatcher may be set
// later with SetDispatcher, before channels are started.
func NewRegistry(dispatch DispatchFunc) *Registry {
	return &Registry{
		dispatch: dispatch,
		entries:  make(map[string]*entry),
		logger:   log.With().Str("component", "channels").Logger(),
	}
}

// SetDispatcher replaces the inbound dispatcher.
func (r *Registry) SetDispatcher(dispatch DispatchFunc) {
	r.mu.Lock()
	r.dispatch = dispatch
	r.mu.Unlock()
}

// Register adds a channel under its trimmed name.
func (r *Registry) Register(ch Channel) error {
	if ch == nil {
		return fmt.Errorf("channel is required")
	}
	name := strings.TrimSpace(ch.Name())
	if name == "" {
		return fmt.Errorf("channel name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("channel %q already registered", name)
	}
	r.entries[name] = &entry{ch: ch}
	return nil
}

// IsRegistered reports whether name was registered.
func (r *Registry) IsRegistered(name string) bool {
	_, err := r.lookup(name)
	return err == nil
}

// Names returns the registered channel names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

func (r *Registry) lookup(name string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[strings.TrimSpace(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, name)
	}
	return e, nil
}

// Dispatch hands msg to the dispatcher after checking its source channel.
func (r *Registry) Dispatch(ctx context.Context, msg orchestrator.Inbound) error {
	r.mu.RLock()
	dispatch := r.dispatch
	r.mu.RUnlock()
	if dispatch == nil {
		return fmt.Errorf("dispatch function is not configured")
	}

	msg.Channel = strings.TrimSpace(msg.Channel)
	if msg.Channel == "" {
		return fmt.Errorf("channel is required")
	}
	if _, err := r.lookup(msg.Channel); err != nil {
		return err
	}

	dispatch(ctx, msg)
	return nil
}

// Send delivers text to room through the named channel. The registry is
// the orchestrator's Sender.
func (r *Registry) Send(ctx context.Context, channel, room, text string) error {
	e, err := r.lookup(channel)
	if err != nil {
		return err
	}
	return e.ch.Send(ctx, room, text)
}

// StartAll starts every registered channel in name order.
func (r *Registry) StartAll(ctx context.Context) error {
	for _, name := range r.Names() {
		if err := r.Start(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// StopAll stops channels in reverse name order and returns the first error.
func (r *Registry) StopAll(ctx context.Context) error {
	var errs []error
	names := r.Names()
	for i := len(names) - 1; i >= 0; i-- {
		if err := r.Stop(ctx, names[i]); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// Start starts one channel. Messages it produces are stamped with the
// registered name before they reach the dispatcher. Starting a running
// channel is a no-op.
func (r *Registry) Start(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	e, err := r.lookup(name)
	if err != nil {
		return err
	}

	r.mu.RLock()
	running, ready := e.running, r.dispatch != nil
	r.mu.RUnlock()
	if running {
		return nil
	}
	if !ready {
		return fmt.Errorf("dispatch function is not configured")
	}

	inbound := func(ctx context.Context, msg orchestrator.Inbound) {
		msg.Channel = name
		if err := r.Dispatch(ctx, msg); err != nil {
			r.logger.Warn().Err(err).Str("channel", name).Msg("Dropped inbound message")
		}
	}
	if err := e.ch.Start(ctx, inbound); err != nil {
		return fmt.Errorf("failed to start channel %q: %w", name, err)
	}

	r.mu.Lock()
	e.running = true
	r.mu.Unlock()
	return nil
}

// Stop stops one channel. Stopping an idle channel is a no-op.
func (r *Registry) Stop(ctx context.Context, name string) error {
	e, err := r.lookup(name)
	if err != nil {
		return err
	}

	r.mu.RLock()
	running := e.running
	r.mu.RUnlock()
	if !running {
		return nil
	}

	if err := e.ch.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop channel %q: %w", name, err)
	}

	r.mu.Lock()
	e.running = false
	r.mu.Unlock()
	return nil
}
