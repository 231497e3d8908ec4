package channels

import (
	"context"

	"github.com/harun/luna/pkg/orchestrator"
)

// DispatchFunc hands an inbound message to the bot. It must not block on
// generation.
type DispatchFunc func(ctx context.Context, msg orchestrator.Inbound)

// Channel is a chat surface the bot listens on and replies through.
type Channel interface {
	Name() string
	Start(ctx context.Context, dispatch DispatchFunc) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, room, text string) error
}
