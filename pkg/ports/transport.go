package ports

import (
	"context"

	"github.com/aretw0/arbiter/pkg/domain"
)

// Transport delivers engine events to the participant layer: roll requests,
// queue acknowledgments, outcomes, liveness transitions and heartbeat
// pings. The engine fires and forgets; delivery guarantees are the
// adapter's concern, and a failed publish must never fail a workflow.
type Transport interface {
	Publish(ctx context.Context, event domain.Event) error
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, event domain.Event) error

// Publish implements Transport.
func (f TransportFunc) Publish(ctx context.Context, event domain.Event) error {
	return f(ctx, event)
}
