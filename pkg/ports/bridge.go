package ports

import (
	"context"

	"github.com/aretw0/revisit/pkg/domain"
)

// Sender delivers envelopes to one fixed destination.
type Sender interface {
	Send(ctx context.Context, env domain.Envelope) error
	// Destination is the origin (scheme://host:port) every send is addressed to.
	Destination() string
}

// InboundHandler processes one inbound envelope.
type InboundHandler func(ctx context.Context, msg domain.Inbound)

// Receiver delivers inbound envelopes, in order, to subscribed handlers.
type Receiver interface {
	Subscribe(handler InboundHandler) (unsubscribe func())
}
