package bridge

import (
	"context"

	"github.com/aretw0/revisit/pkg/domain"
)

// Hooks observe bridge activity. Any hook may be nil.
type Hooks struct {
	OnInbound    func(ctx context.Context, msg domain.Inbound)
	OnRejected   func(ctx context.Context, msg domain.Inbound, err error)
	OnConfigSent func(ctx context.Context, readiness int)
	OnSendError  func(ctx context.Context, err error)
}

func (h Hooks) inbound(ctx context.Context, msg domain.Inbound) {
	if h.OnInbound != nil {
		h.OnInbound(ctx, msg)
	}
}

func (h Hooks) rejected(ctx context.Context, msg domain.Inbound, err error) {
	if h.OnRejected != nil {
		h.OnRejected(ctx, msg, err)
	}
}

func (h Hooks) configSent(ctx context.Context, readiness int) {
	if h.OnConfigSent != nil {
		h.OnConfigSent(ctx, readiness)
	}
}

func (h Hooks) sendError(ctx context.Context, err error) {
	if h.OnSendError != nil {
		h.OnSendError(ctx, err)
	}
}
