package metrics_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aretw0/revisit"
	"github.com/aretw0/revisit/internal/metrics"
	"github.com/aretw0/revisit/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Hooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)
	ctx := context.Background()

	bh := m.BridgeHooks()
	bh.OnInbound(ctx, domain.Inbound{Envelope: domain.Envelope{Type: domain.MessageReady}})
	bh.OnInbound(ctx, domain.Inbound{Envelope: domain.Envelope{Type: domain.MessageReady}})
	bh.OnRejected(ctx, domain.Inbound{}, fmt.Errorf("%w: x", domain.ErrUntrustedOrigin))
	bh.OnConfigSent(ctx, 1)
	bh.OnSendError(ctx, errors.New("closed"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Inbound.WithLabelValues(string(domain.MessageReady))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rejected.WithLabelValues("origin")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConfigSends))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SendErrors))

	assert.Equal(t, -1.0, testutil.ToFloat64(m.Max))
	wh := m.WidgetHooks()
	wh.OnAggregate(ctx, revisit.Snapshot{
		Aggregate:    domain.Aggregate{Table: domain.FrequencyTable{"A": 3}, Sum: 3, Max: domain.Max{Value: 3, Valid: true}},
		Participants: 2,
	})
	wh.OnError(ctx, domain.ErrStructural)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.Sum))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Max))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Participants))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StructuralErrors))
}

func TestMetrics_DoubleRegisterFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := metrics.New(reg)
	require.NoError(t, err)
	_, err = metrics.New(reg)
	assert.Error(t, err)
}
