// Package metrics exposes widget and bridge activity as Prometheus collectors.
package metrics

import (
	"context"
	"errors"

	"github.com/aretw0/revisit"
	"github.com/aretw0/revisit/pkg/bridge"
	"github.com/aretw0/revisit/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors of one widget host.
type Metrics struct {
	Inbound          *prometheus.CounterVec
	Rejected         *prometheus.CounterVec
	ConfigSends      prometheus.Counter
	SendErrors       prometheus.Counter
	StructuralErrors prometheus.Counter
	Sum              prometheus.Gauge
	Max              prometheus.Gauge
	Participants     prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "revisit_bridge_inbound_messages_total",
			Help: "Inbound messages accepted from the embedded frame",
		}, []string{"type"}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "revisit_bridge_rejected_messages_total",
			Help: "Inbound messages rejected before processing",
		}, []string{"reason"}),
		ConfigSends: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "revisit_bridge_config_sends_total",
			Help: "CONFIG messages sent to the embedded frame",
		}),
		SendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "revisit_bridge_send_errors_total",
			Help: "Outbound sends that failed",
		}),
		StructuralErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "revisit_widget_errors_total",
			Help: "Recomputations that kept the last valid aggregate because of an error",
		}),
		Sum: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "revisit_frequency_sum",
			Help: "Sum of the current frequency table",
		}),
		Max: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "revisit_frequency_max",
			Help: "Max of the current frequency table, -1 when there is no data",
		}),
		Participants: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "revisit_participants",
			Help: "Number of participant sequences in the current state",
		}),
	}
	m.Max.Set(-1)

	for _, c := range []prometheus.Collector{
		m.Inbound, m.Rejected, m.ConfigSends, m.SendErrors, m.StructuralErrors, m.Sum, m.Max, m.Participants,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// BridgeHooks records bridge activity.
func (m *Metrics) BridgeHooks() bridge.Hooks {
	return bridge.Hooks{
		OnInbound: func(ctx context.Context, msg domain.Inbound) {
			m.Inbound.WithLabelValues(string(msg.Envelope.Type)).Inc()
		},
		OnRejected: func(ctx context.Context, msg domain.Inbound, err error) {
			reason := "other"
			if errors.Is(err, domain.ErrUntrustedOrigin) {
				reason = "origin"
			}
			m.Rejected.WithLabelValues(reason).Inc()
		},
		OnConfigSent: func(ctx context.Context, readiness int) {
			m.ConfigSends.Inc()
		},
		OnSendError: func(ctx context.Context, err error) {
			m.SendErrors.Inc()
		},
	}
}

// WidgetHooks records aggregate values and recomputation errors.
func (m *Metrics) WidgetHooks() revisit.Hooks {
	return revisit.Hooks{
		OnAggregate: func(ctx context.Context, snap revisit.Snapshot) {
			m.Sum.Set(float64(snap.Aggregate.Sum))
			m.Participants.Set(float64(snap.Participants))
			if snap.Aggregate.Max.Valid {
				m.Max.Set(float64(snap.Aggregate.Max.Value))
			} else {
				m.Max.Set(-1)
			}
		},
		OnError: func(ctx context.Context, err error) {
			m.StructuralErrors.Inc()
		},
	}
}
