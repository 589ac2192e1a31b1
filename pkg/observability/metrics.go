package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/aretw0/arbiter/pkg/session"
)

// Metrics holds the engine's prometheus collectors. Feed it through
// Hooks(); point gauges at a manager with ObserveManager().
type Metrics struct {
	actionsTotal   *prometheus.CounterVec
	queuedTotal    prometheus.Counter
	rollsRequested prometheus.Counter
	outagesTotal   prometheus.Counter
	outageSeconds  prometheus.Counter
}

// NewMetrics creates and registers the engine collectors.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		actionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbiter_actions_total",
			Help: "Completed workflows by outcome status and authority level.",
		}, []string{"status", "authority"}),
		queuedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arbiter_actions_queued_total",
			Help: "Actions buffered during arbiter outages.",
		}),
		rollsRequested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arbiter_rolls_requested_total",
			Help: "Outbound roll requests.",
		}),
		outagesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arbiter_outages_total",
			Help: "Declared arbiter disconnects.",
		}),
		outageSeconds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arbiter_outage_seconds_total",
			Help: "Cumulative arbiter downtime.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.actionsTotal, m.queuedTotal, m.rollsRequested, m.outagesTotal, m.outageSeconds,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hooks returns lifecycle hooks that feed the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnActionQueued: func(_ context.Context, _ *domain.Event) {
			m.queuedTotal.Inc()
		},
		OnRollRequested: func(_ context.Context, _ *domain.Event) {
			m.rollsRequested.Inc()
		},
		OnOutcome: func(_ context.Context, event *domain.Event) {
			if event.Result == nil {
				return
			}
			m.actionsTotal.WithLabelValues(
				string(event.Result.Status),
				string(event.Result.Authority),
			).Inc()
		},
		OnLivenessChange: func(_ context.Context, event *domain.Event) {
			switch event.Type {
			case domain.EventArbiterDisconnected:
				m.outagesTotal.Inc()
			case domain.EventArbiterReconnected:
				if event.Liveness != nil {
					m.outageSeconds.Add(float64(event.Liveness.OutageMs) / 1000)
				}
			}
		},
	}
}

// ObserveManager registers gauges computed from the manager's live
// sessions: open session count, total queued actions, pending rolls.
func (m *Metrics) ObserveManager(reg prometheus.Registerer, mgr *session.Manager) error {
	gauges := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "arbiter_sessions_open",
			Help: "Currently open sessions.",
		}, func() float64 {
			return float64(len(mgr.List()))
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "arbiter_queue_depth",
			Help: "Actions parked in pause buffers across all sessions.",
		}, func() float64 {
			total := 0
			for _, s := range mgr.Sessions() {
				total += s.QueueDepth()
			}
			return float64(total)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "arbiter_rolls_pending",
			Help: "Unresolved roll correlations across all sessions.",
		}, func() float64 {
			total := 0
			for _, s := range mgr.Sessions() {
				total += s.PendingRolls()
			}
			return float64(total)
		}),
	}

	for _, g := range gauges {
		if err := reg.Register(g); err != nil {
			return err
		}
	}
	return nil
}

// Combine fans one hook set out to many subscribers. Nil members are
// skipped.
func Combine(hooks ...domain.LifecycleHooks) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnActionQueued: func(ctx context.Context, event *domain.Event) {
			for _, h := range hooks {
				if h.OnActionQueued != nil {
					h.OnActionQueued(ctx, event)
				}
			}
		},
		OnOutcome: func(ctx context.Context, event *domain.Event) {
			for _, h := range hooks {
				if h.OnOutcome != nil {
					h.OnOutcome(ctx, event)
				}
			}
		},
		OnRollRequested: func(ctx context.Context, event *domain.Event) {
			for _, h := range hooks {
				if h.OnRollRequested != nil {
					h.OnRollRequested(ctx, event)
				}
			}
		},
		OnLivenessChange: func(ctx context.Context, event *domain.Event) {
			for _, h := range hooks {
				if h.OnLivenessChange != nil {
					h.OnLivenessChange(ctx, event)
				}
			}
		},
	}
}
