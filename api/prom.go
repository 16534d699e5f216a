package api

import (
	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wynnblevins/kanban/domain"
)

// Metrics holds the board engine counters. It also implements
// session.Publisher so every published change is counted.
type Metrics struct {
	mutations *prometheus.CounterVec
	drags     *prometheus.CounterVec
	batchSize prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		mutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kanban_board_mutations_total",
				Help: "Board states published, by event",
			},
			[]string{"event"},
		),
		drags: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kanban_drag_events_total",
				Help: "Drag lifecycle commands received, by phase and dragged kind",
			},
			[]string{"phase", "kind"},
		),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "kanban_command_batch_size",
			Help:    "Commands per request",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128},
		}),
	}
	reg.MustRegister(m.mutations, m.drags, m.batchSize)
	return m
}

// Publish counts a published board change.
func (m *Metrics) Publish(_ string, change domain.Change) {
	m.mutations.WithLabelValues(change.Event).Inc()
}

// ObserveBatch records the batch size and the drag commands it contains.
func (m *Metrics) ObserveBatch(cmds []domain.Command) {
	m.batchSize.Observe(float64(len(cmds)))
	for _, cmd := range cmds {
		switch cmd.Type {
		case domain.CmdDragStart, domain.CmdDragOver, domain.CmdDragEnd, domain.CmdPointerDown:
			m.drags.WithLabelValues(cmd.Type, activeKind(cmd)).Inc()
		case domain.CmdPointerMove, domain.CmdPointerUp, domain.CmdPointerCancel:
			m.drags.WithLabelValues(cmd.Type, "").Inc()
		}
	}
}

func activeKind(cmd domain.Command) string {
	var d struct {
		Active *domain.Target `json:"active"`
	}
	if len(cmd.Data) == 0 || sonic.Unmarshal(cmd.Data, &d) != nil || d.Active == nil {
		return "unknown"
	}
	return d.Active.Kind.String()
}
