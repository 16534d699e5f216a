package api

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wynnblevins/kanban/domain"
)

// counterValue sums the samples of family name whose labels include want.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			for k, v := range want {
				if labels[k] != v {
					continue metrics
				}
			}
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestMetricsCountsPublishedChanges(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.Publish("b", domain.Change{Event: domain.EventTaskMoved})
	m.Publish("b", domain.Change{Event: domain.EventTaskMoved})
	m.Publish("b", domain.Change{Event: domain.EventColumnCreated})

	if got := counterValue(t, reg, "kanban_board_mutations_total", map[string]string{"event": domain.EventTaskMoved}); got != 2 {
		t.Fatalf("expected 2 task moves, got %v", got)
	}
	if got := counterValue(t, reg, "kanban_board_mutations_total", nil); got != 3 {
		t.Fatalf("expected 3 mutations, got %v", got)
	}
}

func TestMetricsObserveBatch(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	start, err := domain.NewCommand(domain.CmdDragStart, map[string]any{"active": domain.TaskTarget(4)})
	if err != nil {
		t.Fatalf("new command: %v", err)
	}
	down, err := domain.NewCommand(domain.CmdPointerDown, map[string]any{
		"active": domain.ColumnTarget(1), "x": 0, "y": 0,
	})
	if err != nil {
		t.Fatalf("new command: %v", err)
	}
	move, err := domain.NewCommand(domain.CmdPointerMove, map[string]any{"x": 5, "y": 0})
	if err != nil {
		t.Fatalf("new command: %v", err)
	}
	create, err := domain.NewCommand(domain.CmdCreateColumn, nil)
	if err != nil {
		t.Fatalf("new command: %v", err)
	}
	broken := domain.Command{Type: domain.CmdDragStart}

	m.ObserveBatch([]domain.Command{start, down, move, create, broken})

	tests := []struct {
		labels map[string]string
		want   float64
	}{
		{labels: map[string]string{"phase": domain.CmdDragStart, "kind": "task"}, want: 1},
		{labels: map[string]string{"phase": domain.CmdDragStart, "kind": "unknown"}, want: 1},
		{labels: map[string]string{"phase": domain.CmdPointerMove, "kind": ""}, want: 1},
		{labels: nil, want: 4},
	}
	for _, tt := range tests {
		if got := counterValue(t, reg, "kanban_drag_events_total", tt.labels); got != tt.want {
			t.Fatalf("drag events %v = %v, want %v", tt.labels, got, tt.want)
		}
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "kanban_command_batch_size" {
			continue
		}
		h := mf.GetMetric()[0].GetHistogram()
		if h.GetSampleCount() != 1 || h.GetSampleSum() != 5 {
			t.Fatalf("unexpected batch histogram: count=%d sum=%v", h.GetSampleCount(), h.GetSampleSum())
		}
		return
	}
	t.Fatalf("batch size histogram not registered")
}
