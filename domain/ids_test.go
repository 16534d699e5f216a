package domain

import (
	"math/rand/v2"
	"testing"
)

func TestSequentialIDs(t *testing.T) {
	g := NewSequentialIDs(4)
	for want := ID(4); want < 8; want++ {
		if got := g.NextID(); got != want {
			t.Fatalf("NextID() = %d, want %d", got, want)
		}
	}
}

func TestRandomIDsStayInRange(t *testing.T) {
	g := NewRandomIDs(rand.NewPCG(1, 2))
	for i := 0; i < 1000; i++ {
		if id := g.NextID(); id < 0 || id > MaxRandomID {
			t.Fatalf("id %d out of range", id)
		}
	}
}

func TestRandomIDsOnBoardAreUnique(t *testing.T) {
	b := NewBoard(WithIDGenerator(NewRandomIDs(rand.NewPCG(7, 7))))
	for i := 0; i < 200; i++ {
		b.CreateTask(ID(i % 4))
	}
	seen := map[ID]bool{}
	for _, id := range append(columnIDs(b.Columns()), taskIDs(b.Tasks())...) {
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
	}
}

func TestNewIDGenerator(t *testing.T) {
	tests := []struct {
		strategy string
		wantErr  bool
	}{
		{strategy: ""},
		{strategy: "sequential"},
		{strategy: " Random "},
		{strategy: "uuid", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			g, err := NewIDGenerator(tt.strategy, 0)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil || g == nil {
				t.Fatalf("NewIDGenerator(%q) = %v, %v", tt.strategy, g, err)
			}
		})
	}
}

func TestParseOrphanPolicy(t *testing.T) {
	for in, want := range map[string]OrphanPolicy{"": OrphanKeep, "keep": OrphanKeep, "CASCADE": OrphanCascade} {
		got, err := ParseOrphanPolicy(in)
		if err != nil || got != want {
			t.Fatalf("ParseOrphanPolicy(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseOrphanPolicy("drop"); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}

func TestKindText(t *testing.T) {
	var k Kind
	if err := k.UnmarshalText([]byte("Task")); err != nil || k != KindTask {
		t.Fatalf("UnmarshalText = %v, %v", k, err)
	}
	if _, err := Kind(0).MarshalText(); err == nil {
		t.Fatalf("expected error marshalling zero kind")
	}
	if got := TaskTarget(3).String(); got != "task:3" {
		t.Fatalf("String() = %q", got)
	}
}
