package scheduler

import (
	"errors"
	"slices"
	"testing"
)

// TestGraphAdd tests cycle detection at submission with various graph shapes.
func TestGraphAdd(t *testing.T) {
	type node struct {
		id   string
		deps []string
	}

	tests := []struct {
		name    string
		setup   []node
		add     node
		wantErr error
	}{
		{
			name:  "linear chain",
			setup: []node{{"A", nil}, {"B", []string{"A"}}},
			add:   node{"C", []string{"B"}},
		},
		{
			name:  "fan in",
			setup: []node{{"A", nil}, {"B", nil}},
			add:   node{"C", []string{"A", "B"}},
		},
		{
			name: "dependency on unknown task is accepted",
			add:  node{"A", []string{"not-submitted-yet"}},
		},
		{
			name:    "self loop",
			add:     node{"A", []string{"A"}},
			wantErr: ErrDependencyCycle,
		},
		{
			name:    "direct cycle through a forward reference",
			setup:   []node{{"A", []string{"B"}}},
			add:     node{"B", []string{"A"}},
			wantErr: ErrDependencyCycle,
		},
		{
			name:    "transitive cycle",
			setup:   []node{{"A", []string{"C"}}, {"B", []string{"A"}}},
			add:     node{"C", []string{"B"}},
			wantErr: ErrDependencyCycle,
		},
		{
			name:    "duplicate id",
			setup:   []node{{"A", nil}},
			add:     node{"A", nil},
			wantErr: ErrDuplicateTask,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGraph()
			for _, n := range tt.setup {
				if err := g.Add(n.id, n.deps); err != nil {
					t.Fatalf("setup Add(%q) failed: %v", n.id, err)
				}
			}

			before := g.Len()
			err := g.Add(tt.add.id, tt.add.deps)

			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Add() unexpected error: %v", err)
				}
				if !g.Has(tt.add.id) {
					t.Errorf("expected %q to be tracked", tt.add.id)
				}
				return
			}

			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Add() error = %v, want %v", err, tt.wantErr)
			}
			if g.Len() != before {
				t.Errorf("rejected Add changed graph size from %d to %d", before, g.Len())
			}
		})
	}
}

// TestGraphDependents verifies the reverse index survives removals correctly.
func TestGraphDependents(t *testing.T) {
	g := NewGraph()
	_ = g.Add("A", nil)
	_ = g.Add("B", []string{"A"})
	_ = g.Add("C", []string{"A"})
	_ = g.Add("D", []string{"B", "C"})

	got := g.Dependents("A")
	slices.Sort(got)
	if !slices.Equal(got, []string{"B", "C"}) {
		t.Errorf("Dependents(A) = %v, want [B C]", got)
	}

	// A finishing does not drop the edges of tasks still waiting on it
	g.Remove("A")
	got = g.Dependents("A")
	slices.Sort(got)
	if !slices.Equal(got, []string{"B", "C"}) {
		t.Errorf("Dependents(A) after Remove(A) = %v, want [B C]", got)
	}

	// B leaving removes it from A's and nobody else's list
	g.Remove("B")
	if got := g.Dependents("A"); !slices.Equal(got, []string{"C"}) {
		t.Errorf("Dependents(A) after Remove(B) = %v, want [C]", got)
	}
	if got := g.Dependents("B"); !slices.Equal(got, []string{"D"}) {
		t.Errorf("Dependents(B) = %v, want [D]", got)
	}

	g.Remove("C")
	if got := g.Dependents("A"); len(got) != 0 {
		t.Errorf("Dependents(A) after removing all dependents = %v, want empty", got)
	}

	// Removing an unknown task is a no-op
	g.Remove("missing")
	if g.Len() != 1 {
		t.Errorf("Len() = %d, want 1", g.Len())
	}
}
