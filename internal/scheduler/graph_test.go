package scheduler

import (
	"strings"
	"testing"
)

// node is a test helper for building graph nodes concisely.
func node(id string, deps ...string) *Node {
	return &Node{ID: id, Name: id, DependsOn: deps}
}

func TestGraphAdd(t *testing.T) {
	tests := []struct {
		name        string
		nodes       []*Node
		wantErr     bool
		errContains string
	}{
		{
			name:  "distinct IDs",
			nodes: []*Node{node("a"), node("b"), node("c", "a", "b")},
		},
		{
			name:        "duplicate ID rejected",
			nodes:       []*Node{node("a"), node("a")},
			wantErr:     true,
			errContains: "already exists",
		},
		{
			name:        "empty ID rejected",
			nodes:       []*Node{node("")},
			wantErr:     true,
			errContains: "empty ID",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGraph()
			var err error
			for _, n := range tt.nodes {
				if err = g.Add(n); err != nil {
					break
				}
			}

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("error %q does not contain %q", err.Error(), tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestGraphValidate(t *testing.T) {
	tests := []struct {
		name        string
		nodes       []*Node
		wantErr     bool
		errContains string
	}{
		{
			name:  "valid chain",
			nodes: []*Node{node("a"), node("b", "a"), node("c", "b")},
		},
		{
			name:  "valid diamond",
			nodes: []*Node{node("a"), node("b", "a"), node("c", "a"), node("d", "b", "c")},
		},
		{
			name:        "unknown dependency",
			nodes:       []*Node{node("a"), node("b", "ghost")},
			wantErr:     true,
			errContains: `depends on unknown task "ghost"`,
		},
		{
			name:        "direct cycle",
			nodes:       []*Node{node("a", "b"), node("b", "a")},
			wantErr:     true,
			errContains: "cycle",
		},
		{
			name:        "transitive cycle",
			nodes:       []*Node{node("a", "c"), node("b", "a"), node("c", "b")},
			wantErr:     true,
			errContains: "cycle",
		},
		{
			name:        "self loop",
			nodes:       []*Node{node("a", "a")},
			wantErr:     true,
			errContains: "cycle",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGraph()
			for _, n := range tt.nodes {
				if err := g.Add(n); err != nil {
					t.Fatalf("failed to add node %q: %v", n.ID, err)
				}
			}

			order, err := g.Validate()

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("error %q does not contain %q", err.Error(), tt.errContains)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(order) != len(tt.nodes) {
				t.Errorf("order has %d IDs, want %d", len(order), len(tt.nodes))
			}

			// Every node must appear after all of its dependencies
			pos := make(map[string]int, len(order))
			for i, id := range order {
				pos[id] = i
			}
			for _, n := range tt.nodes {
				for _, dep := range n.DependsOn {
					if pos[dep] >= pos[n.ID] {
						t.Errorf("node %q sorted before its dependency %q", n.ID, dep)
					}
				}
			}
		})
	}
}

func TestGraphGetReturnsCopy(t *testing.T) {
	g := NewGraph()
	if err := g.Add(node("x")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := g.Add(node("a", "x")); err != nil {
		t.Fatalf("add: %v", err)
	}

	got, ok := g.Get("a")
	if !ok {
		t.Fatal("expected node a to exist")
	}

	got.DependsOn[0] = "mutated"
	again, _ := g.Get("a")
	if again.DependsOn[0] != "x" {
		t.Error("mutating a returned node leaked into the graph")
	}
}

func TestGraphDependents(t *testing.T) {
	g := NewGraph()
	for _, n := range []*Node{node("a"), node("b", "a"), node("c", "a"), node("d", "b")} {
		if err := g.Add(n); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	deps := g.Dependents("a")
	if len(deps) != 2 {
		t.Fatalf("dependents of a = %v, want [b c]", deps)
	}
	if g.Len() != 4 {
		t.Errorf("Len() = %d, want 4", g.Len())
	}
	if len(g.Dependents("d")) != 0 {
		t.Errorf("dependents of leaf d = %v, want none", g.Dependents("d"))
	}
}
