package scheduler

import "fmt"

// Groups levels the graph into the minimal ordered sequence of execution
// groups: group k contains exactly the nodes whose longest dependency chain
// has length k. Everything inside one group is safe to run concurrently;
// groups must run in order with a barrier between them.
//
// Validation runs first, so cycles and unknown dependency references surface
// here as fatal errors before anything is dispatched. Within a group, nodes
// appear in insertion order.
func (g *Graph) Groups() ([][]*Node, error) {
	if _, err := g.Validate(); err != nil {
		return nil, err
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	// Kahn-style leveling: a node joins a group once every dependency has
	// been placed in an earlier group.
	remaining := make(map[string]int, len(g.nodes))
	for id, n := range g.nodes {
		remaining[id] = len(n.DependsOn)
	}

	placed := make(map[string]bool, len(g.nodes))
	var groups [][]*Node

	for len(placed) < len(g.nodes) {
		var group []*Node
		for _, id := range g.added {
			if placed[id] || remaining[id] > 0 {
				continue
			}
			group = append(group, cloneNode(g.nodes[id]))
		}

		if len(group) == 0 {
			// Validate rules this out; kept so a future bug loops once, not forever.
			return nil, fmt.Errorf("leveling stalled with %d tasks unplaced", len(g.nodes)-len(placed))
		}

		// Decrement dependents only after the whole group is collected, so a
		// node never lands in the same group as one of its dependencies.
		for _, n := range group {
			placed[n.ID] = true
		}
		for _, n := range group {
			for _, depID := range g.dependents[n.ID] {
				remaining[depID]--
			}
		}

		groups = append(groups, group)
	}

	return groups, nil
}

// BuildGroups is the one-shot form: it assembles a graph from nodes and
// levels it. Duplicate IDs, unknown dependencies, and cycles all return
// errors.
func BuildGroups(nodes []Node) ([][]*Node, error) {
	g := NewGraph()
	for i := range nodes {
		if err := g.Add(&nodes[i]); err != nil {
			return nil, err
		}
	}
	return g.Groups()
}
