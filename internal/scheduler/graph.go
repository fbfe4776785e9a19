package scheduler

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gammazero/toposort"
)

// Graph holds the dependency graph for one scheduling run. It is a pure
// description of ordering constraints: execution state (statuses, retries,
// timing) belongs to whoever consumes the groups, never to the graph.
type Graph struct {
	mu         sync.RWMutex
	nodes      map[string]*Node
	added      []string            // IDs in insertion order, for deterministic output
	dependents map[string][]string // Maps nodeID -> list of nodes that depend on it
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:      make(map[string]*Node),
		dependents: make(map[string][]string),
	}
}

// Add inserts a node. Returns error if the node ID already exists.
func (g *Graph) Add(n *Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if n.ID == "" {
		return fmt.Errorf("node has empty ID")
	}
	if _, exists := g.nodes[n.ID]; exists {
		return fmt.Errorf("node with ID %q already exists", n.ID)
	}

	g.nodes[n.ID] = n
	g.added = append(g.added, n.ID)

	// Build dependents map for efficient downstream lookup
	for _, depID := range n.DependsOn {
		g.dependents[depID] = append(g.dependents[depID], n.ID)
	}

	return nil
}

// Validate runs topological sort using gammazero/toposort.
// Returns ordered node IDs or an error if a cycle is detected.
// Also verifies every ID in DependsOn refers to a known node; a dangling
// reference is a fatal configuration error, same as a cycle.
func (g *Graph) Validate() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	// First, verify all dependencies exist
	for nodeID, n := range g.nodes {
		for _, depID := range n.DependsOn {
			if _, exists := g.nodes[depID]; !exists {
				return nil, fmt.Errorf("task %q depends on unknown task %q", nodeID, depID)
			}
		}
	}

	// Build edges for topological sort
	var edges []toposort.Edge
	for nodeID, n := range g.nodes {
		if len(n.DependsOn) == 0 {
			// Node with no dependencies - add edge from nil so it is included
			edges = append(edges, toposort.Edge{nil, nodeID})
		} else {
			for _, depID := range n.DependsOn {
				// Edge (depID, nodeID) means depID must come before nodeID
				edges = append(edges, toposort.Edge{depID, nodeID})
			}
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("dependency graph contains cycle: %w", err)
	}

	// Convert []interface{} to []string
	order := make([]string, 0, len(sorted))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}

	// Verify all nodes survived the sort (catches disconnected edge cases)
	if len(order) != len(g.nodes) {
		missing := []string{}
		foundMap := make(map[string]bool)
		for _, id := range order {
			foundMap[id] = true
		}
		for nodeID := range g.nodes {
			if !foundMap[nodeID] {
				missing = append(missing, nodeID)
			}
		}
		return nil, fmt.Errorf("topological sort lost %d tasks: %s", len(missing), strings.Join(missing, ", "))
	}

	return order, nil
}

// Get returns a copy of the node by ID.
func (g *Graph) Get(nodeID string) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, exists := g.nodes[nodeID]
	if !exists {
		return nil, false
	}
	return cloneNode(n), true
}

// Nodes returns copies of all nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	nodes := make([]*Node, 0, len(g.nodes))
	for _, id := range g.added {
		nodes = append(nodes, cloneNode(g.nodes[id]))
	}
	return nodes
}

// Dependents returns the IDs of nodes that depend directly on nodeID.
func (g *Graph) Dependents(nodeID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return append([]string(nil), g.dependents[nodeID]...)
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return len(g.nodes)
}
