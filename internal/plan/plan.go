// Package plan loads run plans from JSON files and turns them into
// schedulable nodes. A plan names its tasks, their shell commands, and the
// dependency edges between them; everything else about execution order is
// the scheduler's business.
package plan

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/hivegrid/hivegrid/internal/executor"
	"github.com/hivegrid/hivegrid/internal/scheduler"
)

// Task is one plan entry.
type Task struct {
	ID         string            `json:"id"`
	Name       string            `json:"name,omitempty"`
	Resource   string            `json:"resource,omitempty"`
	Command    string            `json:"command"`
	Dir        string            `json:"dir,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
	DependsOn  []string          `json:"depends_on,omitempty"`
	OnFailure  string            `json:"on_failure,omitempty"`  // "block" (default) or "proceed"
	MaxRetries *int              `json:"max_retries,omitempty"` // overrides the engine budget
}

// Plan is a named set of tasks to run as one unit.
type Plan struct {
	Name  string `json:"name,omitempty"`
	Tasks []Task `json:"tasks"`
}

// Load reads and validates a plan file.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan %s: %w", path, err)
	}

	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", path, err)
	}
	return p, nil
}

// Parse unmarshals and validates plan JSON.
func Parse(data []byte) (*Plan, error) {
	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing plan: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks everything a plan can get wrong on its own: missing IDs,
// missing commands, duplicate IDs, unknown failure policies, negative retry
// budgets. Dangling dependencies and cycles are left to the scheduler, which
// names the offending task itself.
func (p *Plan) Validate() error {
	if len(p.Tasks) == 0 {
		return fmt.Errorf("plan has no tasks")
	}

	seen := make(map[string]bool, len(p.Tasks))
	for i, t := range p.Tasks {
		if t.ID == "" {
			return fmt.Errorf("task %d has no id", i)
		}
		if seen[t.ID] {
			return fmt.Errorf("duplicate task id %q", t.ID)
		}
		seen[t.ID] = true

		if t.Command == "" {
			return fmt.Errorf("task %q has no command", t.ID)
		}
		switch t.OnFailure {
		case "", "block", "proceed":
		default:
			return fmt.Errorf(`task %q: on_failure must be "block" or "proceed", got %q`, t.ID, t.OnFailure)
		}
		if t.MaxRetries != nil && *t.MaxRetries < 0 {
			return fmt.Errorf("task %q: max_retries must not be negative, got %d", t.ID, *t.MaxRetries)
		}
	}

	return nil
}

// Nodes converts a validated plan into scheduler nodes with command payloads
// attached. Unrecognized failure policies fall back to block; Validate has
// already rejected them on any plan that went through Load or Parse.
func (p *Plan) Nodes() []scheduler.Node {
	nodes := make([]scheduler.Node, 0, len(p.Tasks))
	for _, t := range p.Tasks {
		name := t.Name
		if name == "" {
			name = t.ID
		}

		var env []string
		for k, v := range t.Env {
			env = append(env, k+"="+v)
		}

		policy := scheduler.FailBlock
		if t.OnFailure == "proceed" {
			policy = scheduler.FailProceed
		}

		nodes = append(nodes, scheduler.Node{
			ID:         t.ID,
			Name:       name,
			Resource:   t.Resource,
			DependsOn:  append([]string(nil), t.DependsOn...),
			OnFailure:  policy,
			MaxRetries: t.MaxRetries,
			Payload: executor.CommandSpec{
				Command: t.Command,
				Dir:     t.Dir,
				Env:     env,
			},
		})
	}
	return nodes
}
