package scheduler

// FailurePolicy determines how a node's failure affects its dependents.
type FailurePolicy int

const (
	FailBlock   FailurePolicy = iota // Dependents never start
	FailProceed                      // Dependents run anyway
)

// String returns the config-file spelling of the policy.
func (p FailurePolicy) String() string {
	switch p {
	case FailProceed:
		return "proceed"
	default:
		return "block"
	}
}

// Node is one schedulable unit of work. The engine treats the work itself as
// opaque: Payload carries whatever the caller's executor needs, and the
// scheduler only reads ID and DependsOn.
type Node struct {
	ID         string // Unique identifier within one run
	Name       string // Human-readable name
	Resource   string // Slot pool key (e.g., a provider name); empty means unthrottled
	DependsOn  []string
	OnFailure  FailurePolicy
	MaxRetries *int // Per-task attempt budget; nil means the engine default
	Payload    any
}

func cloneNode(n *Node) *Node {
	if n == nil {
		return nil
	}

	cp := *n
	if n.DependsOn != nil {
		cp.DependsOn = append([]string(nil), n.DependsOn...)
	}
	if n.MaxRetries != nil {
		v := *n.MaxRetries
		cp.MaxRetries = &v
	}
	return &cp
}
