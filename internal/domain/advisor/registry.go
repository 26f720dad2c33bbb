package advisor

import (
	"fmt"
	"strings"
	"sync"

	"github.com/Strob0t/CourseForge/internal/domain"
	"github.com/Strob0t/CourseForge/internal/domain/orchestration"
)

// Registry holds every agent known to the process. Registration happens at
// startup; afterwards runs only read from it, concurrently.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
	order  []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]Agent)}
}

// Register adds a copy of a to the registry.
func (r *Registry) Register(a Agent) error {
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("%w: agent id is required", domain.ErrValidation)
	}
	a = a.clone()
	for i := range a.DataTools {
		if a.DataTools[i].Kind == "" {
			a.DataTools[i].Kind = ToolKindData
		}
		if a.DataTools[i].Department == "" {
			a.DataTools[i].Department = a.Department
		}
		if a.DataTools[i].ID == "" || a.DataTools[i].Department == "" {
			return fmt.Errorf("%w: agent %q declares a data tool without id or department", domain.ErrValidation, a.ID)
		}
	}
	if err := a.parse(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[a.ID]; ok {
		return fmt.Errorf("register %s: %w", a.ID, orchestration.ErrDuplicateAgent)
	}
	r.agents[a.ID] = a
	r.order = append(r.order, a.ID)
	return nil
}

// Resolve returns a copy of the agent with the given id.
func (r *Registry) Resolve(id string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok {
		return Agent{}, fmt.Errorf("resolve %q: %w", id, orchestration.ErrUnknownAgent)
	}
	return a.clone(), nil
}

// ValidateHandoffGraph fails iff some agent names a handoff target that is not
// registered. Cycles are allowed.
func (r *Registry) ValidateHandoffGraph() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		for _, target := range r.agents[id].HandoffTargets {
			if _, ok := r.agents[target]; !ok {
				return fmt.Errorf("agent %s -> %s: %w", id, target, orchestration.ErrInvalidHandoff)
			}
		}
	}
	return nil
}

// Agents returns copies of all agents in registration order.
func (r *Registry) Agents() []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Agent, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.agents[id].clone())
	}
	return out
}

// Departments returns the distinct department names served by registered
// advisors, in registration order.
func (r *Registry) Departments() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, id := range r.order {
		d := r.agents[id].Department
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}

// AdvisorFor returns the agent serving department, if any.
func (r *Registry) AdvisorFor(department string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		if a := r.agents[id]; a.Department == department {
			return a.clone(), true
		}
	}
	return Agent{}, false
}
