// Package supervisor implements the ComponentSupervisor: a dependency-
// ordered init/start/shutdown driver for ports.Component, grounded on Kahn's
// algorithm over each component's declared dependency names.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lcalzada-xor/nightjar/internal/core/domain"
	"github.com/lcalzada-xor/nightjar/internal/core/ports"
)

// Supervisor orders, initializes, starts and shuts down a fixed set of
// components.
type Supervisor struct {
	components []ports.Component
	log        *slog.Logger

	mu      sync.Mutex
	running []runningTask
	health  map[string]domain.ComponentHealth
}

type runningTask struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Supervisor over the given components. Order here does
// not matter; Init/Start/Shutdown compute the dependency order themselves.
func New(log *slog.Logger, components ...ports.Component) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	health := make(map[string]domain.ComponentHealth, len(components))
	for _, c := range components {
		health[c.Name()] = domain.ComponentHealth{Name: c.Name(), State: "pending"}
	}
	return &Supervisor{components: components, log: log, health: health}
}

// Health returns a snapshot of every component's last known lifecycle state,
// in the order the components were passed to New.
func (s *Supervisor) Health() []domain.ComponentHealth {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ComponentHealth, 0, len(s.health))
	for _, c := range s.components {
		out = append(out, s.health[c.Name()])
	}
	return out
}

func (s *Supervisor) setHealth(name, state string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := domain.ComponentHealth{Name: name, State: state}
	if err != nil {
		h.LastError = err.Error()
	}
	s.health[name] = h
}

// order runs Kahn's algorithm over s.components, returning them in
// dependency order (a component appears after everything it depends on).
// Unknown dependency names or a cycle are both errors.
func (s *Supervisor) order() ([]ports.Component, error) {
	n := len(s.components)
	indexOf := make(map[string]int, n)
	for i, c := range s.components {
		indexOf[c.Name()] = i
	}

	indeg := make([]int, n)
	adj := make([][]int, n)
	for i, c := range s.components {
		for _, dep := range c.Dependencies() {
			depIdx, ok := indexOf[dep]
			if !ok {
				return nil, fmt.Errorf("component %q depends on unknown component %q", c.Name(), dep)
			}
			adj[depIdx] = append(adj[depIdx], i)
			indeg[i]++
		}
	}

	queue := make([]int, 0, n)
	for i, d := range indeg {
		if d == 0 {
			queue = append(queue, i)
		}
	}

	order := make([]int, 0, n)
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		order = append(order, u)
		for _, v := range adj[u] {
			indeg[v]--
			if indeg[v] == 0 {
				queue = append(queue, v)
			}
		}
	}

	if len(order) != n {
		return nil, fmt.Errorf("dependency cycle detected among components")
	}

	out := make([]ports.Component, n)
	for i, idx := range order {
		out[i] = s.components[idx]
	}
	return out, nil
}

// Init runs every component's Init in dependency order, stopping at the
// first error.
func (s *Supervisor) Init(ctx context.Context) error {
	ordered, err := s.order()
	if err != nil {
		return err
	}
	for _, c := range ordered {
		s.log.Debug("initializing component", "component", c.Name())
		if err := c.Init(ctx); err != nil {
			s.setHealth(c.Name(), "failed", err)
			return fmt.Errorf("component %q failed to initialize: %w", c.Name(), err)
		}
		s.setHealth(c.Name(), "initialized", nil)
	}
	return nil
}

// Start runs every component's Start in dependency order. Each Start call is
// expected to return once any background task it owns has been launched;
// Start wraps that task's lifetime in a cancellable context tracked for
// Shutdown.
func (s *Supervisor) Start(ctx context.Context) error {
	ordered, err := s.order()
	if err != nil {
		return err
	}
	for _, c := range ordered {
		s.log.Debug("starting component", "component", c.Name())
		taskCtx, cancel := context.WithCancel(ctx)
		if err := c.Start(taskCtx); err != nil {
			cancel()
			s.setHealth(c.Name(), "failed", err)
			return fmt.Errorf("component %q failed to start: %w", c.Name(), err)
		}
		s.setHealth(c.Name(), "running", nil)
		s.mu.Lock()
		s.running = append(s.running, runningTask{name: c.Name(), cancel: cancel})
		s.mu.Unlock()
	}
	return nil
}

// Shutdown stops every tracked background task, then runs every component's
// Stop in reverse dependency order. Stop errors are logged, not propagated:
// shutdown is best-effort.
func (s *Supervisor) Shutdown(ctx context.Context) {
	s.mu.Lock()
	tasks := s.running
	s.running = nil
	s.mu.Unlock()

	for i := len(tasks) - 1; i >= 0; i-- {
		s.log.Debug("stopping background task", "component", tasks[i].name)
		tasks[i].cancel()
	}

	ordered, err := s.order()
	if err != nil {
		s.log.Error("cannot determine shutdown order", "error", err)
		ordered = s.components
	}
	for i := len(ordered) - 1; i >= 0; i-- {
		c := ordered[i]
		s.log.Debug("stopping component", "component", c.Name())
		if err := c.Stop(ctx); err != nil {
			s.log.Error("component failed to stop", "component", c.Name(), "error", err)
			s.setHealth(c.Name(), "failed", err)
			continue
		}
		s.setHealth(c.Name(), "stopped", nil)
	}
}
