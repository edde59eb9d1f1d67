package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Registry keeps one Workflow per browser session. Sessions live only in
// memory and are evicted after a period of inactivity.
type Registry struct {
	backend Backend
	opts    WorkflowOptions

	mu        sync.RWMutex
	workflows map[string]*Workflow
}

// NewRegistry creates an empty registry. Every workflow it creates shares
// backend and opts.
func NewRegistry(backend Backend, opts WorkflowOptions) *Registry {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{
		backend:   backend,
		opts:      opts,
		workflows: make(map[string]*Workflow),
	}
}

// Get returns the workflow for id.
func (r *Registry) Get(id string) (*Workflow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workflows[id]
	return w, ok
}

// Open returns the workflow for id, creating a new one under a fresh id if
// id is unknown. The bool is true when a workflow was created.
func (r *Registry) Open(id string) (*Workflow, bool) {
	if w, ok := r.Get(id); ok {
		return w, false
	}

	w := NewWorkflow(uuid.NewString(), r.backend, r.opts)

	r.mu.Lock()
	r.workflows[w.ID()] = w
	r.mu.Unlock()

	return w, true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workflows)
}

// Sweep removes sessions idle for longer than ttl. Sessions with a request
// in flight are kept. It returns the number removed.
func (r *Registry) Sweep(ttl time.Duration) int {
	cutoff := r.opts.Now().Add(-ttl)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, w := range r.workflows {
		if w.LastActive().After(cutoff) {
			continue
		}
		switch w.Snapshot().Status {
		case StatusInspecting, StatusImporting:
			continue
		}
		delete(r.workflows, id)
		removed++
	}
	return removed
}

// StartSweeper evicts idle sessions every interval until ctx is cancelled.
func (r *Registry) StartSweeper(ctx context.Context, interval, ttl time.Duration) error {
	c := cron.New()
	_, err := c.AddFunc("@every "+interval.String(), func() {
		if n := r.Sweep(ttl); n > 0 {
			slog.Info("evicted idle import sessions", "count", n, "remaining", r.Len())
		}
	})
	if err != nil {
		return fmt.Errorf("schedule session sweeper: %w", err)
	}

	c.Start()
	slog.Info("session sweeper started", "interval", interval, "ttl", ttl)

	<-ctx.Done()
	<-c.Stop().Done()
	slog.Info("session sweeper stopped")
	return nil
}
