// Package sessions provides the in-memory registry of workspace sessions.
// Each session owns its own controller pair, so feedback panels, lookback
// windows, and chat histories never leak between users.
package sessions

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/primarycredit/workspace/internal/app"
)

// Workspace is one live session: its id and its controller.
type Workspace struct {
	ID         string
	Controller *app.Controller
	CreatedAt  time.Time
}

// Factory builds a fresh controller for a new session.
type Factory func() *app.Controller

// Registry is a thread-safe in-memory session registry.
type Registry struct {
	mu         sync.RWMutex
	workspaces map[string]*Workspace
	factory    Factory
}

// NewRegistry creates a registry using factory for new sessions.
func NewRegistry(factory Factory) *Registry {
	return &Registry{
		workspaces: make(map[string]*Workspace),
		factory:    factory,
	}
}

// Create starts a new workspace session and returns it.
func (r *Registry) Create() *Workspace {
	ws := &Workspace{
		ID:         uuid.New().String(),
		Controller: r.factory(),
		CreatedAt:  time.Now().UTC(),
	}

	r.mu.Lock()
	r.workspaces[ws.ID] = ws
	r.mu.Unlock()
	return ws
}

// Get retrieves a workspace by id.
func (r *Registry) Get(id string) (*Workspace, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ws, ok := r.workspaces[id]
	if !ok {
		return nil, fmt.Errorf("workspace %s not found", id)
	}
	return ws, nil
}

// Delete closes and removes a workspace.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ws, ok := r.workspaces[id]
	if !ok {
		return fmt.Errorf("workspace %s not found", id)
	}
	ws.Controller.Close()
	delete(r.workspaces, id)
	return nil
}

// Len reports the number of live workspaces.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workspaces)
}

// Close shuts down every workspace.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, ws := range r.workspaces {
		ws.Controller.Close()
		delete(r.workspaces, id)
	}
}
