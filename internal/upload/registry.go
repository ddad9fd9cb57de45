// internal/upload/registry.go
package upload

import (
	"sync"

	"esplit/internal/auth"
)

// watcher is implemented by gates that push later state changes.
type watcher interface {
	Watch(fn func(*auth.Identity))
}

// Registry holds one workspace per user, created on first use.
type Registry struct {
	openGate func(userID uint) Gate
	deps     Deps

	mu         sync.Mutex
	workspaces map[uint]*Workspace
	closed     bool
}

func NewRegistry(openGate func(userID uint) Gate, deps Deps) *Registry {
	return &Registry{
		openGate:   openGate,
		deps:       deps,
		workspaces: make(map[uint]*Workspace),
	}
}

// Get returns the workspace for userID, or nil once the registry is closed.
func (r *Registry) Get(userID uint) *Workspace {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	if w, ok := r.workspaces[userID]; ok {
		return w
	}
	gate := r.openGate(userID)
	w := NewWorkspace(userID, gate, r.deps)
	r.workspaces[userID] = w

	// Signing out everywhere tears the workspace down, aborting any transfer.
	if g, ok := gate.(watcher); ok {
		g.Watch(func(id *auth.Identity) {
			if id == nil {
				go r.drop(w)
			}
		})
	}
	return w
}

func (r *Registry) drop(w *Workspace) {
	r.mu.Lock()
	if cur, ok := r.workspaces[w.userID]; ok && cur == w {
		delete(r.workspaces, w.userID)
	}
	r.mu.Unlock()
	w.Close()
}

// Release closes and forgets the workspace of userID, if any.
func (r *Registry) Release(userID uint) {
	r.mu.Lock()
	w, ok := r.workspaces[userID]
	delete(r.workspaces, userID)
	r.mu.Unlock()
	if ok {
		w.Close()
	}
}

func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	all := make([]*Workspace, 0, len(r.workspaces))
	for id, w := range r.workspaces {
		all = append(all, w)
		delete(r.workspaces, id)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, w := range all {
		wg.Add(1)
		go func(w *Workspace) {
			defer wg.Done()
			w.Close()
		}(w)
	}
	wg.Wait()
}
