// internal/session/gate.go
package session

import (
	"context"
	"sync"

	"esplit/internal/auth"
)

// Subscriber is the slice of the auth provider the gate depends on.
type Subscriber interface {
	OnAuthStateChange(userID uint, fn func(*auth.Identity)) (unsubscribe func())
}

// Gate exposes the signed-in identity for one user, derived from a
// long-lived auth-state subscription. It reports loading until the first
// determination arrives and must be closed by its owner.
type Gate struct {
	mu      sync.RWMutex
	user    *auth.Identity
	loading bool
	ready   chan struct{}
	onStop  func()
	stop    sync.Once
	watch   []func(*auth.Identity)
}

func Open(sub Subscriber, userID uint) *Gate {
	g := &Gate{
		loading: true,
		ready:   make(chan struct{}),
	}
	g.onStop = sub.OnAuthStateChange(userID, g.set)
	return g
}

func (g *Gate) set(id *auth.Identity) {
	g.mu.Lock()
	g.user = id
	first := g.loading
	g.loading = false
	watchers := append([]func(*auth.Identity){}, g.watch...)
	g.mu.Unlock()

	if first {
		close(g.ready)
	}
	for _, fn := range watchers {
		fn(id)
	}
}

// State returns the current identity and whether the first determination is
// still pending. While loading is true the identity is meaningless.
func (g *Gate) State() (user *auth.Identity, loading bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.user, g.loading
}

// Wait blocks until the first determination and returns the identity, which
// is nil when the user is signed out.
func (g *Gate) Wait(ctx context.Context) (*auth.Identity, error) {
	select {
	case <-g.ready:
		user, _ := g.State()
		return user, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Watch registers fn for every state delivered after this call.
func (g *Gate) Watch(fn func(*auth.Identity)) {
	g.mu.Lock()
	g.watch = append(g.watch, fn)
	g.mu.Unlock()
}

// Close releases the subscription. Safe to call more than once.
func (g *Gate) Close() {
	g.stop.Do(func() {
		if g.onStop != nil {
			g.onStop()
		}
	})
}
