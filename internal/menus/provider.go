package menus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// loadTimeout bounds a shared reload. The load outlives any single caller
// so one cancelled request cannot fail the others waiting on it.
const loadTimeout = 30 * time.Second

// Provider serves a cached, validated Tree and rebuilds it from the
// repository after ttl. Concurrent rebuilds collapse into one load.
type Provider struct {
	repo Repository
	ttl  time.Duration
	now  func() time.Time

	group    singleflight.Group
	mu       sync.RWMutex
	tree     *Tree
	loadedAt time.Time
}

// NewProvider constructs a Provider. A non-positive ttl reloads on every call.
func NewProvider(repo Repository, ttl time.Duration, now func() time.Time) *Provider {
	if now == nil {
		now = time.Now
	}
	return &Provider{repo: repo, ttl: ttl, now: now}
}

// Tree returns the current menu tree.
func (p *Provider) Tree(ctx context.Context) (*Tree, error) {
	p.mu.RLock()
	tree, loadedAt := p.tree, p.loadedAt
	p.mu.RUnlock()
	if tree != nil && p.ttl > 0 && p.now().Sub(loadedAt) < p.ttl {
		return tree, nil
	}

	ch := p.group.DoChan("tree", func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		nodes, err := p.repo.ListMenus(loadCtx)
		if err != nil {
			return nil, err
		}
		built, err := NewTree(nodes)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.tree, p.loadedAt = built, p.now()
		p.mu.Unlock()
		return built, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("menus: load tree: %w", res.Err)
		}
		return res.Val.(*Tree), nil
	}
}

// Invalidate forces the next call to reload.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	p.tree = nil
	p.mu.Unlock()
}
