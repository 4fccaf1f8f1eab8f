package rbac

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/retail-authz/internal/grants"
	"github.com/odyssey-erp/retail-authz/internal/menus"
)

// TreeSource supplies the current menu tree.
type TreeSource interface {
	Tree(ctx context.Context) (*menus.Tree, error)
}

// GrantLoader reads a consistent grant set for a principal's targets.
type GrantLoader interface {
	LoadForTargets(ctx context.Context, targets []grants.Target) ([]grants.Grant, error)
}

// ResolutionObserver records resolver latency.
type ResolutionObserver interface {
	ObserveResolution(op, outcome string, d time.Duration)
}

// Service loads snapshots and runs the Resolver against them.
type Service struct {
	menus    TreeSource
	grants   GrantLoader
	now      func() time.Time
	observer ResolutionObserver
}

// NewService constructs a Service. observer may be nil.
func NewService(tree TreeSource, loader GrantLoader, now func() time.Time, observer ResolutionObserver) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{menus: tree, grants: loader, now: now, observer: observer}
}

// Resolve returns the principal's accessible menu forest.
func (s *Service) Resolve(ctx context.Context, p Principal, showAll bool) (tree []*MenuAccess, err error) {
	start := time.Now()
	defer func() { s.observe("resolve", start, err) }()

	if err := p.Validate(); err != nil {
		return nil, err
	}
	resolver, err := s.load(ctx, p)
	if err != nil {
		return nil, err
	}
	return resolver.Resolve(p, showAll)
}

// Check decides whether p holds at least min on menuID.
func (s *Service) Check(ctx context.Context, p Principal, menuID menus.MenuID, min grants.PermissionType) (d Decision, err error) {
	start := time.Now()
	defer func() { s.observe("check", start, err) }()

	if err := p.Validate(); err != nil {
		return Decision{}, err
	}
	resolver, err := s.load(ctx, p)
	if err != nil {
		return Decision{}, err
	}
	return resolver.Check(p, menuID, min)
}

func (s *Service) load(ctx context.Context, p Principal) (Resolver, error) {
	var (
		tree   *menus.Tree
		loaded []grants.Grant
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := s.menus.Tree(gctx)
		if err != nil {
			return fmt.Errorf("rbac: load menu tree: %w", err)
		}
		tree = t
		return nil
	})
	if !p.IsSystem() {
		g.Go(func() error {
			rows, err := s.grants.LoadForTargets(gctx, p.Targets())
			if err != nil {
				return fmt.Errorf("rbac: load grants: %w", err)
			}
			loaded = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Resolver{}, err
	}
	return Resolver{Tree: tree, Store: grants.NewSnapshot(loaded), Now: s.now}, nil
}

func (s *Service) observe(op string, start time.Time, err error) {
	if s.observer == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.observer.ObserveResolution(op, outcome, time.Since(start))
}
