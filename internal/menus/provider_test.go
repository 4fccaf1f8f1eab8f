package menus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingRepo struct {
	calls atomic.Int32
	nodes []MenuNode
	err   error
}

func (r *countingRepo) ListMenus(ctx context.Context) ([]MenuNode, error) {
	r.calls.Add(1)
	return r.nodes, r.err
}

func TestProviderCachesUntilTTL(t *testing.T) {
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	repo := &countingRepo{nodes: sampleNodes()}
	p := NewProvider(repo, time.Minute, func() time.Time { return now })

	first, err := p.Tree(context.Background())
	require.NoError(t, err)
	second, err := p.Tree(context.Background())
	require.NoError(t, err)
	require.Same(t, first, second)
	require.EqualValues(t, 1, repo.calls.Load())

	now = now.Add(2 * time.Minute)
	_, err = p.Tree(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 2, repo.calls.Load())

	p.Invalidate()
	_, err = p.Tree(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 3, repo.calls.Load())
}

func TestProviderPropagatesErrors(t *testing.T) {
	repo := &countingRepo{err: errors.New("db down")}
	p := NewProvider(repo, time.Minute, nil)
	_, err := p.Tree(context.Background())
	require.ErrorContains(t, err, "db down")

	repo = &countingRepo{nodes: []MenuNode{{ID: "a", ParentID: ptr("zzz")}}}
	p = NewProvider(repo, time.Minute, nil)
	_, err = p.Tree(context.Background())
	require.ErrorIs(t, err, ErrInvalidTree)
}

type gatedRepo struct {
	once    sync.Once
	started chan struct{}
	release chan struct{}
	nodes   []MenuNode
}

func (r *gatedRepo) ListMenus(ctx context.Context) ([]MenuNode, error) {
	r.once.Do(func() { close(r.started) })
	select {
	case <-r.release:
		return r.nodes, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestProviderLoadOutlivesCancelledCaller(t *testing.T) {
	repo := &gatedRepo{started: make(chan struct{}), release: make(chan struct{}), nodes: sampleNodes()}
	p := NewProvider(repo, time.Minute, nil)

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := p.Tree(ctx)
		firstErr <- err
	}()
	<-repo.started

	type result struct {
		tree *Tree
		err  error
	}
	second := make(chan result, 1)
	go func() {
		tree, err := p.Tree(context.Background())
		second <- result{tree, err}
	}()

	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(repo.release)
	res := <-second
	require.NoError(t, res.err)
	require.NotNil(t, res.tree)
}
