// Package loader fetches the projection dataset once and hands it to the
// store, unless the load was cancelled first.
package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Billy-Davies-2/draftkit/internal/logger"
	"github.com/Billy-Davies-2/draftkit/internal/models"
	"github.com/Billy-Davies-2/draftkit/internal/store"
)

// ErrCancelled is returned by Wait when results were discarded.
var ErrCancelled = errors.New("load cancelled")

// Source provides players.json and meta.json.
type Source interface {
	Players(ctx context.Context) ([]models.Player, error)
	Meta(ctx context.Context) (models.Meta, error)
}

// Result is a completed fetch. MetaErr is set when meta fell back to empty.
type Result struct {
	Players []models.Player
	Meta    models.Meta
	MetaErr error
}

// ApplyFunc receives a successful fetch.
type ApplyFunc func(Result)

// ToStore applies a result as two store actions, players first.
func ToStore(s *store.Store) ApplyFunc {
	return func(r Result) {
		s.SetPlayers(r.Players)
		s.SetMeta(r.Meta)
	}
}

// Task is one in-flight load.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	cancelled bool
	applied   bool
	err       error
}

// Start fetches players and meta concurrently and calls apply with the
// result. A meta failure degrades to empty metadata; a players failure is
// logged and nothing is applied.
func Start(ctx context.Context, src Source, apply ApplyFunc) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{cancel: cancel, done: make(chan struct{})}
	go t.run(ctx, src, apply)
	return t
}

// Load is Start followed by Wait.
func Load(ctx context.Context, src Source, apply ApplyFunc) error {
	return Start(ctx, src, apply).Wait()
}

func (t *Task) run(ctx context.Context, src Source, apply ApplyFunc) {
	defer close(t.done)
	defer t.cancel()

	res, err := fetch(ctx, src)

	t.mu.Lock()
	defer t.mu.Unlock()

	if err != nil {
		if t.cancelled || ctx.Err() != nil {
			t.err = ErrCancelled
			return
		}
		logger.Error("Failed to load players", "error", err)
		t.err = err
		return
	}
	if t.cancelled || ctx.Err() != nil {
		logger.Debug("Discarding load result", "players", len(res.Players))
		t.err = ErrCancelled
		return
	}

	apply(res)
	t.applied = true
	logger.Info("Projection data loaded", "players", len(res.Players), "meta", res.MetaErr == nil)
}

func fetch(ctx context.Context, src Source) (Result, error) {
	var res Result
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		players, err := src.Players(gctx)
		if err != nil {
			return fmt.Errorf("fetch players: %w", err)
		}
		res.Players = players
		return nil
	})
	g.Go(func() error {
		meta, err := src.Meta(gctx)
		if err != nil {
			if gctx.Err() == nil {
				logger.Warn("Meta unavailable, continuing without it", "error", err)
			}
			res.MetaErr = err
			return nil
		}
		res.Meta = meta
		return nil
	})

	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	if res.Players == nil {
		res.Players = []models.Player{}
	}
	return res, nil
}

// Cancel stops the fetch. Once Cancel returns, apply is either finished or
// will never run.
func (t *Task) Cancel() {
	t.cancel()
	t.mu.Lock()
	t.cancelled = true
	t.mu.Unlock()
}

// Done is closed when the task has finished.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task finishes and returns its outcome.
func (t *Task) Wait() error {
	<-t.done
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Applied reports whether the result reached apply.
func (t *Task) Applied() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.applied
}
