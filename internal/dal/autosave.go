package dal

import (
	"context"
	"time"

	"github.com/Billy-Davies-2/draftkit/internal/logger"
	"github.com/Billy-Davies-2/draftkit/internal/pubsub"
	"github.com/Billy-Davies-2/draftkit/internal/store"
)

// Subscriber is the part of an event bus the autosaver listens on.
type Subscriber interface {
	Subscribe() chan pubsub.Event
	Unsubscribe(ch chan pubsub.Event)
}

// Snapshotter is anything that can produce a store snapshot.
type Snapshotter interface {
	Snapshot() store.Snapshot
}

// Autosaver writes the latest snapshot after every change event.
type Autosaver struct {
	dal   SnapshotDAL
	state Snapshotter
	key   string
	saved uint64
}

// NewAutosaver saves state under key in d.
func NewAutosaver(d SnapshotDAL, state Snapshotter, key string) *Autosaver {
	return &Autosaver{dal: d, state: state, key: key}
}

// SaveNow persists the current state if it is newer than the last save.
func (a *Autosaver) SaveNow(ctx context.Context) error {
	snap := a.state.Snapshot()
	if snap.Version == a.saved {
		return nil
	}
	if err := a.dal.Save(ctx, a.key, snap); err != nil {
		return err
	}
	a.saved = snap.Version
	logger.Debug("Snapshot saved", "key", a.key, "version", snap.Version)
	return nil
}

// Run saves on every event from bus until ctx is done or the bus closes,
// then saves once more. Events that pile up are coalesced into one save.
func (a *Autosaver) Run(ctx context.Context, bus Subscriber) {
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	save := func(ctx context.Context) {
		if err := a.SaveNow(ctx); err != nil {
			logger.Error("Failed to save snapshot", "key", a.key, "error", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			save(final)
			cancel()
			return
		case _, ok := <-ch:
			if !ok {
				save(context.Background())
				return
			}
			drain(ch)
			save(ctx)
		}
	}
}

func drain(ch chan pubsub.Event) {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
