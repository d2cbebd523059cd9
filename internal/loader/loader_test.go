package loader

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Billy-Davies-2/draftkit/internal/logger"
	"github.com/Billy-Davies-2/draftkit/internal/models"
	"github.com/Billy-Davies-2/draftkit/internal/snake"
	"github.com/Billy-Davies-2/draftkit/internal/store"
)

const playersJSON = `[
 {"player_id":"p1","name":"Bijan Robinson","pos":"RB","tm":"ATL","points":310.2,"vorp":95.1,"tier":1,"overall_rank":1,"bye":5},
 {"player_id":"p2","name":"Ja'Marr Chase","pos":"WR","team":"CIN","points":305,"vorp":90,"tier":2,"overall_rank":2}
]`

const metaJSON = `{"target_year":2025,"lookback_years":[2024,2023,2022],"blend":[0.5,0.3,0.2],"schema_version":"1"}`

// stubSource lets tests control each fetch.
type stubSource struct {
	players    []models.Player
	playersErr error
	metaErr    error
	gate       chan struct{}
}

func (s *stubSource) Players(ctx context.Context) ([]models.Player, error) {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.players, s.playersErr
}

func (s *stubSource) Meta(ctx context.Context) (models.Meta, error) {
	if s.metaErr != nil {
		return models.Meta{}, s.metaErr
	}
	return models.Meta{SchemaVersion: "stub"}, nil
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(snake.DefaultConfig())
	require.NoError(t, err)
	return s
}

func TestLoadAppliesToStore(t *testing.T) {
	s := newStore(t)
	src := &stubSource{players: []models.Player{{PlayerID: "p1"}, {PlayerID: "p2"}}}

	require.NoError(t, Load(context.Background(), src, ToStore(s)))
	snap := s.Snapshot()
	assert.Len(t, snap.Players, 2)
	assert.Equal(t, "stub", snap.Meta.SchemaVersion)
	assert.Equal(t, uint64(2), snap.Version, "players and meta are two actions")
}

func TestMetaFailureDegradesToEmpty(t *testing.T) {
	s := newStore(t)
	src := &stubSource{players: []models.Player{{PlayerID: "p1"}}, metaErr: errors.New("404")}

	var got Result
	task := Start(context.Background(), src, func(r Result) {
		got = r
		ToStore(s)(r)
	})
	require.NoError(t, task.Wait())
	assert.True(t, task.Applied())
	assert.Error(t, got.MetaErr)
	assert.Equal(t, models.Meta{}, s.Meta())
	assert.Len(t, s.Snapshot().Players, 1)
}

func TestPlayersFailureAppliesNothing(t *testing.T) {
	s := newStore(t)
	s.SetPlayers([]models.Player{{PlayerID: "old"}})
	src := &stubSource{playersErr: errors.New("boom")}

	err := Load(context.Background(), src, ToStore(s))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, "old", s.Snapshot().Players[0].PlayerID, "prior state is kept")
	assert.Equal(t, uint64(1), s.Version())
}

func TestCancelDiscardsResult(t *testing.T) {
	gate := make(chan struct{})
	src := &stubSource{players: []models.Player{{PlayerID: "p1"}}, gate: gate}

	var calls atomic.Int32
	task := Start(context.Background(), src, func(Result) { calls.Add(1) })
	task.Cancel()
	close(gate)

	assert.ErrorIs(t, task.Wait(), ErrCancelled)
	assert.False(t, task.Applied())
	assert.Zero(t, calls.Load())
}

func TestContextCancelDiscardsResult(t *testing.T) {
	gate := make(chan struct{})
	src := &stubSource{players: []models.Player{{PlayerID: "p1"}}, gate: gate}

	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	task := Start(ctx, src, func(Result) { calls.Add(1) })
	cancel()

	select {
	case <-task.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("task did not finish after context cancel")
	}
	assert.ErrorIs(t, task.Wait(), ErrCancelled)
	assert.Zero(t, calls.Load())
}

func TestCancelAfterApplyIsHarmless(t *testing.T) {
	s := newStore(t)
	task := Start(context.Background(), &stubSource{players: []models.Player{{PlayerID: "p1"}}}, ToStore(s))
	require.NoError(t, task.Wait())
	task.Cancel()
	assert.True(t, task.Applied())
	assert.Len(t, s.Snapshot().Players, 1)
}

func TestHTTPSource(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/data/players.json":
			w.Write([]byte(playersJSON))
		case "/data/meta.json":
			w.Write([]byte(metaJSON))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	src, err := NewHTTPSource(srv.URL+"/data", nil)
	require.NoError(t, err)

	s := newStore(t)
	require.NoError(t, Load(context.Background(), src, ToStore(s)))
	assert.Equal(t, int32(2), hits.Load())

	snap := s.Snapshot()
	require.Len(t, snap.Players, 2)
	assert.Equal(t, "CIN", snap.Players[1].Team, "team alias is accepted")
	require.NotNil(t, snap.Meta.TargetYear)
	assert.Equal(t, 2025, *snap.Meta.TargetYear)
	assert.Equal(t, []float64{0.5, 0.3, 0.2}, snap.Meta.Blend)
}

func TestHTTPSourceMissingMeta(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/players.json" {
			w.Write([]byte(playersJSON))
			return
		}
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	src, err := NewHTTPSource(srv.URL, nil)
	require.NoError(t, err)

	s := newStore(t)
	require.NoError(t, Load(context.Background(), src, ToStore(s)))
	assert.Len(t, s.Snapshot().Players, 2)
	assert.Equal(t, models.Meta{}, s.Meta())
}

func TestHTTPSourceServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	src, err := NewHTTPSource(srv.URL, nil)
	require.NoError(t, err)
	_, err = src.Players(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestNewHTTPSourceRejectsBadScheme(t *testing.T) {
	_, err := NewHTTPSource("ftp://example.com", nil)
	assert.Error(t, err)
}

func TestDirSource(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, PlayersFile), []byte(playersJSON), 0o644))

	s := newStore(t)
	require.NoError(t, Load(context.Background(), DirSource{Dir: dir}, ToStore(s)))
	assert.Len(t, s.Snapshot().Players, 2)
	assert.Equal(t, models.Meta{}, s.Meta(), "missing meta.json degrades to empty")

	require.NoError(t, os.WriteFile(filepath.Join(dir, MetaFile), []byte(metaJSON), 0o644))
	meta, err := DirSource{Dir: dir}.Meta(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1", meta.SchemaVersion)

	_, err = DirSource{Dir: filepath.Join(dir, "missing")}.Players(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDecodePlayersMalformed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, PlayersFile), []byte(`{"not":"an array"}`), 0o644))

	s := newStore(t)
	err := Load(context.Background(), DirSource{Dir: dir}, ToStore(s))
	require.Error(t, err)
	assert.Empty(t, s.Snapshot().Players)
}

// slowMetaSource fails players at once and holds meta until cancelled.
type slowMetaSource struct{}

func (slowMetaSource) Players(context.Context) ([]models.Player, error) {
	return nil, errors.New("upstream 503")
}

func (slowMetaSource) Meta(ctx context.Context) (models.Meta, error) {
	<-ctx.Done()
	return models.Meta{}, ctx.Err()
}

func TestPlayersFailureDoesNotWarnAboutMeta(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWithWriter(&buf, "debug", "")
	t.Cleanup(func() { logger.InitWithWriter(io.Discard, "info", "") })

	s := newStore(t)
	err := Load(context.Background(), slowMetaSource{}, ToStore(s))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream 503")
	assert.NotContains(t, buf.String(), "Meta unavailable")
	assert.Zero(t, s.Version())
}
