package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Billy-Davies-2/draftkit/internal/models"
	"github.com/Billy-Davies-2/draftkit/internal/pubsub"
	"github.com/Billy-Davies-2/draftkit/internal/snake"
	"github.com/Billy-Davies-2/draftkit/internal/store"
)

func intPtr(n int) *int { return &n }

type fixture struct {
	store  *store.Store
	bus    *pubsub.PubSub
	api    *APIHandlers
	health *Health
	router *mux.Router
}

func newFixture(t *testing.T, reload Reloader) *fixture {
	t.Helper()
	bus := pubsub.New()
	t.Cleanup(bus.Close)
	s, err := store.New(snake.DefaultConfig(), store.WithPublisher(bus))
	require.NoError(t, err)
	s.SetPlayers([]models.Player{
		{PlayerID: "p1", Name: "Bijan Robinson", Pos: models.PosRB, Team: "ATL", Tier: 1, OverallRank: 1, Points: 310, Bye: intPtr(5)},
		{PlayerID: "p2", Name: "Ja'Marr Chase", Pos: models.PosWR, Team: "CIN", Tier: 1, OverallRank: 2, Points: 305, Bye: intPtr(10)},
		{PlayerID: "p3", Name: "Josh Allen", Pos: models.PosQB, Team: "BUF", Tier: 2, OverallRank: 13, Points: 390, Bye: intPtr(7)},
	})

	api := NewAPIHandlers(s, bus, reload)
	api.keepalive = 50 * time.Millisecond
	health := NewHealth(nil)
	return &fixture{store: s, bus: bus, api: api, health: health, router: NewRouter(api, health)}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

type row struct {
	PlayerID   string `json:"player_id"`
	Drafted    bool   `json:"drafted"`
	Queued     bool   `json:"queued"`
	QueueIndex int    `json:"queueIndex"`
	RoundPick  string `json:"roundPick"`
	PointsText string `json:"pointsText"`
	VORPText   string `json:"vorpText"`
}

func TestGetState(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(t, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var st struct {
		Version     uint64          `json:"version"`
		CurrentPick int             `json:"currentPick"`
		Players     []any           `json:"players"`
		Rows        []row           `json:"rows"`
		Picks       json.RawMessage `json:"picks"`
		MetaSummary string          `json:"metaSummary"`
	}
	decodeBody(t, w, &st)
	assert.Equal(t, uint64(1), st.Version)
	assert.Equal(t, 1, st.CurrentPick)
	assert.Len(t, st.Players, 3)
	require.Len(t, st.Rows, 3)
	assert.Equal(t, "R1P1", st.Rows[0].RoundPick)
	assert.Equal(t, "310.0", st.Rows[0].PointsText)
	assert.Equal(t, "+0.0", st.Rows[0].VORPText)
	assert.Equal(t, "2025 projections • 2024/23/22 blend", st.MetaSummary)
	assert.NotEmpty(t, st.Picks)
}

func TestListPlayersQueryDoesNotChangeFilters(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(t, http.MethodGet, "/api/players?pos=wr", "")
	require.Equal(t, http.StatusOK, w.Code)
	var rows []row
	decodeBody(t, w, &rows)
	require.Len(t, rows, 1)
	assert.Equal(t, "p2", rows[0].PlayerID)
	assert.Equal(t, models.PosAll, f.store.Filters().Pos)

	w = f.do(t, http.MethodGet, "/api/players?sort=points&desc=true", "")
	decodeBody(t, w, &rows)
	require.Len(t, rows, 3)
	assert.Equal(t, "p3", rows[0].PlayerID)

	w = f.do(t, http.MethodGet, "/api/players?tier=abc&search=JOSH", "")
	decodeBody(t, w, &rows)
	require.Len(t, rows, 1, "bad tier is ignored, search is case-insensitive")
	assert.Equal(t, "p3", rows[0].PlayerID)
}

func TestSetFilters(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(t, http.MethodPost, "/api/filters", `{"pos":"RB","tier":"1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var got models.Filters
	decodeBody(t, w, &got)
	assert.Equal(t, models.PosRB, got.Pos)
	require.NotNil(t, got.Tier)
	assert.Equal(t, 1, *got.Tier)

	w = f.do(t, http.MethodPost, "/api/filters", `{"search":"bij"}`)
	decodeBody(t, w, &got)
	assert.Equal(t, models.PosRB, got.Pos, "omitted keys keep their value")
	assert.Equal(t, "bij", got.Search)

	w = f.do(t, http.MethodPost, "/api/filters", `{"pos":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQueueEndpoints(t *testing.T) {
	f := newFixture(t, nil)

	var res struct {
		OK    bool     `json:"ok"`
		Queue []string `json:"queue"`
	}
	decodeBody(t, f.do(t, http.MethodPost, "/api/queue/toggle", `{"id":"p1"}`), &res)
	assert.True(t, res.OK)
	decodeBody(t, f.do(t, http.MethodPost, "/api/queue/toggle", `{"id":"p3"}`), &res)
	assert.Equal(t, []string{"p1", "p3"}, res.Queue)

	decodeBody(t, f.do(t, http.MethodPost, "/api/queue/toggle", `{"id":"nobody"}`), &res)
	assert.False(t, res.OK)

	decodeBody(t, f.do(t, http.MethodPost, "/api/queue/move", `{"from":1,"to":0}`), &res)
	assert.True(t, res.OK)
	assert.Equal(t, []string{"p3", "p1"}, res.Queue)

	decodeBody(t, f.do(t, http.MethodPost, "/api/queue/move", `{"from":5,"to":0}`), &res)
	assert.False(t, res.OK)

	var queued []models.Player
	decodeBody(t, f.do(t, http.MethodGet, "/api/queue", ""), &queued)
	require.Len(t, queued, 2)
	assert.Equal(t, "p3", queued[0].PlayerID)

	w := f.do(t, http.MethodPost, "/api/queue/clear", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, f.store.Snapshot().Queue)
}

func TestMarkDrafted(t *testing.T) {
	f := newFixture(t, nil)

	var res struct {
		OK      bool `json:"ok"`
		Drafted bool `json:"drafted"`
	}
	decodeBody(t, f.do(t, http.MethodPost, "/api/drafted", `{"id":"p1"}`), &res)
	assert.True(t, res.OK)
	assert.True(t, res.Drafted)

	decodeBody(t, f.do(t, http.MethodPost, "/api/drafted", `{"id":"p1","value":true}`), &res)
	assert.True(t, res.Drafted)

	decodeBody(t, f.do(t, http.MethodPost, "/api/drafted", `{"id":"p1"}`), &res)
	assert.False(t, res.Drafted)

	f.store.MarkDrafted("p2", nil)
	var roster struct {
		Drafted []models.Player `json:"drafted"`
	}
	decodeBody(t, f.do(t, http.MethodGet, "/api/roster", ""), &roster)
	require.Len(t, roster.Drafted, 1)
	assert.Equal(t, "p2", roster.Drafted[0].PlayerID)
}

func TestSlotAndPick(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(t, http.MethodPost, "/api/slot", `{"slot":13}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "slot")

	var pt store.PickTracker
	decodeBody(t, f.do(t, http.MethodPost, "/api/slot", `{"slot":5}`), &pt)
	require.NotNil(t, pt.MySlot)
	assert.Equal(t, 5, *pt.MySlot)
	assert.Equal(t, 4, pt.PicksUntilTurn)

	w = f.do(t, http.MethodPost, "/api/pick", `{"pick":0}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	decodeBody(t, f.do(t, http.MethodPost, "/api/pick", `{"pick":4}`), &pt)
	assert.Equal(t, 4, pt.CurrentPick)

	decodeBody(t, f.do(t, http.MethodPost, "/api/pick/next", ""), &pt)
	assert.Equal(t, 5, pt.CurrentPick)
	assert.True(t, pt.IsYourTurn)

	decodeBody(t, f.do(t, http.MethodGet, "/api/picks", ""), &pt)
	assert.Equal(t, 5, pt.CurrentPick)

	decodeBody(t, f.do(t, http.MethodPost, "/api/slot", `{"slot":null}`), &pt)
	assert.Nil(t, pt.MySlot)

	total := snake.DefaultConfig().TotalPicks()
	require.NoError(t, f.store.SetCurrentPick(total+1))
	w = f.do(t, http.MethodPost, "/api/pick/next", "")
	assert.Equal(t, http.StatusBadRequest, w.Code, "no pick after the last one")
}

func TestDenseResetAndMeta(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(t, http.MethodPost, "/api/dense", `{"dense":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, f.store.Snapshot().Dense)

	f.store.ToggleQueue("p1")
	f.store.MarkDrafted("p2", nil)
	w = f.do(t, http.MethodPost, "/api/reset", "")
	require.Equal(t, http.StatusOK, w.Code)
	snap := f.store.Snapshot()
	assert.Empty(t, snap.Queue)
	assert.Empty(t, snap.Drafted)
	assert.Len(t, snap.Players, 3)

	f.store.SetMeta(models.Meta{SchemaVersion: "1", LookbackYears: []int{2024}, Blend: []float64{0.6, 0.4}})
	var meta struct {
		SchemaVersion   string `json:"schema_version"`
		Summary         string `json:"summary"`
		BlendConsistent bool   `json:"blendConsistent"`
	}
	decodeBody(t, f.do(t, http.MethodGet, "/api/meta", ""), &meta)
	assert.Equal(t, "1", meta.SchemaVersion)
	assert.Equal(t, "2025 projections • 2024 blend (60%/40%)", meta.Summary)
	assert.False(t, meta.BlendConsistent)
}

func TestImportOverridesRawBody(t *testing.T) {
	f := newFixture(t, nil)
	csv := "player_id,name,pos,tm,points\np1,Bijan Robinson,RB,ATL,333.3\nzz,Nobody,WR,ARI,100\n"

	req := httptest.NewRequest(http.MethodPost, "/api/overrides", strings.NewReader(csv))
	req.Header.Set("Content-Type", "text/csv")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res struct {
		Applied  int      `json:"applied"`
		Warnings []string `json:"warnings"`
	}
	decodeBody(t, w, &res)
	assert.Equal(t, 1, res.Applied)
	assert.Len(t, res.Warnings, 1)
	assert.Equal(t, 333.3, f.store.Snapshot().Players[0].Points)
}

func TestImportOverridesMultipart(t *testing.T) {
	f := newFixture(t, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "overrides.csv")
	require.NoError(t, err)
	part.Write([]byte("player_id,name,pos,tm,points\np3,Josh Allen,QB,BUF,401\n"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/overrides", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 401.0, f.store.Snapshot().Players[2].Points)
}

func TestImportOverridesMissingColumns(t *testing.T) {
	f := newFixture(t, nil)
	before := f.store.Version()

	w := f.do(t, http.MethodPost, "/api/overrides", "player_id,points\np1,10\n")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "missing required columns")
	assert.Equal(t, before, f.store.Version())
}

func TestReload(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(t, http.MethodPost, "/api/reload", "")
	assert.Equal(t, http.StatusNotImplemented, w.Code)

	calls := 0
	f = newFixture(t, func(ctx context.Context) error {
		calls++
		if calls > 1 {
			return errors.New("upstream down")
		}
		return nil
	})
	w = f.do(t, http.MethodPost, "/api/reload", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = f.do(t, http.MethodPost, "/api/reload", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "upstream down")
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, f.do(t, http.MethodGet, "/api/reset", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, f.do(t, http.MethodPost, "/api/state", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/nope", "").Code)
}

func TestHealthEndpoints(t *testing.T) {
	f := newFixture(t, nil)

	for _, path := range []string{"/api/health", "/healthz", "/readyz"} {
		assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, path, "").Code, path)
	}

	f.health.AddCheck("database", func(ctx context.Context) error { return errors.New("connection refused") })
	w := f.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body struct {
		Status string                       `json:"status"`
		Checks map[string]map[string]string `json:"checks"`
	}
	decodeBody(t, w, &body)
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "unhealthy", body.Checks["database"]["status"])

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", "").Code, "liveness ignores dependencies")
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, http.MethodGet, "/readyz", "").Code)
}

func TestReadinessWaitsForData(t *testing.T) {
	loaded := false
	h := NewHealth(func() bool { return loaded })
	r := mux.NewRouter()
	h.Register(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "data_not_loaded")

	loaded = true
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestEventsSSE(t *testing.T) {
	f := newFixture(t, nil)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 16)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	next := func(prefix string) string {
		t.Helper()
		deadline := time.After(2 * time.Second)
		for {
			select {
			case l, ok := <-lines:
				if !ok {
					t.Fatal("stream closed")
				}
				if strings.HasPrefix(l, prefix) {
					return l
				}
			case <-deadline:
				t.Fatalf("no line with prefix %q", prefix)
			}
		}
	}

	assert.Contains(t, next("data: "), `"type":"connected"`)

	f.store.ToggleQueue("p2")
	assert.Equal(t, "id: 2", next("id: "))
	var ev pubsub.Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(next("data: "), "data: ")), &ev))
	assert.Equal(t, "queue:toggle", ev.Type)
	assert.Equal(t, uint64(2), ev.Version)

	assert.Equal(t, ": keepalive", next(": keepalive"))
}

func TestEventsWebSocket(t *testing.T) {
	f := newFixture(t, nil)
	srv := httptest.NewServer(f.router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var hello map[string]any
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "connected", hello["type"])

	f.store.MarkDrafted("p1", nil)
	var ev pubsub.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "drafted:mark", ev.Type)
	assert.Equal(t, "p1", ev.Payload["playerId"])

	conn.Close()
	require.Eventually(t, func() bool { return f.bus.SubscriberCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
