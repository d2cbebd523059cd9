package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/Billy-Davies-2/draftkit/internal/filter"
	"github.com/Billy-Davies-2/draftkit/internal/logger"
	"github.com/Billy-Davies-2/draftkit/internal/overrides"
	"github.com/Billy-Davies-2/draftkit/internal/pubsub"
	"github.com/Billy-Davies-2/draftkit/internal/store"
)

const maxUploadBytes = 10 << 20

// EventBus is what the streaming endpoints subscribe to.
type EventBus interface {
	Subscribe() chan pubsub.Event
	Unsubscribe(ch chan pubsub.Event)
}

// Reloader re-fetches the projection dataset into the store.
type Reloader func(ctx context.Context) error

// APIHandlers contains all API handler methods
type APIHandlers struct {
	store     *store.Store
	bus       EventBus
	reload    Reloader
	keepalive time.Duration
}

// NewAPIHandlers creates a new API handlers instance. reload may be nil.
func NewAPIHandlers(s *store.Store, bus EventBus, reload Reloader) *APIHandlers {
	return &APIHandlers{
		store:     s,
		bus:       bus,
		reload:    reload,
		keepalive: 30 * time.Second,
	}
}

// NewRouter wires the health and API endpoints.
func NewRouter(api *APIHandlers, health *Health) *mux.Router {
	r := mux.NewRouter()
	health.Register(r)
	api.Register(r)
	return r
}

// Register mounts the API routes on r.
func (h *APIHandlers) Register(r *mux.Router) {
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/state", h.GetState).Methods(http.MethodGet)
	api.HandleFunc("/players", h.ListPlayers).Methods(http.MethodGet)
	api.HandleFunc("/queue", h.GetQueue).Methods(http.MethodGet)
	api.HandleFunc("/roster", h.GetRoster).Methods(http.MethodGet)
	api.HandleFunc("/picks", h.GetPicks).Methods(http.MethodGet)
	api.HandleFunc("/meta", h.GetMeta).Methods(http.MethodGet)

	api.HandleFunc("/filters", h.SetFilters).Methods(http.MethodPost)
	api.HandleFunc("/queue/toggle", h.ToggleQueue).Methods(http.MethodPost)
	api.HandleFunc("/queue/move", h.MoveQueue).Methods(http.MethodPost)
	api.HandleFunc("/queue/clear", h.ClearQueue).Methods(http.MethodPost)
	api.HandleFunc("/drafted", h.MarkDrafted).Methods(http.MethodPost)
	api.HandleFunc("/slot", h.SetSlot).Methods(http.MethodPost)
	api.HandleFunc("/pick", h.SetPick).Methods(http.MethodPost)
	api.HandleFunc("/pick/next", h.NextPick).Methods(http.MethodPost)
	api.HandleFunc("/dense", h.SetDense).Methods(http.MethodPost)
	api.HandleFunc("/reset", h.Reset).Methods(http.MethodPost)
	api.HandleFunc("/overrides", h.ImportOverrides).Methods(http.MethodPost)
	api.HandleFunc("/reload", h.Reload).Methods(http.MethodPost)

	api.HandleFunc("/events", h.EventsSSE).Methods(http.MethodGet)
	api.HandleFunc("/ws", h.EventsWS).Methods(http.MethodGet)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decode reads a JSON body. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxUploadBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func actionError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrInvalidSlot) || errors.Is(err, store.ErrInvalidPick) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	logger.Error("Action failed", "error", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}

// GetState returns the whole session with its derived views
func (h *APIHandlers) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.State())
}

// ListPlayers returns table rows. Query filters are merged over the current
// ones without changing them.
func (h *APIHandlers) ListPlayers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	patch := store.PatchFromQuery(func(k string) (string, bool) {
		if !q.Has(k) {
			return "", false
		}
		return q.Get(k), true
	})
	f := patch.Over(h.store.Filters())
	desc, _ := strconv.ParseBool(q.Get("desc"))
	writeJSON(w, http.StatusOK, h.store.Rows(f, filter.SortKey(q.Get("sort")), desc))
}

func (h *APIHandlers) GetQueue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.QueuedPlayers())
}

func (h *APIHandlers) GetRoster(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Roster())
}

func (h *APIHandlers) GetPicks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.PickTracker())
}

func (h *APIHandlers) GetMeta(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Meta().View())
}

// SetFilters merges a partial filter update
func (h *APIHandlers) SetFilters(w http.ResponseWriter, r *http.Request) {
	var patch store.FiltersPatch
	if err := decode(r, &patch); err != nil {
		logger.Warn("Failed to decode filters request", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.store.SetFilters(patch))
}

type idRequest struct {
	ID string `json:"id"`
}

func (h *APIHandlers) ToggleQueue(w http.ResponseWriter, r *http.Request) {
	var req idRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ok := h.store.ToggleQueue(req.ID)
	writeJSON(w, http.StatusOK, map[string]any{"ok": ok, "queue": h.store.Snapshot().Queue})
}

func (h *APIHandlers) MoveQueue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From int `json:"from"`
		To   int `json:"to"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ok := h.store.MoveQueue(req.From, req.To)
	writeJSON(w, http.StatusOK, map[string]any{"ok": ok, "queue": h.store.Snapshot().Queue})
}

func (h *APIHandlers) ClearQueue(w http.ResponseWriter, r *http.Request) {
	h.store.ClearQueue()
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// MarkDrafted toggles a player's drafted flag, or sets it when value is given
func (h *APIHandlers) MarkDrafted(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID    string `json:"id"`
		Value *bool  `json:"value"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	logger.Info("Marking player drafted", "player_id", req.ID, "value", req.Value)
	ok := h.store.MarkDrafted(req.ID, req.Value)
	writeJSON(w, http.StatusOK, map[string]any{"ok": ok, "drafted": h.store.Snapshot().Drafted[req.ID]})
}

// SetSlot sets or clears (null) the user's draft slot
func (h *APIHandlers) SetSlot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Slot *int `json:"slot"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.store.SetMySlot(req.Slot); err != nil {
		actionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.store.PickTracker())
}

func (h *APIHandlers) SetPick(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pick int `json:"pick"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.store.SetCurrentPick(req.Pick); err != nil {
		actionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.store.PickTracker())
}

func (h *APIHandlers) NextPick(w http.ResponseWriter, r *http.Request) {
	if _, err := h.store.NextPick(); err != nil {
		actionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.store.PickTracker())
}

func (h *APIHandlers) SetDense(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Dense bool `json:"dense"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.store.SetDense(req.Dense)
	writeJSON(w, http.StatusOK, map[string]bool{"dense": req.Dense})
}

// Reset clears the draft session, keeping players and metadata
func (h *APIHandlers) Reset(w http.ResponseWriter, r *http.Request) {
	logger.Info("Resetting draft")
	h.store.Reset()
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// ImportOverrides accepts a CSV either as the raw body or as the "file"
// field of a multipart form.
func (h *APIHandlers) ImportOverrides(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	var src io.Reader = r.Body
	if mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mt == "multipart/form-data" {
		file, _, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		defer file.Close()
		src = file
	}

	res, err := h.store.ImportOverrides(src)
	if err != nil {
		status := http.StatusBadRequest
		if !errors.Is(err, overrides.ErrMissingColumns) {
			logger.Warn("Failed to import overrides", "error", err)
		}
		writeError(w, status, err.Error())
		return
	}
	logger.Info("Overrides imported", "applied", res.Applied, "skipped", res.Skipped, "warnings", len(res.Warnings))
	writeJSON(w, http.StatusOK, res)
}

// Reload re-fetches players and meta. The load is abandoned if the client
// goes away.
func (h *APIHandlers) Reload(w http.ResponseWriter, r *http.Request) {
	if h.reload == nil {
		writeError(w, http.StatusNotImplemented, "reload not configured")
		return
	}
	if err := h.reload(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "version": h.store.Version()})
}
