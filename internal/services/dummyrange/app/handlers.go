package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/louisbranch/dummyrange/internal/platform/errors"
	"github.com/louisbranch/dummyrange/internal/services/dummyrange/combat"
	"github.com/louisbranch/dummyrange/internal/services/dummyrange/entity"
)

const maxRequestBodyBytes = 1 << 20

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type usernameRequest struct {
	Username string        `json:"username"`
	Position *entity.Point `json:"position,omitempty"`
}

type selectToolRequest struct {
	ToolID string `json:"tool_id"`
}

type attackResponse struct {
	Applied bool                 `json:"applied"`
	Result  *combat.AttackResult `json:"result,omitempty"`
}

type toolsResponse struct {
	Tools    []combat.Tool `json:"tools"`
	Selected string        `json:"selected"`
}

// NewHandler builds the HTTP API and websocket routes for svc.
func NewHandler(svc *Service) http.Handler {
	h := &handlers{svc: svc}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("POST /api/profiles", h.fetchProfile)
	mux.HandleFunc("DELETE /api/cache", h.clearCache)

	mux.HandleFunc("GET /api/entities", h.listEntities)
	mux.HandleFunc("POST /api/entities", h.spawnEntity)
	mux.HandleFunc("DELETE /api/entities", h.clearEntities)
	mux.HandleFunc("POST /api/entities/respawn", h.respawnAll)
	mux.HandleFunc("GET /api/entities/{id}", h.getEntity)
	mux.HandleFunc("DELETE /api/entities/{id}", h.removeEntity)
	mux.HandleFunc("POST /api/entities/{id}/respawn", h.respawnEntity)
	mux.HandleFunc("PUT /api/entities/{id}/position", h.setPosition)
	mux.HandleFunc("POST /api/entities/{id}/attack", h.attack)

	mux.HandleFunc("GET /api/tools", h.listTools)
	mux.HandleFunc("PUT /api/tools/selected", h.selectTool)
	mux.HandleFunc("GET /api/stats", h.stats)
	mux.HandleFunc("GET /api/state", h.exportState)
	mux.HandleFunc("PUT /api/state", h.importState)

	mux.Handle("/ws", svc.Feed.Handler(func() any { return svc.Stats() }))
	return mux
}

type handlers struct {
	svc *Service
}

func (h *handlers) fetchProfile(w http.ResponseWriter, r *http.Request) {
	var req usernameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.svc.FetchProfile(r.Context(), req.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handlers) clearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClearCache(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) listEntities(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Entities.List())
}

func (h *handlers) spawnEntity(w http.ResponseWriter, r *http.Request) {
	var req usernameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	e, err := h.svc.Spawn(r.Context(), req.Username, req.Position)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (h *handlers) clearEntities(w http.ResponseWriter, _ *http.Request) {
	h.svc.Entities.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) respawnAll(w http.ResponseWriter, _ *http.Request) {
	n := h.svc.Entities.RespawnAll()
	writeJSON(w, http.StatusOK, map[string]int{"respawned": n})
}

func (h *handlers) getEntity(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	e, found := h.svc.Entities.Get(id)
	if !found {
		writeError(w, entityNotFound(id))
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *handlers) removeEntity(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if !h.svc.Entities.Remove(id) {
		writeError(w, entityNotFound(id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) respawnEntity(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	e, found := h.svc.Entities.Respawn(id)
	if !found {
		writeError(w, entityNotFound(id))
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *handlers) setPosition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var at entity.Point
	if !decodeJSON(w, r, &at) {
		return
	}
	e, found := h.svc.Entities.SetPosition(id, at)
	if !found {
		writeError(w, entityNotFound(id))
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *handlers) attack(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req combat.Attack
	if !decodeJSON(w, r, &req) {
		return
	}
	result, applied, err := h.svc.Attack(id, req)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := attackResponse{Applied: applied}
	if applied {
		resp.Result = &result
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) listTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toolsResponse{
		Tools:    h.svc.Combat.Tools(),
		Selected: h.svc.Combat.SelectedTool().ID,
	})
}

func (h *handlers) selectTool(w http.ResponseWriter, r *http.Request) {
	var req selectToolRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tool, err := h.svc.SelectTool(strings.TrimSpace(req.ToolID))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tool)
}

func (h *handlers) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Stats())
}

func (h *handlers) exportState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Snapshot())
}

func (h *handlers) importState(w http.ResponseWriter, r *http.Request) {
	var snap RangeSnapshot
	if !decodeJSON(w, r, &snap) {
		return
	}
	if err := h.svc.ImportSnapshot(snap); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Stats())
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, apperrors.New(apperrors.CodeInvalidArgument, fmt.Sprintf("invalid entity id %q", raw)))
		return 0, false
	}
	return id, true
}

// decodeJSON reads a JSON body into target. An empty body leaves target
// untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, target any) bool {
	body := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, apperrors.Wrap(apperrors.CodeInvalidArgument, "invalid request body", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("dummyrange: write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	body := errorBody{Code: string(code), Message: err.Error()}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		body.Metadata = appErr.Metadata
	}
	if code == apperrors.CodeUnknown {
		log.Printf("dummyrange: request failed: %v", err)
		body.Message = "internal error"
	}
	writeJSON(w, apperrors.HTTPStatus(err), errorEnvelope{Error: body})
}
