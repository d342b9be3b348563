package circles

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/loofy147/circles/internal/circle"
)

// Handler is the HTTP surface for circles. It is a thin transport
// adapter: all policy lives in Service. One handler per route, with
// struct{...} inline request bodies, routed through chi instead of a
// bare ServeMux so :id path params are parsed once, centrally.
type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Routes returns a chi.Router wired to spec §6.1.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/version", h.HandleVersion)
	r.Post("/circle", h.HandleCreateCircle)
	r.Get("/circle", h.HandleListCircles)
	r.Get("/circle/{id}", h.HandleGetCircle)
	r.Put("/circle/{id}", h.HandleUpdateCircle)
	return r
}

func (h *Handler) HandleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("circles v1"))
}

type circleResponse struct {
	CircleID   uuid.UUID `json:"circle_id"`
	CircleName string    `json:"circle_name"`
	Capacity   int16     `json:"capacity"`
}

func toResponse(c circle.Circle) circleResponse {
	return circleResponse{CircleID: c.ID, CircleName: c.Name, Capacity: c.Capacity}
}

func (h *Handler) HandleCreateCircle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CircleName string `json:"circle_name"`
		Capacity   int16  `json:"capacity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	state, err := h.service.CreateCircle(r.Context(), req.CircleName, req.Capacity)
	if err != nil {
		writeError(w, err, http.StatusConflict) // Duplicate -> 409 on create
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		CircleID uuid.UUID `json:"circle_id"`
	}{CircleID: state.ID})
}

func (h *Handler) HandleListCircles(w http.ResponseWriter, r *http.Request) {
	circles, err := h.service.ListCircles(r.Context())
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}

	out := make([]circleResponse, len(circles))
	for i, c := range circles {
		out[i] = toResponse(c)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (h *Handler) HandleGetCircle(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid circle id", http.StatusBadRequest)
		return
	}

	state, err := h.service.GetCircle(r.Context(), id)
	if errors.Is(err, circle.ErrNotFound) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]circleResponse{})
		return
	}
	if err != nil {
		writeError(w, err, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode([]circleResponse{toResponse(state)})
}

func (h *Handler) HandleUpdateCircle(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid circle id", http.StatusBadRequest)
		return
	}

	var req struct {
		CircleName *string `json:"circle_name"`
		Capacity   *int16  `json:"capacity"`
		Version    int     `json:"version"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	state, err := h.service.UpdateCircle(r.Context(), id, req.CircleName, req.Capacity, req.Version)
	if err != nil {
		writeError(w, err, http.StatusBadRequest) // Duplicate -> 400 on update
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		CircleID uuid.UUID `json:"circle_id"`
	}{CircleID: state.ID})
}

// writeError maps the transport-independent error taxonomy (spec §7)
// onto HTTP status codes. duplicateStatus lets callers vary Duplicate's
// mapping: 409 on create, 400 on update, per spec §6.1.
func writeError(w http.ResponseWriter, err error, duplicateStatus int) {
	switch {
	case errors.Is(err, circle.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, circle.ErrDuplicate):
		http.Error(w, err.Error(), duplicateStatus)
	case errors.Is(err, circle.ErrVersionMismatch):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, circle.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
