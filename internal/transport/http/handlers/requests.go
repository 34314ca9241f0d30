package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/baechuer/seatwatch/internal/application/tracking"
	"github.com/baechuer/seatwatch/internal/domain"
	"github.com/baechuer/seatwatch/internal/transport/http/dto"
	"github.com/baechuer/seatwatch/internal/transport/http/response"
)

// Registry is the slice of tracking.Registry the admin API drives.
type Registry interface {
	Add(ctx context.Context, in tracking.AddInput) (tracking.AddResult, error)
	RemoveID(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (domain.TrackingRequest, error)
	List(ctx context.Context, owner string) []domain.TrackingRequest
	ListAll(ctx context.Context) []domain.TrackingRequest
	Clear(ctx context.Context, owner string) (int, error)
	Stats(ctx context.Context) tracking.Stats
}

type RequestsHandler struct {
	reg Registry
}

func NewRequestsHandler(reg Registry) *RequestsHandler {
	return &RequestsHandler{reg: reg}
}

// Create: POST /requests
func (h *RequestsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in tracking.AddInput
	if err := decodeJSON(w, r, &in); err != nil {
		response.Err(w, r, domain.ErrValidationMeta("invalid json body", map[string]string{
			"body": "malformed JSON or unknown fields",
		}))
		return
	}

	res, err := h.reg.Add(r.Context(), in)
	if err != nil {
		response.Err(w, r, err)
		return
	}
	response.Data(w, http.StatusCreated, dto.CreateResp{
		Request: dto.ToRequestResp(res.Request),
		Warning: res.Warning,
	})
}

// List: GET /requests[?user_id=...]
func (h *RequestsHandler) List(w http.ResponseWriter, r *http.Request) {
	if owner := strings.TrimSpace(r.URL.Query().Get("user_id")); owner != "" {
		response.Data(w, http.StatusOK, dto.ToListResp(h.reg.List(r.Context(), owner)))
		return
	}
	response.Data(w, http.StatusOK, dto.ToListResp(h.reg.ListAll(r.Context())))
}

// Get: GET /requests/{request_id}
func (h *RequestsHandler) Get(w http.ResponseWriter, r *http.Request) {
	req, err := h.reg.Get(r.Context(), chi.URLParam(r, "request_id"))
	if err != nil {
		response.Err(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, dto.ToRequestResp(req))
}

// Delete: DELETE /requests/{request_id}
func (h *RequestsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.reg.RemoveID(r.Context(), chi.URLParam(r, "request_id")); err != nil {
		response.Err(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListForUser: GET /users/{user_id}/requests
func (h *RequestsHandler) ListForUser(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "user_id")
	response.Data(w, http.StatusOK, dto.ToListResp(h.reg.List(r.Context(), owner)))
}

// ClearForUser: DELETE /users/{user_id}/requests
func (h *RequestsHandler) ClearForUser(w http.ResponseWriter, r *http.Request) {
	n, err := h.reg.Clear(r.Context(), chi.URLParam(r, "user_id"))
	if err != nil {
		response.Err(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, dto.ClearResp{Removed: n})
}
