// AngelaMos | 2026
// handler.go

package plan

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kyora-app/kyora-backend/internal/core"
)

type Handler struct {
	repo Repository
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/plans", h.List)
}

// List returns the active catalog so signup pages can render the plan
// picker without hardcoding descriptors.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	plans, err := h.repo.ListActive(r.Context())
	if err != nil {
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, map[string]any{"plans": plans})
}
