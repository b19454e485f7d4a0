package api

import (
	"context"
	"net/http"

	service "github.com/okian/facegate/internal/app"
)

// GalleryDependencies reloads or rebuilds the enrolled gallery.
type GalleryDependencies interface {
	ReloadGallery(ctx context.Context) (service.GalleryInfo, error)
	Enroll(ctx context.Context) (service.EnrollResult, error)
}

// GalleryHandler handles gallery requests.
type GalleryHandler struct {
	deps GalleryDependencies
}

// NewGalleryHandler creates a new gallery handler.
func NewGalleryHandler(deps GalleryDependencies) *GalleryHandler {
	return &GalleryHandler{deps: deps}
}

// HandleReload handles POST /api/gallery/reload requests.
func (h *GalleryHandler) HandleReload(w http.ResponseWriter, r *http.Request) {
	const op = "api.reload_gallery"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	info, err := h.deps.ReloadGallery(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// HandleEnroll handles POST /api/gallery/enroll requests. It enrolls the
// configured dataset directory and serves the new gallery right away.
func (h *GalleryHandler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	const op = "api.enroll_gallery"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	res, err := h.deps.Enroll(r.Context())
	if err != nil {
		writeServiceError(r.Context(), w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
