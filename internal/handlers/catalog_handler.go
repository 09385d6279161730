package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"danceBack/internal/services"
)

type CatalogHandler struct {
	Catalog      *services.CatalogService
	Certificates *services.CertificateService
	Logger       *zap.Logger
}

func (h *CatalogHandler) ListCourses(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := parsePaging(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid paging")
		return
	}
	courses, err := h.Catalog.ListCourses(r.Context(), limit, offset)
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"courses": courses})
}

func (h *CatalogHandler) GetCourse(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid course id")
		return
	}
	course, err := h.Catalog.Course(r.Context(), id)
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"course": course})
}

func (h *CatalogHandler) ListResources(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := parsePaging(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid paging")
		return
	}
	category := strings.TrimSpace(r.URL.Query().Get("category"))
	resources, err := h.Catalog.ListResources(r.Context(), category, limit, offset)
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"resources": resources})
}

func (h *CatalogHandler) GetResource(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid resource id")
		return
	}
	res, err := h.Catalog.Resource(r.Context(), id)
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"resource": res})
}

func (h *CatalogHandler) MyCertificates(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	certs, err := h.Certificates.List(r.Context(), user.ID)
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"certificates": certs})
}

func (h *CatalogHandler) VerifyCertificate(w http.ResponseWriter, r *http.Request) {
	cert, err := h.Certificates.Verify(r.Context(), getParam(r, "code"))
	if err != nil {
		respondError(w, h.Logger, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"valid": true, "certificate": cert})
}
