package handlers

import (
	"net/http"

	"gameshop/internal/models"
	"gameshop/internal/repository"

	"github.com/go-chi/chi/v5"
)

type createBannerRequest struct {
	Type        string `json:"type" validate:"required,oneof=type1 type2"`
	Image       string `json:"image" validate:"required"`
	CategoryID  string `json:"categoryId" validate:"required_if=Type type2"`
	Description string `json:"description"`
}

func (h *Handler) CreateBanner(w http.ResponseWriter, r *http.Request) {
	var req createBannerRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()

	var banner models.Banner
	var err error
	if req.Type == models.BannerHome {
		banner, err = h.repo.CreateHomeBanner(ctx, req.Image)
	} else {
		if !h.categoryExists(w, r, req.CategoryID) {
			return
		}
		banner, err = h.repo.CreateCategoryBanner(ctx, repository.NewBanner{
			Image:       req.Image,
			CategoryID:  req.CategoryID,
			Description: req.Description,
		})
	}
	if err != nil {
		h.writeServiceError(w, h.loggerForRequest(r), "admin_create_banner", err)
		return
	}
	writeJSON(w, http.StatusCreated, banner)
}

// DeleteBanner removes a banner from the list named by {type}.
func (h *Handler) DeleteBanner(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "type")
	if kind != models.BannerHome && kind != models.BannerCategory {
		writeError(w, http.StatusBadRequest, "invalid banner type")
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	if err := h.repo.DeleteBanner(ctx, chi.URLParam(r, "id"), kind); err != nil {
		h.writeServiceError(w, h.loggerForRequest(r), "admin_delete_banner", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch models.SettingsPatch
	if !h.decode(w, r, &patch) {
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	settings, err := h.repo.UpdateSettings(ctx, patch)
	if err != nil {
		h.writeServiceError(w, h.loggerForRequest(r), "admin_update_settings", err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

type broadcastRequest struct {
	Message string `json:"message" validate:"required"`
	Photo   string `json:"photo" validate:"omitempty,url"`
}

func (h *Handler) StartBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	b, err := h.shop.StartBroadcast(ctx, req.Message, req.Photo, actor(r))
	if err != nil {
		h.writeServiceError(w, h.loggerForRequest(r), "admin_start_broadcast", err)
		return
	}
	writeJSON(w, http.StatusAccepted, b)
}

func (h *Handler) GetBroadcast(w http.ResponseWriter, r *http.Request) {
	b, err := h.shop.Broadcast(chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, h.loggerForRequest(r), "admin_get_broadcast", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) ListBroadcasts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"broadcasts": h.shop.ListBroadcasts()})
}
