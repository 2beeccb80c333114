package handlers

import (
	"net/http"
	"strings"

	"gameshop/internal/http/middleware"
	"gameshop/internal/integrations"

	"go.uber.org/zap"
)

const maxUploadBytes = 5 << 20

var allowedImageTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
	"image/webp": {},
	"image/gif":  {},
}

type presignRequest struct {
	Prefix      string `json:"prefix" validate:"required"`
	FileName    string `json:"fileName" validate:"required"`
	ContentType string `json:"contentType" validate:"required"`
	SizeBytes   int64  `json:"sizeBytes" validate:"gt=0"`
}

// PresignMedia hands out a direct upload URL. Only admins may write outside
// the proofs prefix.
func (h *Handler) PresignMedia(w http.ResponseWriter, r *http.Request) {
	var req presignRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.SizeBytes > maxUploadBytes {
		writeError(w, http.StatusBadRequest, "file too large")
		return
	}
	if !h.checkUpload(w, r, req.Prefix, req.ContentType) {
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	uploadURL, fileURL, err := h.media.PresignPutObject(ctx, req.Prefix, req.FileName, req.ContentType)
	if err != nil {
		h.loggerForRequest(r).Error("presign_media", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "presign failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uploadUrl": uploadURL,
		"fileUrl":   fileURL,
	})
}

// UploadMedia stores a multipart "file" under the "prefix" form field.
func (h *Handler) UploadMedia(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+1<<16)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid upload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file required")
		return
	}
	defer file.Close()

	prefix := r.FormValue("prefix")
	if prefix == "" {
		prefix = integrations.PrefixProofs
	}
	contentType := header.Header.Get("Content-Type")
	if !h.checkUpload(w, r, prefix, contentType) {
		return
	}
	if header.Size > maxUploadBytes {
		writeError(w, http.StatusBadRequest, "file too large")
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	url, err := h.media.UploadObject(ctx, prefix, header.Filename, contentType, file, header.Size)
	if err != nil {
		h.loggerForRequest(r).Error("upload_media", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"url": url})
}

func (h *Handler) checkUpload(w http.ResponseWriter, r *http.Request, prefix, contentType string) bool {
	if h.media == nil {
		writeError(w, http.StatusServiceUnavailable, "media not configured")
		return false
	}
	if !integrations.ValidPrefix(prefix) {
		writeError(w, http.StatusBadRequest, "invalid prefix")
		return false
	}
	if prefix != integrations.PrefixProofs && !middleware.IsAdminFromContext(r.Context()) {
		writeError(w, http.StatusForbidden, "forbidden")
		return false
	}
	if _, ok := allowedImageTypes[strings.ToLower(contentType)]; !ok {
		writeError(w, http.StatusBadRequest, "invalid content type")
		return false
	}
	return true
}
