package handlers

import (
	"errors"
	"net/http"
	"strings"

	"gameshop/internal/auth"
	"gameshop/internal/models"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type initDataRequest struct {
	InitData string `json:"initData" validate:"required"`
}

// VerifyInitData checks Mini-App launch data without creating a session.
func (h *Handler) VerifyInitData(w http.ResponseWriter, r *http.Request) {
	var req initDataRequest
	if !h.decode(w, r, &req) {
		return
	}
	data, err := auth.VerifyInitData(req.InitData, h.cfg.TelegramToken, h.cfg.Shop.InitDataMaxAge, h.now())
	if err != nil {
		h.loggerForRequest(r).Info("verify_init_data", zap.String("status", "invalid"), zap.Error(err))
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"valid": false, "error": "invalid initData"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid":    true,
		"user":     data.User,
		"authDate": data.AuthDate.Unix(),
	})
}

// AuthTelegram exchanges verified launch data for an access token, creating
// or refreshing the user record on the way.
func (h *Handler) AuthTelegram(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	var req initDataRequest
	if !h.decode(w, r, &req) {
		return
	}
	data, err := auth.VerifyInitData(req.InitData, h.cfg.TelegramToken, h.cfg.Shop.InitDataMaxAge, h.now())
	if err == nil && data.User == nil {
		err = auth.ErrMissingUser
	}
	if err != nil {
		logger.Warn("auth_telegram", zap.String("status", "invalid_init_data"), zap.Error(err))
		writeError(w, http.StatusUnauthorized, "invalid initData")
		return
	}
	tgUser := data.User

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()

	banned, err := h.repo.IsBanned(ctx, tgUser.ID)
	if err != nil {
		h.writeServiceError(w, logger, "auth_telegram", err)
		return
	}
	if banned {
		logger.Info("auth_telegram", zap.String("status", "banned"), zap.Int64("telegram_id", tgUser.ID))
		writeError(w, http.StatusForbidden, "banned")
		return
	}

	stored, err := h.repo.UpsertUser(ctx, models.UserProfile{
		TelegramID: tgUser.ID,
		Username:   tgUser.Username,
		FirstName:  tgUser.FirstName,
		LastName:   tgUser.LastName,
		PhotoURL:   tgUser.PhotoURL,
		IsPremium:  tgUser.IsPremium,
	})
	if err != nil {
		h.writeServiceError(w, logger, "auth_telegram", err)
		return
	}

	isAdmin := h.cfg.IsAdmin(tgUser.ID)
	token, err := auth.SignAccessToken(h.cfg.JWTSecret, stored.ID, tgUser.ID, isAdmin)
	if err != nil {
		logger.Error("auth_telegram", zap.String("status", "token_error"), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "token error")
		return
	}
	logger.Info("auth_telegram", zap.String("status", "success"), zap.Int64("telegram_id", tgUser.ID), zap.Bool("admin", isAdmin))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"accessToken": token,
		"user":        stored,
		"isAdmin":     isAdmin,
	})
}

type adminAuthRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	TelegramID *int64 `json:"telegramId"`
}

var errBadCredentials = errors.New("invalid credentials")

// AuthAdmin signs an admin token for the configured login. A bcrypt hash
// takes precedence over a plain password.
func (h *Handler) AuthAdmin(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	var req adminAuthRequest
	if !h.decode(w, r, &req) {
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password required")
		return
	}
	if h.cfg.AdminLogin == "" || (h.cfg.AdminPassword == "" && h.cfg.AdminPassHash == "") {
		logger.Warn("auth_admin", zap.String("status", "disabled"))
		writeError(w, http.StatusUnauthorized, "admin login disabled")
		return
	}
	if err := h.checkAdminPassword(username, req.Password); err != nil {
		logger.Warn("auth_admin", zap.String("status", "invalid_credentials"))
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	var telegramID int64
	if req.TelegramID != nil && *req.TelegramID > 0 {
		telegramID = *req.TelegramID
		if !h.cfg.IsAdmin(telegramID) {
			logger.Warn("auth_admin", zap.String("status", "forbidden"), zap.Int64("telegram_id", telegramID))
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
	}

	token, err := auth.SignAccessToken(h.cfg.JWTSecret, "admin:"+username, telegramID, true)
	if err != nil {
		logger.Error("auth_admin", zap.String("status", "token_error"), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "token error")
		return
	}
	logger.Info("auth_admin", zap.String("status", "success"))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"accessToken": token,
		"isAdmin":     true,
	})
}

func (h *Handler) checkAdminPassword(username, password string) error {
	if username != h.cfg.AdminLogin {
		return errBadCredentials
	}
	if h.cfg.AdminPassHash != "" {
		if bcrypt.CompareHashAndPassword([]byte(h.cfg.AdminPassHash), []byte(password)) != nil {
			return errBadCredentials
		}
		return nil
	}
	if password != h.cfg.AdminPassword {
		return errBadCredentials
	}
	return nil
}
