package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"gameshop/internal/config"
	"gameshop/internal/dashboard"
	"gameshop/internal/docstore"
	authmw "gameshop/internal/http/middleware"
	"gameshop/internal/rate"
	"gameshop/internal/repository"
	"gameshop/internal/shop"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// MediaStore uploads files referenced by records and presigns direct uploads.
type MediaStore interface {
	PresignPutObject(ctx context.Context, prefix, fileName, contentType string) (string, string, error)
	UploadObject(ctx context.Context, prefix, fileName, contentType string, body io.Reader, size int64) (string, error)
}

type Handler struct {
	repo      *repository.Repository
	shop      *shop.Service
	media     MediaStore
	dashboard *dashboard.Refresher
	cfg       *config.Config
	logger    *zap.Logger
	validator *validator.Validate
	now       func() time.Time

	purchaseLimiter *rate.WindowLimiter
	topupLimiter    *rate.WindowLimiter
}

func New(repo *repository.Repository, svc *shop.Service, media MediaStore, dash *dashboard.Refresher, cfg *config.Config, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dash == nil {
		dash = dashboard.NewRefresher(repo, logger)
	}
	return &Handler{
		repo:            repo,
		shop:            svc,
		media:           media,
		dashboard:       dash,
		cfg:             cfg,
		logger:          logger,
		validator:       validator.New(),
		now:             time.Now,
		purchaseLimiter: rate.NewWindowLimiter(10, time.Minute),
		topupLimiter:    rate.NewWindowLimiter(5, time.Minute),
	}
}

func (h *Handler) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 15*time.Second)
}

func (h *Handler) loggerForRequest(r *http.Request) *zap.Logger {
	logger := h.logger
	if reqID := chimw.GetReqID(r.Context()); reqID != "" {
		logger = logger.With(zap.String("request_id", reqID))
	}
	if userID, ok := authmw.UserIDFromContext(r.Context()); ok {
		logger = logger.With(zap.String("user_id", userID))
	}
	if tgID, ok := authmw.TelegramIDFromContext(r.Context()); ok {
		logger = logger.With(zap.Int64("telegram_id", tgID))
	}
	return logger
}

// decode reads a JSON body into dst and runs struct validation on it.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return "invalid " + verrs[0].Field()
	}
	return "invalid request"
}

// writeServiceError maps domain errors onto HTTP statuses. Unknown errors
// are logged and answered with a generic 500.
func (h *Handler) writeServiceError(w http.ResponseWriter, logger *zap.Logger, action string, err error) {
	var insufficient *shop.InsufficientBalanceError
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &insufficient):
		logger.Warn(action, zap.String("status", "insufficient_balance"), zap.Int("attempts", insufficient.Attempts))
		writeJSON(w, http.StatusPaymentRequired, map[string]interface{}{
			"error":             "insufficient balance",
			"required":          insufficient.Required,
			"balance":           insufficient.Balance,
			"attempts":          insufficient.Attempts,
			"remainingAttempts": insufficient.Remaining,
			"banned":            insufficient.Banned,
		})
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, repository.ErrAlreadyProcessed):
		writeError(w, http.StatusConflict, "already processed")
	case errors.Is(err, repository.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid status transition")
	case errors.Is(err, docstore.ErrConflict):
		logger.Warn(action, zap.String("status", "write_conflict"), zap.Error(err))
		writeError(w, http.StatusConflict, "concurrent update, retry")
	case errors.Is(err, shop.ErrBroadcastUnavailable):
		writeError(w, http.StatusServiceUnavailable, "telegram not configured")
	case errors.Is(err, shop.ErrBanned):
		writeError(w, http.StatusForbidden, "banned")
	case errors.Is(err, shop.ErrInvalidInput), errors.Is(err, repository.ErrInvalidOperation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &verrs):
		writeError(w, http.StatusBadRequest, validationMessage(err))
	default:
		logger.Error(action, zap.String("status", "failed"), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func telegramIDParam(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// actor names the admin in processedBy / bannedBy fields.
func actor(r *http.Request) string {
	if tgID, ok := authmw.TelegramIDFromContext(r.Context()); ok {
		return strconv.FormatInt(tgID, 10)
	}
	return "admin"
}
