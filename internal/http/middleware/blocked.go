package middleware

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

// BanChecker reports whether a Telegram user is on the ban list.
type BanChecker interface {
	IsBanned(ctx context.Context, telegramID int64) (bool, error)
}

// BannedUserMiddleware refuses banned callers with 403. Admins on the
// allowlist are never refused.
func BannedUserMiddleware(checker BanChecker, adminTGIDs map[int64]struct{}, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			telegramID, ok := TelegramIDFromContext(r.Context())
			if checker == nil || !ok {
				next.ServeHTTP(w, r)
				return
			}
			if _, admin := adminTGIDs[telegramID]; admin {
				next.ServeHTTP(w, r)
				return
			}
			banned, err := checker.IsBanned(r.Context(), telegramID)
			if err != nil {
				logger.Error("ban_check_failed", zap.Int64("telegram_id", telegramID), zap.Error(err))
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			if banned {
				writeError(w, http.StatusForbidden, "banned")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
