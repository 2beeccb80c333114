package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"gameshop/internal/auth"
)

type contextKey string

const (
	userIDKey     contextKey = "user_id"
	telegramIDKey contextKey = "telegram_id"
	adminKey      contextKey = "is_admin"
)

func UserIDFromContext(ctx context.Context) (string, bool) {
	val, ok := ctx.Value(userIDKey).(string)
	return val, ok && val != ""
}

func TelegramIDFromContext(ctx context.Context) (int64, bool) {
	val, ok := ctx.Value(telegramIDKey).(int64)
	return val, ok && val != 0
}

func IsAdminFromContext(ctx context.Context) bool {
	val, _ := ctx.Value(adminKey).(bool)
	return val
}

// WithIdentity stores the caller identity the way AuthMiddleware does.
func WithIdentity(ctx context.Context, userID string, telegramID int64, isAdmin bool) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	ctx = context.WithValue(ctx, telegramIDKey, telegramID)
	return context.WithValue(ctx, adminKey, isAdmin)
}

func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "missing Authorization")
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				writeError(w, http.StatusUnauthorized, "invalid Authorization")
				return
			}
			claims, err := auth.ParseAccessToken(secret, parts[1])
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			ctx := WithIdentity(r.Context(), claims.UserID, claims.TelegramID, claims.IsAdmin)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminOnly lets through tokens carrying the admin claim. Tokens issued to
// Telegram users additionally need their id on the allowlist, so removing an
// id from ADMIN_TELEGRAM_IDS revokes access before the token expires.
func AdminOnly(adminTGIDs map[int64]struct{}) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !IsAdminFromContext(r.Context()) {
				writeError(w, http.StatusForbidden, "admin access required")
				return
			}
			if telegramID, ok := TelegramIDFromContext(r.Context()); ok {
				if _, allowed := adminTGIDs[telegramID]; !allowed {
					writeError(w, http.StatusForbidden, "admin access required")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
