package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			}
			if reqID := chimw.GetReqID(r.Context()); reqID != "" {
				fields = append(fields, zap.String("request_id", reqID))
			}
			if userID, ok := UserIDFromContext(r.Context()); ok {
				fields = append(fields, zap.String("user_id", userID))
			}
			if tgID, ok := TelegramIDFromContext(r.Context()); ok {
				fields = append(fields, zap.Int64("telegram_id", tgID))
			}
			if ip := r.RemoteAddr; ip != "" {
				fields = append(fields, zap.String("ip", ip))
			}

			switch {
			case ww.Status() >= 500:
				logger.Error("http_request", fields...)
			case ww.Status() >= 400:
				logger.Warn("http_request", fields...)
			default:
				logger.Info("http_request", fields...)
			}
		})
	}
}
