package middleware

import (
	"math"
	"net/http"
	"strconv"

	"gameshop/internal/rate"
)

// LimitPerTelegramID answers 429 once a caller exceeds the limiter's window.
// Requests without a Telegram identity are keyed by remote address.
func LimitPerTelegramID(limiter *rate.WindowLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}
			key := r.RemoteAddr
			if tgID, ok := TelegramIDFromContext(r.Context()); ok {
				key = strconv.FormatInt(tgID, 10)
			}
			ok, wait := limiter.Reserve(key)
			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
