package middleware

import (
	"log/slog"
	"net/http"

	"github.com/riaz37/groupbuy-realtime/pkg/config"
)

// ConnectionCounter reports the number of live connections in the process.
type ConnectionCounter func() int

// NewConnectionLimiter rejects upgrade requests once the process-wide
// connection cap is reached. Identity is only established after the upgrade,
// during the in-band handshake, so the cap is global rather than per-user.
func NewConnectionLimiter(
	logger *slog.Logger,
	counter ConnectionCounter,
	cfg config.ConnectionLimitConfig,
) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Max <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			count := counter()
			if count < cfg.Max {
				next.ServeHTTP(w, r)
				return
			}

			reqMeta, _ := ReqMetadataFrom(r.Context())
			var ip string
			if reqMeta != nil {
				ip = reqMeta.IP
			}
			logger.Warn("Connection limit reached, rejecting upgrade",
				slog.Int("count", count),
				slog.Int("max", cfg.Max),
				slog.String("ip", ip),
			)
			http.Error(w, "Too Many Active Connections", http.StatusTooManyRequests)
		})
	}
}
