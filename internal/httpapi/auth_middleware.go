package httpapi

import (
	"net"
	"net/http"
	"strings"
	"time"

	"gallerybot/internal/auth"
)

// requireAdminKey checks the bearer key against the configured hash. Clients
// that keep failing are refused before the hash is computed.
func (a *api) requireAdminKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()
		ip := clientIP(r)
		if a.keyLimiter.Blocked("ip:"+ip, now) {
			WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
			return
		}

		key, ok := auth.BearerToken(r)
		if !ok {
			WriteError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
			return
		}
		valid, err := auth.VerifyAPIKey(a.adminKeyHash, key)
		if err != nil {
			a.logger.Error("admin key hash unusable", "err", err)
			WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		if !valid {
			a.keyLimiter.Fail("ip:"+ip, now)
			a.logger.Warn("admin key rejected", "ip", ip)
			WriteError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
