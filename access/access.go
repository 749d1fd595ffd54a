// Package access provides the request gating applied in front of the
// measurement endpoints: an optional shared-password check and a cap on
// concurrent clients.
package access

import (
	"crypto/subtle"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var currentClients = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "speedtest_access_current_clients",
		Help: "Current number of requests inside the access limiter.",
	},
)

// PasswordGate rejects requests that do not carry the configured password
// as the basic-auth password. The username is ignored, matching the client
// contract. An empty password disables the gate.
type PasswordGate struct {
	password string
}

// NewPasswordGate returns a gate for the given shared password.
func NewPasswordGate(password string) *PasswordGate {
	return &PasswordGate{password: password}
}

// Protect enforces the password before running the next handler.
func (g *PasswordGate) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.password != "" {
			_, pass, ok := r.BasicAuth()
			if !ok || subtle.ConstantTimeCompare([]byte(pass), []byte(g.password)) != 1 {
				w.Header().Set("WWW-Authenticate", `Basic realm="speedtest"`)
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Limiter caps the number of clients served simultaneously. May be shared
// across the handlers of multiple servers.
type Limiter struct {
	// Max is the cap. Zero or negative means unlimited.
	Max     int64
	current int64
}

// Limit enforces the concurrency cap while running the next handler.
func (l *Limiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := atomic.AddInt64(&l.current, 1)
		currentClients.Set(float64(cur))
		defer func() {
			cur := atomic.AddInt64(&l.current, -1)
			currentClients.Set(float64(cur))
		}()
		if l.Max > 0 && cur > l.Max {
			// 503 - https://tools.ietf.org/html/rfc7231#section-6.6.4
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}
