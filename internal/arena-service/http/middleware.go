package httpapi

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/radieske/arena-escrow/internal/arena-service/dto"
	"github.com/radieske/arena-escrow/internal/ledger"
)

// IdentityHeader carrega a identidade do chamador
const IdentityHeader = "X-Arena-Identity"

type ctxKey struct{}

func identityFrom(ctx context.Context) ledger.Identity {
	id, _ := ctx.Value(ctxKey{}).(ledger.Identity)
	return id
}

// withIdentity lê o header e guarda a identidade no contexto (pode ser vazia)
func withIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ledger.Identity(r.Header.Get(IdentityHeader))
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

// requireIdentity rejeita chamadas sem identidade
func requireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if identityFrom(r.Context()) == "" {
			writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "missing_identity", Message: IdentityHeader + " header required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

const maxVisitors = 10_000

type visitor struct {
	lim  *rate.Limiter
	seen time.Time
}

// rateLimiter aplica um token bucket por identidade (ou IP quando anônimo)
type rateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
}

func newRateLimiter(perSec float64, burst int) *rateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &rateLimiter{visitors: make(map[string]*visitor), limit: rate.Limit(perSec), burst: burst}
}

func (rl *rateLimiter) allow(key string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	v, ok := rl.visitors[key]
	if !ok {
		if len(rl.visitors) >= maxVisitors {
			for k, old := range rl.visitors {
				if now.Sub(old.seen) > time.Minute {
					delete(rl.visitors, k)
				}
			}
		}
		v = &visitor{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[key] = v
	}
	v.seen = now
	return v.lim.AllowN(now, 1)
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := string(identityFrom(r.Context()))
		if key == "" {
			key, _, _ = net.SplitHostPort(r.RemoteAddr)
		}
		if !rl.allow(key, time.Now()) {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, dto.ErrorResponse{Error: "rate_limited", Message: "too many requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
