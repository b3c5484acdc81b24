package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/SandroAugusto/school-of-solana/internal/domain"
)

const (
	// HeaderIdentity carries the caller's base58 identity.
	HeaderIdentity = "X-Identity"
	// HeaderCapability carries the capability token issued for that identity.
	HeaderCapability = "X-Capability"
)

// Verifier checks a capability token against an identity.
type Verifier interface {
	Verify(identity, token string) (domain.Identity, error)
}

type identityKey struct{}

// Auth returns middleware that resolves the caller identity from the
// X-Identity and X-Capability headers. Requests without a valid pair get 401.
func Auth(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := strings.TrimSpace(r.Header.Get(HeaderIdentity))
			token := strings.TrimSpace(r.Header.Get(HeaderCapability))
			if identity == "" || token == "" {
				writeUnauthorized(w, "missing identity or capability")
				return
			}

			id, err := v.Verify(identity, token)
			if err != nil {
				writeUnauthorized(w, "invalid capability")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// WithIdentity attaches a verified identity to ctx.
func WithIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the verified identity attached by Auth.
func IdentityFrom(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(domain.Identity)
	return id, ok
}

// writeUnauthorized sends a 401 response with a JSON error body.
func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `","kind":"Unauthenticated"}`))
}
