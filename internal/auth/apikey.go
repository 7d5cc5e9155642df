package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/numera-app/numera/internal/platform/httpx"
)

// Roles a client key can carry. Admin implies service access.
const (
	RoleAdmin   = "admin"
	RoleService = "service"
)

type contextKey struct{}

var roleContextKey contextKey

// RoleFromContext returns the authenticated role, or "" when the request
// did not pass through the key middleware.
func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(roleContextKey).(string)
	return role
}

// KeyAuth authenticates requests by API key. Keys are stored as bcrypt
// hashes so a leaked configuration does not leak usable credentials.
type KeyAuth struct {
	hashes map[string][]byte
}

// NewKeyAuth parses role:bcrypt-hash pairs separated by commas, e.g.
// "admin:$2a$10$...,service:$2a$10$...".
func NewKeyAuth(spec string) (*KeyAuth, error) {
	hashes := make(map[string][]byte)
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		role, hash, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("auth: malformed API key entry %q", entry)
		}
		if role != RoleAdmin && role != RoleService {
			return nil, fmt.Errorf("auth: unknown role %q", role)
		}
		hashes[role] = []byte(hash)
	}
	if len(hashes) == 0 {
		return nil, fmt.Errorf("auth: no API keys configured")
	}
	return &KeyAuth{hashes: hashes}, nil
}

// authenticate returns the role for the presented key, or "".
func (a *KeyAuth) authenticate(key string) string {
	if key == "" {
		return ""
	}
	// Two roles at most, so the linear bcrypt scan stays cheap.
	for role, hash := range a.hashes {
		if bcrypt.CompareHashAndPassword(hash, []byte(key)) == nil {
			return role
		}
	}
	return ""
}

func grants(have, want string) bool {
	if have == want {
		return true
	}
	return have == RoleAdmin && want == RoleService
}

// Require returns middleware that rejects requests whose API key is
// missing or maps to a role weaker than want.
func (a *KeyAuth) Require(want string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				if after, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
					key = after
				}
			}
			role := a.authenticate(key)
			if role == "" {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing or invalid API key")
				return
			}
			if !grants(role, want) {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "API key role does not permit this operation")
				return
			}
			ctx := context.WithValue(r.Context(), roleContextKey, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
