package middleware

import (
	"crypto/sha256"
	"net/http"
	"strings"
	"sync"

	"github.com/angelmondragon/credstock/api/responses"
	pkgerrors "github.com/angelmondragon/credstock/pkg/errors"
	"github.com/angelmondragon/credstock/pkg/logger"
	"github.com/angelmondragon/credstock/pkg/security"
)

// AdminToken guards the operator surface with a static bearer token verified against an argon2id hash.
// Verified tokens are remembered by digest so the KDF runs once per distinct token.
func AdminToken(encodedHash string, logg *logger.Logger) func(http.Handler) http.Handler {
	var verified sync.Map
	encodedHash = strings.TrimSpace(encodedHash)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if encodedHash == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "admin surface disabled"))
				return
			}

			token := strings.TrimSpace(r.Header.Get("Authorization"))
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			digest := sha256.Sum256([]byte(token))
			if _, ok := verified.Load(digest); !ok {
				match, err := security.VerifyToken(token, encodedHash)
				if err != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "admin token hash misconfigured"))
					return
				}
				if !match {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials"))
					return
				}
				verified.Store(digest, struct{}{})
			}

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithField(ctx, "actor_role", "admin")
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
