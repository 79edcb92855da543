package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/credstock/api/responses"
	"github.com/angelmondragon/credstock/internal/apikeys"
	"github.com/angelmondragon/credstock/pkg/logger"
)

const apiKeyHeader = "X-API-Key"

// KeyValidator resolves a raw api key.
type KeyValidator interface {
	Validate(ctx context.Context, raw string) (*apikeys.Principal, error)
}

// APIKey authenticates the sell surface. The key comes from ?key= or the X-API-Key header.
func APIKey(validator KeyValidator, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.URL.Query().Get("key"))
			if raw == "" {
				raw = strings.TrimSpace(r.Header.Get(apiKeyHeader))
			}

			principal, err := validator.Validate(r.Context(), raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			ctx := WithPrincipal(r.Context(), principal)
			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{
					"api_key_id":   principal.KeyID,
					"api_key_name": principal.Name,
				})
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
