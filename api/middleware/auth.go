package middleware

import (
	"net/http"
	"strings"

	"github.com/groupescapehouses/escape-backend/api/responses"
	pkgAuth "github.com/groupescapehouses/escape-backend/pkg/auth"
	"github.com/groupescapehouses/escape-backend/pkg/config"
	pkgerrors "github.com/groupescapehouses/escape-backend/pkg/errors"
	"github.com/groupescapehouses/escape-backend/pkg/logger"
)

const bearerScheme = "bearer"

// Auth accepts "Authorization: Bearer <jwt>" issued by the identity provider
// and stores the subject and lower-cased role on the request context.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w, r, logg, pkgerrors.New(pkgerrors.CodeUnauthorized, "bearer token required"))
				return
			}
			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				unauthorized(w, r, logg, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}
			userID := claims.UserID()
			if userID == "" {
				unauthorized(w, r, logg, pkgerrors.New(pkgerrors.CodeUnauthorized, "token has no subject"))
				return
			}
			role := normalizeRole(claims.Role)

			ctx := WithRole(WithUserID(r.Context(), userID), role)
			if email := strings.TrimSpace(claims.Email); email != "" {
				ctx = WithEmail(ctx, email)
			}
			if logg != nil {
				ctx = logg.WithActorRole(logg.WithUserID(ctx, userID), role)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole admits requests whose authenticated role matches one of roles.
// It must run after Auth.
func RequireRole(logg *logger.Logger, roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		if role = normalizeRole(role); role != "" {
			allowed[role] = struct{}{}
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := allowed[RoleFromContext(r.Context())]; !ok {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "insufficient role"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func normalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

func unauthorized(w http.ResponseWriter, r *http.Request, logg *logger.Logger, err error) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	responses.WriteError(r.Context(), logg, w, err)
}
