package auth

import (
	"context"
	"net/http"

	"nesavent/internal/models"
	"nesavent/internal/utils"

	"github.com/gin-gonic/gin"
)

type contextKey string

const callerKey contextKey = "caller"

// Middleware rejects requests without a valid bearer token and stores the
// caller in the request context.
func Middleware(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawToken, err := ExtractTokenFromRequest(r)
			if err != nil {
				utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse(err.Error(), "unauthenticated"))
				return
			}
			caller, err := v.Verify(r.Context(), rawToken)
			if err != nil {
				utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("token tidak valid", "unauthenticated"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

// Optional attaches the caller when a valid token is present and lets
// anonymous requests through.
func Optional(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rawToken, err := ExtractTokenFromRequest(r); err == nil {
				if caller, err := v.Verify(r.Context(), rawToken); err == nil {
					r = r.WithContext(WithCaller(r.Context(), caller))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole must run after Middleware.
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := CallerFrom(r.Context())
			if !ok {
				utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Silakan login terlebih dahulu", "unauthenticated"))
				return
			}
			for _, role := range roles {
				if caller.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			utils.WriteJSON(w, http.StatusForbidden, utils.ErrorResponse("Akses ditolak", "forbidden"))
		})
	}
}

// GinMiddleware is Middleware for the gin-served payment routes.
func GinMiddleware(v Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		rawToken, err := ExtractTokenFromRequest(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, utils.ErrorResponse(err.Error(), "unauthenticated"))
			return
		}
		caller, err := v.Verify(c.Request.Context(), rawToken)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, utils.ErrorResponse("token tidak valid", "unauthenticated"))
			return
		}
		c.Request = c.Request.WithContext(WithCaller(c.Request.Context(), caller))
		c.Next()
	}
}

func WithCaller(ctx context.Context, caller models.Caller) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

func CallerFrom(ctx context.Context) (models.Caller, bool) {
	caller, ok := ctx.Value(callerKey).(models.Caller)
	return caller, ok
}

// UserID returns the caller's id or "".
func UserID(ctx context.Context) string {
	caller, _ := CallerFrom(ctx)
	return caller.UserID
}
