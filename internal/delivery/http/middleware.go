package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/vogiaan1904/ticketbottle-lineup/pkg/logger"
	"github.com/vogiaan1904/ticketbottle-lineup/pkg/response"
)

type memberIDKey struct{}

// Authenticate verifies an HS256 token whose subject is the member id. The
// token comes from the Authorization header, or from the token query
// parameter for EventSource and WebSocket clients that cannot set headers.
func Authenticate(secret string, l logger.Logger) func(http.Handler) http.Handler {
	keyFunc := func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				response.Error(w, errUnauthorized)
				return
			}

			claims := &jwt.RegisteredClaims{}
			if _, err := jwt.ParseWithClaims(raw, claims, keyFunc, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})); err != nil {
				l.Debugf(r.Context(), "delivery.http.Authenticate: %v", err)
				response.Error(w, errUnauthorized)
				return
			}

			memberID, err := strconv.ParseInt(claims.Subject, 10, 64)
			if err != nil || memberID <= 0 {
				response.Error(w, errUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), memberIDKey{}, memberID)
			ctx = logger.WithFields(ctx, l, "member_id", memberID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func MemberIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(memberIDKey{}).(int64)
	return id, ok
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}
