package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/bobarin/codereel/internal/apperr"
)

// BearerAuth requires Authorization: Bearer <token>. Missing and wrong
// tokens both answer 401.
func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			got, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || got == "" {
				respondAppError(w, apperr.New(apperr.KindAuth, "missing bearer token"))
				return
			}

			if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				respondAppError(w, apperr.New(apperr.KindAuth, "invalid bearer token"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
