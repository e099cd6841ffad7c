package status

import (
	"crypto/subtle"
	"net/http"

	"go.uber.org/zap"
)

// RequireAPIKey wraps next with API key authentication.
//
// Any mode other than "apikey" passes every request through. In apikey mode
// the value of header must equal key; a missing or wrong key gets 401. An
// empty key in apikey mode rejects every request.
func RequireAPIKey(mode, header, key string, next http.Handler) http.Handler {
	if mode != "apikey" {
		return next
	}
	if key == "" {
		zap.L().Error("status: api key mode without a key, rejecting all requests",
			zap.String("header", header))
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			jsonErr(w, http.StatusUnauthorized, "api key not configured")
		})
	}
	want := []byte(key)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(header)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			jsonErr(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}
