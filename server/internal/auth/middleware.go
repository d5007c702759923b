package auth

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
)

// ModeAPIKey is the only auth mode that enforces anything.
const ModeAPIKey = "apikey"

// APIKey returns HTTP middleware that enforces API key authentication on
// every request passing through it.
//
// Behaviour:
//   - If mode != "apikey" or key == "", all requests are allowed (pass-through).
//   - Otherwise the value of header is compared to key in constant time.
//   - A missing, empty, or incorrect key gets 401 with a JSON error body.
func APIKey(mode, header, key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if mode != ModeAPIKey || key == "" {
			return next
		}
		want := []byte(key)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(header)
			if got == "" || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				slog.Debug("auth: rejected request", "path", r.URL.Path, "remote", r.RemoteAddr)
				unauthorized(w, got == "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, missing bool) {
	msg := "invalid api key"
	if missing {
		msg = "missing api key"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(struct { //nolint:errcheck
		Error string `json:"error"`
	}{msg})
}
