package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/yourusername/scopefence/pkg/scopefence"
)

// Authenticate checks HTTP basic credentials against users (name to
// password) and stores the user name as the consumer id in the request
// context. Requests without credentials continue anonymously; wrong
// credentials get 401.
func Authenticate(users map[string]string, realm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			want, known := users[user]
			if !known || subtle.ConstantTimeCompare([]byte(pass), []byte(want)) != 1 {
				w.Header().Set("WWW-Authenticate", `Basic realm="`+realm+`"`)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{
					"error":   "unauthorized",
					"message": "invalid credentials",
				})
				return
			}

			ctx := scopefence.WithConsumer(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
