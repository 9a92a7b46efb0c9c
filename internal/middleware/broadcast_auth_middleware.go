package middleware

import (
	"net/http"

	"system-image-push/pkg/hash"
	"system-image-push/pkg/response"
)

// BroadcastAuthMiddleware checks the sender key against keyHash. An empty
// keyHash disables the check.
func BroadcastAuthMiddleware(keyHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if keyHash == "" || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			key, ok := BearerToken(r)
			if !ok {
				response.Unauthorized(w, "Broadcast key required")
				return
			}

			if err := hash.VerifyKey(keyHash, key); err != nil {
				response.Unauthorized(w, "Invalid broadcast key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
