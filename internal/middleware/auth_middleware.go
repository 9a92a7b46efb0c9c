package middleware

import (
	"context"
	"net/http"
	"strings"

	"system-image-push/pkg/jwt"
	"system-image-push/pkg/response"
)

type contextKey string

const (
	DeviceIDKey contextKey = "deviceID"
	ChannelKey  contextKey = "channel"
)

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	parts := strings.Split(r.Header.Get("Authorization"), " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// AuthMiddleware admits requests carrying a valid device token.
func AuthMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				response.Unauthorized(w, "Missing authorization header")
				return
			}

			token, ok := BearerToken(r)
			if !ok {
				response.Unauthorized(w, "Invalid authorization header format")
				return
			}

			claims, err := jwt.ValidateToken(token, jwtSecret)
			if err != nil {
				response.Unauthorized(w, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), DeviceIDKey, claims.DeviceID)
			ctx = context.WithValue(ctx, ChannelKey, claims.Channel)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetDeviceID(r *http.Request) string {
	deviceID, ok := r.Context().Value(DeviceIDKey).(string)
	if !ok {
		return ""
	}
	return deviceID
}

func GetChannel(r *http.Request) string {
	channel, ok := r.Context().Value(ChannelKey).(string)
	if !ok {
		return ""
	}
	return channel
}
