package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"system-image-push/pkg/hash"
	"system-image-push/pkg/jwt"
)

func okHandler(seen *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			*seen = GetDeviceID(r) + "@" + GetChannel(r)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware(t *testing.T) {
	secret := "middleware-secret"
	token, _ := jwt.GenerateToken("dev-1", "system", time.Hour, secret)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer " + token, http.StatusOK},
		{"lowercase scheme", "bearer " + token, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"garbage token", "Bearer nope", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := AuthMiddleware(secret)(okHandler(&seen))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
			if tt.want == http.StatusOK && seen != "dev-1@system" {
				t.Errorf("expected device context, got %q", seen)
			}
		})
	}
}

func TestBroadcastAuthMiddleware(t *testing.T) {
	key := "sender-key-0123456789"
	keyHash, err := hash.HashKey(key)
	if err != nil {
		t.Fatalf("HashKey() error = %v", err)
	}

	tests := []struct {
		name    string
		keyHash string
		header  string
		want    int
	}{
		{"open when unset", "", "", http.StatusOK},
		{"valid key", keyHash, "Bearer " + key, http.StatusOK},
		{"wrong key", keyHash, "Bearer wrong-key-0123456789", http.StatusUnauthorized},
		{"missing key", keyHash, "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := BroadcastAuthMiddleware(tt.keyHash)(okHandler(nil))

			req := httptest.NewRequest(http.MethodPost, "/broadcast", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	h := CORSMiddleware("https://admin.example", "POST,OPTIONS", "Content-Type,Authorization")(okHandler(nil))

	req := httptest.NewRequest(http.MethodOptions, "/broadcast", nil)
	req.Header.Set("Origin", "https://admin.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://admin.example" {
		t.Errorf("unexpected allow origin %q", got)
	}
}

func TestCORSMiddleware_UnknownOrigin(t *testing.T) {
	h := CORSMiddleware("https://admin.example", "POST,OPTIONS", "Content-Type")(okHandler(nil))

	req := httptest.NewRequest(http.MethodPost, "/broadcast", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no allow origin, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected request to reach handler, got %d", rec.Code)
	}
}

func TestCORSMiddleware_Wildcard(t *testing.T) {
	h := CORSMiddleware("*", "GET", "Content-Type")(okHandler(nil))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected wildcard, got %q", got)
	}
}
