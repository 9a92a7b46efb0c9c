package handler

import (
	"net/http"

	"system-image-push/pkg/response"
)

func Health(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]string{"status": "healthy", "service": "system-image-push"})
}
