package pushclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"system-image-push/internal/domain"
)

// Register enrolls a device with the server and returns its credentials.
func Register(ctx context.Context, httpClient *http.Client, serverURL string, req *domain.RegisterDeviceRequest) (*domain.RegisterDeviceResponse, error) {
	var out domain.RegisterDeviceResponse
	if err := call(ctx, httpClient, http.MethodPost, apiURL(serverURL, "/api/v1/devices/register"), "", req, http.StatusCreated, &out); err != nil {
		return nil, fmt.Errorf("register device: %w", err)
	}
	return &out, nil
}

// ReportBuild tells the server which build the device now runs.
func ReportBuild(ctx context.Context, httpClient *http.Client, serverURL, token string, build int) (*domain.DeviceResponse, error) {
	var out domain.DeviceResponse
	req := &domain.UpdateBuildRequest{BuildNumber: build}
	if err := call(ctx, httpClient, http.MethodPut, apiURL(serverURL, "/api/v1/devices/me/build"), token, req, http.StatusOK, &out); err != nil {
		return nil, fmt.Errorf("report build: %w", err)
	}
	return &out, nil
}

// call sends body as JSON and decodes the data of the server's response
// envelope into out. Any status other than want is an error.
func call(ctx context.Context, httpClient *http.Client, method, endpoint, token string, body interface{}, want int, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("status %d: %w", resp.StatusCode, err)
	}
	if resp.StatusCode != want || len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return fmt.Errorf("status %d: %s", resp.StatusCode, envelope.Error)
	}
	return json.Unmarshal(envelope.Data, out)
}

func apiURL(serverURL, path string) string {
	return strings.TrimSuffix(serverURL, "/") + path
}
