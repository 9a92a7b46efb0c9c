package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"system-image-push/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

const deviceKind = "device"

var ErrNotFound = errors.New("document not found")

type DeviceRepository interface {
	Create(device *domain.Device) error
	List(channel string) ([]*domain.Device, error)
	FindByID(deviceID string) (*domain.Device, error)
	Revoke(deviceID string) error
	UpdateLastActive(deviceID string) error
	UpdateBuildNumber(deviceID string, buildNumber int) error
}

type deviceRepository struct {
	client *kivik.Client
	dbName string
}

func NewDeviceRepository(client *kivik.Client, dbName string) DeviceRepository {
	return &deviceRepository{
		client: client,
		dbName: dbName,
	}
}

func deviceDocID(deviceID string) string {
	return fmt.Sprintf("device:%s", deviceID)
}

func (r *deviceRepository) Create(device *domain.Device) error {
	db := r.client.DB(r.dbName)

	device.Kind = deviceKind
	_, err := db.Put(context.Background(), deviceDocID(device.ID), device)
	if err != nil {
		return fmt.Errorf("failed to create device: %w", err)
	}

	return nil
}

func (r *deviceRepository) List(channel string) ([]*domain.Device, error) {
	db := r.client.DB(r.dbName)

	query := map[string]interface{}{
		"selector": map[string]interface{}{
			"kind":       deviceKind,
			"channel":    channel,
			"is_revoked": false,
		},
	}

	rows := db.Find(context.Background(), query)
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	var devices []*domain.Device
	for rows.Next() {
		var device domain.Device
		if err := rows.ScanDoc(&device); err != nil {
			continue // Skip malformed docs
		}
		devices = append(devices, &device)
	}

	return devices, nil
}

func (r *deviceRepository) FindByID(deviceID string) (*domain.Device, error) {
	db := r.client.DB(r.dbName)

	row := db.Get(context.Background(), deviceDocID(deviceID))

	var device domain.Device
	if err := row.ScanDoc(&device); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find device: %w", err)
	}

	return &device, nil
}

func (r *deviceRepository) Revoke(deviceID string) error {
	return r.patch(deviceID, map[string]interface{}{"is_revoked": true})
}

func (r *deviceRepository) UpdateLastActive(deviceID string) error {
	return r.patch(deviceID, map[string]interface{}{"last_active": time.Now()})
}

func (r *deviceRepository) UpdateBuildNumber(deviceID string, buildNumber int) error {
	return r.patch(deviceID, map[string]interface{}{"build_number": buildNumber})
}

// patch rewrites selected fields of the stored document, keeping its _rev.
func (r *deviceRepository) patch(deviceID string, fields map[string]interface{}) error {
	db := r.client.DB(r.dbName)
	docID := deviceDocID(deviceID)

	var rawDoc map[string]interface{}
	row := db.Get(context.Background(), docID)
	if err := row.ScanDoc(&rawDoc); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return ErrNotFound
		}
		return err
	}

	for k, v := range fields {
		rawDoc[k] = v
	}

	if _, err := db.Put(context.Background(), docID, rawDoc); err != nil {
		return fmt.Errorf("failed to update device: %w", err)
	}

	return nil
}
