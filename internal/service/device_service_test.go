package service

import (
	"errors"
	"testing"
	"time"

	"system-image-push/internal/domain"
	"system-image-push/internal/repository"
	"system-image-push/pkg/jwt"
)

type mockDeviceRepo struct {
	devices map[string]*domain.Device
}

func newMockDeviceRepo() *mockDeviceRepo {
	return &mockDeviceRepo{
		devices: make(map[string]*domain.Device),
	}
}

func (m *mockDeviceRepo) Create(device *domain.Device) error {
	if _, exists := m.devices[device.ID]; exists {
		return errors.New("device already exists")
	}
	m.devices[device.ID] = device
	return nil
}

func (m *mockDeviceRepo) List(channel string) ([]*domain.Device, error) {
	var devices []*domain.Device
	for _, d := range m.devices {
		if d.Channel == channel && !d.IsRevoked {
			devices = append(devices, d)
		}
	}
	return devices, nil
}

func (m *mockDeviceRepo) FindByID(deviceID string) (*domain.Device, error) {
	if d, exists := m.devices[deviceID]; exists {
		copied := *d
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (m *mockDeviceRepo) Revoke(deviceID string) error {
	if d, exists := m.devices[deviceID]; exists {
		d.IsRevoked = true
		return nil
	}
	return repository.ErrNotFound
}

func (m *mockDeviceRepo) UpdateLastActive(deviceID string) error {
	if d, exists := m.devices[deviceID]; exists {
		d.LastActive = time.Now()
		return nil
	}
	return repository.ErrNotFound
}

func (m *mockDeviceRepo) UpdateBuildNumber(deviceID string, buildNumber int) error {
	if d, exists := m.devices[deviceID]; exists {
		d.BuildNumber = buildNumber
		return nil
	}
	return repository.ErrNotFound
}

const testSecret = "test-secret"

func TestDeviceService_Register(t *testing.T) {
	repo := newMockDeviceRepo()
	service := NewDeviceService(repo, testSecret, time.Hour, "system")

	req := &domain.RegisterDeviceRequest{
		ImageChannel: "ubuntu-touch/stable",
		Model:        "mako",
		BuildNumber:  101,
	}

	resp, err := service.Register(req)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if resp.Device.ID == "" {
		t.Error("expected device ID to be generated")
	}
	if resp.Device.Channel != "system" {
		t.Errorf("expected default channel system, got %s", resp.Device.Channel)
	}
	if resp.Device.BuildNumber != 101 {
		t.Errorf("expected build number 101, got %d", resp.Device.BuildNumber)
	}

	claims, err := jwt.ValidateToken(resp.Token, testSecret)
	if err != nil {
		t.Fatalf("expected a valid token, got %v", err)
	}
	if claims.DeviceID != resp.Device.ID || claims.Channel != "system" {
		t.Errorf("unexpected claims %+v", claims)
	}
}

func TestDeviceService_List(t *testing.T) {
	repo := newMockDeviceRepo()
	service := NewDeviceService(repo, testSecret, time.Hour, "system")

	repo.Create(&domain.Device{ID: "d1", Channel: "system", Model: "mako"})
	repo.Create(&domain.Device{ID: "d2", Channel: "system", Model: "flo"})
	repo.Create(&domain.Device{ID: "d3", Channel: "testing", Model: "mako"})

	list, err := service.List("system")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(list) != 2 {
		t.Errorf("expected 2 devices, got %d", len(list))
	}
}

func TestDeviceService_Connect(t *testing.T) {
	repo := newMockDeviceRepo()
	service := NewDeviceService(repo, testSecret, time.Hour, "system")

	repo.Create(&domain.Device{ID: "d1", Channel: "system"})
	repo.Create(&domain.Device{ID: "d2", Channel: "system", IsRevoked: true})

	if _, err := service.Connect("d1"); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if repo.devices["d1"].LastActive.IsZero() {
		t.Error("expected last active to be updated")
	}

	if _, err := service.Connect("d2"); !errors.Is(err, ErrDeviceRevoked) {
		t.Errorf("expected ErrDeviceRevoked, got %v", err)
	}

	if _, err := service.Connect("missing"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("expected ErrDeviceNotFound, got %v", err)
	}
}

func TestDeviceService_UpdateBuild(t *testing.T) {
	repo := newMockDeviceRepo()
	service := NewDeviceService(repo, testSecret, time.Hour, "system")

	repo.Create(&domain.Device{ID: "d1", Channel: "system", BuildNumber: 5})

	resp, err := service.UpdateBuild("d1", 6)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if resp.BuildNumber != 6 || repo.devices["d1"].BuildNumber != 6 {
		t.Errorf("expected build number 6, got %d", resp.BuildNumber)
	}
}

func TestDeviceService_Revoke(t *testing.T) {
	repo := newMockDeviceRepo()
	service := NewDeviceService(repo, testSecret, time.Hour, "system")

	repo.Create(&domain.Device{ID: "d1", Channel: "system"})

	if err := service.Revoke("d1"); err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	d, _ := repo.FindByID("d1")
	if !d.IsRevoked {
		t.Error("expected device to be revoked")
	}

	if _, err := service.UpdateBuild("d1", 7); !errors.Is(err, ErrDeviceRevoked) {
		t.Errorf("expected ErrDeviceRevoked, got %v", err)
	}

	if err := service.Revoke("missing"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("expected ErrDeviceNotFound, got %v", err)
	}
}
