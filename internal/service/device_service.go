package service

import (
	"errors"
	"fmt"
	"time"

	"system-image-push/internal/domain"
	"system-image-push/internal/repository"
	"system-image-push/pkg/jwt"

	"github.com/google/uuid"
)

type DeviceService struct {
	repo           repository.DeviceRepository
	jwtSecret      string
	jwtExpiration  time.Duration
	defaultChannel string
}

func NewDeviceService(repo repository.DeviceRepository, jwtSecret string, jwtExp time.Duration, defaultChannel string) *DeviceService {
	return &DeviceService{
		repo:           repo,
		jwtSecret:      jwtSecret,
		jwtExpiration:  jwtExp,
		defaultChannel: defaultChannel,
	}
}

// Register stores a new device and issues the token it connects with.
func (s *DeviceService) Register(req *domain.RegisterDeviceRequest) (*domain.RegisterDeviceResponse, error) {
	channel := req.Channel
	if channel == "" {
		channel = s.defaultChannel
	}

	now := time.Now().UTC()
	device := &domain.Device{
		ID:           uuid.New().String(),
		Channel:      channel,
		ImageChannel: req.ImageChannel,
		Model:        req.Model,
		BuildNumber:  req.BuildNumber,
		LastActive:   now,
		CreatedAt:    now,
	}

	if err := s.repo.Create(device); err != nil {
		return nil, err
	}

	token, err := jwt.GenerateToken(device.ID, device.Channel, s.jwtExpiration, s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to generate device token: %w", err)
	}

	return &domain.RegisterDeviceResponse{
		Device:    device.Response(),
		Token:     token,
		ExpiresIn: int64(s.jwtExpiration.Seconds()),
	}, nil
}

func (s *DeviceService) Get(deviceID string) (*domain.Device, error) {
	device, err := s.repo.FindByID(deviceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}
	return device, nil
}

// Connect is called when a device opens its push connection. Revoked
// devices are refused.
func (s *DeviceService) Connect(deviceID string) (*domain.Device, error) {
	device, err := s.Get(deviceID)
	if err != nil {
		return nil, err
	}
	if device.IsRevoked {
		return nil, ErrDeviceRevoked
	}
	if err := s.repo.UpdateLastActive(deviceID); err != nil {
		return nil, err
	}
	return device, nil
}

func (s *DeviceService) List(channel string) ([]*domain.DeviceResponse, error) {
	devices, err := s.repo.List(channel)
	if err != nil {
		return nil, err
	}

	var responses []*domain.DeviceResponse
	for _, d := range devices {
		responses = append(responses, d.Response())
	}

	return responses, nil
}

func (s *DeviceService) UpdateBuild(deviceID string, buildNumber int) (*domain.DeviceResponse, error) {
	device, err := s.Get(deviceID)
	if err != nil {
		return nil, err
	}
	if device.IsRevoked {
		return nil, ErrDeviceRevoked
	}

	if err := s.repo.UpdateBuildNumber(deviceID, buildNumber); err != nil {
		return nil, err
	}

	device.BuildNumber = buildNumber
	return device.Response(), nil
}

func (s *DeviceService) Revoke(deviceID string) error {
	if _, err := s.Get(deviceID); err != nil {
		return err
	}
	return s.repo.Revoke(deviceID)
}
