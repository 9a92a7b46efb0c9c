package repository

import (
	"sort"
	"sync"
	"time"

	"system-image-push/internal/domain"
)

// Memory repositories back the server when DB_DRIVER=memory and in
// end-to-end tests. Stored values are copied in and out.

type memoryDeviceRepository struct {
	mu      sync.RWMutex
	devices map[string]domain.Device
}

func NewMemoryDeviceRepository() DeviceRepository {
	return &memoryDeviceRepository{devices: make(map[string]domain.Device)}
}

func (r *memoryDeviceRepository) Create(device *domain.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	device.Kind = deviceKind
	r.devices[device.ID] = *device
	return nil
}

func (r *memoryDeviceRepository) List(channel string) ([]*domain.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var devices []*domain.Device
	for _, d := range r.devices {
		if d.Channel == channel && !d.IsRevoked {
			d := d
			devices = append(devices, &d)
		}
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].CreatedAt.Before(devices[j].CreatedAt) })
	return devices, nil
}

func (r *memoryDeviceRepository) FindByID(deviceID string) (*domain.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[deviceID]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (r *memoryDeviceRepository) Revoke(deviceID string) error {
	return r.update(deviceID, func(d *domain.Device) { d.IsRevoked = true })
}

func (r *memoryDeviceRepository) UpdateLastActive(deviceID string) error {
	return r.update(deviceID, func(d *domain.Device) { d.LastActive = time.Now().UTC() })
}

func (r *memoryDeviceRepository) UpdateBuildNumber(deviceID string, buildNumber int) error {
	return r.update(deviceID, func(d *domain.Device) { d.BuildNumber = buildNumber })
}

func (r *memoryDeviceRepository) update(deviceID string, fn func(*domain.Device)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[deviceID]
	if !ok {
		return ErrNotFound
	}
	fn(&d)
	r.devices[deviceID] = d
	return nil
}

type memoryBroadcastRepository struct {
	mu         sync.RWMutex
	broadcasts []domain.Broadcast
}

func NewMemoryBroadcastRepository() BroadcastRepository {
	return &memoryBroadcastRepository{}
}

func (r *memoryBroadcastRepository) Create(b *domain.Broadcast) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b.Kind = broadcastKind
	r.broadcasts = append(r.broadcasts, *b)
	return nil
}

func (r *memoryBroadcastRepository) Latest(channel string, now time.Time) (*domain.Broadcast, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.broadcasts) - 1; i >= 0; i-- {
		b := r.broadcasts[i]
		if b.Channel == channel && !b.Expired(now) {
			return &b, nil
		}
	}
	return nil, nil
}

func (r *memoryBroadcastRepository) PruneExpired(now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.broadcasts[:0]
	for _, b := range r.broadcasts {
		if !b.Expired(now) {
			kept = append(kept, b)
		}
	}
	pruned := len(r.broadcasts) - len(kept)
	r.broadcasts = kept
	return pruned, nil
}
