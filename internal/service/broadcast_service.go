package service

import (
	"fmt"
	"time"

	"system-image-push/internal/domain"
	"system-image-push/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Publisher delivers an accepted broadcast to the devices connected on
// its channel and reports how many were reached.
type Publisher interface {
	PublishBroadcast(b *domain.Broadcast) (int, error)
}

type BroadcastService struct {
	repo      repository.BroadcastRepository
	publisher Publisher
	log       *logrus.Logger
	now       func() time.Time
}

func NewBroadcastService(repo repository.BroadcastRepository, publisher Publisher, log *logrus.Logger) *BroadcastService {
	return &BroadcastService{
		repo:      repo,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
}

// SetClock replaces the clock used to judge expiry at receipt time.
func (s *BroadcastService) SetClock(now func() time.Time) {
	s.now = now
}

// Submit accepts msg unless it has already expired. Expiry is judged
// against the server clock at receipt, not the sender's.
func (s *BroadcastService) Submit(msg *domain.PushMessage) (*domain.BroadcastResponse, error) {
	now := s.now()

	if msg.Expired(now) {
		s.log.WithFields(logrus.Fields{
			"channel":   msg.Channel,
			"expire_on": msg.ExpireOn,
		}).Info("rejected expired broadcast")
		return nil, ErrExpired
	}

	if msg.Channel == domain.DefaultChannel {
		entries, err := domain.ParseNotificationData(msg.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if len(entries) == 0 {
			return nil, fmt.Errorf("%w: no system image entries", ErrInvalidPayload)
		}
	}

	b := &domain.Broadcast{
		ID:        uuid.New().String(),
		Channel:   msg.Channel,
		Data:      msg.Data,
		CreatedAt: now.UTC(),
	}
	if msg.ExpireOn != nil {
		expireOn := msg.ExpireOn.UTC()
		b.ExpireOn = &expireOn
	}

	if err := s.repo.Create(b); err != nil {
		return nil, fmt.Errorf("failed to store broadcast: %w", err)
	}

	delivered, err := s.publisher.PublishBroadcast(b)
	if err != nil {
		// stored broadcasts still reach devices when they next connect
		s.log.WithError(err).WithField("broadcast", b.ID).Warn("failed to publish broadcast")
	}

	s.log.WithFields(logrus.Fields{
		"broadcast": b.ID,
		"channel":   b.Channel,
		"delivered": delivered,
	}).Info("accepted broadcast")

	return &domain.BroadcastResponse{
		ID:        b.ID,
		Channel:   b.Channel,
		Delivered: delivered,
		CreatedAt: b.CreatedAt,
	}, nil
}

// Pending returns the broadcast a device joining channel should receive,
// or nil.
func (s *BroadcastService) Pending(channel string) (*domain.Broadcast, error) {
	b, err := s.repo.Latest(channel, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to load pending broadcast: %w", err)
	}
	return b, nil
}

func (s *BroadcastService) PruneExpired() (int, error) {
	n, err := s.repo.PruneExpired(s.now())
	if err != nil {
		return n, err
	}
	if n > 0 {
		s.log.WithField("pruned", n).Debug("pruned expired broadcasts")
	}
	return n, nil
}
