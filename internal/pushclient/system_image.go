package pushclient

import (
	"fmt"
	"sync"

	"system-image-push/internal/domain"
	"system-image-push/internal/ui"
	"system-image-push/internal/websocket"

	"github.com/sirupsen/logrus"
)

// Presenter shows a notification to the user.
type Presenter interface {
	Notify(n ui.Notification)
}

// SystemImage handles system-image broadcasts for one device. It tells
// the user about builds newer than the installed one, once per build.
type SystemImage struct {
	mu           sync.Mutex
	current      domain.NotificationData
	lastNotified int
	presenter    Presenter
	log          *logrus.Logger
}

func NewSystemImage(current domain.NotificationData, presenter Presenter, log *logrus.Logger) *SystemImage {
	return &SystemImage{
		current:      current,
		lastNotified: current.BuildNumber,
		presenter:    presenter,
		log:          log,
	}
}

// Current returns the installed system-image state.
func (s *SystemImage) Current() domain.NotificationData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Copy()
}

func (s *SystemImage) BuildNumber() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.BuildNumber
}

// SetBuildNumber records an installed update. The emblem is cleared once
// the announced build is installed.
func (s *SystemImage) SetBuildNumber(n int) {
	s.mu.Lock()
	s.current.BuildNumber = n
	pending := s.lastNotified > n
	if !pending {
		s.lastNotified = n
	}
	s.mu.Unlock()

	if !pending {
		s.presenter.Notify(ui.Notification{Emblem: &ui.Emblem{}})
	}
}

func (s *SystemImage) HandleBroadcast(b *websocket.BroadcastPayload) error {
	if b.Channel != domain.DefaultChannel {
		s.log.WithField("channel", b.Channel).Debug("not a system image broadcast")
		return nil
	}

	entries, err := domain.ParseNotificationData(b.Data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	key := s.current.Key()
	var entry *domain.NotificationData
	for i := range entries {
		if entries[i].Key() == key {
			entry = &entries[i]
			break
		}
	}

	fields := logrus.Fields{"broadcast": b.ID, "key": key, "current": s.current.BuildNumber}
	if entry == nil {
		s.mu.Unlock()
		s.log.WithFields(fields).Debug("no entry for this device")
		return nil
	}
	fields["build"] = entry.BuildNumber

	if entry.BuildNumber <= s.lastNotified {
		s.mu.Unlock()
		s.log.WithFields(fields).Debug("no newer system image")
		return nil
	}
	s.lastNotified = entry.BuildNumber
	s.mu.Unlock()

	s.log.WithFields(fields).Info("newer system image available")
	s.presenter.Notify(updateNotification(*entry))
	return nil
}

func updateNotification(entry domain.NotificationData) ui.Notification {
	return ui.Notification{
		Card: &ui.Card{
			Summary: domain.UpdatedImageMessage,
			Body:    fmt.Sprintf("Build %d is available on %s.", entry.BuildNumber, entry.Channel),
			Popup:   true,
			Persist: true,
		},
		Sound:  ui.DefaultSound,
		Emblem: &ui.Emblem{Count: 1, Visible: true},
	}
}
