package ui

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DefaultSound is played when a notification asks for sound without
// naming a file.
const DefaultSound = "default"

// Card is the visible part of a notification. A card without a summary
// presents nothing.
type Card struct {
	Summary string
	Body    string
	// Popup shows a bubble on screen.
	Popup bool
	// Persist keeps an entry in the messaging menu after the bubble goes.
	Persist bool
	Actions []string
}

// Emblem is the counter drawn over the app icon.
type Emblem struct {
	Count   int
	Visible bool
}

// Notification groups everything one push asks the device to present.
// Nil or empty parts are skipped.
type Notification struct {
	Card   *Card
	Sound  string
	Emblem *Emblem
}

// MenuEntry is a persisted notification in the messaging menu.
type MenuEntry struct {
	ID      string
	Summary string
	Body    string
	Actions []string
}

// Notify presents each part of n: the bubble, the messaging menu entry,
// the sound and the emblem counter.
func (d *Display) Notify(n Notification) {
	if n.Card != nil && n.Card.Summary != "" {
		if n.Card.Popup {
			d.Present(NotificationType, n.Card.Summary, n.Card.Body, n.Card.Actions...)
		}
		if n.Card.Persist {
			d.appendMenu(*n.Card)
		}
	}
	if n.Sound != "" {
		d.playSound(n.Sound)
	}
	if n.Emblem != nil {
		d.SetEmblem(*n.Emblem)
	}
}

func (d *Display) appendMenu(c Card) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry := MenuEntry{
		ID:      uuid.NewString(),
		Summary: c.Summary,
		Body:    c.Body,
		Actions: append([]string(nil), c.Actions...),
	}
	d.menu = append(d.menu, entry)
	d.notifyLocked()
	d.log.WithField("entry", entry.ID).Info("messaging menu entry added")
}

// MessagingMenu returns the persisted entries, oldest first.
func (d *Display) MessagingMenu() []MenuEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]MenuEntry(nil), d.menu...)
}

// RemoveMenuEntry drops the entry with id.
func (d *Display) RemoveMenuEntry(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, e := range d.menu {
		if e.ID == id {
			d.menu = append(d.menu[:i], d.menu[i+1:]...)
			d.notifyLocked()
			return nil
		}
	}
	return ErrNotDisplayed
}

func (d *Display) playSound(sound string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.sounds = append(d.sounds, sound)
	d.log.WithField("sound", sound).Info("sound played")
}

// SoundsPlayed returns every sound played so far, in order.
func (d *Display) SoundsPlayed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.sounds...)
}

func (d *Display) SetEmblem(e Emblem) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.emblem == e {
		return
	}
	d.emblem = e
	d.notifyLocked()
	d.log.WithFields(logrus.Fields{"count": e.Count, "visible": e.Visible}).Info("emblem set")
}

func (d *Display) Emblem() Emblem {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.emblem
}
