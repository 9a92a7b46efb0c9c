// Package ui is the device's display surface: the objects currently on
// screen, the greeter, and lookups over them.
package ui

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	NotificationType = "Notification"

	// DefaultWaitTimeout bounds WaitSelect when no timeout is given.
	DefaultWaitTimeout = 10 * time.Second
)

var ErrNotDisplayed = errors.New("object is not displayed")

// Dialog is an object shown on the display.
type Dialog struct {
	Type       string
	ObjectName string
	Summary    string
	Body       string
	Actions    []string
}

// Result is the outcome of a lookup. A missing object is reported with
// Found false, never as an error.
type Result struct {
	Found  bool
	Dialog Dialog
}

func NotFound() Result {
	return Result{}
}

func Found(d Dialog) Result {
	return Result{Found: true, Dialog: d}
}

// Display holds what is on screen. It is safe for concurrent use; the
// push client presents from its own goroutine while tests query.
type Display struct {
	mu      sync.Mutex
	objects []Dialog
	counts  map[string]int
	menu    []MenuEntry
	sounds  []string
	emblem  Emblem
	locked  bool
	changed chan struct{}
	log     *logrus.Logger
}

// NewDisplay returns a display with the greeter locked.
func NewDisplay(log *logrus.Logger) *Display {
	return &Display{
		counts:  make(map[string]int),
		locked:  true,
		changed: make(chan struct{}),
		log:     log,
	}
}

// Present shows a new object of type typ. Object names are numbered per
// type starting at 1, so the first notification is "notification1".
func (d *Display) Present(typ, summary, body string, actions ...string) Dialog {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.counts[typ]++
	dialog := Dialog{
		Type:       typ,
		ObjectName: fmt.Sprintf("%s%d", lowerFirst(typ), d.counts[typ]),
		Summary:    summary,
		Body:       body,
		Actions:    append([]string(nil), actions...),
	}
	d.objects = append(d.objects, dialog)
	d.notifyLocked()

	d.log.WithFields(logrus.Fields{
		"type":   typ,
		"object": dialog.ObjectName,
		"locked": d.locked,
	}).Info("presented")
	return dialog
}

func (d *Display) Dismiss(dialog Dialog) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, o := range d.objects {
		if o.Type == dialog.Type && o.ObjectName == dialog.ObjectName {
			d.objects = append(d.objects[:i], d.objects[i+1:]...)
			d.notifyLocked()
			d.log.WithField("object", dialog.ObjectName).Info("dismissed")
			return nil
		}
	}
	return fmt.Errorf("dismiss %s: %w", dialog.ObjectName, ErrNotDisplayed)
}

func (d *Display) Locked() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.locked
}

func (d *Display) Lock() {
	d.setLocked(true)
}

func (d *Display) Unlock() {
	d.setLocked(false)
}

func (d *Display) setLocked(locked bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.locked != locked {
		d.locked = locked
		d.notifyLocked()
	}
}

// Select looks up an object immediately.
func (d *Display) Select(typ, name string) Result {
	r, _ := d.lookup(typ, name)
	return r
}

// WaitSelect looks up an object, waiting up to timeout for it to appear.
// It gives up early when ctx is done. A non-positive timeout means
// DefaultWaitTimeout.
func (d *Display) WaitSelect(ctx context.Context, typ, name string, timeout time.Duration) Result {
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		r, changed := d.lookup(typ, name)
		if r.Found {
			return r
		}

		select {
		case <-changed:
		case <-timer.C:
			return NotFound()
		case <-ctx.Done():
			return NotFound()
		}
	}
}

// lookup also returns the channel closed on the next change so waiters
// cannot miss an update between checking and blocking.
func (d *Display) lookup(typ, name string) (Result, <-chan struct{}) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, o := range d.objects {
		if o.Type == typ && o.ObjectName == name {
			return Found(o), d.changed
		}
	}
	return NotFound(), d.changed
}

func (d *Display) notifyLocked() {
	close(d.changed)
	d.changed = make(chan struct{})
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'A' && b[0] <= 'Z' {
		b[0] += 'a' - 'A'
	}
	return string(b)
}
