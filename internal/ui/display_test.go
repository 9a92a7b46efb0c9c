package ui

import (
	"context"
	"testing"
	"time"

	"system-image-push/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func popup(summary string) Notification {
	return Notification{Card: &Card{Summary: summary, Popup: true}}
}

func TestPresentNamesObjectsPerType(t *testing.T) {
	d := NewDisplay(logging.Discard())

	first := d.Present(NotificationType, "one", "")
	second := d.Present(NotificationType, "two", "")
	other := d.Present("Dialog", "three", "")

	assert.Equal(t, "notification1", first.ObjectName)
	assert.Equal(t, "notification2", second.ObjectName)
	assert.Equal(t, "dialog1", other.ObjectName)
}

func TestSelect(t *testing.T) {
	d := NewDisplay(logging.Discard())

	assert.False(t, d.Select(NotificationType, "notification1").Found)

	d.Notify(popup("hello"))

	r := d.Select(NotificationType, "notification1")
	require.True(t, r.Found)
	assert.Equal(t, "hello", r.Dialog.Summary)

	assert.False(t, d.Select("Dialog", "notification1").Found)
}

func TestWaitSelectSeesLatePresent(t *testing.T) {
	d := NewDisplay(logging.Discard())

	go func() {
		time.Sleep(20 * time.Millisecond)
		d.Notify(popup("late"))
	}()

	r := d.WaitSelect(context.Background(), NotificationType, "notification1", 2*time.Second)
	require.True(t, r.Found)
	assert.Equal(t, "late", r.Dialog.Summary)
}

func TestWaitSelectTimesOut(t *testing.T) {
	d := NewDisplay(logging.Discard())

	start := time.Now()
	r := d.WaitSelect(context.Background(), NotificationType, "notification1", 50*time.Millisecond)

	assert.False(t, r.Found)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestWaitSelectHonorsContext(t *testing.T) {
	d := NewDisplay(logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := d.WaitSelect(ctx, NotificationType, "notification1", time.Minute)
	assert.False(t, r.Found)
}

func TestTapDismisses(t *testing.T) {
	d := NewDisplay(logging.Discard())
	touch := NewTouch(d)

	dialog := d.Present(NotificationType, "tap me", "")
	require.NoError(t, touch.Tap(dialog))

	assert.False(t, d.Select(NotificationType, dialog.ObjectName).Found)
	assert.ErrorIs(t, touch.Tap(dialog), ErrNotDisplayed)
}

func TestGreeter(t *testing.T) {
	d := NewDisplay(logging.Discard())

	assert.True(t, d.Locked())
	d.Unlock()
	assert.False(t, d.Locked())
	d.Lock()
	assert.True(t, d.Locked())
}
