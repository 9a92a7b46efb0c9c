package ui

import (
	"testing"

	"system-image-push/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifyCard(t *testing.T) {
	tests := []struct {
		name      string
		card      *Card
		wantPopup bool
		wantMenu  int
	}{
		{name: "no card", card: nil},
		{name: "no summary", card: &Card{Body: "body", Popup: true, Persist: true}},
		{name: "no popup", card: &Card{Summary: "summary"}},
		{name: "popup", card: &Card{Summary: "summary", Popup: true}, wantPopup: true},
		{name: "persist only", card: &Card{Summary: "summary", Persist: true}, wantMenu: 1},
		{name: "popup and persist", card: &Card{Summary: "summary", Popup: true, Persist: true}, wantPopup: true, wantMenu: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDisplay(logging.Discard())

			d.Notify(Notification{Card: tt.card})

			assert.Equal(t, tt.wantPopup, d.Select(NotificationType, "notification1").Found)
			assert.Len(t, d.MessagingMenu(), tt.wantMenu)
		})
	}
}

func TestNotifyCarriesBodyAndActions(t *testing.T) {
	d := NewDisplay(logging.Discard())

	d.Notify(Notification{Card: &Card{
		Summary: "summary",
		Body:    "body",
		Popup:   true,
		Actions: []string{"open"},
	}})

	r := d.Select(NotificationType, "notification1")
	require.True(t, r.Found)
	assert.Equal(t, "body", r.Dialog.Body)
	assert.Equal(t, []string{"open"}, r.Dialog.Actions)
}

func TestTapLeavesMenuEntry(t *testing.T) {
	d := NewDisplay(logging.Discard())

	d.Notify(Notification{Card: &Card{Summary: "summary", Popup: true, Persist: true}})
	r := d.Select(NotificationType, "notification1")
	require.True(t, r.Found)

	require.NoError(t, NewTouch(d).Tap(r.Dialog))

	menu := d.MessagingMenu()
	require.Len(t, menu, 1)
	assert.Equal(t, "summary", menu[0].Summary)

	require.NoError(t, d.RemoveMenuEntry(menu[0].ID))
	assert.Empty(t, d.MessagingMenu())
	assert.ErrorIs(t, d.RemoveMenuEntry(menu[0].ID), ErrNotDisplayed)
}

func TestNotifySound(t *testing.T) {
	d := NewDisplay(logging.Discard())

	d.Notify(Notification{Sound: DefaultSound})
	d.Notify(Notification{})
	d.Notify(Notification{Sound: "message.ogg"})

	assert.Equal(t, []string{DefaultSound, "message.ogg"}, d.SoundsPlayed())
}

func TestNotifyEmblem(t *testing.T) {
	d := NewDisplay(logging.Discard())
	assert.Equal(t, Emblem{}, d.Emblem())

	d.Notify(Notification{Emblem: &Emblem{Count: 2, Visible: true}})
	assert.Equal(t, Emblem{Count: 2, Visible: true}, d.Emblem())

	d.Notify(Notification{Card: &Card{Summary: "no emblem", Popup: true}})
	assert.Equal(t, Emblem{Count: 2, Visible: true}, d.Emblem())

	d.SetEmblem(Emblem{})
	assert.Equal(t, Emblem{}, d.Emblem())
}
