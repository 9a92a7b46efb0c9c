package ui

// Touch simulates input on a display.
type Touch struct {
	display *Display
}

func NewTouch(display *Display) *Touch {
	return &Touch{display: display}
}

// Tap presses dialog, which dismisses it.
func (t *Touch) Tap(dialog Dialog) error {
	return t.display.Dismiss(dialog)
}
