// Package acceptance decides what a device should observe after a
// system-image broadcast is submitted: the status code returned by the
// server and whether the update dialog is shown.
package acceptance

import (
	"net/http"
	"time"

	"system-image-push/internal/domain"
)

// Candidate is the broadcast being submitted.
type Candidate struct {
	BuildNumber int
	ExpireOn    *time.Time
}

// Dialog describes the expected notification dialog. Text is empty when
// Shown is false.
type Dialog struct {
	Shown bool
	Text  string
}

type Expectation struct {
	StatusCode int
	Dialog     Dialog
}

// Check classifies a candidate against the device build number at
// submission time now. The device lock state plays no part.
func Check(c Candidate, deviceBuild int, now time.Time) Expectation {
	if c.ExpireOn != nil && c.ExpireOn.Before(now) {
		return Expectation{StatusCode: http.StatusBadRequest}
	}

	if c.BuildNumber > deviceBuild {
		return Expectation{
			StatusCode: http.StatusOK,
			Dialog:     Dialog{Shown: true, Text: domain.UpdatedImageMessage},
		}
	}

	// equal or older: valid but not novel
	return Expectation{StatusCode: http.StatusOK}
}

func (e Expectation) String() string {
	s := http.StatusText(e.StatusCode)
	if e.Dialog.Shown {
		return s + ", dialog " + `"` + e.Dialog.Text + `"`
	}
	return s + ", no dialog"
}
