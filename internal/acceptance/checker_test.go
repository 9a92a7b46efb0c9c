package acceptance

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"system-image-push/internal/domain"
)

func TestCheck(t *testing.T) {
	now := time.Date(2014, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	const device = 100

	updated := Expectation{StatusCode: http.StatusOK, Dialog: Dialog{Shown: true, Text: domain.UpdatedImageMessage}}
	accepted := Expectation{StatusCode: http.StatusOK}
	rejected := Expectation{StatusCode: http.StatusBadRequest}

	tests := []struct {
		name      string
		candidate Candidate
		want      Expectation
	}{
		{"newer, no expiry", Candidate{BuildNumber: device + 1}, updated},
		{"newer, future expiry", Candidate{BuildNumber: device + 1, ExpireOn: &future}, updated},
		{"newer, expired", Candidate{BuildNumber: device + 1, ExpireOn: &past}, rejected},
		{"equal, no expiry", Candidate{BuildNumber: device}, accepted},
		{"older, no expiry", Candidate{BuildNumber: device - 1}, accepted},
		{"older, expired", Candidate{BuildNumber: device - 1, ExpireOn: &past}, rejected},
		{"equal, future expiry", Candidate{BuildNumber: device, ExpireOn: &future}, accepted},
		{"expiry exactly now", Candidate{BuildNumber: device + 1, ExpireOn: &now}, updated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Check(tt.candidate, device, now))
		})
	}
}

func TestCheck_ExpiredRegardlessOfBuild(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Second)

	for delta := -3; delta <= 3; delta++ {
		got := Check(Candidate{BuildNumber: 50 + delta, ExpireOn: &past}, 50, now)
		assert.Equal(t, http.StatusBadRequest, got.StatusCode, "delta %d", delta)
		assert.False(t, got.Dialog.Shown, "delta %d", delta)
	}
}

func TestExpectation_String(t *testing.T) {
	assert.Equal(t, `OK, dialog "There's an updated system image."`,
		Check(Candidate{BuildNumber: 2}, 1, time.Now()).String())
	assert.Equal(t, "OK, no dialog", Check(Candidate{BuildNumber: 1}, 1, time.Now()).String())
}
