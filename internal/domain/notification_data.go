package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// NotificationData is the system-image state carried by a broadcast.
// On the wire it is keyed by "<image channel>/<device>" and holds
// [build_number, channel_target]. The image channel may itself contain
// slashes; the device is always the last segment.
type NotificationData struct {
	Channel       string
	Device        string
	BuildNumber   int
	ChannelTarget string
}

func (d *NotificationData) Key() string {
	return d.Channel + "/" + d.Device
}

func (d *NotificationData) IncBuildNumber() {
	d.BuildNumber++
}

func (d *NotificationData) DecBuildNumber() {
	d.BuildNumber--
}

// Copy returns an independent copy so tests can mutate it freely.
func (d NotificationData) Copy() NotificationData {
	return d
}

func (d NotificationData) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string][]interface{}{
		d.Key(): {d.BuildNumber, d.ChannelTarget},
	})
}

func (d *NotificationData) UnmarshalJSON(b []byte) error {
	all, err := ParseNotificationData(b)
	if err != nil {
		return err
	}
	if len(all) != 1 {
		return fmt.Errorf("expected exactly one system image entry, got %d", len(all))
	}
	*d = all[0]
	return nil
}

// ParseNotificationData decodes every "<channel>/<device>" entry of a
// broadcast payload, sorted by key.
func ParseNotificationData(b []byte) ([]NotificationData, error) {
	var raw map[string][]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("invalid system image payload: %w", err)
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]NotificationData, 0, len(keys))
	for _, k := range keys {
		i := strings.LastIndex(k, "/")
		if i <= 0 || i == len(k)-1 {
			return nil, fmt.Errorf("invalid system image key %q", k)
		}

		vals := raw[k]
		if len(vals) == 0 {
			return nil, fmt.Errorf("missing build number for %q", k)
		}

		entry := NotificationData{Channel: k[:i], Device: k[i+1:]}
		if err := json.Unmarshal(vals[0], &entry.BuildNumber); err != nil {
			return nil, fmt.Errorf("invalid build number for %q: %w", k, err)
		}
		if len(vals) > 1 {
			if err := json.Unmarshal(vals[1], &entry.ChannelTarget); err != nil {
				return nil, fmt.Errorf("invalid channel target for %q: %w", k, err)
			}
		}
		entries = append(entries, entry)
	}

	return entries, nil
}
