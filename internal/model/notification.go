package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NotificationType classifies what produced a notification on the server.
// The set is open: unknown values are carried through unchanged.
type NotificationType string

const (
	NotificationTypeGeofence NotificationType = "geofence"
	NotificationTypeDevice   NotificationType = "device"
	NotificationTypeSystem   NotificationType = "system"
	NotificationTypeOther    NotificationType = "other"
)

// Geofence event qualifiers carried in EventType.
const (
	EventTypeEntry = "entry"
	EventTypeExit  = "exit"
)

// Priority is a presentational hint only; nothing orders by it.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// RecordID is the server's opaque notification identifier. The dashboard
// emits integers today, but any JSON scalar is accepted and kept verbatim.
type RecordID string

// UnmarshalJSON accepts either a JSON number or a JSON string.
func (id *RecordID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decoding notification id: %w", err)
		}
		*id = RecordID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decoding notification id: %w", err)
	}
	*id = RecordID(n.String())
	return nil
}

// MarshalJSON writes numeric ids back as numbers.
func (id RecordID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// ServerTime is a timestamp produced by the dashboard. The server writes
// Python isoformat() values without a zone; those are read as UTC.
type ServerTime struct {
	time.Time
}

var serverTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
}

// UnmarshalJSON parses RFC 3339 and naive ISO-8601 timestamps.
func (t *ServerTime) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range serverTimeLayouts {
		parsed, err := time.ParseInLocation(layout, s, time.UTC)
		if err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("parsing server time %q", s)
}

// MarshalJSON writes the timestamp as RFC 3339, or null when unset.
func (t ServerTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

// NotificationRecord is a notification as reported by the dashboard API.
// The client only reflects these; it never creates, deletes, or reorders them.
type NotificationRecord struct {
	ID               RecordID         `json:"id"`
	Message          string           `json:"message"`
	NotificationType NotificationType `json:"notification_type"`
	EventType        string           `json:"event_type"`
	Priority         Priority         `json:"priority"`
	IsRead           bool             `json:"is_read"`
	ReadAt           *ServerTime      `json:"read_at,omitempty"`
	Timestamp        ServerTime       `json:"timestamp"`
	DisplayName      string           `json:"display_name"`
	DeviceName       string           `json:"device_name"`
	GeofenceName     string           `json:"geofence_name,omitempty"`
	RuleName         string           `json:"rule_name,omitempty"`
}

// Name returns the label shown for the record's originating device.
// DisplayName takes precedence over DeviceName.
func (r NotificationRecord) Name() string {
	if r.DisplayName != "" {
		return r.DisplayName
	}
	return r.DeviceName
}

// MarkAllResult is what a mark-all-read leaves behind once the server has
// accepted it. ListErr is set when the follow-up fetch failed.
type MarkAllResult struct {
	Records []NotificationRecord
	ListErr error
}
