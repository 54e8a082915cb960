package proto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Broker destinations used by the instant messenger server.
const (
	// StatusDestination receives presence updates from clients.
	StatusDestination = "/app/status"
	// PrivateMessagePrefix prefixes per-recipient direct message destinations.
	PrivateMessagePrefix = "/app/private.message."

	// StatusTopic broadcasts presence updates to every subscriber.
	StatusTopic = "/topic/status"
	// PrivateTopicPrefix prefixes the per-user direct message topics.
	PrivateTopicPrefix = "/topic/private.message."
)

// PrivateMessageDestination is where a direct message for recipient is published.
func PrivateMessageDestination(recipient string) string {
	return PrivateMessagePrefix + recipient
}

// PrivateMessageTopic is where direct messages addressed to user arrive.
func PrivateMessageTopic(user string) string {
	return PrivateTopicPrefix + user
}

// SystemSender is the sender name of locally generated notices.
const SystemSender = "System"

// Message is a direct or system message.
type Message struct {
	From    string    `json:"from"`
	To      string    `json:"to"`
	Content string    `json:"content"`
	Date    Timestamp `json:"date"`
}

// NewMessage builds a message stamped with now.
func NewMessage(from, to, content string, now time.Time) Message {
	return Message{
		From:    from,
		To:      to,
		Content: content,
		Date:    Timestamp(now),
	}
}

// SystemMessage builds a local notice with no recipient.
func SystemMessage(content string, now time.Time) Message {
	return NewMessage(SystemSender, "", content, now)
}

// Status is a user's presence.
type Status string

const (
	StatusAvailable Status = "AVAILABLE"
	StatusAway      Status = "AWAY"
	StatusOffline   Status = "OFFLINE"
)

// ParseStatus resolves a publishable status, ignoring case.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToUpper(strings.TrimSpace(s))) {
	case StatusAvailable:
		return StatusAvailable, nil
	case StatusAway:
		return StatusAway, nil
	case StatusOffline:
		return StatusOffline, nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}

// UserStatus is a presence update.
type UserStatus struct {
	UserID     string    `json:"userId"`
	FullName   string    `json:"fullName"`
	Status     Status    `json:"status"`
	StatusTime Timestamp `json:"statusTime"`
}

// NewUserStatus builds a presence update stamped with now.
func NewUserStatus(userID, fullName string, status Status, now time.Time) UserStatus {
	return UserStatus{
		UserID:     userID,
		FullName:   fullName,
		Status:     status,
		StatusTime: Timestamp(now),
	}
}

// StatusMessage presents a presence update as a message so it renders like one.
func StatusMessage(us UserStatus) Message {
	from := us.FullName
	if from == "" {
		from = us.UserID
	}
	return Message{
		From:    from,
		Content: string(us.Status),
		Date:    us.StatusTime,
	}
}

// jsonTimeLayout matches JavaScript's Date.prototype.toJSON.
const jsonTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Timestamp is a point in time on the wire.
// It encodes as an ISO-8601 UTC string with millisecond precision and decodes
// either such a string or a number of milliseconds since the Unix epoch.
type Timestamp time.Time

// Time returns the timestamp as a time.Time.
func (t Timestamp) Time() time.Time {
	return time.Time(t)
}

// IsZero reports whether the timestamp is unset.
func (t Timestamp) IsZero() bool {
	return time.Time(t).IsZero()
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(time.Time(t).UTC().Format(jsonTimeLayout))
}

// localLayouts are zone-less forms (Java LocalDateTime and friends); they are
// read in the local zone.
var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = Timestamp{}
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := parseTimestamp(s)
		if err != nil {
			return err
		}
		*t = Timestamp(parsed)
		return nil
	}

	if millis, err := strconv.ParseInt(string(data), 10, 64); err == nil {
		*t = Timestamp(time.UnixMilli(millis))
		return nil
	}
	millis, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("parse epoch millis %s: %w", data, err)
	}
	*t = Timestamp(time.Unix(0, int64(millis*float64(time.Millisecond))))
	return nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err == nil {
		return parsed, nil
	}
	for _, layout := range localLayouts {
		if local, lerr := time.ParseInLocation(layout, s, time.Local); lerr == nil {
			return local, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
}
