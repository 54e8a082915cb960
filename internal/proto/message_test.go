package proto

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestNewMessage(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 5, 7, 0, time.UTC)
	msg := NewMessage("A", "B", "hi", now)

	if msg.From != "A" || msg.To != "B" || msg.Content != "hi" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if !msg.Date.Time().Equal(now) {
		t.Fatalf("expected date %v, got %v", now, msg.Date.Time())
	}
}

func TestMessageWireFormat(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 5, 7, 120*int(time.Millisecond), time.FixedZone("CET", 3600))
	raw, err := json.Marshal(NewMessage("alice", "bob", "hello", now))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	want := `{"from":"alice","to":"bob","content":"hello","date":"2024-03-01T08:05:07.120Z"}`
	if string(raw) != want {
		t.Fatalf("unexpected payload:\n got %s\nwant %s", raw, want)
	}
}

func TestUserStatusWireFormat(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 5, 7, 0, time.UTC)
	raw, err := json.Marshal(NewUserStatus("alice", "Alice Liddell", StatusAway, now))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	want := `{"userId":"alice","fullName":"Alice Liddell","status":"AWAY","statusTime":"2024-03-01T09:05:07.000Z"}`
	if string(raw) != want {
		t.Fatalf("unexpected payload:\n got %s\nwant %s", raw, want)
	}
}

func TestTimestampDecodesStringAndMillis(t *testing.T) {
	want := time.Date(2024, 3, 1, 9, 5, 7, 0, time.UTC)

	tests := []struct {
		name string
		body string
	}{
		{name: "iso string", body: `{"statusTime":"2024-03-01T09:05:07.000Z"}`},
		{name: "offset string", body: `{"statusTime":"2024-03-01T11:05:07+02:00"}`},
		{name: "epoch millis", body: `{"statusTime":1709283907000}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var us UserStatus
			if err := json.Unmarshal([]byte(tt.body), &us); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if !us.StatusTime.Time().Equal(want) {
				t.Fatalf("expected %v, got %v", want, us.StatusTime.Time())
			}
		})
	}
}

func TestTimestampDecodesLenientForms(t *testing.T) {
	tests := []struct {
		name string
		body string
		want time.Time
	}{
		{name: "zone-less local", body: `{"date":"2024-01-02T03:04:05"}`, want: time.Date(2024, 1, 2, 3, 4, 5, 0, time.Local)},
		{name: "zone-less fraction", body: `{"date":"2024-01-02T03:04:05.250"}`, want: time.Date(2024, 1, 2, 3, 4, 5, 250*int(time.Millisecond), time.Local)},
		{name: "space separated", body: `{"date":"2024-01-02 03:04:05"}`, want: time.Date(2024, 1, 2, 3, 4, 5, 0, time.Local)},
		{name: "float millis", body: `{"date":1704164645000.0}`, want: time.UnixMilli(1704164645000)},
		{name: "exponent millis", body: `{"date":1.704164645e12}`, want: time.UnixMilli(1704164645000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var msg Message
			if err := json.Unmarshal([]byte(tt.body), &msg); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if !msg.Date.Time().Equal(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, msg.Date.Time())
			}
		})
	}
}

func TestTimestampRejectsGarbage(t *testing.T) {
	var msg Message
	err := json.Unmarshal([]byte(`{"date":"yesterday"}`), &msg)
	if err == nil || !strings.Contains(err.Error(), "parse timestamp") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestStatusMessage(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 5, 7, 0, time.UTC)

	msg := StatusMessage(UserStatus{FullName: "Bob", Status: StatusAway, StatusTime: Timestamp(at)})
	if msg.From != "Bob" || msg.To != "" || msg.Content != "AWAY" || !msg.Date.Time().Equal(at) {
		t.Fatalf("unexpected adapted message: %+v", msg)
	}

	msg = StatusMessage(UserStatus{UserID: "bob", Status: "BUSY"})
	if msg.From != "bob" || msg.Content != "BUSY" {
		t.Fatalf("expected user id fallback, got %+v", msg)
	}
}

func TestParseStatus(t *testing.T) {
	for in, want := range map[string]Status{
		"available": StatusAvailable,
		" Away ":    StatusAway,
		"OFFLINE":   StatusOffline,
	} {
		got, err := ParseStatus(in)
		if err != nil || got != want {
			t.Fatalf("ParseStatus(%q) = %q, %v; want %q", in, got, err, want)
		}
	}

	if _, err := ParseStatus("busy"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestDestinations(t *testing.T) {
	if got := PrivateMessageDestination("bob"); got != "/app/private.message.bob" {
		t.Fatalf("unexpected destination %q", got)
	}
	if got := PrivateMessageTopic("alice"); got != "/topic/private.message.alice" {
		t.Fatalf("unexpected topic %q", got)
	}
}
