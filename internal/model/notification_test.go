package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEventTime_ApplicationDateWins(t *testing.T) {
	n := Notification{
		Type:            TypeLeaveRequest,
		ApplicationDate: "2026-03-01T10:00:00Z",
		Time:            "2026-03-02T10:00:00Z",
	}

	want := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if got := n.EventTime(); !got.Equal(want) {
		t.Errorf("expected applicationDate to win, got %v", got)
	}
}

func TestEventTime_FallsBackToTime(t *testing.T) {
	n := Notification{Type: TypeGrade, Time: "2026-03-02T10:00:00Z"}

	want := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	if got := n.EventTime(); !got.Equal(want) {
		t.Errorf("expected time field, got %v", got)
	}
}

func TestEventTime_DateOnlyLayout(t *testing.T) {
	n := Notification{ApplicationDate: "2026-03-01"}
	if n.EventTime().IsZero() {
		t.Error("date-only timestamps should parse")
	}
}

func TestEventTime_MissingIsZero(t *testing.T) {
	n := Notification{Type: TypeAssignment}
	if !n.EventTime().IsZero() {
		t.Errorf("expected zero time, got %v", n.EventTime())
	}
}

func TestDisplayAmount_ExplicitField(t *testing.T) {
	amt := 99.5
	n := Notification{Type: TypePayment, Amount: &amt, Message: "Paid $250.00"}

	if got := n.DisplayAmount(); got != "$99.50" {
		t.Errorf("explicit amount should win over message text, got %q", got)
	}
}

func TestDisplayAmount_MessageFallback(t *testing.T) {
	n := Notification{Type: TypePayment, Message: "Paid $250.00"}

	if got := n.DisplayAmount(); got != "$250.00" {
		t.Errorf("expected fallback extraction to yield $250.00, got %q", got)
	}
}

func TestDisplayAmount_ThousandsSeparator(t *testing.T) {
	n := Notification{Type: TypeFeeUpdated, Message: "Semester fee is now $1,250.75 effective May"}

	if got := n.DisplayAmount(); got != "$1,250.75" {
		t.Errorf("expected $1,250.75, got %q", got)
	}
}

func TestDisplayAmount_NoAmountAnywhere(t *testing.T) {
	n := Notification{Type: TypePayment, Message: "Payment settled"}

	if got := n.DisplayAmount(); got != "" {
		t.Errorf("expected empty display amount, got %q", got)
	}
}

func TestDisplayAmount_ZeroIsDistinguishable(t *testing.T) {
	zero := 0.0
	n := Notification{Type: TypePayment, Amount: &zero}

	if got := n.DisplayAmount(); got != "$0.00" {
		t.Errorf("explicit zero amount should render, got %q", got)
	}
}

func TestTypeNormalize_UnknownString(t *testing.T) {
	if got := Type("mystery-event").Normalize(); got != TypeUnknown {
		t.Errorf("expected TypeUnknown, got %q", got)
	}
	if got := TypeGrade.Normalize(); got != TypeGrade {
		t.Errorf("known types must survive normalization, got %q", got)
	}
}

func TestSummary_UnknownTypeStillRenders(t *testing.T) {
	n := Notification{Type: "mystery-event", Message: "something happened"}
	if got := n.Summary(); got != "something happened" {
		t.Errorf("unknown type should fall back to its message, got %q", got)
	}

	empty := Notification{Type: "mystery-event"}
	if got := empty.Summary(); got == "" {
		t.Error("summary must never be empty")
	}
}

func TestNotification_DecodesPortalPayload(t *testing.T) {
	payload := `{
		"id": "n-17",
		"type": "grade",
		"courseName": "Algorithms",
		"point": 18,
		"outOf": 20,
		"time": "2026-02-10T08:30:00Z",
		"seen": false
	}`

	var n Notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}

	if n.ID != "n-17" || n.Type != TypeGrade || n.CourseName != "Algorithms" {
		t.Errorf("unexpected decode result: %+v", n)
	}
	if n.Point != 18 || n.OutOf != 20 {
		t.Errorf("grade fields lost: %+v", n)
	}
}
