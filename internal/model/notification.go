package model

import (
	"fmt"
	"regexp"
	"time"
)

// Type identifies the kind of domain event a notification was raised for.
type Type string

const (
	TypeLeaveRequest      Type = "leave-request"
	TypeCourseAssigned    Type = "course-assigned"
	TypeStudentEnrolled   Type = "student-enrolled"
	TypeAssignment        Type = "assignment"
	TypeGrade             Type = "grade"
	TypeFeeUpdated        Type = "fee-updated"
	TypePayment           Type = "payment"
	TypeEnrollmentRequest Type = "enrollment-request"
	TypeUnknown           Type = "unknown"
)

// knownTypes is the closed set of notification types the portal emits.
var knownTypes = map[Type]bool{
	TypeLeaveRequest:      true,
	TypeCourseAssigned:    true,
	TypeStudentEnrolled:   true,
	TypeAssignment:        true,
	TypeGrade:             true,
	TypeFeeUpdated:        true,
	TypePayment:           true,
	TypeEnrollmentRequest: true,
}

// Normalize maps any unrecognized type string to TypeUnknown so callers
// can switch over a closed set.
func (t Type) Normalize() Type {
	if knownTypes[t] {
		return t
	}
	return TypeUnknown
}

// Notification is the unit of delivery from the portal. The server sends a
// different field subset per type; unused fields decode to zero values.
type Notification struct {
	// ID is unique within a session's store.
	ID string `json:"id"`

	// Type tags which variant fields below are meaningful.
	Type Type `json:"type"`

	// Seen reports whether the user has viewed this notification.
	// The authoritative copy lives server-side.
	Seen bool `json:"seen"`

	// Email identifies the person the event concerns
	// (leave requests, enrollments, payments).
	Email string `json:"email,omitempty"`

	// Name is the display name for person-centric events.
	Name string `json:"name,omitempty"`

	// Reason is the free-text justification on a leave request.
	Reason string `json:"reason,omitempty"`

	// CourseName names the course for course/assignment/grade events.
	CourseName string `json:"courseName,omitempty"`

	// Point and OutOf carry a grade release ("18 out of 20").
	Point float64 `json:"point,omitempty"`
	OutOf float64 `json:"outOf,omitempty"`

	// Amount is the payment or fee figure. It is a pointer because some
	// payment events omit it and only mention the figure in Message.
	Amount *float64 `json:"amount,omitempty"`

	// TransactionID references the payment in the billing system.
	TransactionID string `json:"transactionId,omitempty"`

	// Message is free text accompanying the event.
	Message string `json:"message,omitempty"`

	// Time is the event timestamp for most types.
	Time string `json:"time,omitempty"`

	// ApplicationDate is the event timestamp for application-derived
	// types (leave requests, enrollment requests). Either field counts
	// as the event time; see EventTime.
	ApplicationDate string `json:"applicationDate,omitempty"`
}

// timeLayouts are the timestamp formats the portal has been observed to emit.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// EventTime resolves the authoritative ordering key for this notification.
// ApplicationDate and Time are equivalent event times; whichever is present
// wins, ApplicationDate first. Unparseable or absent timestamps yield the
// zero time, which sorts last.
func (n Notification) EventTime() time.Time {
	for _, raw := range []string{n.ApplicationDate, n.Time} {
		if raw == "" {
			continue
		}
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, raw); err == nil {
				return ts
			}
		}
	}
	return time.Time{}
}

// amountPattern matches a dollar figure in free text, e.g. "$1,250.00".
var amountPattern = regexp.MustCompile(`\$\s?([0-9][0-9,]*(?:\.[0-9]+)?)`)

// DisplayAmount returns the renderable payment/fee amount. When the server
// omitted the amount field, the figure is recovered from the free-text
// message. Returns "" when neither source yields one, so a genuine zero
// amount stays distinguishable from a missing one.
func (n Notification) DisplayAmount() string {
	if n.Amount != nil {
		return fmt.Sprintf("$%.2f", *n.Amount)
	}
	if m := amountPattern.FindStringSubmatch(n.Message); m != nil {
		return "$" + m[1]
	}
	return ""
}

// Summary returns a one-line human-readable description of the event,
// suitable for list rendering.
func (n Notification) Summary() string {
	switch n.Type.Normalize() {
	case TypeLeaveRequest:
		return fmt.Sprintf("Leave request from %s: %s", n.Email, n.Reason)
	case TypeCourseAssigned:
		return fmt.Sprintf("Assigned to course %s", n.CourseName)
	case TypeStudentEnrolled:
		return fmt.Sprintf("%s enrolled in %s", n.displayName(), n.CourseName)
	case TypeAssignment:
		return fmt.Sprintf("New assignment in %s", n.CourseName)
	case TypeGrade:
		return fmt.Sprintf("Grade released for %s: %g/%g", n.CourseName, n.Point, n.OutOf)
	case TypeFeeUpdated:
		if amt := n.DisplayAmount(); amt != "" {
			return fmt.Sprintf("Fee updated: %s", amt)
		}
		return "Fee updated"
	case TypePayment:
		if amt := n.DisplayAmount(); amt != "" {
			return fmt.Sprintf("Payment received: %s (ref %s)", amt, n.TransactionID)
		}
		return fmt.Sprintf("Payment received (ref %s)", n.TransactionID)
	case TypeEnrollmentRequest:
		return fmt.Sprintf("Enrollment request from %s", n.displayName())
	default:
		if n.Message != "" {
			return n.Message
		}
		return "Notification"
	}
}

func (n Notification) displayName() string {
	if n.Name != "" {
		return n.Name
	}
	return n.Email
}
