package model

import (
	"context"
	"time"
)

// TimeSlot is a half-open interval [Start, End).
type TimeSlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (s TimeSlot) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

type MeetingRequest struct {
	Subject   string
	Attendees []string
	Start     time.Time
	End       time.Time
}

type ScheduledMeeting struct {
	ID       string    `json:"id"`
	HTMLLink string    `json:"html_link,omitempty"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

// Mailer sends mail on behalf of the user and returns the provider message ID.
type Mailer interface {
	SendEmail(ctx context.Context, to, subject, content string) (string, error)
}

// Calendar reads and writes the user's calendar.
type Calendar interface {
	// FreeSlots lists free windows of at least minDuration within the working hours of day.
	FreeSlots(ctx context.Context, day time.Time, minDuration time.Duration) ([]TimeSlot, error)
	CreateEvent(ctx context.Context, req MeetingRequest) (*ScheduledMeeting, error)
	Location() *time.Location
}
