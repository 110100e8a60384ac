package google

import (
	"context"
	"fmt"
	"sort"
	"time"

	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/email-assistant-core/server/internal/agent/model"
	errx "github.com/email-assistant-core/server/internal/core/error"
)

const slotStep = 15 * time.Minute

// CalendarClient answers availability questions over one calendar.
type CalendarClient struct {
	svc        *calendar.Service
	calendarID string
	loc        *time.Location
	dayStart   time.Duration // offset from midnight
	dayEnd     time.Duration
}

func NewCalendarClient(ctx context.Context, cfg model.CalendarConfig, opts ...option.ClientOption) (*CalendarClient, error) {
	loc, err := time.LoadLocation(cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("load calendar timezone %q: %w", cfg.Location, err)
	}
	start, err := parseClock(cfg.DayStart)
	if err != nil {
		return nil, err
	}
	end, err := parseClock(cfg.DayEnd)
	if err != nil {
		return nil, err
	}
	if end <= start {
		return nil, fmt.Errorf("working day end %s must be after start %s", cfg.DayEnd, cfg.DayStart)
	}

	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar service: %w", err)
	}
	return &CalendarClient{svc: svc, calendarID: cfg.CalendarID, loc: loc, dayStart: start, dayEnd: end}, nil
}

func (c *CalendarClient) Location() *time.Location {
	return c.loc
}

// workingHours returns the working window of the day containing day.
func (c *CalendarClient) workingHours(day time.Time) (time.Time, time.Time) {
	d := day.In(c.loc)
	midnight := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, c.loc)
	return midnight.Add(c.dayStart), midnight.Add(c.dayEnd)
}

// EventsOn lists busy intervals overlapping the working hours of day.
// Transparent and all-day events do not block time.
func (c *CalendarClient) EventsOn(ctx context.Context, day time.Time) ([]model.TimeSlot, error) {
	from, to := c.workingHours(day)
	events, err := c.svc.Events.List(c.calendarID).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, errx.WrapGoogle(err)
	}

	var busy []model.TimeSlot
	for _, ev := range events.Items {
		if ev.Transparency == "transparent" || ev.Status == "cancelled" {
			continue
		}
		if ev.Start == nil || ev.End == nil || ev.Start.DateTime == "" {
			continue
		}
		start, err := time.Parse(time.RFC3339, ev.Start.DateTime)
		if err != nil {
			continue
		}
		end, err := time.Parse(time.RFC3339, ev.End.DateTime)
		if err != nil {
			continue
		}
		busy = append(busy, model.TimeSlot{Start: start.In(c.loc), End: end.In(c.loc)})
	}
	return busy, nil
}

func (c *CalendarClient) FreeSlots(ctx context.Context, day time.Time, minDuration time.Duration) ([]model.TimeSlot, error) {
	busy, err := c.EventsOn(ctx, day)
	if err != nil {
		return nil, err
	}
	from, to := c.workingHours(day)
	return computeFreeSlots(from, to, busy, minDuration), nil
}

func (c *CalendarClient) CreateEvent(ctx context.Context, req model.MeetingRequest) (*model.ScheduledMeeting, error) {
	ev := &calendar.Event{
		Summary: req.Subject,
		Start:   &calendar.EventDateTime{DateTime: req.Start.Format(time.RFC3339), TimeZone: c.loc.String()},
		End:     &calendar.EventDateTime{DateTime: req.End.Format(time.RFC3339), TimeZone: c.loc.String()},
	}
	for _, a := range req.Attendees {
		ev.Attendees = append(ev.Attendees, &calendar.EventAttendee{Email: a})
	}

	created, err := c.svc.Events.Insert(c.calendarID, ev).SendUpdates("all").Context(ctx).Do()
	if err != nil {
		return nil, errx.WrapGoogle(err)
	}
	return &model.ScheduledMeeting{ID: created.Id, HTMLLink: created.HtmlLink, Start: req.Start, End: req.End}, nil
}

// computeFreeSlots returns the gaps of at least minDuration between busy
// intervals inside [from, to). Gap starts are rounded up to the slot step.
func computeFreeSlots(from, to time.Time, busy []model.TimeSlot, minDuration time.Duration) []model.TimeSlot {
	sorted := append([]model.TimeSlot(nil), busy...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	var free []model.TimeSlot
	cursor := from
	emit := func(end time.Time) {
		start := roundUp(cursor, from)
		if end.After(to) {
			end = to
		}
		if slot := (model.TimeSlot{Start: start, End: end}); slot.Duration() > 0 && slot.Duration() >= minDuration {
			free = append(free, slot)
		}
	}
	for _, b := range sorted {
		if !b.End.After(cursor) {
			continue
		}
		if b.Start.After(cursor) {
			emit(b.Start)
		}
		if b.End.After(cursor) {
			cursor = b.End
		}
		if !cursor.Before(to) {
			return free
		}
	}
	emit(to)
	return free
}

// roundUp aligns t to the slot step counted from origin.
func roundUp(t, origin time.Time) time.Time {
	offset := t.Sub(origin)
	if rem := offset % slotStep; rem != 0 {
		return t.Add(slotStep - rem)
	}
	return t
}

func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse working hour %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

var (
	_ model.Calendar = (*CalendarClient)(nil)
	_ model.Mailer   = (*GmailClient)(nil)
)
