package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/email-assistant-core/server/internal/agent/model"
	logx "github.com/email-assistant-core/server/pkg/logger"
)

const (
	dayFormat  = "Monday, January 2, 2006"
	slotFormat = "3:04 PM"
	slotStep   = 15 * time.Minute
)

type ScheduleMeetingInput struct {
	Attendees       []string `json:"attendees"`
	Subject         string   `json:"subject"`
	DurationMinutes int      `json:"duration_minutes"`
	PreferredDay    string   `json:"preferred_day"`
	StartTime       string   `json:"start_time,omitempty"`
}

type ScheduleMeetingOutput struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	EventID  string `json:"event_id,omitempty"`
	HTMLLink string `json:"html_link,omitempty"`
	Start    string `json:"start,omitempty"`
	End      string `json:"end,omitempty"`
}

type CheckAvailabilityInput struct {
	Day string `json:"day"`
}

type CheckAvailabilityOutput struct {
	Day     string   `json:"day"`
	Slots   []string `json:"slots"`
	Message string   `json:"message"`
}

func createScheduleMeetingTool(d Deps) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolScheduleMeeting,
			Desc: "Schedule a calendar meeting and invite the attendees. Without start_time the first free slot of the preferred day is booked.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"attendees": {
					Type:     schema.Array,
					Desc:     "Email addresses of the people to invite",
					ElemInfo: &schema.ParameterInfo{Type: schema.String},
					Required: true,
				},
				"subject": {
					Type:     schema.String,
					Desc:     "Meeting title",
					Required: true,
				},
				"duration_minutes": {
					Type:     schema.Integer,
					Desc:     "Meeting length in minutes (default 30)",
					Required: true,
				},
				"preferred_day": {
					Type:     schema.String,
					Desc:     "Day of the meeting: today, tomorrow, a weekday name such as Tuesday, or a date such as 2025-03-14",
					Required: true,
				},
				"start_time": {
					Type: schema.String,
					Desc: "Optional start time such as 14:30 or 2:30 PM. Omit to use the first free slot",
				},
			}),
		},
		instrumented(ToolScheduleMeeting, func(ctx context.Context, in *ScheduleMeetingInput) (*ScheduleMeetingOutput, error) {
			loc := d.Calendar.Location()
			now := d.now().In(loc)

			day, err := ResolveDay(in.PreferredDay, now, loc)
			if err != nil {
				return &ScheduleMeetingOutput{Status: "rejected", Message: err.Error()}, nil
			}
			attendees := cleanAttendees(in.Attendees)
			if len(attendees) == 0 {
				return &ScheduleMeetingOutput{Status: "rejected", Message: "at least one attendee is required"}, nil
			}
			minutes := in.DurationMinutes
			if minutes <= 0 {
				minutes = defaultMeetingMinutes
			}
			if minutes > maxMeetingMinutes {
				minutes = maxMeetingMinutes
			}
			duration := time.Duration(minutes) * time.Minute

			var start time.Time
			if strings.TrimSpace(in.StartTime) != "" {
				start, err = ResolveClock(in.StartTime, day)
				if err != nil {
					return &ScheduleMeetingOutput{Status: "rejected", Message: err.Error()}, nil
				}
			} else {
				slots, err := d.Calendar.FreeSlots(ctx, day, duration)
				if err != nil {
					return nil, err
				}
				var ok bool
				start, ok = FirstFit(slots, duration, now)
				if !ok {
					return &ScheduleMeetingOutput{
						Status:  "unavailable",
						Message: fmt.Sprintf("No free %d minute slot on %s", minutes, day.Format(dayFormat)),
					}, nil
				}
			}

			ev, err := d.Calendar.CreateEvent(ctx, model.MeetingRequest{
				Subject:   in.Subject,
				Attendees: attendees,
				Start:     start,
				End:       start.Add(duration),
			})
			if err != nil {
				logx.Error().Err(err).Str("tool", ToolScheduleMeeting).Msg("create event failed")
				return nil, err
			}
			return &ScheduleMeetingOutput{
				Status:   "scheduled",
				Message:  fmt.Sprintf("Meeting '%s' scheduled for %s at %s with %d attendees", in.Subject, day.Format(dayFormat), start.Format(slotFormat), len(attendees)),
				EventID:  ev.ID,
				HTMLLink: ev.HTMLLink,
				Start:    ev.Start.Format(time.RFC3339),
				End:      ev.End.Format(time.RFC3339),
			}, nil
		}),
	)
}

func createCheckAvailabilityTool(d Deps) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolCheckAvailability,
			Desc: "Check calendar availability for a given day. Returns the free time slots within working hours.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"day": {
					Type:     schema.String,
					Desc:     "Day to check: today, tomorrow, a weekday name such as Tuesday, or a date such as 2025-03-14",
					Required: true,
				},
			}),
		},
		instrumented(ToolCheckAvailability, func(ctx context.Context, in *CheckAvailabilityInput) (*CheckAvailabilityOutput, error) {
			loc := d.Calendar.Location()
			day, err := ResolveDay(in.Day, d.now(), loc)
			if err != nil {
				return &CheckAvailabilityOutput{Day: in.Day, Slots: []string{}, Message: err.Error()}, nil
			}

			slots, err := d.Calendar.FreeSlots(ctx, day, slotStep)
			if err != nil {
				return nil, err
			}
			out := &CheckAvailabilityOutput{Day: day.Format(dayFormat), Slots: make([]string, 0, len(slots))}
			for _, s := range slots {
				out.Slots = append(out.Slots, s.Start.Format(slotFormat)+" - "+s.End.Format(slotFormat))
			}
			if len(out.Slots) == 0 {
				out.Message = fmt.Sprintf("No available times on %s", out.Day)
			} else {
				out.Message = fmt.Sprintf("Available times on %s: %s", out.Day, strings.Join(out.Slots, ", "))
			}
			return out, nil
		}),
	)
}

// FirstFit returns the earliest start, not before now rounded up to the slot
// step, at which a meeting of duration fits in one of slots.
func FirstFit(slots []model.TimeSlot, duration time.Duration, now time.Time) (time.Time, bool) {
	earliest := now.Truncate(slotStep)
	if earliest.Before(now) {
		earliest = earliest.Add(slotStep)
	}
	for _, s := range slots {
		start := s.Start
		if start.Before(earliest) {
			start = earliest
		}
		if !start.Add(duration).After(s.End) {
			return start, true
		}
	}
	return time.Time{}, false
}

func cleanAttendees(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, a := range in {
		a = strings.TrimSpace(a)
		if a == "" || seen[strings.ToLower(a)] {
			continue
		}
		seen[strings.ToLower(a)] = true
		out = append(out, a)
	}
	return out
}
