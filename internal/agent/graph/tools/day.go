package tools

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var phrases = newPhraseParser()

func newPhraseParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

var dayLayouts = []string{
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
	"January 2 2006",
	"2 January 2006",
	"01/02/2006",
}

var shortDayLayouts = []string{
	"January 2",
	"Jan 2",
	"2 January",
}

var clockLayouts = []string{"15:04", "3:04PM", "3PM"}

// ResolveDay turns a model supplied day ("tomorrow", "next friday",
// "in two days", "2025-03-14") into midnight of that day in loc. A bare
// weekday means the next such day after today.
func ResolveDay(s string, now time.Time, loc *time.Location) (time.Time, error) {
	now = now.In(loc)
	today := midnight(now)

	raw := strings.TrimSpace(s)
	if raw == "" {
		return today, nil
	}
	for _, layout := range dayLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, nil
		}
	}
	for _, layout := range shortDayLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			d := time.Date(today.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
			if d.Before(today) {
				d = d.AddDate(1, 0, 0)
			}
			return d, nil
		}
	}

	r, err := phrases.Parse(raw, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognised day %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("unrecognised day %q", s)
	}
	return midnight(r.Time.In(loc)), nil
}

// ResolveClock parses "14:30", "2pm", "2:30 PM" or a phrase carrying a clock
// time ("at 4pm") on day.
func ResolveClock(s string, day time.Time) (time.Time, error) {
	raw := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
	for _, layout := range clockLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return atClock(day, t.Hour(), t.Minute()), nil
		}
	}

	r, err := phrases.Parse(strings.TrimSpace(s), midnight(day))
	if err == nil && r != nil {
		// midnight means the phrase named no clock time
		if h, m := r.Time.Hour(), r.Time.Minute(); h != 0 || m != 0 {
			return atClock(day, h, m), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func atClock(day time.Time, hour, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
}
