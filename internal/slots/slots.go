// Package slots computes bookable time slots for a single day from a
// recurring weekly schedule and the intervals already booked on that day.
//
// Generate is a pure function of its Request: the caller freezes "now" once
// and passes it in, so identical requests always yield identical slots.
package slots

import (
	"fmt"
	"strings"
	"time"
)

// LongSlotMinutes is the duration from which slots are laid end to end
// instead of on the fixed grid (half-day and full-day trial shifts).
const LongSlotMinutes = 240

// GridMinutes is the start-time grid for short slots.
const GridMinutes = 30

// Window is a daily opening window in local "HH:MM" form, end exclusive.
type Window struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

type DaySchedule struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Windows []Window `json:"windows" yaml:"windows"`
}

// WeeklySchedule is keyed by lower-case English weekday name ("monday").
type WeeklySchedule map[string]DaySchedule

// Interval is a half-open booked interval [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

type TimeSlot struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Available bool      `json:"available"`
}

type Request struct {
	// Date selects the day; its location is the schedule's location.
	Date         time.Time
	Schedule     WeeklySchedule
	SlotDuration int
	Buffer       int
	MinNotice    int // hours
	Bookings     []Interval
	Now          time.Time
}

// StepFor returns the distance between consecutive slot starts, excluding buffer.
func StepFor(durationMinutes int) int {
	if durationMinutes >= LongSlotMinutes {
		return durationMinutes
	}
	return GridMinutes
}

// Overlaps is the half-open interval test; touching intervals do not overlap.
func Overlaps(start, end time.Time, b Interval) bool {
	return start.Before(b.End) && end.After(b.Start)
}

// Generate returns every candidate slot for req.Date in chronological order.
// Slots that fall inside the notice window or collide with a booking are kept
// with Available=false. A negative Buffer counts as zero.
func Generate(req Request) []TimeSlot {
	if req.SlotDuration <= 0 {
		return nil
	}
	day, ok := req.Schedule[weekdayKey(req.Date.Weekday())]
	if !ok || !day.Enabled || len(day.Windows) == 0 {
		return nil
	}
	duration := time.Duration(req.SlotDuration) * time.Minute
	advance := time.Duration(StepFor(req.SlotDuration)+max(req.Buffer, 0)) * time.Minute
	noticeCutoff := req.Now.Add(time.Duration(req.MinNotice) * time.Hour)

	var out []TimeSlot
	for _, w := range day.Windows {
		winStart, winEnd, err := w.On(req.Date)
		if err != nil {
			continue
		}
		for start := winStart; !start.Add(duration).After(winEnd); start = start.Add(advance) {
			end := start.Add(duration)
			out = append(out, TimeSlot{
				Start:     start,
				End:       end,
				Available: start.After(noticeCutoff) && !conflicts(start, end, req.Bookings),
			})
		}
	}
	return out
}

func conflicts(start, end time.Time, bookings []Interval) bool {
	for _, b := range bookings {
		if Overlaps(start, end, b) {
			return true
		}
	}
	return false
}

// On anchors the window to the calendar day of date, in date's location.
func (w Window) On(date time.Time) (time.Time, time.Time, error) {
	sh, sm, err := ParseClock(w.Start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	eh, em, err := ParseClock(w.End)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	y, m, d := date.Date()
	loc := date.Location()
	return time.Date(y, m, d, sh, sm, 0, 0, loc), time.Date(y, m, d, eh, em, 0, 0, loc), nil
}

// Validate checks both clocks parse and the window is not empty.
func (w Window) Validate() error {
	sh, sm, err := ParseClock(w.Start)
	if err != nil {
		return err
	}
	eh, em, err := ParseClock(w.End)
	if err != nil {
		return err
	}
	if eh*60+em <= sh*60+sm {
		return fmt.Errorf("window %s-%s ends before it starts", w.Start, w.End)
	}
	return nil
}

// ParseClock parses "HH:MM" (24h). "24:00" is accepted as end of day.
func ParseClock(s string) (int, int, error) {
	var h, m int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d:%d", &h, &m); err != nil {
		return 0, 0, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, 0, fmt.Errorf("invalid clock %q", s)
	}
	return h, m, nil
}

func weekdayKey(d time.Weekday) string {
	return strings.ToLower(d.String())
}

// WeekdayKeys lists the accepted schedule keys.
func WeekdayKeys() []string {
	keys := make([]string, 0, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		keys = append(keys, weekdayKey(d))
	}
	return keys
}
