package slots_test

import (
	"reflect"
	"testing"
	"time"

	"recruitline/internal/slots"
)

var weekdays = slots.WeeklySchedule{
	"monday":  {Enabled: true, Windows: []slots.Window{{Start: "09:00", End: "12:00"}}},
	"tuesday": {Enabled: false, Windows: []slots.Window{{Start: "09:00", End: "12:00"}}},
	"friday":  {Enabled: true, Windows: []slots.Window{{Start: "08:00", End: "17:00"}}},
}

// 2024-01-01 is a Monday.
var monday = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return time.Date(2024, 1, 1, h, m, 0, 0, time.UTC)
}

func TestGenerateDisabledOrMissingDay(t *testing.T) {
	tuesday := monday.AddDate(0, 0, 1)
	if got := slots.Generate(slots.Request{Date: tuesday, Schedule: weekdays, SlotDuration: 30, Now: monday}); len(got) != 0 {
		t.Fatalf("disabled day: expected no slots, got %d", len(got))
	}
	sunday := monday.AddDate(0, 0, -1)
	if got := slots.Generate(slots.Request{Date: sunday, Schedule: weekdays, SlotDuration: 30, Now: monday}); len(got) != 0 {
		t.Fatalf("unconfigured day: expected no slots, got %d", len(got))
	}
}

func TestGenerateShortSlotsUseGrid(t *testing.T) {
	got := slots.Generate(slots.Request{Date: monday, Schedule: weekdays, SlotDuration: 45, Buffer: 15, Now: monday.Add(-48 * time.Hour)})
	// step 30 + buffer 15 => starts every 45 minutes while start+45 <= 12:00
	want := []time.Time{at(9, 0), at(9, 45), at(10, 30), at(11, 15)}
	if len(got) != len(want) {
		t.Fatalf("expected %d slots, got %d: %+v", len(want), len(got), got)
	}
	for i, s := range got {
		if !s.Start.Equal(want[i]) || !s.End.Equal(want[i].Add(45*time.Minute)) || !s.Available {
			t.Fatalf("slot %d: %+v", i, s)
		}
	}
}

func TestNegativeBufferCountsAsZero(t *testing.T) {
	got := slots.Generate(slots.Request{Date: monday, Schedule: weekdays, SlotDuration: 30, Buffer: -30, Now: monday.Add(-48 * time.Hour)})
	if len(got) != 6 {
		t.Fatalf("expected 6 slots on the 30 minute grid, got %d", len(got))
	}
	if !got[1].Start.Equal(at(9, 30)) {
		t.Fatalf("second slot starts %s", got[1].Start)
	}
}

func TestGenerateLongSlotsDoNotOverlap(t *testing.T) {
	friday := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	got := slots.Generate(slots.Request{Date: friday, Schedule: weekdays, SlotDuration: 240, Now: monday})
	if len(got) != 2 {
		t.Fatalf("expected two half-day slots, got %d: %+v", len(got), got)
	}
	if got[0].Start.Hour() != 8 || got[1].Start.Hour() != 12 {
		t.Fatalf("unexpected starts %v %v", got[0].Start, got[1].Start)
	}
	if slots.StepFor(240) != 240 || slots.StepFor(239) != 30 {
		t.Fatalf("unexpected step")
	}
}

func TestNoticeBoundaryIsStrict(t *testing.T) {
	// now + 2h == 09:00 exactly
	now := at(7, 0)
	got := slots.Generate(slots.Request{Date: monday, Schedule: weekdays, SlotDuration: 30, MinNotice: 2, Now: now})
	if got[0].Start != at(9, 0) || got[0].Available {
		t.Fatalf("slot at exact notice boundary must be unavailable: %+v", got[0])
	}
	if !got[1].Available {
		t.Fatalf("later slot should be available: %+v", got[1])
	}
	// one second before the boundary moves the cutoff just below 09:00
	got = slots.Generate(slots.Request{Date: monday, Schedule: weekdays, SlotDuration: 30, MinNotice: 2, Now: now.Add(-time.Second)})
	if !got[0].Available {
		t.Fatalf("slot one second past the boundary must be available: %+v", got[0])
	}
}

func TestConflictIsHalfOpen(t *testing.T) {
	now := monday.Add(-72 * time.Hour)
	touching := []slots.Interval{{Start: at(10, 30), End: at(11, 0)}}
	got := slots.Generate(slots.Request{Date: monday, Schedule: weekdays, SlotDuration: 30, Bookings: touching, Now: now})
	byStart := map[time.Time]bool{}
	for _, s := range got {
		byStart[s.Start] = s.Available
	}
	if !byStart[at(10, 0)] {
		t.Fatalf("[10:00,10:30) touching [10:30,11:00) must be available")
	}
	if byStart[at(10, 30)] {
		t.Fatalf("[10:30,11:00) must be unavailable")
	}

	overlapping := []slots.Interval{{Start: at(10, 15), End: at(10, 45)}}
	got = slots.Generate(slots.Request{Date: monday, Schedule: weekdays, SlotDuration: 30, Bookings: overlapping, Now: now})
	for _, s := range got {
		if s.Start.Equal(at(10, 0)) && s.Available {
			t.Fatalf("[10:00,10:30) overlapping [10:15,10:45) must be unavailable")
		}
	}
	if len(got) != 6 {
		t.Fatalf("unavailable slots must stay in the output, got %d", len(got))
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	req := slots.Request{
		Date: monday, Schedule: weekdays, SlotDuration: 30, Buffer: 10, MinNotice: 1,
		Bookings: []slots.Interval{{Start: at(9, 30), End: at(10, 0)}},
		Now:      at(8, 30),
	}
	a := slots.Generate(req)
	b := slots.Generate(req)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("expected identical output")
	}
	for i := 1; i < len(a); i++ {
		if !a[i].Start.After(a[i-1].Start) {
			t.Fatalf("output not chronological at %d", i)
		}
	}
}

func TestWindowValidate(t *testing.T) {
	if err := (slots.Window{Start: "09:00", End: "08:00"}).Validate(); err == nil {
		t.Fatalf("expected inverted window error")
	}
	if err := (slots.Window{Start: "9am", End: "10:00"}).Validate(); err == nil {
		t.Fatalf("expected parse error")
	}
	if err := (slots.Window{Start: "09:00", End: "24:00"}).Validate(); err != nil {
		t.Fatalf("24:00 end should be valid: %v", err)
	}
}
