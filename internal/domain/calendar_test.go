package domain

import (
	"errors"
	"testing"
	"time"
)

func TestParseWeekdays(t *testing.T) {
	cases := map[string][]Weekday{
		"Mon,Wed,Fri":      {Monday, Wednesday, Friday},
		"mon, wed , FRI":   {Monday, Wednesday, Friday},
		"1,3,5":            {Monday, Wednesday, Friday},
		"7":                {Sunday},
		"sun,1,xyz,Mon":    {Monday, Sunday},
		"tue,Tue,2":        {Tuesday},
		"Sat , sun":        {Saturday, Sunday},
		"mon,tue,wed,thu,fri,sat,sun": {Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday},
	}
	for input, expected := range cases {
		set, err := ParseWeekdays(input)
		if err != nil {
			t.Fatalf("не ожидали ошибку для %q: %v", input, err)
		}
		days := set.Days()
		if len(days) != len(expected) {
			t.Fatalf("%q: ожидали %v, получили %v", input, expected, days)
		}
		for i := range days {
			if days[i] != expected[i] {
				t.Fatalf("%q: ожидали %v, получили %v", input, expected, days)
			}
		}
	}
}

func TestParseWeekdaysRejectsEmpty(t *testing.T) {
	for _, input := range []string{"", "  ", "monday", "0,8", "M,T"} {
		if _, err := ParseWeekdays(input); !errors.Is(err, ErrNoWeekdays) {
			t.Fatalf("ожидали ErrNoWeekdays для %q, получили %v", input, err)
		}
	}
}

func TestExpandHourlyRange(t *testing.T) {
	cases := []struct {
		name       string
		start, end int
		expected   []string
	}{
		{"simple", 17, 20, []string{"17:00", "18:00", "19:00", "20:00"}},
		{"wrap", 22, 2, []string{"22:00", "23:00", "00:00", "01:00", "02:00"}},
		{"midnight", 21, 24, []string{"21:00", "22:00", "23:00", "00:00"}},
		{"same hour", 10, 10, []string{
			"10:00", "11:00", "12:00", "13:00", "14:00", "15:00", "16:00", "17:00",
			"18:00", "19:00", "20:00", "21:00", "22:00", "23:00", "00:00", "01:00",
			"02:00", "03:00", "04:00", "05:00", "06:00", "07:00", "08:00", "09:00",
		}},
	}
	for _, tc := range cases {
		slots := ExpandHourlyRange(tc.start, tc.end)
		if len(slots) != len(tc.expected) {
			t.Fatalf("%s: expected %d slots, got %d (%v)", tc.name, len(tc.expected), len(slots), slots)
		}
		for i, slot := range slots {
			if slot.String() != tc.expected[i] {
				t.Fatalf("%s: slot %d: expected %s, got %s", tc.name, i, tc.expected[i], slot)
			}
		}
	}
}

func TestExpandHourlyRangeNineToMidnight(t *testing.T) {
	slots := ExpandHourlyRange(9, 24)
	if len(slots) != 16 {
		t.Fatalf("expected 16 slots for 09..24, got %d", len(slots))
	}
	if slots[0].String() != "09:00" {
		t.Fatalf("expected first slot 09:00, got %s", slots[0])
	}
	if last := slots[len(slots)-1]; last.String() != "00:00" {
		t.Fatalf("hour 24 should normalize to 00:00, got %s", last)
	}
}

func TestParseRangeEnd(t *testing.T) {
	if h, err := ParseRangeEnd("24:00"); err != nil || h != 24 {
		t.Fatalf("expected 24, got %d (%v)", h, err)
	}
	if h, err := ParseRangeEnd("02:30"); err != nil || h != 2 {
		t.Fatalf("expected 2, got %d (%v)", h, err)
	}
	if _, err := ParseRangeEnd("25:00"); !errors.Is(err, ErrInvalidTime) {
		t.Fatalf("expected ErrInvalidTime, got %v", err)
	}
}

func TestParseTimeOfDay(t *testing.T) {
	tm, err := ParseTimeOfDay(" 08:05 ")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if tm.String() != "08:05" {
		t.Fatalf("expected 08:05, got %s", tm)
	}
	for _, bad := range []string{"8-05", "24:00", "12:60", "noon", ""} {
		if _, err := ParseTimeOfDay(bad); !errors.Is(err, ErrInvalidTime) {
			t.Fatalf("expected ErrInvalidTime for %q, got %v", bad, err)
		}
	}
}

func TestParseDateAndCompare(t *testing.T) {
	d, err := ParseDate("2026-03-01")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if d.String() != "2026-03-01" {
		t.Fatalf("ожидали 2026-03-01, получили %s", d)
	}
	if !d.After(Date{Year: 2026, Month: time.February, Day: 28}) {
		t.Fatal("1 марта должно быть позже 28 февраля")
	}
	if d.After(d) {
		t.Fatal("дата не может быть позже самой себя")
	}
	if _, err := ParseDate("01.03.2026"); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("ожидали ErrInvalidDate, получили %v", err)
	}
}

func TestWeekdayOf(t *testing.T) {
	// 2026-10-12 — понедельник.
	base := time.Date(2026, time.October, 12, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		if got := WeekdayOf(base.AddDate(0, 0, i)); got != Weekday(i) {
			t.Fatalf("day %d: expected %v, got %v", i, Weekday(i), got)
		}
	}
}
