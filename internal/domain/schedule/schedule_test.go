package schedule

import (
	"errors"
	"testing"
)

func TestParseHHMM(t *testing.T) {
	cases := []struct {
		in     string
		hour   int
		minute int
		ok     bool
	}{
		{"21:30", 21, 30, true},
		{"9:05", 9, 5, true},
		{" 00:00 ", 0, 0, true},
		{"23:59", 23, 59, true},
		{"24:00", 0, 0, false},
		{"12:60", 0, 0, false},
		{"-1:10", 0, 0, false},
		{"1230", 0, 0, false},
		{"12:30:00", 0, 0, false},
		{"ab:cd", 0, 0, false},
		{"", 0, 0, false},
	}
	for _, tc := range cases {
		h, m, err := ParseHHMM(tc.in)
		if tc.ok {
			if err != nil || h != tc.hour || m != tc.minute {
				t.Fatalf("%q expected %d:%d, got %d:%d (err=%v)", tc.in, tc.hour, tc.minute, h, m, err)
			}
		} else if !errors.Is(err, ErrInvalidTime) {
			t.Fatalf("%q expected ErrInvalidTime, got %v", tc.in, err)
		}
	}
}

func TestDailyExpression(t *testing.T) {
	expr, err := DailyExpression("09:00")
	if err != nil || expr != "0 9 * * *" {
		t.Fatalf("unexpected expression %q err=%v", expr, err)
	}
	if _, err := DailyExpression("9am"); err == nil {
		t.Fatalf("expected error for malformed time")
	}
}

func TestMonthlyExpression(t *testing.T) {
	expr, err := MonthlyExpression(31, "23:59")
	if err != nil || expr != "59 23 31 * *" {
		t.Fatalf("unexpected expression %q err=%v", expr, err)
	}
	for _, day := range []int{0, 32, -5} {
		if _, err := MonthlyExpression(day, "10:00"); !errors.Is(err, ErrDayOutOfRange) {
			t.Fatalf("day %d expected ErrDayOutOfRange, got %v", day, err)
		}
	}
	if _, err := MonthlyExpression(1, "25:00"); !errors.Is(err, ErrInvalidTime) {
		t.Fatalf("expected ErrInvalidTime, got %v", err)
	}
}
