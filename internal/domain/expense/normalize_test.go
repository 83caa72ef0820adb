package expense

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestNormalizeAmount(t *testing.T) {
	cases := []struct {
		in   string
		out  string
		want error
	}{
		{"4.5", "4.50", nil},
		{" 12.34 ", "12.34", nil},
		{"0.005", "0.01", nil},
		{"1.005", "1.01", nil},
		{"1.004", "1.00", nil},
		{"100", "100.00", nil},
		{"0.004", "", ErrAmountNotPositive},
		{"0", "", ErrAmountNotPositive},
		{"-3", "", ErrAmountNotPositive},
		{"abc", "", ErrAmountNotNumber},
		{"", "", ErrAmountNotNumber},
	}
	for _, tc := range cases {
		got, err := NormalizeAmount(tc.in)
		if tc.want != nil {
			if !errors.Is(err, tc.want) {
				t.Fatalf("%q expected %v, got %v (value %s)", tc.in, tc.want, err, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q unexpected error: %v", tc.in, err)
		}
		if got.StringFixed(2) != tc.out {
			t.Fatalf("%q expected %s, got %s", tc.in, tc.out, got.StringFixed(2))
		}
	}
}

func TestNormalizeItem(t *testing.T) {
	if got := NormalizeItem("  big \t  lunch\n "); got != "big lunch" {
		t.Fatalf("unexpected item %q", got)
	}
	if got := NormalizeItem("   "); got != "" {
		t.Fatalf("expected empty item, got %q", got)
	}
	long := strings.Repeat("咖", 100)
	if got := NormalizeItem(long); len([]rune(got)) != MaxItemLength {
		t.Fatalf("expected %d runes, got %d", MaxItemLength, len([]rune(got)))
	}
}

func TestRecordSameEntry(t *testing.T) {
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	a := Record{Session: "s", Item: "coffee", Amount: decimal.RequireFromString("4.5"), Timestamp: ts}
	b := a
	b.Amount = decimal.RequireFromString("4.50")
	b.Timestamp = ts.In(time.FixedZone("UTC+8", 8*3600))
	b.Note = "different note"
	if !a.SameEntry(b) {
		t.Fatalf("expected records to match")
	}
	b.Item = "tea"
	if a.SameEntry(b) {
		t.Fatalf("expected records with different items not to match")
	}
}

func TestRecordDay(t *testing.T) {
	r := Record{Date: "2026-02-28"}
	d, ok := r.Day()
	if !ok || FormatDate(d) != "2026-02-28" {
		t.Fatalf("unexpected day %v ok=%v", d, ok)
	}
	if _, ok := (Record{Date: "28/02/2026"}).Day(); ok {
		t.Fatalf("expected malformed date to be rejected")
	}
}
