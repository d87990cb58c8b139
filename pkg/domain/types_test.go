package domain

import (
	"errors"
	"testing"
)

func TestParseInterval(t *testing.T) {
	for _, raw := range []string{"daily", "weekly", "monthly", "quarterly", "yearly"} {
		interval, err := ParseInterval(raw)
		if err != nil {
			t.Fatalf("ParseInterval(%q): %v", raw, err)
		}
		if string(interval) != raw {
			t.Fatalf("ParseInterval(%q) = %q", raw, interval)
		}
	}
}

func TestParseIntervalNormalizes(t *testing.T) {
	interval, err := ParseInterval(" Weekly ")
	if err != nil {
		t.Fatalf("ParseInterval: %v", err)
	}
	if interval != IntervalWeekly {
		t.Fatalf("ParseInterval(\" Weekly \") = %q", interval)
	}
}

func TestParseIntervalRejectsUnknown(t *testing.T) {
	for _, raw := range []string{"", "hourly", "every-week"} {
		if _, err := ParseInterval(raw); !errors.Is(err, ErrInvalidInterval) {
			t.Fatalf("ParseInterval(%q): expected ErrInvalidInterval, got %v", raw, err)
		}
	}
}
