package services

import (
	"errors"
	"testing"
	"time"

	"financeflow/internal/core"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestIntervalStrategies_Next(t *testing.T) {
	tests := []struct {
		name     string
		interval core.Interval
		current  time.Time
		anchor   time.Time
		want     time.Time
	}{
		{"daily", core.Daily, date(2024, 1, 31), date(2024, 1, 1), date(2024, 2, 1)},
		{"weekly across month", core.Weekly, date(2024, 1, 29), date(2024, 1, 1), date(2024, 2, 5)},
		{"monthly first of month", core.Monthly, date(2024, 1, 1), date(2024, 1, 1), date(2024, 2, 1)},
		{"monthly clamps to leap february", core.Monthly, date(2024, 1, 31), date(2024, 1, 31), date(2024, 2, 29)},
		{"monthly returns to anchor day", core.Monthly, date(2024, 2, 29), date(2024, 1, 31), date(2024, 3, 31)},
		{"monthly clamps to april", core.Monthly, date(2024, 3, 31), date(2024, 1, 31), date(2024, 4, 30)},
		{"monthly december rolls year", core.Monthly, date(2024, 12, 15), date(2024, 1, 15), date(2025, 1, 15)},
		{"monthly without anchor", core.Monthly, date(2024, 5, 10), time.Time{}, date(2024, 6, 10)},
		{"yearly", core.Yearly, date(2024, 3, 1), date(2024, 3, 1), date(2025, 3, 1)},
		{"yearly from leap day", core.Yearly, date(2024, 2, 29), date(2024, 2, 29), date(2025, 2, 28)},
		{"yearly back to leap day", core.Yearly, date(2027, 2, 28), date(2024, 2, 29), date(2028, 2, 29)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := GetIntervalStrategy(tt.interval)
			if err != nil {
				t.Fatalf("GetIntervalStrategy(%s) error = %v", tt.interval, err)
			}
			got := s.Next(tt.current, tt.anchor)
			if !got.Equal(tt.want) {
				t.Errorf("%T.Next() = %v, want %v", s, got, tt.want)
			}
			if !got.After(tt.current) {
				t.Errorf("%T.Next() = %v, not after %v", s, got, tt.current)
			}
		})
	}
}

func TestIntervalStrategy_PreservesTimeOfDay(t *testing.T) {
	current := time.Date(2024, 1, 31, 9, 30, 0, 0, time.UTC)
	got := MonthlyStrategy{}.Next(current, current)
	want := time.Date(2024, 2, 29, 9, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("MonthlyStrategy.Next() = %v, want %v", got, want)
	}
}

func TestGetIntervalStrategy_Unknown(t *testing.T) {
	if _, err := GetIntervalStrategy("hourly"); !errors.Is(err, core.ErrInvalidInterval) {
		t.Errorf("GetIntervalStrategy(hourly) error = %v, want ErrInvalidInterval", err)
	}
}

func TestNextDue(t *testing.T) {
	tpl := core.RecurringTemplate{
		Interval:  core.Monthly,
		StartDate: date(2024, 1, 1),
		NextDue:   date(2024, 1, 1),
	}
	got, err := NextDue(tpl)
	if err != nil {
		t.Fatalf("NextDue() error = %v", err)
	}
	if !got.Equal(date(2024, 2, 1)) {
		t.Errorf("NextDue() = %v, want 2024-02-01", got)
	}
}
