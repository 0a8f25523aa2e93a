// Package services provides business logic and orchestration services.
//
// This file implements the Strategy Pattern for advancing a recurring
// template's next-due timestamp. Each interval (daily, weekly, monthly,
// yearly) has its own strategy.
package services

import (
	"fmt"
	"time"

	"financeflow/internal/core"
)

// IntervalStrategy computes the occurrence that follows current.
// anchor is the template start date; monthly and yearly strategies keep its
// day of month, clamped to the length of the target month.
type IntervalStrategy interface {
	Next(current, anchor time.Time) time.Time
}

type DailyStrategy struct{}

func (DailyStrategy) Next(current, _ time.Time) time.Time {
	return current.AddDate(0, 0, 1)
}

type WeeklyStrategy struct{}

func (WeeklyStrategy) Next(current, _ time.Time) time.Time {
	return current.AddDate(0, 0, 7)
}

// MonthlyStrategy advances one calendar month. A template anchored on the
// 31st fires on Feb 28/29 and returns to the 31st in March.
type MonthlyStrategy struct{}

func (MonthlyStrategy) Next(current, anchor time.Time) time.Time {
	return addMonthsClamped(current, 1, anchorDay(current, anchor))
}

type YearlyStrategy struct{}

func (YearlyStrategy) Next(current, anchor time.Time) time.Time {
	return addMonthsClamped(current, 12, anchorDay(current, anchor))
}

func anchorDay(current, anchor time.Time) int {
	if anchor.IsZero() {
		return current.Day()
	}
	return anchor.Day()
}

func addMonthsClamped(t time.Time, months, day int) time.Time {
	first := time.Date(t.Year(), t.Month()+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	lastDay := first.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

var intervalStrategies = map[core.Interval]IntervalStrategy{
	core.Daily:   DailyStrategy{},
	core.Weekly:  WeeklyStrategy{},
	core.Monthly: MonthlyStrategy{},
	core.Yearly:  YearlyStrategy{},
}

// GetIntervalStrategy returns the strategy registered for interval.
func GetIntervalStrategy(interval core.Interval) (IntervalStrategy, error) {
	s, ok := intervalStrategies[interval]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidInterval, interval)
	}
	return s, nil
}

// RegisterIntervalStrategy adds or replaces the strategy for interval.
// It is not safe to call concurrently with GetIntervalStrategy.
func RegisterIntervalStrategy(interval core.Interval, s IntervalStrategy) {
	intervalStrategies[interval] = s
}

// NextDue returns the template's next-due timestamp after one interval.
func NextDue(t core.RecurringTemplate) (time.Time, error) {
	s, err := GetIntervalStrategy(t.Interval)
	if err != nil {
		return time.Time{}, err
	}
	return s.Next(t.NextDue, t.StartDate), nil
}
