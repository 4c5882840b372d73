// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package analytics

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/olegiv/desa-go/internal/store"
)

// DateLayout is the wire and storage format of calendar dates.
const DateLayout = "2006-01-02"

// ErrInvalidRange is returned for unparseable dates, a start after the end
// or a range longer than allowed.
var ErrInvalidRange = errors.New("invalid date range")

// MaxQueryDays is the longest range a statistics report may cover.
const MaxQueryDays = 366

// DateRange is an inclusive range of calendar days. From and To are
// midnights in the reference timezone.
type DateRange struct {
	From time.Time
	To   time.Time
}

// ParseDay parses a YYYY-MM-DD date as midnight in loc.
func ParseDay(s string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not a YYYY-MM-DD date", ErrInvalidRange, s)
	}
	return d, nil
}

// ParseDateRange parses an inclusive date range.
func ParseDateRange(from, to string, loc *time.Location) (DateRange, error) {
	f, err := ParseDay(from, loc)
	if err != nil {
		return DateRange{}, err
	}
	t, err := ParseDay(to, loc)
	if err != nil {
		return DateRange{}, err
	}
	return NewDateRange(f, t)
}

// NewDateRange builds a range from two days, rejecting from > to.
func NewDateRange(from, to time.Time) (DateRange, error) {
	from, to = StartOfDay(from), StartOfDay(to.In(from.Location()))
	if from.After(to) {
		return DateRange{}, fmt.Errorf("%w: %s is after %s", ErrInvalidRange, FormatDay(from), FormatDay(to))
	}
	return DateRange{From: from, To: to}, nil
}

// Len returns the number of days in the range without enumerating them.
func (r DateRange) Len() int {
	return int(civilDay(r.To)-civilDay(r.From)) + 1
}

// CheckMaxDays returns ErrInvalidRange when the range spans more than
// maxDays days. maxDays <= 0 means no limit.
func (r DateRange) CheckMaxDays(maxDays int) error {
	if maxDays > 0 && r.Len() > maxDays {
		return fmt.Errorf("%w: %s spans %d days, at most %d allowed", ErrInvalidRange, r, r.Len(), maxDays)
	}
	return nil
}

// civilDay numbers calendar dates so that consecutive dates differ by one,
// whatever the zone and its DST rules.
func civilDay(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}

// Days returns every day of the range in order.
func (r DateRange) Days() []time.Time {
	var days []time.Time
	for d := r.From; !d.After(r.To); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// Window returns the half-open instant interval covering the whole range.
func (r DateRange) Window() store.Window {
	return store.Window{Start: r.From, End: r.To.AddDate(0, 0, 1)}
}

func (r DateRange) String() string {
	return FormatDay(r.From) + ".." + FormatDay(r.To)
}

// StartOfDay returns midnight of t's calendar day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DayWindow returns [midnight, next midnight) for the day containing t,
// in t's location. Using AddDate keeps DST days correct.
func DayWindow(t time.Time) store.Window {
	start := StartOfDay(t)
	return store.Window{Start: start, End: start.AddDate(0, 0, 1)}
}

// FormatDay formats a day as YYYY-MM-DD.
func FormatDay(t time.Time) string {
	return t.Format(DateLayout)
}

// Named time ranges accepted by ResolveTimeRange.
const (
	RangeToday     = "today"
	RangeYesterday = "yesterday"
	Range7Days     = "7d"
	Range30Days    = "30d"
	Range90Days    = "90d"
	RangeYear      = "1y"
)

// ResolveTimeRange converts a named range into concrete days relative to
// now in loc. Multi-day ranges end today.
func ResolveTimeRange(name string, now time.Time, loc *time.Location) (DateRange, error) {
	today := StartOfDay(now.In(loc))

	switch name {
	case RangeToday:
		return DateRange{From: today, To: today}, nil
	case RangeYesterday:
		y := today.AddDate(0, 0, -1)
		return DateRange{From: y, To: y}, nil
	case Range7Days:
		return DateRange{From: today.AddDate(0, 0, -6), To: today}, nil
	case Range30Days:
		return DateRange{From: today.AddDate(0, 0, -29), To: today}, nil
	case Range90Days:
		return DateRange{From: today.AddDate(0, 0, -89), To: today}, nil
	case RangeYear:
		return DateRange{From: today.AddDate(-1, 0, 1), To: today}, nil
	default:
		return DateRange{}, fmt.Errorf("%w: unknown time range %q", ErrInvalidRange, name)
	}
}
