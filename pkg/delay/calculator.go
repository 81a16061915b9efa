package delay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Calculate returns when an execution paused at now should resume. It is
// pure. On a *ParamError the returned time is the fallback, now+FallbackDelay.
func Calculate(now time.Time, p Params) (time.Time, error) {
	loc := location(now, p.Timezone)
	fallback := now.Add(FallbackDelay)

	var (
		at  time.Time
		err error
	)

	switch p.Kind {
	case KindPeriod:
		at, err = period(now, p)
	case KindTimeOfDay:
		at, err = timeOfDay(now.In(loc), p)
	case KindDateAndTime:
		at, err = dateAndTime(loc, p)
	case KindDayOfWeek:
		at, err = dayOfWeek(now.In(loc), p)
	case KindCron:
		at, err = cronNext(now.In(loc), p)
	default:
		return fallback, nil
	}

	if err != nil {
		return fallback, err
	}

	return at, nil
}

// ResumeAt parses raw DELAY params and calculates the resume time, logging
// and substituting the fallback for any parameter error.
func ResumeAt(ctx context.Context, logger *slog.Logger, now time.Time, raw map[string]any) time.Time {
	p, err := ParseParams(raw)
	if err == nil {
		var at time.Time

		at, err = Calculate(now, p)
		if err == nil {
			return at
		}
	}

	var paramErr *ParamError
	if errors.As(err, &paramErr) {
		logger.WarnContext(ctx, "invalid delay parameters, using fallback",
			"kind", paramErr.Kind, "field", paramErr.Field, "error", paramErr.Err, "fallback", FallbackDelay)
	} else {
		logger.WarnContext(ctx, "delay calculation failed, using fallback", "error", err)
	}

	return now.Add(FallbackDelay)
}

// ValidTimezone reports whether tz is empty or a loadable IANA name.
func ValidTimezone(tz string) bool {
	if tz == "" {
		return true
	}

	_, err := time.LoadLocation(tz)

	return err == nil
}

func location(now time.Time, tz string) *time.Location {
	if tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}

	return now.Location()
}

func period(now time.Time, p Params) (time.Time, error) {
	if p.Amount < 0 {
		return time.Time{}, paramError(p.Kind, "amount", fmt.Errorf("%d: %w", p.Amount, ErrInvalidValue))
	}

	switch p.Unit {
	case "minute", "minutes":
		return now.Add(time.Duration(p.Amount) * time.Minute), nil
	case "hour", "hours":
		return now.Add(time.Duration(p.Amount) * time.Hour), nil
	case "day", "days":
		return now.AddDate(0, 0, p.Amount), nil
	case "week", "weeks":
		return now.AddDate(0, 0, 7*p.Amount), nil
	case "":
		return time.Time{}, paramError(p.Kind, "unit", ErrMissingValue)
	default:
		return time.Time{}, paramError(p.Kind, "unit", fmt.Errorf("%q: %w", p.Unit, ErrInvalidValue))
	}
}

func clock(p Params) (int, int, error) {
	if p.Time == "" {
		return 0, 0, paramError(p.Kind, "time", ErrMissingValue)
	}

	parsed, err := time.Parse("15:04", p.Time)
	if err != nil {
		return 0, 0, paramError(p.Kind, "time", fmt.Errorf("%q: %w", p.Time, ErrInvalidValue))
	}

	return parsed.Hour(), parsed.Minute(), nil
}

func timeOfDay(now time.Time, p Params) (time.Time, error) {
	hour, minute, err := clock(p)
	if err != nil {
		return time.Time{}, err
	}

	at := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !at.After(now) {
		at = time.Date(now.Year(), now.Month(), now.Day()+1, hour, minute, 0, 0, now.Location())
	}

	return at, nil
}

// dateAndTime returns the literal timestamp. A past value is returned as is
// and is therefore due immediately.
func dateAndTime(loc *time.Location, p Params) (time.Time, error) {
	if p.Date == "" {
		return time.Time{}, paramError(p.Kind, "date", ErrMissingValue)
	}

	for _, layout := range dateLayouts {
		if at, err := time.ParseInLocation(layout, p.Date, loc); err == nil {
			return at, nil
		}
	}

	return time.Time{}, paramError(p.Kind, "date", fmt.Errorf("%q: %w", p.Date, ErrInvalidValue))
}

func dayOfWeek(now time.Time, p Params) (time.Time, error) {
	if len(p.Days) == 0 {
		return time.Time{}, paramError(p.Kind, "days", ErrMissingValue)
	}

	hour, minute := p.Hour, p.Minute
	if p.Time != "" {
		var err error

		if hour, minute, err = clock(p); err != nil {
			return time.Time{}, err
		}
	}

	if hour < 0 || hour > 23 {
		return time.Time{}, paramError(p.Kind, "hour", fmt.Errorf("%d: %w", hour, ErrInvalidValue))
	}

	if minute < 0 || minute > 59 {
		return time.Time{}, paramError(p.Kind, "minute", fmt.Errorf("%d: %w", minute, ErrInvalidValue))
	}

	allowed := make(map[time.Weekday]bool, len(p.Days))
	for _, day := range p.Days {
		allowed[day] = true
	}

	// Offsets 0..6 cover this week; offset 7 is the same weekday next week,
	// reached only when today is the sole allowed day and its hour has passed.
	for offset := 0; offset <= 7; offset++ {
		at := time.Date(now.Year(), now.Month(), now.Day()+offset, hour, minute, 0, 0, now.Location())
		if allowed[at.Weekday()] && at.After(now) {
			return at, nil
		}
	}

	return time.Time{}, paramError(p.Kind, "days", ErrInvalidValue)
}

func cronNext(now time.Time, p Params) (time.Time, error) {
	if p.Cron == "" {
		return time.Time{}, paramError(p.Kind, "cron", ErrMissingValue)
	}

	schedule, err := cron.ParseStandard(p.Cron)
	if err != nil {
		return time.Time{}, paramError(p.Kind, "cron", fmt.Errorf("%q: %w", p.Cron, err))
	}

	next := schedule.Next(now)
	if next.IsZero() {
		return time.Time{}, paramError(p.Kind, "cron", fmt.Errorf("%q never fires: %w", p.Cron, ErrInvalidValue))
	}

	return next, nil
}
