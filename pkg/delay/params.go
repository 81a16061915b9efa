// Package delay computes when a paused execution becomes due.
package delay

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Kind selects the delay policy.
type Kind string

const (
	KindPeriod      Kind = "period"
	KindTimeOfDay   Kind = "timeOfDay"
	KindDateAndTime Kind = "dateAndTime"
	KindDayOfWeek   Kind = "dayOfWeek"
	KindCron        Kind = "cron"
)

// FallbackDelay is used for unknown kinds and malformed parameters.
const FallbackDelay = 5 * time.Minute

var (
	ErrInvalidValue = errors.New("invalid value")
	ErrMissingValue = errors.New("missing value")
)

// ParamError reports a malformed delay parameter.
type ParamError struct {
	Kind  Kind
	Field string
	Err   error
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("delay %s: field %s: %v", e.Kind, e.Field, e.Err)
}

func (e *ParamError) Unwrap() error {
	return e.Err
}

func paramError(kind Kind, field string, err error) *ParamError {
	return &ParamError{Kind: kind, Field: field, Err: err}
}

// Params is the typed form of a DELAY node's params.
type Params struct {
	Kind     Kind
	Amount   int
	Unit     string
	Time     string
	Date     string
	Days     []time.Weekday
	Hour     int
	Minute   int
	Cron     string
	Timezone string
}

// ParseParams reads DELAY params as decoded from JSON, BSON or YAML. Numbers
// may arrive as any numeric type or as strings. The kind is read from
// "delayType" or "kind".
func ParseParams(raw map[string]any) (Params, error) {
	p := Params{
		Kind:     Kind(firstString(raw, "delayType", "kind")),
		Unit:     strings.ToLower(stringValue(raw["unit"])),
		Time:     stringValue(raw["time"]),
		Date:     firstString(raw, "date", "dateTime"),
		Cron:     stringValue(raw["cron"]),
		Timezone: stringValue(raw["timezone"]),
	}

	var err error

	if p.Amount, err = intField(raw, "amount", 0); err != nil {
		return p, paramError(p.Kind, "amount", err)
	}

	if p.Hour, err = intField(raw, "hour", 0); err != nil {
		return p, paramError(p.Kind, "hour", err)
	}

	if p.Minute, err = intField(raw, "minute", 0); err != nil {
		return p, paramError(p.Kind, "minute", err)
	}

	if p.Days, err = weekdays(raw["days"]); err != nil {
		return p, paramError(p.Kind, "days", err)
	}

	return p, nil
}

func firstString(raw map[string]any, keys ...string) string {
	for _, key := range keys {
		if value := stringValue(raw[key]); value != "" {
			return value
		}
	}

	return ""
}

func stringValue(v any) string {
	switch value := v.(type) {
	case string:
		return strings.TrimSpace(value)
	case fmt.Stringer:
		return value.String()
	default:
		return ""
	}
}

func intField(raw map[string]any, key string, def int) (int, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return def, nil
	}

	return toInt(v)
}

func toInt(v any) (int, error) {
	switch value := v.(type) {
	case int:
		return value, nil
	case int32:
		return int(value), nil
	case int64:
		return int(value), nil
	case float32:
		return floatToInt(float64(value))
	case float64:
		return floatToInt(value)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return 0, fmt.Errorf("%q: %w", value, ErrInvalidValue)
		}

		return n, nil
	default:
		return 0, fmt.Errorf("%T: %w", v, ErrInvalidValue)
	}
}

func floatToInt(f float64) (int, error) {
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%v is not whole: %w", f, ErrInvalidValue)
	}

	return int(f), nil
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

func weekdays(v any) ([]time.Weekday, error) {
	if v == nil {
		return nil, nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("%T: %w", v, ErrInvalidValue)
	}

	days := make([]time.Weekday, 0, rv.Len())

	for i := range rv.Len() {
		day, err := weekday(rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}

		days = append(days, day)
	}

	return days, nil
}

func weekday(v any) (time.Weekday, error) {
	if s, ok := v.(string); ok {
		if day, found := weekdayNames[strings.ToLower(strings.TrimSpace(s))]; found {
			return day, nil
		}
	}

	n, err := toInt(v)
	if err != nil || n < 0 || n > 6 {
		return 0, fmt.Errorf("weekday %v: %w", v, ErrInvalidValue)
	}

	return time.Weekday(n), nil
}
