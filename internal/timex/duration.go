// Package timex contains small time helpers shared between config parsing
// and the lifecycle deadline arithmetic.
package timex

import (
	"encoding/json"
	"errors"
	"time"
)

// Duration wraps time.Duration so that JSON config files may specify
// intervals either as strings ("24h") or as integer nanoseconds.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		d.Duration = parsed
		return nil
	default:
		return errors.New("invalid duration")
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Midnight truncates t to the start of its day in UTC. Lifecycle deadlines
// are always computed from midnight so that repeated requests within one
// day produce the same deadline.
func Midnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DeadlineAfter returns the lifecycle deadline reached days from t:
// midnight of t plus the given number of days.
func DeadlineAfter(t time.Time, days int) time.Time {
	return Midnight(t).AddDate(0, 0, days)
}
