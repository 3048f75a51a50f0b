package config

import (
	"fmt"
	"time"
)

// parseClock parses a "HH:MM" 24-hour clock string, the same format the
// notifier's window bounds use.
func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// loadLocation validates a tz database name without keeping the result
// cached, since it is only called at config-validation time.
func loadLocation(tz string) (*time.Location, error) {
	return time.LoadLocation(tz)
}
