package timer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidSchedule is wrapped by every error ParseCron returns.
var ErrInvalidSchedule = errors.New("timer: invalid cron schedule")

// fiveFields accepts minute, hour, day of month, month and day of week.
// Descriptors such as @hourly are not enabled.
var fiveFields = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseCron parses a five-field cron expression for a cron timer. Time zone
// prefixes are rejected: ticks are always scheduled in UTC.
func ParseCron(expr string) (cron.Schedule, error) {
	line := strings.TrimSpace(expr)
	switch {
	case line == "":
		return nil, fmt.Errorf("%w: empty expression", ErrInvalidSchedule)
	case namesZone(line):
		return nil, fmt.Errorf("%w: %q sets a time zone, cron timers tick in UTC", ErrInvalidSchedule, line)
	}

	schedule, err := fiveFields.Parse(line)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidSchedule, line, err)
	}
	return schedule, nil
}

func namesZone(line string) bool {
	upper := strings.ToUpper(line)
	return strings.Contains(upper, "CRON_TZ=") || strings.Contains(upper, "TZ=")
}

// NextRun returns the first tick of expr after now.
func NextRun(expr string, now time.Time) (time.Time, error) {
	schedule, err := ParseCron(expr)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(now.UTC()), nil
}
