package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"analemma/internal/services"
)

// TimeOfDay is a wall-clock hour and minute.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// cronSpec renders the standard five-field expression for a daily run.
func (t TimeOfDay) cronSpec() string {
	return fmt.Sprintf("%d %d * * *", t.Minute, t.Hour)
}

// ParseTimeOfDay accepts exactly "HH:MM" with hour 0-23 and minute 0-59.
// Single-digit components ("9:05") are accepted.
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 {
		return TimeOfDay{}, invalidTime(value)
	}
	hour, err := parseComponent(parts[0], 23)
	if err != nil {
		return TimeOfDay{}, invalidTime(value)
	}
	minute, err := parseComponent(parts[1], 59)
	if err != nil {
		return TimeOfDay{}, invalidTime(value)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

func parseComponent(value string, max int) (int, error) {
	if value == "" || len(value) > 2 {
		return 0, fmt.Errorf("bad component %q", value)
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("bad component %q", value)
		}
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	if n > max {
		return 0, fmt.Errorf("component %d out of range", n)
	}
	return n, nil
}

func invalidTime(value string) error {
	return services.Wrap(services.ErrScheduler, "", "", fmt.Sprintf("invalid capture time format %q, expected HH:MM", value), nil)
}

// LoadLocation resolves an IANA zone name, reporting failures as scheduler errors.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, services.Wrap(services.ErrScheduler, "", "", "timezone must be set", nil)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, services.Wrap(services.ErrScheduler, "", "", fmt.Sprintf("invalid timezone %q", name), err)
	}
	return loc, nil
}
