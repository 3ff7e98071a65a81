package config

import (
	"fmt"
	"strconv"
	"strings"
)

// parseHHMM validates a "HH:MM" string and returns the minute-of-day
// it denotes. It is used both to validate configuration up front and
// by the heartbeat ticker to evaluate its active-hours window.
func parseHHMM(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

// MinuteOfDay is the exported form of parseHHMM for consumers outside
// this package (the heartbeat ticker's active-hours check).
func MinuteOfDay(hhmm string) (int, error) {
	return parseHHMM(hhmm)
}
