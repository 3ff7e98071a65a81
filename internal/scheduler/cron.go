package scheduler

import (
	"time"

	"github.com/adhocore/gronx"
)

var cronValidator = gronx.New()

// nextCronTick returns the next tick strictly after ref for expr,
// evaluated in tz (the system's local timezone if tz is empty).
// ok is false for an invalid expression or unresolvable timezone —
// the caller treats that as "no next run" and skips the job silently
// until the expression is fixed.
func nextCronTick(expr, tz string, ref time.Time) (time.Time, bool) {
	if expr == "" || !cronValidator.IsValid(expr) {
		return time.Time{}, false
	}

	loc := time.Local
	if tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return time.Time{}, false
		}
		loc = l
	}

	next, err := gronx.NextTickAfter(expr, ref.In(loc), false)
	if err != nil {
		return time.Time{}, false
	}
	return next, true
}
