package scheduler

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/scanhub/scanhub/internal/errors"
)

// parseRunAt parses a "HH:MM" wall-clock anchor.
func parseRunAt(runAt string) (time.Time, error) {
	t, err := time.Parse("15:04", runAt)
	if err != nil {
		return time.Time{}, errors.NewScheduleError(errors.CodeValidation,
			fmt.Sprintf("run_at must be HH:MM, got %q", runAt))
	}
	return t, nil
}

// NextOccurrence returns the earliest time strictly after `after` that
// falls on one of the given weekdays at the run_at time-of-day. The
// weekday/time pattern is compiled to a standard cron expression; an empty
// weekday set means no recurrence.
func NextOccurrence(runAt string, days []int, after time.Time) (time.Time, bool) {
	if len(days) == 0 {
		return time.Time{}, false
	}
	if validateDays(days) != nil {
		return time.Time{}, false
	}
	at, err := parseRunAt(runAt)
	if err != nil {
		return time.Time{}, false
	}

	uniq := make([]int, 0, len(days))
	seen := make(map[int]struct{}, len(days))
	for _, day := range days {
		if _, ok := seen[day]; !ok {
			seen[day] = struct{}{}
			uniq = append(uniq, day)
		}
	}
	sort.Ints(uniq)

	dow := make([]string, len(uniq))
	for i, day := range uniq {
		dow[i] = fmt.Sprintf("%d", day)
	}
	expr := fmt.Sprintf("%d %d * * %s", at.Minute(), at.Hour(), strings.Join(dow, ","))

	spec, err := cron.ParseStandard(expr)
	if err != nil {
		return time.Time{}, false
	}
	return spec.Next(after), true
}

// startOfDay returns midnight of t's day in t's location. Anchoring a
// freshly created schedule here lets a same-day run_at that already passed
// fire on the next poll.
func startOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}
