// Package diff implements the comparison resolver and the diff engine.
package diff

import (
	"fmt"
	"strconv"

	"github.com/wizenheimer/wayback/internal/core"
	"github.com/wizenheimer/wayback/internal/snapshot"
)

// Comparison identifies the run a just-completed run should be diffed
// against.
type Comparison struct {
	WeekNumber string `json:"week_number"`
	RunID      string `json:"run_id"`
}

// Resolve picks the diff partner for a completed run. The cadence captures
// two runs per week: run "7" (end of week) pairs with run "1" of the same
// week, and run "1" (start of week) pairs with run "7" of the previous
// week, wrapping to week "52" at the year boundary.
//
// The wraparound targets "52" even in 53-week years. Historical snapshot
// paths and diff rows were generated under this rule, so it must not be
// corrected to calendar-exact weeks.
func Resolve(weekNumber, runID string) Comparison {
	if runID == core.RunWeekEnd {
		return Comparison{
			WeekNumber: snapshot.NormalizeWeek(weekNumber),
			RunID:      core.RunWeekStart,
		}
	}

	week, _ := strconv.Atoi(weekNumber)
	prev := week - 1
	if prev <= 0 {
		return Comparison{WeekNumber: "52", RunID: core.RunWeekEnd}
	}
	return Comparison{
		WeekNumber: fmt.Sprintf("%02d", prev),
		RunID:      core.RunWeekEnd,
	}
}
