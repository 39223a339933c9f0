package diff

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveEndOfWeekPairsWithSameWeekStart(t *testing.T) {
	t.Parallel()

	cmp := Resolve("12", "7")

	require.Equal(t, Comparison{WeekNumber: "12", RunID: "1"}, cmp)
}

func TestResolveStartOfWeekPairsWithPreviousWeekEnd(t *testing.T) {
	t.Parallel()

	require.Equal(t, Comparison{WeekNumber: "11", RunID: "7"}, Resolve("12", "1"))
	require.Equal(t, Comparison{WeekNumber: "04", RunID: "7"}, Resolve("5", "1"))
}

func TestResolveWrapsYearBoundaryToWeek52(t *testing.T) {
	t.Parallel()

	require.Equal(t, Comparison{WeekNumber: "52", RunID: "7"}, Resolve("01", "1"))
	require.Equal(t, Comparison{WeekNumber: "52", RunID: "7"}, Resolve("1", "1"))
}

func TestResolveTreatsUnknownRunsAsWeekStart(t *testing.T) {
	t.Parallel()

	require.Equal(t, Comparison{WeekNumber: "11", RunID: "7"}, Resolve("12", "3"))
}

func TestResolveCoversEveryWeek(t *testing.T) {
	t.Parallel()

	for week := 2; week <= 53; week++ {
		cmp := Resolve(fmt.Sprintf("%02d", week), "1")
		require.Equal(t, fmt.Sprintf("%02d", week-1), cmp.WeekNumber)
		require.Equal(t, "7", cmp.RunID)
	}
}
