package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wizenheimer/wayback/internal/core"
)

func seedHistory(t *testing.T, store *DiffStore) {
	t.Helper()
	for i, rec := range []core.DiffRecord{
		{URL: "https://example.com", RunID1: "1", RunID2: "3", WeekNumber: "11"},
		{URL: "https://example.com", RunID1: "1", RunID2: "7", WeekNumber: "12"},
		{URL: "https://example.com", RunID1: "7", RunID2: "7", WeekNumber: "13"},
		{URL: "https://other.example.com", RunID1: "1", RunID2: "7", WeekNumber: "12"},
	} {
		require.NoError(t, store.InsertDiff(context.Background(), rec), "record %d", i)
	}
}

func TestDiffHistoryNewestFirstPerURL(t *testing.T) {
	t.Parallel()

	store := NewDiffStore()
	seedHistory(t, store)

	records, err := store.DiffHistory(context.Background(), core.DiffHistoryQuery{URL: "https://example.com"})
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, "13", records[0].WeekNumber)
	require.Equal(t, "11", records[2].WeekNumber)
}

func TestDiffHistoryWeekFilterIsExact(t *testing.T) {
	t.Parallel()

	store := NewDiffStore()
	seedHistory(t, store)

	records, err := store.DiffHistory(context.Background(), core.DiffHistoryQuery{
		URL:        "https://example.com",
		WeekNumber: "12",
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "12", records[0].WeekNumber)
}

func TestDiffHistoryRunRangeMatchesEitherSide(t *testing.T) {
	t.Parallel()

	store := NewDiffStore()
	seedHistory(t, store)

	records, err := store.DiffHistory(context.Background(), core.DiffHistoryQuery{
		URL:       "https://example.com",
		FromRunID: "2",
		ToRunID:   "6",
	})
	require.NoError(t, err)
	// Only the week-11 row has a side inside [2,6].
	require.Len(t, records, 1)
	require.Equal(t, "11", records[0].WeekNumber)
}

func TestDiffHistoryHonorsLimit(t *testing.T) {
	t.Parallel()

	store := NewDiffStore()
	for i := 0; i < 15; i++ {
		require.NoError(t, store.InsertDiff(context.Background(), core.DiffRecord{
			URL:        "https://example.com",
			WeekNumber: fmt.Sprintf("%02d", i+1),
		}))
	}

	records, err := store.DiffHistory(context.Background(), core.DiffHistoryQuery{URL: "https://example.com"})
	require.NoError(t, err)
	require.Len(t, records, core.DefaultHistoryLimit)

	records, err = store.DiffHistory(context.Background(), core.DiffHistoryQuery{URL: "https://example.com", Limit: 3})
	require.NoError(t, err)
	require.Len(t, records, 3)
}
