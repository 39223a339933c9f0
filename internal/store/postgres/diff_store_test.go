package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wizenheimer/wayback/internal/core"
)

func TestInsertDiffBindsCategoryColumns(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewDiffStoreWithPool(mock, zap.NewNop())

	rec := core.DiffRecord{
		URL:        "https://example.com",
		RunID1:     "1",
		RunID2:     "7",
		WeekNumber: "12",
		Analysis: core.DiffAnalysis{
			Pricing: []string{"Pro plan rose to $49"},
		},
	}

	mock.ExpectExec("INSERT INTO content_diffs").
		WithArgs(
			rec.URL, rec.RunID1, rec.RunID2, rec.WeekNumber,
			[]byte(`[]`),
			[]byte(`[]`),
			[]byte(`["Pro plan rose to $49"]`),
			[]byte(`[]`),
			[]byte(`[]`),
			[]byte(`[]`),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.InsertDiff(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func diffColumns() []string {
	return []string{
		"id", "url", "run_id1", "run_id2", "week_number",
		"branding_changes", "integration_changes", "pricing_changes",
		"product_changes", "positioning_changes", "partnership_changes", "created_at",
	}
}

func TestDiffHistoryScansCategories(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewDiffStoreWithPool(mock, zap.NewNop())
	createdAt := time.Unix(1700000000, 0).UTC()

	rows := pgxmock.NewRows(diffColumns()).AddRow(
		int64(1), "https://example.com", "1", "7", "12",
		[]byte(`[]`), []byte(`[]`), []byte(`["Pro plan rose to $49"]`),
		[]byte(`[]`), []byte(`[]`), []byte(`[]`), createdAt,
	)

	mock.ExpectQuery("SELECT (.+) FROM content_diffs WHERE url = \\$1 ORDER BY created_at DESC LIMIT \\$2").
		WithArgs("https://example.com", 10).
		WillReturnRows(rows)

	records, err := store.DiffHistory(context.Background(), core.DiffHistoryQuery{
		URL: "https://example.com",
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "https://example.com", records[0].URL)
	require.Equal(t, []string{"Pro plan rose to $49"}, records[0].Analysis.Pricing)
	require.Empty(t, records[0].Analysis.Branding)
	require.Equal(t, createdAt, records[0].CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDiffHistoryAppliesRunRangeFilter(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewDiffStoreWithPool(mock, zap.NewNop())

	mock.ExpectQuery("AND \\(run_id1 BETWEEN \\$3 AND \\$4 OR run_id2 BETWEEN \\$3 AND \\$4\\)").
		WithArgs("https://example.com", "12", "1", "7", 5).
		WillReturnRows(pgxmock.NewRows(diffColumns()))

	records, err := store.DiffHistory(context.Background(), core.DiffHistoryQuery{
		URL:        "https://example.com",
		WeekNumber: "12",
		FromRunID:  "1",
		ToRunID:    "7",
		Limit:      5,
	})
	require.NoError(t, err)
	require.Empty(t, records)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDiffHistoryRequiresURL(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewDiffStoreWithPool(mock, zap.NewNop())

	_, err = store.DiffHistory(context.Background(), core.DiffHistoryQuery{})
	require.ErrorContains(t, err, "url is required")
}
