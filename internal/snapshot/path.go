// Package snapshot implements the snapshot addressing scheme and the
// capture service that populates it.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/wizenheimer/wayback/internal/core"
)

// PathHash returns the first 32 hex characters of the SHA-256 digest of the
// URL. The truncated digest is the stable blob key for every snapshot of
// that URL regardless of URL length or characters.
func PathHash(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])[:32]
}

// Locate derives the snapshot reference for a URL at a given week and run.
// Pure function of its inputs; writers and readers must both go through it
// or lookups silently miss.
func Locate(url, weekNumber, runID string) core.SnapshotRef {
	return core.SnapshotRef{
		URLHash:    PathHash(url),
		WeekNumber: NormalizeWeek(weekNumber),
		RunID:      runID,
	}
}

// ImagePath returns the blob path holding the snapshot image.
func ImagePath(ref core.SnapshotRef) string {
	return fmt.Sprintf("screenshot/%s/%s/%s", ref.URLHash, ref.WeekNumber, ref.RunID)
}

// ContentPath returns the blob path holding the snapshot's extracted text.
func ContentPath(ref core.SnapshotRef) string {
	return fmt.Sprintf("content/%s/%s/%s", ref.URLHash, ref.WeekNumber, ref.RunID)
}

// NormalizeWeek zero-pads a week number to two digits.
func NormalizeWeek(week string) string {
	if len(week) == 1 {
		return "0" + week
	}
	return week
}

// WeekNumber computes the week-of-year label for t. It intentionally keeps
// the historical counting rule (days since Jan 1 plus the weekday offset of
// Jan 1, divided into 7-day buckets) rather than ISO 8601 weeks, because
// stored snapshot paths and diff rows were generated under this rule.
func WeekNumber(t time.Time) string {
	firstDay := time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
	pastDays := t.Sub(firstDay).Hours() / 24
	week := int(math.Ceil((pastDays + float64(firstDay.Weekday()) + 1) / 7))
	if week < 1 {
		week = 1
	}
	return fmt.Sprintf("%02d", week)
}
