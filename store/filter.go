package store

import (
	"sort"
	"strings"
	"time"

	"worklog/models"
)

// FilterOptions is the derived-view query: restrict to an owner, an
// inclusive date range on the timestamp, and a case-insensitive free-text
// needle matched against every cell's string form.
type FilterOptions struct {
	Owner  string
	From   time.Time // zero = unbounded
	To     time.Time // zero = unbounded
	Search string
}

// Filter produces the filtered view, sorted descending by timestamp.
// Records without a timestamp are excluded when a date bound is set,
// otherwise they sort last.
func Filter(records []models.ActivityRecord, opts FilterOptions) []models.ActivityRecord {
	needle := strings.ToLower(opts.Search)
	dateBounded := !opts.From.IsZero() || !opts.To.IsZero()

	var out []models.ActivityRecord
	for _, r := range records {
		if opts.Owner != "" && r.Owner != opts.Owner {
			continue
		}
		if dateBounded {
			if r.Timestamp.IsZero() {
				continue
			}
			d := dateOf(r.Timestamp)
			if !opts.From.IsZero() && d.Before(dateOf(opts.From)) {
				continue
			}
			if !opts.To.IsZero() && d.After(dateOf(opts.To)) {
				continue
			}
		}
		if needle != "" && !matchesText(r, needle) {
			continue
		}
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Timestamp.IsZero() != b.Timestamp.IsZero() {
			return !a.Timestamp.IsZero()
		}
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		return a.ID > b.ID
	})
	return out
}

// Page slices a fixed-size page out of an ordered result. Pages are
// 1-based; out-of-range pages are empty.
func Page(records []models.ActivityRecord, page, size int) []models.ActivityRecord {
	if page < 1 || size < 1 {
		return nil
	}
	start := (page - 1) * size
	if start >= len(records) {
		return nil
	}
	end := start + size
	if end > len(records) {
		end = len(records)
	}
	return records[start:end]
}

// TotalPages returns ceil(total/size).
func TotalPages(total, size int) int {
	if size < 1 || total < 1 {
		return 0
	}
	return (total + size - 1) / size
}

func matchesText(r models.ActivityRecord, lowerNeedle string) bool {
	for _, cell := range RecordRow(r) {
		if strings.Contains(strings.ToLower(cell), lowerNeedle) {
			return true
		}
	}
	return false
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
