package store

import (
	"sort"
	"strings"

	"worklog/models"
	"worklog/taxonomy"
)

// AggRow is one bucket of a grouped sum, in display order.
type AggRow struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
}

// SumBy groups records by key and sums value per group, keys sorted
// ascending. Every chart is built on this.
func SumBy(records []models.ActivityRecord, key func(models.ActivityRecord) string, value func(models.ActivityRecord) float64) []AggRow {
	sums := make(map[string]float64)
	for _, r := range records {
		sums[key(r)] += value(r)
	}
	keys := make([]string, 0, len(sums))
	for k := range sums {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]AggRow, len(keys))
	for i, k := range keys {
		out[i] = AggRow{Key: k, Value: sums[k]}
	}
	return out
}

// HoursByMacro sums logged hours per macro category; missing hours count
// as zero.
func HoursByMacro(records []models.ActivityRecord) []AggRow {
	return SumBy(records,
		func(r models.ActivityRecord) string { return r.MacroCategory },
		func(r models.ActivityRecord) float64 { return float64(r.Hours.Or(0)) })
}

// CountByOwner counts records per user.
func CountByOwner(records []models.ActivityRecord) []AggRow {
	return SumBy(records,
		func(r models.ActivityRecord) string { return r.Owner },
		func(models.ActivityRecord) float64 { return 1 })
}

// ReportBreakdown counts reporting records per subcategory, in the fixed
// drafted-vs-validated order.
func ReportBreakdown(records []models.ActivityRecord) []AggRow {
	counts := map[string]float64{}
	for _, r := range records {
		if r.MacroCategory == taxonomy.MacroReporting {
			counts[r.Subcategory]++
		}
	}
	return []AggRow{
		{Key: taxonomy.SubReportDraft, Value: counts[taxonomy.SubReportDraft]},
		{Key: taxonomy.SubReportReview, Value: counts[taxonomy.SubReportReview]},
	}
}

// Sample classification buckets, in fixed order. The split is a keyword
// match on the free-text activity label.
const (
	SampleInternal = "Interni"
	SampleExternal = "Esterni"
	SampleOther    = "Altro"
)

// SampleBreakdown sums accessioned sample counts into the
// internal/external/other buckets.
func SampleBreakdown(records []models.ActivityRecord) []AggRow {
	sums := map[string]float64{}
	for _, r := range records {
		if r.MacroCategory != taxonomy.MacroAccession {
			continue
		}
		sums[classifySample(r.Activity)] += float64(r.SampleCount.Or(0))
	}
	return []AggRow{
		{Key: SampleInternal, Value: sums[SampleInternal]},
		{Key: SampleExternal, Value: sums[SampleExternal]},
		{Key: SampleOther, Value: sums[SampleOther]},
	}
}

func classifySample(activity string) string {
	s := strings.ToLower(activity)
	switch {
	case strings.Contains(s, "intern"):
		return SampleInternal
	case strings.Contains(s, "estern"):
		return SampleExternal
	default:
		return SampleOther
	}
}

// KPI is the headline numbers shown above the charts.
type KPI struct {
	TotalHours  float64 `json:"total_hours"` // hours + minutes/60
	SampleCount int     `json:"sample_count"`
	ReportCount int     `json:"report_count"`
}

func KPIs(records []models.ActivityRecord) KPI {
	var k KPI
	minutes := 0
	for _, r := range records {
		k.TotalHours += float64(r.Hours.Or(0))
		minutes += r.Minutes.Or(0)
		k.SampleCount += r.SampleCount.Or(0)
		k.ReportCount += r.ReportCount.Or(0)
	}
	k.TotalHours += float64(minutes) / 60
	return k
}
