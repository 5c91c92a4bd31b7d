package service

import (
	"math"
	"sort"
	"time"

	"github.com/febril-severity-server/internal/domain"
)

// RecentLimit is the number of evaluations listed on the dashboard.
const RecentLimit = 5

// Confidence band limits used by the performance page.
const (
	HighConfidence   = 80.0
	MediumConfidence = 50.0
)

// Monday-first weekday labels.
var weekdayLabels = [7]string{"Lun", "Mar", "Mié", "Jue", "Vie", "Sáb", "Dom"}

// WeekdayLabel returns the Monday-first label for a weekday.
func WeekdayLabel(d time.Weekday) string {
	return weekdayLabels[(int(d)+6)%7]
}

// Aggregate computes dashboard statistics from the record collection.
//
// "Today" is taken from now exactly once, in now's location. A record lands
// in bucket 6-d where d is the number of calendar days between its creation
// day and today; records with d outside [0,6] only count toward the totals.
func Aggregate(records []domain.EvaluationRecord, now time.Time) domain.DashboardStats {
	loc := now.Location()
	today := dayNumber(now)

	var stats domain.DashboardStats
	for i := range stats.Last7Days {
		day := now.AddDate(0, 0, i-6)
		stats.Last7Days[i] = domain.DayBucket{
			Label: WeekdayLabel(day.Weekday()),
			Date:  day.Format("2006-01-02"),
		}
	}

	var confidenceSum float64
	for _, rec := range records {
		switch rec.PrediccionCodigo {
		case domain.SeverityLeve:
			stats.Leve++
		case domain.SeverityModerada:
			stats.Moderada++
		case domain.SeveritySevera:
			stats.Severa++
		}
		confidenceSum += rec.Confianza

		diff := today - dayNumber(rec.CreatedAt.In(loc))
		if diff >= 0 && diff <= 6 {
			stats.Last7Days[6-diff].Count++
		}
	}

	stats.Total = len(records)
	if stats.Total > 0 {
		stats.AvgConfidence = roundTo(confidenceSum/float64(stats.Total), 1)
	}
	stats.Recent = MostRecent(records, RecentLimit)
	return stats
}

// dayNumber maps a time to a count of calendar days in its own location, so
// that differences ignore DST shifts.
func dayNumber(t time.Time) int {
	y, m, d := t.Date()
	return int(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}

// MostRecent returns up to n records ordered newest first. The input is not
// modified.
func MostRecent(records []domain.EvaluationRecord, n int) []domain.EvaluationRecord {
	sorted := make([]domain.EvaluationRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// Performance computes the severity distribution and confidence bands shown
// on the model performance page.
func Performance(records []domain.EvaluationRecord) domain.PerformanceStats {
	var (
		stats         domain.PerformanceStats
		confidenceSum float64
	)
	counts := CountSeverities(records)
	for _, rec := range records {
		confidenceSum += rec.Confianza
		switch {
		case rec.Confianza >= HighConfidence:
			stats.Confidence.High++
		case rec.Confianza >= MediumConfidence:
			stats.Confidence.Medium++
		default:
			stats.Confidence.Low++
		}
	}

	stats.Total = len(records)
	if stats.Total == 0 {
		return stats
	}

	total := float64(stats.Total)
	stats.AvgConfidence = roundTo(confidenceSum/total, 1)
	stats.PctLeve = roundTo(float64(counts.Leve)/total*100, 1)
	stats.PctModerada = roundTo(float64(counts.Moderada)/total*100, 1)
	stats.PctSevera = roundTo(float64(counts.Severa)/total*100, 1)
	stats.Deg1 = float64(counts.Leve) / total * 360
	stats.Deg2 = stats.Deg1 + float64(counts.Moderada)/total*360
	return stats
}

func roundTo(x float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(x*p) / p
}
