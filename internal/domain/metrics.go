package domain

import (
	"math"
	"sort"
)

// DailySleep is one day of the Oura daily_sleep collection.
type DailySleep struct {
	ID           string         `json:"id,omitempty"`
	Day          string         `json:"day"`
	Score        *int           `json:"score"`
	Contributors map[string]any `json:"contributors,omitempty"`
	Timestamp    string         `json:"timestamp,omitempty"`
}

// DailyReadiness is one day of the Oura daily_readiness collection.
type DailyReadiness struct {
	ID                   string         `json:"id,omitempty"`
	Day                  string         `json:"day"`
	Score                *int           `json:"score"`
	TemperatureDeviation *float64       `json:"temperature_deviation,omitempty"`
	Contributors         map[string]any `json:"contributors,omitempty"`
}

// DailyActivity is one day of the Oura daily_activity collection.
type DailyActivity struct {
	ID             string `json:"id,omitempty"`
	Day            string `json:"day"`
	Score          *int   `json:"score"`
	Steps          int    `json:"steps"`
	ActiveCalories int    `json:"active_calories"`
	TotalCalories  int    `json:"total_calories"`
}

// SleepSummary aggregates a sleep series.
type SleepSummary struct {
	Average *float64 `json:"avg_sleep_score"`
	Last    *int     `json:"last_sleep_score"`
}

// SummarizeSleep averages the non-null scores and takes the latest scored
// day as Last. Days are compared as YYYY-MM-DD strings.
func SummarizeSleep(days []DailySleep) SleepSummary {
	sorted := append([]DailySleep(nil), days...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Day < sorted[j].Day })

	var (
		sum     int
		count   int
		summary SleepSummary
	)
	for _, d := range sorted {
		if d.Score == nil {
			continue
		}
		sum += *d.Score
		count++
		last := *d.Score
		summary.Last = &last
	}
	if count > 0 {
		avg := math.Round(float64(sum)/float64(count)*10) / 10
		summary.Average = &avg
	}
	return summary
}

// SortSleep orders a series by day ascending in place.
func SortSleep(days []DailySleep) {
	sort.SliceStable(days, func(i, j int) bool { return days[i].Day < days[j].Day })
}

// SortReadiness orders a series by day ascending in place.
func SortReadiness(days []DailyReadiness) {
	sort.SliceStable(days, func(i, j int) bool { return days[i].Day < days[j].Day })
}

// SortActivity orders a series by day ascending in place.
func SortActivity(days []DailyActivity) {
	sort.SliceStable(days, func(i, j int) bool { return days[i].Day < days[j].Day })
}
