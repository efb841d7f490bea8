package storage

import (
	"math"
	"sort"

	"github.com/nicktill/ntk-tracker/pkg/timezone"
)

// Aggregate accumulates counts of one bucket.
type Aggregate struct {
	Sum   int64
	Count int
	Min   int
	Max   int
}

// Add folds one count into the bucket.
func (a *Aggregate) Add(v int) {
	if a.Count == 0 || v < a.Min {
		a.Min = v
	}
	if a.Count == 0 || v > a.Max {
		a.Max = v
	}
	a.Sum += int64(v)
	a.Count++
}

// Average calculates the mean value
func (a *Aggregate) Average() float64 {
	if a.Count == 0 {
		return 0
	}
	return float64(a.Sum) / float64(a.Count)
}

// Round2 rounds to two decimals, the precision averages are served with.
func Round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// GroupDaily buckets readings by local civil date, ascending.
func GroupDaily(readings []Reading, norm *timezone.Normalizer) []DailyAverage {
	buckets := make(map[string]*Aggregate)
	for _, r := range readings {
		d := norm.Date(r.Timestamp)
		if buckets[d] == nil {
			buckets[d] = &Aggregate{}
		}
		buckets[d].Add(r.PeopleCount)
	}

	out := make([]DailyAverage, 0, len(buckets))
	for d, a := range buckets {
		out = append(out, DailyAverage{Date: d, Average: Round2(a.Average()), SampleCount: a.Count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// GroupWeekly buckets readings by local weekday, Sunday first.
func GroupWeekly(readings []Reading, norm *timezone.Normalizer) []WeeklyAverage {
	var buckets [7]Aggregate
	for _, r := range readings {
		buckets[norm.Weekday(r.Timestamp)].Add(r.PeopleCount)
	}

	var out []WeeklyAverage
	for dow := range buckets {
		if buckets[dow].Count == 0 {
			continue
		}
		out = append(out, WeeklyAverage{
			DayOfWeek:   dow,
			Average:     Round2(buckets[dow].Average()),
			SampleCount: buckets[dow].Count,
		})
	}
	return out
}

// GroupHeatmap buckets readings by local weekday and hour.
func GroupHeatmap(readings []Reading, norm *timezone.Normalizer) []HeatmapCell {
	var buckets [7][24]Aggregate
	for _, r := range readings {
		l := norm.Local(r.Timestamp)
		buckets[l.Weekday()][l.Hour()].Add(r.PeopleCount)
	}

	var out []HeatmapCell
	for dow := range buckets {
		for hour := range buckets[dow] {
			a := buckets[dow][hour]
			if a.Count == 0 {
				continue
			}
			out = append(out, HeatmapCell{
				DayOfWeek:   dow,
				Hour:        hour,
				Average:     Round2(a.Average()),
				SampleCount: a.Count,
			})
		}
	}
	return out
}

// MaxReading returns the reading with the highest count, first found on ties.
func MaxReading(readings []Reading) *Reading {
	var best *Reading
	for i := range readings {
		if best == nil || readings[i].PeopleCount > best.PeopleCount {
			r := readings[i]
			best = &r
		}
	}
	return best
}

// SortAscending orders readings by timestamp then id.
func SortAscending(readings []Reading) {
	sort.SliceStable(readings, func(i, j int) bool {
		if readings[i].Timestamp.Equal(readings[j].Timestamp) {
			return readings[i].ID < readings[j].ID
		}
		return readings[i].Timestamp.Before(readings[j].Timestamp)
	})
}
