package graphql

import (
	"context"

	"github.com/graphql-go/graphql"

	"github.com/nicktill/ntk-tracker/pkg/occupancy"
	"github.com/nicktill/ntk-tracker/pkg/predict"
	"github.com/nicktill/ntk-tracker/pkg/storage"
	"github.com/nicktill/ntk-tracker/pkg/timezone"
)

// Reader is the cached read side of the occupancy service.
type Reader interface {
	History(ctx context.Context, limit int) []storage.Reading
	Current(ctx context.Context) *storage.Reading
	Highest(ctx context.Context) *storage.Reading
	DailyAverages(ctx context.Context, lastDays int) []storage.DailyAverage
	WeeklyAverages(ctx context.Context, lookbackWeeks int) []storage.WeeklyAverage
	DailyAverage(ctx context.Context, date string) []occupancy.IntervalAverage
	Heatmap(ctx context.Context, lookbackWeeks int) []storage.HeatmapCell
}

// Forecaster builds day curves.
type Forecaster interface {
	DayCurve(ctx context.Context, date string) ([]predict.Point, error)
}

type resolver struct {
	reader   Reader
	forecast Forecaster
	norm     *timezone.Normalizer
}

func (r *resolver) occupancyHistory(p graphql.ResolveParams) (any, error) {
	limit, _ := p.Args["limit"].(int)
	readings := r.reader.History(p.Context, limit)
	out := make([]map[string]any, len(readings))
	for i := range readings {
		out[i] = r.occupancy(&readings[i])
	}
	return out, nil
}

func (r *resolver) highestOccupancy(p graphql.ResolveParams) (any, error) {
	return r.single(r.reader.Highest(p.Context)), nil
}

func (r *resolver) currentOccupancy(p graphql.ResolveParams) (any, error) {
	return r.single(r.reader.Current(p.Context)), nil
}

// single keeps a missing reading as an untyped nil so it resolves to null.
func (r *resolver) single(reading *storage.Reading) any {
	if reading == nil {
		return nil
	}
	return r.occupancy(reading)
}

func (r *resolver) dailyAverages(p graphql.ResolveParams) (any, error) {
	lastDays, _ := p.Args["lastDays"].(int)
	days := r.reader.DailyAverages(p.Context, lastDays)
	out := make([]map[string]any, len(days))
	for i, d := range days {
		out[i] = map[string]any{"date": d.Date, "average": d.Average, "sampleCount": d.SampleCount}
	}
	return out, nil
}

func (r *resolver) weeklyAverages(p graphql.ResolveParams) (any, error) {
	weeks, _ := p.Args["lookbackWeeks"].(int)
	rows := r.reader.WeeklyAverages(p.Context, weeks)
	out := make([]map[string]any, len(rows))
	for i, w := range rows {
		out[i] = map[string]any{"dayOfWeek": w.DayOfWeek, "average": w.Average, "sampleCount": w.SampleCount}
	}
	return out, nil
}

func (r *resolver) dailyAverage(p graphql.ResolveParams) (any, error) {
	date, _ := p.Args["date"].(string)
	intervals := r.reader.DailyAverage(p.Context, date)
	out := make([]map[string]any, len(intervals))
	for i, iv := range intervals {
		out[i] = map[string]any{"interval_start": iv.IntervalStart, "average_count": iv.AverageCount}
	}
	return out, nil
}

func (r *resolver) heatmap(p graphql.ResolveParams) (any, error) {
	weeks, _ := p.Args["lookbackWeeks"].(int)
	cells := r.reader.Heatmap(p.Context, weeks)
	out := make([]map[string]any, len(cells))
	for i, c := range cells {
		out[i] = map[string]any{
			"dayOfWeek":   c.DayOfWeek,
			"hour":        c.Hour,
			"average":     c.Average,
			"sampleCount": c.SampleCount,
		}
	}
	return out, nil
}

func (r *resolver) prediction(p graphql.ResolveParams) (any, error) {
	date, _ := p.Args["date"].(string)
	points, err := r.forecast.DayCurve(p.Context, date)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, len(points))
	for i, pt := range points {
		m := map[string]any{"time": pt.Time, "people_count": nil, "is_prediction": pt.IsPrediction}
		if pt.PeopleCount != nil {
			m["people_count"] = *pt.PeopleCount
		}
		out[i] = m
	}
	return out, nil
}

// occupancy renders a reading with its local timestamp.
func (r *resolver) occupancy(reading *storage.Reading) map[string]any {
	return map[string]any{
		"id":           reading.ID,
		"timestamp":    r.norm.Timestamp(reading.Timestamp),
		"people_count": reading.PeopleCount,
	}
}
