package main

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/nicktill/ntk-tracker/pkg/storage"
	"github.com/nicktill/ntk-tracker/pkg/timezone"
)

const (
	fillFirstHour = 6
	fillLastHour  = 23
	fillStep      = 15
)

// sampleReadings generates a synthetic quarter-hourly history for the last
// days local days up to now. Weekdays start from 10 people and weekends from
// 5, tripled during 10-14h and 18-20h, each sample scaled by U(0.8, 1.2).
// Slots later than now are not generated.
func sampleReadings(now time.Time, norm *timezone.Normalizer, days int, rng *rand.Rand) []storage.Reading {
	loc := norm.Location()
	today := norm.Local(now)
	perDay := (fillLastHour - fillFirstHour + 1) * 60 / fillStep

	out := make([]storage.Reading, 0, (days+1)*perDay)
	for back := days; back >= 0; back-- {
		day := today.AddDate(0, 0, -back)
		weekend := day.Weekday() == time.Saturday || day.Weekday() == time.Sunday

		for hour := fillFirstHour; hour <= fillLastHour; hour++ {
			for minute := 0; minute < 60; minute += fillStep {
				ts := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc).UTC()
				if ts.After(now) {
					continue
				}
				out = append(out, storage.Reading{
					Timestamp:   ts,
					PeopleCount: sampleCount(hour, weekend, rng),
				})
			}
		}
	}
	return out
}

func sampleCount(hour int, weekend bool, rng *rand.Rand) int {
	base := 10.0
	if weekend {
		base = 5
	}
	if (hour >= 10 && hour <= 14) || (hour >= 18 && hour <= 20) {
		base *= 3
	}
	return int(math.Round(base * (0.8 + rng.Float64()*0.4)))
}
