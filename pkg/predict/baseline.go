package predict

import (
	"math"

	"github.com/nicktill/ntk-tracker/pkg/storage"
	"github.com/nicktill/ntk-tracker/pkg/timezone"
)

// Baseline is the dense seasonal expectation for one weekday.
type Baseline struct {
	Slots [timezone.SlotsPerDay]int
	// Overall is the mean of the observed slot means, used to fill the rest.
	Overall int
	// Observed counts slots that had at least one reading.
	Observed int
}

// BuildBaseline averages readings per local slot, rounds each mean to the
// nearest integer and fills unobserved slots with the rounded overall mean
// (zero when nothing was observed).
func BuildBaseline(readings []storage.Reading, norm *timezone.Normalizer) Baseline {
	var buckets [timezone.SlotsPerDay]storage.Aggregate
	for _, r := range readings {
		buckets[norm.SlotOf(r.Timestamp)].Add(r.PeopleCount)
	}

	var b Baseline
	var sum int
	for slot := range buckets {
		if buckets[slot].Count == 0 {
			continue
		}
		b.Slots[slot] = roundNonNegative(buckets[slot].Average())
		sum += b.Slots[slot]
		b.Observed++
	}

	if b.Observed > 0 {
		b.Overall = roundNonNegative(float64(sum) / float64(b.Observed))
	}
	for slot := range buckets {
		if buckets[slot].Count == 0 {
			b.Slots[slot] = b.Overall
		}
	}
	return b
}

// At returns the expectation for a slot. The end-of-day marker reads the
// last slot of the day.
func (b Baseline) At(s timezone.Slot) int {
	return b.Slots[s.Clamp()]
}

// Labels renders the baseline keyed by "HH:MM".
func (b Baseline) Labels() map[string]int {
	out := make(map[string]int, timezone.SlotsPerDay)
	for slot, v := range b.Slots {
		out[timezone.Slot(slot).Label()] = v
	}
	return out
}

func roundNonNegative(f float64) int {
	return int(math.Max(0, math.Round(f)))
}
