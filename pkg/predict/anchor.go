package predict

import (
	"time"

	"github.com/nicktill/ntk-tracker/pkg/storage"
	"github.com/nicktill/ntk-tracker/pkg/timezone"
)

// AnchorSource tells where an anchor came from.
type AnchorSource string

const (
	AnchorLive AnchorSource = "live"
	AnchorDay  AnchorSource = "day"
)

// Anchor is the most recent real reading of the requested day.
type Anchor struct {
	Slot      timezone.Slot
	Value     int
	Timestamp time.Time
	Source    AnchorSource
}

// SelectAnchor prefers the live latest reading when it falls on date (local),
// otherwise the last reading of the day's range. It returns nil when neither
// is available.
func SelectAnchor(live *storage.Reading, day []storage.Reading, norm *timezone.Normalizer, date string) *Anchor {
	if live != nil && norm.Date(live.Timestamp) == date {
		return &Anchor{
			Slot:      norm.SlotOf(live.Timestamp),
			Value:     live.PeopleCount,
			Timestamp: live.Timestamp,
			Source:    AnchorLive,
		}
	}
	if len(day) == 0 {
		return nil
	}
	last := day[len(day)-1]
	return &Anchor{
		Slot:      norm.SlotOf(last.Timestamp),
		Value:     last.PeopleCount,
		Timestamp: last.Timestamp,
		Source:    AnchorDay,
	}
}

// Offset is the anchor value minus the baseline at the anchor slot.
// Without an anchor there is no bias.
func Offset(b Baseline, a *Anchor) int {
	if a == nil {
		return 0
	}
	return a.Value - b.At(a.Slot)
}
