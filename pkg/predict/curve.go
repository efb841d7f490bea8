package predict

import (
	"github.com/nicktill/ntk-tracker/pkg/storage"
	"github.com/nicktill/ntk-tracker/pkg/timezone"
)

// State is how a slot's value was derived.
type State int

const (
	StateActual State = iota
	StateGap
	StateAnchor
	StateForecast
)

func (s State) String() string {
	switch s {
	case StateActual:
		return "ACTUAL"
	case StateGap:
		return "GAP"
	case StateAnchor:
		return "ANCHOR"
	case StateForecast:
		return "FORECAST"
	}
	return "UNKNOWN"
}

// Point is one slot of a day curve. PeopleCount is nil for gaps.
type Point struct {
	Time         string `json:"time"`
	PeopleCount  *int   `json:"people_count"`
	IsPrediction bool   `json:"is_prediction"`
	State        State  `json:"-"`
}

// DayKind places the requested date relative to the local today.
type DayKind int

const (
	Past DayKind = iota
	Today
	Future
)

// CurveInput holds everything Assemble needs.
type CurveInput struct {
	Slots    []timezone.Slot
	Baseline Baseline
	// Day holds the requested date's readings, oldest first.
	Day    []storage.Reading
	Kind   DayKind
	Anchor *Anchor
	Norm   *timezone.Normalizer
}

// Assemble emits exactly one point per input slot, in input order.
func Assemble(in CurveInput) []Point {
	actuals := earliestPerSlot(in.Day, in.Norm)

	anchor := in.Anchor
	if in.Kind != Today {
		anchor = nil
	}
	offset := Offset(in.Baseline, anchor)

	points := make([]Point, 0, len(in.Slots))
	for _, slot := range in.Slots {
		p := Point{Time: slot.Label()}

		actual, hasActual := actuals[slot]
		switch {
		case anchor != nil && slot == anchor.Slot:
			p.PeopleCount = intPtr(max(0, anchor.Value))
			p.State = StateAnchor
		case hasActual:
			p.PeopleCount = intPtr(actual)
			p.State = StateActual
		case in.Kind == Past:
			p.IsPrediction = true
			p.State = StateGap
		case anchor != nil && slot < anchor.Slot:
			p.IsPrediction = true
			p.State = StateGap
		default:
			p.PeopleCount = intPtr(max(0, in.Baseline.At(slot)+offset))
			p.IsPrediction = true
			p.State = StateForecast
		}
		points = append(points, p)
	}
	return points
}

// earliestPerSlot keeps the first reading seen in each slot window.
func earliestPerSlot(day []storage.Reading, norm *timezone.Normalizer) map[timezone.Slot]int {
	out := make(map[timezone.Slot]int, len(day))
	for _, r := range day {
		slot := norm.SlotOf(r.Timestamp)
		if _, seen := out[slot]; !seen {
			out[slot] = r.PeopleCount
		}
	}
	return out
}

func intPtr(v int) *int { return &v }
