package timezone

import (
	"fmt"
	"time"
)

const (
	// SlotMinutes is the width of a slot.
	SlotMinutes = 15
	// SlotsPerDay counts the slots of a nominal civil day.
	SlotsPerDay = 24 * 60 / SlotMinutes
	// EndOfDay is the closing "24:00" label. It is not a slot of its own and
	// reads like the last slot of the day.
	EndOfDay Slot = SlotsPerDay
)

// Slot indexes a 15-minute bucket of a civil day, 0 ("00:00") to 95
// ("23:45"). 96 is the "24:00" end-of-day marker.
type Slot int

// Label renders the slot as "HH:MM".
func (s Slot) Label() string {
	m := int(s) * SlotMinutes
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

func (s Slot) String() string { return s.Label() }

// Valid reports whether s is a slot or the end-of-day marker.
func (s Slot) Valid() bool { return s >= 0 && s <= EndOfDay }

// Hour returns the hour the slot starts in.
func (s Slot) Hour() int { return int(s) * SlotMinutes / 60 }

// Minute returns the minute within the hour the slot starts at.
func (s Slot) Minute() int { return int(s) * SlotMinutes % 60 }

// Clamp maps EndOfDay onto the last real slot.
func (s Slot) Clamp() Slot {
	switch {
	case s < 0:
		return 0
	case s >= SlotsPerDay:
		return SlotsPerDay - 1
	}
	return s
}

// ParseSlot parses "HH:MM" and floors it to the containing slot.
// "24:00" yields EndOfDay.
func ParseSlot(label string) (Slot, error) {
	var h, m int
	if _, err := fmt.Sscanf(label, "%d:%d", &h, &m); err != nil || len(label) != 5 {
		return 0, fmt.Errorf("%w: slot %q", ErrParse, label)
	}
	if h == 24 && m == 0 {
		return EndOfDay, nil
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: slot %q", ErrParse, label)
	}
	return Slot((h*60 + m) / SlotMinutes), nil
}

// MustParseSlot is ParseSlot that panics.
func MustParseSlot(label string) Slot {
	s, err := ParseSlot(label)
	if err != nil {
		panic(err)
	}
	return s
}

// SlotRange lists every slot from..to inclusive.
func SlotRange(from, to Slot) []Slot {
	if to < from {
		return nil
	}
	out := make([]Slot, 0, to-from+1)
	for s := from; s <= to; s++ {
		out = append(out, s)
	}
	return out
}

// SlotOf floors t's local wall-clock time to its slot.
func (n *Normalizer) SlotOf(t time.Time) Slot {
	l := t.In(n.loc)
	return Slot((l.Hour()*60 + l.Minute()) / SlotMinutes)
}

// SlotStart returns the instant a slot begins on the local day that starts
// at midnight. Wall-clock times skipped by a DST jump resolve the way
// time.Date does.
func (n *Normalizer) SlotStart(midnight time.Time, s Slot) time.Time {
	l := midnight.In(n.loc)
	if s >= EndOfDay {
		return n.NextMidnight(l)
	}
	return time.Date(l.Year(), l.Month(), l.Day(), s.Hour(), s.Minute(), 0, 0, n.loc)
}
