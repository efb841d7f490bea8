package predict

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicktill/ntk-tracker/pkg/storage"
	"github.com/nicktill/ntk-tracker/pkg/timezone"
)

func daySlots() []timezone.Slot {
	return timezone.SlotRange(timezone.MustParseSlot("06:00"), timezone.EndOfDay)
}

func pointAt(t *testing.T, points []Point, label string) Point {
	t.Helper()
	for _, p := range points {
		if p.Time == label {
			return p
		}
	}
	t.Fatalf("no point at %s", label)
	return Point{}
}

// assertAscending checks every label is strictly greater than the one before;
// zero-padded HH:MM labels order lexically.
func assertAscending(t *testing.T, points []Point) {
	t.Helper()
	for i := 0; i+1 < len(points); i++ {
		assert.Less(t, points[i].Time, points[i+1].Time, "point %d", i)
	}
}

func TestAssemble_TodayWithAnchor(t *testing.T) {
	baseline := BuildBaseline([]storage.Reading{local(10, 0, 50), local(12, 0, 30)}, prague)
	day := []storage.Reading{local(8, 0, 12), local(10, 0, 55)}

	points := Assemble(CurveInput{
		Slots:    daySlots(),
		Baseline: baseline,
		Day:      day,
		Kind:     Today,
		Anchor:   SelectAnchor(nil, day, prague, "2025-01-15"),
		Norm:     prague,
	})

	require.Len(t, points, 73)
	assert.Equal(t, "06:00", points[0].Time)
	assert.Equal(t, "24:00", points[72].Time)
	assertAscending(t, points)

	anchor := pointAt(t, points, "10:00")
	assert.False(t, anchor.IsPrediction)
	require.NotNil(t, anchor.PeopleCount)
	assert.Equal(t, 55, *anchor.PeopleCount)
	assert.Equal(t, StateAnchor, anchor.State)

	// 10:15 has no history of its own: overall 40 plus offset 5.
	next := pointAt(t, points, "10:15")
	assert.True(t, next.IsPrediction)
	require.NotNil(t, next.PeopleCount)
	assert.Equal(t, 45, *next.PeopleCount)

	noon := pointAt(t, points, "12:00")
	assert.Equal(t, 35, *noon.PeopleCount)

	actual := pointAt(t, points, "08:00")
	assert.False(t, actual.IsPrediction)
	assert.Equal(t, 12, *actual.PeopleCount)
	assert.Equal(t, StateActual, actual.State)

	for _, p := range points {
		slot := timezone.MustParseSlot(p.Time)
		if slot < timezone.MustParseSlot("10:00") && p.Time != "08:00" {
			assert.Nil(t, p.PeopleCount, p.Time)
			assert.True(t, p.IsPrediction, p.Time)
			assert.Equal(t, StateGap, p.State, p.Time)
		}
		if p.PeopleCount != nil {
			assert.GreaterOrEqual(t, *p.PeopleCount, 0, p.Time)
		}
	}
}

func TestAssemble_AnchorBeatsActualInSameSlot(t *testing.T) {
	day := []storage.Reading{local(10, 0, 40), local(10, 10, 55)}
	points := Assemble(CurveInput{
		Slots:  daySlots(),
		Day:    day,
		Kind:   Today,
		Anchor: SelectAnchor(nil, day, prague, "2025-01-15"),
		Norm:   prague,
	})

	p := pointAt(t, points, "10:00")
	assert.Equal(t, 55, *p.PeopleCount)
	assert.False(t, p.IsPrediction)
}

func TestAssemble_ClampsNegative(t *testing.T) {
	baseline := BuildBaseline([]storage.Reading{local(10, 0, 50)}, prague)
	points := Assemble(CurveInput{
		Slots:    daySlots(),
		Baseline: baseline,
		Kind:     Today,
		Anchor:   &Anchor{Slot: timezone.MustParseSlot("09:00"), Value: -5},
		Norm:     prague,
	})

	assert.Equal(t, 0, *pointAt(t, points, "09:00").PeopleCount)
	assert.Equal(t, 0, *pointAt(t, points, "12:00").PeopleCount)
	assert.Equal(t, 0, *pointAt(t, points, "24:00").PeopleCount)
}

func TestAssemble_PastDayHasGapsNotForecasts(t *testing.T) {
	baseline := BuildBaseline([]storage.Reading{local(10, 0, 50)}, prague)
	points := Assemble(CurveInput{
		Slots:    daySlots(),
		Baseline: baseline,
		Day:      []storage.Reading{local(7, 30, 9)},
		Kind:     Past,
		Anchor:   &Anchor{Slot: timezone.MustParseSlot("07:30"), Value: 9},
		Norm:     prague,
	})

	require.Len(t, points, 73)
	assertAscending(t, points)
	for _, p := range points {
		if p.Time == "07:30" {
			assert.Equal(t, 9, *p.PeopleCount)
			assert.False(t, p.IsPrediction)
			continue
		}
		assert.Nil(t, p.PeopleCount, p.Time)
		assert.True(t, p.IsPrediction, p.Time)
	}
}

func TestAssemble_FutureIgnoresAnchor(t *testing.T) {
	baseline := BuildBaseline([]storage.Reading{local(10, 0, 50), local(12, 0, 30)}, prague)
	points := Assemble(CurveInput{
		Slots:    daySlots(),
		Baseline: baseline,
		Kind:     Future,
		Anchor:   &Anchor{Slot: timezone.MustParseSlot("10:00"), Value: 500},
		Norm:     prague,
	})

	for _, p := range points {
		require.NotNil(t, p.PeopleCount, p.Time)
		assert.True(t, p.IsPrediction, p.Time)
		assert.Equal(t, StateForecast, p.State)
		assert.Equal(t, baseline.At(timezone.MustParseSlot(p.Time)), *p.PeopleCount, p.Time)
	}
}

func TestAssemble_Idempotent(t *testing.T) {
	day := []storage.Reading{local(6, 0, 1), local(9, 20, 14)}
	in := CurveInput{
		Slots:    daySlots(),
		Baseline: BuildBaseline([]storage.Reading{local(9, 0, 10)}, prague),
		Day:      day,
		Kind:     Today,
		Anchor:   SelectAnchor(nil, day, prague, "2025-01-15"),
		Norm:     prague,
	}

	assert.Equal(t, Assemble(in), Assemble(in))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "ACTUAL", StateActual.String())
	assert.Equal(t, "GAP", StateGap.String())
	assert.Equal(t, "ANCHOR", StateAnchor.String())
	assert.Equal(t, "FORECAST", StateForecast.String())
}
