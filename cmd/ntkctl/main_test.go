package main

import (
	"bytes"
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicktill/ntk-tracker/pkg/timezone"
)

func TestSampleReadingsShape(t *testing.T) {
	norm := timezone.MustNew("Europe/Prague")
	// 23:00 local on Wednesday 2025-01-15.
	now := time.Date(2025, 1, 15, 22, 0, 0, 0, time.UTC)

	readings := sampleReadings(now, norm, 1, rand.New(rand.NewPCG(1, 2)))

	// Tuesday 06:00-23:45 is 72 slots, Wednesday stops at 23:00 (69 slots).
	require.Len(t, readings, 72+69)
	assert.Equal(t, "2025-01-14T06:00:00", norm.Timestamp(readings[0].Timestamp))
	assert.Equal(t, "2025-01-15T23:00:00", norm.Timestamp(readings[len(readings)-1].Timestamp))
	for i := 1; i < len(readings); i++ {
		assert.True(t, readings[i].Timestamp.After(readings[i-1].Timestamp), "ascending at %d", i)
	}
}

func TestSampleReadingsRanges(t *testing.T) {
	norm := timezone.MustNew("Europe/Prague")
	// Monday 2025-01-20 late evening; covers Saturday, Sunday and Monday.
	now := time.Date(2025, 1, 20, 23, 0, 0, 0, time.UTC)

	for _, r := range sampleReadings(now, norm, 2, rand.New(rand.NewPCG(7, 7))) {
		local := norm.Local(r.Timestamp)
		weekend := local.Weekday() == time.Saturday || local.Weekday() == time.Sunday
		peak := (local.Hour() >= 10 && local.Hour() <= 14) || (local.Hour() >= 18 && local.Hour() <= 20)

		base := 10.0
		if weekend {
			base = 5
		}
		if peak {
			base *= 3
		}
		lo, hi := int(base*0.8+0.5)-1, int(base*1.2+0.5)
		assert.GreaterOrEqual(t, r.PeopleCount, lo, "%s", norm.Timestamp(r.Timestamp))
		assert.LessOrEqual(t, r.PeopleCount, hi, "%s", norm.Timestamp(r.Timestamp))
	}
}

func TestRunFillOnMemoryStore(t *testing.T) {
	t.Setenv("NTK_STORAGE__DRIVER", "memory")

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), "", []string{"fill", "-days", "2", "-seed", "3"}, &out))
	assert.Contains(t, out.String(), "sample readings covering 3 days")
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	err := run(context.Background(), "", []string{"vacuum"}, &bytes.Buffer{})
	assert.ErrorIs(t, err, errUsage)

	err = run(context.Background(), "", nil, &bytes.Buffer{})
	assert.ErrorIs(t, err, errUsage)
}

func TestClearNeedsConfirmation(t *testing.T) {
	t.Setenv("NTK_STORAGE__DRIVER", "memory")

	err := run(context.Background(), "", []string{"clear"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "-yes")

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), "", []string{"clear", "-yes"}, &out))
	assert.Equal(t, "store cleared\n", out.String())
}
