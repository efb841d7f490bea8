package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManual_AdvanceAndSet(t *testing.T) {
	start := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	c := NewManual(start)
	assert.Equal(t, start, c.Now())

	c.Advance(15 * time.Minute)
	assert.Equal(t, start.Add(15*time.Minute), c.Now())

	later := start.Add(48 * time.Hour)
	c.Set(later)
	assert.Equal(t, later, c.Now())
}

func TestReal_IsUTC(t *testing.T) {
	assert.Equal(t, time.UTC, Real{}.Now().Location())
}
