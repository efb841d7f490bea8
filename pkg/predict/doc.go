/*
Package predict reconstructs a full day of 15-minute occupancy values.

A day curve blends three inputs:

  - the seasonal baseline: per-slot means of the same weekday over the
    lookback window, with empty slots filled by the overall mean
  - the anchor: the most recent real reading of the requested day
  - the readings actually recorded on that day

Each slot ends in one of four states. ANCHOR is the anchor slot itself.
ACTUAL carries the earliest reading inside the slot window. GAP is an
explicit null: past days without data, and slots of today before the anchor
without data. FORECAST is baseline plus the anchor offset, clamped at zero.

The offset is flat: the live-minus-baseline difference at the anchor slot is
added unchanged to every later slot of the day.

Everything here is a pure function of the stored readings and the clock, so
rebuilding a curve with the same data at the same instant yields the same
points.
*/
package predict
