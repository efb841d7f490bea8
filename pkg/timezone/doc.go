// Package timezone converts stored UTC instants into civil time of a single
// reference zone.
//
// Every day, weekday and 15-minute slot boundary in the tracker is computed
// here. Other packages must not do their own offset arithmetic; they ask a
// Normalizer instead, so a reading lands in the same slot no matter which
// component looks at it.
//
// The formatting helpers never fail. Input that cannot be understood is
// rendered back unchanged. Only the explicit Parse helpers return ErrParse.
package timezone
