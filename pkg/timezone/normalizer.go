package timezone

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DefaultZone is the library's home timezone.
const DefaultZone = "Europe/Prague"

const (
	labelLayout     = "15:04"
	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02T15:04:05"
)

// ErrParse is returned by the Parse helpers for malformed input.
var ErrParse = errors.New("timezone: unparseable value")

var (
	localStamp = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})[T ](\d{2}:\d{2})(:\d{2}(\.\d+)?)?$`)
	bareLabel  = regexp.MustCompile(`^\d{2}:\d{2}$`)
	bareDate   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// Normalizer renders instants in a fixed reference timezone.
// It is immutable and safe for concurrent use.
type Normalizer struct {
	loc *time.Location
}

// New loads the named IANA zone.
func New(name string) (*Normalizer, error) {
	if name == "" {
		name = DefaultZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return &Normalizer{loc: loc}, nil
}

// MustNew is New that panics; meant for tests and package-level defaults.
func MustNew(name string) *Normalizer {
	n, err := New(name)
	if err != nil {
		panic(err)
	}
	return n
}

// Location returns the reference zone.
func (n *Normalizer) Location() *time.Location { return n.loc }

// Name returns the IANA name of the reference zone.
func (n *Normalizer) Name() string { return n.loc.String() }

// Local converts t into the reference zone.
func (n *Normalizer) Local(t time.Time) time.Time { return t.In(n.loc) }

// Label returns the local wall-clock time of t as "HH:MM".
func (n *Normalizer) Label(t time.Time) string { return t.In(n.loc).Format(labelLayout) }

// Date returns the local civil date of t as "YYYY-MM-DD".
func (n *Normalizer) Date(t time.Time) string { return t.In(n.loc).Format(dateLayout) }

// Timestamp returns t as a zone-less local "YYYY-MM-DDTHH:MM:SS" string.
func (n *Normalizer) Timestamp(t time.Time) string {
	return t.In(n.loc).Format(timestampLayout)
}

// Weekday returns the local day of week of t.
func (n *Normalizer) Weekday(t time.Time) time.Weekday { return t.In(n.loc).Weekday() }

// Midnight returns the instant at which t's local day started.
func (n *Normalizer) Midnight(t time.Time) time.Time {
	l := t.In(n.loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, n.loc)
}

// NextMidnight returns the first instant of the local day after t's.
func (n *Normalizer) NextMidnight(t time.Time) time.Time {
	l := t.In(n.loc)
	return time.Date(l.Year(), l.Month(), l.Day()+1, 0, 0, 0, 0, n.loc)
}

// LabelString relabels a string that may be an RFC 3339 instant, an
// already-local timestamp or a bare "HH:MM" label. Local input keeps its
// wall-clock time, so LabelString is idempotent. Anything else is returned
// as given.
func (n *Normalizer) LabelString(s string) string {
	s = strings.TrimSpace(s)
	if bareLabel.MatchString(s) {
		return s
	}
	if m := localStamp.FindStringSubmatch(s); m != nil {
		return m[2]
	}
	if t, ok := parseInstant(s); ok {
		return n.Label(t)
	}
	return s
}

// DateString is LabelString for civil dates.
func (n *Normalizer) DateString(s string) string {
	s = strings.TrimSpace(s)
	if bareDate.MatchString(s) {
		return s
	}
	if m := localStamp.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	if t, ok := parseInstant(s); ok {
		return n.Date(t)
	}
	return s
}

// ParseDate interprets "YYYY-MM-DD" as a local civil date and returns the
// instant of its local midnight.
func (n *Normalizer) ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, strings.TrimSpace(s), n.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q", ErrParse, s)
	}
	return t, nil
}

// ParseTimestamp reads either an RFC 3339 instant or a zone-less local
// timestamp.
func (n *Normalizer) ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, ok := parseInstant(s); ok {
		return t.UTC(), nil
	}
	for _, layout := range []string{timestampLayout, "2006-01-02 15:04:05", "2006-01-02T15:04", "2006-01-02 15:04"} {
		if t, err := time.ParseInLocation(layout, s, n.loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: timestamp %q", ErrParse, s)
}

// DayBounds returns the half-open instant range [start, end) covering the
// local civil date. The range is 23 or 25 hours long on DST transition days.
func (n *Normalizer) DayBounds(date string) (start, end time.Time, err error) {
	start, err = n.ParseDate(date)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, n.NextMidnight(start), nil
}

func parseInstant(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
