package occupancy

import "errors"

// ErrInvertedInterval is returned when an interval ends before it starts.
var ErrInvertedInterval = errors.New("occupancy: interval ends before it starts")

// Interval is an inclusive range of days. A nil To marks an open interval
// that extends indefinitely.
type Interval struct {
	From Date
	To   *Date
}

// NewInterval builds a validated interval.
func NewInterval(from Date, to *Date) (Interval, error) {
	i := Interval{From: from, To: to}
	if err := i.Validate(); err != nil {
		return Interval{}, err
	}
	return i, nil
}

// Validate checks that the interval has a start and does not end before it.
func (i Interval) Validate() error {
	if i.From.IsZero() {
		return ErrInvalidDate
	}
	if i.To != nil && i.To.Before(i.From) {
		return ErrInvertedInterval
	}
	return nil
}

// IsOpen reports whether the interval has no end date.
func (i Interval) IsOpen() bool {
	return i.To == nil
}

// Contains reports whether day d falls inside the interval.
func (i Interval) Contains(d Date) bool {
	if d.Before(i.From) {
		return false
	}
	return i.To == nil || !d.After(*i.To)
}

// Overlaps reports whether the two intervals share at least one day.
func (i Interval) Overlaps(other Interval) bool {
	return endsOnOrAfter(i, other.From) && endsOnOrAfter(other, i.From)
}

// OverlapsBeyondHandover reports an overlap other than a single shared day on
// which one interval ends and the other begins.
func (i Interval) OverlapsBeyondHandover(other Interval) bool {
	if !i.Overlaps(other) {
		return false
	}
	if sharedDays(i, other) > 1 {
		return true
	}
	handover := (i.To != nil && i.To.Equal(other.From)) || (other.To != nil && other.To.Equal(i.From))
	return !handover
}

func endsOnOrAfter(i Interval, d Date) bool {
	return i.To == nil || !i.To.Before(d)
}

// sharedDays counts the days both intervals cover, assuming they overlap.
// Open overlaps count as unbounded.
func sharedDays(a, b Interval) int {
	start := a.From
	if b.From.After(start) {
		start = b.From
	}
	var end *Date
	switch {
	case a.To == nil:
		end = b.To
	case b.To == nil:
		end = a.To
	case a.To.Before(*b.To):
		end = a.To
	default:
		end = b.To
	}
	if end == nil {
		return int(^uint(0) >> 1)
	}
	return int(end.Time().Sub(start.Time()).Hours()/24) + 1
}
