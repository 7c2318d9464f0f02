package occupancy

import "sort"

// Assignment places a device in a room for an interval.
type Assignment struct {
	ID       string
	DeviceID string
	RoomID   string
	Interval Interval
}

// Conflict details an existing assignment that collides with a candidate.
type Conflict struct {
	WithAssignmentID string
	RoomID           string
	Interval         Interval
}

// Trim shortens an existing assignment so that it ends on NewTo.
type Trim struct {
	AssignmentID string
	NewTo        Date
}

// DetectConflicts identifies assignments of the candidate's device that overlap
// it by more than a handover day. The candidate itself is ignored when present
// in existing.
func DetectConflicts(existing []Assignment, candidate Assignment) []Conflict {
	return collectConflicts(existing, candidate, func(other Assignment) bool {
		return candidate.Interval.OverlapsBeyondHandover(other.Interval)
	})
}

// DetectEditConflicts checks an edited assignment against the rest of its
// device's history. Any shared day is a conflict unless it is a handover
// boundary that stored already has with that neighbour and the edit keeps.
func DetectEditConflicts(existing []Assignment, stored, candidate Assignment) []Conflict {
	return collectConflicts(existing, candidate, func(other Assignment) bool {
		if !candidate.Interval.Overlaps(other.Interval) {
			return false
		}
		if candidate.Interval.OverlapsBeyondHandover(other.Interval) {
			return true
		}
		return !keepsHandover(stored.Interval, candidate.Interval, other.Interval)
	})
}

// keepsHandover reports whether candidate shares its single day with other
// on the same boundary that stored already shared with it.
func keepsHandover(stored, candidate, other Interval) bool {
	if candidate.To != nil && candidate.To.Equal(other.From) {
		return stored.To != nil && stored.To.Equal(*candidate.To)
	}
	if other.To != nil && other.To.Equal(candidate.From) {
		return stored.From.Equal(candidate.From)
	}
	return false
}

func collectConflicts(existing []Assignment, candidate Assignment, conflicts func(other Assignment) bool) []Conflict {
	var found []Conflict
	for _, other := range existing {
		if other.ID != "" && other.ID == candidate.ID {
			continue
		}
		if candidate.DeviceID != "" && other.DeviceID != "" && other.DeviceID != candidate.DeviceID {
			continue
		}
		if !conflicts(other) {
			continue
		}
		found = append(found, Conflict{
			WithAssignmentID: other.ID,
			RoomID:           other.RoomID,
			Interval:         other.Interval,
		})
	}
	sortConflicts(found)
	return found
}

// PlanInsert decides how a new interval fits into a device's history. Every
// assignment that starts before the new interval and is still running on its
// first day is trimmed to end the day before. Assignments starting on or after
// that day are never moved; if they overlap the new interval they are
// reported as conflicts.
func PlanInsert(existing []Assignment, candidate Interval) ([]Trim, []Conflict) {
	var (
		trims     []Trim
		conflicts []Conflict
	)
	for _, other := range existing {
		if other.Interval.From.Before(candidate.From) {
			if endsOnOrAfter(other.Interval, candidate.From) {
				trims = append(trims, Trim{AssignmentID: other.ID, NewTo: candidate.From.DayBefore()})
			}
			continue
		}
		if other.Interval.Overlaps(candidate) {
			conflicts = append(conflicts, Conflict{
				WithAssignmentID: other.ID,
				RoomID:           other.RoomID,
				Interval:         other.Interval,
			})
		}
	}
	sortConflicts(conflicts)
	return trims, conflicts
}

// Current picks the assignment with the latest start. Ties keep the later
// element of the slice, so callers pass assignments in creation order.
func Current(assignments []Assignment) (Assignment, bool) {
	if len(assignments) == 0 {
		return Assignment{}, false
	}
	best := assignments[0]
	for _, a := range assignments[1:] {
		if !a.Interval.From.Before(best.Interval.From) {
			best = a
		}
	}
	return best, true
}

func sortConflicts(conflicts []Conflict) {
	sort.SliceStable(conflicts, func(i, j int) bool {
		return conflicts[i].Interval.From.Before(conflicts[j].Interval.From)
	})
}
