package records

import "fmt"

// ReferenceRegion is a genomic interval in the module's internal
// coordinate model: 0-based, half-open.
type ReferenceRegion struct {
	Name  string
	Start int64
	End   int64
}

// OneBasedClosed converts the region to the 1-based closed convention
// expected by index-backed readers of text formats: start moves up by
// one, end is unchanged.
func (r ReferenceRegion) OneBasedClosed() (start, end int64) {
	return r.Start + 1, r.End
}

// Overlaps reports whether the region overlaps the 0-based half-open
// interval [start, end) on the named reference.
func (r ReferenceRegion) Overlaps(name string, start, end int64) bool {
	return r.Name == name && start < r.End && end > r.Start
}

func (r ReferenceRegion) String() string {
	return fmt.Sprintf("%s:%d-%d", r.Name, r.Start, r.End)
}
