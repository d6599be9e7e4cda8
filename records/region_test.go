package records

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReferenceRegion(t *testing.T) {
	r := ReferenceRegion{Name: "chr1", Start: 100, End: 200}

	assert.True(t, r.Overlaps("chr1", 150, 160))
	assert.True(t, r.Overlaps("chr1", 199, 300))
	assert.False(t, r.Overlaps("chr1", 200, 300), "half-open: end excluded")
	assert.False(t, r.Overlaps("chr1", 0, 100))
	assert.False(t, r.Overlaps("chr2", 150, 160))

	start, end := r.OneBasedClosed()
	assert.Equal(t, int64(101), start)
	assert.Equal(t, int64(200), end)

	assert.Equal(t, "chr1:100-200", r.String())
}
