package scanproto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortResolutionsOrdersAndDedupes(t *testing.T) {
	got := SortResolutions([]int{600, 150, 300, 150, 600})
	assert.Equal(t, []int{150, 300, 600}, got)
}

func TestSortResolutionsEmptyAndSingle(t *testing.T) {
	assert.Empty(t, SortResolutions(nil))
	assert.Equal(t, []int{300}, SortResolutions([]int{300}))
}

func TestBoundResolutionsKeepsOnlyInRange(t *testing.T) {
	got := BoundResolutions([]int{75, 150, 300, 600, 1200}, 100, 300)
	assert.Equal(t, []int{150, 300}, got)
	for _, r := range got {
		assert.GreaterOrEqual(t, r, 100)
		assert.LessOrEqual(t, r, 300)
	}
}

func TestBoundResolutionsPreservesOrder(t *testing.T) {
	got := BoundResolutions([]int{300, 150, 600}, 0, 400)
	assert.Equal(t, []int{300, 150}, got)
}
