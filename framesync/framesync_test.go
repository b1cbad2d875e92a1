package framesync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// testPool builds a pool without a device; only driver-free ring and map
// logic can be exercised on it.
func testPool(slotCount, imageCount int) *Pool {
	p := &Pool{frames: make([]frameSlot, slotCount)}
	p.ResetImages(imageCount)
	return p
}

func TestSlotReuseCount(t *testing.T) {
	const slots = 2
	const frames = 7

	p := testPool(slots, 3)
	uses := make([]int, slots)

	for i := 0; i < frames; i++ {
		uses[p.SlotIndex()]++
		p.Advance()
	}

	// ceil(frames / slots) for the busiest slot, one less for the rest.
	assert.Equal(t, 4, uses[0])
	assert.Equal(t, 3, uses[1])
}

func TestAdvanceWrapsAround(t *testing.T) {
	p := testPool(3, 3)

	seen := []int{}
	for i := 0; i < 6; i++ {
		seen = append(seen, p.SlotIndex())
		p.Advance()
	}
	assert.Equal(t, []int{0, 1, 2, 0, 1, 2}, seen)
}

func TestClaimImageRecordsCurrentSlot(t *testing.T) {
	p := testPool(2, 3)

	// Fresh images have no prior user, so no fence wait happens and the
	// claim just records the mapping.
	assert.Equal(t, -1, p.LastUser(1))
	assert.NoError(t, p.ClaimImage(1))
	assert.Equal(t, 0, p.LastUser(1))

	p.Advance()
	assert.NoError(t, p.ClaimImage(2))
	assert.Equal(t, 2, p.SlotCount())
	assert.Equal(t, 1, p.LastUser(2))
	assert.Equal(t, 0, p.LastUser(1))
}

func TestResetImagesClearsMapOnly(t *testing.T) {
	p := testPool(2, 2)

	assert.NoError(t, p.ClaimImage(0))
	p.Advance()

	p.ResetImages(4)

	for i := 0; i < 4; i++ {
		assert.Equal(t, -1, p.LastUser(i))
	}
	// The ring itself is untouched by a swapchain rebuild.
	assert.Equal(t, 1, p.SlotIndex())
	assert.Equal(t, 2, p.SlotCount())
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "ok", OK.String())
	assert.Equal(t, "suboptimal", Suboptimal.String())
	assert.Equal(t, "stale", Stale.String())
}
