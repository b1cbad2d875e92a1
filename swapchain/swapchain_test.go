package swapchain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeDrawable reports each queued size once, then repeats the last one.
type fakeDrawable struct {
	sizes [][2]int
	waits int
}

func (d *fakeDrawable) DrawableSize() (int, int) {
	size := d.sizes[0]
	if len(d.sizes) > 1 {
		d.sizes = d.sizes[1:]
	}
	return size[0], size[1]
}

func (d *fakeDrawable) WaitEvents() {
	d.waits++
}

func TestWaitForNonZeroExtentBlocksWhileMinimized(t *testing.T) {
	drawable := &fakeDrawable{sizes: [][2]int{{0, 0}, {0, 0}, {800, 600}}}

	width, height := waitForNonZeroExtent(drawable)

	assert.Equal(t, 800, width)
	assert.Equal(t, 600, height)
	// One wait per zero-sized poll before the window came back.
	assert.Equal(t, 2, drawable.waits)
}

func TestWaitForNonZeroExtentBlocksOnZeroWidthOnly(t *testing.T) {
	drawable := &fakeDrawable{sizes: [][2]int{{0, 600}, {800, 600}}}

	width, height := waitForNonZeroExtent(drawable)

	assert.Equal(t, 800, width)
	assert.Equal(t, 600, height)
	assert.Equal(t, 1, drawable.waits)
}

func TestWaitForNonZeroExtentReturnsImmediately(t *testing.T) {
	drawable := &fakeDrawable{sizes: [][2]int{{1024, 768}}}

	width, height := waitForNonZeroExtent(drawable)

	assert.Equal(t, 1024, width)
	assert.Equal(t, 768, height)
	assert.Zero(t, drawable.waits)
}
