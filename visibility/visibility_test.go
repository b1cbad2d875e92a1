package visibility

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/render/object"
)

func newObject(depthTest bool) *object.Object {
	o := &object.Object{State: object.DefaultState()}
	o.State.DepthTest = depthTest
	return o
}

func queued(r *Registry, o *object.Object) int {
	count := 0
	order := r.RenderOrder()
	for _, candidate := range order {
		if candidate == o && !candidate.State.DepthTest {
			count++
		}
	}
	return count
}

func TestShowDepthTestedNotQueued(t *testing.T) {
	r := NewRegistry()
	a := newObject(true)

	r.Show(a)

	assert.True(t, r.IsVisible(a))
	assert.Equal(t, []*object.Object{a}, r.RenderOrder())
	assert.Zero(t, queued(r, a))
}

func TestShowDepthSkippingQueuedOnce(t *testing.T) {
	r := NewRegistry()
	b := newObject(false)

	r.Show(b)
	r.Show(b)

	assert.Equal(t, 1, r.VisibleCount())
	assert.Equal(t, 1, queued(r, b))
}

func TestHideRemovesFromSetAndQueue(t *testing.T) {
	r := NewRegistry()
	b := newObject(false)

	r.Show(b)
	r.Hide(b)

	assert.False(t, r.IsVisible(b))
	assert.Empty(t, r.RenderOrder())

	// Hiding again is a no-op
	r.Hide(b)
	assert.Empty(t, r.RenderOrder())
}

func TestHideAll(t *testing.T) {
	r := NewRegistry()
	objects := []*object.Object{newObject(true), newObject(false), newObject(false)}
	for _, o := range objects {
		r.Show(o)
	}

	r.HideAll(objects)

	assert.Zero(t, r.VisibleCount())
	assert.Empty(t, r.RenderOrder())
}

func TestRenderOrderDepthTestedFirst(t *testing.T) {
	r := NewRegistry()
	overlay1 := newObject(false)
	solid1 := newObject(true)
	overlay2 := newObject(false)
	solid2 := newObject(true)

	r.Show(overlay1)
	r.Show(solid1)
	r.Show(overlay2)
	r.Show(solid2)

	assert.Equal(t, []*object.Object{solid1, solid2, overlay1, overlay2}, r.RenderOrder())
}

func TestDepthTestToggleMovesToQueueTail(t *testing.T) {
	r := NewRegistry()
	a := newObject(true)
	b := newObject(false)

	r.Show(a)
	r.Show(b)
	require.Equal(t, []*object.Object{a, b}, r.RenderOrder())

	b.State.DepthTest = true
	r.DepthTestChanged(b)
	require.Equal(t, []*object.Object{a, b}, r.RenderOrder())
	assert.Zero(t, queued(r, b))

	b.State.DepthTest = false
	r.DepthTestChanged(b)
	assert.Equal(t, []*object.Object{a, b}, r.RenderOrder())
	assert.Equal(t, 1, queued(r, b))
}

func TestToggleReappendsAtTailNotOriginalPosition(t *testing.T) {
	r := NewRegistry()
	first := newObject(false)
	second := newObject(false)

	r.Show(first)
	r.Show(second)
	require.Equal(t, []*object.Object{first, second}, r.RenderOrder())

	first.State.DepthTest = true
	r.DepthTestChanged(first)
	first.State.DepthTest = false
	r.DepthTestChanged(first)

	assert.Equal(t, []*object.Object{second, first}, r.RenderOrder())
}

func TestToggleInvisibleObjectIsNoOp(t *testing.T) {
	r := NewRegistry()
	shown := newObject(false)
	hidden := newObject(false)

	r.Show(shown)

	hidden.State.DepthTest = true
	r.DepthTestChanged(hidden)
	hidden.State.DepthTest = false
	r.DepthTestChanged(hidden)

	assert.Equal(t, []*object.Object{shown}, r.RenderOrder())
}

func TestContractViolationsPanic(t *testing.T) {
	r := NewRegistry()
	a := newObject(true)
	r.Show(a)

	// DepthTest still true: nothing to remove from the queue.
	assert.Panics(t, func() {
		r.DepthTestChanged(a)
	})

	b := newObject(false)
	r.Show(b)

	// DepthTest still false: b is already queued.
	assert.Panics(t, func() {
		r.DepthTestChanged(b)
	})
}

func TestQueueUniquenessUnderChurn(t *testing.T) {
	r := NewRegistry()
	objects := make([]*object.Object, 6)
	for i := range objects {
		objects[i] = newObject(i%2 == 0)
		r.Show(objects[i])
	}

	for round := 0; round < 20; round++ {
		o := objects[round%len(objects)]
		switch round % 3 {
		case 0:
			r.Hide(o)
		case 1:
			r.Show(o)
		default:
			if r.IsVisible(o) {
				o.State.DepthTest = !o.State.DepthTest
				r.DepthTestChanged(o)
			}
		}

		seen := make(map[*object.Object]int)
		for _, drawn := range r.RenderOrder() {
			seen[drawn]++
			assert.True(t, r.IsVisible(drawn))
		}
		for drawn, count := range seen {
			assert.Equal(t, 1, count, "object %p drawn more than once", drawn)
		}
	}
}
