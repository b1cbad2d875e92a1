package frameloop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/render/framesync"
	"github.com/vkngwrapper/render/object"
	"github.com/vkngwrapper/render/visibility"
)

type fakeTarget struct {
	recreates  int
	imageCount int
}

func (t *fakeTarget) Recreate() error {
	t.recreates++
	return nil
}

func (t *fakeTarget) ImageCount() int { return t.imageCount }

// fakeSync scripts acquire and present outcomes and records the call
// sequence, including slot advancement.
type fakeSync struct {
	acquireOutcomes []framesync.Outcome
	presentOutcomes []framesync.Outcome

	slot        int
	slotCount   int
	imageCount  int
	resetCalls  int
	calls       []string
	nextAcquire int
	nextPresent int
}

func (s *fakeSync) WaitCurrent() error {
	s.calls = append(s.calls, "wait")
	return nil
}

func (s *fakeSync) Acquire() (int, framesync.Outcome, error) {
	s.calls = append(s.calls, "acquire")
	outcome := framesync.OK
	if s.nextAcquire < len(s.acquireOutcomes) {
		outcome = s.acquireOutcomes[s.nextAcquire]
	}
	s.nextAcquire++
	if outcome == framesync.Stale {
		return 0, outcome, nil
	}
	return s.nextAcquire % s.imageCount, outcome, nil
}

func (s *fakeSync) ClaimImage(imageIndex int) error {
	s.calls = append(s.calls, "claim")
	return nil
}

func (s *fakeSync) Submit(commands core1_0.CommandBuffer) error {
	s.calls = append(s.calls, "submit")
	return nil
}

func (s *fakeSync) Present(imageIndex int) (framesync.Outcome, error) {
	s.calls = append(s.calls, "present")
	outcome := framesync.OK
	if s.nextPresent < len(s.presentOutcomes) {
		outcome = s.presentOutcomes[s.nextPresent]
	}
	s.nextPresent++
	return outcome, nil
}

func (s *fakeSync) Advance() {
	s.calls = append(s.calls, "advance")
	s.slot = (s.slot + 1) % s.slotCount
}

func (s *fakeSync) SlotIndex() int { return s.slot }

func (s *fakeSync) ResetImages(imageCount int) {
	s.calls = append(s.calls, "reset")
	s.resetCalls++
}

type fakeResources struct {
	refreshes []refreshCall
	rebuilds  int
}

type refreshCall struct {
	imageIndex int
	order      []*object.Object
}

func (r *fakeResources) Refresh(imageIndex int, order []*object.Object) error {
	r.refreshes = append(r.refreshes, refreshCall{imageIndex: imageIndex, order: order})
	return nil
}

func (r *fakeResources) Rebuild() error {
	r.rebuilds++
	return nil
}

type fakeRecorder struct {
	records  int
	rebuilds int
}

func (r *fakeRecorder) Record(imageIndex int, order []*object.Object) (core1_0.CommandBuffer, error) {
	r.records++
	return core1_0.CommandBuffer{}, nil
}

func (r *fakeRecorder) Rebuild(imageCount int) error {
	r.rebuilds++
	return nil
}

type harness struct {
	target    *fakeTarget
	sync      *fakeSync
	resources *fakeResources
	recorder  *fakeRecorder
	loop      *Loop
}

func newHarness(callbacks Callbacks) *harness {
	h := &harness{
		target:    &fakeTarget{imageCount: 3},
		sync:      &fakeSync{slotCount: 2, imageCount: 3},
		resources: &fakeResources{},
		recorder:  &fakeRecorder{},
	}
	h.loop = NewLoop(h.target, h.sync, h.resources, h.recorder, visibility.NewRegistry(), callbacks)
	return h
}

func TestFrameHappyPath(t *testing.T) {
	h := newHarness(Callbacks{})

	require.NoError(t, h.loop.Frame())

	assert.Equal(t, []string{"wait", "acquire", "claim", "submit", "present", "advance"}, h.sync.calls)
	assert.Equal(t, 1, h.recorder.records)
	assert.Len(t, h.resources.refreshes, 1)
	assert.Equal(t, uint64(1), h.loop.FrameCount())
	assert.Equal(t, 0, h.target.recreates)
}

func TestStaleAcquireAbandonsFrame(t *testing.T) {
	h := newHarness(Callbacks{})
	h.sync.acquireOutcomes = []framesync.Outcome{framesync.Stale}

	require.NoError(t, h.loop.Frame())

	// No claim, no submit, no present, and the slot did not advance.
	assert.Equal(t, []string{"wait", "acquire", "reset"}, h.sync.calls)
	assert.Equal(t, 0, h.sync.slot)
	assert.Equal(t, 0, h.recorder.records)
	assert.Empty(t, h.resources.refreshes)
	assert.Equal(t, uint64(0), h.loop.FrameCount())

	assert.Equal(t, 1, h.target.recreates)
	assert.Equal(t, 1, h.resources.rebuilds)
	assert.Equal(t, 1, h.recorder.rebuilds)

	// The abandoned slot is reused on the next frame.
	h.sync.calls = nil
	require.NoError(t, h.loop.Frame())
	assert.Equal(t, []string{"wait", "acquire", "claim", "submit", "present", "advance"}, h.sync.calls)
	assert.Equal(t, 1, h.sync.slot)
}

func TestSuboptimalAcquireTolerated(t *testing.T) {
	h := newHarness(Callbacks{})
	h.sync.acquireOutcomes = []framesync.Outcome{framesync.Suboptimal}

	require.NoError(t, h.loop.Frame())

	assert.Equal(t, 0, h.target.recreates)
	assert.Equal(t, uint64(1), h.loop.FrameCount())
}

func TestSuboptimalPresentRecreatesAfterFrame(t *testing.T) {
	h := newHarness(Callbacks{})
	h.sync.presentOutcomes = []framesync.Outcome{framesync.Suboptimal}

	require.NoError(t, h.loop.Frame())

	// The frame was submitted and counted before the rebuild.
	assert.Equal(t, uint64(1), h.loop.FrameCount())
	assert.Equal(t, 1, h.sync.slot)
	assert.Equal(t, 1, h.target.recreates)
	assert.Equal(t, 1, h.sync.resetCalls)
}

func TestResizeRecreatesBeforeAcquiring(t *testing.T) {
	var gotWidth, gotHeight int
	h := newHarness(Callbacks{
		OnResize: func(width, height int) {
			gotWidth = width
			gotHeight = height
		},
	})

	h.loop.Resize(1024, 768)
	require.NoError(t, h.loop.Frame())

	assert.Equal(t, 1024, gotWidth)
	assert.Equal(t, 768, gotHeight)
	assert.Equal(t, 1, h.target.recreates)
	assert.NotContains(t, h.sync.calls, "acquire")

	// The latch clears; the next frame renders normally.
	require.NoError(t, h.loop.Frame())
	assert.Equal(t, 1, h.target.recreates)
	assert.Equal(t, uint64(1), h.loop.FrameCount())
}

func TestRecreatePreservesVisibility(t *testing.T) {
	h := newHarness(Callbacks{})
	a := &object.Object{State: object.DefaultState()}
	b := &object.Object{State: object.DefaultState()}
	h.loop.Registry().Show(a)
	h.loop.Registry().Show(b)

	h.sync.acquireOutcomes = []framesync.Outcome{framesync.Stale}
	require.NoError(t, h.loop.Frame())

	assert.Equal(t, []*object.Object{a, b}, h.loop.Registry().RenderOrder())

	require.NoError(t, h.loop.Frame())
	require.Len(t, h.resources.refreshes, 1)
	assert.Equal(t, []*object.Object{a, b}, h.resources.refreshes[0].order)
}

func TestRunStopsOnClose(t *testing.T) {
	closed := false
	frames := 0
	h := newHarness(Callbacks{})
	h.loop.callbacks = Callbacks{
		BeforeFrame: func(delta time.Duration) {
			frames++
			if frames == 3 {
				h.loop.Close()
			}
		},
		OnClose: func() { closed = true },
	}

	require.NoError(t, h.loop.Run())

	assert.True(t, closed)
	assert.True(t, h.loop.Closing())
	// The closing iteration still completes its frame before Run re-checks.
	assert.Equal(t, uint64(3), h.loop.FrameCount())
}
