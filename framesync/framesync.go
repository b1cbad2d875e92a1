// Package framesync owns the fixed ring of CPU/GPU synchronization slots that
// lets several frames be in flight at once. The ring size is independent of
// the swapchain image count; a separate map records which slot last rendered
// into each swapchain image so per-image resources are never rewritten while
// the GPU may still be reading them.
package framesync

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	"github.com/vkngwrapper/render"
	"github.com/vkngwrapper/render/swapchain"
)

// Outcome classifies an acquire or present result. Stale and Suboptimal are
// expected transient conditions, not errors: Stale always forces a swapchain
// rebuild, Suboptimal is tolerated at acquire and rebuilt after present.
type Outcome int

const (
	OK Outcome = iota
	Suboptimal
	Stale
)

func (o Outcome) String() string {
	switch o {
	case OK:
		return "ok"
	case Suboptimal:
		return "suboptimal"
	case Stale:
		return "stale"
	}
	return "unknown"
}

// frameSlot is one Frame: the fence and semaphore pair for a single
// in-flight submission. Slots are created once and reused cyclically; they
// are never tied to a particular swapchain image.
type frameSlot struct {
	imageAvailable core1_0.Semaphore
	renderFinished core1_0.Semaphore
	fence          core1_0.Fence
}

// noSlot marks a swapchain image no frame slot has rendered into yet.
const noSlot = -1

// Pool is the frame-slot ring plus the image-index map.
type Pool struct {
	ctx     *render.Context
	frames  []frameSlot
	current int

	// imagesInFlight[imageIndex] is the slot that last submitted work
	// targeting that image, or noSlot.
	imagesInFlight []int
}

// NewPool creates slotCount frame slots (fences start signaled so the first
// wait on each slot passes) and sizes the image map for imageCount images.
func NewPool(ctx *render.Context, slotCount, imageCount int) (*Pool, error) {
	if slotCount < 1 {
		return nil, errors.New("frame pool requires at least one slot")
	}

	p := &Pool{ctx: ctx}
	for i := 0; i < slotCount; i++ {
		var slot frameSlot
		var err error

		slot.imageAvailable, _, err = ctx.DeviceDriver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
		if err != nil {
			p.Destroy()
			return nil, errors.Wrap(err, "creating image-available semaphore")
		}

		slot.renderFinished, _, err = ctx.DeviceDriver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
		if err != nil {
			ctx.DeviceDriver.DestroySemaphore(slot.imageAvailable, nil)
			p.Destroy()
			return nil, errors.Wrap(err, "creating render-finished semaphore")
		}

		slot.fence, _, err = ctx.DeviceDriver.CreateFence(nil, core1_0.FenceCreateInfo{
			Flags: core1_0.FenceCreateSignaled,
		})
		if err != nil {
			ctx.DeviceDriver.DestroySemaphore(slot.imageAvailable, nil)
			ctx.DeviceDriver.DestroySemaphore(slot.renderFinished, nil)
			p.Destroy()
			return nil, errors.Wrap(err, "creating in-flight fence")
		}

		p.frames = append(p.frames, slot)
	}

	p.ResetImages(imageCount)
	return p, nil
}

// SlotCount returns the fixed number of frame slots.
func (p *Pool) SlotCount() int {
	return len(p.frames)
}

// SlotIndex returns the current frame slot.
func (p *Pool) SlotIndex() int {
	return p.current
}

// WaitCurrent blocks until the current slot's previous submission has
// completed on the GPU. Must precede any reuse of resources that submission
// wrote. The wait is unbounded; forward progress is the backend's guarantee.
func (p *Pool) WaitCurrent() error {
	_, err := p.ctx.DeviceDriver.WaitForFences(true, common.NoTimeout, p.frames[p.current].fence)
	if err != nil {
		return errors.Wrap(err, "waiting for frame fence")
	}
	return nil
}

// Acquire asks the presentation engine for the next image, signaling the
// current slot's image-available semaphore. A Stale outcome means the caller
// must rebuild the swapchain and must not submit this frame.
func (p *Pool) Acquire(sc *swapchain.Swapchain) (int, Outcome, error) {
	imageIndex, res, err := sc.Extension.AcquireNextImage(sc.Handle, common.NoTimeout, &p.frames[p.current].imageAvailable, nil)
	if res == khr_swapchain.VKErrorOutOfDate {
		return 0, Stale, nil
	}
	if err != nil {
		return 0, OK, errors.Wrap(err, "acquiring swapchain image")
	}
	if res == khr_swapchain.VKSuboptimal {
		return imageIndex, Suboptimal, nil
	}
	return imageIndex, OK, nil
}

// ClaimImage waits on the fence of whichever slot last rendered into
// imageIndex, then records the current slot as its user. Even when the
// mapped slot is the current one this wait is required: acquire-order timing
// can hand the same image to overlapping slots, and the map is authoritative.
func (p *Pool) ClaimImage(imageIndex int) error {
	last := p.imagesInFlight[imageIndex]
	if last != noSlot {
		_, err := p.ctx.DeviceDriver.WaitForFences(true, common.NoTimeout, p.frames[last].fence)
		if err != nil {
			return errors.Wrap(err, "waiting for image fence")
		}
	}
	p.imagesInFlight[imageIndex] = p.current
	return nil
}

// LastUser returns the slot that last rendered into imageIndex, or -1.
func (p *Pool) LastUser(imageIndex int) int {
	return p.imagesInFlight[imageIndex]
}

// Submit resets the current slot's fence and submits commands on the graphics
// queue, gated on image-available and signaling render-finished plus the
// fence.
func (p *Pool) Submit(commands core1_0.CommandBuffer) error {
	slot := &p.frames[p.current]

	_, err := p.ctx.DeviceDriver.ResetFences(slot.fence)
	if err != nil {
		return errors.Wrap(err, "resetting frame fence")
	}

	_, err = p.ctx.DeviceDriver.QueueSubmit(p.ctx.GraphicsQueue, &slot.fence,
		core1_0.SubmitInfo{
			WaitSemaphores:   []core1_0.Semaphore{slot.imageAvailable},
			WaitDstStageMask: []core1_0.PipelineStageFlags{core1_0.PipelineStageColorAttachmentOutput},
			CommandBuffers:   []core1_0.CommandBuffer{commands},
			SignalSemaphores: []core1_0.Semaphore{slot.renderFinished},
		},
	)
	if err != nil {
		return errors.Wrap(err, "submitting frame")
	}
	return nil
}

// Present queues a present of imageIndex gated on the current slot's
// render-finished semaphore and classifies the result.
func (p *Pool) Present(sc *swapchain.Swapchain, imageIndex int) (Outcome, error) {
	res, err := sc.Extension.QueuePresent(p.ctx.PresentQueue, khr_swapchain.PresentInfo{
		WaitSemaphores: []core1_0.Semaphore{p.frames[p.current].renderFinished},
		Swapchains:     []khr_swapchain.Swapchain{sc.Handle},
		ImageIndices:   []int{imageIndex},
	})
	if res == khr_swapchain.VKErrorOutOfDate {
		return Stale, nil
	}
	if err != nil {
		return OK, errors.Wrap(err, "presenting swapchain image")
	}
	if res == khr_swapchain.VKSuboptimal {
		return Suboptimal, nil
	}
	return OK, nil
}

// Advance moves to the next frame slot. Not called when a frame is abandoned
// before submission.
func (p *Pool) Advance() {
	p.current = (p.current + 1) % len(p.frames)
}

// ResetImages resizes and clears the image-index map after a swapchain
// rebuild. The frame slots themselves are untouched.
func (p *Pool) ResetImages(imageCount int) {
	p.imagesInFlight = make([]int, imageCount)
	for i := range p.imagesInFlight {
		p.imagesInFlight[i] = noSlot
	}
}

// Destroy releases every slot's fence and semaphores. Idempotent.
func (p *Pool) Destroy() {
	for _, slot := range p.frames {
		if slot.fence.Initialized() {
			p.ctx.DeviceDriver.DestroyFence(slot.fence, nil)
		}
		if slot.renderFinished.Initialized() {
			p.ctx.DeviceDriver.DestroySemaphore(slot.renderFinished, nil)
		}
		if slot.imageAvailable.Initialized() {
			p.ctx.DeviceDriver.DestroySemaphore(slot.imageAvailable, nil)
		}
	}
	p.frames = nil
}
