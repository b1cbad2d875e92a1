// Package frameloop drives the per-frame state machine: acquire an image,
// refresh that image's draw resources, record, submit, present, advance. A
// stale presentation target at any point routes through the recreate
// transition, which rebuilds the swapchain-derived resources while leaving
// the frame-slot ring and the visibility registry untouched.
package frameloop

import (
	"time"

	"github.com/loov/hrtime"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/render/framesync"
	"github.com/vkngwrapper/render/object"
	"github.com/vkngwrapper/render/visibility"
)

// Target is the presentation side the loop rebuilds on a stale surface.
type Target interface {
	Recreate() error
	ImageCount() int
}

// Sync is the frame-slot ring the loop synchronizes through.
type Sync interface {
	WaitCurrent() error
	Acquire() (imageIndex int, outcome framesync.Outcome, err error)
	ClaimImage(imageIndex int) error
	Submit(commands core1_0.CommandBuffer) error
	Present(imageIndex int) (framesync.Outcome, error)
	Advance()
	SlotIndex() int
	ResetImages(imageCount int)
}

// Resources is the per-image draw-resource pool refreshed every frame.
type Resources interface {
	Refresh(imageIndex int, order []*object.Object) error
	Rebuild() error
}

// Recorder re-records one command buffer per frame.
type Recorder interface {
	Record(imageIndex int, order []*object.Object) (core1_0.CommandBuffer, error)
	Rebuild(imageCount int) error
}

// Callbacks is the host's extension surface. All three are optional.
// BeforeFrame runs once per loop iteration before image acquisition; hosts
// typically pump their event queue here and feed Resize/Close back in.
type Callbacks struct {
	BeforeFrame func(delta time.Duration)
	OnResize    func(width, height int)
	OnClose     func()
}

// Loop is the orchestrating state machine. A single goroutine drives it;
// resize and close signals are latched and acted on at iteration boundaries.
type Loop struct {
	target    Target
	sync      Sync
	resources Resources
	recorder  Recorder
	registry  *visibility.Registry
	callbacks Callbacks

	closing       bool
	resizePending bool
	resizeWidth   int
	resizeHeight  int

	frames    uint64
	lastFrame time.Duration
}

// NewLoop assembles a loop from its collaborators. Hosts normally go through
// Engine instead, which binds the concrete subsystems.
func NewLoop(target Target, sync Sync, resources Resources, recorder Recorder, registry *visibility.Registry, callbacks Callbacks) *Loop {
	return &Loop{
		target:    target,
		sync:      sync,
		resources: resources,
		recorder:  recorder,
		registry:  registry,
		callbacks: callbacks,
		lastFrame: hrtime.Now(),
	}
}

// Registry returns the visibility registry the loop renders from.
func (l *Loop) Registry() *visibility.Registry {
	return l.registry
}

// FrameCount returns the number of frames submitted and presented.
func (l *Loop) FrameCount() uint64 {
	return l.frames
}

// Resize latches an external resize notification; the swapchain is rebuilt
// at the start of the next iteration.
func (l *Loop) Resize(width, height int) {
	l.resizePending = true
	l.resizeWidth = width
	l.resizeHeight = height
}

// Close requests loop termination at the next iteration boundary. The frame
// currently on the GPU is never pre-empted.
func (l *Loop) Close() {
	l.closing = true
}

// Closing reports whether a close request is pending.
func (l *Loop) Closing() bool {
	return l.closing
}

// Run drives Frame until Close is called or a frame fails, then invokes the
// OnClose callback. The caller remains responsible for draining the device
// and tearing resources down afterwards.
func (l *Loop) Run() error {
	for !l.closing {
		err := l.Frame()
		if err != nil {
			return err
		}
	}

	if l.callbacks.OnClose != nil {
		l.callbacks.OnClose()
	}
	return nil
}

// Frame executes one iteration of the state machine. A frame abandoned at
// acquisition because the target went stale is not submitted and does not
// advance the frame-slot index.
func (l *Loop) Frame() error {
	if l.closing {
		return nil
	}

	now := hrtime.Now()
	delta := now - l.lastFrame
	l.lastFrame = now

	if l.callbacks.BeforeFrame != nil {
		l.callbacks.BeforeFrame(delta)
	}

	if l.resizePending {
		l.resizePending = false
		if l.callbacks.OnResize != nil {
			l.callbacks.OnResize(l.resizeWidth, l.resizeHeight)
		}
		return l.recreate()
	}

	err := l.sync.WaitCurrent()
	if err != nil {
		return err
	}

	imageIndex, outcome, err := l.sync.Acquire()
	if err != nil {
		return err
	}
	if outcome == framesync.Stale {
		// Nothing was submitted for this slot; it is reused as-is after
		// the rebuild.
		return l.recreate()
	}

	err = l.sync.ClaimImage(imageIndex)
	if err != nil {
		return err
	}

	order := l.registry.RenderOrder()

	err = l.resources.Refresh(imageIndex, order)
	if err != nil {
		return err
	}

	commands, err := l.recorder.Record(imageIndex, order)
	if err != nil {
		return err
	}

	err = l.sync.Submit(commands)
	if err != nil {
		return err
	}

	outcome, err = l.sync.Present(imageIndex)
	if err != nil {
		return err
	}

	l.sync.Advance()
	l.frames++

	if outcome != framesync.OK {
		return l.recreate()
	}
	return nil
}

// recreate is the RECREATE transition: rebuild the swapchain and everything
// derived from its images. The frame-slot ring survives; only its image map
// is cleared.
func (l *Loop) recreate() error {
	err := l.target.Recreate()
	if err != nil {
		return err
	}

	err = l.resources.Rebuild()
	if err != nil {
		return err
	}

	err = l.recorder.Rebuild(l.target.ImageCount())
	if err != nil {
		return err
	}

	l.sync.ResetImages(l.target.ImageCount())
	return nil
}
