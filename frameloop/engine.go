package frameloop

import (
	"log"
	"time"

	"github.com/loov/hrtime"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/render"
	"github.com/vkngwrapper/render/drawpool"
	"github.com/vkngwrapper/render/framesync"
	"github.com/vkngwrapper/render/object"
	"github.com/vkngwrapper/render/record"
	"github.com/vkngwrapper/render/swapchain"
	"github.com/vkngwrapper/render/visibility"
)

// DefaultFramesInFlight is the frame-slot ring size used when Options leaves
// it zero. Two slots keep the CPU one frame ahead of the GPU without letting
// latency stack up.
const DefaultFramesInFlight = 2

// Options configures an Engine.
type Options struct {
	FramesInFlight int
	Callbacks      Callbacks
}

// Engine binds the concrete subsystems into a runnable frame loop: swapchain,
// frame-slot ring, draw-resource pool, command recorder and visibility
// registry, created in that order and destroyed in reverse.
type Engine struct {
	ctx      *render.Context
	sc       *swapchain.Swapchain
	frames   *framesync.Pool
	pool     *drawpool.Pool
	recorder *record.Recorder
	registry *visibility.Registry
	loop     *Loop

	started time.Duration
}

// syncBinding pairs the frame pool with the swapchain it acquires from.
type syncBinding struct {
	frames *framesync.Pool
	sc     *swapchain.Swapchain
}

func (b syncBinding) WaitCurrent() error { return b.frames.WaitCurrent() }
func (b syncBinding) Acquire() (int, framesync.Outcome, error) {
	return b.frames.Acquire(b.sc)
}
func (b syncBinding) ClaimImage(imageIndex int) error { return b.frames.ClaimImage(imageIndex) }
func (b syncBinding) Submit(commands core1_0.CommandBuffer) error {
	return b.frames.Submit(commands)
}
func (b syncBinding) Present(imageIndex int) (framesync.Outcome, error) {
	return b.frames.Present(b.sc, imageIndex)
}
func (b syncBinding) Advance()                   { b.frames.Advance() }
func (b syncBinding) SlotIndex() int             { return b.frames.SlotIndex() }
func (b syncBinding) ResetImages(imageCount int) { b.frames.ResetImages(imageCount) }

// recorderBinding pairs the recorder with the pool and swapchain it records
// against.
type recorderBinding struct {
	recorder *record.Recorder
	pool     *drawpool.Pool
	sc       *swapchain.Swapchain
}

func (b recorderBinding) Record(imageIndex int, order []*object.Object) (core1_0.CommandBuffer, error) {
	return b.recorder.Record(imageIndex, b.pool, b.sc, order)
}

func (b recorderBinding) Rebuild(imageCount int) error {
	return b.recorder.Rebuild(imageCount)
}

// New builds the render stack on an initialized device context and a drawable
// surface target.
func New(ctx *render.Context, drawable swapchain.Drawable, options Options) (*Engine, error) {
	framesInFlight := options.FramesInFlight
	if framesInFlight == 0 {
		framesInFlight = DefaultFramesInFlight
	}

	e := &Engine{
		ctx:      ctx,
		registry: visibility.NewRegistry(),
		started:  hrtime.Now(),
	}

	var err error
	e.sc, err = swapchain.New(ctx, drawable)
	if err != nil {
		return nil, err
	}

	e.frames, err = framesync.NewPool(ctx, framesInFlight, e.sc.ImageCount())
	if err != nil {
		e.Destroy()
		return nil, err
	}

	e.pool, err = drawpool.NewPool(ctx, e.sc)
	if err != nil {
		e.Destroy()
		return nil, err
	}

	e.recorder, err = record.NewRecorder(ctx, e.sc.ImageCount())
	if err != nil {
		e.Destroy()
		return nil, err
	}

	e.loop = NewLoop(
		e.sc,
		syncBinding{frames: e.frames, sc: e.sc},
		e.pool,
		recorderBinding{recorder: e.recorder, pool: e.pool, sc: e.sc},
		e.registry,
		options.Callbacks,
	)

	return e, nil
}

// Loop returns the frame loop for Run/Frame/Resize/Close.
func (e *Engine) Loop() *Loop {
	return e.loop
}

// Registry returns the visibility registry objects are shown through.
func (e *Engine) Registry() *visibility.Registry {
	return e.registry
}

// Pool returns the draw-resource pool, for SetScene.
func (e *Engine) Pool() *drawpool.Pool {
	return e.pool
}

// Swapchain returns the presentation target.
func (e *Engine) Swapchain() *swapchain.Swapchain {
	return e.sc
}

// Run drives the loop until close, drains the device, and logs frame stats.
func (e *Engine) Run() error {
	err := e.loop.Run()
	if err != nil {
		return err
	}

	err = e.ctx.WaitIdle()
	if err != nil {
		return err
	}

	elapsed := hrtime.Since(e.started)
	frames := e.loop.FrameCount()
	if elapsed > 0 && frames > 0 {
		log.Printf("rendered %d frames in %v (%.1f fps average)", frames, elapsed.Round(time.Millisecond),
			float64(frames)/elapsed.Seconds())
	}
	return nil
}

// Destroy waits for the device to go idle, then tears the stack down in
// reverse creation order. The context itself stays alive; the host owns it.
// Idempotent.
func (e *Engine) Destroy() {
	if e.ctx.DeviceDriver != nil {
		_ = e.ctx.WaitIdle()
	}

	if e.recorder != nil {
		e.recorder.Destroy()
		e.recorder = nil
	}
	if e.pool != nil {
		e.pool.Destroy()
		e.pool = nil
	}
	if e.frames != nil {
		e.frames.Destroy()
		e.frames = nil
	}
	if e.sc != nil {
		e.sc.Destroy()
		e.sc = nil
	}
}
