// Package window wraps an SDL2 window as a Vulkan presentation target: it
// supplies the loader entry point and instance extensions, creates the
// surface, and reports drawable size for swapchain sizing.
package window

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2/v3"
	"github.com/vkngwrapper/render"
)

// Window is an SDL2 window opened with Vulkan support. Its methods must be
// called from the thread that runs the SDL event loop.
type Window struct {
	SDL *sdl.Window

	minimized bool
}

// New initializes SDL video and opens a resizable Vulkan-capable window.
func New(title string, width, height int) (*Window, error) {
	err := sdl.Init(sdl.INIT_VIDEO)
	if err != nil {
		return nil, errors.Wrap(err, "initializing sdl")
	}

	sdlWindow, err := sdl.CreateWindow(title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		int32(width), int32(height), sdl.WINDOW_SHOWN|sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		return nil, errors.Wrap(err, "creating sdl window")
	}

	return &Window{SDL: sdlWindow}, nil
}

// InstanceProcAddr returns the vkGetInstanceProcAddr pointer from SDL's
// Vulkan loader, for driver creation.
func (w *Window) InstanceProcAddr() unsafe.Pointer {
	return sdl.VulkanGetVkGetInstanceProcAddr()
}

// InstanceExtensions returns the instance extensions SDL requires to present
// to this window.
func (w *Window) InstanceExtensions() []string {
	return w.SDL.VulkanGetInstanceExtensions()
}

// CreateSurface creates a Vulkan surface for this window on the context's
// instance.
func (w *Window) CreateSurface(ctx *render.Context) (khr_surface.Surface, error) {
	surface, err := vkng_sdl2.CreateSurface(ctx.InstanceDriver.Instance(), ctx.SurfaceExtension, w.SDL)
	if err != nil {
		return khr_surface.Surface{}, errors.Wrap(err, "creating window surface")
	}
	return surface, nil
}

// DrawableSize returns the window's drawable size in pixels. Zero in either
// dimension while minimized.
func (w *Window) DrawableSize() (int, int) {
	width, height := w.SDL.VulkanGetDrawableSize()
	return int(width), int(height)
}

// WaitEvents blocks until at least one event arrives. Used while the window
// is minimized and rendering is pointless.
func (w *Window) WaitEvents() {
	sdl.WaitEvent()
}

// Minimized reports whether the window is currently minimized, tracked from
// the events seen by Pump.
func (w *Window) Minimized() bool {
	return w.minimized
}

// Pump drains the SDL event queue, invoking onResize with the new drawable
// size and onClose on a quit request. Either callback may be nil.
func (w *Window) Pump(onResize func(width, height int), onClose func()) {
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		switch e := event.(type) {
		case *sdl.QuitEvent:
			if onClose != nil {
				onClose()
			}
		case *sdl.WindowEvent:
			switch e.Event {
			case sdl.WINDOWEVENT_MINIMIZED:
				w.minimized = true
			case sdl.WINDOWEVENT_RESTORED:
				w.minimized = false
			case sdl.WINDOWEVENT_RESIZED, sdl.WINDOWEVENT_SIZE_CHANGED:
				width, height := w.DrawableSize()
				if width > 0 && height > 0 {
					w.minimized = false
					if onResize != nil {
						onResize(width, height)
					}
				} else {
					w.minimized = true
				}
			}
		}
	}
}

// Destroy closes the window and shuts SDL down.
func (w *Window) Destroy() {
	if w.SDL != nil {
		_ = w.SDL.Destroy()
		w.SDL = nil
	}
	sdl.Quit()
}
