// Package swapchain negotiates and owns the presentable images for a surface:
// format, present mode and extent selection clamped to surface capabilities,
// the image views over the swapchain images, and the rebuild dance when the
// surface goes stale.
package swapchain

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	"github.com/vkngwrapper/render"
)

// Drawable reports the platform drawable size backing the surface. WaitEvents
// blocks until the platform reports activity, so the recreate path can sleep
// through a minimized window instead of spinning.
type Drawable interface {
	DrawableSize() (width, height int)
	WaitEvents()
}

// Swapchain is the negotiated set of presentable images for the context's
// surface. The swapchain, its images and their views form one lifetime unit:
// after a successful build all exist, after Destroy none do.
type Swapchain struct {
	Extension khr_swapchain.ExtensionDriver
	Handle    khr_swapchain.Swapchain

	Images     []core1_0.Image
	ImageViews []core1_0.ImageView
	Format     core1_0.Format
	Extent     core1_0.Extent2D

	// Generation increments on every successful build, so resources derived
	// from swapchain images can detect they are stale.
	Generation uint64

	ctx      *render.Context
	drawable Drawable
}

// New builds the initial swapchain for the context's surface.
func New(ctx *render.Context, drawable Drawable) (*Swapchain, error) {
	s := &Swapchain{
		Extension: khr_swapchain.CreateExtensionDriverFromCoreDriver(ctx.DeviceDriver),
		ctx:       ctx,
		drawable:  drawable,
	}

	err := s.build()
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ImageCount returns the number of presentable images.
func (s *Swapchain) ImageCount() int {
	return len(s.Images)
}

func (s *Swapchain) build() error {
	capabilities, _, err := s.ctx.SurfaceExtension.GetPhysicalDeviceSurfaceCapabilities(s.ctx.Surface, s.ctx.PhysicalDevice)
	if err != nil {
		return errors.Wrap(err, "querying surface capabilities")
	}

	formats, _, err := s.ctx.SurfaceExtension.GetPhysicalDeviceSurfaceFormats(s.ctx.Surface, s.ctx.PhysicalDevice)
	if err != nil {
		return errors.Wrap(err, "querying surface formats")
	}

	presentModes, _, err := s.ctx.SurfaceExtension.GetPhysicalDeviceSurfacePresentModes(s.ctx.Surface, s.ctx.PhysicalDevice)
	if err != nil {
		return errors.Wrap(err, "querying surface present modes")
	}

	surfaceFormat := ChooseSurfaceFormat(formats)
	presentMode := ChoosePresentMode(presentModes)

	drawableWidth, drawableHeight := s.drawable.DrawableSize()
	extent := ChooseExtent(capabilities, drawableWidth, drawableHeight)

	imageCount := ChooseImageCount(capabilities)

	sharingMode := core1_0.SharingModeExclusive
	var queueFamilyIndices []int
	if s.ctx.GraphicsFamily != s.ctx.PresentFamily {
		sharingMode = core1_0.SharingModeConcurrent
		queueFamilyIndices = append(queueFamilyIndices, s.ctx.GraphicsFamily, s.ctx.PresentFamily)
	}

	s.Handle, _, err = s.Extension.CreateSwapchain(nil, khr_swapchain.SwapchainCreateInfo{
		Surface: s.ctx.Surface,

		MinImageCount:    imageCount,
		ImageFormat:      surfaceFormat.Format,
		ImageColorSpace:  surfaceFormat.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment,

		ImageSharingMode:   sharingMode,
		QueueFamilyIndices: queueFamilyIndices,

		PreTransform:   capabilities.CurrentTransform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    presentMode,
		Clipped:        true,
	})
	if err != nil {
		return errors.Wrap(err, "creating swapchain")
	}
	s.Extent = extent
	s.Format = surfaceFormat.Format

	s.Images, _, err = s.Extension.GetSwapchainImages(s.Handle)
	if err != nil {
		s.Destroy()
		return errors.Wrap(err, "querying swapchain images")
	}

	for _, image := range s.Images {
		view, err := s.ctx.CreateImageView(image, s.Format, core1_0.ImageAspectColor, 1)
		if err != nil {
			s.Destroy()
			return err
		}
		s.ImageViews = append(s.ImageViews, view)
	}

	s.Generation++
	return nil
}

// Destroy frees the image views and the swapchain handle, in that order. The
// device must be idle. Idempotent.
func (s *Swapchain) Destroy() {
	for _, imageView := range s.ImageViews {
		s.ctx.DeviceDriver.DestroyImageView(imageView, nil)
	}
	s.ImageViews = nil
	s.Images = nil

	if s.Handle.Initialized() {
		s.Extension.DestroySwapchain(s.Handle, nil)
		s.Handle = khr_swapchain.Swapchain{}
	}
}

// waitForNonZeroExtent blocks until the drawable reports a non-zero size in
// both dimensions, sleeping on platform events while the window is minimized.
func waitForNonZeroExtent(drawable Drawable) (width, height int) {
	width, height = drawable.DrawableSize()
	for width == 0 || height == 0 {
		drawable.WaitEvents()
		width, height = drawable.DrawableSize()
	}
	return width, height
}

// Recreate rebuilds the swapchain after a resize or a stale presentation
// target. It blocks while the drawable size is zero (minimized window),
// waits for the device to go idle so no in-flight frame still references the
// old images, then destroys and rebuilds.
func (s *Swapchain) Recreate() error {
	waitForNonZeroExtent(s.drawable)

	err := s.ctx.WaitIdle()
	if err != nil {
		return errors.Wrap(err, "waiting for device idle before swapchain rebuild")
	}

	s.Destroy()
	return s.build()
}
