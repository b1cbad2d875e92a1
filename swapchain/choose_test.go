package swapchain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
)

func TestChooseSurfaceFormatPrefersBGRA8SRGB(t *testing.T) {
	formats := []khr_surface.SurfaceFormat{
		{Format: core1_0.FormatR8G8B8A8UnsignedNormalized, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
		{Format: core1_0.FormatB8G8R8A8SRGB, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
	}

	chosen := ChooseSurfaceFormat(formats)
	assert.Equal(t, core1_0.FormatB8G8R8A8SRGB, chosen.Format)
}

func TestChooseSurfaceFormatFallsBackToFirst(t *testing.T) {
	formats := []khr_surface.SurfaceFormat{
		{Format: core1_0.FormatR8G8B8A8UnsignedNormalized, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
	}

	chosen := ChooseSurfaceFormat(formats)
	assert.Equal(t, formats[0], chosen)
}

func TestChoosePresentModePrefersMailbox(t *testing.T) {
	modes := []khr_surface.PresentMode{
		khr_surface.PresentModeFIFO,
		khr_surface.PresentModeMailbox,
	}
	assert.Equal(t, khr_surface.PresentModeMailbox, ChoosePresentMode(modes))

	modes = []khr_surface.PresentMode{khr_surface.PresentModeFIFO, khr_surface.PresentModeImmediate}
	assert.Equal(t, khr_surface.PresentModeFIFO, ChoosePresentMode(modes))
}

func TestChooseExtentPinnedBySurface(t *testing.T) {
	capabilities := &khr_surface.SurfaceCapabilities{
		CurrentExtent: core1_0.Extent2D{Width: 800, Height: 600},
	}

	extent := ChooseExtent(capabilities, 1920, 1080)
	assert.Equal(t, core1_0.Extent2D{Width: 800, Height: 600}, extent)
}

func TestChooseExtentClampsDrawableSize(t *testing.T) {
	capabilities := &khr_surface.SurfaceCapabilities{
		CurrentExtent:  core1_0.Extent2D{Width: -1, Height: -1},
		MinImageExtent: core1_0.Extent2D{Width: 64, Height: 64},
		MaxImageExtent: core1_0.Extent2D{Width: 1024, Height: 1024},
	}

	assert.Equal(t, core1_0.Extent2D{Width: 800, Height: 600}, ChooseExtent(capabilities, 800, 600))
	assert.Equal(t, core1_0.Extent2D{Width: 1024, Height: 64}, ChooseExtent(capabilities, 4096, 16))
}

func TestChooseImageCount(t *testing.T) {
	assert.Equal(t, 3, ChooseImageCount(&khr_surface.SurfaceCapabilities{MinImageCount: 2}))
	assert.Equal(t, 3, ChooseImageCount(&khr_surface.SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 3}))
	assert.Equal(t, 4, ChooseImageCount(&khr_surface.SurfaceCapabilities{MinImageCount: 3, MaxImageCount: 8}))
}
