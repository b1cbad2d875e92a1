package object

import (
	"image"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/render"
)

// Texture is a sampled 2D image with a full mip chain and sampler. Decoding
// is the caller's concern; any image.Image works.
type Texture struct {
	Image     core1_0.Image
	View      core1_0.ImageView
	Sampler   core1_0.Sampler
	MipLevels int

	memory core1_0.DeviceMemory
	ctx    *render.Context
}

// NewTexture uploads img into a device-local sampled image, generates its mip
// chain and creates a sampler.
func NewTexture(ctx *render.Context, img image.Image) (*Texture, error) {
	bounds := img.Bounds()
	dims := bounds.Size()
	imageSize := dims.X * dims.Y * 4

	t := &Texture{
		MipLevels: int(math.Log2(math.Max(float64(dims.X), float64(dims.Y)))) + 1,
		ctx:       ctx,
	}

	stagingBuffer, stagingMemory, err := ctx.CreateBuffer(imageSize, core1_0.BufferUsageTransferSrc, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		return nil, err
	}
	defer ctx.DeviceDriver.DestroyBuffer(stagingBuffer, nil)
	defer ctx.DeviceDriver.FreeMemory(stagingMemory, nil)

	pixelData := make([]byte, 0, imageSize)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := img.At(x, y).RGBA()
			pixelData = append(pixelData, byte(r>>8), byte(g>>8), byte(b>>8), byte(a>>8))
		}
	}

	err = ctx.WriteData(stagingMemory, 0, pixelData)
	if err != nil {
		return nil, err
	}

	t.Image, t.memory, err = ctx.CreateImage(dims.X,
		dims.Y,
		t.MipLevels,
		core1_0.FormatR8G8B8A8SRGB,
		core1_0.ImageTilingOptimal,
		core1_0.ImageUsageTransferSrc|core1_0.ImageUsageTransferDst|core1_0.ImageUsageSampled,
		core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return nil, err
	}

	err = ctx.TransitionImageLayout(t.Image, core1_0.ImageLayoutUndefined, core1_0.ImageLayoutTransferDstOptimal, t.MipLevels)
	if err != nil {
		t.Destroy()
		return nil, err
	}
	err = ctx.CopyBufferToImage(stagingBuffer, t.Image, dims.X, dims.Y)
	if err != nil {
		t.Destroy()
		return nil, err
	}

	err = t.generateMipmaps(dims.X, dims.Y)
	if err != nil {
		t.Destroy()
		return nil, err
	}

	t.View, err = ctx.CreateImageView(t.Image, core1_0.FormatR8G8B8A8SRGB, core1_0.ImageAspectColor, t.MipLevels)
	if err != nil {
		t.Destroy()
		return nil, err
	}

	err = t.createSampler()
	if err != nil {
		t.Destroy()
		return nil, err
	}

	return t, nil
}

func (t *Texture) createSampler() error {
	properties, err := t.ctx.InstanceDriver.GetPhysicalDeviceProperties(t.ctx.PhysicalDevice)
	if err != nil {
		return err
	}

	features := t.ctx.InstanceDriver.GetPhysicalDeviceFeatures(t.ctx.PhysicalDevice)

	t.Sampler, _, err = t.ctx.DeviceDriver.CreateSampler(nil, core1_0.SamplerCreateInfo{
		MagFilter:    core1_0.FilterLinear,
		MinFilter:    core1_0.FilterLinear,
		AddressModeU: core1_0.SamplerAddressModeRepeat,
		AddressModeV: core1_0.SamplerAddressModeRepeat,
		AddressModeW: core1_0.SamplerAddressModeRepeat,

		AnisotropyEnable: features.SamplerAnisotropy,
		MaxAnisotropy:    properties.Limits.MaxSamplerAnisotropy,

		BorderColor: core1_0.BorderColorIntOpaqueBlack,

		MipmapMode: core1_0.SamplerMipmapModeLinear,
		MinLod:     0,
		MaxLod:     float32(t.MipLevels),
	})
	if err != nil {
		return errors.Wrap(err, "creating sampler")
	}
	return nil
}

func (t *Texture) generateMipmaps(width, height int) error {
	properties := t.ctx.InstanceDriver.GetPhysicalDeviceFormatProperties(t.ctx.PhysicalDevice, core1_0.FormatR8G8B8A8SRGB)

	if (properties.OptimalTilingFeatures & core1_0.FormatFeatureSampledImageFilterLinear) == 0 {
		return errors.New("texture image format does not support linear blitting")
	}

	commandBuffer, err := t.ctx.BeginSingleTimeCommands()
	if err != nil {
		return err
	}

	barrier := core1_0.ImageMemoryBarrier{
		Image:               t.Image,
		SrcQueueFamilyIndex: -1,
		DstQueueFamilyIndex: -1,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     core1_0.ImageAspectColor,
			BaseArrayLayer: 0,
			LayerCount:     1,
			LevelCount:     1,
		},
	}

	mipWidth := width
	mipHeight := height
	for i := 1; i < t.MipLevels; i++ {
		barrier.SubresourceRange.BaseMipLevel = i - 1
		barrier.OldLayout = core1_0.ImageLayoutTransferDstOptimal
		barrier.NewLayout = core1_0.ImageLayoutTransferSrcOptimal
		barrier.SrcAccessMask = core1_0.AccessTransferWrite
		barrier.DstAccessMask = core1_0.AccessTransferRead

		err = t.ctx.DeviceDriver.CmdPipelineBarrier(commandBuffer, core1_0.PipelineStageTransfer, core1_0.PipelineStageTransfer, 0, nil, nil, []core1_0.ImageMemoryBarrier{barrier})
		if err != nil {
			return err
		}

		nextMipWidth := mipWidth
		nextMipHeight := mipHeight
		if nextMipWidth > 1 {
			nextMipWidth /= 2
		}
		if nextMipHeight > 1 {
			nextMipHeight /= 2
		}

		err = t.ctx.DeviceDriver.CmdBlitImage(commandBuffer, t.Image, core1_0.ImageLayoutTransferSrcOptimal, t.Image, core1_0.ImageLayoutTransferDstOptimal, []core1_0.ImageBlit{
			{
				SrcSubresource: core1_0.ImageSubresourceLayers{
					AspectMask:     core1_0.ImageAspectColor,
					MipLevel:       i - 1,
					BaseArrayLayer: 0,
					LayerCount:     1,
				},
				SrcOffsets: [2]core1_0.Offset3D{
					{X: 0, Y: 0, Z: 0},
					{X: mipWidth, Y: mipHeight, Z: 1},
				},

				DstSubresource: core1_0.ImageSubresourceLayers{
					AspectMask:     core1_0.ImageAspectColor,
					MipLevel:       i,
					BaseArrayLayer: 0,
					LayerCount:     1,
				},
				DstOffsets: [2]core1_0.Offset3D{
					{X: 0, Y: 0, Z: 0},
					{X: nextMipWidth, Y: nextMipHeight, Z: 1},
				},
			},
		}, core1_0.FilterLinear)
		if err != nil {
			return err
		}

		barrier.OldLayout = core1_0.ImageLayoutTransferSrcOptimal
		barrier.NewLayout = core1_0.ImageLayoutShaderReadOnlyOptimal
		barrier.SrcAccessMask = core1_0.AccessTransferRead
		barrier.DstAccessMask = core1_0.AccessShaderRead
		err = t.ctx.DeviceDriver.CmdPipelineBarrier(commandBuffer, core1_0.PipelineStageTransfer, core1_0.PipelineStageFragmentShader, 0, nil, nil, []core1_0.ImageMemoryBarrier{barrier})
		if err != nil {
			return err
		}

		mipWidth = nextMipWidth
		mipHeight = nextMipHeight
	}

	barrier.SubresourceRange.BaseMipLevel = t.MipLevels - 1
	barrier.OldLayout = core1_0.ImageLayoutTransferDstOptimal
	barrier.NewLayout = core1_0.ImageLayoutShaderReadOnlyOptimal
	barrier.SrcAccessMask = core1_0.AccessTransferWrite
	barrier.DstAccessMask = core1_0.AccessShaderRead

	err = t.ctx.DeviceDriver.CmdPipelineBarrier(
		commandBuffer,
		core1_0.PipelineStageTransfer,
		core1_0.PipelineStageFragmentShader,
		0, nil, nil,
		[]core1_0.ImageMemoryBarrier{barrier})
	if err != nil {
		return err
	}

	return t.ctx.EndSingleTimeCommands(commandBuffer)
}

// Destroy releases the texture's GPU objects. Idempotent.
func (t *Texture) Destroy() {
	if t.Sampler.Initialized() {
		t.ctx.DeviceDriver.DestroySampler(t.Sampler, nil)
		t.Sampler = core1_0.Sampler{}
	}
	if t.View.Initialized() {
		t.ctx.DeviceDriver.DestroyImageView(t.View, nil)
		t.View = core1_0.ImageView{}
	}
	if t.Image.Initialized() {
		t.ctx.DeviceDriver.DestroyImage(t.Image, nil)
		t.Image = core1_0.Image{}
	}
	if t.memory.Initialized() {
		t.ctx.DeviceDriver.FreeMemory(t.memory, nil)
		t.memory = core1_0.DeviceMemory{}
	}
}
