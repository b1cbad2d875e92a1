package render

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// BeginSingleTimeCommands allocates and begins a one-shot command buffer for
// setup work such as staged uploads.
func (ctx *Context) BeginSingleTimeCommands() (core1_0.CommandBuffer, error) {
	buffers, _, err := ctx.DeviceDriver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        ctx.CommandPool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		return core1_0.CommandBuffer{}, errors.Wrap(err, "allocating one-shot command buffer")
	}

	buffer := buffers[0]
	_, err = ctx.DeviceDriver.BeginCommandBuffer(buffer, core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	return buffer, err
}

// EndSingleTimeCommands submits buffer on the graphics queue and blocks until
// it completes, then frees it.
func (ctx *Context) EndSingleTimeCommands(buffer core1_0.CommandBuffer) error {
	_, err := ctx.DeviceDriver.EndCommandBuffer(buffer)
	if err != nil {
		return err
	}

	_, err = ctx.DeviceDriver.QueueSubmit(ctx.GraphicsQueue, nil,
		core1_0.SubmitInfo{
			CommandBuffers: []core1_0.CommandBuffer{buffer},
		},
	)
	if err != nil {
		return errors.Wrap(err, "submitting one-shot command buffer")
	}

	_, err = ctx.DeviceDriver.QueueWaitIdle(ctx.GraphicsQueue)
	if err != nil {
		return err
	}

	ctx.DeviceDriver.FreeCommandBuffers(buffer)
	return nil
}

// CopyBuffer copies size bytes from srcBuffer to dstBuffer synchronously.
func (ctx *Context) CopyBuffer(srcBuffer core1_0.Buffer, dstBuffer core1_0.Buffer, size int) error {
	buffer, err := ctx.BeginSingleTimeCommands()
	if err != nil {
		return err
	}

	err = ctx.DeviceDriver.CmdCopyBuffer(buffer, srcBuffer, dstBuffer,
		core1_0.BufferCopy{
			SrcOffset: 0,
			DstOffset: 0,
			Size:      size,
		},
	)
	if err != nil {
		return err
	}

	return ctx.EndSingleTimeCommands(buffer)
}

// TransitionImageLayout inserts a layout transition barrier covering mipLevels
// levels of image and waits for it.
func (ctx *Context) TransitionImageLayout(image core1_0.Image, oldLayout core1_0.ImageLayout, newLayout core1_0.ImageLayout, mipLevels int) error {
	buffer, err := ctx.BeginSingleTimeCommands()
	if err != nil {
		return err
	}

	var sourceStage, destStage core1_0.PipelineStageFlags
	var sourceAccess, destAccess core1_0.AccessFlags

	if oldLayout == core1_0.ImageLayoutUndefined && newLayout == core1_0.ImageLayoutTransferDstOptimal {
		sourceAccess = 0
		destAccess = core1_0.AccessTransferWrite
		sourceStage = core1_0.PipelineStageTopOfPipe
		destStage = core1_0.PipelineStageTransfer
	} else if oldLayout == core1_0.ImageLayoutTransferDstOptimal && newLayout == core1_0.ImageLayoutShaderReadOnlyOptimal {
		sourceAccess = core1_0.AccessTransferWrite
		destAccess = core1_0.AccessShaderRead
		sourceStage = core1_0.PipelineStageTransfer
		destStage = core1_0.PipelineStageFragmentShader
	} else {
		return errors.Newf("unexpected layout transition: %s -> %s", oldLayout, newLayout)
	}

	err = ctx.DeviceDriver.CmdPipelineBarrier(buffer, sourceStage, destStage, 0, nil, nil, []core1_0.ImageMemoryBarrier{
		{
			OldLayout:           oldLayout,
			NewLayout:           newLayout,
			SrcQueueFamilyIndex: -1,
			DstQueueFamilyIndex: -1,
			Image:               image,
			SubresourceRange: core1_0.ImageSubresourceRange{
				AspectMask:     core1_0.ImageAspectColor,
				BaseMipLevel:   0,
				LevelCount:     mipLevels,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
			SrcAccessMask: sourceAccess,
			DstAccessMask: destAccess,
		},
	})
	if err != nil {
		return err
	}

	return ctx.EndSingleTimeCommands(buffer)
}

// CopyBufferToImage copies buffer contents into mip level 0 of image, which
// must be in TransferDstOptimal layout.
func (ctx *Context) CopyBufferToImage(buffer core1_0.Buffer, image core1_0.Image, width, height int) error {
	cmdBuffer, err := ctx.BeginSingleTimeCommands()
	if err != nil {
		return err
	}

	err = ctx.DeviceDriver.CmdCopyBufferToImage(cmdBuffer, buffer, image, core1_0.ImageLayoutTransferDstOptimal,
		core1_0.BufferImageCopy{
			BufferOffset:      0,
			BufferRowLength:   0,
			BufferImageHeight: 0,

			ImageSubresource: core1_0.ImageSubresourceLayers{
				AspectMask:     core1_0.ImageAspectColor,
				MipLevel:       0,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
			ImageOffset: core1_0.Offset3D{X: 0, Y: 0, Z: 0},
			ImageExtent: core1_0.Extent3D{Width: width, Height: height, Depth: 1},
		},
	)
	if err != nil {
		return err
	}

	return ctx.EndSingleTimeCommands(cmdBuffer)
}
