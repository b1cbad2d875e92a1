// Package record turns a Pass's current draw list into a recorded command
// buffer. Recording is never incremental: each frame's buffer is fully
// re-recorded from the render order, so whatever the draw pool refreshed is
// exactly what the GPU executes.
package record

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/render"
	"github.com/vkngwrapper/render/drawpool"
	"github.com/vkngwrapper/render/object"
	"github.com/vkngwrapper/render/swapchain"
)

// Recorder owns one primary command buffer per swapchain image. The buffers
// come from the context's command pool, which is created with the
// reset-command-buffer flag so beginning a buffer implicitly resets it.
type Recorder struct {
	ClearColor core1_0.ClearValueFloat

	ctx     *render.Context
	buffers []core1_0.CommandBuffer
}

// NewRecorder allocates command buffers for imageCount swapchain images.
func NewRecorder(ctx *render.Context, imageCount int) (*Recorder, error) {
	r := &Recorder{
		ClearColor: core1_0.ClearValueFloat{0, 0, 0, 1},
		ctx:        ctx,
	}

	err := r.allocate(imageCount)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Recorder) allocate(imageCount int) error {
	buffers, _, err := r.ctx.DeviceDriver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        r.ctx.CommandPool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: imageCount,
	})
	if err != nil {
		return errors.Wrap(err, "allocating command buffers")
	}
	r.buffers = buffers
	return nil
}

// Rebuild frees and reallocates the command buffers after a swapchain
// rebuild changed the image count.
func (r *Recorder) Rebuild(imageCount int) error {
	r.Destroy()
	return r.allocate(imageCount)
}

// Record re-records the command buffer for imageIndex: begin the render pass
// with clear values, then for each object in render order bind its Draw's
// pipeline, its mesh buffers and its descriptor set, and issue the draw.
func (r *Recorder) Record(imageIndex int, pool *drawpool.Pool, sc *swapchain.Swapchain, order []*object.Object) (core1_0.CommandBuffer, error) {
	buffer := r.buffers[imageIndex]
	pass := pool.PassAt(imageIndex)

	_, err := r.ctx.DeviceDriver.BeginCommandBuffer(buffer, core1_0.CommandBufferBeginInfo{})
	if err != nil {
		return buffer, errors.Wrap(err, "beginning command buffer")
	}

	err = r.ctx.DeviceDriver.CmdBeginRenderPass(buffer, core1_0.SubpassContentsInline,
		core1_0.RenderPassBeginInfo{
			RenderPass:  pool.RenderPass,
			Framebuffer: pass.Framebuffer,
			RenderArea: core1_0.Rect2D{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: sc.Extent,
			},
			ClearValues: []core1_0.ClearValue{
				r.ClearColor,
				core1_0.ClearValueDepthStencil{Depth: 1.0, Stencil: 0},
			},
		})
	if err != nil {
		return buffer, errors.Wrap(err, "beginning render pass")
	}

	for slot, o := range order {
		draw := pass.DrawAt(slot)

		r.ctx.DeviceDriver.CmdBindPipeline(buffer, core1_0.PipelineBindPointGraphics, draw.Pipeline)
		r.ctx.DeviceDriver.CmdBindVertexBuffers(buffer, 0, []core1_0.Buffer{o.Mesh.VertexBuffer}, []int{0})
		r.ctx.DeviceDriver.CmdBindDescriptorSets(buffer, core1_0.PipelineBindPointGraphics, pool.PipelineLayout, 0, []core1_0.DescriptorSet{
			draw.DescriptorSet,
		}, nil)

		if o.Mesh.Indexed() {
			r.ctx.DeviceDriver.CmdBindIndexBuffer(buffer, o.Mesh.IndexBuffer, 0, core1_0.IndexTypeUInt32)
			r.ctx.DeviceDriver.CmdDrawIndexed(buffer, o.Mesh.IndexCount, 1, 0, 0, 0)
		} else {
			r.ctx.DeviceDriver.CmdDraw(buffer, o.Mesh.VertexCount, 1, 0, 0)
		}
	}

	r.ctx.DeviceDriver.CmdEndRenderPass(buffer)

	_, err = r.ctx.DeviceDriver.EndCommandBuffer(buffer)
	if err != nil {
		return buffer, errors.Wrap(err, "ending command buffer")
	}

	return buffer, nil
}

// Destroy frees the command buffers. Idempotent.
func (r *Recorder) Destroy() {
	if len(r.buffers) > 0 {
		r.ctx.DeviceDriver.FreeCommandBuffers(r.buffers...)
		r.buffers = nil
	}
}
