package drawpool

import (
	"encoding/binary"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/render/object"
)

// descriptorChunk is how many Draws each descriptor pool accommodates. The
// Draw list grows without bound, so a Pass allocates additional pools as
// chunks fill up; descriptor sets are never individually freed.
const descriptorChunk = 64

// Pass bundles the render resources tied to one swapchain image: the
// framebuffer targeting that image's view and the scene-level uniform
// buffer, plus the Draw list for objects rendered into it.
type Pass struct {
	Framebuffer core1_0.Framebuffer

	sceneBuffer core1_0.Buffer
	sceneMemory core1_0.DeviceMemory

	draws           []*Draw
	descriptorPools []core1_0.DescriptorPool
	setsLeft        int

	pool *Pool
}

// Draw is the per-object, per-image bundle used to issue one draw call. The
// descriptor set and uniform buffer are allocated once; the pipeline binding
// is refreshed every frame from the object's current state.
type Draw struct {
	DescriptorSet core1_0.DescriptorSet
	Pipeline      core1_0.Pipeline

	uniformBuffer core1_0.Buffer
	uniformMemory core1_0.DeviceMemory
}

func newPass(pool *Pool, view core1_0.ImageView) (*Pass, error) {
	pass := &Pass{pool: pool}

	var err error
	pass.Framebuffer, _, err = pool.ctx.DeviceDriver.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
		RenderPass: pool.RenderPass,
		Layers:     1,
		Attachments: []core1_0.ImageView{
			view,
			pool.depthView,
		},
		Width:  pool.sc.Extent.Width,
		Height: pool.sc.Extent.Height,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating framebuffer")
	}

	pass.sceneBuffer, pass.sceneMemory, err = pool.ctx.CreateBuffer(
		binary.Size(SceneUniforms{}),
		core1_0.BufferUsageUniformBuffer,
		core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		pass.destroy()
		return nil, err
	}

	return pass, nil
}

// DrawCount returns the Draw list's current length: the high-water mark of
// concurrently visible objects for this Pass's lifetime.
func (pass *Pass) DrawCount() int {
	return len(pass.draws)
}

// DrawAt returns the Draw for an already-populated slot.
func (pass *Pass) DrawAt(slot int) *Draw {
	return pass.draws[slot]
}

// draw returns the Draw for slot, lazily allocating it on first use. Slots
// fill strictly in order; skipping ahead would break the monotonic-growth
// contract and panics.
func (pass *Pass) draw(slot int) (*Draw, error) {
	if slot < len(pass.draws) {
		return pass.draws[slot], nil
	}
	if slot > len(pass.draws) {
		panic(fmt.Sprintf("drawpool: draw slot %d requested with only %d allocated", slot, len(pass.draws)))
	}

	// The uniform buffer comes first: descriptor sets are never individually
	// freed, so consuming a chunk slot must be the last step that can fail.
	draw := &Draw{}
	var err error
	draw.uniformBuffer, draw.uniformMemory, err = pass.pool.ctx.CreateBuffer(
		binary.Size(object.Uniforms{}),
		core1_0.BufferUsageUniformBuffer,
		core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		return nil, err
	}

	draw.DescriptorSet, err = pass.allocateDescriptorSet()
	if err != nil {
		pass.pool.ctx.DeviceDriver.DestroyBuffer(draw.uniformBuffer, nil)
		pass.pool.ctx.DeviceDriver.FreeMemory(draw.uniformMemory, nil)
		return nil, err
	}

	pass.draws = append(pass.draws, draw)
	return draw, nil
}

func (pass *Pass) allocateDescriptorSet() (core1_0.DescriptorSet, error) {
	if pass.setsLeft == 0 {
		descriptorPool, _, err := pass.pool.ctx.DeviceDriver.CreateDescriptorPool(nil, core1_0.DescriptorPoolCreateInfo{
			MaxSets: descriptorChunk,
			PoolSizes: []core1_0.DescriptorPoolSize{
				{
					Type:            core1_0.DescriptorTypeUniformBuffer,
					DescriptorCount: descriptorChunk * 2,
				},
				{
					Type:            core1_0.DescriptorTypeCombinedImageSampler,
					DescriptorCount: descriptorChunk,
				},
			},
		})
		if err != nil {
			return core1_0.DescriptorSet{}, errors.Wrap(err, "creating descriptor pool")
		}
		pass.descriptorPools = append(pass.descriptorPools, descriptorPool)
		pass.setsLeft = descriptorChunk
	}

	sets, _, err := pass.pool.ctx.DeviceDriver.AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
		DescriptorPool: pass.descriptorPools[len(pass.descriptorPools)-1],
		SetLayouts:     []core1_0.DescriptorSetLayout{pass.pool.DescriptorSetLayout},
	})
	if err != nil {
		return core1_0.DescriptorSet{}, errors.Wrap(err, "allocating descriptor set")
	}

	pass.setsLeft--
	return sets[0], nil
}

// destroy frees the Pass's resources in reverse creation order. Draw
// descriptor sets go down with their pools. The device must be idle.
func (pass *Pass) destroy() {
	ctx := pass.pool.ctx

	for _, draw := range pass.draws {
		if draw.uniformBuffer.Initialized() {
			ctx.DeviceDriver.DestroyBuffer(draw.uniformBuffer, nil)
		}
		if draw.uniformMemory.Initialized() {
			ctx.DeviceDriver.FreeMemory(draw.uniformMemory, nil)
		}
	}
	pass.draws = nil

	for _, descriptorPool := range pass.descriptorPools {
		ctx.DeviceDriver.DestroyDescriptorPool(descriptorPool, nil)
	}
	pass.descriptorPools = nil
	pass.setsLeft = 0

	if pass.sceneBuffer.Initialized() {
		ctx.DeviceDriver.DestroyBuffer(pass.sceneBuffer, nil)
		pass.sceneBuffer = core1_0.Buffer{}
	}
	if pass.sceneMemory.Initialized() {
		ctx.DeviceDriver.FreeMemory(pass.sceneMemory, nil)
		pass.sceneMemory = core1_0.DeviceMemory{}
	}

	if pass.Framebuffer.Initialized() {
		ctx.DeviceDriver.DestroyFramebuffer(pass.Framebuffer, nil)
		pass.Framebuffer = core1_0.Framebuffer{}
	}
}
