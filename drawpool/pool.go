// Package drawpool owns the per-swapchain-image render resources: one Pass
// per presentable image (framebuffer plus scene-level uniform buffer) and,
// inside each Pass, a lazily grown list of Draw records holding one object's
// descriptor set, uniform buffer and pipeline binding.
//
// Draw resources are refreshed from object state every frame, after the
// frame loop has fence-waited the image; a changed object setting therefore
// takes effect on the next frame with no explicit invalidation anywhere.
package drawpool

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	vkngmath "github.com/vkngwrapper/math"
	"github.com/vkngwrapper/render"
	"github.com/vkngwrapper/render/object"
	"github.com/vkngwrapper/render/swapchain"
)

// SceneUniforms is the scene-level block shared by every draw in a frame.
type SceneUniforms struct {
	View vkngmath.Mat4x4[float32]
	Proj vkngmath.Mat4x4[float32]
}

// Pool owns every Pass plus the pipeline layout objects shared across them.
// Passes live and die with the swapchain; the layouts and the pool itself
// survive rebuilds.
type Pool struct {
	DescriptorSetLayout core1_0.DescriptorSetLayout
	PipelineLayout      core1_0.PipelineLayout
	RenderPass          core1_0.RenderPass

	ctx *render.Context
	sc  *swapchain.Swapchain

	depthImage  core1_0.Image
	depthMemory core1_0.DeviceMemory
	depthView   core1_0.ImageView

	passes    []*Pass
	pipelines *pipelineCache
	scene     SceneUniforms
}

// NewPool creates the shared layouts and the per-image resources for the
// swapchain's current generation.
func NewPool(ctx *render.Context, sc *swapchain.Swapchain) (*Pool, error) {
	p := &Pool{
		ctx:       ctx,
		sc:        sc,
		pipelines: newPipelineCache(),
	}

	err := p.createLayouts()
	if err != nil {
		p.Destroy()
		return nil, err
	}

	err = p.buildSwapchainResources()
	if err != nil {
		p.Destroy()
		return nil, err
	}

	return p, nil
}

// descriptorBindings is the descriptor-set layout every program in the core
// is compiled against: scene UBO, object UBO, texture sampler. Stage flags
// must cover every stage whose shaders statically use the binding; the object
// block feeds the vertex transform and the fragment material color.
func descriptorBindings() []core1_0.DescriptorSetLayoutBinding {
	return []core1_0.DescriptorSetLayoutBinding{
		{
			Binding:         0,
			DescriptorType:  core1_0.DescriptorTypeUniformBuffer,
			DescriptorCount: 1,

			StageFlags: core1_0.StageVertex,
		},
		{
			Binding:         1,
			DescriptorType:  core1_0.DescriptorTypeUniformBuffer,
			DescriptorCount: 1,

			StageFlags: core1_0.StageVertex | core1_0.StageFragment,
		},
		{
			Binding:         2,
			DescriptorType:  core1_0.DescriptorTypeCombinedImageSampler,
			DescriptorCount: 1,

			StageFlags: core1_0.StageFragment,
		},
	}
}

func (p *Pool) createLayouts() error {
	var err error
	p.DescriptorSetLayout, _, err = p.ctx.DeviceDriver.CreateDescriptorSetLayout(nil, core1_0.DescriptorSetLayoutCreateInfo{
		Bindings: descriptorBindings(),
	})
	if err != nil {
		return errors.Wrap(err, "creating descriptor set layout")
	}

	p.PipelineLayout, _, err = p.ctx.DeviceDriver.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{
		SetLayouts: []core1_0.DescriptorSetLayout{
			p.DescriptorSetLayout,
		},
	})
	if err != nil {
		return errors.Wrap(err, "creating pipeline layout")
	}
	return nil
}

func (p *Pool) buildSwapchainResources() error {
	err := p.createRenderPass()
	if err != nil {
		return err
	}

	err = p.createDepthResources()
	if err != nil {
		return err
	}

	for _, view := range p.sc.ImageViews {
		pass, err := newPass(p, view)
		if err != nil {
			return err
		}
		p.passes = append(p.passes, pass)
	}

	return nil
}

func (p *Pool) createRenderPass() error {
	depthFormat, err := p.ctx.FindDepthFormat()
	if err != nil {
		return err
	}

	p.RenderPass, _, err = p.ctx.DeviceDriver.CreateRenderPass(nil, core1_0.RenderPassCreateInfo{
		Attachments: []core1_0.AttachmentDescription{
			{
				Format:         p.sc.Format,
				Samples:        core1_0.Samples1,
				LoadOp:         core1_0.AttachmentLoadOpClear,
				StoreOp:        core1_0.AttachmentStoreOpStore,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutUndefined,
				FinalLayout:    khr_swapchain.ImageLayoutPresentSrc,
			},
			{
				Format:         depthFormat,
				Samples:        core1_0.Samples1,
				LoadOp:         core1_0.AttachmentLoadOpClear,
				StoreOp:        core1_0.AttachmentStoreOpDontCare,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutUndefined,
				FinalLayout:    core1_0.ImageLayoutDepthStencilAttachmentOptimal,
			},
		},
		Subpasses: []core1_0.SubpassDescription{
			{
				PipelineBindPoint: core1_0.PipelineBindPointGraphics,
				ColorAttachments: []core1_0.AttachmentReference{
					{
						Attachment: 0,
						Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
					},
				},
				DepthStencilAttachment: &core1_0.AttachmentReference{
					Attachment: 1,
					Layout:     core1_0.ImageLayoutDepthStencilAttachmentOptimal,
				},
			},
		},
		SubpassDependencies: []core1_0.SubpassDependency{
			{
				SrcSubpass: core1_0.SubpassExternal,
				DstSubpass: 0,

				SrcStageMask:  core1_0.PipelineStageColorAttachmentOutput | core1_0.PipelineStageEarlyFragmentTests,
				SrcAccessMask: 0,

				DstStageMask:  core1_0.PipelineStageColorAttachmentOutput | core1_0.PipelineStageEarlyFragmentTests,
				DstAccessMask: core1_0.AccessColorAttachmentWrite | core1_0.AccessDepthStencilAttachmentWrite,
			},
		},
	})
	if err != nil {
		return errors.Wrap(err, "creating render pass")
	}
	return nil
}

func (p *Pool) createDepthResources() error {
	depthFormat, err := p.ctx.FindDepthFormat()
	if err != nil {
		return err
	}

	p.depthImage, p.depthMemory, err = p.ctx.CreateImage(p.sc.Extent.Width,
		p.sc.Extent.Height,
		1,
		depthFormat,
		core1_0.ImageTilingOptimal,
		core1_0.ImageUsageDepthStencilAttachment,
		core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return err
	}

	p.depthView, err = p.ctx.CreateImageView(p.depthImage, depthFormat, core1_0.ImageAspectDepth, 1)
	return err
}

// SetScene stores the scene-level uniforms written into every Pass's scene
// buffer on its next refresh.
func (p *Pool) SetScene(scene SceneUniforms) {
	p.scene = scene
}

// PassAt returns the Pass for a swapchain image index.
func (p *Pool) PassAt(imageIndex int) *Pass {
	return p.passes[imageIndex]
}

// Refresh rewrites the per-frame resources of one Pass for the given render
// order: the scene uniform buffer, then each visible object's uniform block,
// descriptor set and pipeline binding. The caller must have fence-waited the
// image first.
func (p *Pool) Refresh(imageIndex int, order []*object.Object) error {
	pass := p.passes[imageIndex]

	err := p.ctx.WriteData(pass.sceneMemory, 0, &p.scene)
	if err != nil {
		return errors.Wrap(err, "writing scene uniforms")
	}

	for slot, o := range order {
		draw, err := pass.draw(slot)
		if err != nil {
			return err
		}

		uniforms := o.Uniforms()
		err = p.ctx.WriteData(draw.uniformMemory, 0, &uniforms)
		if err != nil {
			return errors.Wrap(err, "writing object uniforms")
		}

		err = p.writeDescriptors(pass, draw, o)
		if err != nil {
			return errors.Wrap(err, "updating descriptor set")
		}

		draw.Pipeline, err = p.getPipeline(o)
		if err != nil {
			return errors.Wrap(err, "building pipeline")
		}
	}

	return nil
}

func (p *Pool) writeDescriptors(pass *Pass, draw *Draw, o *object.Object) error {
	return p.ctx.DeviceDriver.UpdateDescriptorSets([]core1_0.WriteDescriptorSet{
		{
			DstSet:          draw.DescriptorSet,
			DstBinding:      0,
			DstArrayElement: 0,

			DescriptorType: core1_0.DescriptorTypeUniformBuffer,

			BufferInfo: []core1_0.DescriptorBufferInfo{
				{
					Buffer: pass.sceneBuffer,
					Offset: 0,
					Range:  binary.Size(SceneUniforms{}),
				},
			},
		},
		{
			DstSet:          draw.DescriptorSet,
			DstBinding:      1,
			DstArrayElement: 0,

			DescriptorType: core1_0.DescriptorTypeUniformBuffer,

			BufferInfo: []core1_0.DescriptorBufferInfo{
				{
					Buffer: draw.uniformBuffer,
					Offset: 0,
					Range:  binary.Size(object.Uniforms{}),
				},
			},
		},
		{
			DstSet:          draw.DescriptorSet,
			DstBinding:      2,
			DstArrayElement: 0,

			DescriptorType: core1_0.DescriptorTypeCombinedImageSampler,

			ImageInfo: []core1_0.DescriptorImageInfo{
				{
					ImageView:   o.Texture.View,
					Sampler:     o.Texture.Sampler,
					ImageLayout: core1_0.ImageLayoutShaderReadOnlyOptimal,
				},
			},
		},
	}, nil)
}

// Rebuild tears down and recreates every swapchain-derived resource after
// the swapchain itself has been recreated. Pipelines for previously seen
// state combinations are rebuilt concurrently so the next frames don't pay
// for misses one at a time.
func (p *Pool) Rebuild() error {
	previous := p.destroySwapchainResources()

	err := p.buildSwapchainResources()
	if err != nil {
		return err
	}

	return p.warmPipelines(previous)
}

// destroySwapchainResources frees passes, depth resources, pipelines and the
// render pass, in reverse creation order. The device must be idle.
func (p *Pool) destroySwapchainResources() map[PipelineKey]pipelineEntry {
	for _, pass := range p.passes {
		pass.destroy()
	}
	p.passes = nil

	previous := p.clearPipelines()

	if p.depthView.Initialized() {
		p.ctx.DeviceDriver.DestroyImageView(p.depthView, nil)
		p.depthView = core1_0.ImageView{}
	}
	if p.depthImage.Initialized() {
		p.ctx.DeviceDriver.DestroyImage(p.depthImage, nil)
		p.depthImage = core1_0.Image{}
	}
	if p.depthMemory.Initialized() {
		p.ctx.DeviceDriver.FreeMemory(p.depthMemory, nil)
		p.depthMemory = core1_0.DeviceMemory{}
	}

	if p.RenderPass.Initialized() {
		p.ctx.DeviceDriver.DestroyRenderPass(p.RenderPass, nil)
		p.RenderPass = core1_0.RenderPass{}
	}

	return previous
}

// Destroy releases everything the pool owns. The device must be idle.
// Idempotent.
func (p *Pool) Destroy() {
	p.destroySwapchainResources()

	if p.PipelineLayout.Initialized() {
		p.ctx.DeviceDriver.DestroyPipelineLayout(p.PipelineLayout, nil)
		p.PipelineLayout = core1_0.PipelineLayout{}
	}
	if p.DescriptorSetLayout.Initialized() {
		p.ctx.DeviceDriver.DestroyDescriptorSetLayout(p.DescriptorSetLayout, nil)
		p.DescriptorSetLayout = core1_0.DescriptorSetLayout{}
	}
}
