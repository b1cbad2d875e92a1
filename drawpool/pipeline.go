package drawpool

import (
	"sync"

	"github.com/google/uuid"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/render/mesh"
	"github.com/vkngwrapper/render/object"
	"github.com/vkngwrapper/render/shader"
	"golang.org/x/sync/errgroup"
)

// PipelineKey is the immutable tuple of inputs that determine a graphics
// pipeline. Two objects with equal keys can share a pipeline; any render
// state change moves an object to a different key and therefore a different
// pipeline on its next frame. Point size is not part of the key: it rides in
// the per-object uniform block.
type PipelineKey struct {
	Program     uuid.UUID
	Topology    core1_0.PrimitiveTopology
	DepthTest   bool
	CullMode    core1_0.CullModeFlags
	PolygonMode core1_0.PolygonMode
}

// KeyFor derives the pipeline key from an object's current state.
func KeyFor(o *object.Object) PipelineKey {
	return PipelineKey{
		Program:     o.Program.ID,
		Topology:    o.Mesh.Topology,
		DepthTest:   o.State.DepthTest,
		CullMode:    o.State.CullMode,
		PolygonMode: o.State.PolygonMode,
	}
}

type pipelineEntry struct {
	pipeline core1_0.Pipeline
	program  *shader.Program
}

// pipelineCache maps keys to pipelines for the current swapchain generation.
// Rebuilding a pipeline every frame would be equally correct; the cache is an
// exact-invalidation optimization, since the key covers every input.
type pipelineCache struct {
	mu      sync.Mutex
	entries map[PipelineKey]pipelineEntry
}

func newPipelineCache() *pipelineCache {
	return &pipelineCache{entries: make(map[PipelineKey]pipelineEntry)}
}

// get returns the cached pipeline for o's current key, building it on a miss.
func (p *Pool) getPipeline(o *object.Object) (core1_0.Pipeline, error) {
	key := KeyFor(o)

	p.pipelines.mu.Lock()
	entry, ok := p.pipelines.entries[key]
	p.pipelines.mu.Unlock()
	if ok {
		return entry.pipeline, nil
	}

	pipeline, err := p.buildPipeline(key, o.Program)
	if err != nil {
		return core1_0.Pipeline{}, err
	}

	p.pipelines.mu.Lock()
	p.pipelines.entries[key] = pipelineEntry{pipeline: pipeline, program: o.Program}
	p.pipelines.mu.Unlock()
	return pipeline, nil
}

// warmPipelines rebuilds every pipeline from the previous generation's key
// set concurrently. Pipeline creation is one of the few driver entry points
// that is safe to call from multiple goroutines.
func (p *Pool) warmPipelines(previous map[PipelineKey]pipelineEntry) error {
	var group errgroup.Group

	for key, entry := range previous {
		key, program := key, entry.program
		group.Go(func() error {
			pipeline, err := p.buildPipeline(key, program)
			if err != nil {
				return err
			}

			p.pipelines.mu.Lock()
			p.pipelines.entries[key] = pipelineEntry{pipeline: pipeline, program: program}
			p.pipelines.mu.Unlock()
			return nil
		})
	}

	return group.Wait()
}

// clearPipelines destroys every cached pipeline and returns the old entries
// so a rebuild can warm the new cache from them.
func (p *Pool) clearPipelines() map[PipelineKey]pipelineEntry {
	p.pipelines.mu.Lock()
	defer p.pipelines.mu.Unlock()

	previous := p.pipelines.entries
	for _, entry := range previous {
		p.ctx.DeviceDriver.DestroyPipeline(entry.pipeline, nil)
	}
	p.pipelines.entries = make(map[PipelineKey]pipelineEntry)
	return previous
}

func (p *Pool) buildPipeline(key PipelineKey, program *shader.Program) (core1_0.Pipeline, error) {
	vertexInput := &core1_0.PipelineVertexInputStateCreateInfo{
		VertexBindingDescriptions:   mesh.BindingDescriptions(),
		VertexAttributeDescriptions: mesh.AttributeDescriptions(),
	}

	inputAssembly := &core1_0.PipelineInputAssemblyStateCreateInfo{
		Topology:               key.Topology,
		PrimitiveRestartEnable: false,
	}

	viewport := &core1_0.PipelineViewportStateCreateInfo{
		Viewports: []core1_0.Viewport{
			{
				X:        0,
				Y:        0,
				Width:    float32(p.sc.Extent.Width),
				Height:   float32(p.sc.Extent.Height),
				MinDepth: 0,
				MaxDepth: 1,
			},
		},
		Scissors: []core1_0.Rect2D{
			{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: p.sc.Extent,
			},
		},
	}

	rasterization := &core1_0.PipelineRasterizationStateCreateInfo{
		DepthClampEnable:        false,
		RasterizerDiscardEnable: false,

		PolygonMode: key.PolygonMode,
		CullMode:    key.CullMode,
		FrontFace:   core1_0.FrontFaceCounterClockwise,

		DepthBiasEnable: false,

		LineWidth: 1.0,
	}

	multisample := &core1_0.PipelineMultisampleStateCreateInfo{
		SampleShadingEnable:  false,
		RasterizationSamples: core1_0.Samples1,
		MinSampleShading:     1.0,
	}

	depthStencil := &core1_0.PipelineDepthStencilStateCreateInfo{
		DepthTestEnable:  key.DepthTest,
		DepthWriteEnable: key.DepthTest,
		DepthCompareOp:   core1_0.CompareOpLess,
	}

	// Depth-test-skipping objects composite back to front, so they blend
	// over what is already in the target.
	colorBlend := &core1_0.PipelineColorBlendStateCreateInfo{
		LogicOpEnabled: false,
		LogicOp:        core1_0.LogicOpCopy,

		BlendConstants: [4]float32{0, 0, 0, 0},
		Attachments: []core1_0.PipelineColorBlendAttachmentState{
			{
				BlendEnabled:        !key.DepthTest,
				SrcColorBlendFactor: core1_0.BlendFactorSrcAlpha,
				DstColorBlendFactor: core1_0.BlendFactorOneMinusSrcAlpha,
				ColorBlendOp:        core1_0.BlendOpAdd,
				SrcAlphaBlendFactor: core1_0.BlendFactorOne,
				DstAlphaBlendFactor: core1_0.BlendFactorZero,
				AlphaBlendOp:        core1_0.BlendOpAdd,
				ColorWriteMask:      core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha,
			},
		},
	}

	pipelines, _, err := p.ctx.DeviceDriver.CreateGraphicsPipelines(nil, nil,
		core1_0.GraphicsPipelineCreateInfo{
			Stages:             program.Stages(),
			VertexInputState:   vertexInput,
			InputAssemblyState: inputAssembly,
			ViewportState:      viewport,
			RasterizationState: rasterization,
			MultisampleState:   multisample,
			DepthStencilState:  depthStencil,
			ColorBlendState:    colorBlend,
			Layout:             p.PipelineLayout,
			RenderPass:         p.RenderPass,
			Subpass:            0,
			BasePipelineIndex:  -1,
		},
	)
	if err != nil {
		return core1_0.Pipeline{}, err
	}
	return pipelines[0], nil
}
