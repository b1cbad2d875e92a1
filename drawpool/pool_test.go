package drawpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// The stage flags on each binding must cover every stage whose shaders
// statically use it: the object block is read by both the vertex transform
// and the fragment material color, the scene block by the vertex stage only,
// the sampler by the fragment stage only.
func TestDescriptorBindingStages(t *testing.T) {
	bindings := descriptorBindings()
	require.Len(t, bindings, 3)

	scene := bindings[0]
	assert.Equal(t, 0, scene.Binding)
	assert.Equal(t, core1_0.DescriptorTypeUniformBuffer, scene.DescriptorType)
	assert.Equal(t, core1_0.StageVertex, scene.StageFlags)

	object := bindings[1]
	assert.Equal(t, 1, object.Binding)
	assert.Equal(t, core1_0.DescriptorTypeUniformBuffer, object.DescriptorType)
	assert.Equal(t, core1_0.StageVertex|core1_0.StageFragment, object.StageFlags)

	sampler := bindings[2]
	assert.Equal(t, 2, sampler.Binding)
	assert.Equal(t, core1_0.DescriptorTypeCombinedImageSampler, sampler.DescriptorType)
	assert.Equal(t, core1_0.StageFragment, sampler.StageFlags)
}

// Requesting an already-populated slot returns the existing Draw without
// touching the descriptor chunk accounting, so a frame retried after a
// failure never consumes additional chunk slots.
func TestDrawExistingSlotLeavesChunkAccountingUntouched(t *testing.T) {
	existing := &Draw{}
	pass := &Pass{
		draws:    []*Draw{existing},
		setsLeft: 5,
	}

	draw, err := pass.draw(0)
	require.NoError(t, err)
	assert.Same(t, existing, draw)
	assert.Equal(t, 5, pass.setsLeft)
	assert.Len(t, pass.draws, 1)
}
