package drawpool

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/render/mesh"
	"github.com/vkngwrapper/render/object"
	"github.com/vkngwrapper/render/shader"
)

func testObject(program *shader.Program) *object.Object {
	return &object.Object{
		Mesh:    &mesh.Mesh{Topology: core1_0.PrimitiveTopologyTriangleList},
		Program: program,
		State:   object.DefaultState(),
	}
}

func TestKeyForCoversRenderState(t *testing.T) {
	program := &shader.Program{ID: uuid.New()}
	o := testObject(program)

	base := KeyFor(o)
	assert.Equal(t, program.ID, base.Program)
	assert.Equal(t, core1_0.PrimitiveTopologyTriangleList, base.Topology)
	assert.True(t, base.DepthTest)

	o.State.DepthTest = false
	assert.NotEqual(t, base, KeyFor(o))
	o.State.DepthTest = true

	o.State.PolygonMode = core1_0.PolygonModeLine
	assert.NotEqual(t, base, KeyFor(o))
	o.State.PolygonMode = core1_0.PolygonModeFill

	o.State.CullMode = core1_0.CullModeFlags(0)
	assert.NotEqual(t, base, KeyFor(o))
	o.State.CullMode = core1_0.CullModeBack

	o.Mesh.Topology = core1_0.PrimitiveTopologyPointList
	assert.NotEqual(t, base, KeyFor(o))
	o.Mesh.Topology = core1_0.PrimitiveTopologyTriangleList

	assert.Equal(t, base, KeyFor(o))
}

func TestKeyIgnoresPointSizeAndMaterial(t *testing.T) {
	program := &shader.Program{ID: uuid.New()}
	o := testObject(program)

	base := KeyFor(o)
	o.State.PointSize = 8
	o.Color.X = 0.25
	assert.Equal(t, base, KeyFor(o))
}

func TestKeySeparatesPrograms(t *testing.T) {
	a := testObject(&shader.Program{ID: uuid.New()})
	b := testObject(&shader.Program{ID: uuid.New()})

	assert.NotEqual(t, KeyFor(a), KeyFor(b))
}

func TestDrawSlotSkippingPanics(t *testing.T) {
	pass := &Pass{}

	assert.Panics(t, func() {
		_, _ = pass.draw(1)
	})
}
