// Package object models a single drawable: its mesh, texture, shader program
// and the fixed-function render state that shapes the pipeline used to draw
// it. State changes take effect on the next frame; per-object draw resources
// are refreshed from this state every frame by the draw pool.
package object

import (
	"github.com/vkngwrapper/core/v3/core1_0"
	vkngmath "github.com/vkngwrapper/math"
	"github.com/vkngwrapper/render/mesh"
	"github.com/vkngwrapper/render/shader"
)

// RenderState is the per-object fixed-function state. DepthTest selects the
// rendering policy: depth-tested objects draw first in arbitrary order,
// objects with DepthTest false composite afterwards in registry queue order.
type RenderState struct {
	DepthTest   bool
	CullMode    core1_0.CullModeFlags
	PolygonMode core1_0.PolygonMode
	PointSize   float32
}

// DefaultState is filled, back-face-culled, depth-tested state.
func DefaultState() RenderState {
	return RenderState{
		DepthTest:   true,
		CullMode:    core1_0.CullModeBack,
		PolygonMode: core1_0.PolygonModeFill,
		PointSize:   1,
	}
}

// Uniforms is the transform+material block written into each Draw's uniform
// buffer once per frame. Layout matches the std140 block in the shaders.
type Uniforms struct {
	Model     vkngmath.Mat4x4[float32]
	Color     vkngmath.Vec4[float32]
	PointSize float32
	_         [3]float32
}

// Object is one drawable. Hosts mutate Transform, Color and State freely
// between frames; the draw pool reads them when refreshing resources.
type Object struct {
	Mesh    *mesh.Mesh
	Texture *Texture
	Program *shader.Program

	State     RenderState
	Transform vkngmath.Mat4x4[float32]
	Color     vkngmath.Vec4[float32]
}

// New builds an object with identity transform, white color and default
// render state.
func New(m *mesh.Mesh, texture *Texture, program *shader.Program) *Object {
	o := &Object{
		Mesh:    m,
		Texture: texture,
		Program: program,
		State:   DefaultState(),
		Color:   vkngmath.Vec4[float32]{X: 1, Y: 1, Z: 1, W: 1},
	}
	o.Transform.SetIdentity()
	return o
}

// Uniforms snapshots the object's current transform and material block.
func (o *Object) Uniforms() Uniforms {
	return Uniforms{
		Model:     o.Transform,
		Color:     o.Color,
		PointSize: o.State.PointSize,
	}
}
