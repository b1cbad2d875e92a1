// Package mesh owns vertex and index buffers for drawable geometry, including
// staged upload into device-local memory and Wavefront OBJ import.
package mesh

import (
	"encoding/binary"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	vkngmath "github.com/vkngwrapper/math"
	"github.com/vkngwrapper/render"
)

// Vertex is the interleaved vertex layout every pipeline in the core consumes.
type Vertex struct {
	Position vkngmath.Vec3[float32]
	Color    vkngmath.Vec3[float32]
	TexCoord vkngmath.Vec2[float32]
}

// BindingDescriptions returns the vertex buffer binding for Vertex.
func BindingDescriptions() []core1_0.VertexInputBindingDescription {
	v := Vertex{}
	return []core1_0.VertexInputBindingDescription{
		{
			Binding:   0,
			Stride:    int(unsafe.Sizeof(v)),
			InputRate: core1_0.VertexInputRateVertex,
		},
	}
}

// AttributeDescriptions returns the attribute layout for Vertex.
func AttributeDescriptions() []core1_0.VertexInputAttributeDescription {
	v := Vertex{}
	return []core1_0.VertexInputAttributeDescription{
		{
			Binding:  0,
			Location: 0,
			Format:   core1_0.FormatR32G32B32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Position)),
		},
		{
			Binding:  0,
			Location: 1,
			Format:   core1_0.FormatR32G32B32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Color)),
		},
		{
			Binding:  0,
			Location: 2,
			Format:   core1_0.FormatR32G32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.TexCoord)),
		},
	}
}

// Mesh is device-resident geometry. Indexed meshes carry an index buffer;
// non-indexed meshes draw VertexCount vertices directly.
type Mesh struct {
	Topology core1_0.PrimitiveTopology

	VertexBuffer core1_0.Buffer
	VertexCount  int

	IndexBuffer core1_0.Buffer
	IndexCount  int

	vertexMemory core1_0.DeviceMemory
	indexMemory  core1_0.DeviceMemory
	ctx          *render.Context
}

// Indexed reports whether the mesh draws through an index buffer.
func (m *Mesh) Indexed() bool {
	return m.IndexBuffer.Initialized()
}

// New uploads vertices (and indices, when non-empty) into device-local
// buffers via a staging buffer.
func New(ctx *render.Context, topology core1_0.PrimitiveTopology, vertices []Vertex, indices []uint32) (*Mesh, error) {
	if len(vertices) == 0 {
		return nil, errors.New("mesh requires at least one vertex")
	}

	m := &Mesh{
		Topology:    topology,
		VertexCount: len(vertices),
		IndexCount:  len(indices),
		ctx:         ctx,
	}

	var err error
	m.VertexBuffer, m.vertexMemory, err = uploadBuffer(ctx, vertices, core1_0.BufferUsageVertexBuffer)
	if err != nil {
		m.Destroy()
		return nil, err
	}

	if len(indices) > 0 {
		m.IndexBuffer, m.indexMemory, err = uploadBuffer(ctx, indices, core1_0.BufferUsageIndexBuffer)
		if err != nil {
			m.Destroy()
			return nil, err
		}
	}

	return m, nil
}

func uploadBuffer(ctx *render.Context, data any, usage core1_0.BufferUsageFlags) (core1_0.Buffer, core1_0.DeviceMemory, error) {
	bufferSize := binary.Size(data)

	stagingBuffer, stagingMemory, err := ctx.CreateBuffer(bufferSize, core1_0.BufferUsageTransferSrc, core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if stagingBuffer.Initialized() {
		defer ctx.DeviceDriver.DestroyBuffer(stagingBuffer, nil)
	}
	if stagingMemory.Initialized() {
		defer ctx.DeviceDriver.FreeMemory(stagingMemory, nil)
	}
	if err != nil {
		return core1_0.Buffer{}, core1_0.DeviceMemory{}, err
	}

	err = ctx.WriteData(stagingMemory, 0, data)
	if err != nil {
		return core1_0.Buffer{}, core1_0.DeviceMemory{}, err
	}

	buffer, memory, err := ctx.CreateBuffer(bufferSize, core1_0.BufferUsageTransferDst|usage, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return core1_0.Buffer{}, core1_0.DeviceMemory{}, err
	}

	err = ctx.CopyBuffer(stagingBuffer, buffer, bufferSize)
	if err != nil {
		ctx.DeviceDriver.DestroyBuffer(buffer, nil)
		ctx.DeviceDriver.FreeMemory(memory, nil)
		return core1_0.Buffer{}, core1_0.DeviceMemory{}, err
	}

	return buffer, memory, nil
}

// Destroy releases the mesh's buffers. Idempotent, and safe on a partially
// constructed mesh.
func (m *Mesh) Destroy() {
	if m.IndexBuffer.Initialized() {
		m.ctx.DeviceDriver.DestroyBuffer(m.IndexBuffer, nil)
		m.IndexBuffer = core1_0.Buffer{}
	}
	if m.indexMemory.Initialized() {
		m.ctx.DeviceDriver.FreeMemory(m.indexMemory, nil)
		m.indexMemory = core1_0.DeviceMemory{}
	}
	if m.VertexBuffer.Initialized() {
		m.ctx.DeviceDriver.DestroyBuffer(m.VertexBuffer, nil)
		m.VertexBuffer = core1_0.Buffer{}
	}
	if m.vertexMemory.Initialized() {
		m.ctx.DeviceDriver.FreeMemory(m.vertexMemory, nil)
		m.vertexMemory = core1_0.DeviceMemory{}
	}
}
