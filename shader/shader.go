// Package shader wraps compiled SPIR-V programs. A Program carries a stable
// identity so pipeline state keyed on shader selection can tell programs
// apart without comparing module handles.
package shader

import (
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/render"
)

// Program is a vertex+fragment shader pair. The core treats shader loading as
// a collaborator concern: callers hand in raw SPIR-V bytes from wherever they
// keep them.
type Program struct {
	ID uuid.UUID

	VertModule core1_0.ShaderModule
	FragModule core1_0.ShaderModule

	ctx *render.Context
}

// New builds shader modules from raw SPIR-V bytes and assigns the program a
// fresh identity.
func New(ctx *render.Context, vertSPIRV, fragSPIRV []byte) (*Program, error) {
	if len(vertSPIRV)%4 != 0 || len(fragSPIRV)%4 != 0 {
		return nil, errors.New("SPIR-V bytecode length must be a multiple of 4")
	}

	vertModule, _, err := ctx.DeviceDriver.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: bytesToBytecode(vertSPIRV),
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating vertex shader module")
	}

	fragModule, _, err := ctx.DeviceDriver.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: bytesToBytecode(fragSPIRV),
	})
	if err != nil {
		ctx.DeviceDriver.DestroyShaderModule(vertModule, nil)
		return nil, errors.Wrap(err, "creating fragment shader module")
	}

	return &Program{
		ID:         uuid.New(),
		VertModule: vertModule,
		FragModule: fragModule,
		ctx:        ctx,
	}, nil
}

// Stages returns the shader stage create infos for pipeline construction.
func (p *Program) Stages() []core1_0.PipelineShaderStageCreateInfo {
	return []core1_0.PipelineShaderStageCreateInfo{
		{
			Stage:  core1_0.StageVertex,
			Module: p.VertModule,
			Name:   "main",
		},
		{
			Stage:  core1_0.StageFragment,
			Module: p.FragModule,
			Name:   "main",
		},
	}
}

// Destroy releases both modules. Idempotent.
func (p *Program) Destroy() {
	if p.VertModule.Initialized() {
		p.ctx.DeviceDriver.DestroyShaderModule(p.VertModule, nil)
		p.VertModule = core1_0.ShaderModule{}
	}
	if p.FragModule.Initialized() {
		p.ctx.DeviceDriver.DestroyShaderModule(p.FragModule, nil)
		p.FragModule = core1_0.ShaderModule{}
	}
}

func bytesToBytecode(b []byte) []uint32 {
	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = 0
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}

	return byteCode
}
