package mesh

import (
	"io"

	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/loader/obj"
	"github.com/vkngwrapper/core/v3/core1_0"
	vkngmath "github.com/vkngwrapper/math"
	"github.com/vkngwrapper/render"
)

// DecodeOBJ parses a Wavefront OBJ stream (with optional material stream,
// which may be nil) into deduplicated vertex and index slices. Faces are
// triangularized by fanning.
func DecodeOBJ(objReader, mtlReader io.Reader) ([]Vertex, []uint32, error) {
	decoder, err := obj.DecodeReader(objReader, mtlReader)
	if err != nil {
		return nil, nil, errors.Wrap(err, "decoding obj")
	}

	var vertices []Vertex
	var indices []uint32
	uniqueVertices := make(map[int]uint32)

	addVertex := func(face obj.Face, faceIndex int) {
		vertInd := face.Vertices[faceIndex]
		index, vertexExists := uniqueVertices[vertInd]

		if !vertexExists {
			vert := Vertex{Position: vkngmath.Vec3[float32]{
				X: decoder.Vertices[vertInd*3],
				Y: decoder.Vertices[vertInd*3+1],
				Z: decoder.Vertices[vertInd*3+2],
			}, Color: vkngmath.Vec3[float32]{X: 1, Y: 1, Z: 1}}

			if len(face.Uvs) > faceIndex {
				uvInd := face.Uvs[faceIndex]
				vert.TexCoord = vkngmath.Vec2[float32]{
					X: decoder.Uvs[uvInd*2],
					Y: 1.0 - decoder.Uvs[uvInd*2+1],
				}
			}

			index = uint32(len(vertices))
			vertices = append(vertices, vert)
			uniqueVertices[vertInd] = index
		}

		indices = append(indices, index)
	}

	for _, decodedObj := range decoder.Objects {
		for _, face := range decodedObj.Faces {
			for i := 2; i < len(face.Vertices); i++ {
				addVertex(face, 0)
				addVertex(face, i-1)
				addVertex(face, i)
			}
		}
	}

	return vertices, indices, nil
}

// LoadOBJ decodes an OBJ stream and uploads it as an indexed triangle mesh.
func LoadOBJ(ctx *render.Context, objReader, mtlReader io.Reader) (*Mesh, error) {
	vertices, indices, err := DecodeOBJ(objReader, mtlReader)
	if err != nil {
		return nil, err
	}

	return New(ctx, core1_0.PrimitiveTopologyTriangleList, vertices, indices)
}
