package shader

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Carmen-Shannon/physarum/common"
	"github.com/cogentcore/webgpu/wgpu"
)

// ShaderType identifies the pipeline stage a shader source is compiled for.
type ShaderType int

const (
	// ShaderTypeCompute indicates a shader containing a @compute entry point.
	ShaderTypeCompute ShaderType = iota

	// ShaderTypeVertex is the vertex shader type, used for vertex processing in render programs.
	ShaderTypeVertex

	// ShaderTypeFragment is the fragment shader type, used for fragment processing in pair with a vertex shader.
	ShaderTypeFragment
)

func (t ShaderType) String() string {
	switch t {
	case ShaderTypeCompute:
		return "compute"
	case ShaderTypeVertex:
		return "vertex"
	case ShaderTypeFragment:
		return "fragment"
	default:
		return fmt.Sprintf("ShaderType(%d)", int(t))
	}
}

// Visibility returns the wgpu shader stage flag matching the shader type.
func (t ShaderType) Visibility() wgpu.ShaderStage {
	switch t {
	case ShaderTypeVertex:
		return wgpu.ShaderStageVertex
	case ShaderTypeFragment:
		return wgpu.ShaderStageFragment
	case ShaderTypeCompute:
		return wgpu.ShaderStageCompute
	default:
		return wgpu.ShaderStageNone
	}
}

// shader is the implementation of the Shader interface.
// It holds the kernel source and the metadata reflected from it.
type shader struct {
	key                        string
	path                       string
	source                     string
	shaderType                 ShaderType
	bindGroupLayoutDescriptors map[int]wgpu.BindGroupLayoutDescriptor
	bindingVarNames            map[int]map[int]string
	vertexLayouts              map[int][]wgpu.VertexBufferLayout
	uniformBlock               *UniformBlock
	workGroupSize              [3]uint32
	entryPoint                 string
}

// Shader is a loaded kernel source for a single stage together with the layout metadata
// reflected from its WGSL: entry point, workgroup size, bind group layouts, vertex
// buffer layouts and the uniform block used to resolve parameters by name.
type Shader interface {
	// Key retrieves the unique identifier for this shader, used for labels and lookups.
	//
	// Returns:
	//   - string: the shader's unique key
	Key() string

	// Path retrieves the file the source was read from, or an empty string for in-memory sources.
	//
	// Returns:
	//   - string: the source file path
	Path() string

	// Source retrieves the WGSL shader source code.
	//
	// Returns:
	//   - string: the WGSL source code of the shader
	Source() string

	// ShaderType returns the stage the shader was loaded for.
	//
	// Returns:
	//   - ShaderType: ShaderTypeVertex, ShaderTypeFragment, or ShaderTypeCompute
	ShaderType() ShaderType

	// EntryPoint returns the entry point name matching the shader type, or an empty
	// string when the source declares no such entry point.
	//
	// Returns:
	//   - string: the entry point name
	EntryPoint() string

	// WorkgroupSize returns the workgroup size dimensions for compute shaders.
	// Returns [0, 0, 0] for non-compute shaders and [1, 1, 1] as the default when
	// @workgroup_size is not specified.
	//
	// Returns:
	//   - [3]uint32: the workgroup size as [x, y, z]
	WorkgroupSize() [3]uint32

	// BindGroupLayoutDescriptors retrieves all parsed bind group layout descriptors.
	// The entries carry the visibility of this shader's stage.
	//
	// Returns:
	//   - map[int]wgpu.BindGroupLayoutDescriptor: descriptors keyed by group index
	BindGroupLayoutDescriptors() map[int]wgpu.BindGroupLayoutDescriptor

	// BindGroupVarNames retrieves all resource variable names keyed by group and binding index.
	//
	// Returns:
	//   - map[int]map[int]string: variable names keyed by group and binding index
	BindGroupVarNames() map[int]map[int]string

	// BindGroupFromVarName retrieves the group and binding index a resource variable is declared at.
	//
	// Parameters:
	//   - varName: the WGSL variable name
	//
	// Returns:
	//   - int: the group index, or -1 if not found
	//   - int: the binding index, or -1 if not found
	//   - bool: true if the variable name was found
	BindGroupFromVarName(varName string) (int, int, bool)

	// VertexLayouts retrieves the vertex buffer layouts reflected from vertex input structs.
	// Only populated for vertex shaders.
	//
	// Returns:
	//   - map[int][]wgpu.VertexBufferLayout: layouts keyed by sequential index
	VertexLayouts() map[int][]wgpu.VertexBufferLayout

	// UniformBlock returns the layout of the shader's var<uniform> struct, or nil if
	// the shader declares no uniform buffer.
	//
	// Returns:
	//   - *UniformBlock: the reflected uniform layout, or nil
	UniformBlock() *UniformBlock

	// Module returns the wgpu.ShaderModuleDescriptor for this shader.
	//
	// Returns:
	//   - *wgpu.ShaderModuleDescriptor: the descriptor containing the WGSL code and label
	Module() *wgpu.ShaderModuleDescriptor
}

var _ Shader = &shader{}

// NewShader reads a WGSL source file in full and reflects its layout metadata.
// Failing to open the file yields a common.KindResourceOpen error. A short read or an
// empty file yields a common.KindResourceRead error.
//
// Parameters:
//   - key: a unique identifier for the shader, used for labels and diagnostics
//   - shaderType: the stage the source is loaded for
//   - sourcePath: the file path to read WGSL source from
//
// Returns:
//   - Shader: the loaded shader, nil on error
//   - error: a *common.Error describing the I/O failure
func NewShader(key string, shaderType ShaderType, sourcePath string) (Shader, error) {
	source, err := readSource(sourcePath)
	if err != nil {
		return nil, err
	}
	s := newShader(key, shaderType, source)
	s.path = sourcePath
	return s, nil
}

// NewShaderFromSource builds a Shader from in-memory WGSL. An empty source yields a
// common.KindResourceRead error.
//
// Parameters:
//   - key: a unique identifier for the shader
//   - shaderType: the stage the source is loaded for
//   - source: the WGSL source text
//
// Returns:
//   - Shader: the loaded shader, nil on error
//   - error: a *common.Error if the source is empty
func NewShaderFromSource(key string, shaderType ShaderType, source string) (Shader, error) {
	if strings.TrimSpace(source) == "" {
		return nil, common.NewError(common.KindResourceRead, "read", key, "empty source", nil)
	}
	return newShader(key, shaderType, source), nil
}

func newShader(key string, shaderType ShaderType, source string) *shader {
	s := &shader{
		key:           key,
		source:        source,
		shaderType:    shaderType,
		vertexLayouts: make(map[int][]wgpu.VertexBufferLayout),
	}
	s.entryPoint = parseEntryPoint(source, shaderType)
	if shaderType == ShaderTypeVertex {
		s.vertexLayouts = parseVertexLayouts(source)
	}
	if shaderType == ShaderTypeCompute {
		s.workGroupSize = parseWorkgroupSize(source)
	}
	s.bindGroupLayoutDescriptors, s.bindingVarNames = parseBindGroupLayouts(source, shaderType.Visibility())
	if block, ok := parseUniformBlock(source); ok {
		s.uniformBlock = &block
	}
	return s
}

// readSource opens, stats and reads a source file in full, classifying failures into
// the open and read kinds.
func readSource(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", common.NewError(common.KindResourceOpen, "open", path, "", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", common.NewError(common.KindResourceRead, "stat", path, "", err)
	}
	if info.Size() == 0 {
		return "", common.NewError(common.KindResourceRead, "read", path, "empty source", nil)
	}

	buf := make([]byte, info.Size())
	if _, err := io.ReadFull(f, buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			err = fmt.Errorf("short read of %d bytes: %w", info.Size(), err)
		}
		return "", common.NewError(common.KindResourceRead, "read", path, "", err)
	}
	return string(buf), nil
}

func (s *shader) Key() string {
	return s.key
}

func (s *shader) Path() string {
	return s.path
}

func (s *shader) Source() string {
	return s.source
}

func (s *shader) ShaderType() ShaderType {
	return s.shaderType
}

func (s *shader) EntryPoint() string {
	return s.entryPoint
}

func (s *shader) WorkgroupSize() [3]uint32 {
	return s.workGroupSize
}

func (s *shader) BindGroupLayoutDescriptors() map[int]wgpu.BindGroupLayoutDescriptor {
	return s.bindGroupLayoutDescriptors
}

func (s *shader) BindGroupVarNames() map[int]map[int]string {
	return s.bindingVarNames
}

func (s *shader) BindGroupFromVarName(varName string) (int, int, bool) {
	for group, bindings := range s.bindingVarNames {
		for binding, name := range bindings {
			if name == varName {
				return group, binding, true
			}
		}
	}
	return -1, -1, false
}

func (s *shader) VertexLayouts() map[int][]wgpu.VertexBufferLayout {
	return s.vertexLayouts
}

func (s *shader) UniformBlock() *UniformBlock {
	return s.uniformBlock
}

func (s *shader) Module() *wgpu.ShaderModuleDescriptor {
	return &wgpu.ShaderModuleDescriptor{
		Label: s.key,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: s.source,
		},
	}
}
