package shader

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"
)

// wgslVertexFormatMap maps WGSL type names to their corresponding wgpu vertex format and byte size
var wgslVertexFormatMap = map[string]vertexFormatInfo{
	"f32":       {wgpu.VertexFormatFloat32, 4},
	"vec2f":     {wgpu.VertexFormatFloat32x2, 8},
	"vec2<f32>": {wgpu.VertexFormatFloat32x2, 8},
	"vec3f":     {wgpu.VertexFormatFloat32x3, 12},
	"vec3<f32>": {wgpu.VertexFormatFloat32x3, 12},
	"vec4f":     {wgpu.VertexFormatFloat32x4, 16},
	"vec4<f32>": {wgpu.VertexFormatFloat32x4, 16},
	"u32":       {wgpu.VertexFormatUint32, 4},
	"vec2u":     {wgpu.VertexFormatUint32x2, 8},
	"vec2<u32>": {wgpu.VertexFormatUint32x2, 8},
}

var (
	// structBlockRegex matches struct declarations and captures the name and body
	structBlockRegex = regexp.MustCompile(`struct\s+(\w+)\s*\{([^}]*)\}`)

	// locationRegex matches @location(N) attributes
	locationRegex = regexp.MustCompile(`@location\((\d+)\)`)

	// builtinRegex matches @builtin(...) attributes
	builtinRegex = regexp.MustCompile(`@builtin\(\w+\)`)

	// fieldRegex matches a struct field line: optional attributes, name, colon, type.
	fieldRegex = regexp.MustCompile(`(?:(?:@\w+\([^)]*\)\s*)*)*\s*(\w+)\s*:\s*(.+)`)

	// vertexEntryRegex matches @vertex functions and captures the entry point name
	vertexEntryRegex = regexp.MustCompile(`(?s)@vertex\b.*?\bfn\s+(\w+)`)

	// fragmentEntryRegex matches @fragment functions and captures the entry point name
	fragmentEntryRegex = regexp.MustCompile(`(?s)@fragment\b.*?\bfn\s+(\w+)`)

	// computeEntryRegex matches @compute functions and captures the entry point name
	computeEntryRegex = regexp.MustCompile(`(?s)@compute\b.*?\bfn\s+(\w+)`)

	// workgroupSizeRegex captures 1-3 integer dimensions from @workgroup_size(x[, y[, z]])
	workgroupSizeRegex = regexp.MustCompile(`@workgroup_size\(\s*(\d+)\s*(?:,\s*(\d+)\s*(?:,\s*(\d+)\s*)?)?\)`)

	// bindGroupDeclRegex captures group, binding, optional address space, variable name, and type
	// from declarations like: @group(0) @binding(0) var<uniform> params: Params;
	bindGroupDeclRegex = regexp.MustCompile(`@group\((\d+)\)\s*@binding\((\d+)\)\s*var(?:<([^>]*)>)?\s+(\w+)\s*:\s*([^;]+?)\s*;`)
)

// parseVertexLayouts extracts vertex buffer layouts from WGSL source code.
// It finds all structs that are pure vertex inputs (have @location attributes but no @builtin fields)
// and converts them into wgpu.VertexBufferLayout entries. Structs containing unrecognized
// WGSL types are skipped.
//
// Parameters:
//   - source: the raw WGSL source code string
//
// Returns:
//   - map[int][]wgpu.VertexBufferLayout: vertex layouts keyed by sequential index
func parseVertexLayouts(source string) map[int][]wgpu.VertexBufferLayout {
	result := make(map[int][]wgpu.VertexBufferLayout)
	structs := parseStructBlocks(stripComments(source))

	layoutIndex := 0
	for _, ps := range structs {
		if !isVertexInputStruct(ps) {
			continue
		}
		layout, ok := buildVertexBufferLayout(ps)
		if !ok {
			continue
		}
		result[layoutIndex] = []wgpu.VertexBufferLayout{layout}
		layoutIndex++
	}

	return result
}

// parseBindGroupLayouts extracts all @group(N) @binding(M) buffer declarations from WGSL
// source and returns them as wgpu.BindGroupLayoutDescriptor values grouped by group index.
// Only uniform and storage buffers are reflected; handle types (textures, samplers) are
// not part of any program in this module and are skipped.
//
// Parameters:
//   - source: the raw WGSL source code string
//   - visibility: the shader stage visibility flag to set on each entry
//
// Returns:
//   - map[int]wgpu.BindGroupLayoutDescriptor: layout descriptors keyed by group index
//   - map[int]map[int]string: variable names keyed by group and binding index
func parseBindGroupLayouts(source string, visibility wgpu.ShaderStage) (map[int]wgpu.BindGroupLayoutDescriptor, map[int]map[int]string) {
	cleaned := stripComments(source)
	layouts := newLayoutTable(parseStructBlocks(cleaned))

	entries := make(map[int][]wgpu.BindGroupLayoutEntry)
	varNames := make(map[int]map[int]string)
	for _, decl := range parseResourceDecls(cleaned) {
		bufType, ok := bufferBindingType(decl.addressSpace)
		if !ok {
			continue
		}
		entry := wgpu.BindGroupLayoutEntry{Binding: uint32(decl.binding), Visibility: visibility}
		entry.Buffer.Type = bufType
		if l, ok := layouts.of(decl.typeName); ok {
			entry.Buffer.MinBindingSize = l.size
		}
		entries[decl.group] = append(entries[decl.group], entry)

		if varNames[decl.group] == nil {
			varNames[decl.group] = make(map[int]string)
		}
		varNames[decl.group][decl.binding] = decl.varName
	}

	result := make(map[int]wgpu.BindGroupLayoutDescriptor, len(entries))
	for g, es := range entries {
		sort.Slice(es, func(i, j int) bool { return es[i].Binding < es[j].Binding })
		result[g] = wgpu.BindGroupLayoutDescriptor{Entries: es}
	}
	return result, varNames
}

// resourceDecl is one @group(G) @binding(B) var<space> name: Type declaration.
type resourceDecl struct {
	group, binding int
	addressSpace   string
	varName        string
	typeName       string
}

func parseResourceDecls(cleaned string) []resourceDecl {
	matches := bindGroupDeclRegex.FindAllStringSubmatch(cleaned, -1)
	decls := make([]resourceDecl, 0, len(matches))
	for _, m := range matches {
		group, _ := strconv.Atoi(m[1])
		binding, _ := strconv.Atoi(m[2])
		decls = append(decls, resourceDecl{
			group:        group,
			binding:      binding,
			addressSpace: strings.TrimSpace(m[3]),
			varName:      strings.TrimSpace(m[4]),
			typeName:     strings.TrimSpace(m[5]),
		})
	}
	return decls
}

// parseUniformBlock reflects the first var<uniform> declaration: its location, its size
// and the offset of every member. A uniform of primitive type yields a single field named
// after the variable.
//
// Parameters:
//   - source: the raw WGSL source code string
//
// Returns:
//   - UniformBlock: the reflected layout
//   - bool: false if the source declares no uniform or its type cannot be resolved
func parseUniformBlock(source string) (UniformBlock, bool) {
	cleaned := stripComments(source)
	structs := parseStructBlocks(cleaned)
	layouts := newLayoutTable(structs)

	for _, decl := range parseResourceDecls(cleaned) {
		if bt, _ := bufferBindingType(decl.addressSpace); bt != wgpu.BufferBindingTypeUniform {
			continue
		}
		block := UniformBlock{
			VarName:  decl.varName,
			Group:    decl.group,
			Binding:  decl.binding,
			TypeName: decl.typeName,
			Fields:   make(map[string]UniformField),
		}

		if l, ok := wgslPrimitiveLayoutMap[decl.typeName]; ok {
			block.Size = roundUpAlign(16, l.size)
			block.Fields[decl.varName] = UniformField{Name: decl.varName, TypeName: decl.typeName, Size: l.size}
			return block, true
		}

		for _, ps := range structs {
			if ps.name != decl.typeName {
				continue
			}
			offsets, l, ok := layouts.place(ps.fields)
			if !ok {
				return UniformBlock{}, false
			}
			for i, f := range ps.fields {
				fl, _ := layouts.of(f.typeName)
				block.Fields[f.name] = UniformField{Name: f.name, TypeName: f.typeName, Offset: offsets[i], Size: fl.size}
			}
			// uniform buffer sizes are multiples of 16
			block.Size = roundUpAlign(16, l.size)
			return block, true
		}
		return UniformBlock{}, false
	}
	return UniformBlock{}, false
}

// parseWorkgroupSize extracts the @workgroup_size(x, y, z) dimensions from WGSL source.
// Omitted dimensions default to 1. Returns [1, 1, 1] if no @workgroup_size annotation is found.
//
// Parameters:
//   - source: the raw WGSL source code string
//
// Returns:
//   - [3]uint32: the workgroup size as [x, y, z]
func parseWorkgroupSize(source string) [3]uint32 {
	result := [3]uint32{1, 1, 1}

	match := workgroupSizeRegex.FindStringSubmatch(stripComments(source))
	if match == nil {
		return result
	}
	for i := range 3 {
		if match[i+1] == "" {
			continue
		}
		if v, err := strconv.ParseUint(match[i+1], 10, 32); err == nil {
			result[i] = uint32(v)
		}
	}
	return result
}

// parseEntryPoint extracts the entry point function name for the given shader type
// from WGSL source. Returns an empty string if no matching entry point annotation is found.
//
// Parameters:
//   - source: the raw WGSL source code string
//   - shaderType: the shader type to search for
//
// Returns:
//   - string: the entry point function name, or empty string if not found
func parseEntryPoint(source string, shaderType ShaderType) string {
	var re *regexp.Regexp
	switch shaderType {
	case ShaderTypeVertex:
		re = vertexEntryRegex
	case ShaderTypeFragment:
		re = fragmentEntryRegex
	case ShaderTypeCompute:
		re = computeEntryRegex
	default:
		return ""
	}

	if match := re.FindStringSubmatch(stripComments(source)); match != nil {
		return match[1]
	}
	return ""
}

// Lint performs the structural checks a driver front end runs before type checking:
// the source must be non-empty, every bracket pair must balance, and the stage must
// declare an entry point. The returned error text is formatted as a compiler diagnostic.
//
// Parameters:
//   - source: the raw WGSL source code string
//   - shaderType: the stage the source will be compiled for
//
// Returns:
//   - error: nil if the source passes, otherwise a diagnostic naming the first problem
func Lint(source string, shaderType ShaderType) error {
	cleaned := stripComments(source)
	if strings.TrimSpace(cleaned) == "" {
		return fmt.Errorf("error: empty shader source")
	}

	type open struct {
		char byte
		line int
	}
	pairs := map[byte]byte{')': '(', '}': '{', ']': '['}
	var stack []open
	line := 1
	for i := 0; i < len(cleaned); i++ {
		c := cleaned[i]
		switch c {
		case '\n':
			line++
		case '(', '{', '[':
			stack = append(stack, open{c, line})
		case ')', '}', ']':
			if len(stack) == 0 || stack[len(stack)-1].char != pairs[c] {
				return fmt.Errorf("error: line %d: unexpected %q", line, c)
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		top := stack[len(stack)-1]
		return fmt.Errorf("error: line %d: unclosed %q", top.line, top.char)
	}

	if parseEntryPoint(source, shaderType) == "" {
		return fmt.Errorf("error: no @%s entry point declared", shaderType)
	}
	return nil
}

// parseStructBlocks finds all struct { ... } blocks in the cleaned WGSL source
// and parses their fields including @location and @builtin attributes
//
// Parameters:
//   - source: WGSL source with comments already stripped
//
// Returns:
//   - []parsedStruct: all struct blocks found in the source
func parseStructBlocks(source string) []parsedStruct {
	matches := structBlockRegex.FindAllStringSubmatch(source, -1)
	structs := make([]parsedStruct, 0, len(matches))
	for _, match := range matches {
		structs = append(structs, parsedStruct{
			name:   match[1],
			fields: parseStructFields(match[2]),
		})
	}
	return structs
}

// parseStructFields parses the body of a struct block into individual fields,
// extracting @location and @builtin attributes along with the field name and type
func parseStructFields(body string) []parsedField {
	lines := splitAtTopLevelCommas(body)
	fields := make([]parsedField, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		field := parsedField{location: -1}
		field.isBuiltin = builtinRegex.MatchString(line)
		if locMatch := locationRegex.FindStringSubmatch(line); locMatch != nil {
			if loc, err := strconv.Atoi(locMatch[1]); err == nil {
				field.location = loc
			}
		}

		fm := fieldRegex.FindStringSubmatch(line)
		if fm == nil {
			continue
		}
		field.name = fm[1]
		field.typeName = strings.TrimSpace(fm[2])
		fields = append(fields, field)
	}

	return fields
}
