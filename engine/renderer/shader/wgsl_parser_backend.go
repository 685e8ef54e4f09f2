package shader

import (
	"strconv"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"
)

// wgslPrimitiveLayoutMap maps the WGSL scalar and vector types used by the simulation
// kernels to their byte size and alignment.
//
// Reference: https://www.w3.org/TR/WGSL/#alignment-and-size
var wgslPrimitiveLayoutMap = map[string]wgslTypeLayout{
	"f32":  {4, 4},
	"i32":  {4, 4},
	"u32":  {4, 4},
	"bool": {4, 4},

	"vec2<f32>": {8, 8},
	"vec2f":     {8, 8},
	"vec3<f32>": {12, 16},
	"vec3f":     {12, 16},
	"vec4<f32>": {16, 16},
	"vec4f":     {16, 16},

	"vec2<u32>": {8, 8},
	"vec2u":     {8, 8},
	"vec4<u32>": {16, 16},
	"vec4u":     {16, 16},

	"atomic<u32>": {4, 4},
}

// roundUpAlign rounds value up to the next multiple of a power-of-two alignment.
func roundUpAlign(alignment, value uint64) uint64 {
	if alignment == 0 {
		return value
	}
	return (value + alignment - 1) &^ (alignment - 1)
}

// stride is the distance between consecutive array elements of this layout.
func (l wgslTypeLayout) stride() uint64 {
	return roundUpAlign(l.align, l.size)
}

// arrayType is a parsed array<T> or array<T, N> type name.
type arrayType struct {
	elem    string
	count   uint64
	runtime bool
}

// splitArrayType parses an array type name. The bool is false for anything that is not an array.
func splitArrayType(typeName string) (arrayType, bool) {
	inner, ok := strings.CutPrefix(typeName, "array<")
	if !ok || !strings.HasSuffix(inner, ">") {
		return arrayType{}, false
	}
	inner = inner[:len(inner)-1]

	// the count follows the last top-level comma, so array<vec4<f32>, 9> splits correctly
	parts := splitAtTopLevelCommas(inner)
	at := arrayType{elem: strings.TrimSpace(parts[0]), runtime: len(parts) == 1}
	if !at.runtime {
		n, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 64)
		if err != nil {
			return arrayType{}, false
		}
		at.count = n
	}
	return at, true
}

// layoutTable resolves WGSL type names to layouts, including the structs of one source.
type layoutTable map[string]wgslTypeLayout

// newLayoutTable computes the layout of every struct. Structs may reference each other
// in any order, so resolution repeats until no struct makes progress.
func newLayoutTable(structs []parsedStruct) layoutTable {
	table := make(layoutTable, len(structs))
	pending := append([]parsedStruct(nil), structs...)
	for len(pending) > 0 {
		var unresolved []parsedStruct
		for _, ps := range pending {
			if _, layout, ok := table.place(ps.fields); ok {
				table[ps.name] = layout
			} else {
				unresolved = append(unresolved, ps)
			}
		}
		if len(unresolved) == len(pending) {
			break
		}
		pending = unresolved
	}
	return table
}

// of returns the layout of a type name. A runtime-sized array reports one element, the
// smallest binding that is still useful.
func (t layoutTable) of(typeName string) (wgslTypeLayout, bool) {
	if l, ok := wgslPrimitiveLayoutMap[typeName]; ok {
		return l, true
	}
	if l, ok := t[typeName]; ok {
		return l, true
	}
	at, ok := splitArrayType(typeName)
	if !ok {
		return wgslTypeLayout{}, false
	}
	elem, ok := t.of(at.elem)
	if !ok {
		return wgslTypeLayout{}, false
	}
	if at.runtime {
		return wgslTypeLayout{elem.stride(), elem.align}, true
	}
	return wgslTypeLayout{at.count * elem.stride(), elem.align}, true
}

// place lays out struct members in order and returns each member's offset and the
// struct's layout. Builtin members take no buffer space. A trailing runtime-sized array
// contributes nothing to the size unless it is the only member.
func (t layoutTable) place(fields []parsedField) ([]uint64, wgslTypeLayout, bool) {
	offsets := make([]uint64, len(fields))
	var offset uint64
	align := uint64(1)

	for i, f := range fields {
		if f.isBuiltin {
			continue
		}
		if at, ok := splitArrayType(f.typeName); ok && at.runtime && i == len(fields)-1 {
			elem, ok := t.of(at.elem)
			if !ok {
				return nil, wgslTypeLayout{}, false
			}
			align = max(align, elem.align)
			offsets[i] = roundUpAlign(elem.align, offset)
			if offsets[i] == 0 {
				return offsets, wgslTypeLayout{elem.stride(), align}, true
			}
			return offsets, wgslTypeLayout{roundUpAlign(align, offset), align}, true
		}

		l, ok := t.of(f.typeName)
		if !ok {
			return nil, wgslTypeLayout{}, false
		}
		offset = roundUpAlign(l.align, offset)
		offsets[i] = offset
		offset += l.size
		align = max(align, l.align)
	}
	return offsets, wgslTypeLayout{roundUpAlign(align, offset), align}, true
}

// bufferBindingType maps a var<...> address space qualifier to a buffer binding type.
// Storage without an access mode is read-only, as in WGSL. The bool is false for handle
// types, which declare no address space.
func bufferBindingType(addressSpace string) (wgpu.BufferBindingType, bool) {
	space, access, _ := strings.Cut(addressSpace, ",")
	switch strings.TrimSpace(space) {
	case "uniform":
		return wgpu.BufferBindingTypeUniform, true
	case "storage":
		if strings.TrimSpace(access) == "read_write" {
			return wgpu.BufferBindingTypeStorage, true
		}
		return wgpu.BufferBindingTypeReadOnlyStorage, true
	default:
		return wgpu.BufferBindingTypeUndefined, false
	}
}

// stripComments removes line comments and nested block comments in one pass.
func stripComments(source string) string {
	var sb strings.Builder
	sb.Grow(len(source))

	depth := 0
	for i := 0; i < len(source); i++ {
		c := source[i]
		var next byte
		if i+1 < len(source) {
			next = source[i+1]
		}
		switch {
		case c == '/' && next == '*':
			depth++
			i++
		case c == '*' && next == '/' && depth > 0:
			depth--
			i++
		case depth > 0:
			// inside a block comment
		case c == '/' && next == '/':
			for i < len(source) && source[i] != '\n' {
				i++
			}
			if i < len(source) {
				sb.WriteByte('\n')
			}
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// isVertexInputStruct reports whether every member carries a @location and none is a
// builtin. Vertex outputs mix @location with @builtin(position) and are excluded.
func isVertexInputStruct(ps parsedStruct) bool {
	if len(ps.fields) == 0 {
		return false
	}
	for _, f := range ps.fields {
		if f.isBuiltin || f.location < 0 {
			return false
		}
	}
	return true
}

// buildVertexBufferLayout packs the members of a vertex input struct tightly in
// declaration order. The bool is false if a member has no vertex format.
func buildVertexBufferLayout(ps parsedStruct) (wgpu.VertexBufferLayout, bool) {
	layout := wgpu.VertexBufferLayout{StepMode: wgpu.VertexStepModeVertex}
	for _, f := range ps.fields {
		info, ok := wgslVertexFormatMap[f.typeName]
		if !ok {
			return wgpu.VertexBufferLayout{}, false
		}
		layout.Attributes = append(layout.Attributes, wgpu.VertexAttribute{
			Format:         info.format,
			Offset:         layout.ArrayStride,
			ShaderLocation: uint32(f.location),
		})
		layout.ArrayStride += info.size
	}
	return layout, true
}

// splitAtTopLevelCommas splits s at commas outside angle brackets, so a member typed
// array<vec4<f32>, 9> stays whole.
func splitAtTopLevelCommas(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i, c := range s {
		switch {
		case c == '<':
			depth++
		case c == '>' && depth > 0:
			depth--
		case c == ',' && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}
