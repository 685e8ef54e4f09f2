package program

import (
	"encoding/binary"
	"math"

	"github.com/Carmen-Shannon/physarum/common"
	"github.com/Carmen-Shannon/physarum/engine/renderer/shader"
	"go.uber.org/zap"
)

// uniformValue is a value written through one of the Set methods, kept so it survives relinking.
type uniformValue struct {
	typeName string
	words    [2]uint32
	count    int
}

// uniformBlock stages the bytes of a program's var<uniform> struct. Values are encoded
// little-endian at the offsets reflected from the shader source.
type uniformBlock struct {
	layout *shader.UniformBlock
	data   []byte
	dirty  bool
	values map[string]uniformValue
}

func newUniformBlock(layout *shader.UniformBlock) *uniformBlock {
	u := &uniformBlock{values: make(map[string]uniformValue)}
	u.relayout("", layout)
	return u
}

// relayout switches to a new layout and re-encodes every value that still fits it.
func (u *uniformBlock) relayout(programKey string, layout *shader.UniformBlock) {
	u.layout = layout
	u.data = nil
	if layout == nil {
		return
	}
	u.data = make([]byte, layout.Size)
	u.dirty = true
	for name, v := range u.values {
		u.write(programKey, name, v)
	}
}

func (u *uniformBlock) setFloat(programKey, name string, value float32) {
	u.set(programKey, name, uniformValue{typeName: "f32", words: [2]uint32{math.Float32bits(value)}, count: 1})
}

func (u *uniformBlock) setUint(programKey, name string, value uint32) {
	u.set(programKey, name, uniformValue{typeName: "u32", words: [2]uint32{value}, count: 1})
}

func (u *uniformBlock) setVec2(programKey, name string, x, y float32) {
	u.set(programKey, name, uniformValue{typeName: "vec2<f32>", words: [2]uint32{math.Float32bits(x), math.Float32bits(y)}, count: 2})
}

func (u *uniformBlock) set(programKey, name string, v uniformValue) {
	// values written before the first link are applied once a layout exists
	if u.layout == nil || u.write(programKey, name, v) {
		u.values[name] = v
	}
}

// write encodes v at the field's offset. It reports false, leaving the block untouched,
// when the name is unknown or the member type differs.
func (u *uniformBlock) write(programKey, name string, v uniformValue) bool {
	if u.layout == nil {
		return false
	}
	field, ok := u.layout.Fields[name]
	if !ok {
		common.Logger().Debug("uniform not found", zap.String("program", programKey), zap.String("uniform", name))
		return false
	}
	if normalizeType(field.TypeName) != v.typeName {
		common.Logger().Debug("uniform type mismatch",
			zap.String("program", programKey),
			zap.String("uniform", name),
			zap.String("declared", field.TypeName),
			zap.String("written", v.typeName),
		)
		return false
	}
	for i := range v.count {
		off := field.Offset + uint64(i*4)
		binary.LittleEndian.PutUint32(u.data[off:off+4], v.words[i])
	}
	u.dirty = true
	return true
}

// normalizeType maps WGSL shorthand aliases onto their long form.
func normalizeType(typeName string) string {
	switch typeName {
	case "vec2f":
		return "vec2<f32>"
	default:
		return typeName
	}
}
