package window

import (
	"testing"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/stretchr/testify/assert"
)

func TestKeyFor(t *testing.T) {
	tests := []struct {
		in   glfw.Key
		want Key
	}{
		{glfw.KeyEnter, KeyEnter},
		{glfw.KeyKPEnter, KeyEnter},
		{glfw.KeyEscape, KeyEscape},
		{glfw.KeySpace, KeyUnknown},
		{glfw.KeyA, KeyUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, keyFor(tt.in), "glfw key %d", tt.in)
	}
}

func TestUninitializedWindow(t *testing.T) {
	w := &engineWindow{}
	assert.False(t, w.IsRunning())
	assert.Nil(t, w.SurfaceDescriptor())
	assert.Error(t, w.Close())
	w.RequestClose()
	w.SetTitle("x")
	assert.Equal(t, "x", w.title)
}

func TestOptions(t *testing.T) {
	w := &engineWindow{width: 10, height: 10}
	WithSize(0, 300)(w)
	WithSizeLimits(1, 2, 3, 4)(w)
	WithResizable(false)(w)
	WithTitle("slime")(w)

	assert.Equal(t, 10, w.width)
	assert.Equal(t, 300, w.height)
	assert.Equal(t, [4]int{1, 2, 3, 4}, [4]int{w.minWidth, w.minHeight, w.maxWidth, w.maxHeight})
	assert.False(t, w.resizable)
	assert.Equal(t, "slime", w.title)
	assert.Equal(t, "enter", KeyEnter.String())
}
