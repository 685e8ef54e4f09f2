package frame

import (
	"github.com/Carmen-Shannon/physarum/common"
	"github.com/Carmen-Shannon/physarum/engine/renderer"
	"github.com/Carmen-Shannon/physarum/engine/simulation"
	"go.uber.org/zap"
)

// pendingWrites is produced by a dispatch that wrote the field. Its writes are not yet
// visible to any later step; only barrier turns it into a visibleField.
type pendingWrites struct {
	field  *simulation.TrailMapField
	writer string
}

// visibleField proves every earlier write to the field is visible. Each step that reads
// the field takes one, so dropping a barrier from the frame does not compile.
type visibleField struct {
	field *simulation.TrailMapField
}

// frameStart returns the field as seen at the start of a frame. The previous frame ended
// with a submission, which publishes all of its writes.
func frameStart(field *simulation.TrailMapField) visibleField {
	return visibleField{field: field}
}

// barrier orders the pending writes before everything recorded after it.
func barrier(r renderer.Renderer, w pendingWrites) visibleField {
	r.Barrier(renderer.BarrierStorage)
	common.Logger().Debug("storage barrier", zap.String("after", w.writer))
	return visibleField{field: w.field}
}
