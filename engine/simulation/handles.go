package simulation

import (
	"github.com/Carmen-Shannon/physarum/common"
	"github.com/Carmen-Shannon/physarum/engine/renderer"
)

// noCopy makes go vet's copylocks check flag handles copied by value.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// AgentBuffer is the storage holding every agent record. It is owned by the Resources that
// allocated it and must only be passed around by pointer.
type AgentBuffer struct {
	_ noCopy

	owner   *resources
	storage renderer.Storage
	count   int
}

// Storage returns the underlying storage buffer for binding.
func (a *AgentBuffer) Storage() renderer.Storage {
	return a.storage
}

// Count returns the number of agents.
func (a *AgentBuffer) Count() int {
	return a.count
}

// Release destroys the buffer. It panics if the buffer was already released or is not
// the one its owner currently holds.
func (a *AgentBuffer) Release() {
	a.owner.releaseAgents(a)
}

// TrailMapField is the storage holding the trail map, 4 x f32 per cell. It is owned by
// the Resources that allocated it and must only be passed around by pointer.
type TrailMapField struct {
	_ noCopy

	owner   *resources
	storage renderer.Storage
	size    common.FieldSize
}

// Storage returns the underlying storage buffer for binding.
func (f *TrailMapField) Storage() renderer.Storage {
	return f.storage
}

// Size returns the field resolution.
func (f *TrailMapField) Size() common.FieldSize {
	return f.size
}

// Release destroys the field. It panics if the field was already released or is not the
// one its owner currently holds.
func (f *TrailMapField) Release() {
	f.owner.releaseField(f)
}
