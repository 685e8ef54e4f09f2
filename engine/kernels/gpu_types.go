package kernels

import (
	_ "embed"
	"unsafe"
)

// AgentUpdateSource is the compute kernel that steers, moves and deposits every agent.
//
//go:embed assets/agent_update.wgsl
var AgentUpdateSource string

// TrailMapUpdateSource is the compute kernel that diffuses and decays the trail map.
//
//go:embed assets/trail_map_update.wgsl
var TrailMapUpdateSource string

// DisplayVertexSource is the fullscreen-quad vertex stage of the display program.
//
//go:embed assets/display.vert.wgsl
var DisplayVertexSource string

// DisplayFragmentSource samples the trail map for every pixel of the quad.
//
//go:embed assets/display.frag.wgsl
var DisplayFragmentSource string

// Entry points of the kernels, used to register their software implementations.
const (
	EntryAgentUpdate    = "agent_update"
	EntryTrailMapUpdate = "trail_map_update"
	EntryDisplayVertex  = "vs_main"
	EntryDisplayFrag    = "fs_main"
)

// Storage variable names shared by every kernel.
const (
	VarAgents   = "agents"
	VarTrailMap = "trailMap"
)

// AgentWorkgroupSize is the @workgroup_size of agent_update. Agent counts must be a multiple of it.
const AgentWorkgroupSize = 8

// AgentParams mirrors the AgentParams uniform struct of agent_update.
// Size: 32 bytes.
type AgentParams struct {
	DeltaTime          float32    // offset  0: seconds since the previous frame
	Frame              uint32     // offset  4: frame counter seeding the steering jitter
	TrailMapResolution [2]float32 // offset  8: field width and height in cells
	AgentSpeed         float32    // offset 16: field widths per second
	SensorDistance     float32    // offset 20: sensor reach in field widths
	SensorAngle        float32    // offset 24: sensor offset from the heading in turns
	RotationSpeed      float32    // offset 28: radians per second
}

// Size returns the size of the AgentParams struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes.
func (a *AgentParams) Size() int {
	return int(unsafe.Sizeof(*a))
}

// Apply writes every member into the named uniforms of a program.
//
// Parameters:
//   - u: the program receiving the values
func (a *AgentParams) Apply(u Uniformer) {
	u.SetFloat("deltaTime", a.DeltaTime)
	u.SetUint("frame", a.Frame)
	u.SetVec2("trailMapResolution", a.TrailMapResolution[0], a.TrailMapResolution[1])
	u.SetFloat("agentSpeed", a.AgentSpeed)
	u.SetFloat("sensorDistance", a.SensorDistance)
	u.SetFloat("sensorAngle", a.SensorAngle)
	u.SetFloat("rotationSpeed", a.RotationSpeed)
}

// TrailParams mirrors the TrailParams uniform struct of trail_map_update.
// Size: 12 bytes, padded to 16 in the uniform buffer.
type TrailParams struct {
	DeltaTime       float32 // offset 0
	DecaySpeed      float32 // offset 4: fraction removed per frame
	DiffuseStrength float32 // offset 8: blur blend rate per second
}

// Apply writes every member into the named uniforms of a program.
//
// Parameters:
//   - u: the program receiving the values
func (t *TrailParams) Apply(u Uniformer) {
	u.SetFloat("deltaTime", t.DeltaTime)
	u.SetFloat("decaySpeed", t.DecaySpeed)
	u.SetFloat("diffuseStrength", t.DiffuseStrength)
}

// DisplayParams mirrors the DisplayParams uniform struct of the display fragment stage.
type DisplayParams struct {
	TrailMapResolution [2]float32 // offset 0
}

// Apply writes every member into the named uniforms of a program.
//
// Parameters:
//   - u: the program receiving the values
func (d *DisplayParams) Apply(u Uniformer) {
	u.SetVec2("trailMapResolution", d.TrailMapResolution[0], d.TrailMapResolution[1])
}

// Uniformer is the uniform-setting half of a program.
type Uniformer interface {
	SetFloat(name string, value float32)
	SetUint(name string, value uint32)
	SetVec2(name string, x, y float32)
}
