package simulation

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultParameters(t *testing.T) {
	p := DefaultParameters()
	assert.NoError(t, p.Validate())
	assert.Equal(t, SimulationParameters{
		AgentSpeed:      0.05,
		DecaySpeed:      0.05,
		DiffuseStrength: 20,
		SensorDistance:  0.01,
		SensorAngle:     0.2,
		RotationSpeed:   5,
		FieldWidth:      2048,
		FieldHeight:     2048,
	}, p)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SimulationParameters)
	}{
		{"speed above range", func(p *SimulationParameters) { p.AgentSpeed = 1.5 }},
		{"negative decay", func(p *SimulationParameters) { p.DecaySpeed = -0.1 }},
		{"diffuse NaN", func(p *SimulationParameters) { p.DiffuseStrength = float32(math.NaN()) }},
		{"sensor angle infinite", func(p *SimulationParameters) { p.SensorAngle = float32(math.Inf(1)) }},
		{"sensor distance", func(p *SimulationParameters) { p.SensorDistance = 0.3 }},
		{"rotation", func(p *SimulationParameters) { p.RotationSpeed = 11 }},
		{"zero width", func(p *SimulationParameters) { p.FieldWidth = 0 }},
		{"height too large", func(p *SimulationParameters) { p.FieldHeight = MaxFieldDimension + 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParameters()
			tt.mutate(&p)
			assert.ErrorIs(t, p.Validate(), ErrInvalidParameter)
			assert.NoError(t, p.Clamp().Validate())
		})
	}
}

func TestClamp(t *testing.T) {
	p := DefaultParameters()
	p.AgentSpeed = 3
	p.DecaySpeed = float32(math.NaN())
	p.RotationSpeed = -1
	p.FieldWidth = 0
	p.FieldHeight = 10000

	c := p.Clamp()
	assert.Equal(t, float32(1), c.AgentSpeed)
	assert.Equal(t, float32(0.05), c.DecaySpeed)
	assert.Zero(t, c.RotationSpeed)
	assert.Equal(t, uint32(1), c.FieldWidth)
	assert.Equal(t, uint32(MaxFieldDimension), c.FieldHeight)

	// the receiver is untouched
	assert.Equal(t, float32(3), p.AgentSpeed)
}

func TestSet(t *testing.T) {
	p := DefaultParameters()
	require.NoError(t, p.Set("agent_speed", 0.5))
	require.NoError(t, p.Set(" Sensor_Angle ", 2))
	require.NoError(t, p.Set("field_width", 640))
	require.NoError(t, p.Set("field_height", -3))

	assert.Equal(t, float32(0.5), p.AgentSpeed)
	assert.Equal(t, float32(0.5), p.SensorAngle)
	assert.Equal(t, uint32(640), p.FieldWidth)
	assert.Equal(t, uint32(1), p.FieldHeight)

	assert.ErrorIs(t, p.Set("gravity", 1), ErrUnknownParameter)
	assert.Len(t, ParameterNames(), 8)
}

func TestDecodeParameters(t *testing.T) {
	p, err := DecodeParameters([]byte("agent_speed = 0.2\nfield_width = 512\n"))
	require.NoError(t, err)
	assert.Equal(t, float32(0.2), p.AgentSpeed)
	assert.Equal(t, uint32(512), p.FieldWidth)
	// keys left out keep their defaults
	assert.Equal(t, float32(20), p.DiffuseStrength)
	assert.Equal(t, uint32(2048), p.FieldHeight)

	_, err = DecodeParameters([]byte("agent_sped = 0.2\n"))
	assert.ErrorContains(t, err, "agent_sped")

	_, err = DecodeParameters([]byte("decay_speed = 2.0\n"))
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = DecodeParameters([]byte("agent_speed = \n"))
	assert.Error(t, err)
}

func TestLoadParameters(t *testing.T) {
	want := DefaultParameters()
	want.RotationSpeed = 2.5
	want.FieldWidth, want.FieldHeight = 320, 180

	data, err := EncodeParameters(want)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "params.toml")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	got, err := LoadParameters(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = LoadParameters(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestParameterStore(t *testing.T) {
	s := NewParameterStore(DefaultParameters())
	require.NoError(t, s.Set("decay_speed", 0.5))
	assert.Equal(t, float32(0.5), s.Parameters().DecaySpeed)

	p := DefaultParameters()
	p.FieldWidth = 16
	s.Replace(p)
	assert.Equal(t, uint32(16), s.Parameters().FieldWidth)
}
