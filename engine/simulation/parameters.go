package simulation

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/physarum/common"
	"github.com/chewxy/math32"
	"github.com/pelletier/go-toml/v2"
)

// MaxFieldDimension is the largest field width or height accepted.
const MaxFieldDimension = 4096

// SimulationParameters are the tunables of the simulation. They are read once per frame.
type SimulationParameters struct {
	// AgentSpeed is the distance an agent covers per second in field widths.
	AgentSpeed float32 `toml:"agent_speed"`
	// DecaySpeed is the fraction of the trail removed every frame.
	DecaySpeed float32 `toml:"decay_speed"`
	// DiffuseStrength is how fast the trail blends towards its blurred neighbourhood, per second.
	DiffuseStrength float32 `toml:"diffuse_strength"`
	// SensorDistance is how far ahead of an agent the sensors sample, in field widths.
	SensorDistance float32 `toml:"sensor_distance"`
	// SensorAngle is the offset of the side sensors from the heading, in turns.
	SensorAngle float32 `toml:"sensor_angle"`
	// RotationSpeed is the steering rate in radians per second.
	RotationSpeed float32 `toml:"rotation_speed"`
	// FieldWidth and FieldHeight are the trail map resolution in cells.
	FieldWidth  uint32 `toml:"field_width"`
	FieldHeight uint32 `toml:"field_height"`
}

// ErrInvalidParameter is returned when a parameter is not finite or out of range.
var ErrInvalidParameter = errors.New("invalid simulation parameter")

// ErrUnknownParameter is returned by Set for a name that is not a tunable.
var ErrUnknownParameter = errors.New("unknown simulation parameter")

type floatRange struct {
	min, max, def float32
	field         func(*SimulationParameters) *float32
}

var floatRanges = map[string]floatRange{
	"agent_speed":      {0, 1, 0.05, func(p *SimulationParameters) *float32 { return &p.AgentSpeed }},
	"decay_speed":      {0, 1, 0.05, func(p *SimulationParameters) *float32 { return &p.DecaySpeed }},
	"diffuse_strength": {0, 100, 20, func(p *SimulationParameters) *float32 { return &p.DiffuseStrength }},
	"sensor_distance":  {0, 0.2, 0.01, func(p *SimulationParameters) *float32 { return &p.SensorDistance }},
	"sensor_angle":     {0, 0.5, 0.2, func(p *SimulationParameters) *float32 { return &p.SensorAngle }},
	"rotation_speed":   {0, 10, 5, func(p *SimulationParameters) *float32 { return &p.RotationSpeed }},
}

const defaultFieldDimension = 2048

// DefaultParameters returns the parameters the simulation starts with.
//
// Returns:
//   - SimulationParameters: the defaults
func DefaultParameters() SimulationParameters {
	p := SimulationParameters{FieldWidth: defaultFieldDimension, FieldHeight: defaultFieldDimension}
	for _, r := range floatRanges {
		*r.field(&p) = r.def
	}
	return p
}

// ParameterNames lists every tunable accepted by Set, sorted.
func ParameterNames() []string {
	names := []string{"field_width", "field_height"}
	for name := range floatRanges {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FieldSize returns the field resolution.
func (p SimulationParameters) FieldSize() common.FieldSize {
	return common.FieldSize{Width: p.FieldWidth, Height: p.FieldHeight}
}

// Validate reports every value that is not finite or lies outside its range.
//
// Returns:
//   - error: nil if every value is valid, otherwise all violations joined, each matching ErrInvalidParameter
func (p SimulationParameters) Validate() error {
	var errs []error
	for _, name := range ParameterNames() {
		r, ok := floatRanges[name]
		if !ok {
			continue
		}
		v := *r.field(&p)
		if math32.IsNaN(v) || math32.IsInf(v, 0) || v < r.min || v > r.max {
			errs = append(errs, fmt.Errorf("%w: %s = %v, want [%v, %v]", ErrInvalidParameter, name, v, r.min, r.max))
		}
	}
	for name, v := range map[string]uint32{"field_width": p.FieldWidth, "field_height": p.FieldHeight} {
		if v < 1 || v > MaxFieldDimension {
			errs = append(errs, fmt.Errorf("%w: %s = %d, want [1, %d]", ErrInvalidParameter, name, v, MaxFieldDimension))
		}
	}
	return errors.Join(errs...)
}

// Clamp returns a copy with every value forced into its range. NaN becomes the default.
//
// Returns:
//   - SimulationParameters: the clamped parameters
func (p SimulationParameters) Clamp() SimulationParameters {
	for _, r := range floatRanges {
		v := r.field(&p)
		if math32.IsNaN(*v) {
			*v = r.def
			continue
		}
		*v = min(max(*v, r.min), r.max)
	}
	p.FieldWidth = min(max(p.FieldWidth, 1), MaxFieldDimension)
	p.FieldHeight = min(max(p.FieldHeight, 1), MaxFieldDimension)
	return p
}

// Set changes one tunable by name. Values are clamped into range.
//
// Parameters:
//   - name: the tunable, as listed by ParameterNames
//   - value: the new value
//
// Returns:
//   - error: ErrUnknownParameter for an unknown name
func (p *SimulationParameters) Set(name string, value float64) error {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "field_width":
		p.FieldWidth = clampDimension(value)
	case "field_height":
		p.FieldHeight = clampDimension(value)
	default:
		r, ok := floatRanges[name]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownParameter, name)
		}
		v := float32(value)
		if math32.IsNaN(v) {
			v = r.def
		}
		*r.field(p) = min(max(v, r.min), r.max)
	}
	return nil
}

func clampDimension(v float64) uint32 {
	if v != v || v < 1 {
		return 1
	}
	if v > MaxFieldDimension {
		return MaxFieldDimension
	}
	return uint32(v)
}

// LoadParameters reads parameters from a TOML file on top of the defaults. Unknown keys
// are rejected; the result must pass Validate.
//
// Parameters:
//   - path: the TOML file
//
// Returns:
//   - SimulationParameters: the loaded parameters
//   - error: an error if the file cannot be read, decoded or validated
func LoadParameters(path string) (SimulationParameters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SimulationParameters{}, fmt.Errorf("read parameters: %w", err)
	}
	return DecodeParameters(data)
}

// DecodeParameters decodes TOML parameters on top of the defaults.
//
// Parameters:
//   - data: the TOML document
//
// Returns:
//   - SimulationParameters: the decoded parameters
//   - error: an error if the document is malformed, has unknown keys or fails Validate
func DecodeParameters(data []byte) (SimulationParameters, error) {
	p := DefaultParameters()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return SimulationParameters{}, fmt.Errorf("decode parameters: %s", strict.String())
		}
		return SimulationParameters{}, fmt.Errorf("decode parameters: %w", err)
	}
	if err := p.Validate(); err != nil {
		return SimulationParameters{}, err
	}
	return p, nil
}

// EncodeParameters renders parameters as TOML, the format LoadParameters reads.
//
// Parameters:
//   - p: the parameters
//
// Returns:
//   - []byte: the TOML document
//   - error: an encoding error
func EncodeParameters(p SimulationParameters) ([]byte, error) {
	return toml.Marshal(p)
}

// ParameterSource provides the parameters for the next frame.
type ParameterSource interface {
	Parameters() SimulationParameters
}

// ParameterStore is a ParameterSource the operator and the hot reloader can change
// between frames.
type ParameterStore struct {
	mu     *sync.Mutex
	params SimulationParameters
}

var _ ParameterSource = &ParameterStore{}

// NewParameterStore creates a store holding p.
//
// Parameters:
//   - p: the initial parameters
//
// Returns:
//   - *ParameterStore: the store
func NewParameterStore(p SimulationParameters) *ParameterStore {
	return &ParameterStore{mu: &sync.Mutex{}, params: p}
}

func (s *ParameterStore) Parameters() SimulationParameters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

// Replace swaps in a complete set of parameters.
func (s *ParameterStore) Replace(p SimulationParameters) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params = p
}

// Set changes one tunable by name, see SimulationParameters.Set.
func (s *ParameterStore) Set(name string, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params.Set(name, value)
}
