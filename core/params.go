package core

import (
	"fmt"
	"math"
	"sort"
)

// Parameter names accepted by the configuration surface.
const (
	ParamAccumulationStrength = "accumulationStrength"
	ParamTurbulenceScale      = "turbulenceScale"
	ParamTurbulenceStrength   = "turbulenceStrength"
	ParamEdgeSharpness        = "edgeSharpness"
	ParamSwirlStrength        = "swirlStrength"
	ParamDisplacementStrength = "displacementStrength"
	ParamEffectRadius         = "effectRadius"
	ParamAmbient              = "ambient"
	ParamDiffuseStrength      = "diffuseStrength"
	ParamSpecularStrength     = "specularStrength"
	ParamSpecularPower        = "specularPower"
	ParamWrap                 = "wrap"
)

// LightingProfile is the lighting subset of the shader parameters. It is
// always replaced as a whole.
type LightingProfile struct {
	Ambient          float64
	DiffuseStrength  float64
	SpecularStrength float64
	SpecularPower    float64
	Wrap             float64
	Tint             [3]float64
}

// ShaderParameters holds every knob read by the two passes.
type ShaderParameters struct {
	AccumulationStrength float64
	TurbulenceScale      float64
	TurbulenceStrength   float64
	EdgeSharpness        float64
	SwirlStrength        float64
	DisplacementStrength float64
	EffectRadius         float64
	Lighting             LightingProfile
}

// Profile names a lighting preset.
type Profile string

const (
	ProfileStudio   Profile = "studio"
	ProfileSoft     Profile = "soft"
	ProfileDramatic Profile = "dramatic"
	ProfileMetallic Profile = "metallic"
	ProfileEmber    Profile = "ember"

	// ProfileCustom is reported once a lighting field has been set on its
	// own. It is not a preset and cannot be selected.
	ProfileCustom Profile = "custom"
)

var profiles = map[Profile]LightingProfile{
	ProfileStudio:   {Ambient: 0.5, DiffuseStrength: 0.7, SpecularStrength: 0.3, SpecularPower: 16, Wrap: 0.5, Tint: [3]float64{1, 1, 1}},
	ProfileSoft:     {Ambient: 0.7, DiffuseStrength: 0.5, SpecularStrength: 0.1, SpecularPower: 8, Wrap: 0.9, Tint: [3]float64{0.95, 0.97, 1}},
	ProfileDramatic: {Ambient: 0.1, DiffuseStrength: 1.4, SpecularStrength: 0.8, SpecularPower: 32, Wrap: 0.1, Tint: [3]float64{0.85, 0.9, 1}},
	ProfileMetallic: {Ambient: 0.25, DiffuseStrength: 0.6, SpecularStrength: 1.6, SpecularPower: 64, Wrap: 0.2, Tint: [3]float64{0.8, 0.82, 0.86}},
	ProfileEmber:    {Ambient: 0.3, DiffuseStrength: 1.1, SpecularStrength: 0.4, SpecularPower: 12, Wrap: 0.6, Tint: [3]float64{1, 0.55, 0.3}},
}

// Profiles lists the preset names in a stable order.
func Profiles() []Profile {
	return []Profile{ProfileStudio, ProfileSoft, ProfileDramatic, ProfileMetallic, ProfileEmber}
}

// LookupProfile returns the preset for name.
func LookupProfile(name Profile) (LightingProfile, bool) {
	p, ok := profiles[name]
	return p, ok
}

type bound struct {
	min, max         float64
	minOpen, maxOpen bool
}

func (b bound) check(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("must be finite")
	}
	low := v < b.min || (b.minOpen && v == b.min)
	high := v > b.max || (b.maxOpen && v == b.max)
	if low || high {
		lo, hi := "[", "]"
		if b.minOpen {
			lo = "("
		}
		if b.maxOpen {
			hi = ")"
		}
		return fmt.Errorf("must be in %s%g, %g%s", lo, b.min, b.max, hi)
	}
	return nil
}

// lightingParams are the fields a preset replaces.
var lightingParams = map[string]bool{
	ParamAmbient:          true,
	ParamDiffuseStrength:  true,
	ParamSpecularStrength: true,
	ParamSpecularPower:    true,
	ParamWrap:             true,
}

type paramSpec struct {
	bound
	field func(*ShaderParameters) *float64
}

var paramSpecs = map[string]paramSpec{
	// A strength of 1 or more never decays and grows without bound.
	ParamAccumulationStrength: {bound{0, 1, true, true}, func(p *ShaderParameters) *float64 { return &p.AccumulationStrength }},
	ParamTurbulenceScale:      {bound{min: 1, max: 20}, func(p *ShaderParameters) *float64 { return &p.TurbulenceScale }},
	ParamTurbulenceStrength:   {bound{min: 0, max: 0.5}, func(p *ShaderParameters) *float64 { return &p.TurbulenceStrength }},
	ParamEdgeSharpness:        {bound{min: 0.01, max: 0.3}, func(p *ShaderParameters) *float64 { return &p.EdgeSharpness }},
	ParamSwirlStrength:        {bound{min: 0, max: 0.1}, func(p *ShaderParameters) *float64 { return &p.SwirlStrength }},
	ParamDisplacementStrength: {bound{min: 0, max: 0.2}, func(p *ShaderParameters) *float64 { return &p.DisplacementStrength }},
	ParamEffectRadius:         {bound{min: 0.05, max: 0.5}, func(p *ShaderParameters) *float64 { return &p.EffectRadius }},
	ParamAmbient:              {bound{min: 0, max: 1}, func(p *ShaderParameters) *float64 { return &p.Lighting.Ambient }},
	ParamDiffuseStrength:      {bound{min: 0, max: 2}, func(p *ShaderParameters) *float64 { return &p.Lighting.DiffuseStrength }},
	ParamSpecularStrength:     {bound{min: 0, max: 2}, func(p *ShaderParameters) *float64 { return &p.Lighting.SpecularStrength }},
	ParamSpecularPower:        {bound{min: 1, max: 64}, func(p *ShaderParameters) *float64 { return &p.Lighting.SpecularPower }},
	ParamWrap:                 {bound{min: 0, max: 1}, func(p *ShaderParameters) *float64 { return &p.Lighting.Wrap }},
}

// ParamNames lists every settable parameter name, sorted.
func ParamNames() []string {
	names := make([]string, 0, len(paramSpecs))
	for name := range paramSpecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultParameters returns the tuning the surface starts with.
func DefaultParameters() ShaderParameters {
	return ShaderParameters{
		AccumulationStrength: 0.98,
		TurbulenceScale:      8,
		TurbulenceStrength:   0.15,
		EdgeSharpness:        0.15,
		SwirlStrength:        0.02,
		DisplacementStrength: 0.05,
		EffectRadius:         0.15,
		Lighting:             profiles[ProfileStudio],
	}
}

// Validate checks every field against its bounds.
func (p ShaderParameters) Validate() error {
	for _, name := range ParamNames() {
		spec := paramSpecs[name]
		v := *spec.field(&p)
		if err := spec.check(v); err != nil {
			return &ConfigurationError{Name: name, Value: v, Reason: err.Error()}
		}
	}
	return nil
}

// ParameterStore is the configuration surface over the live parameters.
// It is owned by the frame loop; other goroutines reach it through a
// ConfigQueue.
type ParameterStore struct {
	params  ShaderParameters
	profile Profile
}

// NewParameterStore starts from p, which must pass Validate.
func NewParameterStore(p ShaderParameters) (*ParameterStore, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &ParameterStore{params: p, profile: ProfileStudio}, nil
}

// Snapshot returns a copy of the current parameters.
func (s *ParameterStore) Snapshot() ShaderParameters {
	return s.params
}

// Get returns the value of a named parameter.
func (s *ParameterStore) Get(name string) (float64, error) {
	spec, ok := paramSpecs[name]
	if !ok {
		return 0, &ConfigurationError{Name: name, Value: math.NaN(), Reason: "unknown parameter"}
	}
	return *spec.field(&s.params), nil
}

// Set assigns a named parameter. An out-of-range value is rejected with a
// ConfigurationError and the previous value is kept.
func (s *ParameterStore) Set(name string, v float64) error {
	spec, ok := paramSpecs[name]
	if !ok {
		return &ConfigurationError{Name: name, Value: v, Reason: "unknown parameter"}
	}
	if err := spec.check(v); err != nil {
		return &ConfigurationError{Name: name, Value: v, Reason: err.Error()}
	}
	*spec.field(&s.params) = v
	if lightingParams[name] {
		s.profile = ProfileCustom
	}
	return nil
}

// Profile returns the name of the last preset applied, or ProfileCustom
// if a lighting field was set after it.
func (s *ParameterStore) Profile() Profile {
	return s.profile
}

// SetProfile replaces the whole lighting record with a preset.
func (s *ParameterStore) SetProfile(name Profile) error {
	lp, ok := profiles[name]
	if !ok {
		return &ConfigurationError{Name: "profile:" + string(name), Value: math.NaN(), Reason: "unknown lighting profile"}
	}
	s.params.Lighting = lp
	s.profile = name
	return nil
}

// Values returns every parameter keyed by name.
func (s *ParameterStore) Values() map[string]float64 {
	out := make(map[string]float64, len(paramSpecs))
	for name, spec := range paramSpecs {
		out[name] = *spec.field(&s.params)
	}
	return out
}
