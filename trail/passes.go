package trail

import (
	"github.com/go-gl/mathgl/mgl32"

	"trailfield/core"
)

// FeedbackPass evolves the trail field by one frame.
type FeedbackPass struct {
	dev      Device
	uniforms FeedbackUniforms
}

// NewFeedbackPass creates a pass dispatching to dev.
func NewFeedbackPass(dev Device) *FeedbackPass {
	return &FeedbackPass{
		dev:      dev,
		uniforms: FeedbackUniforms{Stamps: make([]Stamp, 0, MaxStamps)},
	}
}

// Time returns the turbulence clock.
func (f *FeedbackPass) Time() float32 { return f.uniforms.Time }

// Reset rewinds the turbulence clock.
func (f *FeedbackPass) Reset() { f.uniforms.Time = 0 }

// Run decays src, stamps the pointer (when valid) and every particle, and
// writes the result into dst.
func (f *FeedbackPass) Run(dst WriteTarget, src ReadTarget, params core.ShaderParameters, pointer *core.PointerState, deposits []core.Deposit) error {
	if dst.t == nil || src.t == nil {
		return core.ResourceErrorf("feedback pass without targets")
	}
	if dst.t == src.t || dst.t.ID() == src.t.ID() {
		return core.ResourceErrorf("feedback pass would read and write target %d", dst.t.ID())
	}

	u := &f.uniforms
	u.AccumulationStrength = float32(params.AccumulationStrength)
	u.TurbulenceScale = float32(params.TurbulenceScale)
	u.TurbulenceStrength = float32(params.TurbulenceStrength)
	u.EdgeSharpness = float32(params.EdgeSharpness)
	u.SwirlStrength = float32(params.SwirlStrength)
	u.EffectRadius = float32(params.EffectRadius)
	u.Time += FeedbackTimeStep

	u.Stamps = u.Stamps[:0]
	if pointer != nil && pointer.Valid {
		u.Stamps = append(u.Stamps, Stamp{
			X:         float32(pointer.X),
			Y:         float32(pointer.Y),
			Intensity: 1,
			Angle:     float32(pointer.Heading()),
		})
	}
	for _, d := range deposits {
		if len(u.Stamps) == MaxStamps {
			break
		}
		u.Stamps = append(u.Stamps, Stamp{
			X:         float32(d.X),
			Y:         float32(d.Y),
			Intensity: float32(d.Life),
			Angle:     float32(d.Angle),
		})
	}

	return f.dev.Feedback(dst.t, src.t, u)
}

// DefaultLightPosition is where the surface light sits, in world units.
var DefaultLightPosition = mgl32.Vec3{0, 0, 2}

// DefaultCameraPosition is the fixed viewpoint of the surface pass.
var DefaultCameraPosition = mgl32.Vec3{0, 0, 2}

// SurfacePass shades the visible surface from the most recent trail field.
type SurfacePass struct {
	dev      Device
	uniforms SurfaceUniforms
}

// NewSurfacePass creates a pass dispatching to dev.
func NewSurfacePass(dev Device) *SurfacePass {
	return &SurfacePass{
		dev: dev,
		uniforms: SurfaceUniforms{
			LightPosition:  DefaultLightPosition,
			CameraPosition: DefaultCameraPosition,
		},
	}
}

// Run draws the surface displaced and lit by the trail in src.
func (s *SurfacePass) Run(src ReadTarget, params core.ShaderParameters, time float32) error {
	if src.t == nil {
		return core.ResourceErrorf("surface pass without a trail target")
	}
	lp := params.Lighting
	u := &s.uniforms
	u.DisplacementStrength = float32(params.DisplacementStrength)
	u.Lighting = LightingUniforms{
		Ambient:          float32(lp.Ambient),
		DiffuseStrength:  float32(lp.DiffuseStrength),
		SpecularStrength: float32(lp.SpecularStrength),
		SpecularPower:    float32(lp.SpecularPower),
		Wrap:             float32(lp.Wrap),
		Tint:             mgl32.Vec3{float32(lp.Tint[0]), float32(lp.Tint[1]), float32(lp.Tint[2])},
	}
	u.Time = time
	return s.dev.Surface(src.t, u)
}
