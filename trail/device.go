// Package trail runs the ping-pong feedback simulation of the pointer trail
// field and sequences it with the surface pass that consumes it.
package trail

import "github.com/go-gl/mathgl/mgl32"

// MaxStamps is the largest number of stamps a single feedback dispatch
// accepts: every particle plus the pointer.
const MaxStamps = 32

// FeedbackTimeStep is how far the turbulence clock moves per frame.
const FeedbackTimeStep = 0.01

// Target is an offscreen 4-channel float buffer with linear filtering.
type Target interface {
	ID() uint32
	Size() (width, height int)
	Release()
}

// Stamp is one deposit injected by a feedback dispatch, in uv space.
type Stamp struct {
	X, Y      float32
	Intensity float32
	Angle     float32
}

// FeedbackUniforms is everything the feedback program reads besides the
// previous buffer.
type FeedbackUniforms struct {
	AccumulationStrength float32
	TurbulenceScale      float32
	TurbulenceStrength   float32
	EdgeSharpness        float32
	SwirlStrength        float32
	EffectRadius         float32
	Time                 float32
	Stamps               []Stamp
}

// LightingUniforms mirrors core.LightingProfile in shader precision.
type LightingUniforms struct {
	Ambient          float32
	DiffuseStrength  float32
	SpecularStrength float32
	SpecularPower    float32
	Wrap             float32
	Tint             mgl32.Vec3
}

// SurfaceUniforms is everything the surface program reads besides the
// trail buffer and the normal map.
type SurfaceUniforms struct {
	DisplacementStrength float32
	Lighting             LightingUniforms
	LightPosition        mgl32.Vec3
	CameraPosition       mgl32.Vec3
	Time                 float32
}

// Device is the graphics backend the passes dispatch to. Dispatches are
// ordered: a Surface call observes every Feedback call issued before it.
type Device interface {
	// NewTarget allocates an uncleared target.
	NewTarget(width, height int) (Target, error)
	// Clear sets every texel of t to zero.
	Clear(t Target) error
	// Feedback evaluates the feedback program over dst, sampling src.
	// dst and src must differ.
	Feedback(dst, src Target, u *FeedbackUniforms) error
	// Surface shades the visible surface, sampling the trail target.
	Surface(trail Target, u *SurfaceUniforms) error
	// Present hands the finished frame to the presentation surface.
	Present() error
	// Release frees programs and other device-wide resources. Targets are
	// released by their owners.
	Release()
}
