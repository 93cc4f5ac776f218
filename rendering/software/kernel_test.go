package software

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trailfield/core"
	"trailfield/rendering/normalmap"
	"trailfield/trail"
)

func calmUniforms() *trail.FeedbackUniforms {
	return &trail.FeedbackUniforms{
		AccumulationStrength: 0.98,
		TurbulenceScale:      8,
		TurbulenceStrength:   0,
		EdgeSharpness:        0.15,
		SwirlStrength:        0,
		EffectRadius:         0.15,
		Time:                 0.01,
	}
}

func TestValueNoiseRange(t *testing.T) {
	for i := 0; i < 200; i++ {
		x := float32(i) * 0.37
		n := valueNoise(x, x*1.3+5)
		assert.GreaterOrEqual(t, n, float32(-1))
		assert.LessOrEqual(t, n, float32(1))
	}
}

func TestStampFalloff(t *testing.T) {
	u := calmUniforms()
	s := trail.Stamp{X: 0.5, Y: 0.5, Intensity: 1}

	inner := edgeInner(u.EffectRadius, u.EdgeSharpness)
	tests := []struct {
		name string
		u, v float32
		want float32
	}{
		{"center", 0.5, 0.5, 1},
		{"inside hard core", 0.5 + inner*0.9, 0.5, 1},
		{"at radius", 0.65, 0.5, 0},
		{"outside", 0.9, 0.9, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, stampFalloff(tt.u, tt.v, s, u), 1e-5)
		})
	}

	mid := stampFalloff(0.5+(inner+u.EffectRadius)/2, 0.5, s, u)
	assert.Greater(t, mid, float32(0))
	assert.Less(t, mid, float32(1))
}

func TestEdgeSharpnessNarrowsBand(t *testing.T) {
	soft := edgeInner(0.15, 0.01)
	hard := edgeInner(0.15, 0.3)
	assert.Less(t, soft, hard)
	assert.InDelta(t, 0.0045, soft, 1e-6)
	assert.InDelta(t, 0.135, hard, 1e-6)
}

func TestFeedbackTexelDecaysAndClamps(t *testing.T) {
	u := calmUniforms()

	out := feedbackTexel([4]float32{0.5, 0.5, 0.5, 0.5}, 0.1, 0.1, u)
	for _, c := range out {
		assert.InDelta(t, 0.49, c, 1e-6)
	}

	u.Stamps = []trail.Stamp{
		{X: 0.5, Y: 0.5, Intensity: 1},
		{X: 0.5, Y: 0.5, Intensity: 1},
	}
	out = feedbackTexel([4]float32{0.9, 0.9, 0.9, 0.9}, 0.5, 0.5, u)
	assert.Equal(t, [4]float32{1, 1, 1, 1}, out)
}

func TestFeedbackTexelEncodesHeading(t *testing.T) {
	u := calmUniforms()
	u.Stamps = []trail.Stamp{{X: 0.5, Y: 0.5, Intensity: 0.4, Angle: 0}}
	out := feedbackTexel([4]float32{}, 0.5, 0.5, u)
	assert.InDelta(t, 0.4, out[0], 1e-6)
	assert.InDelta(t, 0.4, out[1], 1e-6, "cos 0 = 1")
	assert.InDelta(t, 0.2, out[2], 1e-6, "sin 0 = 0")
	assert.InDelta(t, 0.4, out[3], 1e-6)
}

func TestShadeTexelRange(t *testing.T) {
	su := &trail.SurfaceUniforms{
		DisplacementStrength: 0.2,
		LightPosition:        trail.DefaultLightPosition,
		CameraPosition:       trail.DefaultCameraPosition,
	}
	nm := normalmap.Flat(2, 2)
	for _, name := range core.Profiles() {
		lp, ok := core.LookupProfile(name)
		require.True(t, ok)
		su.Lighting = trail.LightingUniforms{
			Ambient:          float32(lp.Ambient),
			DiffuseStrength:  float32(lp.DiffuseStrength),
			SpecularStrength: float32(lp.SpecularStrength),
			SpecularPower:    float32(lp.SpecularPower),
			Wrap:             float32(lp.Wrap),
			Tint:             mgl32.Vec3{float32(lp.Tint[0]), float32(lp.Tint[1]), float32(lp.Tint[2])},
		}
		for _, tv := range []float32{0, 0.5, 1} {
			c := shadeTexel(0.3, 0.7, [4]float32{tv, tv, tv, tv}, nm, su)
			for i := 0; i < 3; i++ {
				assert.GreaterOrEqual(t, c[i], float32(0), "%s", name)
				assert.LessOrEqual(t, c[i], float32(1), "%s", name)
			}
		}
	}
}

func TestSurfaceDisplacement(t *testing.T) {
	su := &trail.SurfaceUniforms{DisplacementStrength: 0.1}
	assert.InDelta(t, 0, surfaceDisplacement(0, 1, su), 1e-7)
	assert.InDelta(t, 0.1, surfaceDisplacement(1, 1, su), 1e-7)
	assert.InDelta(t, 0.05, surfaceDisplacement(1, 0, su), 1e-7)
}
