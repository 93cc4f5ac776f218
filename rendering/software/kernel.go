package software

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"trailfield/rendering/normalmap"
	"trailfield/trail"
)

// These functions are the reference for the GLSL programs in
// rendering/opengl/shaders; keep the two in step.

func fract(x float32) float32 {
	return x - float32(math.Floor(float64(x)))
}

func hash2(x, y float32) float32 {
	return fract(float32(math.Sin(float64(x*127.1+y*311.7))) * 43758.5453)
}

func smoothstep(e0, e1, x float32) float32 {
	if e1 <= e0 {
		if x < e0 {
			return 0
		}
		return 1
	}
	t := mgl32.Clamp((x-e0)/(e1-e0), 0, 1)
	return t * t * (3 - 2*t)
}

// valueNoise is smooth lattice noise in [-1,1].
func valueNoise(x, y float32) float32 {
	ix, iy := float32(math.Floor(float64(x))), float32(math.Floor(float64(y)))
	fx, fy := x-ix, y-iy

	a := hash2(ix, iy)
	b := hash2(ix+1, iy)
	c := hash2(ix, iy+1)
	d := hash2(ix+1, iy+1)

	ux := fx * fx * (3 - 2*fx)
	uy := fy * fy * (3 - 2*fy)
	n := a + (b-a)*ux + (c-a)*uy + (a-b-c+d)*ux*uy
	return n*2 - 1
}

// edgeInner is where the falloff band starts for a given radius. The
// sharper the edge, the narrower the band.
func edgeInner(radius, sharpness float32) float32 {
	hard := mgl32.Clamp(sharpness/0.3, 0, 1) * 0.9
	return radius * hard
}

// stampFalloff returns the contribution of s at uv before intensity.
func stampFalloff(u, v float32, s trail.Stamp, fu *trail.FeedbackUniforms) float32 {
	r := fu.EffectRadius
	dx, dy := u-s.X, v-s.Y
	d := float32(math.Sqrt(float64(dx*dx + dy*dy)))

	// Turbulence can shrink distances by at most this factor.
	if shrink := 1 - fu.TurbulenceStrength; shrink > 0 && d*shrink >= r {
		return 0
	}

	theta := fu.SwirlStrength * 20 * (1 - mgl32.Clamp(d/r, 0, 1))
	sin, cos := math.Sincos(float64(theta))
	rx := dx*float32(cos) - dy*float32(sin)
	ry := dx*float32(sin) + dy*float32(cos)

	n := valueNoise((s.X+rx)*fu.TurbulenceScale+fu.Time, (s.Y+ry)*fu.TurbulenceScale+fu.Time)
	dist := d * (1 + fu.TurbulenceStrength*n)

	return 1 - smoothstep(edgeInner(r, fu.EdgeSharpness), r, dist)
}

// feedbackTexel evolves one texel from its previous value.
func feedbackTexel(prev [4]float32, u, v float32, fu *trail.FeedbackUniforms) [4]float32 {
	var out [4]float32
	for c := range out {
		out[c] = prev[c] * fu.AccumulationStrength
	}

	for _, s := range fu.Stamps {
		f := stampFalloff(u, v, s, fu) * s.Intensity
		if f <= 0 {
			continue
		}
		sin, cos := math.Sincos(float64(s.Angle))
		out[0] += f
		out[1] += f * (0.5 + 0.5*float32(cos))
		out[2] += f * (0.5 + 0.5*float32(sin))
		out[3] += f
	}

	for c := range out {
		out[c] = mgl32.Clamp(out[c], 0, 1)
	}
	return out
}

// surfaceDisplacement is the offset of a surface point along its normal.
func surfaceDisplacement(trailValue, height float32, su *trail.SurfaceUniforms) float32 {
	return su.DisplacementStrength * trailValue * (0.5 + 0.5*height)
}

// shadeTexel lights one surface point and returns linear RGB in [0,1].
func shadeTexel(u, v float32, trailTexel [4]float32, nm *normalmap.Map, su *trail.SurfaceUniforms) mgl32.Vec3 {
	mapNormal, height := nm.At(u, v)
	t := trailTexel[0]

	pos := mgl32.Vec3{u*2 - 1, v*2 - 1, surfaceDisplacement(t, height, su)}

	bump := 0.35 + t
	n := mgl32.Vec3{mapNormal.X() * bump, mapNormal.Y() * bump, mapNormal.Z()}
	if n.Len() == 0 {
		n = mgl32.Vec3{0, 0, 1}
	}
	n = n.Normalize()

	l := su.LightPosition.Sub(pos).Normalize()
	view := su.CameraPosition.Sub(pos).Normalize()
	half := l.Add(view).Normalize()

	lp := su.Lighting
	wrapDiffuse := (n.Dot(l) + lp.Wrap) / (1 + lp.Wrap)
	if wrapDiffuse < 0 {
		wrapDiffuse = 0
	}
	spec := lp.SpecularStrength * float32(math.Pow(math.Max(float64(n.Dot(half)), 0), float64(lp.SpecularPower)))

	base := lp.Ambient + lp.DiffuseStrength*wrapDiffuse
	col := lp.Tint.Mul(base).Add(mgl32.Vec3{spec, spec, spec})
	return mgl32.Vec3{
		mgl32.Clamp(col[0], 0, 1),
		mgl32.Clamp(col[1], 0, 1),
		mgl32.Clamp(col[2], 0, 1),
	}
}
