// Package opengl is the GPU implementation of the trail device. It keeps
// both accumulation buffers as RGBA32F textures behind framebuffer objects
// and draws into a GLFW window.
package opengl

import (
	"fmt"

	"github.com/go-gl/gl/v4.3-core/gl"
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"trailfield/core"
	"trailfield/rendering/normalmap"
	"trailfield/rendering/opengl/overlay"
	"trailfield/rendering/opengl/shaders"
	"trailfield/trail"
)

// PlaneSegments is the subdivision of the displaced surface mesh per axis.
const PlaneSegments = 256

// Target is a float texture with its framebuffer.
type Target struct {
	texture uint32
	fbo     uint32
	width   int
	height  int
}

func (t *Target) ID() uint32 { return t.texture }

func (t *Target) Size() (int, int) { return t.width, t.height }

// Release deletes the framebuffer and texture.
func (t *Target) Release() {
	if t.fbo != 0 {
		gl.DeleteFramebuffers(1, &t.fbo)
		t.fbo = 0
	}
	if t.texture != 0 {
		gl.DeleteTextures(1, &t.texture)
		t.texture = 0
	}
}

// Device draws both passes with OpenGL 4.3. All calls must come from the
// thread that owns the window's context.
type Device struct {
	window *Window
	log    *zap.Logger

	feedbackProgram uint32
	feedbackLocs    map[string]int32
	surfaceProgram  uint32
	surfaceLocs     map[string]int32

	emptyVAO   uint32
	planeVAO   uint32
	planeVBO   uint32
	planeEBO   uint32
	indexCount int32

	normalTexture uint32
	stamps        []float32

	stats     *overlay.StatsOverlay
	showStats bool
	released  bool
}

// NewDevice compiles the programs and uploads the plane mesh and normal
// map. The window's context must be current.
func NewDevice(window *Window, normals *normalmap.Map, log *zap.Logger) (*Device, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if normals == nil {
		normals = normalmap.Flat(1, 1)
	}
	d := &Device{
		window: window,
		log:    log.Named("opengl"),
		stamps: make([]float32, 0, shaders.MaxStamps*4),
	}

	var err error
	d.feedbackProgram, err = shaders.Build(shaders.FullscreenVertex, shaders.FeedbackFragment)
	if err != nil {
		return nil, core.ResourceErrorf("feedback program: %v", err)
	}
	d.feedbackLocs = shaders.Uniforms(d.feedbackProgram,
		"uPrevious", "uAccumulation", "uTurbulenceScale", "uTurbulenceStrength",
		"uEdgeSharpness", "uSwirlStrength", "uRadius", "uTime", "uStampCount", "uStamps")

	d.surfaceProgram, err = shaders.Build(shaders.SurfaceVertex, shaders.SurfaceFragment)
	if err != nil {
		d.Release()
		return nil, core.ResourceErrorf("surface program: %v", err)
	}
	d.surfaceLocs = shaders.Uniforms(d.surfaceProgram,
		"uModel", "uViewProjection", "uTrail", "uNormalMap", "uDisplacement",
		"uLightPosition", "uCameraPosition", "uAmbient", "uDiffuse", "uSpecular",
		"uSpecularPower", "uWrap", "uTint")

	// No VBO needed for the fullscreen triangle
	gl.GenVertexArrays(1, &d.emptyVAO)
	d.createPlane(PlaneSegments)
	d.uploadNormalMap(normals)

	w, h := window.FramebufferSize()
	d.stats, err = overlay.NewStatsOverlay(w, h)
	if err != nil {
		d.log.Warn("stats overlay unavailable", zap.Error(err))
	}

	if err := glError("device setup"); err != nil {
		d.Release()
		return nil, err
	}
	d.log.Info("device ready", zap.String("renderer", gl.GoStr(gl.GetString(gl.RENDERER))))
	return d, nil
}

// createPlane builds a (segments+1)^2 grid over [-1,1]^2 with uvs.
func (d *Device) createPlane(segments int) {
	n := segments + 1
	vertices := make([]float32, 0, n*n*4)
	for y := 0; y < n; y++ {
		v := float32(y) / float32(segments)
		for x := 0; x < n; x++ {
			u := float32(x) / float32(segments)
			vertices = append(vertices, u*2-1, v*2-1, u, v)
		}
	}
	indices := make([]uint32, 0, segments*segments*6)
	for y := 0; y < segments; y++ {
		for x := 0; x < segments; x++ {
			i := uint32(y*n + x)
			indices = append(indices, i, i+1, i+uint32(n), i+1, i+uint32(n)+1, i+uint32(n))
		}
	}
	d.indexCount = int32(len(indices))

	gl.GenVertexArrays(1, &d.planeVAO)
	gl.GenBuffers(1, &d.planeVBO)
	gl.GenBuffers(1, &d.planeEBO)

	gl.BindVertexArray(d.planeVAO)
	gl.BindBuffer(gl.ARRAY_BUFFER, d.planeVBO)
	gl.BufferData(gl.ARRAY_BUFFER, len(vertices)*4, gl.Ptr(vertices), gl.STATIC_DRAW)
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, d.planeEBO)
	gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, len(indices)*4, gl.Ptr(indices), gl.STATIC_DRAW)

	stride := int32(4 * 4)
	gl.VertexAttribPointer(0, 2, gl.FLOAT, false, stride, gl.PtrOffset(0))
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointer(1, 2, gl.FLOAT, false, stride, gl.PtrOffset(2*4))
	gl.EnableVertexAttribArray(1)
	gl.BindVertexArray(0)
}

func (d *Device) uploadNormalMap(m *normalmap.Map) {
	gl.GenTextures(1, &d.normalTexture)
	gl.BindTexture(gl.TEXTURE_2D, d.normalTexture)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA32F, int32(m.Width), int32(m.Height), 0, gl.RGBA, gl.FLOAT, gl.Ptr(m.Texels))
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.REPEAT)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.REPEAT)
	gl.BindTexture(gl.TEXTURE_2D, 0)
}

func (d *Device) target(t trail.Target) (*Target, error) {
	gt, ok := t.(*Target)
	if !ok {
		return nil, core.ResourceErrorf("target %T does not belong to the OpenGL device", t)
	}
	if gt.texture == 0 {
		return nil, core.ResourceErrorf("target used after release")
	}
	return gt, nil
}

// NewTarget allocates an RGBA32F texture with linear filtering and clamped
// edges, attached to its own framebuffer.
func (d *Device) NewTarget(width, height int) (trail.Target, error) {
	if d.released {
		return nil, core.ResourceErrorf("device released")
	}
	t := &Target{width: width, height: height}

	gl.GenTextures(1, &t.texture)
	gl.BindTexture(gl.TEXTURE_2D, t.texture)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA32F, int32(width), int32(height), 0, gl.RGBA, gl.FLOAT, nil)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.BindTexture(gl.TEXTURE_2D, 0)

	gl.GenFramebuffers(1, &t.fbo)
	gl.BindFramebuffer(gl.FRAMEBUFFER, t.fbo)
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, t.texture, 0)
	status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)

	if status != gl.FRAMEBUFFER_COMPLETE {
		t.Release()
		return nil, core.ResourceErrorf("float framebuffer %dx%d incomplete: 0x%x", width, height, status)
	}
	if err := glError("allocate target"); err != nil {
		t.Release()
		return nil, err
	}
	return t, nil
}

// Clear zeroes every texel of t.
func (d *Device) Clear(t trail.Target) error {
	gt, err := d.target(t)
	if err != nil {
		return err
	}
	gl.BindFramebuffer(gl.FRAMEBUFFER, gt.fbo)
	gl.Viewport(0, 0, int32(gt.width), int32(gt.height))
	gl.ClearColor(0, 0, 0, 0)
	gl.Clear(gl.COLOR_BUFFER_BIT)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	return glError("clear target")
}

// Feedback draws the feedback program into dst sampling src.
func (d *Device) Feedback(dst, src trail.Target, u *trail.FeedbackUniforms) error {
	out, err := d.target(dst)
	if err != nil {
		return err
	}
	in, err := d.target(src)
	if err != nil {
		return err
	}
	if out.texture == in.texture {
		return core.ResourceErrorf("feedback would read and write texture %d", out.texture)
	}
	if len(u.Stamps) > shaders.MaxStamps {
		return fmt.Errorf("feedback: %d stamps exceeds %d", len(u.Stamps), shaders.MaxStamps)
	}

	gl.BindFramebuffer(gl.FRAMEBUFFER, out.fbo)
	gl.Viewport(0, 0, int32(out.width), int32(out.height))
	gl.Disable(gl.DEPTH_TEST)
	gl.Disable(gl.BLEND)

	gl.UseProgram(d.feedbackProgram)
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, in.texture)

	l := d.feedbackLocs
	gl.Uniform1i(l["uPrevious"], 0)
	gl.Uniform1f(l["uAccumulation"], u.AccumulationStrength)
	gl.Uniform1f(l["uTurbulenceScale"], u.TurbulenceScale)
	gl.Uniform1f(l["uTurbulenceStrength"], u.TurbulenceStrength)
	gl.Uniform1f(l["uEdgeSharpness"], u.EdgeSharpness)
	gl.Uniform1f(l["uSwirlStrength"], u.SwirlStrength)
	gl.Uniform1f(l["uRadius"], u.EffectRadius)
	gl.Uniform1f(l["uTime"], u.Time)

	d.stamps = d.stamps[:0]
	for _, s := range u.Stamps {
		d.stamps = append(d.stamps, s.X, s.Y, s.Intensity, s.Angle)
	}
	gl.Uniform1i(l["uStampCount"], int32(len(u.Stamps)))
	if len(d.stamps) > 0 {
		gl.Uniform4fv(l["uStamps"], int32(len(u.Stamps)), &d.stamps[0])
	}

	gl.BindVertexArray(d.emptyVAO)
	gl.DrawArrays(gl.TRIANGLES, 0, 3)
	gl.BindVertexArray(0)
	gl.BindTexture(gl.TEXTURE_2D, 0)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)

	return glError("feedback pass")
}

// Surface draws the displaced plane into the window's framebuffer.
func (d *Device) Surface(trailTarget trail.Target, u *trail.SurfaceUniforms) error {
	tt, err := d.target(trailTarget)
	if err != nil {
		return err
	}

	w, h := d.window.FramebufferSize()
	if w <= 0 || h <= 0 {
		// Minimised; nothing to draw.
		return nil
	}
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	gl.Viewport(0, 0, int32(w), int32(h))
	gl.Enable(gl.DEPTH_TEST)
	gl.ClearColor(0, 0, 0, 1)
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)

	aspect := float32(w) / float32(h)
	projection := mgl32.Perspective(mgl32.DegToRad(45.0), aspect, 0.1, 100)
	view := mgl32.LookAtV(u.CameraPosition, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{0, 1, 0})
	viewProjection := projection.Mul4(view)
	// Stretch the plane to the viewport aspect so it always fills the view.
	model := mgl32.Scale3D(aspect, 1, 1)

	gl.UseProgram(d.surfaceProgram)
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, tt.texture)
	gl.ActiveTexture(gl.TEXTURE1)
	gl.BindTexture(gl.TEXTURE_2D, d.normalTexture)

	l := d.surfaceLocs
	lp := u.Lighting
	gl.UniformMatrix4fv(l["uModel"], 1, false, &model[0])
	gl.UniformMatrix4fv(l["uViewProjection"], 1, false, &viewProjection[0])
	gl.Uniform1i(l["uTrail"], 0)
	gl.Uniform1i(l["uNormalMap"], 1)
	gl.Uniform1f(l["uDisplacement"], u.DisplacementStrength)
	gl.Uniform3fv(l["uLightPosition"], 1, &u.LightPosition[0])
	gl.Uniform3fv(l["uCameraPosition"], 1, &u.CameraPosition[0])
	gl.Uniform1f(l["uAmbient"], lp.Ambient)
	gl.Uniform1f(l["uDiffuse"], lp.DiffuseStrength)
	gl.Uniform1f(l["uSpecular"], lp.SpecularStrength)
	gl.Uniform1f(l["uSpecularPower"], lp.SpecularPower)
	gl.Uniform1f(l["uWrap"], lp.Wrap)
	gl.Uniform3fv(l["uTint"], 1, &lp.Tint[0])

	gl.BindVertexArray(d.planeVAO)
	gl.DrawElements(gl.TRIANGLES, d.indexCount, gl.UNSIGNED_INT, gl.PtrOffset(0))
	gl.BindVertexArray(0)

	gl.ActiveTexture(gl.TEXTURE1)
	gl.BindTexture(gl.TEXTURE_2D, 0)
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, 0)

	if d.showStats && d.stats != nil {
		d.stats.UpdateSize(w, h)
		d.stats.Render()
	}
	return glError("surface pass")
}

// Present swaps the window's buffers.
func (d *Device) Present() error {
	d.window.SwapBuffers()
	return nil
}

// ToggleStats shows or hides the statistics overlay.
func (d *Device) ToggleStats() bool {
	d.showStats = !d.showStats
	return d.showStats
}

// UpdateStats feeds the overlay.
func (d *Device) UpdateStats(s overlay.Stats) {
	if d.stats != nil {
		d.stats.UpdateStats(s)
	}
}

// Release deletes every program and buffer the device created. Targets are
// released by their owner.
func (d *Device) Release() {
	if d.released {
		return
	}
	d.released = true
	if d.stats != nil {
		d.stats.Release()
	}
	if d.feedbackProgram != 0 {
		gl.DeleteProgram(d.feedbackProgram)
	}
	if d.surfaceProgram != 0 {
		gl.DeleteProgram(d.surfaceProgram)
	}
	gl.DeleteVertexArrays(1, &d.emptyVAO)
	gl.DeleteVertexArrays(1, &d.planeVAO)
	gl.DeleteBuffers(1, &d.planeVBO)
	gl.DeleteBuffers(1, &d.planeEBO)
	gl.DeleteTextures(1, &d.normalTexture)
}

// glError drains the GL error queue and reports the first error as a
// resource failure.
func glError(stage string) error {
	first := uint32(gl.NO_ERROR)
	// A lost context can report errors forever.
	for i := 0; i < 16; i++ {
		e := gl.GetError()
		if e == gl.NO_ERROR {
			break
		}
		if first == gl.NO_ERROR {
			first = e
		}
	}
	if first != gl.NO_ERROR {
		return core.ResourceErrorf("%s: GL error 0x%x", stage, first)
	}
	return nil
}
