// Package overlay draws the frame statistics HUD on top of the surface.
package overlay

import (
	"fmt"

	"github.com/go-gl/gl/v4.3-core/gl"
	"github.com/go-gl/mathgl/mgl32"

	"trailfield/rendering/opengl/shaders"
)

// Stats is what the HUD shows.
type Stats struct {
	FPS         float64
	FrameMillis float64
	Deposits    int
	MaxDeposits int
}

// StatsOverlay renders Stats as coloured bars in the top-left corner.
type StatsOverlay struct {
	program    uint32
	projection int32
	vao        uint32
	vbo        uint32

	width  float32
	height float32

	stats    Stats
	vertices []float32
}

// NewStatsOverlay creates a stats overlay renderer
func NewStatsOverlay(width, height int) (*StatsOverlay, error) {
	so := &StatsOverlay{
		width:  float32(width),
		height: float32(height),
	}

	program, err := shaders.Build(shaders.OverlayVertex, shaders.OverlayFragment)
	if err != nil {
		return nil, fmt.Errorf("stats overlay: %v", err)
	}
	so.program = program
	so.projection = gl.GetUniformLocation(program, gl.Str("projection\x00"))

	gl.GenVertexArrays(1, &so.vao)
	gl.GenBuffers(1, &so.vbo)

	gl.BindVertexArray(so.vao)
	gl.BindBuffer(gl.ARRAY_BUFFER, so.vbo)

	// 2 floats position, 4 floats colour
	stride := int32(6 * 4)
	gl.VertexAttribPointer(0, 2, gl.FLOAT, false, stride, gl.PtrOffset(0))
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointer(1, 4, gl.FLOAT, false, stride, gl.PtrOffset(2*4))
	gl.EnableVertexAttribArray(1)

	gl.BindVertexArray(0)
	return so, nil
}

// UpdateStats sets the values drawn by the next Render.
func (so *StatsOverlay) UpdateStats(s Stats) {
	so.stats = s
}

// Render draws the overlay into the bound framebuffer.
func (so *StatsOverlay) Render() {
	gl.Disable(gl.DEPTH_TEST)
	gl.Enable(gl.BLEND)
	gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)

	gl.UseProgram(so.program)
	projection := mgl32.Ortho2D(0, so.width, so.height, 0)
	gl.UniformMatrix4fv(so.projection, 1, false, &projection[0])

	so.vertices = so.vertices[:0]
	const boxX, boxY, barW = 10, 10, 200
	so.quad(boxX, boxY, barW+20, 70, mgl32.Vec4{0.1, 0.1, 0.3, 0.8})

	// FPS against 120
	so.quad(boxX+10, boxY+10, barW*clampRatio(so.stats.FPS/120), 12, mgl32.Vec4{0, 1, 0, 1})
	// Frame time against a 33ms budget
	so.quad(boxX+10, boxY+30, barW*clampRatio(so.stats.FrameMillis/33), 12, mgl32.Vec4{1, 1, 0, 1})
	if so.stats.MaxDeposits > 0 {
		so.quad(boxX+10, boxY+50, barW*clampRatio(float64(so.stats.Deposits)/float64(so.stats.MaxDeposits)), 12, mgl32.Vec4{0.5, 0.5, 1, 1})
	}

	gl.BindVertexArray(so.vao)
	gl.BindBuffer(gl.ARRAY_BUFFER, so.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(so.vertices)*4, gl.Ptr(so.vertices), gl.DYNAMIC_DRAW)
	gl.DrawArrays(gl.TRIANGLES, 0, int32(len(so.vertices)/6))

	gl.Disable(gl.BLEND)
	gl.BindVertexArray(0)
}

// quad appends two triangles covering the rectangle.
func (so *StatsOverlay) quad(x, y, w, h float32, c mgl32.Vec4) {
	if w <= 0 {
		return
	}
	so.vertices = append(so.vertices,
		x, y, c[0], c[1], c[2], c[3],
		x+w, y, c[0], c[1], c[2], c[3],
		x, y+h, c[0], c[1], c[2], c[3],
		x+w, y, c[0], c[1], c[2], c[3],
		x+w, y+h, c[0], c[1], c[2], c[3],
		x, y+h, c[0], c[1], c[2], c[3],
	)
}

func clampRatio(v float64) float32 {
	return mgl32.Clamp(float32(v), 0, 1)
}

// UpdateSize updates viewport size
func (so *StatsOverlay) UpdateSize(width, height int) {
	so.width = float32(width)
	so.height = float32(height)
}

// Release cleans up resources
func (so *StatsOverlay) Release() {
	if so.program != 0 {
		gl.DeleteProgram(so.program)
		so.program = 0
	}
	if so.vao != 0 {
		gl.DeleteVertexArrays(1, &so.vao)
	}
	if so.vbo != 0 {
		gl.DeleteBuffers(1, &so.vbo)
	}
}
