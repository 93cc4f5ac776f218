package core

import "math"

// PointerSentinel is the position a pointer holds before its first move event.
const PointerSentinel = -1.0

// SurfaceRect is the bounding rectangle of the render surface in device
// pixels, origin top-left.
type SurfaceRect struct {
	Left, Top     float64
	Width, Height float64
}

// Contains reports whether a raw device point lies on the surface.
func (r SurfaceRect) Contains(px, py float64) bool {
	return px >= r.Left && px <= r.Left+r.Width &&
		py >= r.Top && py <= r.Top+r.Height
}

// Normalize maps a raw device point to shading space: [0,1] on both axes,
// origin bottom-left.
func (r SurfaceRect) Normalize(px, py float64) (x, y float64) {
	x = clamp01((px - r.Left) / r.Width)
	y = clamp01(1 - (py-r.Top)/r.Height)
	return x, y
}

// PointerState is the normalized pointer/touch position and its velocity.
// The input adapter is the only writer; passes read it once per frame.
type PointerState struct {
	X, Y   float64
	VX, VY float64
	Valid  bool

	lastTime float64
	sampled  bool
}

// NewPointerState returns a pointer parked at the out-of-bounds sentinel.
func NewPointerState() *PointerState {
	p := &PointerState{}
	p.Reset()
	return p
}

// Reset parks the pointer at the sentinel and forgets its history.
func (p *PointerState) Reset() {
	*p = PointerState{X: PointerSentinel, Y: PointerSentinel}
}

// OnPointerMove records a move (or touch) event. timestamp is in seconds.
// A zero-area rect or a non-finite coordinate drops the event and returns
// ErrTransientInput; the state is left untouched.
func (p *PointerState) OnPointerMove(rawX, rawY float64, rect SurfaceRect, timestamp float64) error {
	if !(rect.Width > 0) || !(rect.Height > 0) {
		return transientInputf("surface rect %gx%g has no area", rect.Width, rect.Height)
	}
	if !finite(rawX) || !finite(rawY) || !finite(timestamp) {
		return transientInputf("pointer event (%g, %g) at %g is not finite", rawX, rawY, timestamp)
	}

	x, y := rect.Normalize(rawX, rawY)
	if p.sampled {
		if dt := timestamp - p.lastTime; dt > 0 {
			p.VX = (x - p.X) / dt
			p.VY = (y - p.Y) / dt
		}
	}

	p.X, p.Y = x, y
	p.Valid = rect.Contains(rawX, rawY)
	p.lastTime = timestamp
	p.sampled = true
	return nil
}

// OnPointerLeave marks the pointer as off the surface.
func (p *PointerState) OnPointerLeave() {
	p.Valid = false
}

// Heading returns the direction of travel in radians, or 0 while still.
func (p *PointerState) Heading() float64 {
	if p.VX == 0 && p.VY == 0 {
		return 0
	}
	return math.Atan2(p.VY, p.VX)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
