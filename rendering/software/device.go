// Package software is the CPU implementation of the trail device. It runs
// the same feedback and surface programs as the OpenGL backend on float32
// buffers and keeps the presented frame in memory.
package software

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"runtime"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"trailfield/core"
	"trailfield/rendering/normalmap"
	"trailfield/trail"
)

// Target is a 4-channel float32 buffer. Row 0 is the bottom of the surface.
type Target struct {
	id       uint32
	width    int
	height   int
	pix      []float32
	released bool
}

func (t *Target) ID() uint32 { return t.id }

func (t *Target) Size() (int, int) { return t.width, t.height }

// Release drops the texel storage.
func (t *Target) Release() {
	t.pix = nil
	t.released = true
}

// Texel returns the value stored at column x, row y.
func (t *Target) Texel(x, y int) [4]float32 {
	i := (y*t.width + x) * 4
	return [4]float32{t.pix[i], t.pix[i+1], t.pix[i+2], t.pix[i+3]}
}

// SetTexel overwrites the value at column x, row y.
func (t *Target) SetTexel(x, y int, v [4]float32) {
	i := (y*t.width + x) * 4
	copy(t.pix[i:i+4], v[:])
}

// Fill sets every texel to v.
func (t *Target) Fill(v [4]float32) {
	for i := 0; i < len(t.pix); i += 4 {
		copy(t.pix[i:i+4], v[:])
	}
}

// sample reads the target at uv with linear filtering and clamped edges.
func (t *Target) sample(u, v float32) [4]float32 {
	fx := u*float32(t.width) - 0.5
	fy := v*float32(t.height) - 0.5
	x0, y0 := floorInt(fx), floorInt(fy)
	wx, wy := fx-float32(x0), fy-float32(y0)

	a := t.Texel(clampInt(x0, t.width), clampInt(y0, t.height))
	b := t.Texel(clampInt(x0+1, t.width), clampInt(y0, t.height))
	c := t.Texel(clampInt(x0, t.width), clampInt(y0+1, t.height))
	d := t.Texel(clampInt(x0+1, t.width), clampInt(y0+1, t.height))

	var out [4]float32
	for i := range out {
		top := a[i] + (b[i]-a[i])*wx
		bot := c[i] + (d[i]-c[i])*wx
		out[i] = top + (bot-top)*wy
	}
	return out
}

func floorInt(v float32) int {
	i := int(v)
	if float32(i) > v {
		i--
	}
	return i
}

func clampInt(v, n int) int {
	if v < 0 {
		return 0
	}
	if v >= n {
		return n - 1
	}
	return v
}

// Device evaluates both programs on the CPU.
type Device struct {
	workers int
	normals *normalmap.Map
	log     *zap.Logger

	mu        sync.Mutex
	nextID    uint32
	back      *image.RGBA
	presented *image.RGBA
	released  bool
	presents  int
}

// Option configures a Device.
type Option func(*Device)

// WithWorkers sets how many goroutines share one dispatch.
func WithWorkers(n int) Option {
	return func(d *Device) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithNormalMap sets the normal source sampled by the surface program.
func WithNormalMap(m *normalmap.Map) Option {
	return func(d *Device) {
		if m != nil {
			d.normals = m
		}
	}
}

// WithLogger sets the device logger.
func WithLogger(l *zap.Logger) Option {
	return func(d *Device) {
		if l != nil {
			d.log = l
		}
	}
}

// New creates a CPU device with a flat normal map.
func New(opts ...Option) *Device {
	d := &Device{
		workers: runtime.NumCPU(),
		normals: normalmap.Flat(1, 1),
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log.Debug("software device created", zap.Int("workers", d.workers))
	return d
}

func (d *Device) target(t trail.Target) (*Target, error) {
	st, ok := t.(*Target)
	if !ok {
		return nil, core.ResourceErrorf("target %T does not belong to the software device", t)
	}
	if st.released {
		return nil, core.ResourceErrorf("target %d used after release", st.id)
	}
	return st, nil
}

// NewTarget allocates a zeroed buffer.
func (d *Device) NewTarget(width, height int) (trail.Target, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil, core.ResourceErrorf("device released")
	}
	if width <= 0 || height <= 0 {
		return nil, core.ResourceErrorf("target size %dx%d", width, height)
	}
	d.nextID++
	return &Target{
		id:     d.nextID,
		width:  width,
		height: height,
		pix:    make([]float32, width*height*4),
	}, nil
}

// Clear zeroes every texel.
func (d *Device) Clear(t trail.Target) error {
	st, err := d.target(t)
	if err != nil {
		return err
	}
	clear(st.pix)
	return nil
}

// Feedback evaluates the feedback program over every texel of dst.
func (d *Device) Feedback(dst, src trail.Target, u *trail.FeedbackUniforms) error {
	out, err := d.target(dst)
	if err != nil {
		return err
	}
	in, err := d.target(src)
	if err != nil {
		return err
	}
	if out == in {
		return core.ResourceErrorf("feedback would read and write target %d", out.id)
	}
	if len(u.Stamps) > trail.MaxStamps {
		return fmt.Errorf("feedback: %d stamps exceeds %d", len(u.Stamps), trail.MaxStamps)
	}

	sameSize := out.width == in.width && out.height == in.height
	return d.rows(out.height, func(y int) {
		v := (float32(y) + 0.5) / float32(out.height)
		for x := 0; x < out.width; x++ {
			uu := (float32(x) + 0.5) / float32(out.width)
			var prev [4]float32
			if sameSize {
				prev = in.Texel(x, y)
			} else {
				prev = in.sample(uu, v)
			}
			out.SetTexel(x, y, feedbackTexel(prev, uu, v, u))
		}
	})
}

// Surface shades the surface into the back buffer at the trail resolution.
func (d *Device) Surface(trailTarget trail.Target, u *trail.SurfaceUniforms) error {
	tt, err := d.target(trailTarget)
	if err != nil {
		return err
	}

	d.mu.Lock()
	if d.back == nil || d.back.Rect.Dx() != tt.width || d.back.Rect.Dy() != tt.height {
		d.back = image.NewRGBA(image.Rect(0, 0, tt.width, tt.height))
	}
	back := d.back
	d.mu.Unlock()

	return d.rows(tt.height, func(y int) {
		v := (float32(y) + 0.5) / float32(tt.height)
		row := tt.height - 1 - y
		for x := 0; x < tt.width; x++ {
			uu := (float32(x) + 0.5) / float32(tt.width)
			c := shadeTexel(uu, v, tt.Texel(x, y), d.normals, u)
			back.SetRGBA(x, row, color.RGBA{
				R: uint8(c[0]*255 + 0.5),
				G: uint8(c[1]*255 + 0.5),
				B: uint8(c[2]*255 + 0.5),
				A: 255,
			})
		}
	})
}

// Present publishes the back buffer as the latest frame.
func (d *Device) Present() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.back == nil {
		return core.ResourceErrorf("present before any surface pass")
	}
	if d.presented == nil || d.presented.Rect != d.back.Rect {
		d.presented = image.NewRGBA(d.back.Rect)
	}
	copy(d.presented.Pix, d.back.Pix)
	d.presents++
	return nil
}

// Frame returns the last presented frame, or nil.
func (d *Device) Frame() *image.RGBA {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.presented
}

// Presents returns how many frames were presented.
func (d *Device) Presents() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.presents
}

// Release marks the device unusable for new targets.
func (d *Device) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.released = true
	d.back = nil
}

// rows runs fn for every row, split into bands across the worker pool. It
// returns once every band is done.
func (d *Device) rows(height int, fn func(y int)) error {
	workers := d.workers
	if workers > height {
		workers = height
	}
	if workers <= 1 {
		for y := 0; y < height; y++ {
			fn(y)
		}
		return nil
	}

	g, _ := errgroup.WithContext(context.Background())
	band := (height + workers - 1) / workers
	for start := 0; start < height; start += band {
		start, end := start, min(start+band, height)
		g.Go(func() error {
			for y := start; y < end; y++ {
				fn(y)
			}
			return nil
		})
	}
	return g.Wait()
}
