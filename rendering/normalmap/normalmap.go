// Package normalmap holds the normal and height source sampled by the
// surface pass.
package normalmap

import (
	"fmt"
	"image"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/image/draw"
)

// Map stores one texel per cell: the normal encoded into [0,1] in the first
// three channels and the height in the fourth. Row 0 is the bottom.
type Map struct {
	Width, Height int
	Texels        []float32
}

// Flat returns a map whose normals all point straight out of the surface.
func Flat(width, height int) *Map {
	m := &Map{Width: width, Height: height, Texels: make([]float32, width*height*4)}
	for i := 0; i < len(m.Texels); i += 4 {
		m.Texels[i+0] = 0.5
		m.Texels[i+1] = 0.5
		m.Texels[i+2] = 1
		m.Texels[i+3] = 0.5
	}
	return m
}

// FromHeights derives normals from a height field with a Sobel filter.
// heights holds width*height values in [0,1], row 0 at the bottom.
func FromHeights(width, height int, heights []float32, strength float32) (*Map, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("height field size %dx%d", width, height)
	}
	if len(heights) != width*height {
		return nil, fmt.Errorf("height field has %d values, want %d", len(heights), width*height)
	}

	at := func(x, y int) float32 {
		x = min(max(x, 0), width-1)
		y = min(max(y, 0), height-1)
		return heights[y*width+x]
	}

	m := &Map{Width: width, Height: height, Texels: make([]float32, width*height*4)}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			gx := (at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1)) -
				(at(x-1, y-1) + 2*at(x-1, y) + at(x-1, y+1))
			gy := (at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)) -
				(at(x-1, y-1) + 2*at(x, y-1) + at(x+1, y-1))
			n := mgl32.Vec3{-gx * strength, -gy * strength, 1}.Normalize()

			i := (y*width + x) * 4
			m.Texels[i+0] = n[0]*0.5 + 0.5
			m.Texels[i+1] = n[1]*0.5 + 0.5
			m.Texels[i+2] = n[2]*0.5 + 0.5
			m.Texels[i+3] = at(x, y)
		}
	}
	return m, nil
}

// FromImage resamples a tangent-space normal map image to width x height.
// Alpha is taken as height; opaque images get a neutral height of 0.5.
func FromImage(src image.Image, width, height int) (*Map, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("normal map size %dx%d", width, height)
	}
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	opaque := true
	for i := 3; i < len(dst.Pix); i += 4 {
		if dst.Pix[i] != 0xff {
			opaque = false
			break
		}
	}

	m := &Map{Width: width, Height: height, Texels: make([]float32, width*height*4)}
	for y := 0; y < height; y++ {
		row := height - 1 - y
		for x := 0; x < width; x++ {
			c := dst.NRGBAAt(x, row)
			i := (y*width + x) * 4
			m.Texels[i+0] = float32(c.R) / 255
			m.Texels[i+1] = float32(c.G) / 255
			m.Texels[i+2] = float32(c.B) / 255
			if opaque {
				m.Texels[i+3] = 0.5
			} else {
				m.Texels[i+3] = float32(c.A) / 255
			}
		}
	}
	return m, nil
}

// At returns the decoded unit normal and the height nearest to uv.
func (m *Map) At(u, v float32) (mgl32.Vec3, float32) {
	x := int(math.Floor(float64(u * float32(m.Width))))
	y := int(math.Floor(float64(v * float32(m.Height))))
	x = min(max(x, 0), m.Width-1)
	y = min(max(y, 0), m.Height-1)

	i := (y*m.Width + x) * 4
	n := mgl32.Vec3{
		m.Texels[i+0]*2 - 1,
		m.Texels[i+1]*2 - 1,
		m.Texels[i+2]*2 - 1,
	}
	return n, m.Texels[i+3]
}
