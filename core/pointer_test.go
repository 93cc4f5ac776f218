package core

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestCoordinateMapping checks raw device pixels against shading space.
func TestCoordinateMapping(t *testing.T) {
	rect := SurfaceRect{Left: 10, Top: 20, Width: 800, Height: 600}

	tests := []struct {
		name      string
		px, py    float64
		wantX     float64
		wantY     float64
		wantValid bool
	}{
		{name: "Center", px: 410, py: 320, wantX: 0.5, wantY: 0.5, wantValid: true},
		{name: "Top Left", px: 10, py: 20, wantX: 0, wantY: 1, wantValid: true},
		{name: "Bottom Right", px: 810, py: 620, wantX: 1, wantY: 0, wantValid: true},
		{name: "Quarter", px: 210, py: 470, wantX: 0.25, wantY: 0.25, wantValid: true},
		{name: "Left Of Surface", px: -90, py: 320, wantX: 0, wantY: 0.5, wantValid: false},
		{name: "Below Surface", px: 410, py: 900, wantX: 0.5, wantY: 0, wantValid: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := NewPointerState()
			require.NoError(t, p.OnPointerMove(tc.px, tc.py, rect, 1))

			assert.Equal(t, tc.wantX, p.X)
			assert.Equal(t, tc.wantY, p.Y)
			assert.Equal(t, tc.wantValid, p.Valid)
		})
	}
}

func TestPointerStartsAtSentinel(t *testing.T) {
	p := NewPointerState()
	assert.Equal(t, PointerSentinel, p.X)
	assert.Equal(t, PointerSentinel, p.Y)
	assert.False(t, p.Valid)
}

func TestPointerVelocity(t *testing.T) {
	rect := SurfaceRect{Width: 100, Height: 100}
	p := NewPointerState()

	require.NoError(t, p.OnPointerMove(0, 100, rect, 1.0))
	assert.Zero(t, p.VX, "first sample has no velocity")

	require.NoError(t, p.OnPointerMove(50, 50, rect, 1.5))
	assert.InDelta(t, 1.0, p.VX, 1e-12)
	assert.InDelta(t, 1.0, p.VY, 1e-12)

	// A duplicate timestamp moves the pointer but keeps the velocity.
	require.NoError(t, p.OnPointerMove(100, 0, rect, 1.5))
	assert.Equal(t, 1.0, p.X)
	assert.InDelta(t, 1.0, p.VX, 1e-12)
	assert.InDelta(t, 1.0, p.VY, 1e-12)

	assert.InDelta(t, math.Pi/4, p.Heading(), 1e-12)
}

func TestPointerDropsMalformedEvents(t *testing.T) {
	p := NewPointerState()
	require.NoError(t, p.OnPointerMove(5, 5, SurfaceRect{Width: 10, Height: 10}, 1))
	before := *p

	err := p.OnPointerMove(5, 5, SurfaceRect{Width: 0, Height: 10}, 2)
	assert.ErrorIs(t, err, ErrTransientInput)

	err = p.OnPointerMove(math.NaN(), 5, SurfaceRect{Width: 10, Height: 10}, 3)
	assert.ErrorIs(t, err, ErrTransientInput)

	assert.Equal(t, before, *p)
}

func TestPointerLeave(t *testing.T) {
	p := NewPointerState()
	require.NoError(t, p.OnPointerMove(5, 5, SurfaceRect{Width: 10, Height: 10}, 1))
	require.True(t, p.Valid)

	p.OnPointerLeave()
	assert.False(t, p.Valid)
	assert.Equal(t, 0.5, p.X)
}
