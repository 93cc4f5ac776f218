package core

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDepositRemovedAfterLifeRunsOut(t *testing.T) {
	tests := []struct {
		name      string
		decrement float64
	}{
		{name: "Tenth", decrement: 0.1},
		{name: "Quarter", decrement: 0.25},
		{name: "Thirty Percent", decrement: 0.3},
		{name: "Hundredth", decrement: 0.01},
		{name: "Whole", decrement: 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			src := NewDepositSource(DepositConfig{SpawnPeriod: 1, MaxActive: 1, Speed: 0, LifeDecrement: tc.decrement})
			require.True(t, src.Add(0.5, 0.5, 0))

			want := int(math.Ceil(1.0 / tc.decrement))
			frames := 0
			for src.Len() > 0 {
				src.Update()
				frames++
				require.LessOrEqual(t, frames, want, "deposit outlived its life")
			}
			assert.Equal(t, want, frames)
		})
	}
}

func TestDepositRemovedWhenLeavingSurface(t *testing.T) {
	src := NewDepositSource(DepositConfig{SpawnPeriod: 1, MaxActive: 1, Speed: 0.1, LifeDecrement: 0.001})
	require.True(t, src.Add(0.75, 0.5, 0)) // heading +x

	src.Update() // 0.85
	src.Update() // 0.95
	require.Equal(t, 1, src.Len())
	assert.Greater(t, src.Active()[0].Life, 0.9)

	src.Update() // 1.05, outside
	assert.Zero(t, src.Len())
}

func TestDepositMotionAndLife(t *testing.T) {
	src := NewDepositSource(DepositConfig{SpawnPeriod: 1, MaxActive: 1, Speed: 0.01, LifeDecrement: 0.2})
	require.True(t, src.Add(0.5, 0.5, math.Pi/2))

	src.Update()
	d := src.Active()[0]
	assert.InDelta(t, 0.5, d.X, 1e-12)
	assert.InDelta(t, 0.51, d.Y, 1e-12)
	assert.InDelta(t, 0.8, d.Life, 1e-12)
}

func TestSpawnerRespectsPeriodAndCap(t *testing.T) {
	src := NewDepositSource(DepositConfig{SpawnPeriod: 0.5, MaxActive: 3, Speed: 0, LifeDecrement: 0.001, Seed: 7})

	assert.Zero(t, src.Tick(0.25))
	assert.Equal(t, 1, src.Tick(0.25))
	assert.Equal(t, 1, src.Tick(0.5))
	assert.Equal(t, 1, src.Tick(0.5))
	assert.Zero(t, src.Tick(0.5), "cap reached")
	assert.Equal(t, 3, src.Len())

	for _, d := range src.Active() {
		assert.GreaterOrEqual(t, d.X, 0.0)
		assert.LessOrEqual(t, d.X, 1.0)
		assert.GreaterOrEqual(t, d.Y, 0.0)
		assert.LessOrEqual(t, d.Y, 1.0)
		assert.GreaterOrEqual(t, d.Angle, 0.0)
		assert.Less(t, d.Angle, 2*math.Pi)
		assert.Equal(t, 1.0, d.Life)
	}
}

func TestSpawnerCollapsesStalls(t *testing.T) {
	src := NewDepositSource(DepositConfig{SpawnPeriod: 0.1, MaxActive: 10, Speed: 0, LifeDecrement: 0.001})

	assert.Equal(t, 1, src.Tick(5))
	assert.Equal(t, 1, src.Len())
	assert.Zero(t, src.Tick(0), "non-positive dt never spawns")
}

func TestDepositConfigValidate(t *testing.T) {
	good := DefaultDepositConfig()
	require.NoError(t, good.Validate(31))

	bad := good
	bad.MaxActive = 40
	assert.ErrorIs(t, bad.Validate(31), ErrConfiguration)

	bad = good
	bad.LifeDecrement = 0
	assert.ErrorIs(t, bad.Validate(31), ErrConfiguration)

	bad = good
	bad.SpawnPeriod = -1
	assert.ErrorIs(t, bad.Validate(31), ErrConfiguration)
}
