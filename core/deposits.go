package core

import (
	"fmt"
	"math"
	"math/rand"
)

// Deposit is an autonomous particle that stamps the trail field while it lives.
type Deposit struct {
	X, Y  float64
	Angle float64 // travel direction, radians
	Life  float64 // remaining life in [0,1]

	age int
}

// DepositConfig controls the spawner and the per-frame particle motion.
type DepositConfig struct {
	SpawnPeriod   float64 // seconds between spawn ticks
	MaxActive     int
	Speed         float64 // uv units per frame
	LifeDecrement float64 // life lost per frame
	Seed          int64
}

// DefaultDepositConfig returns the spawner settings used when none are given.
func DefaultDepositConfig() DepositConfig {
	return DepositConfig{
		SpawnPeriod:   0.25,
		MaxActive:     12,
		Speed:         0.004,
		LifeDecrement: 0.005,
		Seed:          1,
	}
}

// Validate checks the spawner settings against maxActive, the largest
// particle count a pass can stamp.
func (c DepositConfig) Validate(maxActive int) error {
	switch {
	case !(c.SpawnPeriod > 0):
		return &ConfigurationError{Name: "spawnPeriod", Value: c.SpawnPeriod, Reason: "must be positive"}
	case c.MaxActive < 0 || c.MaxActive > maxActive:
		return &ConfigurationError{Name: "maxDeposits", Value: float64(c.MaxActive), Reason: fmt.Sprintf("must be in [0, %d]", maxActive)}
	case c.Speed < 0 || !finite(c.Speed):
		return &ConfigurationError{Name: "depositSpeed", Value: c.Speed, Reason: "must be finite and non-negative"}
	case !(c.LifeDecrement > 0) || c.LifeDecrement > 1:
		return &ConfigurationError{Name: "lifeDecrement", Value: c.LifeDecrement, Reason: "must be in (0, 1]"}
	}
	return nil
}

// DepositSource owns the active particles and the spawn clock.
type DepositSource struct {
	cfg     DepositConfig
	rng     *rand.Rand
	active  []Deposit
	elapsed float64
}

// NewDepositSource creates an empty source. The config must already be valid.
func NewDepositSource(cfg DepositConfig) *DepositSource {
	return &DepositSource{
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		active: make([]Deposit, 0, cfg.MaxActive),
	}
}

// Active returns the live particles. The slice is only valid until the next
// Update or Spawn call.
func (s *DepositSource) Active() []Deposit {
	return s.active
}

// Len returns the number of live particles.
func (s *DepositSource) Len() int {
	return len(s.active)
}

// Reset removes all particles and rewinds the spawn clock.
func (s *DepositSource) Reset() {
	s.active = s.active[:0]
	s.elapsed = 0
}

// Tick advances the spawn clock by dt seconds, spawning one particle per
// elapsed period while under the cap. A stall longer than one period
// collapses to a single spawn tick.
func (s *DepositSource) Tick(dt float64) int {
	if !(dt > 0) {
		return 0
	}
	s.elapsed += dt
	if s.elapsed >= 2*s.cfg.SpawnPeriod {
		s.elapsed = s.cfg.SpawnPeriod
	}

	spawned := 0
	for s.elapsed >= s.cfg.SpawnPeriod {
		s.elapsed -= s.cfg.SpawnPeriod
		if s.Spawn() {
			spawned++
		}
	}
	return spawned
}

// Spawn adds one particle at a random position with a random heading.
// It reports false when the cap is reached.
func (s *DepositSource) Spawn() bool {
	if len(s.active) >= s.cfg.MaxActive {
		return false
	}
	s.active = append(s.active, Deposit{
		X:     s.rng.Float64(),
		Y:     s.rng.Float64(),
		Angle: s.rng.Float64() * 2 * math.Pi,
		Life:  1,
	})
	return true
}

// Add inserts a particle with full life, subject to the cap.
func (s *DepositSource) Add(x, y, angle float64) bool {
	if len(s.active) >= s.cfg.MaxActive {
		return false
	}
	s.active = append(s.active, Deposit{X: x, Y: y, Angle: angle, Life: 1})
	return true
}

// Update moves every particle one frame and filters out the expired ones in
// place. This is the only place particles are destroyed.
func (s *DepositSource) Update() {
	kept := s.active[:0]
	for _, d := range s.active {
		d.X += s.cfg.Speed * math.Cos(d.Angle)
		d.Y += s.cfg.Speed * math.Sin(d.Angle)
		d.age++
		// Life is derived from the integer age so the removal frame is exact.
		d.Life = 1 - float64(d.age)*s.cfg.LifeDecrement

		if d.Life <= 0 {
			continue
		}
		if d.X < 0 || d.X > 1 || d.Y < 0 || d.Y > 1 {
			continue
		}
		kept = append(kept, d)
	}
	// Clear the tail so removed values don't linger in the backing array.
	for i := len(kept); i < len(s.active); i++ {
		s.active[i] = Deposit{}
	}
	s.active = kept
}
