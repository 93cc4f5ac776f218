package trail_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trailfield/core"
	"trailfield/metrics"
	"trailfield/rendering/software"
	"trailfield/trail"
)

type fakeTarget struct {
	id       uint32
	w, h     int
	released bool
}

func (t *fakeTarget) ID() uint32       { return t.id }
func (t *fakeTarget) Size() (int, int) { return t.w, t.h }
func (t *fakeTarget) Release()         { t.released = true }

type feedbackCall struct {
	dst, src uint32
	stamps   int
}

// fakeDevice records every dispatch and can be told to fail.
type fakeDevice struct {
	nextID   uint32
	targets  []*fakeTarget
	cleared  []uint32
	feedback []feedbackCall
	surface  []uint32
	presents int
	released int

	failFeedback bool
}

func (d *fakeDevice) NewTarget(w, h int) (trail.Target, error) {
	d.nextID++
	t := &fakeTarget{id: d.nextID, w: w, h: h}
	d.targets = append(d.targets, t)
	return t, nil
}

func (d *fakeDevice) Clear(t trail.Target) error {
	d.cleared = append(d.cleared, t.ID())
	return nil
}

func (d *fakeDevice) Feedback(dst, src trail.Target, u *trail.FeedbackUniforms) error {
	if d.failFeedback {
		return errors.New("lost context")
	}
	d.feedback = append(d.feedback, feedbackCall{dst: dst.ID(), src: src.ID(), stamps: len(u.Stamps)})
	return nil
}

func (d *fakeDevice) Surface(t trail.Target, u *trail.SurfaceUniforms) error {
	d.surface = append(d.surface, t.ID())
	return nil
}

func (d *fakeDevice) Present() error {
	d.presents++
	return nil
}

func (d *fakeDevice) Release() { d.released++ }

func quietDeposits() core.DepositConfig {
	cfg := core.DefaultDepositConfig()
	cfg.MaxActive = 0
	return cfg
}

func newOrchestrator(t *testing.T, dev trail.Device, mutate func(*trail.Options)) *trail.Orchestrator {
	t.Helper()
	opts := trail.Options{
		Width:      8,
		Height:     6,
		PixelRatio: 1,
		Params:     core.DefaultParameters(),
		Deposits:   quietDeposits(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	o, err := trail.New(dev, opts)
	require.NoError(t, err)
	return o
}

func TestLifecycle(t *testing.T) {
	dev := &fakeDevice{}
	o := newOrchestrator(t, dev, nil)
	assert.Equal(t, trail.Uninitialized, o.State())
	assert.Nil(t, o.Trail())
	assert.ErrorIs(t, o.Tick(0.016), trail.ErrNotRunning)

	require.NoError(t, o.Start())
	assert.Equal(t, trail.Running, o.State())
	require.Len(t, dev.targets, 2)
	assert.ElementsMatch(t, []uint32{1, 2}, dev.cleared)

	// A second Start does not reallocate.
	require.NoError(t, o.Start())
	assert.Len(t, dev.targets, 2)

	o.Dispose()
	o.Dispose()
	assert.Equal(t, trail.Disposed, o.State())
	assert.Equal(t, 1, dev.released)
	for _, tgt := range dev.targets {
		assert.True(t, tgt.released, "target %d", tgt.id)
	}
	assert.ErrorIs(t, o.Start(), trail.ErrDisposed)
	assert.ErrorIs(t, o.Tick(0.016), trail.ErrNotRunning)
	assert.NoError(t, o.Resize(100, 100, 1))
}

func TestStartRejectsEmptySurface(t *testing.T) {
	o := newOrchestrator(t, &fakeDevice{}, func(opts *trail.Options) { opts.Width = 0 })
	err := o.Start()
	assert.ErrorIs(t, err, core.ErrConfiguration)
	assert.Equal(t, trail.Uninitialized, o.State())
}

func TestNewRejectsInvalidParameters(t *testing.T) {
	_, err := trail.New(&fakeDevice{}, trail.Options{
		Width: 4, Height: 4,
		Params:   func() core.ShaderParameters { p := core.DefaultParameters(); p.AccumulationStrength = 1; return p }(),
		Deposits: quietDeposits(),
	})
	assert.ErrorIs(t, err, core.ErrConfiguration)

	_, err = trail.New(&fakeDevice{}, trail.Options{
		Width: 4, Height: 4,
		Params:   core.DefaultParameters(),
		Deposits: core.DepositConfig{SpawnPeriod: 1, MaxActive: trail.MaxStamps, LifeDecrement: 0.1},
	})
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestBufferRolesAlternate(t *testing.T) {
	dev := &fakeDevice{}
	o := newOrchestrator(t, dev, nil)
	require.NoError(t, o.Start())

	const frames = 6
	for i := 0; i < frames; i++ {
		require.NoError(t, o.Tick(0.016))
	}
	require.Len(t, dev.feedback, frames)
	require.Len(t, dev.surface, frames)
	assert.Equal(t, frames, dev.presents)
	assert.Equal(t, uint64(frames), o.Frame())

	for i, call := range dev.feedback {
		assert.NotEqual(t, call.dst, call.src, "frame %d reads what it writes", i)
		// The surface sees the buffer this frame just finished.
		assert.Equal(t, call.dst, dev.surface[i], "frame %d", i)
		if i > 0 {
			assert.Equal(t, dev.feedback[i-1].dst, call.src, "frame %d must read frame %d's output", i, i-1)
		}
	}
	assert.Equal(t, dev.feedback[frames-1].dst, o.Trail().ID())
}

func TestPointerStampsOnlyWhenValid(t *testing.T) {
	dev := &fakeDevice{}
	o := newOrchestrator(t, dev, nil)
	require.NoError(t, o.Start())

	require.NoError(t, o.Tick(0.016))
	rect := core.SurfaceRect{Left: 0, Top: 0, Width: 100, Height: 100}
	require.NoError(t, o.Pointer().OnPointerMove(50, 50, rect, 1))
	require.NoError(t, o.Tick(0.016))
	o.Pointer().OnPointerLeave()
	require.NoError(t, o.Tick(0.016))

	assert.Equal(t, []int{0, 1, 0}, []int{dev.feedback[0].stamps, dev.feedback[1].stamps, dev.feedback[2].stamps})
}

func TestResizeReallocatesAndClears(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	dev := &fakeDevice{}
	o := newOrchestrator(t, dev, func(opts *trail.Options) { opts.Metrics = m })
	require.NoError(t, o.Start())
	require.NoError(t, o.Tick(0.016))

	require.NoError(t, o.Resize(20, 10, 1.5))
	w, h := o.BufferSize()
	assert.Equal(t, 30, w)
	assert.Equal(t, 15, h)
	require.Len(t, dev.targets, 4)
	assert.True(t, dev.targets[0].released)
	assert.True(t, dev.targets[1].released)
	for _, tgt := range dev.targets[2:] {
		assert.Equal(t, 30, tgt.w)
		assert.Contains(t, dev.cleared, tgt.id)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Resizes))

	// Empty sizes are ignored.
	require.NoError(t, o.Resize(0, 10, 1))
	require.NoError(t, o.Resize(10, -1, 1))
	assert.Len(t, dev.targets, 4)

	require.NoError(t, o.Tick(0.016))
	assert.Equal(t, trail.Running, o.State())
}

func TestResizeBeforeStartRecordsSize(t *testing.T) {
	dev := &fakeDevice{}
	o := newOrchestrator(t, dev, nil)
	require.NoError(t, o.Resize(50, 40, 4))
	assert.Empty(t, dev.targets)

	w, h := o.BufferSize()
	assert.Equal(t, 100, w, "pixel ratio is capped at 2")
	assert.Equal(t, 80, h)

	require.NoError(t, o.Resize(50, 40, math.NaN()))
	w, _ = o.BufferSize()
	assert.Equal(t, 50, w)
}

func TestDeviceFailureDisposes(t *testing.T) {
	dev := &fakeDevice{}
	o := newOrchestrator(t, dev, nil)
	require.NoError(t, o.Start())

	dev.failFeedback = true
	err := o.Tick(0.016)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrResource)
	assert.Equal(t, trail.Disposed, o.State())
	assert.Equal(t, 1, dev.released)
	assert.ErrorIs(t, o.Tick(0.016), trail.ErrNotRunning)
}

func TestQueuedChangesApplyBeforeFeedback(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	q := core.NewConfigQueue(4)
	o := newOrchestrator(t, &fakeDevice{}, func(opts *trail.Options) {
		opts.Queue = q
		opts.Metrics = m
	})
	require.NoError(t, o.Start())

	ctx := context.Background()
	results := make(chan error, 2)
	go func() {
		results <- q.Submit(ctx, func(s *core.ParameterStore) error {
			return s.Set(core.ParamSwirlStrength, 0.05)
		})
	}()
	go func() {
		results <- q.Submit(ctx, func(s *core.ParameterStore) error {
			return s.Set(core.ParamAccumulationStrength, 1.2)
		})
	}()

	var errs []error
	deadline := time.After(2 * time.Second)
	for len(errs) < 2 {
		require.NoError(t, o.Tick(0.016))
		select {
		case err := <-results:
			errs = append(errs, err)
		case <-deadline:
			t.Fatal("queued changes were never applied")
		case <-time.After(time.Millisecond):
		}
	}
	failures := 0
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, core.ErrConfiguration)
			failures++
		}
	}
	assert.Equal(t, 1, failures)

	got, err := o.Parameters().Get(core.ParamSwirlStrength)
	require.NoError(t, err)
	assert.Equal(t, 0.05, got)
	got, err = o.Parameters().Get(core.ParamAccumulationStrength)
	require.NoError(t, err)
	assert.Equal(t, 0.98, got)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rejections))
	assert.Equal(t, float64(o.Frame()), testutil.ToFloat64(m.Frames))

	o.Dispose()
	assert.ErrorIs(t, q.Submit(ctx, func(*core.ParameterStore) error { return nil }), core.ErrQueueClosed)
}

func TestDecayConvergesGeometrically(t *testing.T) {
	dev := software.New(software.WithWorkers(2))
	o := newOrchestrator(t, dev, nil)
	require.NoError(t, o.Start())

	start, ok := o.Trail().(*software.Target)
	require.True(t, ok)
	start.Fill([4]float32{1, 1, 1, 1})

	const s = 0.98
	last := float32(1)
	for k := 1; k <= 50; k++ {
		require.NoError(t, o.Tick(0.016))
		tgt := o.Trail().(*software.Target)
		v := tgt.Texel(3, 2)[0]
		assert.InDelta(t, math.Pow(s, float64(k)), v, 1e-4, "frame %d", k)
		assert.Less(t, v, last)
		last = v
	}
	assert.Equal(t, 50, dev.Presents())
	require.NotNil(t, dev.Frame())
}

// recordingDevice is a software device that remembers every target it
// allocates and the targets of every feedback dispatch.
type recordingDevice struct {
	*software.Device
	targets  []*software.Target
	feedback [][2]trail.Target
}

func (d *recordingDevice) NewTarget(w, h int) (trail.Target, error) {
	t, err := d.Device.NewTarget(w, h)
	if err == nil {
		d.targets = append(d.targets, t.(*software.Target))
	}
	return t, err
}

func (d *recordingDevice) Feedback(dst, src trail.Target, u *trail.FeedbackUniforms) error {
	d.feedback = append(d.feedback, [2]trail.Target{dst, src})
	return d.Device.Feedback(dst, src, u)
}

func TestResizeDiscardsHistory(t *testing.T) {
	dev := &recordingDevice{Device: software.New(software.WithWorkers(1))}
	o := newOrchestrator(t, dev, nil)
	require.NoError(t, o.Start())
	require.Len(t, dev.targets, 2)
	for _, tgt := range dev.targets {
		tgt.Fill([4]float32{1, 1, 1, 1})
	}
	require.NoError(t, o.Tick(0.016))

	require.NoError(t, o.Resize(5, 5, 1))
	require.Len(t, dev.targets, 4)
	fresh := dev.targets[2:]
	for i, tgt := range fresh {
		w, h := tgt.Size()
		assert.Equal(t, 5, w)
		assert.Equal(t, 5, h)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				require.Equal(t, [4]float32{}, tgt.Texel(x, y), "buffer %d texel (%d,%d)", i, x, y)
			}
		}
	}
	assert.Same(t, fresh[len(fresh)-1], o.Trail())

	// The first feedback after the resize reads one fresh buffer and writes the other.
	require.NoError(t, o.Tick(0.016))
	last := dev.feedback[len(dev.feedback)-1]
	assert.ElementsMatch(t, []trail.Target{fresh[0], fresh[1]}, []trail.Target{last[0], last[1]})
}
