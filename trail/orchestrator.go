package trail

import (
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"trailfield/core"
	"trailfield/metrics"
)

// State is the lifecycle stage of an Orchestrator.
type State int

const (
	Uninitialized State = iota
	Ready
	Running
	Disposed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Disposed:
		return "disposed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var (
	// ErrNotRunning is returned by Tick outside the Running state.
	ErrNotRunning = errors.New("orchestrator is not running")
	// ErrDisposed is returned by Start after Dispose; build a new orchestrator.
	ErrDisposed = errors.New("orchestrator is disposed")
)

// MaxPixelRatio caps the device pixel ratio applied to buffer sizes.
const MaxPixelRatio = 2.0

// Options configures an Orchestrator.
type Options struct {
	Width, Height int
	PixelRatio    float64
	Params        core.ShaderParameters
	Deposits      core.DepositConfig
	Queue         *core.ConfigQueue
	Logger        *zap.Logger
	Metrics       *metrics.Metrics
}

// Orchestrator owns the buffer pair and runs one frame per Tick:
// configuration, deposits, feedback, swap, surface, present.
type Orchestrator struct {
	dev      Device
	state    State
	buffers  *BufferPair
	feedback *FeedbackPass
	surface  *SurfacePass

	pointer  *core.PointerState
	deposits *core.DepositSource
	params   *core.ParameterStore
	queue    *core.ConfigQueue

	width, height int
	pixelRatio    float64
	frame         uint64

	log     *zap.Logger
	metrics *metrics.Metrics
}

// New validates opts and returns an Uninitialized orchestrator.
func New(dev Device, opts Options) (*Orchestrator, error) {
	if dev == nil {
		return nil, core.ResourceErrorf("no graphics device")
	}
	params, err := core.NewParameterStore(opts.Params)
	if err != nil {
		return nil, err
	}
	if err := opts.Deposits.Validate(MaxStamps - 1); err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	o := &Orchestrator{
		dev:      dev,
		feedback: NewFeedbackPass(dev),
		surface:  NewSurfacePass(dev),
		pointer:  core.NewPointerState(),
		deposits: core.NewDepositSource(opts.Deposits),
		params:   params,
		queue:    opts.Queue,
		log:      log.Named("trail"),
		metrics:  opts.Metrics,
	}
	o.pixelRatio = clampPixelRatio(opts.PixelRatio)
	o.width, o.height = opts.Width, opts.Height
	return o, nil
}

// State returns the lifecycle stage.
func (o *Orchestrator) State() State { return o.state }

// Pointer returns the pointer state for the input adapter. Only the frame
// loop's thread may write it.
func (o *Orchestrator) Pointer() *core.PointerState { return o.pointer }

// Deposits returns the particle source.
func (o *Orchestrator) Deposits() *core.DepositSource { return o.deposits }

// Parameters returns the live configuration surface for callers on the
// frame loop's thread. Other goroutines go through the ConfigQueue.
func (o *Orchestrator) Parameters() *core.ParameterStore { return o.params }

// Frame returns the number of completed ticks.
func (o *Orchestrator) Frame() uint64 { return o.frame }

// BufferSize returns the pixel size of the accumulation buffers.
func (o *Orchestrator) BufferSize() (width, height int) {
	return o.bufferDims(o.width, o.height, o.pixelRatio)
}

// Trail returns the most recently completed trail buffer, or nil before Start.
func (o *Orchestrator) Trail() Target {
	if o.buffers == nil {
		return nil
	}
	return o.buffers.Previous().t
}

// Start allocates and clears both buffers, parks the pointer, and begins
// running. Calling it again while running is a no-op.
func (o *Orchestrator) Start() error {
	switch o.state {
	case Ready, Running:
		return nil
	case Disposed:
		return ErrDisposed
	}

	w, h := o.BufferSize()
	if w <= 0 || h <= 0 {
		return &core.ConfigurationError{Name: "size", Value: float64(w * h), Reason: fmt.Sprintf("surface %dx%d has no area", w, h)}
	}
	buffers, err := NewBufferPair(o.dev, w, h)
	if err != nil {
		o.Dispose()
		return fmt.Errorf("start: %w", err)
	}
	o.buffers = buffers
	o.pointer.Reset()
	o.deposits.Reset()
	o.feedback.Reset()
	o.state = Ready
	o.log.Info("accumulation buffers ready", zap.Int("width", w), zap.Int("height", h))

	o.state = Running
	return nil
}

// Tick runs one frame. dt is the wall time since the previous tick in
// seconds and drives the particle spawner. A resource failure disposes the
// orchestrator.
func (o *Orchestrator) Tick(dt float64) error {
	if o.state != Running {
		return ErrNotRunning
	}
	start := time.Now()

	if o.queue != nil {
		if failed := o.queue.Drain(o.params); failed > 0 {
			o.metrics.Rejected(failed)
			o.log.Warn("rejected parameter changes", zap.Int("count", failed))
		}
	}

	o.deposits.Update()
	o.deposits.Tick(dt)

	params := o.params.Snapshot()
	if err := o.feedback.Run(o.buffers.Current(), o.buffers.Previous(), params, o.pointer, o.deposits.Active()); err != nil {
		return o.fail("feedback pass", err)
	}
	o.buffers.Swap()

	if err := o.surface.Run(o.buffers.Previous(), params, o.feedback.Time()); err != nil {
		return o.fail("surface pass", err)
	}
	if err := o.dev.Present(); err != nil {
		return o.fail("present", err)
	}

	o.frame++
	o.metrics.ObserveFrame(time.Since(start), o.deposits.Len())
	return nil
}

// Resize reallocates both buffers for a new surface size. Trail history is
// discarded. A non-positive size is ignored.
func (o *Orchestrator) Resize(width, height int, pixelRatio float64) error {
	if width <= 0 || height <= 0 {
		o.log.Debug("ignoring empty resize", zap.Int("width", width), zap.Int("height", height))
		return nil
	}
	if o.state == Disposed {
		return nil
	}

	ratio := clampPixelRatio(pixelRatio)
	o.width, o.height, o.pixelRatio = width, height, ratio
	if o.state == Uninitialized {
		return nil
	}

	w, h := o.bufferDims(width, height, ratio)
	if w <= 0 || h <= 0 {
		return nil
	}

	// Paused between frames: the old pair goes away before the new one exists.
	o.buffers.Release()
	o.buffers = nil
	buffers, err := NewBufferPair(o.dev, w, h)
	if err != nil {
		return o.fail("resize", err)
	}
	o.buffers = buffers
	o.metrics.Resized()
	o.log.Info("accumulation buffers resized", zap.Int("width", w), zap.Int("height", h), zap.Float64("pixelRatio", ratio))
	return nil
}

// Dispose releases the buffers and device programs. It is idempotent and
// must not be called from inside Tick.
func (o *Orchestrator) Dispose() {
	if o.state == Disposed {
		return
	}
	if o.buffers != nil {
		o.buffers.Release()
		o.buffers = nil
	}
	o.dev.Release()
	if o.queue != nil {
		o.queue.Close()
	}
	o.state = Disposed
	o.log.Info("disposed", zap.Uint64("frames", o.frame))
}

func (o *Orchestrator) fail(stage string, err error) error {
	o.log.Error("frame failed", zap.String("stage", stage), zap.Error(err))
	o.Dispose()
	if !errors.Is(err, core.ErrResource) {
		err = fmt.Errorf("%w: %w", core.ErrResource, err)
	}
	return fmt.Errorf("%s: %w", stage, err)
}

func (o *Orchestrator) bufferDims(width, height int, ratio float64) (int, int) {
	return int(math.Round(float64(width) * ratio)), int(math.Round(float64(height) * ratio))
}

func clampPixelRatio(r float64) float64 {
	if math.IsNaN(r) || r <= 0 {
		return 1
	}
	return math.Min(r, MaxPixelRatio)
}
