package opengl

import (
	"fmt"
	"runtime"

	"github.com/go-gl/gl/v4.3-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"go.uber.org/zap"

	"trailfield/core"
	"trailfield/trail"
)

// Window owns the GLFW window and GL context and forwards its input to an
// orchestrator.
type Window struct {
	window *glfw.Window
	log    *zap.Logger

	orch    *trail.Orchestrator
	device  *Device
	profile func(core.Profile)
}

// NewWindow creates a window with an OpenGL 4.3 core context current on
// the calling thread, which it locks.
func NewWindow(width, height int, title string, vsync bool, log *zap.Logger) (*Window, error) {
	runtime.LockOSThread()
	if log == nil {
		log = zap.NewNop()
	}

	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize GLFW: %v", err)
	}

	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 3)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	glfw.WindowHint(glfw.ScaleToMonitor, glfw.True)

	window, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, core.ResourceErrorf("failed to create window: %v", err)
	}
	window.MakeContextCurrent()

	if vsync {
		glfw.SwapInterval(1)
	} else {
		glfw.SwapInterval(0)
	}

	if err := gl.Init(); err != nil {
		window.Destroy()
		glfw.Terminate()
		return nil, core.ResourceErrorf("failed to initialize OpenGL: %v", err)
	}
	log.Info("OpenGL context", zap.String("version", gl.GoStr(gl.GetString(gl.VERSION))))

	return &Window{window: window, log: log.Named("window")}, nil
}

// Attach routes pointer, resize and key events to o. Keys 1-5 switch the
// lighting profile, F1 toggles the stats overlay and Escape closes the
// window. onProfile, if set, is told about every profile switch.
func (w *Window) Attach(o *trail.Orchestrator, d *Device, onProfile func(core.Profile)) {
	w.orch = o
	w.device = d
	w.profile = onProfile

	w.window.SetCursorPosCallback(func(_ *glfw.Window, xpos, ypos float64) {
		w.onPointerMove(xpos, ypos)
	})
	w.window.SetCursorEnterCallback(func(_ *glfw.Window, entered bool) {
		if !entered {
			w.orch.Pointer().OnPointerLeave()
		}
	})
	w.window.SetSizeCallback(func(_ *glfw.Window, width, height int) {
		w.onResize(width, height)
	})
	w.window.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		w.onKey(key, action)
	})
}

func (w *Window) onPointerMove(xpos, ypos float64) {
	width, height := w.window.GetSize()
	rect := core.SurfaceRect{Width: float64(width), Height: float64(height)}
	if err := w.orch.Pointer().OnPointerMove(xpos, ypos, rect, glfw.GetTime()); err != nil {
		w.log.Debug("dropped pointer event", zap.Error(err))
	}
}

func (w *Window) onResize(width, height int) {
	if err := w.orch.Resize(width, height, w.PixelRatio()); err != nil {
		w.log.Error("resize failed", zap.Error(err))
		w.window.SetShouldClose(true)
	}
}

func (w *Window) onKey(key glfw.Key, action glfw.Action) {
	if action != glfw.Press {
		return
	}

	switch key {
	case glfw.KeyEscape:
		w.window.SetShouldClose(true)
	case glfw.KeyF1:
		if w.device != nil {
			on := w.device.ToggleStats()
			w.log.Info("stats overlay", zap.Bool("visible", on))
		}
	case glfw.Key1, glfw.Key2, glfw.Key3, glfw.Key4, glfw.Key5:
		profiles := core.Profiles()
		i := int(key - glfw.Key1)
		if i >= len(profiles) {
			return
		}
		if err := w.orch.Parameters().SetProfile(profiles[i]); err != nil {
			w.log.Warn("profile switch failed", zap.Error(err))
			return
		}
		w.log.Info("lighting profile", zap.String("profile", string(profiles[i])))
		if w.profile != nil {
			w.profile(profiles[i])
		}
	}
}

// Size returns the window size in screen coordinates.
func (w *Window) Size() (int, int) {
	return w.window.GetSize()
}

// FramebufferSize returns the drawable size in pixels.
func (w *Window) FramebufferSize() (int, int) {
	return w.window.GetFramebufferSize()
}

// PixelRatio is framebuffer pixels per screen coordinate.
func (w *Window) PixelRatio() float64 {
	ww, _ := w.window.GetSize()
	fw, _ := w.window.GetFramebufferSize()
	if ww <= 0 || fw <= 0 {
		xs, _ := w.window.GetContentScale()
		return float64(xs)
	}
	return float64(fw) / float64(ww)
}

// SetTitle replaces the window title.
func (w *Window) SetTitle(title string) {
	w.window.SetTitle(title)
}

// ShouldClose returns true if the window should close
func (w *Window) ShouldClose() bool {
	return w.window.ShouldClose()
}

// Close asks the frame loop to stop.
func (w *Window) Close() {
	w.window.SetShouldClose(true)
}

// PollEvents processes window events
func (w *Window) PollEvents() {
	glfw.PollEvents()
}

// SwapBuffers presents the back buffer.
func (w *Window) SwapBuffers() {
	w.window.SwapBuffers()
}

// Time returns seconds since GLFW was initialised.
func (w *Window) Time() float64 {
	return glfw.GetTime()
}

// Terminate destroys the window and shuts GLFW down.
func (w *Window) Terminate() {
	w.window.Destroy()
	glfw.Terminate()
}
