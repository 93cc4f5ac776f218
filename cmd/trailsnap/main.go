// Command trailsnap runs the trail field headless on the software device,
// drives the pointer along a scripted path and writes the result as PNG.
package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"trailfield/config"
	"trailfield/core"
	"trailfield/logger"
	"trailfield/rendering/normalmap/source"
	"trailfield/rendering/software"
	"trailfield/trail"
)

type options struct {
	Settings string
	Out      string
	TrailOut string
	Width    int
	Height   int
	Frames   int
	Scale    int
	Workers  int
	Profile  string
	Normals  string
	Caption  bool
}

func main() {
	var opts options
	flag.StringVar(&opts.Settings, "settings", "", "Settings file (defaults when empty)")
	flag.StringVar(&opts.Out, "out", "frame.png", "Shaded frame output")
	flag.StringVar(&opts.TrailOut, "trail", "", "Raw trail field output (skipped when empty)")
	flag.IntVar(&opts.Width, "width", 320, "Surface width")
	flag.IntVar(&opts.Height, "height", 200, "Surface height")
	flag.IntVar(&opts.Frames, "frames", 180, "Frames to simulate at 60 fps")
	flag.IntVar(&opts.Scale, "scale", 1, "Integer upscale factor for the written images")
	flag.IntVar(&opts.Workers, "workers", runtime.NumCPU(), "Goroutines per pass")
	flag.StringVar(&opts.Profile, "profile", "", "Lighting profile override")
	flag.StringVar(&opts.Normals, "normals", "", "Normal map override: flat, perlin or an image path")
	flag.BoolVar(&opts.Caption, "caption", false, "Print profile and frame count on the image")
	flag.Parse()

	log, err := logger.New(logger.Config{LogLevel: "info", ServiceName: "trailsnap"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(opts, log); err != nil {
		log.Error("snapshot failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(opts options, log *zap.Logger) error {
	dev, orch, err := setup(opts, log)
	if err != nil {
		return err
	}
	defer orch.Dispose()
	if err := orch.Start(); err != nil {
		return err
	}

	rect := core.SurfaceRect{Width: float64(opts.Width), Height: float64(opts.Height)}
	const dt = 1.0 / 60
	for i := 0; i < opts.Frames; i++ {
		x, y := pointerPath(i, opts.Width, opts.Height)
		if err := orch.Pointer().OnPointerMove(x, y, rect, float64(i)*dt); err != nil {
			return err
		}
		if err := orch.Tick(dt); err != nil {
			return err
		}
	}
	log.Info("simulated",
		zap.Uint64("frames", orch.Frame()),
		zap.Int("deposits", orch.Deposits().Len()),
		zap.String("profile", string(orch.Parameters().Profile())))

	frame := upscale(dev.Frame(), opts.Scale)
	if opts.Caption {
		annotate(frame, fmt.Sprintf("%s  %d frames", orch.Parameters().Profile(), orch.Frame()))
	}
	if err := writePNG(opts.Out, frame); err != nil {
		return err
	}
	if opts.TrailOut != "" {
		t, ok := orch.Trail().(*software.Target)
		if !ok {
			return fmt.Errorf("no trail buffer")
		}
		if err := writePNG(opts.TrailOut, upscale(trailImage(t), opts.Scale)); err != nil {
			return err
		}
	}
	return nil
}

// setup resolves settings and options into a software device and an
// orchestrator that has not been started.
func setup(opts options, log *zap.Logger) (*software.Device, *trail.Orchestrator, error) {
	settings := config.Default()
	if opts.Settings != "" {
		var err error
		if settings, err = config.Load(opts.Settings); err != nil {
			return nil, nil, err
		}
	}
	if opts.Profile != "" {
		settings.Profile = opts.Profile
	}
	if opts.Normals != "" {
		settings.NormalMap.Source = opts.Normals
	}
	if err := settings.Validate(); err != nil {
		return nil, nil, err
	}
	if opts.Frames <= 0 || opts.Scale <= 0 {
		return nil, nil, fmt.Errorf("frames and scale must be positive")
	}

	params, err := settings.ShaderParameters()
	if err != nil {
		return nil, nil, err
	}
	normals, err := source.Load(settings.NormalMap)
	if err != nil {
		return nil, nil, err
	}

	dev := software.New(software.WithWorkers(opts.Workers), software.WithNormalMap(normals), software.WithLogger(log))
	orch, err := trail.New(dev, trail.Options{
		Width:      opts.Width,
		Height:     opts.Height,
		PixelRatio: 1,
		Params:     params,
		Deposits:   settings.DepositConfig(),
		Logger:     log,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := settings.ApplyTo(orch.Parameters()); err != nil {
		orch.Dispose()
		return nil, nil, err
	}
	return dev, orch, nil
}

// pointerPath traces a Lissajous figure inside the surface, in device
// pixels with the origin top-left.
func pointerPath(frame, width, height int) (float64, float64) {
	t := float64(frame) / 60
	x := 0.5 + 0.35*math.Sin(2*t)
	y := 0.5 + 0.35*math.Sin(3*t+math.Pi/4)
	return x * float64(width), y * float64(height)
}

// trailImage converts the float trail field into 8-bit RGBA, top row first.
func trailImage(t *software.Target) *image.RGBA {
	w, h := t.Size()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := t.Texel(x, y)
			img.SetRGBA(x, h-1-y, color.RGBA{
				R: uint8(v[0]*255 + 0.5),
				G: uint8(v[1]*255 + 0.5),
				B: uint8(v[2]*255 + 0.5),
				A: 255,
			})
		}
	}
	return img
}

func upscale(src *image.RGBA, scale int) *image.RGBA {
	if scale == 1 {
		return src
	}
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*scale, b.Dy()*scale))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

func annotate(img draw.Image, text string) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.White),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(6, img.Bounds().Dy()-6),
	}
	d.DrawString(text)
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}
