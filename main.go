package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"trailfield/config"
	"trailfield/core"
	"trailfield/logger"
	"trailfield/metrics"
	"trailfield/rendering/normalmap/source"
	"trailfield/rendering/opengl"
	"trailfield/rendering/opengl/overlay"
	"trailfield/server"
	"trailfield/trail"
)

func main() {
	runtime.LockOSThread()

	// Parse command line flags; set flags override settings.json
	var (
		settingsPath = flag.String("settings", config.DefaultPath, "Settings file")
		width        = flag.Int("width", 0, "Window width")
		height       = flag.Int("height", 0, "Window height")
		profile      = flag.String("profile", "", "Lighting profile (studio, soft, dramatic, metallic, ember)")
		normals      = flag.String("normals", "", "Normal map: flat, perlin or an image path")
		addr         = flag.String("addr", "", "Control server address")
		noServer     = flag.Bool("no-server", false, "Disable the control server")
		noWatch      = flag.Bool("no-watch", false, "Do not hot-reload the settings file")
		logLevel     = flag.String("log-level", "", "Log level (debug, info, warn, error)")
	)
	flag.Parse()

	settings, err := config.Load(*settingsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "settings: %v\n", err)
		os.Exit(2)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "width":
			settings.Window.Width = *width
		case "height":
			settings.Window.Height = *height
		case "profile":
			settings.Profile = *profile
		case "normals":
			settings.NormalMap.Source = *normals
		case "addr":
			settings.Server.Addr = *addr
		case "no-server":
			settings.Server.Enabled = !*noServer
		case "log-level":
			settings.Log.Level = *logLevel
		}
	})
	if err := settings.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "settings: %v\n", err)
		os.Exit(2)
	}

	log, err := logger.New(logger.Config{
		Environment: settings.Log.Environment,
		LogLevel:    settings.Log.Level,
		ServiceName: "trailfield",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(settings, *settingsPath, !*noWatch, log); err != nil {
		log.Error("renderer stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(settings config.Settings, settingsPath string, watch bool, log *zap.Logger) error {
	params, err := settings.ShaderParameters()
	if err != nil {
		return err
	}
	normals, err := source.Load(settings.NormalMap)
	if err != nil {
		return err
	}

	win, err := opengl.NewWindow(settings.Window.Width, settings.Window.Height, settings.Window.Title, settings.Window.VSync, log)
	if err != nil {
		return err
	}
	defer win.Terminate()

	dev, err := opengl.NewDevice(win, normals, log)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	queue := core.NewConfigQueue(64)

	w, h := win.Size()
	orch, err := trail.New(dev, trail.Options{
		Width:      w,
		Height:     h,
		PixelRatio: win.PixelRatio(),
		Params:     params,
		Deposits:   settings.DepositConfig(),
		Queue:      queue,
		Logger:     log,
		Metrics:    metrics.New(reg),
	})
	if err != nil {
		dev.Release()
		return err
	}
	defer orch.Dispose()
	// Resolves the profile name alongside the values trail.New already holds.
	if err := settings.ApplyTo(orch.Parameters()); err != nil {
		return err
	}
	win.Attach(orch, dev, nil)
	if err := orch.Start(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	if settings.Server.Enabled {
		srv := server.New(queue, reg, log)
		g.Go(func() error {
			// The renderer keeps running without its control surface.
			if err := srv.ListenAndServe(gctx, settings.Server.Addr); err != nil {
				log.Error("control server failed", zap.Error(err))
			}
			return nil
		})
	}
	if watch {
		g.Go(func() error {
			if err := config.Watch(gctx, settingsPath, settings, queue, log); err != nil {
				log.Warn("settings watcher stopped", zap.Error(err))
			}
			return nil
		})
	}

	fmt.Println("\nControls:")
	fmt.Println("  Mouse: Draw trails")
	fmt.Println("  1-5: Lighting profile (studio/soft/dramatic/metallic/ember)")
	fmt.Println("  F1: Toggle stats overlay")
	fmt.Println("  ESC: Exit")

	lastTime := time.Now()
	frameCount := 0
	lastFPSTime := time.Now()
	var loopErr error

	for !win.ShouldClose() {
		if ctx.Err() != nil {
			win.Close()
			break
		}
		win.PollEvents()
		if orch.State() == trail.Disposed {
			break
		}

		now := time.Now()
		dt := now.Sub(lastTime).Seconds()
		lastTime = now

		if err := orch.Tick(dt); err != nil {
			loopErr = err
			break
		}

		// FPS counter
		frameCount++
		if elapsed := now.Sub(lastFPSTime); elapsed >= time.Second {
			fps := float64(frameCount) / elapsed.Seconds()
			log.Info("frame rate",
				zap.Float64("fps", fps),
				zap.Int("deposits", orch.Deposits().Len()),
				zap.Uint64("frames", orch.Frame()))
			dev.UpdateStats(overlay.Stats{
				FPS:         fps,
				FrameMillis: elapsed.Seconds() * 1000 / float64(frameCount),
				Deposits:    orch.Deposits().Len(),
				MaxDeposits: settings.Deposits.MaxActive,
			})
			win.SetTitle(fmt.Sprintf("%s - %.0f fps", settings.Window.Title, fps))
			frameCount = 0
			lastFPSTime = now
		}
	}

	log.Info("shutting down")
	orch.Dispose()
	stop()
	if err := g.Wait(); err != nil && loopErr == nil {
		loopErr = err
	}
	return loopErr
}
