package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"golang.org/x/exp/shiny/driver"
	"golang.org/x/sync/errgroup"

	"essaim.dev/freenect2/config"
	"essaim.dev/freenect2/display"
	"essaim.dev/freenect2/freenect2"
	"essaim.dev/freenect2/kinect"
	"essaim.dev/freenect2/simdriver"
)

const statsInterval = 5 * time.Second

var (
	configFlag     string
	generationFlag string
	deviceFlag     int
	pipelineFlag   string
	maxDepthFlag   float64
	paletteFlag    string
	mirrorFlag     bool
	simulateFlag   bool
)

func init() {
	flag.StringVar(&configFlag, "config", "kinect.yaml", "path to the yaml configuration file")
	flag.StringVar(&generationFlag, "generation", "", "device generation: freenect2 or kinectone")
	flag.IntVar(&deviceFlag, "device", 0, "index of the device to open")
	flag.StringVar(&pipelineFlag, "pipeline", "", "depth pipeline: default, cpu, opengl, opencl or cuda")
	flag.Float64Var(&maxDepthFlag, "max-depth", 0, "depth in millimetres shown as white")
	flag.StringVar(&paletteFlag, "palette", "", "depth palette: grayscale or falsecolor")
	flag.BoolVar(&mirrorFlag, "mirror", false, "mirror both images")
	flag.BoolVar(&simulateFlag, "simulate", false, "use a simulated device instead of the native driver")
}

func main() {
	flag.Parse()

	logger := newLogger()
	slog.SetDefault(logger)

	cfg, err := config.Load(configFlag)
	if err != nil {
		log.Fatalf("could not load configuration: %s", err)
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %s", err)
	}

	drv, err := openDriver(simulateFlag)
	if err != nil {
		log.Fatalf("could not open driver: %s", err)
	}

	registry := kinect.NewRegistry(drv, logger)
	count, err := registry.DeviceCount()
	if err != nil {
		log.Fatalf("could not count devices: %s", err)
	}
	logger.Info("kinect devices detected", "count", count)

	sessionConfig, err := cfg.Session(logger)
	if err != nil {
		log.Fatalf("could not configure session: %s", err)
	}
	session, err := registry.Open(sessionConfig)
	if err != nil {
		log.Fatalf("could not open kinect: %s", err)
	}
	defer session.Close()

	composer := display.NewComposer(session.Generation())
	composer.Mirror = cfg.Mirror

	window := display.NewWindow("Kinect", composer.Size(), logger)
	window.Recycle = composer.Release

	unsubscribe := session.Subscribe(func(p kinect.Pair) {
		img, err := composer.Compose(p)
		if err != nil {
			logger.Warn("could not compose frame", "error", err)
			return
		}
		window.Present(img)
	})
	defer unsubscribe()

	if err := session.Start(); err != nil {
		log.Fatalf("could not start capture: %s", err)
	}

	interrupted, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logStats(gctx, logger, session, window)
		return nil
	})

	// The window loop only ends on a window event, so an interrupt leaves
	// from here.
	go func() {
		select {
		case <-interrupted.Done():
			if err := session.Close(); err != nil {
				logger.Error("could not close session", "error", err)
			}
			os.Exit(0)
		case <-ctx.Done():
		}
	}()

	driver.Main(window.Display)

	cancel()
	g.Wait()

	if err := <-window.Done(); err != nil {
		logger.Error("display stopped", "error", err)
	}
	if err := session.Stop(); err != nil {
		logger.Error("could not stop capture", "error", err)
	}
	logger.Info("session finished", "stats", session.Stats())
}

func applyFlags(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "generation":
			cfg.Generation = generationFlag
		case "device":
			cfg.Device = deviceFlag
		case "pipeline":
			cfg.Pipeline = pipelineFlag
		case "max-depth":
			cfg.MaxDepth = float32(maxDepthFlag)
		case "palette":
			cfg.Palette = paletteFlag
		case "mirror":
			cfg.Mirror = mirrorFlag
		}
	})
}

func openDriver(simulate bool) (freenect2.Driver, error) {
	if simulate {
		return simdriver.New(1), nil
	}
	return freenect2.Open()
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func logStats(ctx context.Context, logger *slog.Logger, session *kinect.Session, window *display.Window) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := session.Stats()
			logger.Debug("capture stats",
				"color", stats.ColorFrames,
				"depth", stats.DepthFrames,
				"pairs", stats.Pairs,
				"ignored", stats.Ignored,
				"errors", stats.CallbackErrors,
				"dropped", window.Dropped())
		}
	}
}
