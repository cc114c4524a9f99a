package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/netip"
	"os"
	"os/signal"

	"golang.org/x/sync/errgroup"

	"essaim.dev/freenect2/config"
	"essaim.dev/freenect2/depthstream"
	"essaim.dev/freenect2/freenect2"
	"essaim.dev/freenect2/kinect"
	"essaim.dev/freenect2/simdriver"
)

var (
	configFlag     string
	streamAddrFlag string
	thresholdFlag  float64
	deviceFlag     int
	simulateFlag   bool
)

func init() {
	flag.StringVar(&configFlag, "config", "kinect.yaml", "path to the yaml configuration file")
	flag.StringVar(&streamAddrFlag, "stream-addr", "", "multicast address and port the depth mask is sent to")
	flag.Float64Var(&thresholdFlag, "threshold", 0, "depth in millimetres beyond which pixels are off")
	flag.IntVar(&deviceFlag, "device", 0, "index of the device to open")
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
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "stream-addr":
			cfg.Stream.Addr = streamAddrFlag
		case "threshold":
			cfg.Stream.Threshold = float32(thresholdFlag)
		case "device":
			cfg.Device = deviceFlag
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %s", err)
	}

	addr, err := netip.ParseAddrPort(cfg.Stream.Addr)
	if err != nil {
		log.Fatalf("could not parse stream address: %s", err)
	}

	server, err := depthstream.NewServer(addr, cfg.Stream.Threshold, logger)
	if err != nil {
		log.Fatalf("could not create depthstream server: %s", err)
	}
	defer server.Close()

	var drv freenect2.Driver
	if simulateFlag {
		drv = simdriver.New(1)
	} else if drv, err = freenect2.Open(); err != nil {
		log.Fatalf("could not open driver: %s", err)
	}

	sessionConfig, err := cfg.Session(logger)
	if err != nil {
		log.Fatalf("could not configure session: %s", err)
	}
	session, err := kinect.NewRegistry(drv, logger).Open(sessionConfig)
	if err != nil {
		log.Fatalf("could not open kinect: %s", err)
	}
	defer session.Close()

	unsubscribe := session.Subscribe(server.HandlePair)
	defer unsubscribe()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(ctx)
	})
	g.Go(func() error {
		if err := session.Start(); err != nil {
			return err
		}
		<-ctx.Done()
		return session.Stop()
	})

	logger.Info("streaming depth mask", "addr", addr.String(), "threshold", cfg.Stream.Threshold)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("could not run depthstream server: %s", err)
	}
	logger.Info("stream finished",
		"sent", server.Sent(),
		"dropped", server.Dropped(),
		"stats", session.Stats())
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
