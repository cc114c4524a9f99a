package main

import (
	"context"
	"errors"
	"flag"
	"image"
	"log"
	"log/slog"
	"net/netip"
	"os"
	"time"

	"golang.org/x/exp/shiny/driver"
	"golang.org/x/sync/errgroup"

	"essaim.dev/freenect2/config"
	"essaim.dev/freenect2/depthstream"
	"essaim.dev/freenect2/display"
	"essaim.dev/freenect2/freenect2"
)

const refreshRate = 50 * time.Millisecond

var (
	configFlag     string
	streamAddrFlag string
	colorFlag      string
)

func init() {
	flag.StringVar(&configFlag, "config", "kinect.yaml", "path to the yaml configuration file")
	flag.StringVar(&streamAddrFlag, "stream-addr", "", "multicast address and port the depth mask is received on")
	flag.StringVar(&colorFlag, "color", "", "mask color as #rrggbb")
}

func main() {
	flag.Parse()

	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(configFlag)
	if err != nil {
		log.Fatalf("could not load configuration: %s", err)
	}
	if streamAddrFlag != "" {
		cfg.Stream.Addr = streamAddrFlag
	}
	if colorFlag != "" {
		cfg.Stream.Color = colorFlag
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %s", err)
	}

	addr, err := netip.ParseAddrPort(cfg.Stream.Addr)
	if err != nil {
		log.Fatalf("could not parse stream address: %s", err)
	}
	col, err := config.ParseColor(cfg.Stream.Color)
	if err != nil {
		log.Fatalf("could not parse mask color: %s", err)
	}

	client, err := depthstream.NewClient(addr, logger)
	if err != nil {
		log.Fatalf("could not create depthstream client: %s", err)
	}
	defer client.Close()

	window := display.NewWindow("Kinect depth mask", image.Pt(freenect2.DepthWidth, freenect2.DepthHeight), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return client.Run(ctx)
	})
	g.Go(func() error {
		refresh := time.NewTicker(refreshRate)
		defer refresh.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-refresh.C:
				window.Present(client.RenderImage(col))
			}
		}
	})

	driver.Main(window.Display)

	cancel()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("could not run depthstream client", "error", err)
	}
	if err := <-window.Done(); err != nil {
		log.Fatalf("display stopped with error: %s", err)
	}
}

