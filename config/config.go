// Package config loads the YAML settings shared by the kinect commands.
package config

import (
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"essaim.dev/freenect2/freenect2"
	"essaim.dev/freenect2/kinect"
	"essaim.dev/freenect2/pixel"
)

const (
	DefaultMaxDepth   = 4500
	DefaultStreamAddr = "224.76.78.75:20810"
	DefaultThreshold  = 2000
	DefaultColor      = "#ffffff"
)

type Config struct {
	Generation string  `yaml:"generation"` // freenect2, kinectone
	Device     int     `yaml:"device"`
	Pipeline   string  `yaml:"pipeline"` // default, cpu, opengl, opencl, cuda
	MaxDepth   float32 `yaml:"max_depth"` // millimetres
	Palette    string  `yaml:"palette"`   // grayscale, falsecolor
	Mirror     bool    `yaml:"mirror"`

	Stream StreamConfig `yaml:"stream"`
}

type StreamConfig struct {
	Addr string `yaml:"addr"`
	// Threshold is the far edge of the mask in millimetres.
	Threshold float32 `yaml:"threshold"`
	Color     string  `yaml:"color"`
}

func DefaultConfig() *Config {
	return &Config{
		Generation: kinect.Freenect2.Name,
		Device:     0,
		Pipeline:   freenect2.PipelineDefault.String(),
		MaxDepth:   DefaultMaxDepth,
		Palette:    "grayscale",
		Stream: StreamConfig{
			Addr:      DefaultStreamAddr,
			Threshold: DefaultThreshold,
			Color:     DefaultColor,
		},
	}
}

// Load reads path on top of the defaults. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("could not read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("could not parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate resets out of range numbers to their defaults and rejects names
// that do not resolve.
func (c *Config) Validate() error {
	if c.MaxDepth <= 0 {
		c.MaxDepth = DefaultMaxDepth
	}
	if c.Stream.Threshold <= 0 {
		c.Stream.Threshold = DefaultThreshold
	}
	if c.Stream.Threshold > c.MaxDepth {
		c.Stream.Threshold = c.MaxDepth
	}
	if c.Stream.Addr == "" {
		c.Stream.Addr = DefaultStreamAddr
	}
	if c.Stream.Color == "" {
		c.Stream.Color = DefaultColor
	}

	var errs []error
	if c.Device < 0 {
		errs = append(errs, fmt.Errorf("device index %d is negative", c.Device))
	}
	if _, err := kinect.GenerationByName(c.Generation); err != nil {
		errs = append(errs, err)
	}
	if _, err := freenect2.ParsePipeline(c.Pipeline); err != nil {
		errs = append(errs, err)
	}
	if _, err := pixel.PaletteByName(c.Palette); err != nil {
		errs = append(errs, err)
	}
	if _, err := net.ResolveUDPAddr("udp", c.Stream.Addr); err != nil {
		errs = append(errs, fmt.Errorf("stream address %q: %w", c.Stream.Addr, err))
	}
	if _, err := ParseColor(c.Stream.Color); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Session builds the capture configuration described by c.
func (c *Config) Session(logger *slog.Logger) (kinect.Config, error) {
	gen, err := kinect.GenerationByName(c.Generation)
	if err != nil {
		return kinect.Config{}, err
	}
	pipeline, err := freenect2.ParsePipeline(c.Pipeline)
	if err != nil {
		return kinect.Config{}, err
	}
	palette, err := pixel.PaletteByName(c.Palette)
	if err != nil {
		return kinect.Config{}, err
	}

	return kinect.Config{
		Generation:  gen,
		DeviceIndex: c.Device,
		Pipeline:    pipeline,
		MaxDepth:    c.MaxDepth,
		Palette:     palette,
		Logger:      logger,
	}, nil
}

// ParseColor reads an opaque color written as #rrggbb or rrggbb.
func ParseColor(s string) (color.RGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 {
		return color.RGBA{}, fmt.Errorf("color %q is not #rrggbb", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("color %q is not #rrggbb", s)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}
