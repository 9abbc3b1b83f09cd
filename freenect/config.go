// Package freenect implements a Go binding for the libfreenect library and a sensor driver for
// the Kinect built on it. The binding and the driver are only compiled with the freenect build
// tag; the configuration is always available.
package freenect

import (
	"encoding/json"
	"io"
	"math"
	"slices"
	"time"

	"github.com/pkg/errors"
	"github.com/tailscale/hujson"
)

// DriverName is the name the driver registers under.
const DriverName = "freenect"

// Kinect depth camera field of view, in radians.
const (
	HorizontalFOV = 58.5 * math.Pi / 180
	VerticalFOV   = 45.6 * math.Pi / 180
)

// LEDNames lists the LED settings accepted in Config.
var LEDNames = []string{"off", "green", "red", "yellow", "blink-green", "blink-red-yellow"}

// Config is the device configuration, read as JSON with comments allowed.
type Config struct {
	// DeviceIndex selects the device when several are plugged in.
	DeviceIndex int `json:"device_index"`
	// LED is set while the device is open, and back to "off" on close.
	LED string `json:"led"`
	// FrameTimeout bounds WaitAndUpdateAll, as a duration string like "2s".
	FrameTimeout string `json:"frame_timeout"`
}

// DefaultConfig opens the first device with a green LED.
func DefaultConfig() Config {
	return Config{LED: "green", FrameTimeout: "2s"}
}

// ParseConfig reads a configuration. A nil reader yields DefaultConfig; fields absent from
// the document keep their default.
func ParseConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	if r == nil {
		return cfg, nil
	}

	b, err := io.ReadAll(r)
	if err != nil {
		return Config{}, errors.Wrap(err, "could not read config")
	}
	b, err = hujson.Standardize(b)
	if err != nil {
		return Config{}, errors.Wrap(err, "could not parse config")
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "could not decode config")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.DeviceIndex < 0 {
		return errors.Errorf("invalid device index %d", c.DeviceIndex)
	}
	if !slices.Contains(LEDNames, c.LED) {
		return errors.Errorf("unknown led setting %q", c.LED)
	}
	if _, err := c.Timeout(); err != nil {
		return err
	}
	return nil
}

// Timeout returns the parsed FrameTimeout.
func (c Config) Timeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.FrameTimeout)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid frame timeout %q", c.FrameTimeout)
	}
	if d <= 0 {
		return 0, errors.Errorf("frame timeout must be positive, got %s", d)
	}
	return d, nil
}
