package fake

import (
	"encoding/json"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/tailscale/hujson"
)

// Resolution is a node resolution in pixels.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ScriptedUser makes the synthetic scene show a person between two frames.
type ScriptedUser struct {
	ID uint32 `json:"id"`
	// EnterFrame is the frame the user is first detected on.
	EnterFrame uint64 `json:"enter_frame"`
	// ExitFrame is the frame the user is lost on, 0 for never.
	ExitFrame uint64 `json:"exit_frame,omitempty"`
	// Distance from the sensor in millimeters.
	Distance uint16 `json:"distance"`
	// FailCalibrations is the number of calibration attempts that fail before one succeeds.
	FailCalibrations int `json:"fail_calibrations,omitempty"`
}

// Config is the fake device configuration. It is read as JSON with comments and trailing
// commas allowed.
type Config struct {
	Depth *Resolution `json:"depth,omitempty"`
	Image *Resolution `json:"image,omitempty"`
	IR    *Resolution `json:"ir,omitempty"`
	Scene bool        `json:"scene"`
	User  bool        `json:"user"`

	HorizontalFOV float64 `json:"horizontal_fov"`
	VerticalFOV   float64 `json:"vertical_fov"`

	// FrameInterval paces WaitAndUpdateAll, as a duration string like "33ms".
	FrameInterval string `json:"frame_interval,omitempty"`

	// Synthetic renders a background wall and the scripted users when no frame was staged.
	Synthetic bool `json:"synthetic"`
	// BackgroundDistance is the synthetic wall distance in millimeters.
	BackgroundDistance uint16 `json:"background_distance,omitempty"`
	// AutoCalibrate makes requested calibrations start on the next frame and end on the one
	// after.
	AutoCalibrate bool           `json:"auto_calibrate"`
	Users         []ScriptedUser `json:"users,omitempty"`
}

// DefaultConfig is a VGA device with every node available.
func DefaultConfig() Config {
	return Config{
		Depth:              &Resolution{Width: 640, Height: 480},
		Image:              &Resolution{Width: 640, Height: 480},
		IR:                 &Resolution{Width: 640, Height: 480},
		Scene:              true,
		User:               true,
		HorizontalFOV:      1.0144686,
		VerticalFOV:        0.7898261,
		BackgroundDistance: 3000,
	}
}

// ParseConfig reads a configuration. A nil reader yields DefaultConfig.
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

	// Absent nodes in the document mean absent nodes on the device.
	cfg.Depth, cfg.Image, cfg.IR = nil, nil, nil
	cfg.Scene, cfg.User = false, false
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "could not decode config")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	for name, res := range map[string]*Resolution{"depth": c.Depth, "image": c.Image, "ir": c.IR} {
		if res != nil && (res.Width <= 0 || res.Height <= 0) {
			return errors.Errorf("invalid %s resolution %dx%d", name, res.Width, res.Height)
		}
	}
	if (c.Scene || c.User) && c.Depth == nil {
		return errors.New("scene and user nodes need a depth node")
	}
	if c.Depth != nil && (c.HorizontalFOV <= 0 || c.VerticalFOV <= 0) {
		return errors.Errorf("invalid field of view %vx%v", c.HorizontalFOV, c.VerticalFOV)
	}
	if _, err := c.interval(); err != nil {
		return err
	}

	seen := map[uint32]bool{}
	for _, u := range c.Users {
		if u.ID == 0 {
			return errors.New("scripted user ids must be positive")
		}
		if seen[u.ID] {
			return errors.Errorf("scripted user %d appears twice", u.ID)
		}
		seen[u.ID] = true
		if u.ExitFrame != 0 && u.ExitFrame <= u.EnterFrame {
			return errors.Errorf("scripted user %d exits before entering", u.ID)
		}
	}
	return nil
}

func (c Config) interval() (time.Duration, error) {
	if c.FrameInterval == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.FrameInterval)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid frame interval %q", c.FrameInterval)
	}
	if d < 0 {
		return 0, errors.Errorf("negative frame interval %s", d)
	}
	return d, nil
}
