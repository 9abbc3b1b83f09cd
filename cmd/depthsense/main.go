package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"essaim.dev/depthsense/device"
	"essaim.dev/depthsense/render"
	"essaim.dev/depthsense/sensor"

	_ "essaim.dev/depthsense/freenect"
	_ "essaim.dev/depthsense/sensor/fake"
)

var (
	driverFlag   string
	configFlag   string
	framesFlag   int
	snapshotFlag string
)

func init() {
	flag.StringVar(&driverFlag, "driver", "fake", "sensor driver to use")
	flag.StringVar(&configFlag, "config", "", "driver configuration file, driver defaults when empty")
	flag.IntVar(&framesFlag, "frames", 0, "number of frames to process, 0 to run until interrupted")
	flag.StringVar(&snapshotFlag, "snapshot", "", "write the last depth image to this png file")
}

// skeletons calibrates every new user and tracks it once calibrated.
type skeletons struct {
	c      *device.Context
	logger *zap.SugaredLogger
}

func (s *skeletons) OnNewUser(user sensor.UserID) {
	s.logger.Infow("new user", "user", user)
	if err := s.c.RequestCalibration(user, false); err != nil {
		s.logger.Warnw("could not request calibration", "user", user, "error", err)
	}
}

func (s *skeletons) OnLostUser(user sensor.UserID) {
	s.logger.Infow("lost user", "user", user)
}

func (s *skeletons) OnCalibrationStarted(user sensor.UserID) {
	s.logger.Debugw("calibration started", "user", user)
}

func (s *skeletons) OnCalibrationEnded(user sensor.UserID, success bool) {
	s.logger.Infow("calibration ended", "user", user, "success", success)

	var err error
	if success {
		err = s.c.StartTracking(user)
	} else {
		err = s.c.RequestCalibration(user, true)
	}
	if err != nil {
		s.logger.Warnw("could not follow up calibration", "user", user, "error", err)
	}
}

func openConfig(path string) (io.ReadCloser, error) {
	if path == "" {
		return nil, nil
	}
	return os.Open(path)
}

func main() {
	flag.Parse()

	zl, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("could not create logger: %s", err)
	}
	defer zl.Sync()
	logger := zl.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		stop()
		logger.Fatalw("depthsense stopped", "error", err)
	}
}

func run(ctx context.Context, logger *zap.SugaredLogger) (err error) {
	driver, err := sensor.New(driverFlag, logger.Named(driverFlag))
	if err != nil {
		return errors.Wrap(err, "could not create driver")
	}

	cfg, err := openConfig(configFlag)
	if err != nil {
		return errors.Wrap(err, "could not open config")
	}

	c := device.New(driver, logger)
	if cfg != nil {
		err = c.Init(cfg)
		cfg.Close()
	} else {
		err = c.Init(nil)
	}
	if err != nil {
		return errors.Wrapf(err, "could not initialize %s device", driverFlag)
	}
	defer func() {
		err = multierr.Append(err, c.Close())
	}()

	if err := c.EnableDepth(); err != nil {
		return errors.Wrap(err, "could not enable depth")
	}
	if err := c.EnableScene(); err != nil {
		logger.Infow("running without scene analysis", "error", err)
	}
	if err := c.EnableUser(sensor.SkeletonAll); err != nil {
		logger.Infow("running without user tracking", "error", err)
	} else if err := c.Observe(&skeletons{c: c, logger: logger}); err != nil {
		return errors.Wrap(err, "could not observe users")
	}

	for n := 0; framesFlag == 0 || n < framesFlag; n++ {
		if ctx.Err() != nil {
			break
		}
		if err := c.Update(); err != nil {
			return errors.Wrap(err, "could not update device")
		}

		for _, user := range c.Users() {
			if !c.IsTracking(user) {
				continue
			}
			head, err := c.JointPosition(user, sensor.JointHead)
			if err != nil {
				logger.Warnw("could not read head position", "user", user, "error", err)
				continue
			}
			logger.Debugw("head", "frame", c.FrameID(), "user", user, "position", head.Position, "confidence", head.Confidence)
		}
	}

	if snapshotFlag != "" {
		if err := snapshot(c, snapshotFlag); err != nil {
			return errors.Wrapf(err, "could not write snapshot %s", snapshotFlag)
		}
	}
	return nil
}

func snapshot(c *device.Context, path string) error {
	img, err := render.NewRenderer(c).Render()
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render.WritePNG(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
