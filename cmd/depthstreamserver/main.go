package main

import (
	"context"
	"flag"
	"log"
	"net/netip"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"essaim.dev/depthsense/depthstream"
	"essaim.dev/depthsense/device"
	"essaim.dev/depthsense/sensor"

	_ "essaim.dev/depthsense/freenect"
	_ "essaim.dev/depthsense/sensor/fake"
)

var (
	streamAddrFlag string
	driverFlag     string
	configFlag     string
	thresholdFlag  int
)

func init() {
	flag.StringVar(&streamAddrFlag, "stream-addr", "224.76.78.75:20810", "multicast address and port silhouettes are published to")
	flag.StringVar(&driverFlag, "driver", "fake", "sensor driver to use")
	flag.StringVar(&configFlag, "config", "", "driver configuration file, driver defaults when empty")
	flag.IntVar(&thresholdFlag, "threshold", depthstream.DefaultThreshold, "depth in millimeters under which pixels are part of the silhouette")
}

func initDevice(c *device.Context, path string) error {
	if path == "" {
		return c.Init(nil)
	}
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "could not open config")
	}
	defer f.Close()
	return c.Init(f)
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

	if err := run(ctx, logger); err != nil && !errors.Is(err, context.Canceled) {
		stop()
		logger.Fatalw("depthstream server stopped", "error", err)
	}
}

func run(ctx context.Context, logger *zap.SugaredLogger) (err error) {
	addr, err := netip.ParseAddrPort(streamAddrFlag)
	if err != nil {
		return errors.Wrap(err, "could not parse stream address")
	}

	driver, err := sensor.New(driverFlag, logger.Named(driverFlag))
	if err != nil {
		return errors.Wrap(err, "could not create driver")
	}

	c := device.New(driver, logger)
	if err := initDevice(c, configFlag); err != nil {
		return errors.Wrapf(err, "could not initialize %s device", driverFlag)
	}
	defer func() {
		err = multierr.Append(err, c.Close())
	}()

	if err := c.EnableDepth(); err != nil {
		return errors.Wrap(err, "could not enable depth")
	}
	if err := c.EnableScene(); err != nil {
		logger.Infow("publishing depth silhouettes", "threshold", thresholdFlag, "error", err)
	}

	s, err := depthstream.NewServer(addr, c, logger.Named("depthstream"))
	if err != nil {
		return errors.Wrap(err, "could not create depthstream server")
	}
	defer func() {
		err = multierr.Append(err, s.Close())
	}()
	s.SetDepthThreshold(thresholdFlag)

	return s.Run(ctx)
}
