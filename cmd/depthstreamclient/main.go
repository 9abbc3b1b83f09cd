package main

import (
	"context"
	"flag"
	"image/color"
	"log"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"essaim.dev/depthsense/depthstream"
	"essaim.dev/depthsense/render"
)

var (
	streamAddrFlag string
	intervalFlag   time.Duration
	snapshotFlag   string
)

func init() {
	flag.StringVar(&streamAddrFlag, "stream-addr", "224.76.78.75:20810", "multicast address and port silhouettes are received on")
	flag.DurationVar(&intervalFlag, "interval", time.Second, "how often the received silhouette is reported")
	flag.StringVar(&snapshotFlag, "snapshot", "", "keep the last silhouette in this png file")
}

func main() {
	flag.Parse()

	zl, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("could not create logger: %s", err)
	}
	defer zl.Sync()
	logger := zl.Sugar()

	addr, err := netip.ParseAddrPort(streamAddrFlag)
	if err != nil {
		logger.Fatalw("could not parse stream address", "error", err)
	}

	k, err := depthstream.NewClient(addr, logger.Named("depthstream"))
	if err != nil {
		logger.Fatalw("could not create depthstream client", "error", err)
	}
	defer k.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clientStopped := make(chan error, 1)
	go func() {
		clientStopped <- k.Run(ctx)
	}()

	ticker := time.NewTicker(intervalFlag)
	defer ticker.Stop()

	for {
		select {
		case err := <-clientStopped:
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Errorw("could not run depthstream client", "error", err)
			}
			return
		case <-ticker.C:
			report(k, logger)
		}
	}
}

func report(k *depthstream.Client, logger *zap.SugaredLogger) {
	f := k.Frame()
	logger.Infow("silhouette", "frame", f.FrameID, "width", f.Width, "height", f.Height, "pixels", f.Count(), "dropped", k.Dropped())

	if snapshotFlag == "" || f.FrameID == 0 {
		return
	}
	out, err := os.Create(snapshotFlag)
	if err != nil {
		logger.Warnw("could not create snapshot", "error", err)
		return
	}
	defer out.Close()
	if err := render.WritePNG(out, k.RenderImage(color.White)); err != nil {
		logger.Warnw("could not write snapshot", "error", err)
	}
}
