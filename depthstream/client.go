package depthstream

import (
	"context"
	"image"
	"image/color"
	"io"
	"net"
	"net/netip"
	"sync"
	"time"

	bclock "github.com/benbjohnson/clock"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"essaim.dev/depthsense/render"
)

const (
	readTimeout = 500 * time.Millisecond

	// A frame older than the latest one is taken as a restarted server when it is more than
	// reorderWindow frames behind, or when nothing arrived for restartGap.
	reorderWindow = 64
	restartGap    = 2 * time.Second
)

type deadlineReader interface {
	SetReadDeadline(t time.Time) error
}

// Client receives the silhouettes published by a Server and keeps the latest one.
type Client struct {
	conn   io.ReadCloser
	logger *zap.SugaredLogger
	clk    bclock.Clock

	decoder *zstd.Decoder

	frameMu sync.RWMutex
	frame    Frame
	received time.Time
	dropped  int
}

// NewClient returns a client listening on the multicast group addr.
func NewClient(addr netip.AddrPort, logger *zap.SugaredLogger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	conn, err := net.ListenMulticastUDP("udp4", nil, net.UDPAddrFromAddrPort(addr))
	if err != nil {
		return nil, errors.Wrap(err, "could not listen on multicast address")
	}
	if err := conn.SetReadBuffer(maxPacketSize); err != nil {
		logger.Warnw("could not set read buffer", "error", err)
	}

	c, err := newClient(conn, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func newClient(conn io.ReadCloser, logger *zap.SugaredLogger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	decoder, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxFrameBytes))
	if err != nil {
		return nil, errors.Wrap(err, "could not create decoder")
	}

	return &Client{
		conn:    conn,
		logger:  logger,
		clk:     bclock.New(),
		decoder: decoder,
	}, nil
}

func (c *Client) Close() error {
	c.decoder.Close()
	return c.conn.Close()
}

// Run receives frames until ctx is done or the connection is closed. Malformed packets are
// logged and dropped.
func (c *Client) Run(ctx context.Context) error {
	b := make([]byte, maxPacketSize)
	dr, hasDeadline := c.conn.(deadlineReader)

	for {
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "context canceled")
		default:
		}

		if hasDeadline {
			if err := dr.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
				return errors.Wrap(err, "could not set read deadline")
			}
		}

		n, err := c.conn.Read(b)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return errors.Wrap(err, "connection closed")
		}

		if err := c.handle(b[:n]); err != nil {
			c.logger.Warnw("dropping packet", "size", n, "error", err)
		}
	}
}

func (c *Client) handle(packet []byte) error {
	f, err := DecodePacket(c.decoder, packet)

	c.frameMu.Lock()
	defer c.frameMu.Unlock()

	if err != nil {
		c.dropped++
		return err
	}
	now := c.clk.Now()
	if f.FrameID < c.frame.FrameID {
		restarted := c.frame.FrameID-f.FrameID > reorderWindow || now.Sub(c.received) > restartGap
		if !restarted {
			c.dropped++
			return errors.Errorf("frame %d arrived after frame %d", f.FrameID, c.frame.FrameID)
		}
		c.logger.Infow("server restarted", "frame", f.FrameID, "previous", c.frame.FrameID)
	}
	c.frame = f
	c.received = now
	return nil
}

// Frame returns the latest frame received.
func (c *Client) Frame() Frame {
	c.frameMu.RLock()
	defer c.frameMu.RUnlock()

	return c.frame
}

// Dropped returns the number of packets rejected so far.
func (c *Client) Dropped() int {
	c.frameMu.RLock()
	defer c.frameMu.RUnlock()

	return c.dropped
}

// RenderImage draws the latest silhouette in col, mirrored so that it faces the viewer.
func (c *Client) RenderImage(col color.Color) *image.RGBA {
	return render.FlipHorizontal(c.Frame().RGBA(col))
}
