package depthstream

import (
	"context"
	"io"
	"net"
	"net/netip"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"essaim.dev/depthsense/sensor"
)

// Source is the part of a device context the server reads frames from.
type Source interface {
	Update() error
	Enabled(kind sensor.NodeKind) bool
	FrameID() uint64

	DepthWidth() int
	DepthHeight() int
	DepthMap(dst []int) (int, error)
	SceneMap(dst []int) (int, error)
}

// Server publishes one silhouette per frame of its Source. The silhouette is taken from the
// scene labels when the scene node is enabled, and from a depth threshold otherwise.
type Server struct {
	conn   io.WriteCloser
	src    Source
	logger *zap.SugaredLogger

	depthThresholdMu sync.RWMutex
	depthThreshold   int

	encoder *zstd.Encoder
	samples []int
	frame   Frame
	packet  []byte
}

// NewServer returns a server sending to the multicast group addr.
func NewServer(addr netip.AddrPort, src Source, logger *zap.SugaredLogger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	conn, err := net.DialUDP("udp4", nil, net.UDPAddrFromAddrPort(addr))
	if err != nil {
		return nil, errors.Wrap(err, "could not dial udp address")
	}
	if err := conn.SetWriteBuffer(maxPacketSize); err != nil {
		logger.Warnw("could not set write buffer", "error", err)
	}

	s, err := newServer(conn, src, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func newServer(conn io.WriteCloser, src Source, logger *zap.SugaredLogger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, errors.Wrap(err, "could not create encoder")
	}

	return &Server{
		conn:           conn,
		src:            src,
		logger:         logger,
		depthThreshold: DefaultThreshold,
		encoder:        encoder,
	}, nil
}

func (s *Server) Close() error {
	s.encoder.Close()
	return s.conn.Close()
}

// SetDepthThreshold sets the distance used when no scene segmentation is available.
func (s *Server) SetDepthThreshold(threshold int) {
	s.depthThresholdMu.Lock()
	defer s.depthThresholdMu.Unlock()

	s.depthThreshold = threshold
}

func (s *Server) threshold() int {
	s.depthThresholdMu.RLock()
	defer s.depthThresholdMu.RUnlock()

	return s.depthThreshold
}

// Publish waits for the next frame and sends its silhouette.
func (s *Server) Publish() error {
	if err := s.capture(); err != nil {
		return err
	}
	return s.send()
}

func (s *Server) capture() error {
	if err := s.src.Update(); err != nil {
		return errors.Wrap(err, "could not update device")
	}

	w, h := s.src.DepthWidth(), s.src.DepthHeight()
	if cap(s.samples) < w*h {
		s.samples = make([]int, w*h)
	}
	s.samples = s.samples[:w*h]

	if s.src.Enabled(sensor.NodeScene) {
		if _, err := s.src.SceneMap(s.samples); err != nil {
			return errors.Wrap(err, "could not read scene")
		}
		s.frame.FromScene(w, h, s.samples)
	} else {
		if _, err := s.src.DepthMap(s.samples); err != nil {
			return errors.Wrap(err, "could not read depth")
		}
		s.frame.FromDepth(w, h, s.samples, s.threshold())
	}
	s.frame.FrameID = s.src.FrameID()
	return nil
}

func (s *Server) send() error {
	if len(s.frame.Bits) > maxFrameBytes {
		return errors.Errorf("%dx%d frame is too large to publish", s.frame.Width, s.frame.Height)
	}
	s.packet = s.frame.AppendPacket(s.encoder, s.packet[:0])
	if len(s.packet) > maxPacketSize {
		return errors.Errorf("frame %d does not fit a datagram (%d bytes)", s.frame.FrameID, len(s.packet))
	}
	if _, err := s.conn.Write(s.packet); err != nil {
		return errors.Wrap(err, "could not send frame")
	}
	return nil
}

// Run publishes frames until ctx is done or the device fails. Frames that cannot be sent are
// logged and dropped.
func (s *Server) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "context canceled")
		default:
		}

		if err := s.capture(); err != nil {
			return err
		}
		if err := s.send(); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.logger.Warnw("dropping frame", "frame", s.frame.FrameID, "error", err)
		}
	}
}
