package depthstream

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"

	"github.com/klauspost/compress/zstd"

	"essaim.dev/freenect2/kinect"
)

// Server multicasts a thresholded mask of each depth frame it is handed.
type Server struct {
	conn    *net.UDPConn
	encoder *zstd.Encoder
	logger  *slog.Logger

	depthThresholdMu sync.RWMutex
	depthThreshold   float32

	masks   chan *Mask
	sent    atomic.Uint64
	dropped atomic.Uint64
}

func NewServer(addr netip.AddrPort, threshold float32, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := net.DialUDP("udp4", nil, net.UDPAddrFromAddrPort(addr))
	if err != nil {
		return nil, fmt.Errorf("could not dial udp address: %w", err)
	}
	conn.SetWriteBuffer(maxPacketSize)

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("could not create encoder: %w", err)
	}

	return &Server{
		conn:           conn,
		encoder:        encoder,
		logger:         logger.With("addr", addr.String()),
		depthThreshold: threshold,
		masks:          make(chan *Mask, 1),
	}, nil
}

func (s *Server) Close() error {
	s.encoder.Close()
	return s.conn.Close()
}

// SetDepthThreshold sets the far edge of the mask in millimetres.
func (s *Server) SetDepthThreshold(threshold float32) {
	s.depthThresholdMu.Lock()
	defer s.depthThresholdMu.Unlock()

	s.depthThreshold = threshold
}

func (s *Server) DepthThreshold() float32 {
	s.depthThresholdMu.RLock()
	defer s.depthThresholdMu.RUnlock()

	return s.depthThreshold
}

// HandlePair is a kinect.Session subscriber. It thresholds the depth frame
// and queues the mask for Run without blocking the capture thread. A mask
// still waiting when the next one arrives is replaced.
func (s *Server) HandlePair(p kinect.Pair) {
	mask := Threshold(p.Depth, thresholdLevel(s.DepthThreshold(), p.MaxDepth))
	mask.Seq = uint32(p.Seq)

	for {
		select {
		case s.masks <- mask:
			return
		default:
		}

		select {
		case <-s.masks:
			s.dropped.Add(1)
		default:
		}
	}
}

// Run sends queued masks until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context canceled: %w", ctx.Err())
		case mask := <-s.masks:
			packet := encodeMask(s.encoder, mask)
			if len(packet) > maxPacketSize {
				s.logger.Warn("mask too large for one datagram", "bytes", len(packet))
				continue
			}
			if _, err := s.conn.Write(packet); err != nil {
				s.logger.Warn("could not send mask", "seq", mask.Seq, "error", err)
				continue
			}
			s.sent.Add(1)
		}
	}
}

// Sent and Dropped count masks written to the network and masks replaced
// before Run picked them up.
func (s *Server) Sent() uint64 {
	return s.sent.Load()
}

func (s *Server) Dropped() uint64 {
	return s.dropped.Load()
}
