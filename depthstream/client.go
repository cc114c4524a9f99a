package depthstream

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"essaim.dev/freenect2/freenect2"
	"essaim.dev/freenect2/pixel"
)

// Client receives masks sent by a Server and keeps the latest one.
type Client struct {
	conn    *net.UDPConn
	decoder *zstd.Decoder
	logger  *slog.Logger

	maskMu sync.RWMutex
	mask   *Mask
}

// NewClient joins addr when it is a multicast group and listens on it
// directly otherwise.
func NewClient(addr netip.AddrPort, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		conn *net.UDPConn
		err  error
	)
	if addr.Addr().IsMulticast() {
		conn, err = net.ListenMulticastUDP("udp4", nil, net.UDPAddrFromAddrPort(addr))
	} else {
		conn, err = net.ListenUDP("udp4", net.UDPAddrFromAddrPort(addr))
	}
	if err != nil {
		return nil, fmt.Errorf("could not listen on udp address: %w", err)
	}
	conn.SetReadBuffer(maxPacketSize)

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("could not create decoder: %w", err)
	}

	return &Client{
		conn:    conn,
		decoder: decoder,
		logger:  logger.With("addr", addr.String()),
	}, nil
}

// LocalAddr is the address the client receives on.
func (c *Client) LocalAddr() netip.AddrPort {
	ap := c.conn.LocalAddr().(*net.UDPAddr).AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

func (c *Client) Close() error {
	c.decoder.Close()
	return c.conn.Close()
}

// Run receives masks until ctx is done or the connection is closed.
func (c *Client) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	b := make([]byte, maxPacketSize)
	for {
		n, err := c.conn.Read(b)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("context canceled: %w", ctx.Err())
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("connection closed: %w", err)
			}
			c.logger.Warn("could not read mask", "error", err)
			continue
		}

		mask, err := decodeMask(c.decoder, b[:n])
		if err != nil {
			c.logger.Warn("could not decode received mask", "error", err)
			continue
		}

		c.maskMu.Lock()
		c.mask = mask
		c.maskMu.Unlock()
	}
}

// Latest returns the last mask received, or nil.
func (c *Client) Latest() *Mask {
	c.maskMu.RLock()
	defer c.maskMu.RUnlock()

	return c.mask
}

// RenderImage paints the latest mask with col, mirrored so the image reads
// like a mirror for someone facing the sensor. Before the first mask it
// returns a black depth-sized image.
func (c *Client) RenderImage(col color.Color) *image.RGBA {
	mask := c.Latest()
	if mask == nil {
		mask = NewMask(freenect2.DepthWidth, freenect2.DepthHeight)
	}

	img := mask.RGBA(col)
	pixel.FlipHorizontal(img)

	return img
}
