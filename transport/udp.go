package transport

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/sync/errgroup"

	"github.com/klingtnet/goosc/osc"
)

// UDPServer receives OSC packets over a UDP socket and dispatches them.
// It keeps and re-uses an internal read buffer to avoid allocating on
// every datagram, the same trick the VMC-over-UDP reader in this codebase's
// ancestry relied on.
//
// A UDP datagram has no return path of its own, so any Reply a handler
// produces is discarded; map a handler with osc.WithReplyAddress if it
// needs to answer the sender itself (e.g. over its own outbound socket).
type UDPServer struct {
	conn       net.PacketConn
	buf        []byte
	dispatcher *osc.Dispatcher
	kind       ServerKind
}

// NewUDPServer wraps an already-bound net.PacketConn. Use one of the
// BufSize* constants unless a specific MTU is known to be larger.
func NewUDPServer(conn net.PacketConn, bufSize int, dispatcher *osc.Dispatcher, kind ServerKind) *UDPServer {
	return &UDPServer{
		conn:       conn,
		buf:        make([]byte, bufSize),
		dispatcher: dispatcher,
		kind:       kind,
	}
}

// ListenUDP binds a new UDP socket at address and returns a server ready to
// Serve from it.
func ListenUDP(address string, bufSize int, dispatcher *osc.Dispatcher, kind ServerKind) (*UDPServer, error) {
	conn, err := net.ListenPacket("udp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %q: %w", address, err)
	}

	return NewUDPServer(conn, bufSize, dispatcher, kind), nil
}

// LocalAddr returns the address the server is bound to.
func (s *UDPServer) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// Close closes the underlying socket, unblocking any pending Serve call.
func (s *UDPServer) Close() error {
	return s.conn.Close()
}

// Serve reads datagrams until ctx is cancelled or the connection is closed.
// Each datagram is a complete OSC packet by definition (RFC-style framing
// is unnecessary over UDP); Blocking dispatches inline, Threaded and
// CooperativeAsync hand each datagram to its own goroutine supervised by
// an errgroup so that one bad connection doesn't take down the group.
func (s *UDPServer) Serve(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	go func() {
		<-ctx.Done()
		_ = s.conn.Close()
	}()

	for {
		n, peer, err := s.conn.ReadFrom(s.buf)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return fmt.Errorf("failed to read from the UDP connection: %w", err)
		}

		raw := make([]byte, n)
		copy(raw, s.buf[:n])

		if s.kind == Blocking {
			dispatchPacket(ctx, s.dispatcher, s.kind, raw, peer, discardReplies{})
			continue
		}

		group.Go(func() error {
			dispatchPacket(ctx, s.dispatcher, s.kind, raw, peer, discardReplies{})
			return nil
		})
	}

	return group.Wait()
}

// Client sends OSC packets to a fixed UDP peer. It only sends: it has no
// method for reading replies from its socket.
type Client struct {
	conn net.Conn
}

// DialUDP opens a UDP "connection" (a fixed-peer socket; UDP itself stays
// connectionless) to address.
func DialUDP(address string) (*Client, error) {
	conn, err := net.Dial("udp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %q: %w", address, err)
	}
	return &Client{conn: conn}, nil
}

// Send encodes packet and writes it as a single datagram.
func (c *Client) Send(packet osc.Packet) error {
	data, err := packet.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to encode packet: %w", err)
	}
	_, err = c.conn.Write(data)
	return err
}

// Close closes the client's socket.
func (c *Client) Close() error {
	return c.conn.Close()
}
