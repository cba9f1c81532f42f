package transport

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"net"

	"golang.org/x/sync/errgroup"

	"github.com/klingtnet/goosc/osc"
)

// StreamFraming selects how OSC packets are delimited on a TCP byte stream.
type StreamFraming int

const (
	// FramingLengthPrefixed is OSC 1.0: each packet is preceded by its
	// length as a 4-byte big-endian integer.
	FramingLengthPrefixed StreamFraming = iota
	// FramingSLIP is OSC 1.1: each packet is SLIP-encoded (RFC 1055) and
	// delimited by the END byte.
	FramingSLIP
)

// TCPServer accepts connections and dispatches the OSC packets framed on
// each, writing any Reply a handler produces back over the same
// connection it arrived on.
type TCPServer struct {
	listener   net.Listener
	dispatcher *osc.Dispatcher
	kind       ServerKind
	framing    StreamFraming
}

// ListenTCP binds a new TCP listener at address.
func ListenTCP(address string, dispatcher *osc.Dispatcher, kind ServerKind, framing StreamFraming) (*TCPServer, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %q: %w", address, err)
	}

	return &TCPServer{listener: listener, dispatcher: dispatcher, kind: kind, framing: framing}, nil
}

// LocalAddr returns the address the server is bound to.
func (s *TCPServer) LocalAddr() net.Addr {
	return s.listener.Addr()
}

// Close closes the listener, unblocking any pending Serve call. It does
// not close connections already accepted.
func (s *TCPServer) Close() error {
	return s.listener.Close()
}

// Serve accepts connections until ctx is cancelled or the listener is
// closed. Each connection is served on its own goroutine. A read error
// ends that connection while the server keeps accepting; a frame that
// fails to decode is skipped and the connection keeps being read.
func (s *TCPServer) Serve(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	go func() {
		<-ctx.Done()
		_ = s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return fmt.Errorf("failed to accept connection: %w", err)
		}

		group.Go(func() error {
			s.serveConn(ctx, conn)
			return nil
		})
	}

	return group.Wait()
}

func (s *TCPServer) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	rw := &connReplyWriter{conn: conn, framing: s.framing}

	switch s.framing {
	case FramingLengthPrefixed:
		s.serveLengthPrefixed(ctx, conn, rw)
	case FramingSLIP:
		s.serveSLIP(ctx, conn, rw)
	}
}

func (s *TCPServer) serveLengthPrefixed(ctx context.Context, conn net.Conn, rw replyWriter) {
	reader := bufio.NewReader(conn)

	for {
		var length uint32
		if err := binary.Read(reader, binary.BigEndian, &length); err != nil {
			return
		}

		raw := make([]byte, length)
		if _, err := readFull(reader, raw); err != nil {
			return
		}

		if s.kind == Blocking || s.kind == CooperativeAsync {
			dispatchPacket(ctx, s.dispatcher, s.kind, raw, conn.RemoteAddr(), rw)
			continue
		}

		go dispatchPacket(ctx, s.dispatcher, s.kind, raw, conn.RemoteAddr(), rw)
	}
}

func (s *TCPServer) serveSLIP(ctx context.Context, conn net.Conn, rw replyWriter) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), BufSizeHuge)
	scanner.Split(osc.SlipSplitter)

	for scanner.Scan() {
		frame := scanner.Bytes()
		raw, err := osc.SlipDecode(frame)
		if err != nil {
			continue
		}

		decoded := make([]byte, len(raw))
		copy(decoded, raw)

		if s.kind == Blocking || s.kind == CooperativeAsync {
			dispatchPacket(ctx, s.dispatcher, s.kind, decoded, conn.RemoteAddr(), rw)
			continue
		}

		go dispatchPacket(ctx, s.dispatcher, s.kind, decoded, conn.RemoteAddr(), rw)
	}
}

func readFull(reader *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := reader.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

type connReplyWriter struct {
	conn    net.Conn
	framing StreamFraming
}

func (w *connReplyWriter) writeReply(reply osc.Reply) error {
	encoded, err := encodeReply(reply)
	if err != nil {
		return err
	}

	switch w.framing {
	case FramingLengthPrefixed:
		var lengthPrefix [4]byte
		binary.BigEndian.PutUint32(lengthPrefix[:], uint32(len(encoded)))
		if _, err := w.conn.Write(lengthPrefix[:]); err != nil {
			return err
		}
		_, err = w.conn.Write(encoded)
		return err
	case FramingSLIP:
		_, err = w.conn.Write(osc.SlipEncode(encoded))
		return err
	default:
		return nil
	}
}

// TCPClient sends and receives framed OSC packets over a single TCP
// connection.
type TCPClient struct {
	conn    net.Conn
	reader  *bufio.Reader
	framing StreamFraming
}

// DialTCP opens a framed TCP connection to address.
func DialTCP(address string, framing StreamFraming) (*TCPClient, error) {
	conn, err := net.Dial("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %q: %w", address, err)
	}

	return &TCPClient{conn: conn, reader: bufio.NewReader(conn), framing: framing}, nil
}

// Send encodes and frames packet according to the client's framing mode.
func (c *TCPClient) Send(packet osc.Packet) error {
	encoded, err := packet.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to encode packet: %w", err)
	}

	switch c.framing {
	case FramingLengthPrefixed:
		var lengthPrefix [4]byte
		binary.BigEndian.PutUint32(lengthPrefix[:], uint32(len(encoded)))
		if _, err := c.conn.Write(lengthPrefix[:]); err != nil {
			return err
		}
		_, err = c.conn.Write(encoded)
		return err
	case FramingSLIP:
		_, err = c.conn.Write(osc.SlipEncode(encoded))
		return err
	default:
		return nil
	}
}

// Receive blocks for the next framed packet on the connection and decodes
// it.
func (c *TCPClient) Receive() (*osc.Packet, error) {
	switch c.framing {
	case FramingLengthPrefixed:
		var length uint32
		if err := binary.Read(c.reader, binary.BigEndian, &length); err != nil {
			return nil, err
		}
		raw := make([]byte, length)
		if _, err := readFull(c.reader, raw); err != nil {
			return nil, err
		}
		packet, _, err := osc.ReadPacket(raw)
		return packet, err
	case FramingSLIP:
		frame, err := c.reader.ReadBytes(0xC0)
		for err == nil && len(frame) == 1 {
			// a lone END byte opens a frame (or is a keep-alive); read on
			// to the END that closes it
			frame, err = c.reader.ReadBytes(0xC0)
		}
		if err != nil {
			return nil, err
		}
		raw, err := osc.SlipDecode(frame)
		if err != nil {
			return nil, err
		}
		packet, _, err := osc.ReadPacket(raw)
		return packet, err
	default:
		return nil, fmt.Errorf("unknown framing mode")
	}
}

// Close closes the underlying connection.
func (c *TCPClient) Close() error {
	return c.conn.Close()
}
