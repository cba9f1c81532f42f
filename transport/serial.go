package transport

import (
	"bufio"
	"context"
	"fmt"

	"go.bug.st/serial"

	"github.com/klingtnet/goosc/osc"
)

// SerialServer reads SLIP-framed OSC packets from a serial line and
// dispatches them. This mirrors the TCP 1.1 SLIP framing exactly; only the
// underlying io.ReadWriter differs.
type SerialServer struct {
	port       serial.Port
	dispatcher *osc.Dispatcher
	kind       ServerKind
}

// OpenSerial opens device at baudRate and returns a server ready to Serve
// from it.
func OpenSerial(device string, baudRate int, dispatcher *osc.Dispatcher, kind ServerKind) (*SerialServer, error) {
	port, err := serial.Open(device, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial device %q: %w", device, err)
	}

	return &SerialServer{port: port, dispatcher: dispatcher, kind: kind}, nil
}

// Close closes the serial port, unblocking any pending Serve call.
func (s *SerialServer) Close() error {
	return s.port.Close()
}

// Serve reads SLIP frames from the serial port until ctx is cancelled or
// the port is closed. A serial line has no peer address, so handlers
// mapped with osc.WithReplyAddress receive a nil net.Addr.
func (s *SerialServer) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.port.Close()
	}()

	scanner := bufio.NewScanner(s.port)
	scanner.Buffer(make([]byte, 4096), BufSizeHuge)
	scanner.Split(osc.SlipSplitter)

	rw := &serialReplyWriter{port: s.port}

	for scanner.Scan() {
		frame := scanner.Bytes()
		raw, err := osc.SlipDecode(frame)
		if err != nil {
			continue
		}

		decoded := make([]byte, len(raw))
		copy(decoded, raw)

		dispatchPacket(ctx, s.dispatcher, s.kind, decoded, nil, rw)
	}

	if ctx.Err() != nil {
		return nil
	}
	return scanner.Err()
}

type serialReplyWriter struct {
	port serial.Port
}

func (w *serialReplyWriter) writeReply(reply osc.Reply) error {
	encoded, err := encodeReply(reply)
	if err != nil {
		return err
	}
	_, err = w.port.Write(osc.SlipEncode(encoded))
	return err
}
