// Package transport implements the network surfaces OSC packets travel
// over: UDP datagrams, length-prefixed TCP (OSC 1.0), SLIP-framed TCP
// (OSC 1.1), and SLIP-framed serial lines. Every server variant decodes
// with the osc package and hands packets to a caller-supplied
// *osc.Dispatcher; the transport layer only concerns itself with framing
// and connection lifecycle.
package transport

import (
	"context"
	"net"

	"github.com/klingtnet/goosc/osc"
)

// ServerKind selects how a server processes incoming packets.
type ServerKind int

const (
	// Blocking processes one packet at a time on the goroutine that reads
	// it; a slow handler delays the next read.
	Blocking ServerKind = iota
	// Threaded makes the UDP and TCP servers dispatch each received packet
	// on its own goroutine, so a slow handler for one packet doesn't delay
	// reading the next. The serial server dispatches inline for every kind.
	Threaded
	// CooperativeAsync dispatches with osc.Dispatcher.AsyncDispatchPacket,
	// awaiting any MapAsync handler's channel before moving to the next
	// message within a packet. The UDP server runs each datagram's
	// dispatch on its own goroutine; the TCP and serial servers dispatch
	// inline on the reading goroutine, keeping per-connection order.
	CooperativeAsync
)

// Buffer size presets, carried over from the teacher's UDP server: the
// largest single read the OS can hand back for a given MTU class.
const (
	BufSizeMaxMTU = 1536
	BufSizeLarge  = 16384
	BufSizeHuge   = 65535
)

// replyWriter abstracts "how to send a Reply back", so the shared dispatch
// step in dispatchPacket works for both UDP (which discards replies: there is
// no return path for a connectionless datagram) and TCP (which writes them
// back over the same connection).
type replyWriter interface {
	writeReply(reply osc.Reply) error
}

type discardReplies struct{}

func (discardReplies) writeReply(osc.Reply) error { return nil }

func encodeReply(reply osc.Reply) ([]byte, error) {
	msg := osc.NewMessage(reply.Address, reply.Arguments...)
	return msg.MarshalBinary()
}

// dispatchPacket decodes and runs one packet through d, writing any replies
// via rw. kind selects between DispatchPacket and AsyncDispatchPacket.
func dispatchPacket(ctx context.Context, d *osc.Dispatcher, kind ServerKind, raw []byte, peer net.Addr, rw replyWriter) {
	var replies []osc.Reply
	if kind == CooperativeAsync {
		replies = d.AsyncDispatchPacket(ctx, raw, peer)
	} else {
		replies = d.DispatchPacket(ctx, raw, peer)
	}

	for _, reply := range replies {
		_ = rw.writeReply(reply)
	}
}
