package osc

import (
	"context"
	"errors"
	"net"
	"reflect"
	"sync"
	"time"
)

// ErrNotMapped is returned by Unmap when no handler equal to the given
// (callback, fixed args, needs-reply-address) triple is registered at the
// given address.
var ErrNotMapped = errors.New("handler not mapped to this address")

// Reply is what a handler may hand back to the dispatcher: either nothing
// (nil), or an address with optional arguments to send back to the
// originating peer. UDP transports discard replies (there is no return
// channel); TCP transports write them back over the same connection.
type Reply struct {
	Address   string
	Arguments []interface{}
}

// SyncHandlerFunc is invoked synchronously for a matched message.
// peer is nil unless the handler was mapped with WithReplyAddress.
// fixedArgs holds the bound arguments passed at Map time, if any.
type SyncHandlerFunc func(peer net.Addr, address string, fixedArgs, args []interface{}) *Reply

// AsyncHandlerFunc is the cooperative-async counterpart of SyncHandlerFunc:
// it returns a channel the dispatcher receives from (at most once) before
// moving on, so that a transport driven by an external event loop can
// await it rather than block a thread.
type AsyncHandlerFunc func(ctx context.Context, peer net.Addr, address string, fixedArgs, args []interface{}) <-chan *Reply

// Handler is a registered callback, the fixed arguments bound to it, and
// whether the originating peer's address should be passed to it. Handlers
// are compared by value over this triple so that Unmap can target one
// specific prior Map call.
type Handler struct {
	sync              SyncHandlerFunc
	async             AsyncHandlerFunc
	FixedArgs         []interface{}
	NeedsReplyAddress bool
}

// HandlerOption configures optional Map/Unmap parameters.
type HandlerOption func(*Handler)

// WithFixedArgs binds extra arguments that are passed to this handler in
// its fixedArgs parameter, ahead of the message's decoded arguments, on
// every invocation.
func WithFixedArgs(args ...interface{}) HandlerOption {
	return func(h *Handler) { h.FixedArgs = args }
}

// WithReplyAddress requests that the originating peer's net.Addr be passed
// as the handler's first parameter.
func WithReplyAddress() HandlerOption {
	return func(h *Handler) { h.NeedsReplyAddress = true }
}

func newHandler(opts []HandlerOption) Handler {
	var h Handler
	for _, opt := range opts {
		opt(&h)
	}
	return h
}

// equal implements the value-equality Unmap needs: same underlying
// function pointer, same fixed arguments, same reply-address flag.
// Go function values are not comparable with ==, so the underlying code
// pointer is compared via reflection, the same trick the standard
// library's http.HandlerFunc-style APIs rely on implicitly when callers
// dedupe by identity.
func (h Handler) equal(other Handler) bool {
	if h.NeedsReplyAddress != other.NeedsReplyAddress {
		return false
	}
	if !reflect.DeepEqual(h.FixedArgs, other.FixedArgs) {
		return false
	}

	return funcPointer(h.sync) == funcPointer(other.sync) &&
		funcPointer(h.async) == funcPointer(other.async)
}

func funcPointer(f interface{}) uintptr {
	v := reflect.ValueOf(f)
	if !v.IsValid() || v.IsNil() {
		return 0
	}
	return v.Pointer()
}

type addressEntry struct {
	raw      string
	pattern  *Pattern
	handlers []Handler
}

// Dispatcher holds the registered address -> handlers table plus an
// optional default handler, and matches/schedules/invokes handlers for
// decoded packets.
//
// The table is a simple ordered slice, not a map: per the design note
// that registered addresses may themselves be patterns, the table is not
// hashable and lookup is linear by design. Mutation (Map/Unmap/
// SetDefaultHandler) is expected at configuration time; concurrent reads
// during live dispatch are safe, guarded by an RWMutex.
type Dispatcher struct {
	mu             sync.RWMutex
	entries        []*addressEntry
	defaultHandler *Handler

	// OnHandlerError, if set, receives errors recovered from a panicking
	// handler. The dispatcher itself does no logging; this is how a
	// caller wires one in (see cmd/oscdump for a logrus-backed example).
	OnHandlerError func(address string, err error)

	// Now returns the current time; overridable in tests so time-tag
	// scheduling is deterministic.
	Now func() time.Time
}

// NewDispatcher returns an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{Now: time.Now}
}

// Map registers callback at address, returning the Handler describing the
// registration so it can later be passed to Unmap.
func (d *Dispatcher) Map(address string, callback SyncHandlerFunc, opts ...HandlerOption) Handler {
	h := newHandler(opts)
	h.sync = callback

	d.mu.Lock()
	defer d.mu.Unlock()
	d.appendLocked(address, h)

	return h
}

// MapAsync registers a cooperative-async callback at address. Only the
// cooperative-async transport's AsyncDispatchPacket awaits these; a plain
// DispatchPacket call skips async-only handlers.
func (d *Dispatcher) MapAsync(address string, callback AsyncHandlerFunc, opts ...HandlerOption) Handler {
	h := newHandler(opts)
	h.async = callback

	d.mu.Lock()
	defer d.mu.Unlock()
	d.appendLocked(address, h)

	return h
}

func (d *Dispatcher) appendLocked(address string, h Handler) {
	for _, e := range d.entries {
		if e.raw == address {
			e.handlers = append(e.handlers, h)
			return
		}
	}

	d.entries = append(d.entries, &addressEntry{
		raw:      address,
		pattern:  Compile(address),
		handlers: []Handler{h},
	})
}

// Unmap removes the first handler registered at address that is equal to
// the given callback/options triple. It returns ErrNotMapped if none
// matches.
func (d *Dispatcher) Unmap(address string, callback SyncHandlerFunc, opts ...HandlerOption) error {
	target := newHandler(opts)
	target.sync = callback
	return d.unmap(address, target)
}

// UnmapAsync is the MapAsync counterpart of Unmap.
func (d *Dispatcher) UnmapAsync(address string, callback AsyncHandlerFunc, opts ...HandlerOption) error {
	target := newHandler(opts)
	target.async = callback
	return d.unmap(address, target)
}

func (d *Dispatcher) unmap(address string, target Handler) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, e := range d.entries {
		if e.raw != address {
			continue
		}
		for i, h := range e.handlers {
			if h.equal(target) {
				e.handlers = append(e.handlers[:i], e.handlers[i+1:]...)
				return nil
			}
		}
	}

	return ErrNotMapped
}

// SetDefaultHandler installs the handler invoked when no registered
// address matches an incoming message. Passing nil clears it.
func (d *Dispatcher) SetDefaultHandler(callback SyncHandlerFunc, opts ...HandlerOption) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if callback == nil {
		d.defaultHandler = nil
		return
	}

	h := newHandler(opts)
	h.sync = callback
	d.defaultHandler = &h
}

// HandlersFor returns, in registration order across all addresses whose
// pattern matches query, the handlers that should run for it. If nothing
// matches and a default handler is installed, it alone is returned.
func (d *Dispatcher) HandlersFor(query string) []Handler {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []Handler
	for _, e := range d.entries {
		if e.pattern.Matches(query) {
			out = append(out, e.handlers...)
		}
	}

	if len(out) == 0 && d.defaultHandler != nil {
		return []Handler{*d.defaultHandler}
	}

	return out
}

// DispatchPacket decodes raw as an OSC packet, matches and invokes
// handlers for each contained message in effective-time order, and
// returns any reply descriptors the handlers produced. A packet that
// fails to parse is silently dropped, since it arrived over an untrusted
// network transport; only AsyncDispatchPacket-unaware (synchronous)
// handlers are invoked.
func (d *Dispatcher) DispatchPacket(ctx context.Context, raw []byte, peer net.Addr) []Reply {
	now := d.Now()
	messages, _, err := DecodePacket(raw, now)
	if err != nil {
		return nil
	}

	var replies []Reply
	for _, tm := range messages {
		if !d.sleepUntil(ctx, tm.EffectiveTime) {
			return replies
		}

		for _, h := range d.HandlersFor(tm.Message.Address) {
			if h.sync == nil {
				continue
			}
			if reply := d.invokeSync(h, peer, tm.Message); reply != nil {
				replies = append(replies, *reply)
			}
		}
	}

	return replies
}

// AsyncDispatchPacket is the cooperative-async counterpart of
// DispatchPacket: in addition to everything DispatchPacket does, it
// awaits any matched MapAsync handler's channel before moving to the next
// handler. Cancelling ctx abandons the remainder of the packet (no
// further handlers for this packet are invoked) without returning an
// error, matching the scheduling cancellation contract.
func (d *Dispatcher) AsyncDispatchPacket(ctx context.Context, raw []byte, peer net.Addr) []Reply {
	now := d.Now()
	messages, _, err := DecodePacket(raw, now)
	if err != nil {
		return nil
	}

	var replies []Reply
	for _, tm := range messages {
		if !d.sleepUntil(ctx, tm.EffectiveTime) {
			return replies
		}

		for _, h := range d.HandlersFor(tm.Message.Address) {
			var reply *Reply
			switch {
			case h.async != nil:
				reply = d.invokeAsync(ctx, h, peer, tm.Message)
			case h.sync != nil:
				reply = d.invokeSync(h, peer, tm.Message)
			default:
				continue
			}
			if reply != nil {
				replies = append(replies, *reply)
			}
			if ctx.Err() != nil {
				return replies
			}
		}
	}

	return replies
}

// sleepUntil blocks the calling goroutine until t, or until ctx is
// cancelled, whichever comes first. It returns false if ctx was
// cancelled, signalling the caller to abandon the rest of the packet.
//
// This is deliberately a blocking sleep on the goroutine handling the
// packet, not a scheduler-wide pause: per the spec's serial-scheduling
// design note, one future-dated bundle only delays the remaining messages
// of *its own* packet. Concurrency across packets comes from the
// transport layer running independent DispatchPacket calls in separate
// goroutines, never from within one call.
func (d *Dispatcher) sleepUntil(ctx context.Context, t time.Time) bool {
	d.mu.RLock()
	now := d.Now()
	d.mu.RUnlock()

	delay := t.Sub(now)
	if delay <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (d *Dispatcher) invokeSync(h Handler, peer net.Addr, msg *Message) (reply *Reply) {
	defer d.recoverHandler(msg.Address, &reply)

	args := h.callArgs(msg)
	var p net.Addr
	if h.NeedsReplyAddress {
		p = peer
	}
	return h.sync(p, msg.Address, h.FixedArgs, args)
}

func (d *Dispatcher) invokeAsync(ctx context.Context, h Handler, peer net.Addr, msg *Message) (reply *Reply) {
	defer d.recoverHandler(msg.Address, &reply)

	args := h.callArgs(msg)
	var p net.Addr
	if h.NeedsReplyAddress {
		p = peer
	}

	ch := h.async(ctx, p, msg.Address, h.FixedArgs, args)
	select {
	case r := <-ch:
		return r
	case <-ctx.Done():
		return nil
	}
}

func (h Handler) callArgs(msg *Message) []interface{} {
	return msg.Arguments
}

// recoverHandler implements the HandlerFailure contract: a panic inside a
// user handler is caught and reported through OnHandlerError (if set), and
// does not propagate to sibling handlers or subsequent packets.
func (d *Dispatcher) recoverHandler(address string, reply **Reply) {
	if r := recover(); r != nil {
		*reply = nil
		if d.OnHandlerError != nil {
			err, ok := r.(error)
			if !ok {
				err = handlerPanicError{value: r}
			}
			d.OnHandlerError(address, err)
		}
	}
}

type handlerPanicError struct {
	value interface{}
}

func (e handlerPanicError) Error() string {
	return "handler panic: " + toString(e.value)
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return "non-string panic value"
}
