package osc_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/klingtnet/goosc/osc"
	"github.com/stretchr/testify/assert"
)

func encodeOrFatal(t *testing.T, msg *osc.Message) []byte {
	t.Helper()
	encoded, err := msg.MarshalBinary()
	assert.NoError(t, err)
	return encoded
}

func TestDispatcherHandlersForQueryWildcardMatchesOneAddress(t *testing.T) {
	d := osc.NewDispatcher()

	noop := func(peer net.Addr, address string, fixedArgs, args []interface{}) *osc.Reply { return nil }

	d.Map("/foo/bar/1", noop)
	d.Map("/foo/bar/2", noop)

	handlers := d.HandlersFor("/foo/*/2")
	assert.Len(t, handlers, 1)
}

func TestDispatcherHandlersForRootWildcardCrossesSegments(t *testing.T) {
	d := osc.NewDispatcher()

	noop := func(peer net.Addr, address string, fixedArgs, args []interface{}) *osc.Reply { return nil }

	d.Map("/foo/bar", noop)
	d.Map("/*", noop)

	handlers := d.HandlersFor("/foo/bar")
	assert.Len(t, handlers, 2)
}

func TestDispatcherUnmapRemovesExactHandler(t *testing.T) {
	d := osc.NewDispatcher()

	called := false
	cb := func(peer net.Addr, address string, fixedArgs, args []interface{}) *osc.Reply {
		called = true
		return nil
	}

	d.Map("/foo", cb)

	err := d.Unmap("/foo", cb)
	assert.NoError(t, err)
	assert.Empty(t, d.HandlersFor("/foo"))
	assert.False(t, called)
}

func TestDispatcherUnmapNotMapped(t *testing.T) {
	d := osc.NewDispatcher()
	cb := func(peer net.Addr, address string, fixedArgs, args []interface{}) *osc.Reply {
		return nil
	}

	err := d.Unmap("/foo", cb)
	assert.ErrorIs(t, err, osc.ErrNotMapped)
}

func TestDispatcherDefaultHandlerUsedWhenNoMatch(t *testing.T) {
	d := osc.NewDispatcher()

	var seen string
	d.SetDefaultHandler(func(peer net.Addr, address string, fixedArgs, args []interface{}) *osc.Reply {
		seen = address
		return nil
	})

	msg := osc.NewMessage("/unregistered", int32(1))
	d.DispatchPacket(context.Background(), encodeOrFatal(t, msg), nil)

	assert.Equal(t, "/unregistered", seen)
}

func TestDispatcherImmediateBundleDispatchesWithoutDelay(t *testing.T) {
	d := osc.NewDispatcher()

	done := make(chan struct{}, 1)
	d.Map("/go", func(peer net.Addr, address string, fixedArgs, args []interface{}) *osc.Reply {
		done <- struct{}{}
		return nil
	})

	bundle := osc.NewBundle(osc.Immediately, osc.Packet{Message: osc.NewMessage("/go")})
	encoded, err := bundle.MarshalBinary()
	assert.NoError(t, err)

	start := time.Now()
	d.DispatchPacket(context.Background(), encoded, nil)
	assert.Less(t, time.Since(start), 10*time.Millisecond)

	select {
	case <-done:
	default:
		t.Fatal("handler was not invoked")
	}
}

func TestDispatcherHandlerPanicDoesNotStopSiblings(t *testing.T) {
	d := osc.NewDispatcher()

	var failures []error
	d.OnHandlerError = func(address string, err error) {
		failures = append(failures, err)
	}

	var secondRan bool
	d.Map("/go", func(peer net.Addr, address string, fixedArgs, args []interface{}) *osc.Reply {
		panic(errors.New("boom"))
	})
	d.Map("/go", func(peer net.Addr, address string, fixedArgs, args []interface{}) *osc.Reply {
		secondRan = true
		return nil
	})

	msg := osc.NewMessage("/go")
	d.DispatchPacket(context.Background(), encodeOrFatal(t, msg), nil)

	assert.True(t, secondRan)
	assert.Len(t, failures, 1)
}

func TestDispatcherFixedArgsAndReplyAddress(t *testing.T) {
	d := osc.NewDispatcher()

	var gotFixed []interface{}
	var gotArgs []interface{}
	d.Map("/go", func(peer net.Addr, address string, fixedArgs, args []interface{}) *osc.Reply {
		gotFixed = fixedArgs
		gotArgs = args
		return &osc.Reply{Address: "/ack", Arguments: []interface{}{int32(1)}}
	}, osc.WithFixedArgs("bound"), osc.WithReplyAddress())

	msg := osc.NewMessage("/go", int32(42))
	replies := d.DispatchPacket(context.Background(), encodeOrFatal(t, msg), nil)

	assert.Equal(t, []interface{}{"bound"}, gotFixed)
	assert.Equal(t, []interface{}{int32(42)}, gotArgs)
	assert.Len(t, replies, 1)
	assert.Equal(t, "/ack", replies[0].Address)
}
