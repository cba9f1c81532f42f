package osc_test

import (
	"testing"
	"time"

	"github.com/klingtnet/goosc/osc"
	"github.com/stretchr/testify/assert"
)

func assertPacket(t *testing.T, input []byte, want *osc.Packet) {
	t.Helper()

	got, buf, err := osc.ReadPacket(input)
	assert.NoError(t, err)
	assert.Empty(t, buf)
	assert.Equal(t, want, got)
}

func TestOscillatorSample(t *testing.T) {
	input := []byte("/oscillator/4/frequency\x00,f\x00\x00\x43\xdc\x00\x00")

	assertPacket(t, input, &osc.Packet{
		Message: &osc.Message{
			Address:   "/oscillator/4/frequency",
			TypeTags:  "f",
			Arguments: []interface{}{float32(440)},
			Raw:       input,
		},
	})
}

func TestFooSample(t *testing.T) {
	input := []byte("/foo\x00\x00\x00\x00,iisff\x00\x00\x00\x00\x03\xe8\xff\xff\xff\xffhello\x00\x00\x00\x3f\x9d\xf3\xb6\x40\xb5\xb2\x2d")

	assertPacket(t, input, &osc.Packet{
		Message: &osc.Message{
			Address:  "/foo",
			TypeTags: "iisff",
			Arguments: []interface{}{
				int32(1000),
				int32(-1),
				"hello",
				float32(1.234),
				float32(5.678),
			},
			Raw: input,
		},
	})
}

func TestBundleWithMessage(t *testing.T) {
	input := []byte("#bundle\x00\x00\x00\x00\x00\x00\x00\x00\x01\x00\x00\x00\x0c/\x00\x00\x00,s\x00\x00hi\x00\x00")

	assertPacket(t, input, &osc.Packet{
		Bundle: &osc.Bundle{
			TimeTag: osc.Immediately,
			Contents: []osc.Packet{{
				Message: &osc.Message{
					Address:   "/",
					TypeTags:  "s",
					Arguments: []interface{}{"hi"},
					Raw:       []byte("/\x00\x00\x00,s\x00\x00hi\x00\x00"),
				},
			}},
		},
	})
}

func TestBundleElementLengthMismatchRejected(t *testing.T) {
	// The declared element length (0x10, 16 bytes) is longer than the
	// message it wraps (12 bytes): the corrected bounds check must reject
	// this instead of letting the decode bleed into whatever follows.
	input := []byte("#bundle\x00\x00\x00\x00\x00\x00\x00\x00\x01\x00\x00\x00\x10/\x00\x00\x00,s\x00\x00hi\x00\x00")

	_, _, err := osc.ReadPacket(input)
	assert.ErrorIs(t, err, osc.ErrElementTooShort)
}

func TestPacketIterator(t *testing.T) {
	input := []byte("#bundle\x00\x00\x00\x00\x00\x00\x00\x00\x01\x00\x00\x00\x0c/\x00\x00\x00,s\x00\x00hi\x00\x00")
	want := &osc.Message{
		Address:   "/",
		TypeTags:  "s",
		Arguments: []interface{}{"hi"},
		Raw:       []byte("/\x00\x00\x00,s\x00\x00hi\x00\x00"),
	}

	packet, buf, err := osc.ReadPacket(input)
	assert.NoError(t, err)
	assert.Empty(t, buf)

	count := 0
	got := &osc.Message{}

	err = packet.Iterate(func(m *osc.Message) error {
		count++
		got = m
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, want, got)
}

func TestPacketToMessages(t *testing.T) {
	input := []byte("#bundle\x00\x00\x00\x00\x00\x00\x00\x00\x01\x00\x00\x00\x0c/\x00\x00\x00,s\x00\x00hi\x00\x00")
	want := []*osc.Message{{
		Address:   "/",
		TypeTags:  "s",
		Arguments: []interface{}{"hi"},
		Raw:       []byte("/\x00\x00\x00,s\x00\x00hi\x00\x00"),
	}}

	packet, buf, err := osc.ReadPacket(input)
	assert.NoError(t, err)
	assert.Empty(t, buf)

	got := packet.ToMessages()
	assert.Equal(t, want, got)
}

func TestDecodePacketImmediateBundle(t *testing.T) {
	input := []byte("#bundle\x00\x00\x00\x00\x00\x00\x00\x00\x01\x00\x00\x00\x0c/\x00\x00\x00,s\x00\x00hi\x00\x00")
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	messages, rest, err := osc.DecodePacket(input, now)
	assert.NoError(t, err)
	assert.Empty(t, rest)
	assert.Len(t, messages, 1)
	assert.Equal(t, now, messages[0].EffectiveTime)
	assert.Equal(t, "/", messages[0].Message.Address)
}

func TestDecodePacketNestedBundleImmediateInsideFuture(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	future := osc.NewTimeTag(now.Add(time.Hour))

	inner := osc.NewMessage("/inner")
	innerBundle := osc.NewBundle(osc.Immediately, osc.Packet{Message: inner})
	outerMsg := osc.NewMessage("/outer")

	outer := osc.NewBundle(future, osc.Packet{Bundle: innerBundle}, osc.Packet{Message: outerMsg})
	encoded, err := outer.MarshalBinary()
	assert.NoError(t, err)

	messages, _, err := osc.DecodePacket(encoded, now)
	assert.NoError(t, err)
	assert.Len(t, messages, 2)

	// the immediately-tagged inner message sorts before the future-dated
	// outer one, regardless of registration order within the bundle.
	assert.Equal(t, "/inner", messages[0].Message.Address)
	assert.Equal(t, now, messages[0].EffectiveTime)
	assert.Equal(t, "/outer", messages[1].Message.Address)
	assert.True(t, messages[1].EffectiveTime.After(now))
}

func TestMessageRoundtrip(t *testing.T) {
	msg := osc.NewMessage("/foo", int32(1000), int32(-1), "hello", float32(1.234), float32(5.678))

	encoded, err := msg.MarshalBinary()
	assert.NoError(t, err)

	packet, rest, err := osc.ReadPacket(encoded)
	assert.NoError(t, err)
	assert.Empty(t, rest)
	assert.Equal(t, msg.Address, packet.Message.Address)
	assert.Equal(t, msg.Arguments, packet.Message.Arguments)
}
