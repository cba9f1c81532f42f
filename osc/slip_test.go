package osc_test

import (
	"testing"

	"github.com/klingtnet/goosc/osc"
	"github.com/stretchr/testify/assert"
)

func TestSlipEncodeEscapesEndAndEsc(t *testing.T) {
	payload := []byte{0x01, 0xC0, 0xDB, 0x02}
	want := []byte{0xC0, 0x01, 0xDB, 0xDC, 0xDB, 0xDD, 0x02, 0xC0}

	assert.Equal(t, want, osc.SlipEncode(payload))
}

func TestSlipDecodeReversesEncode(t *testing.T) {
	payload := []byte{0x01, 0xC0, 0xDB, 0x02, 0x00, 0xFF}

	decoded, err := osc.SlipDecode(osc.SlipEncode(payload))
	assert.NoError(t, err)
	assert.Equal(t, payload, decoded)
}

func TestSlipDecodeRejectsDanglingEscape(t *testing.T) {
	frame := []byte{0xC0, 0x01, 0xDB, 0xC0}

	_, err := osc.SlipDecode(frame)
	var protoErr osc.ProtocolError
	assert.ErrorAs(t, err, &protoErr)
}

func TestSlipDecodeRejectsInvalidEscapeTarget(t *testing.T) {
	frame := []byte{0xC0, 0xDB, 0x05, 0xC0}

	_, err := osc.SlipDecode(frame)
	var protoErr osc.ProtocolError
	assert.ErrorAs(t, err, &protoErr)
}

func TestSlipSplitterSplitsMultipleFrames(t *testing.T) {
	stream := append(osc.SlipEncode([]byte("one")), osc.SlipEncode([]byte("two"))...)

	advance, token, err := osc.SlipSplitter(stream, false)
	assert.NoError(t, err)
	assert.NotZero(t, advance)

	decoded, err := osc.SlipDecode(token)
	assert.NoError(t, err)
	assert.Equal(t, []byte("one"), decoded)

	advance2, token2, err := osc.SlipSplitter(stream[advance:], false)
	assert.NoError(t, err)
	assert.NotZero(t, advance2)

	decoded2, err := osc.SlipDecode(token2)
	assert.NoError(t, err)
	assert.Equal(t, []byte("two"), decoded2)
}
