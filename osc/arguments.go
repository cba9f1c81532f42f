package osc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Possible errors while reading or writing basic OSC types.
var (
	ErrIntTooShort             = errors.New("content is too short for an int")
	ErrFloatTooShort           = errors.New("content is too short for a float")
	ErrStringMissingTerminator = errors.New("string missing 0 terminator")
	ErrBlobTooShort            = errors.New("content is too short for a blob")
	ErrInt64TooShort           = errors.New("content is too short for an int64")
	ErrTimeTagTooShort         = errors.New("content is too short for a time tag")
	ErrDoubleTooShort          = errors.New("content is too short for a double")
	ErrRgbaTooShort            = errors.New("content is too short for rgba")
	ErrMidiTooShort            = errors.New("content is too short for midi")
	ErrNegativeLength          = errors.New("invalid negative length")
	ErrEmptyBlob               = errors.New("blob must not be empty")
	ErrEmptyString             = errors.New("string must not start with a NUL byte")
)

// Fixed lengths for the different OSC types.
const (
	lenInt     = 4
	lenFloat   = 4
	lenInt64   = 8
	lenTimeTag = 8
	lenDouble  = 8
	lenRgba    = 4
	lenMidi    = 4
)

// Rgba is a 32-bit RGBA color, one byte per channel. It is a distinct type
// from Midi so that the message builder's auto-typing switch (see
// builder.go) can tell the two 4-byte wire shapes apart.
type Rgba [4]byte

// Midi is a 4-byte MIDI message: port, status, data1, data2.
type Midi [4]byte

func readInt(buf []byte) (int32, []byte, error) {
	if len(buf) < lenInt {
		return 0, nil, ErrIntTooShort
	}

	return int32(binary.BigEndian.Uint32(buf[:lenInt])), buf[lenInt:], nil
}

func writeInt(v int32, buf *bytes.Buffer) error {
	return binary.Write(buf, binary.BigEndian, v)
}

func readFloat(buf []byte) (float32, []byte, error) {
	if len(buf) < lenFloat {
		return 0, nil, ErrFloatTooShort
	}

	return math.Float32frombits(binary.BigEndian.Uint32(buf[:lenFloat])), buf[lenFloat:], nil
}

func writeFloat(v float32, buf *bytes.Buffer) error {
	return binary.Write(buf, binary.BigEndian, v)
}

// readString reads a NUL-terminated, 4-byte padded OSC string. An aligned
// all-NUL 4-byte slice decodes to the empty string, advancing by 4; any
// other string that starts with a NUL byte is rejected.
func readString(buf []byte) (string, []byte, error) {
	pos := bytes.IndexByte(buf, 0)
	if pos == -1 {
		return "", nil, ErrStringMissingTerminator
	}
	if pos == 0 && (len(buf) < 4 || buf[1] != 0 || buf[2] != 0 || buf[3] != 0) {
		return "", nil, ErrEmptyString
	}

	value := buf[:pos]
	total := pos + pad(pos)
	if len(buf) < total {
		return "", nil, ErrStringMissingTerminator
	}

	return string(value), buf[total:], nil
}

func writeString(v string, buf *bytes.Buffer) error {
	if _, err := buf.WriteString(v); err != nil {
		return err
	}
	padding := pad(len(v))
	_, err := buf.Write(make([]byte, padding))
	return err
}

func readLength(buf []byte) (int, []byte, error) {
	length, newBuf, err := readInt(buf)
	if err != nil {
		return 0, nil, fmt.Errorf("failed reading length: %w", err)
	}

	if length < 0 {
		return 0, nil, ErrNegativeLength
	}

	return int(length), newBuf, nil
}

func readBlob(buf []byte) ([]byte, []byte, error) {
	length, newBuf, err := readLength(buf)
	if err != nil {
		return nil, nil, fmt.Errorf("failed reading blob length: %w", err)
	}
	buf = newBuf

	if len(buf) < length {
		return nil, nil, ErrBlobTooShort
	}

	out := make([]byte, length)
	copy(out, buf[:length])

	padded := length + blobPad(length)
	if len(buf) < padded {
		return nil, nil, ErrBlobTooShort
	}

	return out, buf[padded:], nil
}

func writeBlob(v []byte, buf *bytes.Buffer) error {
	if len(v) == 0 {
		return ErrEmptyBlob
	}

	if err := writeInt(int32(len(v)), buf); err != nil {
		return err
	}
	if _, err := buf.Write(v); err != nil {
		return err
	}

	_, err := buf.Write(make([]byte, blobPad(len(v))))
	return err
}

// pad returns the number of NUL padding bytes required so that length+pad is
// a multiple of 4. Strings always carry a mandatory NUL terminator, so this
// is never zero even when length is already 4-byte aligned.
func pad(length int) int {
	const padSize = 4

	return padSize - length%padSize
}

// blobPad returns the number of zero padding bytes a blob of the given
// length needs so that length+pad is a multiple of 4. Unlike strings, a
// blob has no mandatory terminator, so an already-aligned length needs no
// padding at all.
func blobPad(length int) int {
	const padSize = 4

	return (padSize - length%padSize) % padSize
}

func readInt64(buf []byte) (int64, []byte, error) {
	if len(buf) < lenInt64 {
		return 0, nil, ErrInt64TooShort
	}

	return int64(binary.BigEndian.Uint64(buf[:lenInt64])), buf[lenInt64:], nil
}

func writeInt64(v int64, buf *bytes.Buffer) error {
	return binary.Write(buf, binary.BigEndian, v)
}

func readTimeTagRaw(buf []byte) (uint64, []byte, error) {
	if len(buf) < lenTimeTag {
		return 0, nil, ErrTimeTagTooShort
	}

	return binary.BigEndian.Uint64(buf[:lenTimeTag]), buf[lenTimeTag:], nil
}

func writeTimeTagRaw(v uint64, buf *bytes.Buffer) error {
	return binary.Write(buf, binary.BigEndian, v)
}

func readDouble(buf []byte) (float64, []byte, error) {
	if len(buf) < lenDouble {
		return 0, nil, ErrDoubleTooShort
	}

	return math.Float64frombits(binary.BigEndian.Uint64(buf[:lenDouble])), buf[lenDouble:], nil
}

func writeDouble(v float64, buf *bytes.Buffer) error {
	return binary.Write(buf, binary.BigEndian, v)
}

func readRgba(buf []byte) (Rgba, []byte, error) {
	if len(buf) < lenRgba {
		return Rgba{}, nil, ErrRgbaTooShort
	}

	return Rgba{buf[0], buf[1], buf[2], buf[3]}, buf[lenRgba:], nil
}

func writeRgba(v Rgba, buf *bytes.Buffer) error {
	_, err := buf.Write(v[:])
	return err
}

func readMidi(buf []byte) (Midi, []byte, error) {
	if len(buf) < lenMidi {
		return Midi{}, nil, ErrMidiTooShort
	}

	return Midi{buf[0], buf[1], buf[2], buf[3]}, buf[lenMidi:], nil
}

func writeMidi(v Midi, buf *bytes.Buffer) error {
	_, err := buf.Write(v[:])
	return err
}
