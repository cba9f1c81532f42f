package osc

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Possible errors while building (encoding) OSC packets.
var (
	ErrEmptyAddress         = errors.New("address must not be empty")
	ErrAddressMissingSlash  = errors.New("address must start with '/'")
	ErrUnsupportedArgument  = errors.New("unsupported argument type")
	ErrPacketNeitherMsgBndl = errors.New("packet has neither message nor bundle set")
)

// BuildError wraps a reason an OSC value could not be encoded. The message
// builder returns it for an empty blob argument; address problems and
// unsupported Go types are reported with the sentinel errors above.
type BuildError struct {
	Reason string
}

var _ error = (*BuildError)(nil)

func (e BuildError) Error() string {
	return fmt.Sprintf("build error: %s", e.Reason)
}

// NewMessage returns a new Message ready for encoding. Arguments can be
// appended with Append, or supplied directly here; see MarshalBinary for
// the accepted argument types and the auto-typing rules.
func NewMessage(address string, args ...interface{}) *Message {
	return &Message{Address: address, Arguments: args}
}

// Append appends the given arguments to the message's argument list.
func (m *Message) Append(args ...interface{}) {
	m.Arguments = append(m.Arguments, args...)
}

// MarshalBinary serializes the message to its OSC wire representation:
// address, type-tag string, then each argument's payload in order.
//
// Arguments are auto-typed by their Go type:
//
//	bool            -> T / F (no payload bytes)
//	nil             -> N (no payload bytes)
//	int, int32      -> i if it fits in a signed 32-bit integer, else h
//	int64           -> h
//	float32         -> f
//	float64         -> d
//	string          -> s
//	[]byte          -> b (must be non-empty)
//	Rgba            -> r
//	Midi            -> m
//	TimeTag         -> t
//	[]interface{}   -> a nested array, delimited by '[' and ']' in the
//	                   type-tag string; each element is auto-typed in turn
//
// Booleans, nil and the array delimiters contribute to the type-tag
// string but emit zero bytes of argument payload, per the OSC spec.
func (m *Message) MarshalBinary() ([]byte, error) {
	if m.Address == "" {
		return nil, ErrEmptyAddress
	}
	if !strings.HasPrefix(m.Address, "/") {
		return nil, ErrAddressMissingSlash
	}

	data := new(bytes.Buffer)
	if err := writeString(m.Address, data); err != nil {
		return nil, err
	}

	typeTags := new(bytes.Buffer)
	typeTags.WriteByte(',')
	payload := new(bytes.Buffer)

	for _, arg := range m.Arguments {
		if err := writeArgument(arg, typeTags, payload); err != nil {
			return nil, err
		}
	}

	if err := writeString(typeTags.String(), data); err != nil {
		return nil, err
	}
	if _, err := data.Write(payload.Bytes()); err != nil {
		return nil, err
	}

	return data.Bytes(), nil
}

func writeArgument(arg interface{}, typeTags, payload *bytes.Buffer) error {
	switch v := arg.(type) {
	case bool:
		if v {
			typeTags.WriteByte(TypeTagTrue)
		} else {
			typeTags.WriteByte(TypeTagFalse)
		}
		return nil
	case nil:
		typeTags.WriteByte(TypeTagNil)
		return nil
	case int:
		return writeIntArg(int64(v), typeTags, payload)
	case int32:
		return writeIntArg(int64(v), typeTags, payload)
	case int64:
		typeTags.WriteByte(TypeTagInt64)
		return writeInt64(v, payload)
	case float32:
		typeTags.WriteByte(TypeTagFloat)
		return writeFloat(v, payload)
	case float64:
		typeTags.WriteByte(TypeTagDouble)
		return writeDouble(v, payload)
	case string:
		typeTags.WriteByte(TypeTagString)
		return writeString(v, payload)
	case []byte:
		typeTags.WriteByte(TypeTagBlob)
		if len(v) == 0 {
			return BuildError{Reason: "blob argument must not be empty"}
		}
		return writeBlob(v, payload)
	case Rgba:
		typeTags.WriteByte(TypeTagRgba)
		return writeRgba(v, payload)
	case Midi:
		typeTags.WriteByte(TypeTagMidi)
		return writeMidi(v, payload)
	case TimeTag:
		typeTags.WriteByte(TypeTagTimeTag)
		return writeTimeTagRaw(uint64(v), payload)
	case []interface{}:
		typeTags.WriteByte(TypeTagArrayStart)
		for _, inner := range v {
			if err := writeArgument(inner, typeTags, payload); err != nil {
				return err
			}
		}
		typeTags.WriteByte(TypeTagArrayEnd)
		return nil
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedArgument, arg)
	}
}

// writeIntArg implements the "int → i if it fits in 32 bits signed else h"
// auto-typing rule shared by plain `int` and explicit `int32` arguments.
func writeIntArg(v int64, typeTags, payload *bytes.Buffer) error {
	if v >= math.MinInt32 && v <= math.MaxInt32 {
		typeTags.WriteByte(TypeTagInt)
		return writeInt(int32(v), payload)
	}

	typeTags.WriteByte(TypeTagInt64)
	return writeInt64(v, payload)
}

// NewBundle returns a new Bundle ready for encoding.
func NewBundle(tag TimeTag, contents ...Packet) *Bundle {
	return &Bundle{TimeTag: tag, Contents: contents}
}

// MarshalBinary serializes the bundle to its OSC wire representation:
// the "#bundle" identifier, the time tag, then each element prefixed with
// its own encoded length.
func (b *Bundle) MarshalBinary() ([]byte, error) {
	data := new(bytes.Buffer)
	if err := writeString(bundleIdentifier, data); err != nil {
		return nil, err
	}
	if err := writeTimeTagRaw(uint64(b.TimeTag), data); err != nil {
		return nil, err
	}

	for _, element := range b.Contents {
		encoded, err := element.MarshalBinary()
		if err != nil {
			return nil, err
		}

		if err := writeInt(int32(len(encoded)), data); err != nil {
			return nil, err
		}
		if _, err := data.Write(encoded); err != nil {
			return nil, err
		}
	}

	return data.Bytes(), nil
}

// MarshalBinary serializes whichever of Message or Bundle is set.
func (p Packet) MarshalBinary() ([]byte, error) {
	if p.Message != nil {
		return p.Message.MarshalBinary()
	}
	if p.Bundle != nil {
		return p.Bundle.MarshalBinary()
	}

	return nil, ErrPacketNeitherMsgBndl
}
