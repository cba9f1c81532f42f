// Package osc implements the Open Sound Control wire format: parsing and
// serializing OSC messages and bundles, matching address patterns, and
// dispatching decoded packets to registered handlers.
//
// The package has no I/O of its own; it operates on byte slices handed to
// it by a transport (see the sibling transport package) and produces byte
// slices or in-memory values in return.
package osc

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Possible errors while reading OSC packets.
var (
	ErrInputEmpty              = errors.New("input data is empty")
	ErrInvalidPacket           = errors.New("invalid packet (neither message nor bundle)")
	ErrTypeTagsStartMissing    = errors.New("expected start of type tags")
	ErrInvalidBundleIdentifier = errors.New("invalid bundle identifier")
	ErrElementTooShort         = errors.New("element content is too short")
	ErrInvalidElementLength    = errors.New("bundle element length is not a multiple of 4")
	ErrUnterminatedArray       = errors.New("array missing closing ']'")
	ErrUnmatchedArrayEnd       = errors.New("unmatched ']' in type tags")
)

// UnknownTypeTagError occurs when an unknown type tag was discovered during
// parsing. It is not fatal: per the forward-compatibility rule, unknown
// tags are skipped (contributing no argument payload bytes) and recorded
// on the owning Message's Warnings field instead of aborting the parse.
type UnknownTypeTagError struct {
	Tag rune // Tag is the unexpected type tag.
}

var _ error = (*UnknownTypeTagError)(nil)

func (e UnknownTypeTagError) Error() string {
	return fmt.Sprintf("unknown type tag `%c`", e.Tag)
}

// Standard OSC type tags.
const (
	TypeTagInt    = 'i' // 32-bit integer.
	TypeTagFloat  = 'f' // 32-bit floating point number.
	TypeTagString = 's' // OSC string.
	TypeTagBlob   = 'b' // OSC blob.
)

// Extended (non-standard) type tags.
const (
	TypeTagInt64      = 'h' // 64-bit integer.
	TypeTagTimeTag    = 't' // OSC time tag.
	TypeTagDouble     = 'd' // 64-bit floating point number.
	TypeTagRgba       = 'r' // 32-bit RGBA color.
	TypeTagMidi       = 'm' // 4 byte MIDI message.
	TypeTagTrue       = 'T' // Boolean true, no argument data.
	TypeTagFalse      = 'F' // Boolean false, no argument data.
	TypeTagNil        = 'N' // Nil value, no argument data.
	TypeTagArrayStart = '[' // Start indicator of an array.
	TypeTagArrayEnd   = ']' // End indicator of an array.
)

// Packet is a complete OSC packet, that is either a message or a bundle.
//
// Only one of the fields is set at any time, and one field is always set,
// after successfully parsing a packet with ReadPacket. Otherwise, the
// packet is considered invalid.
type Packet struct {
	Message *Message
	Bundle  *Bundle
}

var _ fmt.Stringer = (*Packet)(nil)

func (p Packet) String() string {
	if p.Message != nil {
		return fmt.Sprintf("Packet { %v }", p.Message)
	}

	if p.Bundle != nil {
		return fmt.Sprintf("Packet { %v }", p.Bundle)
	}

	return "Packet { <invalid> }"
}

// Iterate unpacks the packet into individual messages and calls the given
// handler for each. In case the handler returns an error, it is returned
// from this method.
func (p Packet) Iterate(handler func(msg *Message) error) error {
	if p.Message != nil {
		return handler(p.Message)
	}

	if p.Bundle != nil {
		for _, packet := range p.Bundle.Contents {
			if err := packet.Iterate(handler); err != nil {
				return err
			}
		}
	}

	return nil
}

// ToMessages unpacks the packet into individual messages. If the packet is
// a message, it'll just return a single element slice. If it is a bundle,
// it'll recursively iterate over the contents and extract all messages
// into a single slice.
func (p Packet) ToMessages() []*Message {
	if p.Message != nil {
		return []*Message{p.Message}
	}

	if p.Bundle != nil {
		messages := make([]*Message, 0, len(p.Bundle.Contents))
		for _, packet := range p.Bundle.Contents {
			messages = append(messages, packet.ToMessages()...)
		}

		return messages
	}

	return nil
}

// ReadPacket reads and parses a raw byte slice into an OSC packet. The
// remaining bytes (if any) are returned for further processing by the
// caller.
func ReadPacket(buf []byte) (*Packet, []byte, error) {
	if len(buf) == 0 {
		return nil, nil, ErrInputEmpty
	}

	switch buf[0] {
	case '/':
		message, newBuf, err := readMessage(buf)
		if err != nil {
			return nil, nil, err
		}

		return &Packet{Message: message}, newBuf, nil
	case '#':
		bundle, newBuf, err := readBundle(buf)
		if err != nil {
			return nil, nil, err
		}

		return &Packet{Bundle: bundle}, newBuf, nil
	default:
		return nil, nil, ErrInvalidPacket
	}
}

// Message is a single OSC message: an address, type tags describing the
// argument types, and the arguments themselves.
//
// Arguments are held as a slice of `interface{}`, one entry per parsed
// argument; nested arrays (type tags `[`...`]`) are represented as a
// further `[]interface{}` entry, which may itself contain nested arrays.
//
// Mapping from type tag to Go type:
//
//	i -> int32        h -> int64        f -> float32
//	d -> float64       s -> string       b -> []byte
//	r -> osc.Rgba      m -> osc.Midi     t -> osc.TimeTag
//	T -> bool(true)    F -> bool(false)  N -> nil
//	[...] -> []interface{} (recursively typed per this table)
type Message struct {
	Address   string        // Address is the message address.
	TypeTags  string        // TypeTags contains the type-tag string without its leading ',', including array delimiters and nested tags.
	Arguments []interface{} // Arguments contains all parsed arguments.
	Raw       []byte        // Raw is the un-parsed message content.
	Warnings  []error       // Warnings holds non-fatal issues seen while parsing, e.g. unknown type tags.
}

var _ fmt.Stringer = (*Message)(nil)

func (m Message) String() string {
	return fmt.Sprintf("Message \"%v\" \"%v\" %v", m.Address, m.TypeTags, m.Arguments)
}

func readMessage(buf []byte) (*Message, []byte, error) {
	raw := buf

	address, newBuf, err := readString(buf)
	if err != nil {
		return nil, nil, fmt.Errorf("failed reading address: %w", err)
	}
	buf = newBuf

	if len(buf) == 0 {
		return &Message{Address: address, Raw: raw}, buf, nil
	}

	if buf[0] != ',' {
		return nil, nil, ErrTypeTagsStartMissing
	}

	typeTagString, newBuf, err := readString(buf)
	if err != nil {
		return nil, nil, fmt.Errorf("failed reading type tags: %w", err)
	}
	buf = newBuf

	tags := []rune(typeTagString[1:])

	args, _, buf, warnings, closed, err := readArgList(tags, buf)
	if err != nil {
		return nil, nil, err
	}
	if closed {
		return nil, nil, ErrUnmatchedArrayEnd
	}

	return &Message{
		Address:   address,
		TypeTags:  string(tags),
		Arguments: args,
		Raw:       raw,
		Warnings:  warnings,
	}, buf, nil
}

// readArgList parses a run of type tags against buf, stopping either when
// the tags are exhausted (the top-level call) or at the first unmatched
// ']' (a nested array, whose caller consumes the ']' itself). It returns
// the parsed arguments, the number of tag runes consumed (including a
// trailing ']' if one stopped the loop), the advanced buffer, any
// non-fatal warnings collected along the way, and whether a ']' stopped
// the loop.
func readArgList(tags []rune, buf []byte) (args []interface{}, consumed int, rest []byte, warnings []error, closed bool, err error) {
	i := 0
	for i < len(tags) {
		tag := tags[i]

		if tag == TypeTagArrayEnd {
			return args, i + 1, buf, warnings, true, nil
		}

		if tag == TypeTagArrayStart {
			sub, subConsumed, newBuf, subWarnings, subClosed, err := readArgList(tags[i+1:], buf)
			if err != nil {
				return nil, 0, nil, nil, false, err
			}
			if !subClosed {
				// ran off the end of the tag string without seeing ']'
				return nil, 0, nil, nil, false, ErrUnterminatedArray
			}

			args = append(args, sub)
			warnings = append(warnings, subWarnings...)
			i += 1 + subConsumed
			buf = newBuf
			continue
		}

		v, newBuf, warn, err := readArgValue(tag, buf)
		if err != nil {
			return nil, 0, nil, nil, false, err
		}
		if warn != nil {
			warnings = append(warnings, warn)
		} else {
			// only advance the buffer for recognized tags; an unknown tag
			// contributes no payload bytes (see UnknownTypeTagError).
			buf = newBuf
		}
		args = append(args, v)
		i++
	}

	return args, i, buf, warnings, false, nil
}

func readArgValue(tag rune, buf []byte) (value interface{}, rest []byte, warning error, err error) {
	switch tag {
	case TypeTagInt:
		v, b, err := readInt(buf)
		return v, b, nil, err
	case TypeTagFloat:
		v, b, err := readFloat(buf)
		return v, b, nil, err
	case TypeTagString:
		v, b, err := readString(buf)
		return v, b, nil, err
	case TypeTagBlob:
		v, b, err := readBlob(buf)
		return v, b, nil, err
	case TypeTagInt64:
		v, b, err := readInt64(buf)
		return v, b, nil, err
	case TypeTagTimeTag:
		v, b, err := readTimeTagRaw(buf)
		return TimeTag(v), b, nil, err
	case TypeTagDouble:
		v, b, err := readDouble(buf)
		return v, b, nil, err
	case TypeTagRgba:
		v, b, err := readRgba(buf)
		return v, b, nil, err
	case TypeTagMidi:
		v, b, err := readMidi(buf)
		return v, b, nil, err
	case TypeTagTrue:
		return true, buf, nil, nil
	case TypeTagFalse:
		return false, buf, nil, nil
	case TypeTagNil:
		return nil, buf, nil, nil
	default:
		return nil, buf, UnknownTypeTagError{Tag: tag}, nil
	}
}

// Bundle is a single OSC bundle: a time tag, plus a collection of elements
// that are either messages or further bundles.
type Bundle struct {
	TimeTag  TimeTag
	Contents []Packet
}

var _ fmt.Stringer = (*Bundle)(nil)

func (b Bundle) String() string {
	return fmt.Sprintf("Bundle %v %v", uint64(b.TimeTag), b.Contents)
}

const bundleIdentifier = "#bundle"

func readBundle(buf []byte) (*Bundle, []byte, error) {
	ident, newBuf, err := readString(buf)
	if err != nil {
		return nil, nil, err
	}
	buf = newBuf

	if ident != bundleIdentifier {
		return nil, nil, ErrInvalidBundleIdentifier
	}

	rawTag, newBuf, err := readTimeTagRaw(buf)
	if err != nil {
		return nil, nil, err
	}
	buf = newBuf

	contents := []Packet{}

	for len(buf) > 0 {
		if len(buf) < lenInt {
			return nil, nil, ErrElementTooShort
		}

		length, newBuf, err := readLength(buf)
		if err != nil {
			return nil, nil, err
		}
		buf = newBuf

		if length%4 != 0 {
			return nil, nil, ErrInvalidElementLength
		}
		if len(buf) < length {
			return nil, nil, ErrElementTooShort
		}

		// Enforce the declared element length exactly: the element's own
		// packet decode must consume the whole slice, never bleeding into
		// neighboring elements. This is the corrected bounds check; a
		// naive implementation that hands the full remaining buffer to
		// ReadPacket would let a malformed element over-read past its
		// declared size.
		elementBuf := buf[:length]
		packet, rest, err := ReadPacket(elementBuf)
		if err != nil {
			return nil, nil, err
		}
		if len(rest) != 0 {
			return nil, nil, ErrElementTooShort
		}

		contents = append(contents, *packet)
		buf = buf[length:]
	}

	return &Bundle{
		TimeTag:  TimeTag(rawTag),
		Contents: contents,
	}, buf, nil
}

// TimedMessage pairs a decoded Message with the absolute wall-clock time at
// which the dispatcher should invoke handlers for it: the time tag of its
// nearest enclosing bundle, or "now" if that bundle's tag is Immediately or
// lies in the past, or "now" outright for a bare (non-bundled) message.
type TimedMessage struct {
	EffectiveTime time.Time
	Message       *Message
}

// DecodePacket parses a single raw transport packet (one UDP datagram, or
// one de-framed stream packet) into a time-ordered list of TimedMessage
// values, per the nesting and "now" substitution rule described on
// TimedMessage. now is the sampled receive time; passing it in rather than
// reading the clock internally keeps decoding deterministic and testable.
func DecodePacket(buf []byte, now time.Time) ([]TimedMessage, []byte, error) {
	packet, rest, err := ReadPacket(buf)
	if err != nil {
		return nil, nil, err
	}

	messages := flatten(*packet, now, now)
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].EffectiveTime.Before(messages[j].EffectiveTime)
	})

	return messages, rest, nil
}

func flatten(packet Packet, now, bundleTime time.Time) []TimedMessage {
	if packet.Message != nil {
		return []TimedMessage{{EffectiveTime: bundleTime, Message: packet.Message}}
	}

	if packet.Bundle == nil {
		return nil
	}

	own := effectiveTime(packet.Bundle.TimeTag, now)

	var out []TimedMessage
	for _, child := range packet.Bundle.Contents {
		out = append(out, flatten(child, now, own)...)
	}

	return out
}

func effectiveTime(tag TimeTag, now time.Time) time.Time {
	if tag.IsImmediate() {
		return now
	}

	t := tag.Time()
	if t.Before(now) {
		return now
	}

	return t
}
