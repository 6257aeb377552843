package sealbase

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
)

// AttrKind enumerates the closed set of attribute value kinds.  The
// canonical encoder matches exhaustively on this set; adding a kind is
// a deliberate, reviewed change, not an extension point.
type AttrKind int

const (
	KindNull AttrKind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindInts
	KindFloats
	KindStrings
	KindBytes
)

func (k AttrKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindInts:
		return "ints"
	case KindFloats:
		return "floats"
	case KindStrings:
		return "strings"
	case KindBytes:
		return "bytes"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Canonical encoding tag bytes.  Every encoded value is
// tag || uint64 big-endian payload length || payload, so no two kinds
// can collide: int 1, float 1.0, and bool true all differ in the first
// byte.  tagKey, tagGroup, and tagDataset are used by the group
// aggregator, reserved here so they can never clash with a value tag.
const (
	tagNull    = 'z'
	tagString  = 's'
	tagInt     = 'i'
	tagFloat   = 'f'
	tagBool    = 'b'
	tagInts    = 'I'
	tagFloats  = 'F'
	tagStrings = 'S'
	tagBytes   = 'x'
	tagKey     = 'k'
	tagGroup   = 'g'
	tagDataset = 'd'
)

// AttrValue is a tagged variant over the supported attribute kinds.
// Kind selects which payload field is meaningful.
type AttrValue struct {
	Kind   AttrKind
	Str    string
	Int    int64
	Float  float64
	Bool   bool
	Ints   []int64
	Floats []float64
	Strs   []string
	Bytes  []byte
}

func Null() *AttrValue               { return &AttrValue{Kind: KindNull} }
func Str(s string) *AttrValue        { return &AttrValue{Kind: KindString, Str: s} }
func Int64(n int64) *AttrValue       { return &AttrValue{Kind: KindInt, Int: n} }
func Float64(x float64) *AttrValue   { return &AttrValue{Kind: KindFloat, Float: x} }
func Bool(v bool) *AttrValue         { return &AttrValue{Kind: KindBool, Bool: v} }
func Int64s(ns ...int64) *AttrValue  { return &AttrValue{Kind: KindInts, Ints: ns} }
func Float64s(xs ...float64) *AttrValue {
	return &AttrValue{Kind: KindFloats, Floats: xs}
}
func Strs(ss ...string) *AttrValue { return &AttrValue{Kind: KindStrings, Strs: ss} }
func Blob(buf []byte) *AttrValue   { return &AttrValue{Kind: KindBytes, Bytes: buf} }

// UnsupportedKindError reports an attribute value outside the supported
// variant set.  It signals a producer bug, not a data problem, and is
// never retried.
type UnsupportedKindError struct {
	Kind AttrKind
}

func (e *UnsupportedKindError) Error() string {
	return fmt.Sprintf("unsupported attribute kind: %s", e.Kind)
}

// frame wraps payload in tag || uint64 length || payload.
func frame(tag byte, payload []byte) (buf []byte) {
	buf = make([]byte, 0, 9+len(payload))
	buf = append(buf, tag)
	var lenbuf [8]byte
	binary.BigEndian.PutUint64(lenbuf[:], uint64(len(payload)))
	buf = append(buf, lenbuf[:]...)
	buf = append(buf, payload...)
	return
}

func encodeInt(n int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(n))
	return b[:]
}

func encodeFloat(x float64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(x))
	return b[:]
}

// Encode deterministically serializes the value.  Pure: identical
// values always produce identical bytes, and no two distinct typed
// values share an encoding.  Sequence element order is meaningful and
// is preserved, never sorted.
func (v *AttrValue) Encode() (buf []byte, err error) {
	switch v.Kind {
	case KindNull:
		buf = frame(tagNull, nil)
	case KindString:
		buf = frame(tagString, []byte(v.Str))
	case KindInt:
		buf = frame(tagInt, encodeInt(v.Int))
	case KindFloat:
		buf = frame(tagFloat, encodeFloat(v.Float))
	case KindBool:
		b := byte(0)
		if v.Bool {
			b = 1
		}
		buf = frame(tagBool, []byte{b})
	case KindInts:
		var payload []byte
		for _, n := range v.Ints {
			payload = append(payload, frame(tagInt, encodeInt(n))...)
		}
		buf = frame(tagInts, payload)
	case KindFloats:
		var payload []byte
		for _, x := range v.Floats {
			payload = append(payload, frame(tagFloat, encodeFloat(x))...)
		}
		buf = frame(tagFloats, payload)
	case KindStrings:
		var payload []byte
		for _, s := range v.Strs {
			payload = append(payload, frame(tagString, []byte(s))...)
		}
		buf = frame(tagStrings, payload)
	case KindBytes:
		buf = frame(tagBytes, v.Bytes)
	default:
		err = &UnsupportedKindError{Kind: v.Kind}
	}
	return
}

// encodeKey canonicalizes an attribute name for the group aggregator.
func encodeKey(key string) []byte {
	return frame(tagKey, []byte(key))
}

// unframe splits one tag || length || payload frame off the front of
// buf and returns the remainder.
func unframe(buf []byte) (tag byte, payload, rest []byte, err error) {
	if len(buf) < 9 {
		err = fmt.Errorf("truncated encoding: %d bytes", len(buf))
		return
	}
	tag = buf[0]
	n := binary.BigEndian.Uint64(buf[1:9])
	if uint64(len(buf)-9) < n {
		err = fmt.Errorf("truncated payload: want %d have %d", n, len(buf)-9)
		return
	}
	payload = buf[9 : 9+n]
	rest = buf[9+n:]
	return
}

// Decode parses a canonical encoding back into a value.  The encoder
// is the contract; Decode exists so round-trip behavior is testable.
func Decode(buf []byte) (v *AttrValue, err error) {
	v, rest, err := decodeOne(buf)
	if err != nil {
		return
	}
	if len(rest) > 0 {
		err = fmt.Errorf("trailing bytes after encoding: %d", len(rest))
	}
	return
}

func decodeOne(buf []byte) (v *AttrValue, rest []byte, err error) {
	tag, payload, rest, err := unframe(buf)
	if err != nil {
		return
	}
	switch tag {
	case tagNull:
		v = Null()
	case tagString:
		v = Str(string(payload))
	case tagInt:
		if len(payload) != 8 {
			err = fmt.Errorf("int payload is %d bytes", len(payload))
			return
		}
		v = Int64(int64(binary.BigEndian.Uint64(payload)))
	case tagFloat:
		if len(payload) != 8 {
			err = fmt.Errorf("float payload is %d bytes", len(payload))
			return
		}
		v = Float64(math.Float64frombits(binary.BigEndian.Uint64(payload)))
	case tagBool:
		if len(payload) != 1 {
			err = fmt.Errorf("bool payload is %d bytes", len(payload))
			return
		}
		v = Bool(payload[0] != 0)
	case tagInts, tagFloats, tagStrings:
		v = &AttrValue{}
		for len(payload) > 0 {
			var elem *AttrValue
			elem, payload, err = decodeOne(payload)
			if err != nil {
				return
			}
			switch tag {
			case tagInts:
				v.Kind = KindInts
				v.Ints = append(v.Ints, elem.Int)
			case tagFloats:
				v.Kind = KindFloats
				v.Floats = append(v.Floats, elem.Float)
			case tagStrings:
				v.Kind = KindStrings
				v.Strs = append(v.Strs, elem.Str)
			}
		}
		if v.Kind == KindNull {
			// empty sequence: the tag alone decides the kind
			switch tag {
			case tagInts:
				v.Kind = KindInts
			case tagFloats:
				v.Kind = KindFloats
			case tagStrings:
				v.Kind = KindStrings
			}
		}
	case tagBytes:
		b := make([]byte, len(payload))
		copy(b, payload)
		v = Blob(b)
	default:
		err = fmt.Errorf("unknown encoding tag: %q", tag)
	}
	return
}

// Text renders a scalar value for identity field input.  Sequence and
// blob kinds have no stable text form and are rejected.
func (v *AttrValue) Text() (s string, err error) {
	switch v.Kind {
	case KindString:
		s = v.Str
	case KindInt:
		s = strconv.FormatInt(v.Int, 10)
	case KindFloat:
		s = strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindBool:
		s = strconv.FormatBool(v.Bool)
	default:
		err = fmt.Errorf("attribute kind %s has no text form", v.Kind)
	}
	return
}
