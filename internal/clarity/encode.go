package clarity

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/holiman/uint256"
)

// Encode serializes a Value back to the Clarity binary wire format -- the
// reverse of Decode. Used by internal/structdata to canonically hash
// domain/message tuples before signing (spec.md §6), and by
// internal/dispute and internal/verifier to encode contract-call arguments.
func Encode(v Value) ([]byte, error) {
	switch v.Kind {
	case KindUint:
		return append([]byte{typeUInt}, pad16(v.Int)...), nil
	case KindInt:
		b := pad16(v.Int)
		if v.Negative {
			b = twosComplementBytes(v.Int)
		}
		return append([]byte{typeInt}, b...), nil
	case KindBool:
		if v.Bool {
			return []byte{typeBoolTrue}, nil
		}
		return []byte{typeBoolFalse}, nil
	case KindBuffer:
		out := []byte{typeBuffer}
		out = append(out, uint32Bytes(uint32(len(v.Buffer)))...)
		return append(out, v.Buffer...), nil
	case KindPrincipal:
		// Principals in structured-data messages are passed through as their
		// string form hashed as an ASCII string -- the domain/message tuples
		// this encoder serializes carry principals pre-formatted by the
		// watchtower, never raw hash160 bytes (those only appear on decode
		// of an inbound contract_event, never on the signing path).
		return encodeASCII(v.Text), nil
	case KindStringASCII:
		return encodeASCII(v.Text), nil
	case KindStringUTF8:
		out := []byte{typeStringUTF8}
		out = append(out, uint32Bytes(uint32(len(v.Text)))...)
		return append(out, []byte(v.Text)...), nil
	case KindOptionalNone:
		return []byte{typeOptionalNone}, nil
	case KindOptionalSome:
		inner, err := Encode(*v.Inner)
		if err != nil {
			return nil, err
		}
		return append([]byte{typeOptionalSome}, inner...), nil
	case KindTuple:
		keys := v.SortedTupleKeys()
		out := []byte{typeTuple}
		out = append(out, uint32Bytes(uint32(len(keys)))...)
		for _, k := range keys {
			if len(k) > 255 {
				return nil, fmt.Errorf("clarity: tuple key too long: %s", k)
			}
			out = append(out, byte(len(k)))
			out = append(out, []byte(k)...)
			enc, err := Encode(v.Tuple[k])
			if err != nil {
				return nil, err
			}
			out = append(out, enc...)
		}
		return out, nil
	case KindList:
		out := []byte{typeList}
		out = append(out, uint32Bytes(uint32(len(v.List)))...)
		for _, item := range v.List {
			enc, err := Encode(item)
			if err != nil {
				return nil, err
			}
			out = append(out, enc...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("clarity: unsupported value kind for encode: %v", v.Kind)
	}
}

func encodeASCII(s string) []byte {
	out := []byte{typeStringASCII}
	out = append(out, uint32Bytes(uint32(len(s)))...)
	return append(out, []byte(s)...)
}

func uint32Bytes(n uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, n)
	return b
}

func pad16(n *uint256.Int) []byte {
	if n == nil {
		n = new(uint256.Int)
	}
	b := n.Bytes32()
	return b[16:]
}

func twosComplementBytes(mag *uint256.Int) []byte {
	// 128-bit two's complement of -mag.
	b := pad16(mag)
	max := new(uint256.Int).SetAllOne()
	magInt := new(uint256.Int).SetBytes(b)
	inv := new(uint256.Int).Xor(magInt, max)
	one := uint256.NewInt(1)
	tc := new(uint256.Int).Add(inv, one)
	out := tc.Bytes32()
	return out[16:]
}

// UInt constructs a uint128 Value.
func UInt(n *uint256.Int) Value { return Value{Kind: KindUint, Int: n} }

// Principal constructs a principal Value from its already-formatted string.
func Principal(s string) Value { return Value{Kind: KindPrincipal, Text: s} }

// ASCII constructs a string-ascii Value.
func ASCII(s string) Value { return Value{Kind: KindStringASCII, Text: s} }

// Buffer constructs a buffer Value from raw bytes.
func Buffer(b []byte) Value { return Value{Kind: KindBuffer, Buffer: b} }

// BufferHex constructs a buffer Value from a hex string (optional 0x prefix).
func BufferHex(s string) (Value, error) {
	raw, err := hex.DecodeString(trimHexPrefix(s))
	if err != nil {
		return Value{}, err
	}
	return Buffer(raw), nil
}

// Tuple constructs a tuple Value.
func Tuple(fields map[string]Value) Value { return Value{Kind: KindTuple, Tuple: fields} }

// Some wraps v in `(some v)`.
func Some(v Value) Value { return Value{Kind: KindOptionalSome, Inner: &v} }

// None is `none`.
func None() Value { return Value{Kind: KindOptionalNone} }
