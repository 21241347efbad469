package message

import (
	"fmt"
	"math/big"

	"github.com/vmihailenco/msgpack/v5"
)

// BigInt, Set, and Map are argument/return-value shapes the protocol must
// round-trip that Go's msgpack library has no native representation for:
// arbitrary-precision integers, sets, and maps keyed by non-string values.
// Each implements encoding.BinaryMarshaler /
// BinaryUnmarshaler so msgcodec can register them as msgpack extension
// types — that keeps them distinguishable on the wire from a plain string,
// slice, or string-keyed map with the same runtime contents. A BigInt is
// registered directly and keeps its type anywhere in a message. Set and Map
// are wrapped in their extension only when they are a RETURN message's
// top-level result; as a CALL or CALLBACK argument, or nested inside another
// value, they are encoded by msgpack's default rules and do not decode back
// to a Set or Map.

// BigInt carries an arbitrary-precision integer, encoded on the wire as its
// base-10 string form.
type BigInt struct {
	*big.Int
}

// NewBigInt wraps i for wire transport.
func NewBigInt(i *big.Int) BigInt { return BigInt{Int: i} }

func (b BigInt) MarshalBinary() ([]byte, error) {
	if b.Int == nil {
		return []byte("0"), nil
	}
	return []byte(b.Int.String()), nil
}

func (b *BigInt) UnmarshalBinary(data []byte) error {
	i, ok := new(big.Int).SetString(string(data), 10)
	if !ok {
		return fmt.Errorf("message: invalid big integer literal %q", data)
	}
	b.Int = i
	return nil
}

// Set is an unordered collection of distinct values, round-tripped as a
// msgpack extension wrapping a plain array so it is distinguishable from an
// ordered sequence of the same elements.
type Set []any

func (s Set) MarshalBinary() ([]byte, error) {
	return msgpack.Marshal([]any(s))
}

func (s *Set) UnmarshalBinary(data []byte) error {
	var items []any
	if err := msgpack.Unmarshal(data, &items); err != nil {
		return err
	}
	*s = Set(items)
	return nil
}

// Map is a record keyed by arbitrary (non-string-only) values, round-tripped
// as an array of [key, value] pairs. String-keyed records use plain Go
// map[string]any instead, which msgpack already handles natively.
type Map map[any]any

func (m Map) MarshalBinary() ([]byte, error) {
	pairs := make([][2]any, 0, len(m))
	for k, v := range m {
		pairs = append(pairs, [2]any{k, v})
	}
	return msgpack.Marshal(pairs)
}

func (m *Map) UnmarshalBinary(data []byte) error {
	var pairs [][2]any
	if err := msgpack.Unmarshal(data, &pairs); err != nil {
		return err
	}
	out := make(Map, len(pairs))
	for _, p := range pairs {
		out[p[0]] = p[1]
	}
	*m = out
	return nil
}

func (v NoValue) MarshalBinary() ([]byte, error) { return []byte{}, nil }

func (v *NoValue) UnmarshalBinary([]byte) error { return nil }
