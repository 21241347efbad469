// Package msgcodec encodes and decodes a single message.Message to and from
// the bytes of one framed wire record, using MessagePack as a
// self-describing binary serializer that needs no schema shared out of
// band between client and server. This mirrors the teacher's codec package
// (codec/binary_codec.go, codec/json_codec.go) one
// layer up: there, a Codec turns an RPCMessage into frame-ready bytes; here,
// Encode/Decode turn a Message into record-ready bytes, with the msgpack
// library doing the heavy lifting the teacher's hand-rolled binary layout
// had to do byte by byte.
package msgcodec

import (
	"encoding"
	"reflect"

	"duplexrpc/message"
	"duplexrpc/rpcerr"

	"github.com/vmihailenco/msgpack/v5"
)

func registerBinaryExt(extID int8, value interface{}) {
	msgpack.RegisterExtEncoder(extID, value, func(e *msgpack.Encoder, v reflect.Value) ([]byte, error) {
		return v.Interface().(encoding.BinaryMarshaler).MarshalBinary()
	})
	msgpack.RegisterExtDecoder(extID, value, func(d *msgpack.Decoder, v reflect.Value, extLen int) error {
		b := make([]byte, extLen)
		if err := d.ReadFull(b); err != nil {
			return err
		}
		return v.Addr().Interface().(encoding.BinaryUnmarshaler).UnmarshalBinary(b)
	})
}

// setExt and mapExt wrap message.Set/message.Map in a struct so the msgpack
// library's generic-interface ext decoder (which special-cases nilable
// kinds like slice/map and mishandles them when registered directly) sees a
// plain, never-nil struct instead.
type setExt struct{ S message.Set }

func (s setExt) MarshalBinary() ([]byte, error)     { return s.S.MarshalBinary() }
func (s *setExt) UnmarshalBinary(data []byte) error { return s.S.UnmarshalBinary(data) }

type mapExt struct{ M message.Map }

func (m mapExt) MarshalBinary() ([]byte, error)     { return m.M.MarshalBinary() }
func (m *mapExt) UnmarshalBinary(data []byte) error { return m.M.UnmarshalBinary(data) }

func init() {
	registerBinaryExt(1, message.NoValue{})
	registerBinaryExt(2, setExt{})
	registerBinaryExt(3, message.BigInt{})
	registerBinaryExt(4, mapExt{})
}

// wireArgItem is the on-the-wire shape of one CALL/CALLBACK argument: a
// two-element array [tag, payload], tag first so a decoder can tell a
// callback handle apart from a plain value before it even looks at payload.
type wireArgItem struct {
	_msgpack struct{} `msgpack:",as_array"`
	Tag      uint32
	Payload  any
}

// wireEnvelope is the on-the-wire shape of a whole message: the three-element
// array [id, type, data] every message, regardless of Type, reduces to.
type wireEnvelope struct {
	_msgpack struct{} `msgpack:",as_array"`
	ID       uint32
	Type     uint32
	Data     any
}

// Encode serializes msg to one wire record.
func Encode(msg *message.Message) ([]byte, error) {
	env := wireEnvelope{ID: msg.ID, Type: uint32(msg.Type)}

	switch msg.Type {
	case message.Call, message.Callback:
		items := make([]wireArgItem, len(msg.Args))
		for i, a := range msg.Args {
			items[i] = wireArgItem{Tag: uint32(a.Tag), Payload: a.Payload}
		}
		env.Data = items
	case message.Return:
		switch result := msg.Result.(type) {
		case nil:
			env.Data = message.NoValue{}
		case message.Set:
			env.Data = setExt{S: result}
		case message.Map:
			env.Data = mapExt{M: result}
		default:
			env.Data = msg.Result
		}
	case message.Error:
		env.Data = msg.Err
	}

	out, err := msgpack.Marshal(&env)
	if err != nil {
		return nil, &rpcerr.CodecError{Cause: err}
	}
	return out, nil
}

// Decode deserializes one wire record back into a Message.
func Decode(data []byte) (*message.Message, error) {
	var raw struct {
		_msgpack struct{} `msgpack:",as_array"`
		ID       uint32
		Type     uint32
		Data     msgpack.RawMessage
	}
	if err := msgpack.Unmarshal(data, &raw); err != nil {
		return nil, &rpcerr.CodecError{Cause: err}
	}

	msg := &message.Message{ID: raw.ID, Type: message.Type(raw.Type)}

	switch msg.Type {
	case message.Call, message.Callback:
		var items []wireArgItem
		if err := msgpack.Unmarshal(raw.Data, &items); err != nil {
			return nil, &rpcerr.CodecError{Cause: err}
		}
		msg.Args = make([]message.ArgItem, len(items))
		for i, it := range items {
			msg.Args[i] = message.ArgItem{Tag: message.ArgTag(it.Tag), Payload: it.Payload}
		}
	case message.Return:
		var result any
		if err := msgpack.Unmarshal(raw.Data, &result); err != nil {
			return nil, &rpcerr.CodecError{Cause: err}
		}
		switch r := result.(type) {
		case message.NoValue:
			msg.Result = nil
		case setExt:
			msg.Result = r.S
		case mapExt:
			msg.Result = r.M
		default:
			msg.Result = result
		}
	case message.Error:
		var errPayload message.ErrorPayload
		if err := msgpack.Unmarshal(raw.Data, &errPayload); err != nil {
			return nil, &rpcerr.CodecError{Cause: err}
		}
		msg.Err = &errPayload
	default:
		return nil, &rpcerr.CodecError{Cause: unsupportedType(raw.Type)}
	}

	return msg, nil
}

type unsupportedType uint32

func (t unsupportedType) Error() string {
	return "msgcodec: unsupported message type tag"
}
