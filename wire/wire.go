// Package wire implements the length-prefixed record framing used to carry
// RPC messages over any ordered byte stream, plus the wire-level constants
// both peers must agree on.
//
// Frame format on the wire:
//
//	0        4        8                    8+len
//	┌────────┬────────┬─────────────────────┐
//	│ len    │ magic  │      payload         │
//	│ uint32 │ uint32 │      len bytes       │
//	└────────┴────────┴─────────────────────┘
//
// Both integers are little-endian. Unlike the teacher's big-endian 14-byte
// header, this framing has no version/codec/msgtype bytes of its own — those
// concerns live one layer up, inside the message codec's payload.
package wire

import "encoding/binary"

// Magic identifies a valid frame header, rejecting anything that landed on
// this carrier by mistake.
const Magic uint32 = 0xB1F7705F

// Message type tags, carried inside the message-codec payload, not the frame
// header — reproduced here because both layers need to agree on the same
// uint32 constants.
const (
	TypeCall     uint32 = 0xDF68F4CB
	TypeReturn   uint32 = 0x68B17581
	TypeCallback uint32 = 0x8D65E5CC
	TypeError    uint32 = 0xA07C0F84
)

// Argument type tags.
const (
	TagOthers   uint32 = 0xA7F68C
	TagFunction uint32 = 0x7FF45F
)

// HeaderSize is the fixed length+magic prefix in front of every payload.
const HeaderSize = 8

func putHeader(buf []byte, payloadLen int) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(payloadLen))
	binary.LittleEndian.PutUint32(buf[4:8], Magic)
}
