package wire

import (
	"errors"

	"duplexrpc/rpcerr"
)

// Sealer/Opener are satisfied by *rpccipher.Suite; expressed as interfaces
// here so tests can supply a fake cipher without pulling in the real AEAD.
type Sealer interface {
	Seal(record []byte) []byte
}

type Opener interface {
	Open(sealed []byte) ([]byte, error)
}

// Encoder turns discrete payload records into framed, optionally encrypted
// wire chunks. A zero-value Encoder (nil Cipher) sends payloads in the
// clear — no pre-key configured means no encryption, not a broken one.
type Encoder struct {
	Cipher Sealer
}

// Encode wraps one record with encryption (if configured) and the
// length+magic frame header. The result may be written to the carrier
// directly, or concatenated with other encoded records into one flush.
func (e *Encoder) Encode(record []byte) []byte {
	payload := record
	if e.Cipher != nil {
		payload = e.Cipher.Seal(record)
	}
	out := make([]byte, HeaderSize+len(payload))
	putHeader(out, len(payload))
	copy(out[HeaderSize:], payload)
	return out
}

// Decoder reassembles framed records out of arbitrarily fragmented chunks.
// It is not safe for concurrent use — the carry buffer belongs to a single
// logical reader per pipeline, same as the teacher's read loop.
type Decoder struct {
	Cipher Opener
	carry  []byte
}

// Feed appends chunk to the carry buffer and extracts every complete record
// it can. A bad magic number or a failed decrypt is a fatal framing error:
// there is no way to resynchronize a byte stream once its framing is
// suspect, so the codec never retries and the caller should tear the
// pipeline down.
func (d *Decoder) Feed(chunk []byte) ([][]byte, error) {
	d.carry = append(d.carry, chunk...)

	var records [][]byte
	for {
		if len(d.carry) < HeaderSize {
			return records, nil
		}
		length, magic := readHeader(d.carry)
		if magic != Magic {
			return records, &rpcerr.FramingError{Reason: "invalid magic number"}
		}
		total := HeaderSize + int(length)
		if len(d.carry) < total {
			return records, nil
		}

		payload := d.carry[HeaderSize:total]
		record := payload
		if d.Cipher != nil {
			plain, err := d.Cipher.Open(payload)
			if err != nil {
				return records, &rpcerr.DecryptError{Cause: err}
			}
			record = plain
		}
		// Copy out of the carry buffer before advancing it, so callers can
		// hold onto the record after the next Feed reslices d.carry.
		out := make([]byte, len(record))
		copy(out, record)
		records = append(records, out)

		d.carry = d.carry[total:]
	}
}

func readHeader(buf []byte) (length uint32, magic uint32) {
	length = uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
	magic = uint32(buf[4]) | uint32(buf[5])<<8 | uint32(buf[6])<<16 | uint32(buf[7])<<24
	return
}

// Renormalize re-runs a no-cipher decode/encode pass over data for the HTTP
// client adapter: an HTTP response body may have been recoalesced by the
// HTTP stack, so before it reaches the engine it is decoded (with no
// cipher) and re-encoded, restoring clean record boundaries.
func Renormalize(data []byte) ([]byte, error) {
	dec := &Decoder{}
	records, err := dec.Feed(data)
	if err != nil {
		return nil, err
	}
	if len(dec.carry) != 0 {
		return nil, errors.New("wire: trailing partial frame in HTTP response body")
	}
	enc := &Encoder{}
	var out []byte
	for _, r := range records {
		out = append(out, enc.Encode(r)...)
	}
	return out, nil
}
