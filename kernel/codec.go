package kernel

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// wireVersion is the tag byte prefixing every canonical encoding (spec.md
// §6). Bumping it is a breaking wire change; cid_of results for version N
// are never compared against version N+1.
const wireVersion byte = 1

// CanonicalBytes produces the deterministic binary encoding of a Msg
// described in spec.md §4.1/§6: a version tag followed by fixed-order,
// length-prefixed fields, fixed-unit timestamps, no floating point. The
// same Msg always produces byte-identical output — two independent calls,
// even across processes, agree (testable property #2 in spec.md §8).
//
// Deliberately implemented on encoding/binary rather than a generic
// serialization library: spec.md pins an exact field order and exact
// integer widths for the wire form, which is precisely what a
// general-purpose codec (protobuf, msgpack, gob) would NOT guarantee
// byte-for-byte across schema evolution. See DESIGN.md for the stdlib-only
// justification.
func CanonicalBytes(m Msg) []byte {
	buf := make([]byte, 0, 128+len(m.Payload.Inline))
	buf = append(buf, wireVersion)
	buf = appendUUID(buf, m.ID)
	buf = appendOptionalUUID(buf, m.CorrelationID)
	buf = appendOptionalUUID(buf, m.CausationID)
	buf = appendUUID(buf, m.OwnerID)
	buf = appendLenPrefixedString(buf, m.Subject.String())
	buf = append(buf, byte(m.Kind))
	buf = appendPayload(buf, m.Payload)
	buf = appendUint64(buf, uint64(m.Timestamp.UnixNano()))
	return buf
}

func appendUUID(buf []byte, id uuid.UUID) []byte {
	return append(buf, id[:]...)
}

// appendOptionalUUID writes the 1-byte presence flag followed by 16 bytes,
// per the "correlation_id(17: 1 presence byte + 16)" wire layout.
func appendOptionalUUID(buf []byte, id uuid.UUID) []byte {
	if id == uuid.Nil {
		buf = append(buf, 0)
		var zero [16]byte
		return append(buf, zero[:]...)
	}
	buf = append(buf, 1)
	return append(buf, id[:]...)
}

func appendLenPrefixedString(buf []byte, s string) []byte {
	buf = appendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

// appendPayload writes the 1-byte discriminant (0=inline, 1=cid) followed
// by the length-prefixed bytes or multihash, per spec.md §6.
func appendPayload(buf []byte, p Payload) []byte {
	if p.IsRef() {
		buf = append(buf, 1)
		cidBytes := p.CID.Bytes()
		buf = appendUint32(buf, uint32(len(cidBytes)))
		return append(buf, cidBytes...)
	}
	buf = append(buf, 0)
	buf = appendUint32(buf, uint32(len(p.Inline)))
	return append(buf, p.Inline...)
}

// CidOf computes cid_of(msg): the CID of the message's canonical
// encoding. It is the identifier callers use to reference a Msg from a
// causation_id field.
func CidOf(m Msg) (Cid, error) {
	return CidOfBytes(CanonicalBytes(m))
}

// Decode reverses CanonicalBytes, used by tests to assert the round-trip
// property (spec.md §8 property #8) and by any component that receives a
// canonical-encoded Msg off the wire (e.g. a bus message body).
func Decode(buf []byte) (Msg, error) {
	r := &reader{buf: buf}
	if r.u8() != wireVersion {
		return Msg{}, fmt.Errorf("kernel: decode: unsupported wire version")
	}
	var m Msg
	m.ID = r.uuid()
	m.CorrelationID = r.optionalUUID()
	m.CausationID = r.optionalUUID()
	m.OwnerID = r.uuid()
	subj, err := ParseSubject(r.lenPrefixedString())
	if err != nil {
		return Msg{}, err
	}
	m.Subject = subj
	m.Kind = Kind(r.u8())
	m.Payload, err = r.payload()
	if err != nil {
		return Msg{}, err
	}
	m.Timestamp = unixNanoToTime(r.u64())
	if r.err != nil {
		return Msg{}, r.err
	}
	return m, nil
}

func unixNanoToTime(ns uint64) time.Time {
	return time.Unix(0, int64(ns)).UTC()
}

type reader struct {
	buf []byte
	pos int
	err error
}

func (r *reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if r.pos+n > len(r.buf) {
		r.err = fmt.Errorf("kernel: decode: truncated buffer")
		return false
	}
	return true
}

func (r *reader) u8() byte {
	if !r.need(1) {
		return 0
	}
	v := r.buf[r.pos]
	r.pos++
	return v
}

func (r *reader) u32() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v
}

func (r *reader) u64() uint64 {
	if !r.need(8) {
		return 0
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v
}

func (r *reader) uuid() uuid.UUID {
	if !r.need(16) {
		return uuid.Nil
	}
	var id uuid.UUID
	copy(id[:], r.buf[r.pos:r.pos+16])
	r.pos += 16
	return id
}

func (r *reader) optionalUUID() uuid.UUID {
	present := r.u8()
	id := r.uuid()
	if present == 0 {
		return uuid.Nil
	}
	return id
}

func (r *reader) lenPrefixedString() string {
	n := r.u32()
	if !r.need(int(n)) {
		return ""
	}
	s := string(r.buf[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s
}

func (r *reader) payload() (Payload, error) {
	disc := r.u8()
	n := r.u32()
	if !r.need(int(n)) {
		return Payload{}, r.err
	}
	data := append([]byte(nil), r.buf[r.pos:r.pos+int(n)]...)
	r.pos += int(n)
	if disc == 1 {
		cid, err := CidFromBytes(data)
		if err != nil {
			return Payload{}, err
		}
		return Payload{CID: &cid}, nil
	}
	return Payload{Inline: data}, nil
}
