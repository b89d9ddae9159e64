// Package eventlog implements the durable, ordered, chain-verified event
// streams described in spec.md §4.3 (C3): append, read, validate_chain,
// snapshot, and checkpointed replay, on top of a per-stream CID chain
// rooted at the Message Kernel's canonical encoding.
package eventlog

import (
	"encoding/binary"

	"github.com/arc-self/alchemist-core/kernel"
)

// EventRecord extends an Event-kind Msg with the chain-linkage fields from
// spec.md §3: Cid of this record's own canonical form, PrevCid of the
// preceding record in Stream (or the nil Cid for the first), and a
// gap-free, strictly increasing Sequence.
type EventRecord struct {
	Msg      kernel.Msg
	Cid      kernel.Cid
	PrevCid  kernel.Cid
	Sequence uint64
	Stream   string
}

// canonicalRecordBytes implements the normative "Event record binary form"
// of spec.md §6: kernel.CanonicalBytes(msg) extended with prev_cid
// (length-prefixed multihash, empty for the nil Cid) and sequence (8 bytes,
// big-endian). This is the exact byte sequence cid_of hashes to produce
// EventRecord.Cid, so two independent encoders of the same logical record
// always agree.
func canonicalRecordBytes(msg kernel.Msg, prevCid kernel.Cid, sequence uint64) []byte {
	buf := kernel.CanonicalBytes(msg)
	prevBytes := prevCid.Bytes()
	var lenTmp [4]byte
	binary.BigEndian.PutUint32(lenTmp[:], uint32(len(prevBytes)))
	buf = append(buf, lenTmp[:]...)
	buf = append(buf, prevBytes...)
	var seqTmp [8]byte
	binary.BigEndian.PutUint64(seqTmp[:], sequence)
	buf = append(buf, seqTmp[:]...)
	return buf
}

// cidOfRecord computes the Cid a record should carry given its message,
// predecessor, and sequence — the composition append() uses to populate
// EventRecord.Cid, and validate_chain uses to detect tampering.
func cidOfRecord(msg kernel.Msg, prevCid kernel.Cid, sequence uint64) (kernel.Cid, error) {
	return kernel.CidOfBytes(canonicalRecordBytes(msg, prevCid, sequence))
}
