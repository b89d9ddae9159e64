package kernel

import (
	"fmt"

	gocid "github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"lukechampine.com/blake3"
)

// blake3MulticodecCode is the multicodec table entry for BLAKE3-256
// ("blake3", 0x1e). go-multihash's Sum() only drives hashers it has
// registered by name; Encode() accepts any precomputed digest under any
// code, which is what we want here — alchemist-core pins BLAKE3-256 as
// the one supported hash function for a deployment (spec.md §9 Open
// Question, resolved in SPEC_FULL.md §9) and never negotiates it, so there
// is no need to route through multihash's hash-function registry.
const blake3MulticodecCode = 0x1e

// Cid is a content identifier: a self-describing, hash-addressed name for
// a byte blob, implemented as a CIDv1 over raw binary with a BLAKE3-256
// multihash digest.
type Cid struct {
	c gocid.Cid
}

// NilCid is the zero-value Cid; prev_cid of the first record in a stream
// uses it in place of the "null" described in spec.md §3.
var NilCid = Cid{}

// IsNil reports whether c is the zero-value Cid (no underlying digest).
func (c Cid) IsNil() bool { return !c.c.Defined() }

// Bytes returns the binary multihash-wrapped CID form used on the wire
// (spec.md §6's "prev_cid: len-prefixed multihash or empty").
func (c Cid) Bytes() []byte {
	if c.IsNil() {
		return nil
	}
	return c.c.Bytes()
}

// String returns the base32 text form, useful for logs and the admin API.
func (c Cid) String() string {
	if c.IsNil() {
		return ""
	}
	return c.c.String()
}

// Equal reports whether two Cids name the same content.
func (c Cid) Equal(other Cid) bool {
	return c.c.Equals(other.c)
}

// CidFromBytes parses the binary form produced by Bytes.
func CidFromBytes(b []byte) (Cid, error) {
	if len(b) == 0 {
		return NilCid, nil
	}
	parsed, err := gocid.Cast(b)
	if err != nil {
		return Cid{}, fmt.Errorf("kernel: parse cid: %w", err)
	}
	return Cid{c: parsed}, nil
}

// CidOfBytes computes the Cid of an arbitrary byte blob — the primitive
// the content store uses for put(), and the one cid_of(msg) composes with
// canonical_bytes(msg).
func CidOfBytes(data []byte) (Cid, error) {
	digest := blake3.Sum256(data)
	encoded, err := mh.Encode(digest[:], blake3MulticodecCode)
	if err != nil {
		return Cid{}, fmt.Errorf("kernel: encode multihash: %w", err)
	}
	return Cid{c: gocid.NewCidV1(gocid.Raw, encoded)}, nil
}
