package eventlog

import (
	"github.com/arc-self/alchemist-core/alerr"
)

// validateChainRecords recomputes cid over each record's (msg, prev_cid,
// sequence) and checks prev-linkage, implementing spec.md §4.3's
// validate_chain contract. It returns ok=false with a nil error for an
// ordinary broken chain (tamper or missing link) — that is data, not
// failure — and a non-nil error only if recomputation itself cannot be
// performed.
//
// On the first anomaly, validateChainRecords reports only the sequence
// suffix starting at the anomaly as broken (the resolved form of the
// ChainBroken Open Question): everything before the anomaly is still
// trustworthy, so callers quarantine from brokenFrom onward rather than
// discarding the whole range.
func validateChainRecords(records []EventRecord) (ok bool, brokenFrom uint64, err error) {
	for i, rec := range records {
		wantCid, cerr := cidOfRecord(rec.Msg, rec.PrevCid, rec.Sequence)
		if cerr != nil {
			return false, 0, cerr
		}
		if !wantCid.Equal(rec.Cid) {
			return false, rec.Sequence, nil
		}
		if i > 0 {
			prev := records[i-1]
			if prev.Sequence+1 != rec.Sequence {
				return false, rec.Sequence, nil
			}
			if !prev.Cid.Equal(rec.PrevCid) {
				return false, rec.Sequence, nil
			}
		}
	}
	return true, 0, nil
}

// detectFork reports whether candidate shares a prev_cid with last but
// computes a different Cid — two records both claiming to extend the same
// predecessor. Append-time callers use this to reject the later of two
// concurrently-constructed records with ForkConflict, per spec.md §4.3's
// stated resolution: accept the first durably-persisted record, reject the
// other.
func detectFork(last, candidate EventRecord) bool {
	return last.PrevCid.Equal(candidate.PrevCid) && !last.Cid.Equal(candidate.Cid) && last.Sequence == candidate.Sequence
}

// forkConflictError is the sentinel alerr returned by AppendExpect when a
// concurrent writer already advanced the stream past the sequence the
// caller was about to claim.
func forkConflictError(op string) error {
	return alerr.New(alerr.KindForkConflict, op)
}
