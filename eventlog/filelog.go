package eventlog

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arc-self/alchemist-core/alerr"
	"github.com/arc-self/alchemist-core/kernel"
)

// FileLog is a filesystem-backed Log: one append-only file per stream,
// framed records, an in-memory tail (last Cid/Sequence) per stream to
// avoid rescanning on every Append, and a sidecar checkpoint file per
// (stream, consumer) for Replay. Grounded in the teacher's per-service
// durability convention of "one process, one writer, fsync before ack"
// (see audit-service's outbox consumer, which acks only after its handler
// commits) generalized from a single Postgres table to a per-stream file.
type FileLog struct {
	root  string
	log   *zap.Logger
	dedup *dedupWindow

	mu        sync.Mutex // guards streams map and publisher
	streams   map[string]*streamHandle
	publisher Publisher
}

type streamHandle struct {
	mu      sync.Mutex
	path    string
	lastCid kernel.Cid
	lastSeq uint64 // 0 means empty; sequence numbers are 1-based
	loaded  bool
}

// NewFileLog creates (if needed) root and returns a Log rooted there.
func NewFileLog(root string, log *zap.Logger, dedupTTL time.Duration) (*FileLog, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("eventlog: create root: %w", err)
	}
	return &FileLog{
		root:    root,
		log:     log,
		dedup:   newDedupWindow(dedupTTL),
		streams: make(map[string]*streamHandle),
	}, nil
}

// SetPublisher wires the Publisher (typically a router.Router) that
// Append fans a record out to once its fsync completes. Must be set
// before any Append whose result should reach subscribers; an
// unconfigured FileLog still appends durably, it just has nothing to
// publish to, which keeps tests that only exercise the log itself free
// of a router dependency.
func (l *FileLog) SetPublisher(p Publisher) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.publisher = p
}

func (l *FileLog) publisherSnapshot() Publisher {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.publisher
}

// publishLocked hands rec.Msg to the configured Publisher. Called with
// the record's streamHandle.mu still held: per-stream appends are
// already serialized there, so publishing inside the same critical
// section makes publish order match sequence order for free (spec.md
// §4.5's "publish order within a stream matches sequence order").
func (l *FileLog) publishLocked(ctx context.Context, rec EventRecord) {
	p := l.publisherSnapshot()
	if p == nil {
		return
	}
	if err := p.Publish(ctx, rec.Msg); err != nil {
		l.log.Warn("eventlog: publish after append failed",
			zap.String("stream", rec.Stream), zap.Uint64("sequence", rec.Sequence), zap.Error(err))
	}
}

func (l *FileLog) handle(stream string) (*streamHandle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if h, ok := l.streams[stream]; ok {
		return h, nil
	}
	dir := filepath.Join(l.root, stream)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("eventlog: create stream dir: %w", err)
	}
	h := &streamHandle{path: filepath.Join(dir, "log.bin")}
	l.streams[stream] = h
	return h, nil
}

// ensureLoaded scans the stream's file once to recover lastCid/lastSeq
// after a process restart. Must be called with h.mu held.
func (h *streamHandle) ensureLoaded() error {
	if h.loaded {
		return nil
	}
	f, err := os.Open(h.path)
	if os.IsNotExist(err) {
		h.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("eventlog: open stream: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		rec, err := decodeFileRecord(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("eventlog: scan stream: %w", err)
		}
		h.lastCid = rec.Cid
		h.lastSeq = rec.Sequence
	}
	h.loaded = true
	return nil
}

func (l *FileLog) Append(ctx context.Context, stream string, msg kernel.Msg) (EventRecord, error) {
	if msg.Kind != kernel.KindEvent {
		return EventRecord{}, alerr.New(alerr.KindInvalidSubject, "eventlog.Append")
	}
	h, err := l.handle(stream)
	if err != nil {
		return EventRecord{}, alerr.Wrap(alerr.KindTransport, "eventlog.Append", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.ensureLoaded(); err != nil {
		return EventRecord{}, alerr.Wrap(alerr.KindTransport, "eventlog.Append", err)
	}

	if l.dedup.CheckAndRecord(stream, msg.ID) {
		// Producer retry within the window: the original append already
		// durably recorded (and published) this message. Report the
		// current tail as the (idempotent) outcome instead of appending,
		// or re-publishing, a duplicate.
		return EventRecord{
			Msg: msg, Cid: h.lastCid, PrevCid: h.lastCid, Sequence: h.lastSeq, Stream: stream,
		}, nil
	}

	rec, err := l.appendLocked(h, stream, msg)
	if err != nil {
		return EventRecord{}, alerr.Wrap(alerr.KindTransport, "eventlog.Append", err)
	}
	l.log.Debug("eventlog: appended", zap.String("stream", stream), zap.Uint64("sequence", rec.Sequence))

	// Publish only after the write above has fsynced, and still within
	// h.mu: the per-stream append path is already serialized here, so
	// serializing the publish call alongside it is what keeps publish
	// order equal to sequence order without any extra bookkeeping.
	l.publishLocked(ctx, rec)
	return rec, nil
}

// AppendExpect is an optimistic-concurrency append: the caller supplies
// the (sequence, cid) tail it observed when it decided to extend the
// stream. If another writer has since advanced the stream past that
// tail with a record that shares the same predecessor but resolves to a
// different cid, the two appends raced to extend the same predecessor —
// the fork spec.md §4.3 requires detecting. AppendExpect rejects the
// later of the two with ForkConflict rather than silently accepting a
// divergent chain; spec.md's stated resolution is to accept whichever
// record was durably persisted first and reject the other.
func (l *FileLog) AppendExpect(ctx context.Context, stream string, msg kernel.Msg, afterSeq uint64, afterCid kernel.Cid) (EventRecord, error) {
	if msg.Kind != kernel.KindEvent {
		return EventRecord{}, alerr.New(alerr.KindInvalidSubject, "eventlog.AppendExpect")
	}
	h, err := l.handle(stream)
	if err != nil {
		return EventRecord{}, alerr.Wrap(alerr.KindTransport, "eventlog.AppendExpect", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.ensureLoaded(); err != nil {
		return EventRecord{}, alerr.Wrap(alerr.KindTransport, "eventlog.AppendExpect", err)
	}

	if l.dedup.CheckAndRecord(stream, msg.ID) {
		return EventRecord{
			Msg: msg, Cid: h.lastCid, PrevCid: h.lastCid, Sequence: h.lastSeq, Stream: stream,
		}, nil
	}

	if h.lastSeq != afterSeq || !h.lastCid.Equal(afterCid) {
		if err := l.checkForkLocked(h, stream, msg, afterSeq, afterCid); err != nil {
			return EventRecord{}, err
		}
		return EventRecord{}, alerr.New(alerr.KindChainBroken, "eventlog.AppendExpect")
	}

	rec, err := l.appendLocked(h, stream, msg)
	if err != nil {
		return EventRecord{}, alerr.Wrap(alerr.KindTransport, "eventlog.AppendExpect", err)
	}
	l.log.Debug("eventlog: appended (AppendExpect)", zap.String("stream", stream), zap.Uint64("sequence", rec.Sequence))
	l.publishLocked(ctx, rec)
	return rec, nil
}

// checkForkLocked compares whatever actually occupies afterSeq+1 against
// what msg would have produced there, reporting ForkConflict only when
// both share afterCid as prev_cid yet diverge — the exact shape
// detectFork recognizes. Must be called with h.mu held.
func (l *FileLog) checkForkLocked(h *streamHandle, stream string, msg kernel.Msg, afterSeq uint64, afterCid kernel.Cid) error {
	existing, err := l.readLocked(h, stream, afterSeq+1, 1)
	if err != nil {
		return alerr.Wrap(alerr.KindTransport, "eventlog.AppendExpect", err)
	}
	if len(existing) == 0 {
		return nil
	}
	candCid, err := cidOfRecord(msg, afterCid, afterSeq+1)
	if err != nil {
		return alerr.Wrap(alerr.KindTransport, "eventlog.AppendExpect", err)
	}
	candidate := EventRecord{Cid: candCid, PrevCid: afterCid, Sequence: afterSeq + 1}
	if detectFork(existing[0], candidate) {
		return forkConflictError("eventlog.AppendExpect")
	}
	return nil
}

// appendLocked performs the durable write itself: assign sequence =
// h.lastSeq+1, prev_cid = h.lastCid, compute cid, write the framed
// record, fsync, and advance the in-memory tail. Callers must hold
// h.mu and must already have run ensureLoaded/the dedup check.
func (l *FileLog) appendLocked(h *streamHandle, stream string, msg kernel.Msg) (EventRecord, error) {
	seq := h.lastSeq + 1
	prevCid := h.lastCid
	cid, err := cidOfRecord(msg, prevCid, seq)
	if err != nil {
		return EventRecord{}, err
	}
	rec := EventRecord{Msg: msg, Cid: cid, PrevCid: prevCid, Sequence: seq, Stream: stream}

	f, err := os.OpenFile(h.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return EventRecord{}, err
	}
	defer f.Close()

	if _, err := f.Write(encodeFileRecord(rec)); err != nil {
		return EventRecord{}, err
	}
	if err := f.Sync(); err != nil {
		return EventRecord{}, err
	}

	h.lastCid = cid
	h.lastSeq = seq
	return rec, nil
}

func (l *FileLog) Read(ctx context.Context, stream string, fromSequence uint64, limit int) ([]EventRecord, error) {
	h, err := l.handle(stream)
	if err != nil {
		return nil, alerr.Wrap(alerr.KindTransport, "eventlog.Read", err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	out, err := l.readLocked(h, stream, fromSequence, limit)
	if err != nil {
		return nil, alerr.Wrap(alerr.KindTransport, "eventlog.Read", err)
	}
	return out, nil
}

// readLocked scans stream's file for records from fromSequence onward,
// up to limit (<=0 meaning no limit). Callers must hold h.mu.
func (l *FileLog) readLocked(h *streamHandle, stream string, fromSequence uint64, limit int) ([]EventRecord, error) {
	f, err := os.Open(h.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []EventRecord
	r := bufio.NewReader(f)
	for {
		rec, err := decodeFileRecord(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if rec.Sequence < fromSequence {
			continue
		}
		rec.Stream = stream
		out = append(out, rec)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// SweepDedup evicts stale dedup-window entries across every stream. It
// touches no stream file or in-memory tail, only the producer-retry
// dedup index, so it is safe to run concurrently with Append/Read.
func (l *FileLog) SweepDedup() {
	l.dedup.Sweep()
}

func (l *FileLog) ValidateChain(ctx context.Context, stream string, from, to uint64) (bool, error) {
	limit := 0
	if to >= from {
		limit = int(to-from) + 1
	}
	records, err := l.Read(ctx, stream, from, limit)
	if err != nil {
		return false, err
	}
	ok, _, err := validateChainRecords(records)
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (l *FileLog) Snapshot(ctx context.Context, stream string, atSequence uint64, state []byte) (SnapshotId, error) {
	dir := filepath.Join(l.root, stream, "snapshots")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", alerr.Wrap(alerr.KindTransport, "eventlog.Snapshot", err)
	}
	id := SnapshotId(uuid.New().String())
	path := filepath.Join(dir, fmt.Sprintf("%020d-%s.snap", atSequence, id))
	if err := os.WriteFile(path, state, 0o644); err != nil {
		return "", alerr.Wrap(alerr.KindTransport, "eventlog.Snapshot", err)
	}
	return id, nil
}

func encodeFileRecord(rec EventRecord) []byte {
	msgBytes := kernel.CanonicalBytes(rec.Msg)
	prevBytes := rec.PrevCid.Bytes()
	cidBytes := rec.Cid.Bytes()

	buf := make([]byte, 0, len(msgBytes)+len(prevBytes)+len(cidBytes)+24)
	buf = appendLenPrefixed(buf, msgBytes)
	buf = appendLenPrefixed(buf, prevBytes)
	buf = appendLenPrefixed(buf, cidBytes)
	var seqTmp [8]byte
	binary.BigEndian.PutUint64(seqTmp[:], rec.Sequence)
	buf = append(buf, seqTmp[:]...)

	framed := make([]byte, 4+len(buf))
	binary.BigEndian.PutUint32(framed[:4], uint32(len(buf)))
	copy(framed[4:], buf)
	return framed
}

func decodeFileRecord(r *bufio.Reader) (EventRecord, error) {
	var lenTmp [4]byte
	if _, err := io.ReadFull(r, lenTmp[:]); err != nil {
		// A partial length prefix at end-of-file means the previous
		// process crashed mid-write; treat the incomplete trailing record
		// as absent rather than surfacing a read error.
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return EventRecord{}, io.EOF
		}
		return EventRecord{}, err
	}
	n := binary.BigEndian.Uint32(lenTmp[:])
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return EventRecord{}, io.EOF
		}
		return EventRecord{}, fmt.Errorf("eventlog: truncated record body: %w", err)
	}

	pos := 0
	msgBytes, pos, err := readLenPrefixed(body, pos)
	if err != nil {
		return EventRecord{}, err
	}
	prevBytes, pos, err := readLenPrefixed(body, pos)
	if err != nil {
		return EventRecord{}, err
	}
	cidBytes, pos, err := readLenPrefixed(body, pos)
	if err != nil {
		return EventRecord{}, err
	}
	if pos+8 > len(body) {
		return EventRecord{}, fmt.Errorf("eventlog: truncated sequence field")
	}
	seq := binary.BigEndian.Uint64(body[pos : pos+8])

	msg, err := kernel.Decode(msgBytes)
	if err != nil {
		return EventRecord{}, err
	}
	prevCid, err := kernel.CidFromBytes(prevBytes)
	if err != nil {
		return EventRecord{}, err
	}
	cid, err := kernel.CidFromBytes(cidBytes)
	if err != nil {
		return EventRecord{}, err
	}
	return EventRecord{Msg: msg, Cid: cid, PrevCid: prevCid, Sequence: seq}, nil
}

func appendLenPrefixed(buf, data []byte) []byte {
	var lenTmp [4]byte
	binary.BigEndian.PutUint32(lenTmp[:], uint32(len(data)))
	buf = append(buf, lenTmp[:]...)
	return append(buf, data...)
}

func readLenPrefixed(body []byte, pos int) ([]byte, int, error) {
	if pos+4 > len(body) {
		return nil, 0, fmt.Errorf("eventlog: truncated length prefix")
	}
	n := int(binary.BigEndian.Uint32(body[pos : pos+4]))
	pos += 4
	if pos+n > len(body) {
		return nil, 0, fmt.Errorf("eventlog: truncated field")
	}
	return body[pos : pos+n], pos + n, nil
}
