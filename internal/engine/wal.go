package engine

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
)

// RecordKind discriminates a log record's role. BEGIN/COMMIT/ABORT mark a
// transaction's lifecycle; INSERT/DELETE/UPDATE are logical data changes;
// PAGE_SPLIT/PAGE_MERGE record structural tree changes; CHECKPOINT_BEGIN
// and CHECKPOINT_END bound a checkpoint.
type RecordKind uint8

const (
	RecBegin RecordKind = iota + 1
	RecCommit
	RecAbort
	RecInsert
	RecDelete
	RecUpdate
	RecPageSplit
	RecPageMerge
	RecCheckpointBegin
	RecCheckpointEnd
)

// LogRecord is one logical write-ahead-log entry.
type LogRecord struct {
	LSN      LSN
	PrevLSN  LSN
	TxnID    TxnID
	Kind     RecordKind
	PageID   PageID
	Key      []byte
	Value    []byte
	OldValue []byte
}

const recordFixedSize = 8 + 8 + 8 + 1 + 4 + 4 + 4 + 4 // lsn,prevlsn,txnid,kind,pageid,klen,vlen,olen

// marshalRecord renders r as {u32 record_length}{fields}{u32 trailing CRC32
// over fields}. The trailing CRC satisfies the corruption-detection
// property in SPEC_FULL.md §8; it is an addition beyond the literal byte
// layout spec.md §4.6 enumerates, documented as such in DESIGN.md.
func marshalRecord(r *LogRecord) []byte {
	fieldsLen := recordFixedSize + len(r.Key) + len(r.Value) + len(r.OldValue)
	total := fieldsLen + 4 // + trailing crc
	buf := make([]byte, 4+total)

	binary.LittleEndian.PutUint32(buf[0:], uint32(total))
	fields := buf[4 : 4+fieldsLen]

	off := 0
	binary.LittleEndian.PutUint64(fields[off:], uint64(r.LSN))
	off += 8
	binary.LittleEndian.PutUint64(fields[off:], uint64(r.PrevLSN))
	off += 8
	binary.LittleEndian.PutUint64(fields[off:], uint64(r.TxnID))
	off += 8
	fields[off] = byte(r.Kind)
	off++
	binary.LittleEndian.PutUint32(fields[off:], uint32(r.PageID))
	off += 4
	binary.LittleEndian.PutUint32(fields[off:], uint32(len(r.Key)))
	off += 4
	off += copy(fields[off:], r.Key)
	binary.LittleEndian.PutUint32(fields[off:], uint32(len(r.Value)))
	off += 4
	off += copy(fields[off:], r.Value)
	binary.LittleEndian.PutUint32(fields[off:], uint32(len(r.OldValue)))
	off += 4
	off += copy(fields[off:], r.OldValue)

	crc := checksumBytes(fields)
	binary.LittleEndian.PutUint32(buf[4+fieldsLen:], crc)
	return buf
}

// unmarshalRecord parses the body following the u32 length prefix (exactly
// `total` bytes as written by marshalRecord).
func unmarshalRecord(body []byte) (*LogRecord, error) {
	if len(body) < 4 {
		return nil, fmt.Errorf("wal: record too short")
	}
	fields := body[:len(body)-4]
	wantCRC := binary.LittleEndian.Uint32(body[len(body)-4:])
	if checksumBytes(fields) != wantCRC {
		return nil, fmt.Errorf("wal: record checksum mismatch")
	}
	if len(fields) < recordFixedSize {
		return nil, fmt.Errorf("wal: truncated record fields")
	}

	r := &LogRecord{}
	off := 0
	r.LSN = LSN(binary.LittleEndian.Uint64(fields[off:]))
	off += 8
	r.PrevLSN = LSN(binary.LittleEndian.Uint64(fields[off:]))
	off += 8
	r.TxnID = TxnID(binary.LittleEndian.Uint64(fields[off:]))
	off += 8
	r.Kind = RecordKind(fields[off])
	off++
	r.PageID = PageID(binary.LittleEndian.Uint32(fields[off:]))
	off += 4

	readBlob := func() ([]byte, error) {
		if off+4 > len(fields) {
			return nil, fmt.Errorf("wal: truncated length")
		}
		n := int(binary.LittleEndian.Uint32(fields[off:]))
		off += 4
		if off+n > len(fields) {
			return nil, fmt.Errorf("wal: truncated payload")
		}
		b := append([]byte(nil), fields[off:off+n]...)
		off += n
		return b, nil
	}

	var err error
	if r.Key, err = readBlob(); err != nil {
		return nil, err
	}
	if r.Value, err = readBlob(); err != nil {
		return nil, err
	}
	if r.OldValue, err = readBlob(); err != nil {
		return nil, err
	}
	return r, nil
}

// ReadAllRecords reads every well-formed record from path in file order.
// It stops (without error) at the first truncated or corrupt record, since
// that marks an incompletely-flushed tail from a prior crash.
func ReadAllRecords(path string) ([]*LogRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, newErr("engine.ReadAllRecords", KindIoError, err)
	}
	defer f.Close()

	var records []*LogRecord
	var lenBuf [4]byte
	for {
		if _, err := readFull(f, lenBuf[:]); err != nil {
			break
		}
		n := binary.LittleEndian.Uint32(lenBuf[:])
		body := make([]byte, n)
		if _, err := readFull(f, body); err != nil {
			break
		}
		rec, err := unmarshalRecord(body)
		if err != nil {
			break
		}
		records = append(records, rec)
	}
	return records, nil
}

func readFull(f *os.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := f.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, fmt.Errorf("short read")
		}
	}
	return total, nil
}

const defaultWALBufferSize = 64 * 1024

// WAL is an append-only, length-prefixed, CRC-checksummed log of logical
// records, with monotonically increasing LSNs assigned under a single
// lock, transaction lifecycle tracking, and group-commit-style buffering:
// records accumulate in memory and are force-flushed on commit/abort or
// when the buffer would otherwise overflow.
type WAL struct {
	mu sync.Mutex

	f    *os.File
	path string

	nextLSN    LSN
	nextTxnID  TxnID
	flushedLSN LSN

	buf    []byte
	bufCap int

	lastLSN map[TxnID]LSN
	active  map[TxnID]bool
}

// OpenWAL opens (creating if absent) the log file at path, resuming LSN
// and transaction-id counters from any existing well-formed records.
func OpenWAL(path string) (*WAL, error) {
	const op = "engine.OpenWAL"

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, newErr(op, KindIoError, err)
	}

	w := &WAL{
		f:         f,
		path:      path,
		nextLSN:   1,
		nextTxnID: 1,
		bufCap:    defaultWALBufferSize,
		lastLSN:   make(map[TxnID]LSN),
		active:    make(map[TxnID]bool),
	}

	existing, err := ReadAllRecords(path)
	if err != nil {
		f.Close()
		return nil, err
	}
	for _, r := range existing {
		if r.LSN+1 > w.nextLSN {
			w.nextLSN = r.LSN + 1
		}
		if r.TxnID+1 > w.nextTxnID {
			w.nextTxnID = r.TxnID + 1
		}
		w.flushedLSN = r.LSN
	}
	return w, nil
}

// BeginTransaction starts a new transaction, returning its id.
func (w *WAL) BeginTransaction() (TxnID, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	txn := w.nextTxnID
	w.nextTxnID++
	w.active[txn] = true

	rec := &LogRecord{TxnID: txn, Kind: RecBegin}
	if _, err := w.appendLocked(rec); err != nil {
		return 0, err
	}
	return txn, nil
}

func (w *WAL) checkActiveLocked(op string, txn TxnID) error {
	if !w.active[txn] {
		return newErrf(op, KindWalError, "transaction %d is not active", txn)
	}
	return nil
}

// appendLocked stamps lsn/prev_lsn, appends the record, and returns its LSN.
func (w *WAL) appendLocked(rec *LogRecord) (LSN, error) {
	rec.LSN = w.nextLSN
	rec.PrevLSN = w.lastLSN[rec.TxnID]

	buf := marshalRecord(rec)
	if len(buf) > w.bufCap {
		return 0, newErrf("WAL.append", KindWalError, "record of %d bytes exceeds the %d-byte log buffer", len(buf), w.bufCap)
	}
	if len(w.buf)+len(buf) > w.bufCap {
		if err := w.flushLocked(); err != nil {
			return 0, err
		}
	}
	w.buf = append(w.buf, buf...)
	w.nextLSN++
	w.lastLSN[rec.TxnID] = rec.LSN
	return rec.LSN, nil
}

// LogInsert/LogDelete/LogUpdate append a logical data-change record for an
// active transaction and return its LSN.
func (w *WAL) LogInsert(txn TxnID, page PageID, key, value []byte) (LSN, error) {
	return w.logData(txn, RecInsert, page, key, value, nil)
}

func (w *WAL) LogDelete(txn TxnID, page PageID, key, oldValue []byte) (LSN, error) {
	return w.logData(txn, RecDelete, page, key, nil, oldValue)
}

func (w *WAL) LogUpdate(txn TxnID, page PageID, key, value, oldValue []byte) (LSN, error) {
	return w.logData(txn, RecUpdate, page, key, value, oldValue)
}

func (w *WAL) logData(txn TxnID, kind RecordKind, page PageID, key, value, oldValue []byte) (LSN, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkActiveLocked("WAL.log", txn); err != nil {
		return 0, err
	}
	rec := &LogRecord{TxnID: txn, Kind: kind, PageID: page, Key: key, Value: value, OldValue: oldValue}
	return w.appendLocked(rec)
}

// Commit force-flushes the buffer and marks txn committed. An unflushable
// commit is durability-equivalent to an abort: the error is returned and
// the transaction is left active for the caller to abort explicitly.
func (w *WAL) Commit(txn TxnID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkActiveLocked("WAL.Commit", txn); err != nil {
		return err
	}
	rec := &LogRecord{TxnID: txn, Kind: RecCommit}
	if _, err := w.appendLocked(rec); err != nil {
		return err
	}
	if err := w.flushLocked(); err != nil {
		return err
	}
	delete(w.active, txn)
	delete(w.lastLSN, txn)
	return nil
}

// Abort force-flushes the buffer and marks txn aborted.
func (w *WAL) Abort(txn TxnID) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkActiveLocked("WAL.Abort", txn); err != nil {
		return err
	}
	rec := &LogRecord{TxnID: txn, Kind: RecAbort}
	if _, err := w.appendLocked(rec); err != nil {
		return err
	}
	if err := w.flushLocked(); err != nil {
		return err
	}
	delete(w.active, txn)
	delete(w.lastLSN, txn)
	return nil
}

// FlushedLSN returns the highest LSN known to be durable on disk.
func (w *WAL) FlushedLSN() LSN {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushedLSN
}

// FlushTo blocks until flushedLSN >= lsn, flushing the buffer if needed.
// Since this WAL has no background flusher, "blocks until" degrades to an
// immediate synchronous flush.
func (w *WAL) FlushTo(lsn LSN) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.flushedLSN >= lsn {
		return nil
	}
	return w.flushLocked()
}

// Flush writes the in-memory buffer to disk and fsyncs.
func (w *WAL) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

func (w *WAL) flushLocked() error {
	if len(w.buf) == 0 {
		return nil
	}
	if _, err := w.f.Write(w.buf); err != nil {
		return newErr("WAL.flush", KindWalError, err)
	}
	if err := w.f.Sync(); err != nil {
		return newErr("WAL.flush", KindWalError, err)
	}
	w.flushedLSN = w.nextLSN - 1
	w.buf = w.buf[:0]
	return nil
}

// Checkpoint writes a CHECKPOINT_BEGIN record (carrying the currently
// active transaction ids, per SPEC_FULL.md §4.6) followed by
// CHECKPOINT_END, then force-flushes.
func (w *WAL) Checkpoint() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	ids := make([]TxnID, 0, len(w.active))
	for id := range w.active {
		ids = append(ids, id)
	}
	payload := make([]byte, 4+8*len(ids))
	binary.LittleEndian.PutUint32(payload, uint32(len(ids)))
	for i, id := range ids {
		binary.LittleEndian.PutUint64(payload[4+8*i:], uint64(id))
	}

	begin := &LogRecord{Kind: RecCheckpointBegin, Value: payload}
	if _, err := w.appendLocked(begin); err != nil {
		return err
	}
	end := &LogRecord{Kind: RecCheckpointEnd}
	if _, err := w.appendLocked(end); err != nil {
		return err
	}
	return w.flushLocked()
}

// decodeCheckpointActiveTxns parses a CHECKPOINT_BEGIN record's value field
// (u32 count + count*u64 active transaction ids), the inverse of the
// encoding in Checkpoint.
func decodeCheckpointActiveTxns(value []byte) (uint32, []TxnID, error) {
	if len(value) < 4 {
		return 0, nil, fmt.Errorf("wal: checkpoint payload too short")
	}
	count := binary.LittleEndian.Uint32(value)
	if len(value) < int(4+8*count) {
		return 0, nil, fmt.Errorf("wal: checkpoint payload truncated")
	}
	ids := make([]TxnID, count)
	for i := uint32(0); i < count; i++ {
		ids[i] = TxnID(binary.LittleEndian.Uint64(value[4+8*i:]))
	}
	return count, ids, nil
}

// Close flushes and closes the underlying file.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.flushLocked(); err != nil {
		return err
	}
	if err := w.f.Close(); err != nil {
		return newErr("WAL.Close", KindIoError, err)
	}
	return nil
}

// Truncate discards the log file's contents, used after a checkpoint has
// made every record before it irrelevant to recovery.
func (w *WAL) Truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.f.Truncate(0); err != nil {
		return newErr("WAL.Truncate", KindIoError, err)
	}
	if _, err := w.f.Seek(0, 0); err != nil {
		return newErr("WAL.Truncate", KindIoError, err)
	}
	w.buf = w.buf[:0]
	return nil
}
