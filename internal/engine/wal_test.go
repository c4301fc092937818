package engine

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestWAL_LogAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wal")
	w, err := OpenWAL(path)
	if err != nil {
		t.Fatalf("OpenWAL: %v", err)
	}

	txn, err := w.BeginTransaction()
	if err != nil {
		t.Fatalf("BeginTransaction: %v", err)
	}
	if _, err := w.LogInsert(txn, 1, []byte("k1"), []byte("v1")); err != nil {
		t.Fatalf("LogInsert: %v", err)
	}
	if _, err := w.LogUpdate(txn, 1, []byte("k1"), []byte("v2"), []byte("v1")); err != nil {
		t.Fatalf("LogUpdate: %v", err)
	}
	if err := w.Commit(txn); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	recs, err := ReadAllRecords(path)
	if err != nil {
		t.Fatalf("ReadAllRecords: %v", err)
	}
	// BEGIN, INSERT, UPDATE, COMMIT
	if len(recs) != 4 {
		t.Fatalf("got %d records, want 4", len(recs))
	}
	if recs[0].Kind != RecBegin || recs[1].Kind != RecInsert ||
		recs[2].Kind != RecUpdate || recs[3].Kind != RecCommit {
		t.Fatalf("unexpected record kinds: %+v", recs)
	}
	if !bytes.Equal(recs[1].Key, []byte("k1")) || !bytes.Equal(recs[1].Value, []byte("v1")) {
		t.Fatalf("insert record mismatch: %+v", recs[1])
	}
	if !bytes.Equal(recs[2].OldValue, []byte("v1")) || !bytes.Equal(recs[2].Value, []byte("v2")) {
		t.Fatalf("update record mismatch: %+v", recs[2])
	}
	// prev_lsn chains backward within the transaction.
	if recs[3].PrevLSN != recs[2].LSN || recs[2].PrevLSN != recs[1].LSN || recs[1].PrevLSN != recs[0].LSN {
		t.Fatalf("prev_lsn chain broken: %+v", recs)
	}
}

func TestWAL_AbortRecordedDistinctFromCommit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wal")
	w, err := OpenWAL(path)
	if err != nil {
		t.Fatalf("OpenWAL: %v", err)
	}

	txn, err := w.BeginTransaction()
	if err != nil {
		t.Fatalf("BeginTransaction: %v", err)
	}
	if _, err := w.LogDelete(txn, 1, []byte("k"), []byte("old")); err != nil {
		t.Fatalf("LogDelete: %v", err)
	}
	if err := w.Abort(txn); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	w.Close()

	recs, err := ReadAllRecords(path)
	if err != nil {
		t.Fatalf("ReadAllRecords: %v", err)
	}
	if recs[len(recs)-1].Kind != RecAbort {
		t.Fatalf("last record kind = %v, want RecAbort", recs[len(recs)-1].Kind)
	}
}

func TestWAL_TruncatedTailRecordIsIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wal")
	w, err := OpenWAL(path)
	if err != nil {
		t.Fatalf("OpenWAL: %v", err)
	}
	txn, err := w.BeginTransaction()
	if err != nil {
		t.Fatalf("BeginTransaction: %v", err)
	}
	w.LogInsert(txn, 1, []byte("k"), []byte("v"))
	w.Commit(txn)
	w.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read wal file: %v", err)
	}
	// Chop off the last few bytes to simulate a torn write at crash time.
	truncated := data[:len(data)-3]
	if err := os.WriteFile(path, truncated, 0o644); err != nil {
		t.Fatalf("write truncated wal: %v", err)
	}

	recs, err := ReadAllRecords(path)
	if err != nil {
		t.Fatalf("ReadAllRecords on truncated file: %v", err)
	}
	// The final (corrupt/truncated) record must be silently dropped, but
	// everything before it remains readable.
	if len(recs) != 2 {
		t.Fatalf("got %d records from truncated log, want 2 (BEGIN, INSERT)", len(recs))
	}
}

func TestWAL_RecordTooLargeRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wal")
	w, err := OpenWAL(path)
	if err != nil {
		t.Fatalf("OpenWAL: %v", err)
	}
	defer w.Close()

	txn, err := w.BeginTransaction()
	if err != nil {
		t.Fatalf("BeginTransaction: %v", err)
	}
	huge := make([]byte, defaultWALBufferSize+1)
	_, err = w.LogInsert(txn, 1, []byte("k"), huge)
	if KindOf(err) != KindWalError {
		t.Fatalf("LogInsert with oversized value: got %v, want WalError", err)
	}
}

func TestWAL_CheckpointRecordsActiveTxns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.wal")
	w, err := OpenWAL(path)
	if err != nil {
		t.Fatalf("OpenWAL: %v", err)
	}

	txn1, err := w.BeginTransaction()
	if err != nil {
		t.Fatalf("BeginTransaction: %v", err)
	}
	w.LogInsert(txn1, 1, []byte("k1"), []byte("v1"))
	txn2, err := w.BeginTransaction()
	if err != nil {
		t.Fatalf("BeginTransaction: %v", err)
	}
	w.LogInsert(txn2, 1, []byte("k2"), []byte("v2"))
	w.Commit(txn1)

	if err := w.Checkpoint(); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	w.Close()

	recs, err := ReadAllRecords(path)
	if err != nil {
		t.Fatalf("ReadAllRecords: %v", err)
	}

	var begin, end *LogRecord
	for i := range recs {
		switch recs[i].Kind {
		case RecCheckpointBegin:
			begin = recs[i]
		case RecCheckpointEnd:
			end = recs[i]
		}
	}
	if begin == nil || end == nil {
		t.Fatalf("missing checkpoint records: %+v", recs)
	}
	count, active, err := decodeCheckpointActiveTxns(begin.Value)
	if err != nil {
		t.Fatalf("decodeCheckpointActiveTxns: %v", err)
	}
	if count != 1 || len(active) != 1 || active[0] != txn2 {
		t.Fatalf("checkpoint active txns = (%d, %v), want (1, [%d])", count, active, txn2)
	}
}
