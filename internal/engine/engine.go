package engine

// Config is the engine-level configuration surface described in
// SPEC_FULL.md §6: a database file, a WAL file, and a buffer-pool frame
// count. No environment variables or CLI flags are part of this contract
// — internal/config loads the frame count from YAML, and internal/store
// derives both file paths from its root directory.
type Config struct {
	DBPath     string
	WALPath    string
	FrameCount int // default 512 if zero
}

const DefaultFrameCount = 512

// Engine wires a DiskManager, BufferPool, and WAL together. It owns no
// B+Tree itself — callers open one or more trees (each identified by a
// root PageID) over the shared pool, e.g. the snippet store's primary
// index, name index, and tag index all share one Engine.
type Engine struct {
	disk *DiskManager
	pool *BufferPool
	wal  *WAL

	dbPath  string
	walPath string
}

// Open opens (creating if absent) the database and WAL files named in cfg.
func Open(cfg Config) (*Engine, error) {
	frames := cfg.FrameCount
	if frames <= 0 {
		frames = DefaultFrameCount
	}

	disk, err := OpenDiskManager(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	wal, err := OpenWAL(cfg.WALPath)
	if err != nil {
		disk.Close()
		return nil, err
	}

	return &Engine{
		disk:    disk,
		pool:    NewBufferPool(disk, frames),
		wal:     wal,
		dbPath:  cfg.DBPath,
		walPath: cfg.WALPath,
	}, nil
}

// Pool returns the shared buffer pool.
func (e *Engine) Pool() *BufferPool { return e.pool }

// WAL returns the shared write-ahead log.
func (e *Engine) WAL() *WAL { return e.wal }

// Disk returns the shared disk manager.
func (e *Engine) Disk() *DiskManager { return e.disk }

// OpenTree opens a B+Tree rooted at root, or bootstraps a fresh one if
// root is InvalidPageID.
func (e *Engine) OpenTree(root PageID) (*BTree, error) {
	return NewBTree(e.pool, root)
}

// Recover replays the WAL against tree, restricted to records logged
// with the given treeTag (InvalidPageID matches every record — the
// single-tree case). Callers run this once per tree immediately after
// OpenTree, before accepting new writes.
func (e *Engine) Recover(tree *BTree, treeTag PageID) error {
	return Recover(tree, e.walPath, treeTag)
}

// Checkpoint flushes every dirty page, rewrites the file header, writes a
// WAL checkpoint record pair, and truncates the now-irrelevant log. This
// is the only way data pages become durable absent a crash (SPEC_FULL.md
// §5); callers (e.g. internal/checkpoint's scheduler) invoke it
// periodically.
func (e *Engine) Checkpoint() error {
	if err := e.pool.FlushAllPages(); err != nil {
		return err
	}
	if err := e.disk.Flush(); err != nil {
		return err
	}
	if err := e.wal.Checkpoint(); err != nil {
		return err
	}
	return e.wal.Truncate()
}

// Close flushes all dirty pages and closes both underlying files.
func (e *Engine) Close() error {
	if err := e.pool.FlushAllPages(); err != nil {
		return err
	}
	if err := e.wal.Close(); err != nil {
		return err
	}
	return e.disk.Close()
}
