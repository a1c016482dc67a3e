package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"hb_sweep_engine/logx"
)

// CheckpointStore persists terminal RunRecords as append-only JSONL, one
// record per line. Only the scheduler's aggregator goroutine writes; workers
// hand their results back and the aggregator serializes the appends. The
// mutex is belt-and-braces for Reset/Close racing a late flush.
type CheckpointStore struct {
	path string

	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer
}

// NewCheckpointStore creates a store for the given path. The file is opened
// lazily on first append so Load and Reset can run first.
func NewCheckpointStore(path string) *CheckpointStore {
	return &CheckpointStore{path: path}
}

// Path returns the checkpoint file location
func (cs *CheckpointStore) Path() string {
	return cs.path
}

// Load reads all terminal records from the checkpoint file. A malformed line
// (typically a partial trailing write from a crash) is dropped with a warning
// rather than failing the resume; a completely unreadable file degrades to an
// empty checkpoint. Duplicate run_ids keep the first occurrence.
func (cs *CheckpointStore) Load() []RunRecord {
	f, err := os.Open(cs.path)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Printf("%s checkpoint unreadable (%v), starting fresh\n", logx.Channel("CKPT"), err)
		}
		return nil
	}
	defer f.Close()

	var records []RunRecord
	seenIDs := make(map[int64]struct{})
	dropped := 0

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec RunRecord
		if err := json.Unmarshal(raw, &rec); err != nil || !rec.Status.Terminal() {
			dropped++
			continue
		}
		if _, dup := seenIDs[rec.RunID]; dup {
			dropped++
			continue
		}
		seenIDs[rec.RunID] = struct{}{}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		fmt.Printf("%s checkpoint truncated at line %d: %v\n", logx.Channel("CKPT"), line, err)
	}
	if dropped > 0 {
		fmt.Printf("%s %s\n", logx.Channel("CKPT"),
			logx.Warnf("dropped %d malformed checkpoint line(s) from %s", dropped, cs.path))
	}
	return records
}

// Append writes a batch of terminal records as one flush. Records that are
// not terminal are a programming error and are skipped defensively.
func (cs *CheckpointStore) Append(batch []RunRecord) error {
	if len(batch) == 0 {
		return nil
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.f == nil {
		f, err := os.OpenFile(cs.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open checkpoint: %w", err)
		}
		cs.f = f
		cs.w = bufio.NewWriterSize(f, 1<<20)
	}

	for _, rec := range batch {
		if !rec.Status.Terminal() {
			continue
		}
		b, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal run %d: %w", rec.RunID, err)
		}
		if _, err := cs.w.Write(b); err != nil {
			return fmt.Errorf("append run %d: %w", rec.RunID, err)
		}
		if err := cs.w.WriteByte('\n'); err != nil {
			return fmt.Errorf("append run %d: %w", rec.RunID, err)
		}
	}
	if err := cs.w.Flush(); err != nil {
		return fmt.Errorf("flush checkpoint: %w", err)
	}
	// Sync so a crash after this point cannot lose the batch
	return cs.f.Sync()
}

// Reset discards the checkpoint (no-resume mode)
func (cs *CheckpointStore) Reset() error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.f != nil {
		cs.w.Flush()
		cs.f.Close()
		cs.f = nil
		cs.w = nil
	}
	if err := os.Remove(cs.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reset checkpoint: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file
func (cs *CheckpointStore) Close() error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.f == nil {
		return nil
	}
	if err := cs.w.Flush(); err != nil {
		cs.f.Close()
		cs.f = nil
		return err
	}
	err := cs.f.Close()
	cs.f = nil
	cs.w = nil
	return err
}
