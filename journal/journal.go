package journal

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const logName = "journal.log"

// Journal is the per-asset append-only log. Every accepted mutation is
// appended and fsynced before the operation is acknowledged.
type Journal struct {
	dir string

	mu   sync.Mutex
	file *os.File
}

func Open(dir, assetID string) (*Journal, error) {
	streamDir := filepath.Join(dir, assetID)
	if err := os.MkdirAll(streamDir, 0o755); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(filepath.Join(streamDir, logName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	return &Journal{
		dir:  streamDir,
		file: f,
	}, nil
}

func (j *Journal) Append(rec *Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := EncodeRecord(rec)
	if err != nil {
		return err
	}
	if _, err := j.file.Write(data); err != nil {
		return err
	}

	return j.file.Sync()
}

// Rotate archives the current log and starts a fresh one. Called right
// after a snapshot is written: records covered by the snapshot are no
// longer needed for recovery.
func (j *Journal) Rotate() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.file.Close(); err != nil {
		return err
	}

	current := filepath.Join(j.dir, logName)
	archived := filepath.Join(j.dir, time.Now().UTC().Format("20060102_150405")+".log")
	if err := os.Rename(current, archived); err != nil {
		return err
	}

	f, err := os.OpenFile(current, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	j.file = f

	return nil
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}

// Replay streams every record with sequence above afterSeq to fn, in append
// order, and returns the last sequence seen. A corrupted tail record ends
// the replay cleanly: everything before it was acknowledged and fsynced.
func Replay(dir, assetID string, afterSeq uint64, fn func(*Record) error) (uint64, error) {
	f, err := os.Open(filepath.Join(dir, assetID, logName))
	if err != nil {
		if os.IsNotExist(err) {
			return afterSeq, nil
		}
		return 0, err
	}
	defer f.Close()

	lastSeq := afterSeq
	for {
		rec, err := DecodeRecord(f)
		if errors.Is(err, io.EOF) || errors.Is(err, ErrCorruptRecord) {
			break
		}
		if err != nil {
			return lastSeq, err
		}

		if rec.Sequence <= afterSeq {
			continue
		}

		if err := fn(rec); err != nil {
			return lastSeq, err
		}
		lastSeq = rec.Sequence
	}

	return lastSeq, nil
}
