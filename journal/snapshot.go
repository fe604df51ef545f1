package journal

import (
	"encoding/gob"
	"os"
	"path/filepath"
	"time"

	"github.com/assetra/marketx/matching"
)

const snapshotName = "snapshot.bin"

// BookSnapshot captures the full resting book at one sequence. Replaying
// the journal from Sequence onward reconstructs the exact in-memory state.
type BookSnapshot struct {
	AssetID  string
	Sequence uint64
	Counter  uint64
	Created  time.Time
	Orders   []matching.Order
}

// TakeSnapshot builds a snapshot from the live book. Must run on the lane
// that owns the book.
func TakeSnapshot(book *matching.OrderBook) *BookSnapshot {
	snap := &BookSnapshot{
		AssetID:  book.AssetID,
		Sequence: book.Sequence(),
		Counter:  book.Counter(),
		Created:  time.Now(),
		Orders:   make([]matching.Order, 0, book.OpenOrders()),
	}

	book.EachOrder(func(o *matching.Order) {
		snap.Orders = append(snap.Orders, *o)
	})

	return snap
}

// WriteSnapshot persists the snapshot atomically (write-then-rename).
func WriteSnapshot(dir string, snap *BookSnapshot) error {
	streamDir := filepath.Join(dir, snap.AssetID)
	if err := os.MkdirAll(streamDir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(streamDir, "snapshot-*.tmp")
	if err != nil {
		return err
	}

	if err := gob.NewEncoder(tmp).Encode(snap); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	return os.Rename(tmp.Name(), filepath.Join(streamDir, snapshotName))
}

// LoadSnapshot reads the latest snapshot for an asset. Returns nil when no
// snapshot has been written yet.
func LoadSnapshot(dir, assetID string) (*BookSnapshot, error) {
	f, err := os.Open(filepath.Join(dir, assetID, snapshotName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	snap := new(BookSnapshot)
	if err := gob.NewDecoder(f).Decode(snap); err != nil {
		return nil, err
	}

	return snap, nil
}

// RestoreBook rebuilds an order book from a snapshot.
func RestoreBook(assetID string, snap *BookSnapshot) *matching.OrderBook {
	book := matching.NewOrderBook(assetID)
	if snap == nil {
		return book
	}

	for i := range snap.Orders {
		o := snap.Orders[i]
		book.Restore(&o)
	}
	book.SetSequence(snap.Sequence)
	book.SetCounter(snap.Counter)
	book.RefreshDepth()

	return book
}
