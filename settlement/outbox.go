package settlement

import (
	"encoding/json"
	"errors"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"github.com/assetra/marketx/matching"
	"github.com/assetra/marketx/types"
)

const outboxPrefix = "trade/"

// Entry is the durable settlement state of one trade. A restart re-drives
// every pending entry without double-submitting: the trade ID is the
// idempotency key on the collaborator side.
type Entry struct {
	Trade       *matching.Trade        `json:"trade"`
	State       types.SettlementStatus `json:"state"`
	Retries     uint32                 `json:"retries"`
	TxRef       string                 `json:"tx_ref"`
	LastAttempt int64                  `json:"last_attempt"`
}

// Outbox persists settlement progress in pebble, keyed by trade ID.
type Outbox struct {
	db *pebble.DB
}

func OpenOutbox(dir string) (*Outbox, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}

	return &Outbox{db: db}, nil
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

func outboxKey(id uuid.UUID) []byte {
	return []byte(outboxPrefix + id.String())
}

func (o *Outbox) Put(entry *Entry) error {
	value, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	return o.db.Set(outboxKey(entry.Trade.ID), value, pebble.Sync)
}

// Get returns the entry for a trade, or nil when the trade was never
// submitted.
func (o *Outbox) Get(id uuid.UUID) (*Entry, error) {
	value, closer, err := o.db.Get(outboxKey(id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	defer closer.Close()

	entry := new(Entry)
	if err := json.Unmarshal(value, entry); err != nil {
		return nil, err
	}

	return entry, nil
}

// ScanPending iterates every entry still awaiting confirmation.
func (o *Outbox) ScanPending(fn func(*Entry) error) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(outboxPrefix),
		UpperBound: []byte(outboxPrefix + "~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		entry := new(Entry)
		if err := json.Unmarshal(iter.Value(), entry); err != nil {
			return err
		}

		if entry.State != types.SettlementPending {
			continue
		}

		if err := fn(entry); err != nil {
			return err
		}
	}

	return iter.Error()
}
