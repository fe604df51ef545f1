package settlement

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assetra/marketx/types"
)

func TestOutboxGetAbsent(t *testing.T) {
	outbox, err := OpenOutbox(t.TempDir())
	require.NoError(t, err)
	defer outbox.Close()

	entry, err := outbox.Get(uuid.New())
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestScanPendingSkipsResolved(t *testing.T) {
	outbox, err := OpenOutbox(t.TempDir())
	require.NoError(t, err)
	defer outbox.Close()

	pending := testTrade()
	confirmed := testTrade()
	failed := testTrade()

	require.NoError(t, outbox.Put(&Entry{Trade: pending, State: types.SettlementPending}))
	require.NoError(t, outbox.Put(&Entry{Trade: confirmed, State: types.SettlementConfirmed}))
	require.NoError(t, outbox.Put(&Entry{Trade: failed, State: types.SettlementFailed}))

	var seen []uuid.UUID
	require.NoError(t, outbox.ScanPending(func(entry *Entry) error {
		seen = append(seen, entry.Trade.ID)
		return nil
	}))

	require.Len(t, seen, 1)
	assert.Equal(t, pending.ID, seen[0])
}
