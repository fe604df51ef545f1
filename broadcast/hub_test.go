package broadcast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assetra/marketx/config"
	"github.com/assetra/marketx/types"
)

func init() {
	config.NewLoggerService()
}

func publishN(h *Hub, assetID string, from, to uint64) {
	for seq := from; seq <= to; seq++ {
		h.Publish(&Event{
			Type:     types.EventDelta,
			AssetID:  assetID,
			Sequence: seq,
		})
	}
}

func TestPublishOrdering(t *testing.T) {
	hub := NewHub()

	sub, backlog, resync := hub.Subscribe("asset", 0)
	require.False(t, resync)
	require.Empty(t, backlog)

	publishN(hub, "asset", 1, 5)

	for want := uint64(1); want <= 5; want++ {
		ev := <-sub.Events()
		assert.Equal(t, want, ev.Sequence)
	}
}

func TestSubscribeReplaysBacklog(t *testing.T) {
	hub := NewHub()
	publishN(hub, "asset", 1, 10)

	sub, backlog, resync := hub.Subscribe("asset", 6)
	require.False(t, resync)
	require.NotNil(t, sub)

	var seqs []uint64
	for _, ev := range backlog {
		seqs = append(seqs, ev.Sequence)
	}
	assert.Equal(t, []uint64{7, 8, 9, 10}, seqs)

	// Live events continue the stream after the backlog.
	publishN(hub, "asset", 11, 11)
	ev := <-sub.Events()
	assert.EqualValues(t, 11, ev.Sequence)
}

func TestSubscribeUpToDate(t *testing.T) {
	hub := NewHub()
	publishN(hub, "asset", 1, 4)

	_, backlog, resync := hub.Subscribe("asset", 4)
	require.False(t, resync)
	assert.Empty(t, backlog)
}

func TestSubscribeEvictedNeedsResync(t *testing.T) {
	hub := NewHub()
	publishN(hub, "asset", 1, ringCapacity+50)

	sub, backlog, resync := hub.Subscribe("asset", 1)
	assert.True(t, resync)
	assert.Nil(t, sub)
	assert.Empty(t, backlog)

	// Resuming inside the retained window still works.
	sub, backlog, resync = hub.Subscribe("asset", ringCapacity+40)
	require.False(t, resync)
	require.NotNil(t, sub)
	assert.Len(t, backlog, 10)
}

func TestSeededHubRequiresResyncBelowFloor(t *testing.T) {
	hub := NewHub()
	hub.Seed("asset", 5)

	// The ring is empty but history up to 5 exists elsewhere: an empty
	// backlog would silently skip it.
	sub, backlog, resync := hub.Subscribe("asset", 0)
	require.True(t, resync)
	assert.Nil(t, sub)
	assert.Empty(t, backlog)

	sub, backlog, resync = hub.Subscribe("asset", 5)
	require.False(t, resync)
	require.Empty(t, backlog)

	publishN(hub, "asset", 6, 6)
	ev := <-sub.Events()
	assert.EqualValues(t, 6, ev.Sequence)
}

func TestSeededHubReplaysAboveFloor(t *testing.T) {
	hub := NewHub()
	hub.Seed("asset", 5)
	publishN(hub, "asset", 6, 8)

	sub, backlog, resync := hub.Subscribe("asset", 6)
	require.False(t, resync)
	require.NotNil(t, sub)

	var seqs []uint64
	for _, ev := range backlog {
		seqs = append(seqs, ev.Sequence)
	}
	assert.Equal(t, []uint64{7, 8}, seqs)

	_, _, resync = hub.Subscribe("asset", 3)
	assert.True(t, resync)
}

func TestSlowSubscriberDropped(t *testing.T) {
	hub := NewHub()

	sub, _, resync := hub.Subscribe("asset", 0)
	require.False(t, resync)

	// Never drained: once the buffer is full the hub closes the
	// subscriber instead of skipping events.
	publishN(hub, "asset", 1, subscriberBuffer+10)

	var last uint64
	for ev := range sub.Events() {
		last = ev.Sequence
	}
	assert.EqualValues(t, subscriberBuffer, last)
}

func TestUnsubscribeClosesStream(t *testing.T) {
	hub := NewHub()

	sub, _, _ := hub.Subscribe("asset", 0)
	hub.Unsubscribe(sub)

	_, open := <-sub.Events()
	assert.False(t, open)

	// Publishing after the drop must not panic or block.
	publishN(hub, "asset", 1, 2)
}

func TestAssetsIsolated(t *testing.T) {
	hub := NewHub()

	subA, _, _ := hub.Subscribe("asset-a", 0)
	publishN(hub, "asset-b", 1, 3)

	select {
	case ev := <-subA.Events():
		t.Fatalf("unexpected event for asset-a: %d", ev.Sequence)
	default:
	}
}
