package engines

import (
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/assetra/marketx/config"
	"github.com/assetra/marketx/engine"
)

const depthCacheInterval = 1 * time.Second

// DepthCacheWorker mirrors the copy-on-write depth snapshots into redis so
// other platform services can read market depth without touching the lanes.
type DepthCacheWorker struct {
	router   *engine.Router
	assets   []string
	lastSeen map[string]uint64
	quit     chan struct{}
	done     chan struct{}
}

func NewDepthCacheWorker(router *engine.Router, assets []string) *DepthCacheWorker {
	return &DepthCacheWorker{
		router:   router,
		assets:   assets,
		lastSeen: make(map[string]uint64),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (w *DepthCacheWorker) Start() {
	go func() {
		defer close(w.done)

		ticker := time.NewTicker(depthCacheInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				w.refresh()
			case <-w.quit:
				return
			}
		}
	}()
}

func (w *DepthCacheWorker) refresh() {
	for _, asset := range w.assets {
		depth, err := w.router.Depth(asset, 0)
		if err != nil {
			continue
		}

		if depth.Sequence == w.lastSeen[asset] {
			continue
		}
		w.lastSeen[asset] = depth.Sequence

		config.Redis.SetKey("marketx:"+asset+":depth:asks", depth.Asks, redis.KeepTTL)
		config.Redis.SetKey("marketx:"+asset+":depth:bids", depth.Bids, redis.KeepTTL)
		config.Redis.SetKey("marketx:"+asset+":depth:sequence", depth.Sequence, redis.KeepTTL)
	}
}

func (w *DepthCacheWorker) Stop() {
	close(w.quit)
	<-w.done
}
