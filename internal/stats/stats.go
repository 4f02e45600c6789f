package stats

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/keygate/keygate/internal/store"
)

// Snapshot is the aggregate view backing the dashboard cards.
type Snapshot struct {
	TotalKeys   int     `json:"totalKeys"`
	ActiveKeys  int     `json:"activeKeys"`
	BlockedKeys int     `json:"blockedKeys"`
	ExpiredKeys int     `json:"expiredKeys"`
	Injectors   int     `json:"injectors"`
	Resellers   int     `json:"resellers"`
	Accepted    int64   `json:"validationsAccepted"`
	Rejected    int64   `json:"validationsRejected"`
	UptimeHours float64 `json:"uptimeHours"`
}

// Collector aggregates storage counts with in-process validation counters.
// The validation counters reset on restart; the rest is recomputed from
// storage on every snapshot.
type Collector struct {
	store     *store.Store
	startedAt time.Time

	accepted atomic.Int64
	rejected atomic.Int64
}

// NewCollector creates a Collector.
func NewCollector(st *store.Store) *Collector {
	return &Collector{
		store:     st,
		startedAt: time.Now(),
	}
}

// RecordVerdict counts a validation outcome.
func (c *Collector) RecordVerdict(valid bool) {
	if valid {
		c.accepted.Add(1)
	} else {
		c.rejected.Add(1)
	}
}

// Snapshot computes the current aggregate state.
func (c *Collector) Snapshot(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{
		Accepted:    c.accepted.Load(),
		Rejected:    c.rejected.Load(),
		UptimeHours: time.Since(c.startedAt).Hours(),
	}

	keys, err := c.store.ListKeys(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	now := time.Now()
	snap.TotalKeys = len(keys)
	for i := range keys {
		switch {
		case keys[i].Blocked:
			snap.BlockedKeys++
		case keys[i].Expired(now):
			snap.ExpiredKeys++
		default:
			snap.ActiveKeys++
		}
	}

	injectors, err := c.store.ListInjectors(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Injectors = len(injectors)

	resellers, err := c.store.ListResellers(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Resellers = len(resellers)

	return snap, nil
}
