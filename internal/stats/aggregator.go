package stats

import (
	"sync"
	"time"

	"github.com/delagostini-bot/Telegram-Share-Bot/internal/core/domain"
)

// Aggregator maintains the rollup incrementally so the dashboard never
// rescans the full activity log per request. Seed it once from persisted
// records, then feed it every new record as it is written.
type Aggregator struct {
	mu  sync.Mutex
	acc *accumulator
}

func NewAggregator() *Aggregator {
	return &Aggregator{acc: newAccumulator()}
}

// Seed replays persisted records into a fresh accumulator. Records must
// arrive in the same order they were written.
func (a *Aggregator) Seed(records []domain.ActivityRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.acc = newAccumulator()
	for i := range records {
		a.acc.add(&records[i])
	}
}

// Add folds a single terminal record into the rollup.
func (a *Aggregator) Add(rec domain.ActivityRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.acc.add(&rec)
}

// Snapshot cuts the current rollup evaluated at now.
func (a *Aggregator) Snapshot(now time.Time) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.acc.snapshot(now)
}
