package core

import (
	"context"
	"fmt"
	"time"
)

// Deduper remembers signals for a while so a standing opportunity reported
// again by the watcher is not published twice.
type Deduper interface {
	// Seen records key and reports whether it was already recorded within ttl.
	Seen(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Forget drops the record for key so the signal can be processed again.
	Forget(ctx context.Context, key string) error
}

// DedupeKey identifies a signal by its venues and price bounds.
func DedupeKey(sig OpportunitySignal) string {
	return fmt.Sprintf("%s:%s:%g:%g:%g:%g",
		sig.Kask, sig.Kbid,
		sig.WeightedBuyPrice, sig.WeightedSellPrice,
		sig.MaxBuyPrice, sig.MinSellPrice)
}
