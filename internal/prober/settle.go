package prober

import (
	"context"
	"errors"
	"time"

	"dhtprobe/internal/dht"
)

// ErrSettleTimeout is returned when a freshly written record never reports
// full propagation within the attempt budget. The creation attempt is
// discarded rather than retried.
var ErrSettleTimeout = errors.New("prober: record did not settle in time")

// waitSettled polls propagation status until no offline subkeys remain.
// The attempt budget keeps a non-responding network from blocking a cycle
// forever.
func waitSettled(ctx context.Context, h dht.RecordHandle, poll time.Duration, maxAttempts int) error {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		ranges, err := h.InspectOffline(ctx)
		if err != nil {
			return err
		}
		if dht.OfflineTotal(ranges) == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll):
		}
	}
	return ErrSettleTimeout
}
