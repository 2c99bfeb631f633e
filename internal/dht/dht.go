// Package dht defines the narrow capability the prober needs from a DHT
// node daemon. The daemon itself is an external process; everything here may
// suspend on the network and may fail with a transport error, which the core
// treats uniformly regardless of cause.
package dht

import "context"

// Session is an established connection to a node daemon.
type Session interface {
	// DebugPurge clears stale daemon state (e.g. "routes") from a prior run.
	DebugPurge(ctx context.Context, scope string) error
	// CreateRecord allocates a new record with the given number of subkeys
	// and returns it opened.
	CreateRecord(ctx context.Context, subkeys int) (RecordHandle, error)
	// OpenRecord opens an existing record by key.
	OpenRecord(ctx context.Context, key string) (RecordHandle, error)
	Close() error
}

// RecordHandle is an open record.
type RecordHandle interface {
	// Key returns the network-assigned record identity.
	Key() string
	WriteSubkey(ctx context.Context, subkey int, data []byte) error
	// ReadSubkey fetches a subkey value. forceRefresh bypasses the daemon's
	// local cache and forces a genuine network fetch.
	ReadSubkey(ctx context.Context, subkey int, forceRefresh bool) ([]byte, error)
	// InspectOffline reports the subkey ranges that have not yet propagated
	// to the network. An empty result means the record has settled.
	InspectOffline(ctx context.Context) ([]SubkeyRange, error)
	Close(ctx context.Context) error
}

// SubkeyRange is an inclusive range of subkey indices.
type SubkeyRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// OfflineTotal sums the subkeys covered by the given ranges.
func OfflineTotal(ranges []SubkeyRange) int {
	total := 0
	for _, r := range ranges {
		total += r.End - r.Start + 1
	}
	return total
}
