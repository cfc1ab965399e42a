package storage

// Key schema of the shared store:
//
//	hni-trade-storage-v2              → current snapshot {orders, trades}
//	hni-trade-storage-v1              → legacy snapshot, normalized on load
//	hni-trade-sync-v1                 → last broadcast envelope (sync fallback)
//	hni-trade-match-lock:<matchKey>   → advisory match lock "owner|expiryMillis"
const (
	SnapshotKey       = "hni-trade-storage-v2"
	LegacySnapshotKey = "hni-trade-storage-v1"
	SyncKey           = "hni-trade-sync-v1"
)

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
