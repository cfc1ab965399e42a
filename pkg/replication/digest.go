package replication

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"

	"github.com/uhyunpark/hnitrade/pkg/app/core"
)

// Digest hashes the replicated state: orders sorted by id, then trades sorted
// by match key. Replicas holding the same state produce the same digest.
func Digest(s core.Snapshot) string {
	h := sha256.New()
	var buf [8]byte
	writeInt := func(v int64) {
		binary.BigEndian.PutUint64(buf[:], uint64(v))
		h.Write(buf[:])
	}
	writeStr := func(s string) {
		writeInt(int64(len(s)))
		h.Write([]byte(s))
	}

	orders := append([]core.Order(nil), s.Orders...)
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	for _, o := range orders {
		writeStr(o.ID)
		writeStr(string(o.Side))
		writeStr(o.InstrumentID)
		writeStr(o.Price.String())
		writeInt(o.Quantity)
		writeStr(string(o.Status))
	}

	trades := append([]core.Trade(nil), s.Trades...)
	sort.Slice(trades, func(i, j int) bool { return trades[i].MatchKey < trades[j].MatchKey })
	for _, t := range trades {
		writeStr(t.MatchKey)
		writeStr(t.ID)
		writeInt(t.ExecutedAt)
	}

	return hex.EncodeToString(h.Sum(nil))
}
