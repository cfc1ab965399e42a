package storage

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/hnitrade/pkg/util"
)

// LockKeyPrefix matches the prefix the matcher uses for lock keys.
const LockKeyPrefix = "hni-trade-match-lock:"

// KVLocker is an advisory TTL lock kept in a shared KV. An entry is
// "owner|expiryMillis"; expired entries count as absent. Acquisition writes
// the entry and reads it back, so two racing owners can both win. Storage
// errors fail open.
type KVLocker struct {
	kv    KV
	clock util.Clock
	log   *zap.SugaredLogger
}

func NewKVLocker(kv KV, clock util.Clock, log *zap.SugaredLogger) *KVLocker {
	if clock == nil {
		clock = util.RealClock{}
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &KVLocker{kv: kv, clock: clock, log: log}
}

func (l *KVLocker) TryAcquire(key, owner string, ttl time.Duration) bool {
	now := l.clock.Now()

	raw, ok, err := l.kv.Get(key)
	if err != nil {
		l.log.Debugw("lock_read_failed", "key", key, "err", err)
		return true
	}
	if ok {
		holder, expiry, err := parseLock(raw)
		if err == nil && holder != owner && expiry > now.UnixMilli() {
			return false
		}
	}

	val := formatLock(owner, now.Add(ttl).UnixMilli())
	if err := l.kv.Set(key, []byte(val)); err != nil {
		l.log.Debugw("lock_write_failed", "key", key, "err", err)
		return true
	}
	back, ok, err := l.kv.Get(key)
	if err != nil {
		return true
	}
	return ok && string(back) == val
}

// Sweep deletes expired lock entries when the store can enumerate keys.
func (l *KVLocker) Sweep() (int, error) {
	sc, ok := l.kv.(Scanner)
	if !ok {
		return 0, nil
	}
	keys, err := sc.Keys(LockKeyPrefix)
	if err != nil {
		return 0, err
	}

	now := l.clock.Now().UnixMilli()
	removed := 0
	for _, k := range keys {
		raw, ok, err := l.kv.Get(k)
		if err != nil || !ok {
			continue
		}
		if _, expiry, err := parseLock(raw); err == nil && expiry > now {
			continue
		}
		if err := l.kv.Delete(k); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func formatLock(owner string, expiryMillis int64) string {
	return owner + "|" + strconv.FormatInt(expiryMillis, 10)
}

func parseLock(raw []byte) (string, int64, error) {
	s := string(raw)
	i := strings.LastIndexByte(s, '|')
	if i < 0 {
		return "", 0, fmt.Errorf("malformed lock entry %q", s)
	}
	exp, err := strconv.ParseInt(s[i+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("malformed lock expiry %q: %w", s, err)
	}
	return s[:i], exp, nil
}
