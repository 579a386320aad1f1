package history

import (
	"encoding/binary"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// TimingStore records the last measured analysis duration per path.
type TimingStore interface {
	Get(path string) (time.Duration, bool)
	Set(path string, d time.Duration)
}

// LRUTimingStore is an in-memory TimingStore bounded by entry count.
type LRUTimingStore struct {
	cache *lru.Cache[string, time.Duration]
}

var _ TimingStore = (*LRUTimingStore)(nil)

// NewLRUTimingStore creates a store holding at most size paths.
func NewLRUTimingStore(size int) (*LRUTimingStore, error) {
	if size <= 0 {
		size = 10000
	}
	c, err := lru.New[string, time.Duration](size)
	if err != nil {
		return nil, fmt.Errorf("history: timing cache: %w", err)
	}
	return &LRUTimingStore{cache: c}, nil
}

func (s *LRUTimingStore) Get(path string) (time.Duration, bool) {
	return s.cache.Get(path)
}

func (s *LRUTimingStore) Set(path string, d time.Duration) {
	s.cache.Add(path, d)
}

// Len returns the number of remembered paths.
func (s *LRUTimingStore) Len() int {
	return s.cache.Len()
}

// KV is the narrow key-value shape used for cross-run persistence.
type KV interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
}

// TimingKeyPrefix namespaces timing entries in a shared KV.
const TimingKeyPrefix = "timing:"

// KVTimingStore fronts a KV with an LRU. Reads miss through to the KV and
// writes go to both. KV errors are logged and otherwise ignored.
type KVTimingStore struct {
	mem    *LRUTimingStore
	kv     KV
	logger *zap.Logger
}

var _ TimingStore = (*KVTimingStore)(nil)

// NewKVTimingStore wraps kv with an in-memory cache of size entries.
func NewKVTimingStore(kv KV, size int, logger *zap.Logger) (*KVTimingStore, error) {
	mem, err := NewLRUTimingStore(size)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KVTimingStore{mem: mem, kv: kv, logger: logger}, nil
}

func (s *KVTimingStore) Get(path string) (time.Duration, bool) {
	if d, ok := s.mem.Get(path); ok {
		return d, true
	}
	raw, ok, err := s.kv.Get(TimingKeyPrefix + path)
	if err != nil {
		s.logger.Warn("timing read failed", zap.String("path", path), zap.Error(err))
		return 0, false
	}
	if !ok || len(raw) != 8 {
		return 0, false
	}
	d := time.Duration(binary.BigEndian.Uint64(raw))
	s.mem.Set(path, d)
	return d, true
}

func (s *KVTimingStore) Set(path string, d time.Duration) {
	s.mem.Set(path, d)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(d))
	if err := s.kv.Set(TimingKeyPrefix+path, buf[:]); err != nil {
		s.logger.Warn("timing write failed", zap.String("path", path), zap.Error(err))
	}
}
