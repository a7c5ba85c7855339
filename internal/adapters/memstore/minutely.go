package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/CUMTD/Mtd.Kiosk/internal/domain"
	"github.com/CUMTD/Mtd.Kiosk/internal/ports"
)

type sampleKey struct {
	ts     int64
	sensor domain.SensorType
}

// kioskShard holds one kiosk's samples ordered by timestamp. Each kiosk has
// its own lock so writers for one kiosk never block readers of another.
type kioskShard struct {
	mu      sync.RWMutex
	samples []domain.MinutelySample
	seen    map[sampleKey]struct{}
}

// MinutelyStore is an in-memory ports.MinutelyStore.
type MinutelyStore struct {
	mu     sync.RWMutex
	shards map[string]*kioskShard
}

func NewMinutelyStore() *MinutelyStore {
	return &MinutelyStore{shards: make(map[string]*kioskShard)}
}

func (m *MinutelyStore) shard(kioskID string, create bool) *kioskShard {
	m.mu.RLock()
	sh, ok := m.shards[kioskID]
	m.mu.RUnlock()
	if ok || !create {
		return sh
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if sh, ok = m.shards[kioskID]; !ok {
		sh = &kioskShard{seen: make(map[sampleKey]struct{})}
		m.shards[kioskID] = sh
	}
	return sh
}

func (m *MinutelyStore) Append(ctx context.Context, s domain.MinutelySample) error {
	return m.AppendBatch(ctx, []domain.MinutelySample{s})
}

// AppendBatch locks every affected shard before writing so readers observe
// either the whole batch or none of it. A sample whose key is already stored,
// or repeated within the batch, fails the batch with domain.ErrDuplicateSample.
func (m *MinutelyStore) AppendBatch(ctx context.Context, samples []domain.MinutelySample) error {
	if len(samples) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return domain.NewStorageError("append samples", err)
	}

	byKiosk := make(map[string][]domain.MinutelySample)
	for _, s := range samples {
		byKiosk[s.KioskID] = append(byKiosk[s.KioskID], s)
	}
	ids := make([]string, 0, len(byKiosk))
	for id := range byKiosk {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	shards := make([]*kioskShard, len(ids))
	for i, id := range ids {
		shards[i] = m.shard(id, true)
		shards[i].mu.Lock()
	}
	defer func() {
		for _, sh := range shards {
			sh.mu.Unlock()
		}
	}()

	for i, id := range ids {
		batch := make(map[sampleKey]struct{}, len(byKiosk[id]))
		for _, s := range byKiosk[id] {
			key := keyOf(s)
			_, stored := shards[i].seen[key]
			_, repeated := batch[key]
			if stored || repeated {
				return domain.NewStorageError("append samples",
					fmt.Errorf("kiosk %q at %s: %w", id, s.Timestamp.Format(time.RFC3339Nano), domain.ErrDuplicateSample))
			}
			batch[key] = struct{}{}
		}
	}
	for i, id := range ids {
		for _, s := range byKiosk[id] {
			shards[i].insertLocked(s)
		}
	}
	return nil
}

func keyOf(s domain.MinutelySample) sampleKey {
	return sampleKey{ts: s.Timestamp.UnixNano(), sensor: s.SensorType}
}

func (sh *kioskShard) insertLocked(s domain.MinutelySample) {
	sh.seen[keyOf(s)] = struct{}{}

	i := sort.Search(len(sh.samples), func(i int) bool {
		return sh.samples[i].Timestamp.After(s.Timestamp)
	})
	sh.samples = append(sh.samples, domain.MinutelySample{})
	copy(sh.samples[i+1:], sh.samples[i:])
	sh.samples[i] = s
}

func (m *MinutelyStore) QueryRange(ctx context.Context, kioskID string, from, to time.Time) ([]domain.MinutelySample, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStorageError("query samples", err)
	}
	sh := m.shard(kioskID, false)
	if sh == nil {
		return nil, nil
	}

	sh.mu.RLock()
	defer sh.mu.RUnlock()
	lo := sort.Search(len(sh.samples), func(i int) bool { return !sh.samples[i].Timestamp.Before(from) })
	hi := sort.Search(len(sh.samples), func(i int) bool { return !sh.samples[i].Timestamp.Before(to) })
	if lo >= hi {
		return nil, nil
	}
	out := make([]domain.MinutelySample, hi-lo)
	copy(out, sh.samples[lo:hi])
	return out, nil
}

func (m *MinutelyStore) ListActiveKioskIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStorageError("list kiosks", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.shards))
	for id := range m.shards {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

var _ ports.MinutelyStore = (*MinutelyStore)(nil)
