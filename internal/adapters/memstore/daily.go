package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/CUMTD/Mtd.Kiosk/internal/domain"
	"github.com/CUMTD/Mtd.Kiosk/internal/ports"
)

// DailyStore is an in-memory ports.DailyStore.
type DailyStore struct {
	mu    sync.RWMutex
	stats map[string]map[time.Time]domain.DailyStatistic
}

func NewDailyStore() *DailyStore {
	return &DailyStore{stats: make(map[string]map[time.Time]domain.DailyStatistic)}
}

func (d *DailyStore) Upsert(ctx context.Context, stat domain.DailyStatistic) error {
	if err := ctx.Err(); err != nil {
		return domain.NewStorageError("upsert daily statistic", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	days, ok := d.stats[stat.KioskID]
	if !ok {
		days = make(map[time.Time]domain.DailyStatistic)
		d.stats[stat.KioskID] = days
	}
	days[stat.Date.UTC()] = stat
	return nil
}

func (d *DailyStore) GetByKiosk(ctx context.Context, kioskID string) ([]domain.DailyStatistic, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStorageError("get daily statistics", err)
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return sortedDays(d.stats[kioskID]), nil
}

func (d *DailyStore) GetAll(ctx context.Context) (map[string][]domain.DailyStatistic, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStorageError("get all daily statistics", err)
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string][]domain.DailyStatistic, len(d.stats))
	for id, days := range d.stats {
		if len(days) == 0 {
			continue
		}
		out[id] = sortedDays(days)
	}
	return out, nil
}

func sortedDays(days map[time.Time]domain.DailyStatistic) []domain.DailyStatistic {
	if len(days) == 0 {
		return nil
	}
	out := make([]domain.DailyStatistic, 0, len(days))
	for _, s := range days {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

var _ ports.DailyStore = (*DailyStore)(nil)
