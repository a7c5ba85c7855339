package ports

import (
	"context"
	"time"

	"github.com/CUMTD/Mtd.Kiosk/internal/domain"
)

// MinutelyStore owns MinutelySample records. Appends are atomic: either the
// whole sample (or batch) is visible afterwards or nothing is.
type MinutelyStore interface {
	Append(ctx context.Context, s domain.MinutelySample) error
	AppendBatch(ctx context.Context, samples []domain.MinutelySample) error
	// QueryRange returns samples with from <= ts < to ordered by ts ascending.
	QueryRange(ctx context.Context, kioskID string, from, to time.Time) ([]domain.MinutelySample, error)
	// ListActiveKioskIDs returns every kiosk with at least one sample, sorted.
	ListActiveKioskIDs(ctx context.Context) ([]string, error)
}

// DailyStore owns DailyStatistic records keyed by (KioskID, Date).
type DailyStore interface {
	Upsert(ctx context.Context, stat domain.DailyStatistic) error
	// GetByKiosk returns the kiosk's statistics ordered by date ascending.
	GetByKiosk(ctx context.Context, kioskID string) ([]domain.DailyStatistic, error)
	// GetAll omits kiosks without statistics.
	GetAll(ctx context.Context) (map[string][]domain.DailyStatistic, error)
}
