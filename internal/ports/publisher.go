package ports

import (
	"context"

	"github.com/CUMTD/Mtd.Kiosk/internal/domain"
)

// RollupPublisher announces freshly upserted daily statistics downstream.
type RollupPublisher interface {
	Publish(ctx context.Context, stat domain.DailyStatistic) error
	Close() error
}
