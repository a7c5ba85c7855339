package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

const (
	DefaultMinutelyTable = "minutely_samples"
	DefaultDailyTable    = "daily_statistics"
)

// EnsureSchema creates the sample and statistic tables when they are missing.
// It is a bootstrap for fresh databases, not a migration tool.
func EnsureSchema(ctx context.Context, db *sql.DB, minutelyTable, dailyTable string) error {
	if minutelyTable == "" {
		minutelyTable = DefaultMinutelyTable
	}
	if dailyTable == "" {
		dailyTable = DefaultDailyTable
	}
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	kiosk_id    TEXT        NOT NULL,
	ts          TIMESTAMPTZ NOT NULL,
	temperature SMALLINT    NOT NULL,
	humidity    SMALLINT    NOT NULL,
	sensor_type SMALLINT    NOT NULL,
	PRIMARY KEY (kiosk_id, ts, sensor_type)
)`, minutelyTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	kiosk_id         TEXT     NOT NULL,
	day              DATE     NOT NULL,
	sensor_type      SMALLINT NOT NULL,
	sample_count     INTEGER  NOT NULL,
	min_temperature  SMALLINT NOT NULL,
	max_temperature  SMALLINT NOT NULL,
	mean_temperature SMALLINT NOT NULL,
	min_humidity     SMALLINT NOT NULL,
	max_humidity     SMALLINT NOT NULL,
	mean_humidity    SMALLINT NOT NULL,
	PRIMARY KEY (kiosk_id, day)
)`, dailyTable),
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
