package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/CUMTD/Mtd.Kiosk/internal/domain"
	"github.com/CUMTD/Mtd.Kiosk/internal/ports"
)

type MinutelyStore struct {
	db        *sql.DB
	tableName string
}

func NewMinutelyStore(db *sql.DB, table string) *MinutelyStore {
	if table == "" {
		table = DefaultMinutelyTable
	}
	return &MinutelyStore{db: db, tableName: table}
}

func (m *MinutelyStore) Append(ctx context.Context, s domain.MinutelySample) error {
	query, args := m.insertStatement([]domain.MinutelySample{s})
	res, err := m.db.ExecContext(ctx, query, args...)
	if err != nil {
		return domain.NewStorageError("append sample", err)
	}
	return domain.NewStorageError("append sample", checkInserted(res, 1))
}

// checkInserted turns rows skipped by ON CONFLICT DO NOTHING into
// domain.ErrDuplicateSample.
func checkInserted(res sql.Result, want int) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n < int64(want) {
		return fmt.Errorf("%d of %d samples already stored: %w", int64(want)-n, want, domain.ErrDuplicateSample)
	}
	return nil
}

// AppendBatch writes every sample in one transaction. A sample whose key is
// already stored rolls the whole batch back with domain.ErrDuplicateSample.
func (m *MinutelyStore) AppendBatch(ctx context.Context, samples []domain.MinutelySample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.NewStorageError("begin batch", err)
	}
	query, args := m.insertStatement(samples)
	res, err := tx.ExecContext(ctx, query, args...)
	if err == nil {
		err = checkInserted(res, len(samples))
	}
	if err != nil {
		_ = tx.Rollback()
		return domain.NewStorageError("append batch", err)
	}
	return domain.NewStorageError("commit batch", tx.Commit())
}

func (m *MinutelyStore) insertStatement(samples []domain.MinutelySample) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(m.tableName)
	b.WriteString(" (kiosk_id, ts, temperature, humidity, sensor_type) VALUES ")

	args := make([]any, 0, len(samples)*5)
	for i, s := range samples {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(fmt.Sprintf("($%d,$%d,$%d,$%d,$%d)",
			len(args)+1, len(args)+2, len(args)+3, len(args)+4, len(args)+5))
		args = append(args,
			s.KioskID,
			s.Timestamp.UTC(),
			int16(s.Temperature),
			int16(s.Humidity),
			int16(s.SensorType),
		)
	}

	b.WriteString(" ON CONFLICT (kiosk_id, ts, sensor_type) DO NOTHING")
	return b.String(), args
}

func (m *MinutelyStore) QueryRange(ctx context.Context, kioskID string, from, to time.Time) ([]domain.MinutelySample, error) {
	query := "SELECT ts, temperature, humidity, sensor_type FROM " + m.tableName +
		" WHERE kiosk_id = $1 AND ts >= $2 AND ts < $3 ORDER BY ts ASC, sensor_type ASC"
	rows, err := m.db.QueryContext(ctx, query, kioskID, from.UTC(), to.UTC())
	if err != nil {
		return nil, domain.NewStorageError("query samples", err)
	}
	defer rows.Close()

	var out []domain.MinutelySample
	for rows.Next() {
		var (
			ts                  time.Time
			temp, hum, sensorID int16
		)
		if err := rows.Scan(&ts, &temp, &hum, &sensorID); err != nil {
			return nil, domain.NewStorageError("scan sample", err)
		}
		out = append(out, domain.MinutelySample{
			KioskID:     kioskID,
			Timestamp:   ts.UTC(),
			Temperature: uint8(temp),
			Humidity:    uint8(hum),
			SensorType:  domain.SensorType(sensorID),
		})
	}
	return out, domain.NewStorageError("query samples", rows.Err())
}

func (m *MinutelyStore) ListActiveKioskIDs(ctx context.Context) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT DISTINCT kiosk_id FROM "+m.tableName+" ORDER BY kiosk_id")
	if err != nil {
		return nil, domain.NewStorageError("list kiosks", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, domain.NewStorageError("scan kiosk id", err)
		}
		ids = append(ids, id)
	}
	return ids, domain.NewStorageError("list kiosks", rows.Err())
}

var _ ports.MinutelyStore = (*MinutelyStore)(nil)
