package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/CUMTD/Mtd.Kiosk/internal/domain"
	"github.com/CUMTD/Mtd.Kiosk/internal/ports"
)

const dailyColumns = "kiosk_id, day, sensor_type, sample_count, min_temperature, max_temperature, mean_temperature, min_humidity, max_humidity, mean_humidity"

type DailyStore struct {
	db        *sql.DB
	tableName string
}

func NewDailyStore(db *sql.DB, table string) *DailyStore {
	if table == "" {
		table = DefaultDailyTable
	}
	return &DailyStore{db: db, tableName: table}
}

// Upsert replaces any existing row for (kiosk_id, day) in a single statement.
func (d *DailyStore) Upsert(ctx context.Context, s domain.DailyStatistic) error {
	query := "INSERT INTO " + d.tableName + " (" + dailyColumns + ") VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)" +
		" ON CONFLICT (kiosk_id, day) DO UPDATE SET" +
		" sensor_type = EXCLUDED.sensor_type, sample_count = EXCLUDED.sample_count," +
		" min_temperature = EXCLUDED.min_temperature, max_temperature = EXCLUDED.max_temperature," +
		" mean_temperature = EXCLUDED.mean_temperature, min_humidity = EXCLUDED.min_humidity," +
		" max_humidity = EXCLUDED.max_humidity, mean_humidity = EXCLUDED.mean_humidity"

	_, err := d.db.ExecContext(ctx, query,
		s.KioskID,
		s.Date.UTC().Format(time.DateOnly),
		int16(s.SensorType),
		s.SampleCount,
		int16(s.MinTemperature),
		int16(s.MaxTemperature),
		int16(s.MeanTemperature),
		int16(s.MinHumidity),
		int16(s.MaxHumidity),
		int16(s.MeanHumidity),
	)
	return domain.NewStorageError("upsert daily statistic", err)
}

func (d *DailyStore) GetByKiosk(ctx context.Context, kioskID string) ([]domain.DailyStatistic, error) {
	query := "SELECT " + dailyColumns + " FROM " + d.tableName + " WHERE kiosk_id = $1 ORDER BY day ASC"
	rows, err := d.db.QueryContext(ctx, query, kioskID)
	if err != nil {
		return nil, domain.NewStorageError("get daily statistics", err)
	}
	defer rows.Close()

	var out []domain.DailyStatistic
	for rows.Next() {
		s, err := scanDaily(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, domain.NewStorageError("get daily statistics", rows.Err())
}

func (d *DailyStore) GetAll(ctx context.Context) (map[string][]domain.DailyStatistic, error) {
	query := "SELECT " + dailyColumns + " FROM " + d.tableName + " ORDER BY kiosk_id ASC, day ASC"
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, domain.NewStorageError("get all daily statistics", err)
	}
	defer rows.Close()

	out := make(map[string][]domain.DailyStatistic)
	for rows.Next() {
		s, err := scanDaily(rows)
		if err != nil {
			return nil, err
		}
		out[s.KioskID] = append(out[s.KioskID], s)
	}
	return out, domain.NewStorageError("get all daily statistics", rows.Err())
}

func scanDaily(rows *sql.Rows) (domain.DailyStatistic, error) {
	var (
		s                                         domain.DailyStatistic
		day                                       time.Time
		sensor, minT, maxT, meanT, minH, maxH, mH int16
	)
	if err := rows.Scan(&s.KioskID, &day, &sensor, &s.SampleCount, &minT, &maxT, &meanT, &minH, &maxH, &mH); err != nil {
		return s, domain.NewStorageError("scan daily statistic", err)
	}
	y, m, dd := day.Date()
	s.Date = time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
	s.SensorType = domain.SensorType(sensor)
	s.MinTemperature, s.MaxTemperature, s.MeanTemperature = uint8(minT), uint8(maxT), uint8(meanT)
	s.MinHumidity, s.MaxHumidity, s.MeanHumidity = uint8(minH), uint8(maxH), uint8(mH)
	return s, nil
}

var _ ports.DailyStore = (*DailyStore)(nil)
