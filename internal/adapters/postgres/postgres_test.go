package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/CUMTD/Mtd.Kiosk/internal/domain"
)

func newMock(t *testing.T) (*MinutelyStore, *DailyStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewMinutelyStore(db, ""), NewDailyStore(db, ""), mock
}

func TestMinutelyStoreAppend(t *testing.T) {
	store, _, mock := newMock(t)
	ts := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

	expected := regexp.QuoteMeta("INSERT INTO minutely_samples (kiosk_id, ts, temperature, humidity, sensor_type) VALUES ($1,$2,$3,$4,$5) ON CONFLICT (kiosk_id, ts, sensor_type) DO NOTHING")
	mock.ExpectExec(expected).
		WithArgs("K1", ts, int16(72), int16(40), int16(domain.SensorOnboard)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.Append(context.Background(), domain.MinutelySample{
		KioskID: "K1", Timestamp: ts, Temperature: 72, Humidity: 40, SensorType: domain.SensorOnboard,
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMinutelyStoreAppendFailureIsStorageError(t *testing.T) {
	store, _, mock := newMock(t)
	mock.ExpectExec("INSERT INTO minutely_samples").WillReturnError(errors.New("connection reset"))

	err := store.Append(context.Background(), domain.MinutelySample{KioskID: "K1", Timestamp: time.Now()})
	if !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestMinutelyStoreAppendBatchCommits(t *testing.T) {
	store, _, mock := newMock(t)
	ts := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("VALUES ($1,$2,$3,$4,$5),($6,$7,$8,$9,$10) ON CONFLICT")).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := store.AppendBatch(context.Background(), []domain.MinutelySample{
		{KioskID: "K1", Timestamp: ts, Temperature: 70, Humidity: 40},
		{KioskID: "K2", Timestamp: ts, Temperature: 71, Humidity: 41, SensorType: domain.SensorCoolingUnit},
	})
	if err != nil {
		t.Fatalf("append batch: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMinutelyStoreAppendBatchRollsBack(t *testing.T) {
	store, _, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO minutely_samples").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store.AppendBatch(context.Background(), []domain.MinutelySample{{KioskID: "K1", Timestamp: time.Now()}})
	if !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMinutelyStoreAppendReportsSkippedDuplicate(t *testing.T) {
	store, _, mock := newMock(t)
	mock.ExpectExec("INSERT INTO minutely_samples").WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Append(context.Background(), domain.MinutelySample{KioskID: "K1", Timestamp: time.Now()})
	if !errors.Is(err, domain.ErrDuplicateSample) || !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("expected duplicate storage error, got %v", err)
	}
}

func TestMinutelyStoreAppendBatchRollsBackOnDuplicate(t *testing.T) {
	store, _, mock := newMock(t)
	ts := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO minutely_samples").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	err := store.AppendBatch(context.Background(), []domain.MinutelySample{
		{KioskID: "K1", Timestamp: ts, Temperature: 70, Humidity: 40},
		{KioskID: "K1", Timestamp: ts.Add(time.Microsecond), Temperature: 90, Humidity: 50},
	})
	if !errors.Is(err, domain.ErrDuplicateSample) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMinutelyStoreQueryRange(t *testing.T) {
	store, _, mock := newMock(t)
	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	rows := sqlmock.NewRows([]string{"ts", "temperature", "humidity", "sensor_type"}).
		AddRow(from.Add(time.Minute), int16(70), int16(40), int16(0)).
		AddRow(from.Add(2*time.Minute), int16(71), int16(41), int16(1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT ts, temperature, humidity, sensor_type FROM minutely_samples WHERE kiosk_id = $1 AND ts >= $2 AND ts < $3")).
		WithArgs("K1", from, to).
		WillReturnRows(rows)

	got, err := store.QueryRange(context.Background(), "K1", from, to)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 || got[1].SensorType != domain.SensorCoolingUnit || got[0].KioskID != "K1" {
		t.Fatalf("unexpected samples %+v", got)
	}
}

func TestMinutelyStoreListActiveKioskIDs(t *testing.T) {
	store, _, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT kiosk_id FROM minutely_samples ORDER BY kiosk_id")).
		WillReturnRows(sqlmock.NewRows([]string{"kiosk_id"}).AddRow("A").AddRow("B"))

	ids, err := store.ListActiveKioskIDs(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 2 || ids[0] != "A" {
		t.Fatalf("unexpected ids %v", ids)
	}
}

func TestDailyStoreUpsert(t *testing.T) {
	_, store, mock := newMock(t)
	stat := domain.DailyStatistic{
		KioskID: "K1", Date: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), SampleCount: 3,
		MinTemperature: 70, MaxTemperature: 74, MeanTemperature: 72,
		MinHumidity: 40, MaxHumidity: 44, MeanHumidity: 42,
	}

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (kiosk_id, day) DO UPDATE SET")).
		WithArgs("K1", "2024-05-01", int16(0), 3, int16(70), int16(74), int16(72), int16(40), int16(44), int16(42)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := store.Upsert(context.Background(), stat); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDailyStoreGetAllGroupsByKiosk(t *testing.T) {
	_, store, mock := newMock(t)
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	cols := []string{"kiosk_id", "day", "sensor_type", "sample_count", "min_temperature", "max_temperature",
		"mean_temperature", "min_humidity", "max_humidity", "mean_humidity"}
	rows := sqlmock.NewRows(cols).
		AddRow("A", day, int16(0), 10, int16(60), int16(70), int16(65), int16(30), int16(40), int16(35)).
		AddRow("A", day.AddDate(0, 0, 1), int16(0), 12, int16(61), int16(71), int16(66), int16(31), int16(41), int16(36)).
		AddRow("B", day, int16(1), 4, int16(50), int16(55), int16(52), int16(20), int16(25), int16(22))
	mock.ExpectQuery(regexp.QuoteMeta("FROM daily_statistics ORDER BY kiosk_id ASC, day ASC")).WillReturnRows(rows)

	all, err := store.GetAll(context.Background())
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(all["A"]) != 2 || len(all["B"]) != 1 {
		t.Fatalf("unexpected grouping %+v", all)
	}
	if all["B"][0].SensorType != domain.SensorCoolingUnit || all["B"][0].MeanTemperature != 52 {
		t.Fatalf("unexpected row %+v", all["B"][0])
	}
}

func TestEnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS minutely_samples").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS daily_statistics").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := EnsureSchema(context.Background(), db, DefaultMinutelyTable, DefaultDailyTable); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
