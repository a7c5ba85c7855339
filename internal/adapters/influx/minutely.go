package influx

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/CUMTD/Mtd.Kiosk/internal/domain"
	"github.com/CUMTD/Mtd.Kiosk/internal/ports"
)

const measurement = "minutely_sample"

type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

type fluxQuerier interface {
	Query(ctx context.Context, query string) (*api.QueryTableResult, error)
}

// MinutelyStore keeps samples as points tagged by kiosk and sensor type.
// Points sharing (kiosk, sensor type, time) collapse into one series entry.
type MinutelyStore struct {
	client influxdb2.Client
	writer pointWriter
	reader fluxQuerier
	bucket string
}

type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

func NewMinutelyStore(cfg Config) *MinutelyStore {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &MinutelyStore{
		client: client,
		writer: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		reader: client.QueryAPI(cfg.Org),
		bucket: cfg.Bucket,
	}
}

// Ping checks the server health endpoint.
func (m *MinutelyStore) Ping(ctx context.Context) error {
	health, err := m.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("influx health: %w", err)
	}
	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return fmt.Errorf("influx health check failed: %s", msg)
	}
	return nil
}

func (m *MinutelyStore) Close() {
	if m.client != nil {
		m.client.Close()
	}
}

func (m *MinutelyStore) Append(ctx context.Context, s domain.MinutelySample) error {
	return domain.NewStorageError("append sample", m.writer.WritePoint(ctx, samplePoint(s)))
}

// AppendBatch sends all points in a single write request.
func (m *MinutelyStore) AppendBatch(ctx context.Context, samples []domain.MinutelySample) error {
	if len(samples) == 0 {
		return nil
	}
	points := make([]*write.Point, len(samples))
	for i, s := range samples {
		points[i] = samplePoint(s)
	}
	return domain.NewStorageError("append batch", m.writer.WritePoint(ctx, points...))
}

func samplePoint(s domain.MinutelySample) *write.Point {
	return influxdb2.NewPoint(
		measurement,
		map[string]string{
			"kiosk_id":    s.KioskID,
			"sensor_type": strconv.Itoa(int(s.SensorType)),
		},
		map[string]interface{}{
			"temperature": int64(s.Temperature),
			"humidity":    int64(s.Humidity),
		},
		s.Timestamp.UTC(),
	)
}

func (m *MinutelyStore) rangeQuery(kioskID string, from, to time.Time) string {
	return fmt.Sprintf(`from(bucket: %s)
	|> range(start: %s, stop: %s)
	|> filter(fn: (r) => r["_measurement"] == %q)
	|> filter(fn: (r) => r["kiosk_id"] == %s)
	|> pivot(rowKey: ["_time", "sensor_type"], columnKey: ["_field"], valueColumn: "_value")
	|> group()
	|> sort(columns: ["_time", "sensor_type"])`,
		strconv.Quote(m.bucket),
		from.UTC().Format(time.RFC3339Nano),
		to.UTC().Format(time.RFC3339Nano),
		measurement,
		strconv.Quote(kioskID),
	)
}

func (m *MinutelyStore) QueryRange(ctx context.Context, kioskID string, from, to time.Time) ([]domain.MinutelySample, error) {
	if !from.Before(to) {
		return nil, nil
	}
	result, err := m.reader.Query(ctx, m.rangeQuery(kioskID, from, to))
	if err != nil {
		return nil, domain.NewStorageError("query samples", err)
	}
	defer result.Close()

	var out []domain.MinutelySample
	for result.Next() {
		rec := result.Record()
		s, err := decodeRecord(kioskID, rec.Time(), rec.Values())
		if err != nil {
			return nil, domain.NewStorageError("decode sample", err)
		}
		out = append(out, s)
	}
	return out, domain.NewStorageError("query samples", result.Err())
}

func decodeRecord(kioskID string, ts time.Time, values map[string]interface{}) (domain.MinutelySample, error) {
	s := domain.MinutelySample{KioskID: kioskID, Timestamp: ts.UTC()}

	raw, _ := values["sensor_type"].(string)
	st, err := domain.ParseSensorType(raw)
	if err != nil {
		return s, err
	}
	s.SensorType = st

	temp, err := fieldUint8(values, "temperature")
	if err != nil {
		return s, err
	}
	hum, err := fieldUint8(values, "humidity")
	if err != nil {
		return s, err
	}
	s.Temperature, s.Humidity = temp, hum
	return s, nil
}

func fieldUint8(values map[string]interface{}, key string) (uint8, error) {
	var n int64
	switch v := values[key].(type) {
	case int64:
		n = v
	case uint64:
		n = int64(v)
	case float64:
		n = int64(v)
	default:
		return 0, fmt.Errorf("field %s: unexpected %T", key, values[key])
	}
	if n < 0 || n > 255 {
		return 0, fmt.Errorf("field %s: %d out of range", key, n)
	}
	return uint8(n), nil
}

func (m *MinutelyStore) kioskQuery() string {
	return fmt.Sprintf(`import "influxdata/influxdb/schema"
schema.tagValues(bucket: %s, tag: "kiosk_id", predicate: (r) => r["_measurement"] == %q, start: 0)`,
		strconv.Quote(m.bucket), measurement)
}

func (m *MinutelyStore) ListActiveKioskIDs(ctx context.Context) ([]string, error) {
	result, err := m.reader.Query(ctx, m.kioskQuery())
	if err != nil {
		return nil, domain.NewStorageError("list kiosks", err)
	}
	defer result.Close()

	var ids []string
	for result.Next() {
		if id, ok := result.Record().Value().(string); ok && id != "" {
			ids = append(ids, id)
		}
	}
	if err := result.Err(); err != nil {
		return nil, domain.NewStorageError("list kiosks", err)
	}
	sort.Strings(ids)
	return ids, nil
}

var _ ports.MinutelyStore = (*MinutelyStore)(nil)
