package influx

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/CUMTD/Mtd.Kiosk/internal/domain"
)

type recordingWriter struct {
	points []*write.Point
	err    error
}

func (w *recordingWriter) WritePoint(_ context.Context, point ...*write.Point) error {
	if w.err != nil {
		return w.err
	}
	w.points = append(w.points, point...)
	return nil
}

func TestSamplePointCarriesTagsAndFields(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p := samplePoint(domain.MinutelySample{
		KioskID: "K1", Timestamp: ts, Temperature: 72, Humidity: 40, SensorType: domain.SensorCoolingUnit,
	})

	if p.Name() != measurement {
		t.Fatalf("unexpected measurement %s", p.Name())
	}
	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	if tags["kiosk_id"] != "K1" || tags["sensor_type"] != "1" {
		t.Fatalf("unexpected tags %v", tags)
	}
	fields := map[string]interface{}{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	if fields["temperature"] != int64(72) || fields["humidity"] != int64(40) {
		t.Fatalf("unexpected fields %v", fields)
	}
	if !p.Time().Equal(ts) {
		t.Fatalf("unexpected time %s", p.Time())
	}
}

func TestAppendBatchWritesOneRequest(t *testing.T) {
	w := &recordingWriter{}
	store := &MinutelyStore{writer: w, bucket: "kiosks"}

	err := store.AppendBatch(context.Background(), []domain.MinutelySample{
		{KioskID: "A", Timestamp: time.Now()},
		{KioskID: "B", Timestamp: time.Now()},
	})
	if err != nil {
		t.Fatalf("append batch: %v", err)
	}
	if len(w.points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(w.points))
	}
}

func TestAppendFailureIsStorageError(t *testing.T) {
	store := &MinutelyStore{writer: &recordingWriter{err: errors.New("503")}, bucket: "kiosks"}
	err := store.Append(context.Background(), domain.MinutelySample{KioskID: "A", Timestamp: time.Now()})
	if !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestRangeQueryIsHalfOpenAndEscaped(t *testing.T) {
	store := &MinutelyStore{bucket: "kiosks"}
	from := time.Date(2024, 5, 1, 5, 0, 0, 0, time.UTC)
	q := store.rangeQuery(`K"1`, from, from.Add(24*time.Hour))

	for _, want := range []string{
		`from(bucket: "kiosks")`,
		`range(start: 2024-05-01T05:00:00Z, stop: 2024-05-02T05:00:00Z)`,
		`r["kiosk_id"] == "K\"1"`,
		`pivot(rowKey: ["_time", "sensor_type"]`,
	} {
		if !strings.Contains(q, want) {
			t.Fatalf("query missing %q:\n%s", want, q)
		}
	}
}

func TestDecodeRecord(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s, err := decodeRecord("K1", ts, map[string]interface{}{
		"sensor_type": "0", "temperature": int64(71), "humidity": int64(39),
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.SensorType != domain.SensorOnboard || s.Temperature != 71 || s.Humidity != 39 {
		t.Fatalf("unexpected sample %+v", s)
	}

	if _, err := decodeRecord("K1", ts, map[string]interface{}{
		"sensor_type": "0", "temperature": int64(300), "humidity": int64(39),
	}); err == nil {
		t.Fatalf("expected out of range error")
	}
	if _, err := decodeRecord("K1", ts, map[string]interface{}{
		"sensor_type": "9", "temperature": int64(1), "humidity": int64(1),
	}); err == nil {
		t.Fatalf("expected unknown sensor type error")
	}
}
