package kiosk

import (
	"github.com/CUMTD/Mtd.Kiosk/internal/app/rollup"
	"github.com/CUMTD/Mtd.Kiosk/internal/domain"
	"github.com/CUMTD/Mtd.Kiosk/internal/ports"
	"github.com/CUMTD/Mtd.Kiosk/internal/resilience"
)

type (
	SensorType     = domain.SensorType
	Reading        = domain.Reading
	MinutelySample = domain.MinutelySample
	DailyStatistic = domain.DailyStatistic
	DataPoint      = domain.DataPoint
	KioskHistory   = domain.KioskHistory

	// RunReport summarizes a fleet rollup for one day.
	RunReport = rollup.RunReport
	// KioskFailure names a kiosk whose rollup failed.
	KioskFailure = rollup.KioskFailure

	// MinutelyStore persists raw samples.
	MinutelyStore = ports.MinutelyStore
	// DailyStore persists daily statistics.
	DailyStore = ports.DailyStore
	// Collector streams readings from any source (MQTT, simulators, etc.) into the pipeline.
	Collector = ports.Collector
	// RollupPublisher receives every upserted daily statistic.
	RollupPublisher = ports.RollupPublisher
	// Observability emits logs and metrics.
	Observability = ports.Observability
	// Field is a structured log field used by Observability implementations.
	Field = ports.Field
	// Clock supplies the current time.
	Clock = ports.Clock
	// BreakerSnapshot is the observable state of one outbound target.
	BreakerSnapshot = resilience.Snapshot
)

const (
	SensorOnboard     = domain.SensorOnboard
	SensorCoolingUnit = domain.SensorCoolingUnit
)

var (
	ErrValidation     = domain.ErrValidation
	ErrStorage        = domain.ErrStorage
	ErrCircuitOpen    = resilience.ErrCircuitOpen
	ErrAttemptTimeout = resilience.ErrAttemptTimeout
)

// ParseSensorType accepts sensor names, legacy aliases and numeric codes.
func ParseSensorType(raw string) (SensorType, error) {
	return domain.ParseSensorType(raw)
}
