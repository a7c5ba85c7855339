package kiosk

import (
	"context"
	"log/slog"

	base "github.com/CUMTD/Mtd.Kiosk/pkg/kiosk"
)

// Re-exported errors for convenience.
var (
	ErrValidation      = base.ErrValidation
	ErrStorage         = base.ErrStorage
	ErrCircuitOpen     = base.ErrCircuitOpen
	ErrAttemptTimeout  = base.ErrAttemptTimeout
	ErrCollectorClosed = base.ErrCollectorClosed
	ErrPublisherClosed = base.ErrPublisherClosed
)

const (
	SensorOnboard     = base.SensorOnboard
	SensorCoolingUnit = base.SensorCoolingUnit
)

// Type aliases so consumers can import github.com/CUMTD/Mtd.Kiosk directly.
type (
	Config             = base.Config
	Policy             = base.Policy
	StorageConfig      = base.StorageConfig
	RollupConfig       = base.RollupConfig
	CoolingUnitConfig  = base.CoolingUnitConfig
	CoolingUnitSource  = base.CoolingUnitSource
	ResilienceSettings = base.ResilienceSettings
	MQTTConfig         = base.MQTTConfig
	KafkaConfig        = base.KafkaConfig
	Runtime            = base.Runtime
	RuntimeOption      = base.RuntimeOption
	SensorType         = base.SensorType
	Reading            = base.Reading
	MinutelySample     = base.MinutelySample
	DailyStatistic     = base.DailyStatistic
	DataPoint          = base.DataPoint
	KioskHistory       = base.KioskHistory
	RunReport          = base.RunReport
	KioskFailure       = base.KioskFailure
	MinutelyStore      = base.MinutelyStore
	DailyStore         = base.DailyStore
	Collector          = base.Collector
	RollupPublisher    = base.RollupPublisher
	Observability      = base.Observability
	Field              = base.Field
	Clock              = base.Clock
	BreakerSnapshot    = base.BreakerSnapshot
	PushCollector      = base.PushCollector
	PublishFunc        = base.PublishFunc
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

func ParseConfig(raw []byte) (*Config, error) {
	return base.ParseConfig(raw)
}

func ParseSensorType(raw string) (SensorType, error) {
	return base.ParseSensorType(raw)
}

// Runtime and options.
func NewRuntime(ctx context.Context, cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	return base.NewRuntime(ctx, cfg, opts...)
}

func WithMinutelyStore(s MinutelyStore) RuntimeOption {
	return base.WithMinutelyStore(s)
}

func WithDailyStore(s DailyStore) RuntimeOption {
	return base.WithDailyStore(s)
}

func WithCollector(col Collector) RuntimeOption {
	return base.WithCollector(col)
}

func WithPublisher(p RollupPublisher) RuntimeOption {
	return base.WithPublisher(p)
}

func WithObservability(obs Observability) RuntimeOption {
	return base.WithObservability(obs)
}

func WithLogger(l *slog.Logger) RuntimeOption {
	return base.WithLogger(l)
}

func WithClock(c Clock) RuntimeOption {
	return base.WithClock(c)
}

// Collector and publisher adapters.
func NewPushCollector() *PushCollector {
	return base.NewPushCollector()
}

func NewCallbackPublisher(name string, fn PublishFunc) RollupPublisher {
	return base.NewCallbackPublisher(name, fn)
}

func NewChannelPublisher(buffer int) (RollupPublisher, <-chan DailyStatistic) {
	return base.NewChannelPublisher(buffer)
}
