package kiosk

import (
	"github.com/CUMTD/Mtd.Kiosk/internal/adapters/coolingunit"
	"github.com/CUMTD/Mtd.Kiosk/internal/adapters/kafka"
	"github.com/CUMTD/Mtd.Kiosk/internal/adapters/mqtt"
	"github.com/CUMTD/Mtd.Kiosk/internal/app/config"
	"github.com/CUMTD/Mtd.Kiosk/internal/ports"
	"github.com/CUMTD/Mtd.Kiosk/internal/resilience"
)

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	// Policy controls collector queue thresholds.
	Policy = ports.Policy
	// StorageConfig selects the minutely and daily store backends.
	StorageConfig = config.StorageConfig
	// RollupConfig configures the fleet timezone and the daily schedule.
	RollupConfig = config.RollupConfig
	// CoolingUnitConfig lists the polled cooling unit APIs.
	CoolingUnitConfig = config.CoolingUnitConfig
	// CoolingUnitSource is one polled kiosk.
	CoolingUnitSource = coolingunit.Source
	// ResilienceSettings tunes timeouts, retries and the circuit breaker.
	ResilienceSettings = resilience.Settings
	// MQTTConfig configures the onboard sensor collector.
	MQTTConfig = mqtt.Config
	// KafkaConfig configures rollup publishing.
	KafkaConfig = kafka.Config
)

// LoadConfig loads YAML from disk using the internal config reader.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// ParseConfig decodes YAML held in memory.
func ParseConfig(raw []byte) (*Config, error) {
	return config.Parse(raw)
}
