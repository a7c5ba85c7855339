package ports

import "github.com/CUMTD/Mtd.Kiosk/internal/domain"

// Collector streams readings pushed by kiosk sensors (MQTT, simulators, etc.).
type Collector interface {
	Start(out chan<- domain.Reading) error
	Stop() error
}
