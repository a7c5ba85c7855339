package ports

import "time"

// Policy controls the collector pipeline buffering.
type Policy struct {
	MaxQueueLen  int           `yaml:"max_queue_len"`
	MaxBatchSize int           `yaml:"max_batch_size"`
	IdleSleep    time.Duration `yaml:"idle_sleep"`

	OnQueueFull string `yaml:"on_queue_full"` // "block", "drop", "reject"
}
