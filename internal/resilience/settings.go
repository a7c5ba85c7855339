package resilience

import (
	"errors"
	"time"
)

// Settings holds the timeout, retry and circuit breaker tunables for outbound
// calls to one class of targets.
type Settings struct {
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	TotalTimeout   time.Duration `yaml:"total_timeout"`

	// MaxRetries is nil when unset; an explicit 0 disables retries.
	MaxRetries *int          `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
	NoJitter   bool          `yaml:"no_jitter"`

	FailureRatio      float64       `yaml:"failure_ratio"`
	MinimumThroughput int           `yaml:"minimum_throughput"`
	SamplingDuration  time.Duration `yaml:"sampling_duration"`
	BreakDuration     time.Duration `yaml:"break_duration"`
}

// Retries returns n as a MaxRetries value.
func Retries(n int) *int { return &n }

// DefaultSettings mirrors the policy applied to the cooling unit API.
func DefaultSettings() Settings {
	return Settings{
		AttemptTimeout:    2 * time.Second,
		TotalTimeout:      10 * time.Second,
		MaxRetries:        Retries(3),
		BaseDelay:         500 * time.Millisecond,
		MaxDelay:          30 * time.Second,
		FailureRatio:      0.75,
		MinimumThroughput: 4,
		SamplingDuration:  60 * time.Second,
		BreakDuration:     120 * time.Second,
	}
}

// ApplyDefaults fills zero fields from DefaultSettings.
func (s *Settings) ApplyDefaults() {
	d := DefaultSettings()
	if s.AttemptTimeout == 0 {
		s.AttemptTimeout = d.AttemptTimeout
	}
	if s.TotalTimeout == 0 {
		s.TotalTimeout = d.TotalTimeout
	}
	if s.MaxRetries == nil {
		s.MaxRetries = d.MaxRetries
	}
	if s.BaseDelay == 0 {
		s.BaseDelay = d.BaseDelay
	}
	if s.MaxDelay == 0 {
		s.MaxDelay = d.MaxDelay
	}
	if s.FailureRatio == 0 {
		s.FailureRatio = d.FailureRatio
	}
	if s.MinimumThroughput == 0 {
		s.MinimumThroughput = d.MinimumThroughput
	}
	if s.SamplingDuration == 0 {
		s.SamplingDuration = d.SamplingDuration
	}
	if s.BreakDuration == 0 {
		s.BreakDuration = d.BreakDuration
	}
}

func (s Settings) Validate() error {
	switch {
	case s.AttemptTimeout <= 0:
		return errors.New("attempt_timeout must be > 0")
	case s.TotalTimeout < s.AttemptTimeout:
		return errors.New("total_timeout must be >= attempt_timeout")
	case s.MaxRetries != nil && *s.MaxRetries < 0:
		return errors.New("max_retries must be >= 0")
	case s.BaseDelay <= 0:
		return errors.New("base_delay must be > 0")
	case s.FailureRatio <= 0 || s.FailureRatio > 1:
		return errors.New("failure_ratio must be in (0, 1]")
	case s.MinimumThroughput < 1:
		return errors.New("minimum_throughput must be >= 1")
	case s.SamplingDuration <= 0:
		return errors.New("sampling_duration must be > 0")
	case s.BreakDuration <= 0:
		return errors.New("break_duration must be > 0")
	}
	return nil
}
