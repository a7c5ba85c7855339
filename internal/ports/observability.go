package ports

type Observability interface {
	LogInfo(msg string, fields ...Field)
	LogWarn(msg string, fields ...Field)
	LogError(msg string, err error, fields ...Field)
	LogCritical(msg string, err error, fields ...Field)

	IncCounter(name string, v float64)
	ObserveLatency(name string, seconds float64)

	SetGauge(name string, v float64)
}

type Field struct {
	Key   string
	Value any
}

// F is shorthand for building a Field.
func F(key string, value any) Field { return Field{Key: key, Value: value} }

// NopObservability discards everything. Useful as a default and in tests.
type NopObservability struct{}

func (NopObservability) LogInfo(string, ...Field)            {}
func (NopObservability) LogWarn(string, ...Field)            {}
func (NopObservability) LogError(string, error, ...Field)    {}
func (NopObservability) LogCritical(string, error, ...Field) {}
func (NopObservability) IncCounter(string, float64)          {}
func (NopObservability) ObserveLatency(string, float64)      {}
func (NopObservability) SetGauge(string, float64)            {}
