package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/CUMTD/Mtd.Kiosk/internal/resilience"
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

type breakerView struct {
	Target       string    `json:"target"`
	State        string    `json:"state"`
	FailureRatio float64   `json:"failureRatio"`
	SampleCount  int       `json:"sampleCount"`
	OpenedAt     time.Time `json:"openedAt,omitempty"`
}

// NewOpsHandler serves /metrics, /healthz and /breakers on the operator listener.
func NewOpsHandler(g prometheus.Gatherer, health HealthCheck, breakers func() []resilience.Snapshot) http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if health != nil {
			ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
			defer cancel()
			if err := health(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	r.HandleFunc("/breakers", func(w http.ResponseWriter, _ *http.Request) {
		var snaps []resilience.Snapshot
		if breakers != nil {
			snaps = breakers()
		}
		out := make([]breakerView, 0, len(snaps))
		for _, s := range snaps {
			out = append(out, breakerView{
				Target:       s.Target,
				State:        s.State.String(),
				FailureRatio: s.FailureRatio,
				SampleCount:  s.SampleCount,
				OpenedAt:     s.OpenedAt,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}).Methods(http.MethodGet)
	return r
}
