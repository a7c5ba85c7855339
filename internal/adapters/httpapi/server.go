package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/CUMTD/Mtd.Kiosk/internal/domain"
)

type Ingester interface {
	Ingest(ctx context.Context, r domain.Reading) (domain.MinutelySample, error)
}

type Querier interface {
	Recent(ctx context.Context, kioskID string) ([]domain.DataPoint, error)
	DailyHistory(ctx context.Context, kioskID string) ([]domain.DailyStatistic, error)
	FleetDailyHistory(ctx context.Context) ([]domain.KioskHistory, error)
}

type Options struct {
	AllowedOrigins []string
	Logger         *slog.Logger
}

type API struct {
	ingester Ingester
	querier  Querier
	logger   *slog.Logger
}

// NewHandler returns the public API wrapped in recovery, request id,
// access logging and CORS middleware.
func NewHandler(ing Ingester, q Querier, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	api := &API{ingester: ing, querier: q, logger: logger}

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
	})

	var h http.Handler = api.Router()
	h = handlers.CustomLoggingHandler(io.Discard, h, api.logRequest)
	h = requestID(h)
	h = handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{logger}), handlers.PrintRecoveryStack(false))(h)
	return c.Handler(h)
}

func (a *API) Router() *mux.Router {
	r := mux.NewRouter()
	t := r.PathPrefix("/temperature").Subrouter()
	// registered before /{kioskId}/... so "daily" is never taken for a kiosk id
	t.HandleFunc("/daily", a.fleetDaily).Methods(http.MethodGet)
	t.HandleFunc("/{kioskId}", a.logConditions).Methods(http.MethodPost)
	t.HandleFunc("/{kioskId}/recent", a.recent).Methods(http.MethodGet)
	t.HandleFunc("/{kioskId}/daily", a.daily).Methods(http.MethodGet)
	return r
}

func (a *API) logConditions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	temp, err := intParam(q.Get("temp"), "temp")
	if err != nil {
		a.problem(w, r, err)
		return
	}
	hum, err := intParam(q.Get("humidity"), "humidity")
	if err != nil {
		a.problem(w, r, err)
		return
	}
	sensor := domain.SensorOnboard
	if raw := q.Get("sensorType"); raw != "" {
		if sensor, err = domain.ParseSensorType(raw); err != nil {
			a.problem(w, r, err)
			return
		}
	}

	s, err := a.ingester.Ingest(r.Context(), domain.Reading{
		KioskID:     mux.Vars(r)["kioskId"],
		Temperature: temp,
		Humidity:    hum,
		SensorType:  sensor,
	})
	if err != nil {
		a.problem(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func (a *API) recent(w http.ResponseWriter, r *http.Request) {
	points, err := a.querier.Recent(r.Context(), mux.Vars(r)["kioskId"])
	if err != nil {
		a.problem(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(points))
}

func (a *API) daily(w http.ResponseWriter, r *http.Request) {
	days, err := a.querier.DailyHistory(r.Context(), mux.Vars(r)["kioskId"])
	if err != nil {
		a.problem(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(days))
}

func (a *API) fleetDaily(w http.ResponseWriter, r *http.Request) {
	fleet, err := a.querier.FleetDailyHistory(r.Context())
	if err != nil {
		a.problem(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(fleet))
}

func intParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, &domain.ValidationError{Field: name, Reason: "is required"}
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &domain.ValidationError{Field: name, Reason: "must be an integer"}
	}
	return n, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Problem is an RFC 7807 style error body.
type Problem struct {
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

func (a *API) problem(w http.ResponseWriter, r *http.Request, err error) {
	p := Problem{Status: http.StatusInternalServerError, Title: "internal error", RequestID: w.Header().Get(requestIDHeader)}
	switch {
	case errors.Is(err, domain.ErrValidation):
		p.Status, p.Title, p.Detail = http.StatusBadRequest, "invalid request", err.Error()
	case errors.Is(err, domain.ErrDuplicateSample):
		p.Status, p.Title, p.Detail = http.StatusConflict, "duplicate sample", err.Error()
	case errors.Is(err, context.Canceled):
		p.Status, p.Title = 499, "client closed request"
	default:
		a.logger.Error("request_failed", "method", r.Method, "path", r.URL.Path, "request_id", p.RequestID, "error", err)
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

const requestIDHeader = "X-Request-ID"

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func (a *API) logRequest(_ io.Writer, p handlers.LogFormatterParams) {
	a.logger.Info("http_request",
		"method", p.Request.Method,
		"path", p.URL.Path,
		"status", p.StatusCode,
		"bytes", p.Size,
		"duration", time.Since(p.TimeStamp).String(),
	)
}

type recoveryLogger struct{ logger *slog.Logger }

func (l recoveryLogger) Println(v ...interface{}) {
	l.logger.Error("http_panic_recovered", "panic", v)
}
