package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nimazasinich/crypto-dt-source-sub019/internal/domain/models"
	"github.com/nimazasinich/crypto-dt-source-sub019/internal/domain/repository"
	"github.com/nimazasinich/crypto-dt-source-sub019/internal/registry"
	"github.com/nimazasinich/crypto-dt-source-sub019/internal/store"
	"github.com/nimazasinich/crypto-dt-source-sub019/internal/telemetry"
	"github.com/nimazasinich/crypto-dt-source-sub019/internal/ws"
	apphttp "github.com/nimazasinich/crypto-dt-source-sub019/pkg/http"
	applogger "github.com/nimazasinich/crypto-dt-source-sub019/pkg/logger"
	"github.com/nimazasinich/crypto-dt-source-sub019/pkg/util"
)

const defaultHistoryProviders = 5

// HealthChecker is any backing component that can report liveness.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Handler serves the REST surface: telemetry history, latest cached
// values, connection stats, health, and the websocket upgrade.
type Handler struct {
	store    *store.Store
	recorder *telemetry.Recorder
	registry *registry.Registry
	manager  *ws.Manager
	metrics  repository.Metrics
	logger   *applogger.Logger
	health   map[string]HealthChecker
}

func NewHandler(
	st *store.Store,
	recorder *telemetry.Recorder,
	reg *registry.Registry,
	manager *ws.Manager,
	m repository.Metrics,
	l *applogger.Logger,
) *Handler {
	return &Handler{
		store:    st,
		recorder: recorder,
		registry: reg,
		manager:  manager,
		metrics:  m,
		logger:   l,
		health:   make(map[string]HealthChecker),
	}
}

// AddHealthCheck registers a named component for the health endpoint.
func (h *Handler) AddHealthCheck(name string, c HealthChecker) {
	h.health[name] = c
}

// RegisterRoutes registers API routes.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	api := e.Group("/api")
	api.GET("/history/rate-limits", h.RateLimitHistory)
	api.GET("/history/freshness", h.FreshnessHistory)
	api.GET("/market/latest", h.Latest)
	api.GET("/stats", h.Stats)

	e.GET("/ws", h.manager.HandleWS)
	e.GET("/health", h.Health)
}

// ratePoint is the rate-limit history wire shape.
type ratePoint struct {
	T   time.Time `json:"t"`
	Pct float64   `json:"pct"`
}

// freshnessPoint is the freshness history wire shape.
type freshnessPoint struct {
	T            time.Time          `json:"t"`
	StalenessMin float64            `json:"staleness_min"`
	TTLMin       float64            `json:"ttl_min"`
	Status       models.EntryStatus `json:"status"`
}

type historySeries struct {
	Provider string            `json:"provider"`
	Hours    int               `json:"hours"`
	Series   interface{}       `json:"series"`
	Meta     models.SeriesMeta `json:"meta"`
}

// RateLimitHistory returns per-provider rate-limit usage over a window.
func (h *Handler) RateLimitHistory(c echo.Context) error {
	series, err := h.queryHistory(c)
	if err != nil || series == nil {
		return err
	}

	out := make([]historySeries, 0, len(series))
	for _, s := range series {
		points := make([]ratePoint, 0, len(s.Samples))
		for _, sample := range s.Samples {
			points = append(points, ratePoint{T: sample.Timestamp, Pct: sample.RateLimitPct})
		}
		out = append(out, historySeries{Provider: s.Provider, Hours: s.Hours, Series: points, Meta: s.Meta})
	}
	return apphttp.SuccessResponse(c, out)
}

// FreshnessHistory returns per-provider staleness/TTL history over a window.
func (h *Handler) FreshnessHistory(c echo.Context) error {
	series, err := h.queryHistory(c)
	if err != nil || series == nil {
		return err
	}

	out := make([]historySeries, 0, len(series))
	for _, s := range series {
		points := make([]freshnessPoint, 0, len(s.Samples))
		for _, sample := range s.Samples {
			points = append(points, freshnessPoint{
				T:            sample.Timestamp,
				StalenessMin: sample.StalenessMin,
				TTLMin:       sample.TTLMin,
				Status:       sample.Status,
			})
		}
		out = append(out, historySeries{Provider: s.Provider, Hours: s.Hours, Series: points, Meta: s.Meta})
	}
	return apphttp.SuccessResponse(c, out)
}

// queryHistory handles the shared request flow of both history endpoints.
// On a handled error it writes the response and returns (nil, result); the
// caller must not continue when series is nil.
func (h *Handler) queryHistory(c echo.Context) ([]models.ProviderSeries, error) {
	var req models.HistoryRequest
	if details := apphttp.ReadAndValidateRequest(c, &req); details != nil {
		return nil, apphttp.BadRequestResponse(c, details)
	}

	names := util.SplitCSV(req.Providers)
	if len(names) == 0 {
		names = h.registry.TopNames(defaultHistoryProviders)
	}

	series, err := h.recorder.Query(names, time.Duration(req.Hours)*time.Hour)
	if err != nil {
		if errors.Is(err, telemetry.ErrUnknownProvider) {
			return nil, apphttp.AppErrorResponse(c, apphttp.NotFoundErrorf("%v", err))
		}
		h.logger.Error("history query failed", applogger.Error(err))
		return nil, apphttp.InternalServerErrorResponse(c)
	}
	return series, nil
}

// Latest returns the cached last-known-good value for one metric, with its
// freshness annotations. Absence is a 404, never a fabricated value.
func (h *Handler) Latest(c echo.Context) error {
	var req models.LatestRequest
	if details := apphttp.ReadAndValidateRequest(c, &req); details != nil {
		return apphttp.BadRequestResponse(c, details)
	}

	key := models.MetricKey{Kind: models.MetricKind(req.Metric), Symbol: req.Symbol}
	entry, ok := h.store.Get(key)
	if !ok {
		h.metrics.RecordCacheRead("miss")
		return apphttp.AppErrorResponse(c, apphttp.NotFoundErrorf("no data for %s", key))
	}
	h.metrics.RecordCacheRead(string(entry.Status))
	return apphttp.SuccessResponse(c, entry)
}

// Stats returns live connection aggregates.
func (h *Handler) Stats(c echo.Context) error {
	return apphttp.SuccessResponse(c, h.manager.Stats())
}

type healthReport struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
	Providers  []string          `json:"providers"`
	CachedKeys int               `json:"cached_keys"`
}

// Health reports liveness of the service and its optional backends.
func (h *Handler) Health(c echo.Context) error {
	report := healthReport{
		Status:     "ok",
		Components: make(map[string]string, len(h.health)),
		Providers:  h.registry.Names(),
		CachedKeys: h.store.Len(),
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	for name, checker := range h.health {
		if err := checker.Health(ctx); err != nil {
			report.Components[name] = err.Error()
			report.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		report.Components[name] = "ok"
	}
	return apphttp.DataResponse(c, status, report)
}
