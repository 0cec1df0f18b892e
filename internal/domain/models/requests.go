package models

// HistoryRequest carries query parameters for the telemetry history
// endpoints. Hours is clamped to the configured window range by the
// recorder, not rejected.
type HistoryRequest struct {
	Hours     int    `query:"hours" default:"24" validate:"omitempty,gte=0"`
	Providers string `query:"providers"`
}

// LatestRequest fetches the cached last-known-good value for one metric.
type LatestRequest struct {
	Metric string `query:"metric" validate:"required,oneof=price ohlc sentiment"`
	Symbol string `query:"symbol"`
}
