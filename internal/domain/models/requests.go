package models

// Requests for forecast HTTP endpoints. Defined in domain for consistency and reuse.

// Defaults mirrored by the struct tags below. The warmup job uses them
// to prime the same cache keys a default request reads.
const (
	DefaultForecastMethod = "trimmed"
	DefaultForecastN      = 600
)

type ForecastRequest struct {
	Symbol   string `param:"symbol" json:"symbol" validate:"required,ticker"`
	Interval string `query:"interval" json:"interval" default:"1d" validate:"oneof=1m 5m 1h 1d"`
	Method   string `query:"method" json:"method" default:"trimmed" validate:"oneof=mean median trimmed"`
	N        int    `query:"n" json:"n" default:"600" validate:"gte=60,lte=5000"`
	Retrain  bool   `query:"retrain" json:"retrain"`
}

type HistoryRequest struct {
	Symbol   string `param:"symbol" json:"symbol" validate:"required,ticker"`
	Interval string `query:"interval" json:"interval" default:"1d" validate:"oneof=1m 5m 1h 1d"`
	Limit    int    `query:"limit" json:"limit" default:"500" validate:"gte=1,lte=5000"`
	From     string `query:"from" json:"from"`
	To       string `query:"to" json:"to"`
}

type RegimeRequest struct {
	Symbol   string `param:"symbol" json:"symbol" validate:"required,ticker"`
	Interval string `query:"interval" json:"interval" default:"1d" validate:"oneof=1m 5m 1h 1d"`
	N        int    `query:"n" json:"n" default:"600" validate:"gte=1,lte=5000"`
	Retrain  bool   `query:"retrain" json:"retrain"`
}
