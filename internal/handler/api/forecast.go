package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	icache "FinCast/internal/service/cache"
	"FinCast/internal/service/metrics"
	"FinCast/internal/service/ratelimit"
	"FinCast/internal/services/ensemble"
	"FinCast/internal/usecase"
	xhttp "FinCast/pkg/http"
	applogger "FinCast/pkg/logger"
	xutil "FinCast/pkg/util"
)

// ForecastHandler serves the forecast, history and regime endpoints.
type ForecastHandler struct {
	forecaster *usecase.Forecaster
	history    *usecase.HistoryUseCase
	cache      icache.BytesCache
	rl         *ratelimit.Limiter
	l          *applogger.Logger
}

func NewForecastHandler(forecaster *usecase.Forecaster, history *usecase.HistoryUseCase) *ForecastHandler {
	metrics.Register()
	return &ForecastHandler{forecaster: forecaster, history: history, rl: ratelimit.New()}
}

// SetCache injects a response cache.
func (h *ForecastHandler) SetCache(c icache.BytesCache) { h.cache = c }

// SetLogger injects a structured logger.
func (h *ForecastHandler) SetLogger(l *applogger.Logger) { h.l = l }

func (h *ForecastHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	g := e.Group("/api/v1")
	g.GET("/forecast/:symbol", h.Forecast)
	g.GET("/history/:symbol", h.History)
	g.GET("/regime/:symbol", h.Regime)
}

func (h *ForecastHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

func (h *ForecastHandler) Forecast(c echo.Context) error {
	start := time.Now()
	endpoint := "forecast"
	defer func() { metrics.ForecastLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.ForecastRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	symbol := strings.ToUpper(req.Symbol)
	tf := domrepo.NormalizeTimeframe(req.Interval)

	if !h.rl.Allow(c.RealIP()+":forecast", 3, 1) {
		if h.l != nil {
			h.l.Warn("forecast rate_limited", applogger.String("remote", c.RealIP()))
		}
		return rateLimitedResponse(c)
	}

	cacheKey := icache.ForecastKey(symbol, string(tf), req.Method, req.N)
	if !req.Retrain {
		if b, ok := h.cacheGet(endpoint, cacheKey); ok {
			c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
			return xhttp.SuccessResponse(c, json.RawMessage(b))
		}
	}

	res, err := h.forecaster.Forecast(c.Request().Context(), usecase.ForecastParams{
		Symbol:    symbol,
		Timeframe: tf,
		Method:    models.AggregateMethod(req.Method),
		N:         req.N,
		Retrain:   req.Retrain,
	})
	if err != nil {
		metrics.ForecastErrors.WithLabelValues(endpoint).Inc()
		if h.l != nil {
			h.l.Error("forecast usecase error", applogger.String("symbol", symbol), applogger.Error(err))
		}
		return xhttp.AppErrorResponse(c, mapUsecaseError(symbol, err))
	}

	if b, err := json.Marshal(res); err == nil {
		h.cacheSet(endpoint, cacheKey, b, icache.ForecastTTL)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, res)
}

func (h *ForecastHandler) History(c echo.Context) error {
	start := time.Now()
	endpoint := "history"
	defer func() { metrics.ForecastLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	symbol := strings.ToUpper(req.Symbol)
	tf := domrepo.NormalizeTimeframe(req.Interval)

	if !h.rl.Allow(c.RealIP()+":history", 10, 5) {
		if h.l != nil {
			h.l.Warn("history rate_limited", applogger.String("remote", c.RealIP()))
		}
		return rateLimitedResponse(c)
	}

	var from, to time.Time
	if req.From != "" || req.To != "" {
		var okFrom, okTo bool
		from, okFrom = xutil.ParseTime(req.From)
		to, okTo = xutil.ParseTime(req.To)
		if !okFrom || !okTo {
			return xhttp.BadRequestResponse(c, "from and to must both be dates or unix timestamps")
		}
		if !from.Before(to) {
			return xhttp.BadRequestResponse(c, "from must precede to")
		}
	}
	ranged := !from.IsZero()

	// Range queries are ad hoc; only the rolling window is worth caching.
	cacheKey := icache.HistoryKey(symbol, string(tf), req.Limit)
	if !ranged {
		if b, ok := h.cacheGet(endpoint, cacheKey); ok {
			return xhttp.SuccessResponse(c, json.RawMessage(b))
		}
	}

	res, err := h.history.GetHistory(c.Request().Context(), usecase.GetHistoryParams{
		Symbol:    symbol,
		Timeframe: tf,
		Limit:     req.Limit,
		From:      from,
		To:        to,
	})
	if err != nil {
		metrics.ForecastErrors.WithLabelValues(endpoint).Inc()
		if h.l != nil {
			h.l.Error("history usecase error", applogger.String("symbol", symbol), applogger.Error(err))
		}
		return xhttp.AppErrorResponse(c, mapUsecaseError(symbol, err))
	}

	if !ranged {
		if b, err := json.Marshal(res); err == nil {
			h.cacheSet(endpoint, cacheKey, b, icache.HistoryTTL)
		}
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ForecastHandler) Regime(c echo.Context) error {
	start := time.Now()
	endpoint := "regime"
	defer func() { metrics.ForecastLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.RegimeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	symbol := strings.ToUpper(req.Symbol)
	tf := domrepo.NormalizeTimeframe(req.Interval)

	if !h.rl.Allow(c.RealIP()+":regime", 5, 2) {
		if h.l != nil {
			h.l.Warn("regime rate_limited", applogger.String("remote", c.RealIP()))
		}
		return rateLimitedResponse(c)
	}

	cacheKey := icache.RegimeKey(symbol, string(tf), req.N)
	if !req.Retrain {
		if b, ok := h.cacheGet(endpoint, cacheKey); ok {
			c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
			return xhttp.SuccessResponse(c, json.RawMessage(b))
		}
	}

	res, err := h.forecaster.DetectRegime(c.Request().Context(), usecase.RegimeParams{
		Symbol:    symbol,
		Timeframe: tf,
		N:         req.N,
		Retrain:   req.Retrain,
	})
	if err != nil {
		metrics.ForecastErrors.WithLabelValues(endpoint).Inc()
		if h.l != nil {
			h.l.Error("regime usecase error", applogger.String("symbol", symbol), applogger.Error(err))
		}
		return xhttp.AppErrorResponse(c, mapUsecaseError(symbol, err))
	}

	if b, err := json.Marshal(res); err == nil {
		h.cacheSet(endpoint, cacheKey, b, icache.RegimeTTL)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, res)
}

// mapUsecaseError translates pipeline sentinels into HTTP-status errors.
// Anything unrecognized becomes a generic 500 so internals stay out of
// client payloads; the handler has already logged the cause.
func mapUsecaseError(symbol string, err error) error {
	switch {
	case errors.Is(err, usecase.ErrUnknownSymbol):
		return xhttp.NotFoundError(err.Error()).WithParam("symbol", symbol)
	case errors.Is(err, usecase.ErrInsufficientHistory):
		return xhttp.NewAppError("ERR_INSUFFICIENT_HISTORY", "", err.Error(), http.StatusUnprocessableEntity).WithParam("symbol", symbol)
	case errors.Is(err, ensemble.ErrNoPredictions):
		return xhttp.NewAppError("ERR_NO_PREDICTIONS", "", "no strategy could produce a prediction", http.StatusInternalServerError)
	default:
		return xhttp.InternalError("internal error").WithError(err)
	}
}

func rateLimitedResponse(c echo.Context) error {
	return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limited"))
}

func (h *ForecastHandler) cacheGet(endpoint, key string) ([]byte, bool) {
	if h.cache == nil {
		return nil, false
	}
	b, ok, err := h.cache.GetBytes(key)
	if err != nil {
		if h.l != nil {
			h.l.Warn(endpoint+" cache_get_error", applogger.Error(err))
		}
		return nil, false
	}
	if h.l != nil {
		if ok {
			h.l.Debug(endpoint+" cache_hit", applogger.String("key", key))
		} else {
			h.l.Debug(endpoint+" cache_miss", applogger.String("key", key))
		}
	}
	return b, ok
}

func (h *ForecastHandler) cacheSet(endpoint, key string, b []byte, ttl time.Duration) {
	if h.cache == nil {
		return
	}
	if err := h.cache.SetBytes(key, b, ttl); err != nil && h.l != nil {
		h.l.Warn(endpoint+" cache_set_error", applogger.Error(err))
	}
}

var _ xhttp.Handler = (*ForecastHandler)(nil)
