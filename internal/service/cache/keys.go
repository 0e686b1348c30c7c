package cache

import (
	"time"

	pkgcache "FinCast/pkg/cache"
)

// BytesCache holds marshaled API responses under TTL'd keys. Handlers and
// the warmup job share it, so a warmed entry is exactly what a request
// would have cached. Implementations are TTLCache and ServiceBytes.
type BytesCache interface {
	GetBytes(key string) (b []byte, ok bool, err error)
	SetBytes(key string, value []byte, ttl time.Duration) error
}

// Keys and TTLs are shared by the HTTP handlers and the warmup jobs, so a
// warmed entry is the same one a default request reads.

const (
	ForecastTTL = 30 * time.Second
	HistoryTTL  = 60 * time.Second
	RegimeTTL   = 30 * time.Second
)

func ForecastKey(symbol, tf, method string, n int) string {
	return pkgcache.GenerateKeyWithParams("forecast", symbol, tf, method, n)
}

func HistoryKey(symbol, tf string, limit int) string {
	return pkgcache.GenerateKeyWithParams("history", symbol, tf, limit)
}

func RegimeKey(symbol, tf string, n int) string {
	return pkgcache.GenerateKeyWithParams("regime", symbol, tf, n)
}
