package cache

import (
	"fmt"
	"strings"
)

// GenerateKey joins a prefix and one ID into a cache key.
func GenerateKey(prefix, id string) string {
	return prefix + ":" + id
}

// GenerateKeyWithParams joins a prefix and parameters into a cache key,
// e.g. GenerateKeyWithParams("forecast", "AAPL", "1d", 600).
func GenerateKeyWithParams(prefix string, params ...interface{}) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, p := range params {
		fmt.Fprintf(&b, ":%v", p)
	}
	return b.String()
}
