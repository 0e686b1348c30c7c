package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
environment: test
server:
  port: 8000
  read_timeout: 30s
  shutdown_timeout: 10s
backend:
  type: clickhouse
marketfeed:
  api_key: test-key
  symbols: [AAPL, MSFT]
forecast:
  method: trimmed
regime:
  artifact_dir: /tmp/fincast-artifacts
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadParsesDurationsAndLists(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Environment)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, []string{"AAPL", "MSFT"}, cfg.MarketFeed.Symbols)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	body := strings.Replace(validYAML, "type: clickhouse", "type: postgres", 1)
	_, err := Load(writeConfig(t, body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend.type")
}

func TestLoadRejectsUnknownForecastMethod(t *testing.T) {
	body := strings.Replace(validYAML, "method: trimmed", "method: mode", 1)
	_, err := Load(writeConfig(t, body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forecast.method")
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9100")
	t.Setenv("REDIS_PORT", "not-a-port")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := LoadWithEnv(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 0, cfg.Redis.Port, "unparsable override keeps the file value")
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoadWithEnvSuppliesTheFeedKey(t *testing.T) {
	body := strings.Replace(validYAML, "  api_key: test-key\n", "", 1)

	_, err := Load(writeConfig(t, body))
	require.Error(t, err, "file alone is missing the key")

	t.Setenv("MARKETFEED_API_KEY", "from-env")
	cfg, err := LoadWithEnv(writeConfig(t, body))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.MarketFeed.APIKey)
}
