package clickhouse

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	cfg := ClientConfig{
		Host:         "ch",
		Port:         9000,
		Database:     "fincast",
		User:         "writer",
		Password:     "p@ss/word",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  10 * time.Second,
		MaxExecTime:  30 * time.Second,
		AsyncInsert:  true,
		WaitForAsync: true,
	}

	u, err := url.Parse(buildDSN(cfg))
	require.NoError(t, err)

	assert.Equal(t, "clickhouse", u.Scheme)
	assert.Equal(t, "ch:9000", u.Host)
	assert.Equal(t, "/fincast", u.Path)
	assert.Equal(t, "writer", u.User.Username())

	pw, _ := u.User.Password()
	assert.Equal(t, "p@ss/word", pw, "credentials survive URL escaping")

	q := u.Query()
	assert.Equal(t, "5s", q.Get("dial_timeout"))
	assert.Equal(t, "10s", q.Get("read_timeout"))
	assert.Equal(t, "30", q.Get("max_execution_time"))
	assert.Equal(t, "1", q.Get("async_insert"))
	assert.Equal(t, "1", q.Get("wait_for_async_insert"))
	assert.Empty(t, q.Get("write_timeout"))
}

func TestBuildDSNHTTPScheme(t *testing.T) {
	u, err := url.Parse(buildDSN(ClientConfig{Host: "ch", Port: 8123, Database: "fincast", UseHTTP: true}))
	require.NoError(t, err)
	assert.Equal(t, "clickhouse+http", u.Scheme)
}
