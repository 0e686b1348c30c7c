// Command backfill loads historical OHLCV bars from a CSV export straight
// into the bar tables, bypassing the tick pipeline. It exists so a fresh
// deployment can serve forecasts before the ingest path has accumulated
// enough live history.
//
// The source is either a local file or a URL serving CSV. Either way the
// first row must be a header naming date, open, high, low, close and
// volume columns (any order, any case), one bar per row.
package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"FinCast/internal/di"
	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	internalrepo "FinCast/internal/repository"
	"FinCast/internal/service/warmup"
	"FinCast/pkg/config"
	xhttp "FinCast/pkg/http"
	pkgqueue "FinCast/pkg/queue"
	xutil "FinCast/pkg/util"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	file := flag.String("file", "", "CSV file with OHLCV rows")
	sourceURL := flag.String("url", "", "URL serving the CSV instead of a local file")
	symbol := flag.String("symbol", "", "symbol the bars belong to")
	interval := flag.String("interval", "1d", "bar timeframe (1m, 5m, 1h, 1d)")
	warm := flag.Bool("warm", false, "enqueue a cache warmup for the symbol after loading")
	flag.Parse()

	if (*file == "") == (*sourceURL == "") || *symbol == "" {
		fmt.Fprintln(os.Stderr, "need -symbol and exactly one of -file or -url")
		flag.Usage()
		os.Exit(2)
	}
	tf := domrepo.Timeframe(*interval)
	if !domrepo.IsValidTimeframe(tf) {
		log.Fatalf("unsupported interval %q", *interval)
	}

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	src, err := openSource(ctx, *file, *sourceURL)
	if err != nil {
		log.Fatalf("open source: %v", err)
	}
	defer src.Close()

	bars, err := parseBars(src, strings.ToUpper(*symbol))
	if err != nil {
		log.Fatalf("parse csv: %v", err)
	}
	if len(bars) == 0 {
		log.Fatal("no bars in source")
	}

	client, err := di.ProvideClickHouseClient(cfg)
	if err != nil {
		log.Fatalf("clickhouse: %v", err)
	}
	defer client.Close()

	store := internalrepo.NewCHBarStore(client)

	start := time.Now()
	if err := store.InsertBars(ctx, bars, tf); err != nil {
		log.Fatalf("insert bars: %v", err)
	}
	log.Printf("backfilled %d %s bars for %s in %s", len(bars), tf, strings.ToUpper(*symbol), time.Since(start).Round(time.Millisecond))

	if *warm {
		warmForecast(cfg, strings.ToUpper(*symbol), *interval)
	}
}

// warmForecast asks a running server to precompute the forecast for the
// freshly loaded symbol by putting one job on the warmup queue.
func warmForecast(cfg *config.Config, symbol, interval string) {
	if !cfg.Redis.Enabled {
		log.Print("warm requested but redis is disabled in config; skipping")
		return
	}
	lgr, err := di.ProvideLogger(cfg)
	if err != nil {
		log.Printf("warm skipped: %v", err)
		return
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer client.Close()

	q := pkgqueue.NewRedisPublisher(lgr, client, pkgqueue.WithKeyPrefix(warmup.QueuePrefix))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	defer func() { _ = q.Stop(ctx) }()

	if err := q.PublishMessage(ctx, warmup.JobType, warmup.Payload{Symbol: symbol, Interval: interval}); err != nil {
		log.Printf("warm enqueue failed: %v", err)
		return
	}
	log.Printf("queued cache warm for %s %s", symbol, interval)
}

// openSource returns the CSV stream, fetching over HTTP when a URL is given.
func openSource(ctx context.Context, file, sourceURL string) (io.ReadCloser, error) {
	if file != "" {
		return os.Open(file)
	}
	client := xhttp.NewClient(xhttp.WithTimeout(2 * time.Minute))
	var body []byte
	if err := client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    sourceURL,
	}, &body); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", sourceURL, err)
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

// parseBars parses the CSV into bars. Rows that fail to parse abort the
// run; a partial backfill is worse than none because the gap is silent.
func parseBars(src io.Reader, symbol string) ([]models.Bar, error) {
	r := csv.NewReader(src)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	var bars []models.Bar
	for line := 2; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bar, err := parseBar(rec, cols, symbol)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

type columns struct {
	date, open, high, low, closeC, volume int
}

func mapColumns(header []string) (columns, error) {
	c := columns{date: -1, open: -1, high: -1, low: -1, closeC: -1, volume: -1}
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "date", "time", "timestamp", "datetime":
			c.date = i
		case "open":
			c.open = i
		case "high":
			c.high = i
		case "low":
			c.low = i
		case "close":
			c.closeC = i
		case "adj close", "adj_close":
			if c.closeC < 0 {
				c.closeC = i
			}
		case "volume", "vol":
			c.volume = i
		}
	}
	if c.date < 0 || c.open < 0 || c.high < 0 || c.low < 0 || c.closeC < 0 || c.volume < 0 {
		return c, fmt.Errorf("header %v missing one of date/open/high/low/close/volume", header)
	}
	return c, nil
}

func parseBar(rec []string, c columns, symbol string) (models.Bar, error) {
	ts, ok := xutil.ParseTime(rec[c.date])
	if !ok {
		return models.Bar{}, fmt.Errorf("unrecognized date %q", rec[c.date])
	}
	vals := make([]float64, 5)
	for i, idx := range []int{c.open, c.high, c.low, c.closeC, c.volume} {
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[idx]), 64)
		if err != nil {
			return models.Bar{}, fmt.Errorf("parse %q: %w", rec[idx], err)
		}
		vals[i] = v
	}
	return models.Bar{
		Symbol: symbol,
		Start:  ts,
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}, nil
}
