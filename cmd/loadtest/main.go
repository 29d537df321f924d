// Command loadtest drives the publisher intake with synthetic signals at a
// fixed rate and reports latency percentiles.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/erain9/arbsignal/pkg/core"
	"golang.org/x/time/rate"
)

var venues = []string{"Kraken", "Gdax", "Bitstamp", "Bitfinex", "Poloniex"}

func main() {
	target := flag.String("target", "http://localhost:8080/opportunity", "Intake URL")
	total := flag.Int("n", 10000, "Number of signals to send")
	rps := flag.Float64("rps", 200, "Signals per second")
	workers := flag.Int("workers", 16, "Concurrent senders")
	market := flag.String("market", "USD", "Quote currency of the generated venues")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	res, err := run(ctx, config{
		target:  *target,
		total:   *total,
		rps:     *rps,
		workers: *workers,
		market:  *market,
		client:  &http.Client{Timeout: 5 * time.Second},
	})
	if err != nil {
		log.Fatalf("Load test failed: %v", err)
	}
	res.report(os.Stdout)
	if res.errors > 0 {
		os.Exit(1)
	}
}

type config struct {
	target  string
	total   int
	rps     float64
	workers int
	market  string
	client  *http.Client
}

type result struct {
	hist     *hdrhistogram.Histogram
	sent     int64
	errors   int64
	rejected int64
	duration time.Duration
}

func run(ctx context.Context, cfg config) (*result, error) {
	if cfg.workers <= 0 || cfg.total <= 0 || cfg.rps <= 0 {
		return nil, fmt.Errorf("workers, n and rps must be positive")
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.rps), cfg.workers)
	// Latencies in microseconds, from 1µs to 1 minute, 3 significant figures.
	hist := hdrhistogram.New(1, int64(time.Minute/time.Microsecond), 3)
	var histMu sync.Mutex
	var sent, errs, rejected atomic.Int64
	var next atomic.Int64

	start := time.Now()
	var wg sync.WaitGroup
	for w := 0; w < cfg.workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			r := rand.New(rand.NewSource(seed))
			for next.Add(1) <= int64(cfg.total) {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
				body, _ := json.Marshal(randomSignal(r, cfg.market))

				began := time.Now()
				status, err := post(ctx, cfg.client, cfg.target, body)
				latency := time.Since(began)

				switch {
				case err != nil:
					errs.Add(1)
					continue
				case status == http.StatusServiceUnavailable:
					rejected.Add(1)
				case status != http.StatusAccepted:
					errs.Add(1)
					continue
				default:
					sent.Add(1)
				}
				histMu.Lock()
				_ = hist.RecordValue(latency.Microseconds())
				histMu.Unlock()
			}
		}(time.Now().UnixNano() + int64(w))
	}
	wg.Wait()

	return &result{
		hist:     hist,
		sent:     sent.Load(),
		errors:   errs.Load(),
		rejected: rejected.Load(),
		duration: time.Since(start),
	}, nil
}

func post(ctx context.Context, client *http.Client, url string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// randomSignal returns a profitable signal between two distinct venues.
func randomSignal(r *rand.Rand, market string) core.OpportunitySignal {
	i := r.Intn(len(venues))
	j := (i + 1 + r.Intn(len(venues)-1)) % len(venues)

	buy := 100 + r.Float64()*10
	spread := 0.5 + r.Float64()*5
	return core.OpportunitySignal{
		Profit:            spread * 0.01,
		Volume:            0.001 + r.Float64()*0.02,
		BuyPrice:          buy,
		SellPrice:         buy + spread,
		Perc:              spread / buy * 100,
		WeightedBuyPrice:  buy,
		WeightedSellPrice: buy + spread,
		MaxBuyPrice:       buy + 0.1,
		MinSellPrice:      buy + spread - 0.1,
		Kask:              venues[i] + market,
		Kbid:              venues[j] + market,
	}
}

func (r *result) report(w io.Writer) {
	fmt.Fprintf(w, "Load test completed in %v\n", r.duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Accepted: %d  Rejected (backlog full): %d  Errors: %d\n", r.sent, r.rejected, r.errors)
	if r.hist.TotalCount() == 0 {
		return
	}
	fmt.Fprintf(w, "Throughput: %.1f req/s\n", float64(r.hist.TotalCount())/r.duration.Seconds())
	for _, q := range []float64{50, 90, 99, 99.9} {
		fmt.Fprintf(w, "p%-5g %v\n", q, time.Duration(r.hist.ValueAtQuantile(q))*time.Microsecond)
	}
	fmt.Fprintf(w, "max    %v\n", time.Duration(r.hist.Max())*time.Microsecond)
}
