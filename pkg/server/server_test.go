package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/erain9/arbsignal/pkg/core"
	"github.com/erain9/arbsignal/pkg/logging"
	"github.com/erain9/arbsignal/pkg/sizing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProcessor struct {
	mu         sync.Mutex
	signals    []core.OpportunitySignal
	requestIDs []string
	block      chan struct{}
	active     int
	maxActive  int
}

func (p *recordingProcessor) Opportunity(ctx context.Context, sig core.OpportunitySignal) (sizing.Report, error) {
	p.mu.Lock()
	p.active++
	if p.active > p.maxActive {
		p.maxActive = p.active
	}
	p.mu.Unlock()

	if p.block != nil {
		<-p.block
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.active--
	p.signals = append(p.signals, sig)
	id, _ := ctx.Value(logging.RequestIDKey).(string)
	p.requestIDs = append(p.requestIDs, id)
	return sizing.Report{Outcome: core.Sent()}, nil
}

func (p *recordingProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.signals)
}

const signalJSON = `{"profit":0.1,"volume":0.01,"buyprice":100,"sellprice":105,"perc":5,
"weighted_buyprice":100,"weighted_sellprice":105,"max_buy_price":101,"min_sell_price":104,
"kask":"KrakenUSD","kbid":"GdaxUSD"}`

func TestWorker_ProcessesSequentially(t *testing.T) {
	proc := &recordingProcessor{}
	w := NewWorker(proc, 16, zerolog.New(io.Discard))
	go w.Run(context.Background())

	for i := 0; i < 10; i++ {
		require.NoError(t, w.Submit("req", core.OpportunitySignal{Kask: "KrakenUSD", Kbid: "GdaxUSD"}))
	}
	require.NoError(t, w.Stop(context.Background()))

	assert.Equal(t, 10, proc.count())
	assert.Equal(t, 1, proc.maxActive)
	assert.Equal(t, "req", proc.requestIDs[0])
}

func TestWorker_QueueFullAndStopped(t *testing.T) {
	proc := &recordingProcessor{block: make(chan struct{})}
	w := NewWorker(proc, 1, zerolog.New(io.Discard))
	go w.Run(context.Background())

	require.NoError(t, w.Submit("a", core.OpportunitySignal{}))
	// Wait until the worker holds the first job so the backlog is empty.
	require.Eventually(t, func() bool { return w.Backlog() == 0 }, time.Second, time.Millisecond)
	require.NoError(t, w.Submit("b", core.OpportunitySignal{}))
	assert.ErrorIs(t, w.Submit("c", core.OpportunitySignal{}), ErrQueueFull)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, w.Stop(ctx), context.DeadlineExceeded, "stop waits for in-flight work")
	assert.ErrorIs(t, w.Submit("d", core.OpportunitySignal{}), ErrStopped)

	close(proc.block)
	require.NoError(t, w.Stop(context.Background()))
	assert.Equal(t, 2, proc.count())
}

func newTestServer(t *testing.T, health HealthFunc) (*httptest.Server, *Worker, *recordingProcessor) {
	t.Helper()
	proc := &recordingProcessor{}
	w := NewWorker(proc, 4, zerolog.New(io.Discard))
	go w.Run(context.Background())
	srv := httptest.NewServer(NewHandler(w, health, zerolog.New(io.Discard)))
	t.Cleanup(func() {
		srv.Close()
		_ = w.Stop(context.Background())
	})
	return srv, w, proc
}

func TestHandler_AcceptsOpportunity(t *testing.T) {
	srv, w, proc := newTestServer(t, nil)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/opportunity", strings.NewReader(signalJSON))
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "req-1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"request_id":"req-1"}`, string(body))

	require.NoError(t, w.Stop(context.Background()))
	require.Equal(t, 1, proc.count())
	assert.Equal(t, core.OpportunitySignal{
		Profit:            0.1,
		Volume:            0.01,
		BuyPrice:          100,
		SellPrice:         105,
		Perc:              5,
		WeightedBuyPrice:  100,
		WeightedSellPrice: 105,
		MaxBuyPrice:       101,
		MinSellPrice:      104,
		Kask:              "KrakenUSD",
		Kbid:              "GdaxUSD",
	}, proc.signals[0])
	assert.Equal(t, "req-1", proc.requestIDs[0])
}

func TestHandler_GeneratesRequestID(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	resp, err := http.Post(srv.URL+"/opportunity", "application/json", strings.NewReader(signalJSON))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Regexp(t, `"request_id":"[0-9a-f-]{36}"`, string(body))
}

func TestHandler_RejectsBadRequests(t *testing.T) {
	srv, _, proc := newTestServer(t, nil)

	tests := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"invalid json", http.MethodPost, "{", http.StatusBadRequest},
		{"missing venues", http.MethodPost, `{"volume":1}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+"/opportunity", strings.NewReader(tt.body))
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
	assert.Equal(t, 0, proc.count())
}

func TestHandler_StoppedWorker(t *testing.T) {
	srv, w, _ := newTestServer(t, nil)
	require.NoError(t, w.Stop(context.Background()))

	resp, err := http.Post(srv.URL+"/opportunity", "application/json", strings.NewReader(signalJSON))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHandler_Healthz(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	srv, _, _ := newTestServer(t, func() error {
		if healthy.Load() {
			return nil
		}
		return errors.New("broker unreachable")
	})

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	healthy.Store(false)
	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
