// Package providerpool manages a round-robin, health-tracked pool of
// Ethereum JSON-RPC endpoints. It vends connected *ethclient.Client
// handles, validates the remote chain id, and tracks per-endpoint
// success/error counters and response-time history.
package providerpool

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
)

const responseWindowSize = 100

// Record tracks the health of a single RPC endpoint. It is created once
// at startup and mutated in place for the lifetime of the process.
type Record struct {
	URL string

	mu            sync.Mutex
	successCount  int
	errorCount    int
	lastSuccess   time.Time
	lastError     string
	responseTimes []time.Duration // ring buffer, most recent responseWindowSize samples
}

func (r *Record) markSuccess(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.successCount++
	r.lastSuccess = time.Now()
	r.lastError = ""
	r.responseTimes = append(r.responseTimes, d)
	if len(r.responseTimes) > responseWindowSize {
		r.responseTimes = r.responseTimes[len(r.responseTimes)-responseWindowSize:]
	}
}

func (r *Record) markFailure(err string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errorCount++
	r.lastError = err
}

func (r *Record) snapshot() (successCount, errorCount int, lastSuccess time.Time, lastError string, avg time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	successCount = r.successCount
	errorCount = r.errorCount
	lastSuccess = r.lastSuccess
	lastError = r.lastError
	if len(r.responseTimes) == 0 {
		return
	}
	var total time.Duration
	for _, d := range r.responseTimes {
		total += d
	}
	avg = total / time.Duration(len(r.responseTimes))
	return
}

// Stat is one row of the provider statistics table.
type Stat struct {
	URL           string
	Success       int
	Errors        int
	Total         int
	SuccessRate   float64
	AvgResponseMs float64
}

// Pool owns the ordered list of endpoints for a single chain and hands
// out connected clients. It is safe for concurrent use; in practice
// one scanner worker plus the daily dataset builder drive it.
type Pool struct {
	chainName       string
	expectedChainID int64
	records         []*Record

	mu        sync.Mutex
	lastIndex int

	stickyMu sync.Mutex
	sticky   *stickyClient
}

type stickyClient struct {
	index  int
	client *ethclient.Client
	url    string
}

// New builds a pool over the given endpoint URLs. expectedChainID is the
// chain id every endpoint must report (1 for Ethereum mainnet).
func New(chainName string, expectedChainID int64, urls []string) *Pool {
	records := make([]*Record, 0, len(urls))
	for _, u := range urls {
		records = append(records, &Record{URL: u})
	}
	return &Pool{
		chainName:       chainName,
		expectedChainID: expectedChainID,
		records:         records,
		lastIndex:       -1,
	}
}

// ErrNoProviders is returned when the pool has no configured endpoints.
var ErrNoProviders = fmt.Errorf("providerpool: no RPC providers configured")

// ErrExhausted is returned when every endpoint failed during an acquire.
var ErrExhausted = fmt.Errorf("providerpool: all RPC providers failed")

// order returns record indices starting just after the last successful
// index, then stably sorted by ascending error count.
func (p *Pool) order() []int {
	n := len(p.records)
	if n == 0 {
		return nil
	}
	p.mu.Lock()
	start := (p.lastIndex + 1) % n
	p.mu.Unlock()

	rotated := make([]int, 0, n)
	for i := 0; i < n; i++ {
		rotated = append(rotated, (start+i)%n)
	}
	position := make(map[int]int, n)
	for i, idx := range rotated {
		position[idx] = i
	}
	sort.SliceStable(rotated, func(i, j int) bool {
		_, ei, _, _, _ := p.records[rotated[i]].snapshot()
		_, ej, _, _, _ := p.records[rotated[j]].snapshot()
		if ei != ej {
			return ei < ej
		}
		return position[rotated[i]] < position[rotated[j]]
	})
	return rotated
}

// Acquire returns a connected client, preferring a healthy endpoint in
// rotation order. baseTimeout is multiplied by the attempt number for
// each successive candidate. If sticky is true and a previously sticky
// client is still usable, it is returned without re-probing. Pass
// forceNew to bypass the sticky cache regardless.
func (p *Pool) Acquire(ctx context.Context, baseTimeout time.Duration, forceNew, sticky bool) (*ethclient.Client, string, error) {
	if sticky && !forceNew {
		p.stickyMu.Lock()
		s := p.sticky
		p.stickyMu.Unlock()
		if s != nil {
			return s.client, s.url, nil
		}
	}

	if len(p.records) == 0 {
		return nil, "", ErrNoProviders
	}

	order := p.order()
	attempt := 0
	for _, idx := range order {
		attempt++
		record := p.records[idx]
		timeout := baseTimeout * time.Duration(attempt)

		dialCtx, cancel := context.WithTimeout(ctx, timeout)
		client, err := ethclient.DialContext(dialCtx, record.URL)
		if err != nil {
			cancel()
			record.markFailure(err.Error())
			continue
		}

		start := time.Now()
		callCtx, callCancel := context.WithTimeout(ctx, timeout)
		chainID, err := client.ChainID(callCtx)
		callCancel()
		cancel()
		if err != nil {
			record.markFailure(err.Error())
			client.Close()
			continue
		}
		if p.expectedChainID != 0 && chainID.Cmp(big.NewInt(p.expectedChainID)) != 0 {
			record.markFailure(fmt.Sprintf("wrong chain id %s", chainID))
			client.Close()
			continue
		}

		record.markSuccess(time.Since(start))
		p.mu.Lock()
		p.lastIndex = idx
		p.mu.Unlock()

		if sticky {
			p.stickyMu.Lock()
			p.sticky = &stickyClient{index: idx, client: client, url: record.URL}
			p.stickyMu.Unlock()
		}
		return client, record.URL, nil
	}

	p.logStatus()
	return nil, "", ErrExhausted
}

// Rotate abandons the current sticky client, forcing the next Acquire
// call to pick a fresh endpoint even if sticky is requested.
func (p *Pool) Rotate() {
	p.stickyMu.Lock()
	p.sticky = nil
	p.stickyMu.Unlock()
}

// Observe records the outcome of a call made through a client this pool
// vended, outside of Acquire itself (e.g. a long-lived sticky client used
// for several calls). Pass the url the call went to.
func (p *Pool) Observe(url string, d time.Duration, err error) {
	for _, r := range p.records {
		if r.URL != url {
			continue
		}
		if err != nil {
			r.markFailure(err.Error())
		} else {
			r.markSuccess(d)
		}
		return
	}
}

func (p *Pool) logStatus() {
	for _, r := range p.records {
		_, errs, lastSuccess, lastErr, _ := r.snapshot()
		log.Printf("providerpool[%s]: %s errors=%d last_success=%s last_error=%q", p.chainName, r.URL, errs, lastSuccess, lastErr)
	}
}

// Stats returns the statistics table sorted by total descending, then
// success-rate descending.
func (p *Pool) Stats() []Stat {
	stats := make([]Stat, 0, len(p.records))
	for _, r := range p.records {
		success, errs, _, _, avg := r.snapshot()
		total := success + errs
		var rate float64
		if total > 0 {
			rate = float64(success) / float64(total) * 100
		}
		stats = append(stats, Stat{
			URL:           r.URL,
			Success:       success,
			Errors:        errs,
			Total:         total,
			SuccessRate:   rate,
			AvgResponseMs: float64(avg.Microseconds()) / 1000.0,
		})
	}
	sort.SliceStable(stats, func(i, j int) bool {
		if stats[i].Total != stats[j].Total {
			return stats[i].Total > stats[j].Total
		}
		return stats[i].SuccessRate > stats[j].SuccessRate
	})
	return stats
}
