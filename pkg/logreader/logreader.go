// Package logreader fetches eth_getLogs results across arbitrary block
// ranges without tripping provider-imposed result-size limits, adapting
// the chunk size downward on "range too large" style errors and
// rotating providers on generic transport errors.
package logreader

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/aave-liq/scanner/pkg/providerpool"
)

const (
	DefaultInitialChunk = 1000
	DefaultMinChunk     = 64
)

// Reader fetches logs through a ProviderPool, halving its chunk size on
// range-exceeded errors and rotating the provider on anything else.
type Reader struct {
	pool        *providerpool.Pool
	baseTimeout time.Duration
}

func New(pool *providerpool.Pool, baseTimeout time.Duration) *Reader {
	return &Reader{pool: pool, baseTimeout: baseTimeout}
}

// SkippedRange is a subrange that could not be fetched from any
// provider and was skipped; the caller (LiquidationScanner's gap
// detection) is responsible for retrying it later.
type SkippedRange struct {
	From, To uint64
}

// GetLogs walks downward from toBlock to fromBlock, returning the
// concatenation of all log records found and any subranges that had to
// be skipped because every provider failed on them. The returned logs
// are in the same relative order eth_getLogs returned them in within
// each subrange, and subranges are queried from newest to oldest then
// the result is reversed so the overall order is ascending by block.
func (r *Reader) GetLogs(ctx context.Context, address common.Address, topics [][]common.Hash, fromBlock, toBlock uint64, initialChunk, minChunk int) ([]types.Log, []SkippedRange, error) {
	fetch := func(from, to uint64) ([]types.Log, error) {
		return r.fetchRange(ctx, address, topics, from, to)
	}
	logs, skipped := walk(fromBlock, toBlock, initialChunk, minChunk, fetch, r.pool.Rotate)
	return logs, skipped, nil
}

// walk implements the chunk-halving/skip-on-exhaustion algorithm
// against an injected fetch function so it can be exercised without a
// live RPC endpoint.
func walk(fromBlock, toBlock uint64, initialChunk, minChunk int, fetch func(from, to uint64) ([]types.Log, error), rotate func()) ([]types.Log, []SkippedRange) {
	if initialChunk <= 0 {
		initialChunk = DefaultInitialChunk
	}
	if minChunk <= 0 {
		minChunk = DefaultMinChunk
	}

	var reversedChunks [][]types.Log
	var skipped []SkippedRange

	chunk := initialChunk
	cursor := toBlock

	for cursor >= fromBlock {
		from := fromBlock
		if cursor >= uint64(chunk)-1 && cursor-uint64(chunk)+1 > fromBlock {
			from = cursor - uint64(chunk) + 1
		}

		logs, err := fetch(from, cursor)
		if err == nil {
			reversedChunks = append(reversedChunks, logs)
			if from == 0 {
				break
			}
			cursor = from - 1
			continue
		}

		if isRangeTooLarge(err) {
			if chunk <= minChunk {
				skipped = append(skipped, SkippedRange{From: from, To: cursor})
				if from == 0 {
					break
				}
				cursor = from - 1
				continue
			}
			chunk = chunk / 2
			if chunk < minChunk {
				chunk = minChunk
			}
			continue
		}

		// generic transport error: rotate and retry once more before
		// giving up on this subrange entirely
		if rotate != nil {
			rotate()
		}
		logs, err = fetch(from, cursor)
		if err != nil {
			skipped = append(skipped, SkippedRange{From: from, To: cursor})
			if from == 0 {
				break
			}
			cursor = from - 1
			continue
		}
		reversedChunks = append(reversedChunks, logs)
		if from == 0 {
			break
		}
		cursor = from - 1
	}

	var ordered []types.Log
	for i := len(reversedChunks) - 1; i >= 0; i-- {
		ordered = append(ordered, reversedChunks[i]...)
	}
	return ordered, skipped
}

func (r *Reader) fetchRange(ctx context.Context, address common.Address, topics [][]common.Hash, from, to uint64) ([]types.Log, error) {
	client, url, err := r.pool.Acquire(ctx, r.baseTimeout, false, true)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{address},
		Topics:    topics,
	}
	logs, err := client.FilterLogs(ctx, query)
	r.pool.Observe(url, time.Since(start), err)
	return logs, err
}

func isRangeTooLarge(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "range") ||
		strings.Contains(msg, "exceeds") ||
		strings.Contains(msg, "too large") ||
		strings.Contains(msg, "more than") ||
		strings.Contains(msg, "400") ||
		strings.Contains(msg, "429")
}
