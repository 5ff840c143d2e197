// Package priceresolver computes the historically accurate USD price of
// an Aave collateral/debt asset at a specific block, trying an ordered
// chain of strategies and returning the first positive result.
package priceresolver

import (
	"context"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/aave-liq/scanner/pkg/contractclient"
	"github.com/aave-liq/scanner/pkg/providerpool"
	"github.com/aave-liq/scanner/pkg/tokenregistry"
)

// backoff is the retry schedule every layer uses for transient errors.
var backoff = []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 5 * time.Second, 8 * time.Second}

// Cache is the optional memoization layer ("layer 0"). A miss (or a nil
// Cache) simply falls through to the live resolution chain.
type Cache interface {
	Get(ctx context.Context, symbol string, block uint64) (*big.Rat, bool)
	Put(ctx context.Context, symbol string, asset common.Address, block uint64, price *big.Rat, sourceLayer string)
}

// Resolver tries an ordered chain of price sources: cache, Aave
// oracle, direct Chainlink USD feed, CAPO-capped LSD, raw LSD, ETH
// composition, stablecoin fallback.
type Resolver struct {
	pool        *providerpool.Pool
	cache       Cache
	baseTimeout time.Duration
}

func New(pool *providerpool.Pool, cache Cache, baseTimeout time.Duration) *Resolver {
	return &Resolver{pool: pool, cache: cache, baseTimeout: baseTimeout}
}

type layerFunc func(ctx context.Context, symbol string, asset common.Address, block uint64, eventTimestamp uint64) *big.Rat

// PriceUSD returns the USD price of asset/symbol at block, or nil if
// no layer could produce an authoritative result. It never returns an
// error: every failure mode resolves to "try the next layer", and
// exhaustion of all layers resolves to "no price".
func (r *Resolver) PriceUSD(ctx context.Context, symbol string, asset common.Address, block uint64, eventTimestamp uint64) *big.Rat {
	canonical := tokenregistry.Alias(symbol)
	return r.resolve(ctx, canonical, asset, block, eventTimestamp, "")
}

// resolve is the shared engine used both for top-level lookups and for
// recursively pricing an LSD's underlying asset. skipLayer names one
// layer to leave out of the chain; every current caller, the LSD
// layers included, passes "" so all layers are tried.
func (r *Resolver) resolve(ctx context.Context, symbol string, asset common.Address, block uint64, eventTimestamp uint64, skipLayer string) *big.Rat {
	if r.cache != nil {
		if price, ok := r.cache.Get(ctx, symbol, block); ok {
			return price
		}
	}

	layers := []struct {
		name string
		fn   layerFunc
	}{
		{"aave_oracle", r.aaveOracleLayer},
		{"chainlink_direct", r.chainlinkDirectLayer},
		{"capo_lsd", r.capoLSDLayer},
		{"raw_lsd", r.rawLSDLayer},
		{"eth_composition", r.ethCompositionLayer},
		{"stablecoin", r.stablecoinLayer},
	}

	for _, l := range layers {
		if l.name == skipLayer {
			continue
		}
		price := l.fn(ctx, symbol, asset, block, eventTimestamp)
		if price != nil && price.Sign() > 0 {
			if r.cache != nil {
				r.cache.Put(ctx, symbol, asset, block, price, l.name)
			}
			return price
		}
	}
	return nil
}

// client acquires an RPC client from the pool and binds it to address
// under abiJSON, retrying per the shared backoff schedule and rotating
// the pool between attempts. It returns the url the bound client is
// attached to, so the caller's eth_calls can be observed against the
// right endpoint.
func (r *Resolver) client(ctx context.Context, address common.Address, abiJSON string) (*contractclient.Client, string) {
	var last error
	for attempt := 0; attempt <= len(backoff); attempt++ {
		eth, url, err := r.pool.Acquire(ctx, r.baseTimeout, attempt > 0, true)
		if err != nil {
			last = err
			r.pool.Rotate()
			if attempt < len(backoff) {
				sleep(ctx, backoff[attempt])
			}
			continue
		}
		c, err := contractclient.New(eth, address, abiJSON)
		if err != nil {
			log.Printf("priceresolver: bad abi for %s: %v", address, err)
			return nil, ""
		}
		return c, url
	}
	if last != nil {
		log.Printf("priceresolver: exhausted providers acquiring client for %s: %v", address, last)
	}
	return nil, ""
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// call runs fn (one eth_call attempt), observing its outcome against
// url on the pool's health stats, retrying on error with the shared
// backoff schedule and rotating the provider pool between attempts.
func call[T any](ctx context.Context, pool *providerpool.Pool, url string, fn func() (T, error)) (T, bool) {
	var zero T
	var err error
	for attempt := 0; attempt <= len(backoff); attempt++ {
		var v T
		start := time.Now()
		v, err = fn()
		pool.Observe(url, time.Since(start), err)
		if err == nil {
			return v, true
		}
		pool.Rotate()
		if attempt < len(backoff) {
			sleep(ctx, backoff[attempt])
		}
	}
	return zero, false
}

// ratFromBig8Decimals converts an on-chain 8-decimal fixed-point price
// (e.g. the Aave oracle's return value) to a big.Rat.
func ratFromBig8Decimals(v *big.Int) *big.Rat {
	return new(big.Rat).SetFrac(v, big.NewInt(1e8))
}

// ratFromDecimals converts v, scaled by 10^decimals, to a big.Rat.
func ratFromDecimals(v *big.Int, decimals uint8) *big.Rat {
	return new(big.Rat).SetFrac(v, pow10(decimals))
}
