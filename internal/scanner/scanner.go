// Package scanner implements the top-level resumable scan loop: it
// determines the resume block, walks forward to the chain tip in
// adaptively-sized batches, enriches every decoded LiquidationCall
// with token metadata and historical USD prices, appends rows to the
// canonical CSV, detects and fills any gaps left by provider
// exhaustion, and projects status.
package scanner

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	aaveliq "github.com/aave-liq/scanner"
	ourabi "github.com/aave-liq/scanner/internal/abi"
	"github.com/aave-liq/scanner/internal/checkpoint"
	"github.com/aave-liq/scanner/internal/csvstore"
	"github.com/aave-liq/scanner/pkg/logreader"
	"github.com/aave-liq/scanner/pkg/priceresolver"
	"github.com/aave-liq/scanner/pkg/providerpool"
	"github.com/aave-liq/scanner/pkg/tokenregistry"
)

// Adaptive batch sizing bounds for the forward sweep.
const (
	initialBatch = 1000
	floorBatch   = 500
	ceilingBatch = 10000
)

// retryBackoff mirrors priceresolver's transient-error schedule so
// block-header and receipt fetches retry on the same cadence as price
// lookups.
var retryBackoff = []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 5 * time.Second, 8 * time.Second}

// blockRange is one contiguous subrange requested from the chain during
// a scan pass, used both for the forward sweep's scanned-ranges ledger
// and for gap detection.
type blockRange struct {
	From, To uint64
}

// toBlockRanges converts logreader's SkippedRange slice to blockRange
// so it can be appended to the scanner's own range ledgers.
func toBlockRanges(ranges []logreader.SkippedRange) []blockRange {
	out := make([]blockRange, len(ranges))
	for i, r := range ranges {
		out[i] = blockRange{From: r.From, To: r.To}
	}
	return out
}

// PriceResolver is the subset of *priceresolver.Resolver the scanner
// depends on, accepted as an interface so enrichment and backfill logic
// can be exercised with a stub in tests without live RPC.
type PriceResolver interface {
	PriceUSD(ctx context.Context, symbol string, asset common.Address, block, eventTimestamp uint64) *big.Rat
}

// Scanner drives one full scan pass from the resume block to the tip.
type Scanner struct {
	Pool        *providerpool.Pool
	Reader      *logreader.Reader
	Registry    *tokenregistry.Registry
	Resolver    PriceResolver
	CSV         *csvstore.Store
	Checkpoint  *checkpoint.Store
	PoolAddress common.Address
	ChainID     int64
	BaseTimeout time.Duration

	liquidationCallTopic common.Hash
	poolABI              abi.ABI
}

// New builds a Scanner. It panics only on a malformed embedded ABI,
// which would indicate a build-time defect, not a runtime condition.
func New(pool *providerpool.Pool, reader *logreader.Reader, registry *tokenregistry.Registry, resolver PriceResolver, csv *csvstore.Store, ckpt *checkpoint.Store, poolAddress common.Address, chainID int64, baseTimeout time.Duration) *Scanner {
	parsed, err := abi.JSON(strings.NewReader(ourabi.AavePool))
	if err != nil {
		panic(fmt.Sprintf("scanner: bad embedded aave pool abi: %v", err))
	}
	event, ok := parsed.Events["LiquidationCall"]
	if !ok {
		panic("scanner: aave pool abi missing LiquidationCall event")
	}
	return &Scanner{
		Pool:                 pool,
		Reader:               reader,
		Registry:             registry,
		Resolver:             resolver,
		CSV:                  csv,
		Checkpoint:           ckpt,
		PoolAddress:          poolAddress,
		ChainID:              chainID,
		BaseTimeout:          baseTimeout,
		liquidationCallTopic: event.ID,
		poolABI:              parsed,
	}
}

// Result summarizes one completed Run call.
type Result struct {
	FromBlock   uint64
	ToBlock     uint64
	EventsFound int
	SkippedGaps []blockRange
}

// Run executes one full scan pass: resume → forward sweep → gap fill →
// completed. toBlock, if non-zero, caps the sweep below the live tip
// (used by `scanner run --to=<block>`); pass 0 to scan to the tip.
func (s *Scanner) Run(ctx context.Context, toBlock uint64) (Result, error) {
	client, _, err := s.Pool.Acquire(ctx, s.BaseTimeout, false, true)
	if err != nil {
		s.writeStatus("error", 0, 0, 0, fmt.Sprintf("acquire: %v", err))
		return Result{}, fmt.Errorf("scanner: acquire client: %w", err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil || chainID.Int64() != s.ChainID {
		s.Pool.Rotate()
		s.writeStatus("error", 0, 0, 0, "chain id mismatch")
		return Result{}, fmt.Errorf("scanner: chain id mismatch or unreachable: %w", err)
	}

	tip, err := client.BlockNumber(ctx)
	if err != nil {
		s.writeStatus("error", 0, 0, 0, fmt.Sprintf("block number: %v", err))
		return Result{}, fmt.Errorf("scanner: block number: %w", err)
	}
	if toBlock != 0 && toBlock < tip {
		tip = toBlock
	}

	resume, err := s.Checkpoint.ResumeBlock()
	if err != nil {
		return Result{}, fmt.Errorf("scanner: resume block: %w", err)
	}
	if resume > tip {
		s.writeStatus("idle", resume, tip, resume, "resume block ahead of tip; nothing to do")
		return Result{FromBlock: resume, ToBlock: tip}, nil
	}

	dedupe, err := s.CSV.LoadTxSet()
	if err != nil {
		return Result{}, fmt.Errorf("scanner: load dedupe set: %w", err)
	}

	s.writeStatus("running", resume, tip, resume, "forward sweep")

	var scanned []blockRange
	var gaps []blockRange
	eventsFound := 0

	batch := initialBatch
	growthDisabled := false
	consecutiveFailures := 0
	cursor := resume

	for cursor <= tip {
		if err := ctx.Err(); err != nil {
			s.writeStatus("waiting", resume, tip, cursor, "cancelled")
			return Result{FromBlock: resume, ToBlock: cursor, EventsFound: eventsFound, SkippedGaps: gaps}, nil
		}

		to := cursor + uint64(batch) - 1
		if to > tip {
			to = tip
		}

		found, skipped := s.processRange(ctx, cursor, to, dedupe)
		eventsFound += found
		scanned = append(scanned, blockRange{From: cursor, To: to})
		gaps = append(gaps, toBlockRanges(skipped)...)

		if len(skipped) == 0 {
			consecutiveFailures = 0
			if batch < ceilingBatch && !growthDisabled {
				batch *= 2
				if batch > ceilingBatch {
					batch = ceilingBatch
				}
			}
		} else {
			growthDisabled = true
			batch = batch / 2
			if batch < floorBatch {
				batch = floorBatch
			}
			consecutiveFailures++
			if consecutiveFailures >= 3 {
				s.Pool.Rotate()
				consecutiveFailures = 0
			}
		}

		s.writeStatus("running", resume, tip, to, fmt.Sprintf("events=%d", eventsFound))
		cursor = to + 1
	}

	gaps = append(gaps, detectSweepGaps(scanned)...)

	if len(gaps) > 0 {
		s.writeStatus("running", resume, tip, tip, fmt.Sprintf("gap-filling %d ranges", len(gaps)))
		var stillMissing []blockRange
		for _, g := range gaps {
			found, skipped := s.processRange(ctx, g.From, g.To, dedupe)
			eventsFound += found
			stillMissing = append(stillMissing, toBlockRanges(skipped)...)
		}
		gaps = stillMissing
	}

	status := "completed"
	msg := fmt.Sprintf("events=%d", eventsFound)
	if len(gaps) > 0 {
		msg = fmt.Sprintf("events=%d gaps_remaining=%d", eventsFound, len(gaps))
	}
	s.writeStatus(status, resume, tip, tip, msg)

	return Result{FromBlock: resume, ToBlock: tip, EventsFound: eventsFound, SkippedGaps: gaps}, nil
}

// detectSweepGaps finds subranges between consecutive entries of the
// "scanned ranges" ledger whose start exceeds the previous entry's end
// by more than 1. This is the primary safety net against silent batch
// losses beyond what logreader's own SkippedRange tracking already
// caught.
func detectSweepGaps(scanned []blockRange) []blockRange {
	var gaps []blockRange
	for i := 1; i < len(scanned); i++ {
		prevEnd := scanned[i-1].To
		curStart := scanned[i].From
		if curStart > prevEnd+1 {
			gaps = append(gaps, blockRange{From: prevEnd + 1, To: curStart - 1})
		}
	}
	return gaps
}

// processRange fetches and enriches every LiquidationCall in [from, to]
// via the chunked log reader, skipping any tx already present in
// dedupe, and returns the count appended plus any subranges logreader
// could not fetch from any provider.
func (s *Scanner) processRange(ctx context.Context, from, to uint64, dedupe map[string]bool) (found int, skipped []logreader.SkippedRange) {
	topics := [][]common.Hash{{s.liquidationCallTopic}}
	logs, skippedRanges, err := s.Reader.GetLogs(ctx, s.PoolAddress, topics, from, to, initialBatch, floorBatch)
	if err != nil {
		log.Printf("scanner: get_logs %d-%d: %v", from, to, err)
		return 0, []logreader.SkippedRange{{From: from, To: to}}
	}

	for _, lg := range logs {
		event, err := s.decodeLog(lg)
		if err != nil {
			log.Printf("scanner: skipping malformed log tx=%s: %v", lg.TxHash.Hex(), err)
			continue
		}
		tx := strings.ToLower(event.Tx)
		if dedupe[tx] {
			continue
		}

		enriched, err := s.enrich(ctx, event)
		if err != nil {
			log.Printf("scanner: enrich tx=%s: %v", tx, err)
			continue
		}

		wrote, err := s.CSV.AppendIfNew(enriched)
		if err != nil {
			log.Printf("scanner: append tx=%s: %v", tx, err)
			continue
		}
		if wrote {
			dedupe[tx] = true
			found++
		}
	}
	return found, skippedRanges
}

// decodedEvent is the raw, un-enriched LiquidationCall payload.
type decodedEvent struct {
	Block           uint64
	Tx              string
	CollateralAsset common.Address
	DebtAsset       common.Address
	User            common.Address
	Liquidator      common.Address
	DebtToCover     *big.Int
	CollateralOut   *big.Int
	ReceiveAToken   bool
}

// decodeLog unpacks one LiquidationCall log: three indexed address
// topics (collateralAsset, debtAsset, user) and a data payload of
// (debtToCover, liquidatedCollateralAmount, liquidator, receiveAToken).
func (s *Scanner) decodeLog(lg types.Log) (decodedEvent, error) {
	if len(lg.Topics) != 4 {
		return decodedEvent{}, fmt.Errorf("expected 4 topics, got %d", len(lg.Topics))
	}
	var payload struct {
		DebtToCover                *big.Int
		LiquidatedCollateralAmount *big.Int
		Liquidator                 common.Address
		ReceiveAToken              bool
	}
	if err := s.poolABI.UnpackIntoInterface(&payload, "LiquidationCall", lg.Data); err != nil {
		return decodedEvent{}, fmt.Errorf("unpack data: %w", err)
	}
	return decodedEvent{
		Block:           lg.BlockNumber,
		Tx:              strings.ToLower(lg.TxHash.Hex()),
		CollateralAsset: common.HexToAddress(lg.Topics[1].Hex()),
		DebtAsset:       common.HexToAddress(lg.Topics[2].Hex()),
		User:            common.HexToAddress(lg.Topics[3].Hex()),
		Liquidator:      payload.Liquidator,
		DebtToCover:     payload.DebtToCover,
		CollateralOut:   payload.LiquidatedCollateralAmount,
		ReceiveAToken:   payload.ReceiveAToken,
	}, nil
}

// enrich resolves token symbols/decimals, block timing, transaction
// metadata, and historical USD prices for one decoded event. It never
// errors on a price-resolution failure, only on a transport failure
// that leaves block/tx metadata unavailable, in which case the caller
// logs and skips the row for this pass (the gap-filling sweep or next
// scheduler tick will retry it).
func (s *Scanner) enrich(ctx context.Context, ev decodedEvent) (aaveliq.LiquidationEvent, error) {
	header, err := s.fetchHeader(ctx, ev.Block)
	if err != nil {
		return aaveliq.LiquidationEvent{}, fmt.Errorf("fetch header: %w", err)
	}
	receipt, err := s.fetchReceipt(ctx, common.HexToHash(ev.Tx))
	if err != nil {
		return aaveliq.LiquidationEvent{}, fmt.Errorf("fetch receipt: %w", err)
	}

	blockBig := new(big.Int).SetUint64(ev.Block)
	collateralSymbol, collateralDecimals := s.Registry.Resolve(ctx, ev.CollateralAsset, blockBig)
	debtSymbol, debtDecimals := s.Registry.Resolve(ctx, ev.DebtAsset, blockBig)

	collateralOut := formatTokenAmount(ev.CollateralOut, collateralDecimals)
	debtToCover := formatTokenAmount(ev.DebtToCover, debtDecimals)

	collateralPrice := s.Resolver.PriceUSD(ctx, collateralSymbol, ev.CollateralAsset, ev.Block, header.Time)
	debtPrice := s.Resolver.PriceUSD(ctx, debtSymbol, ev.DebtAsset, ev.Block, header.Time)
	ethPrice := s.Resolver.PriceUSD(ctx, "ETH", priceresolver.WETHAddress, ev.Block, header.Time)

	collateralValue := valueUSD(ev.CollateralOut, collateralDecimals, collateralPrice)
	debtValue := valueUSD(ev.DebtToCover, debtDecimals, debtPrice)

	gasPriceGwei := ""
	if receipt.EffectiveGasPrice != nil {
		gasPriceGwei = trimRat(new(big.Rat).SetFrac(receipt.EffectiveGasPrice, big.NewInt(1_000_000_000)), 9)
	}

	return aaveliq.LiquidationEvent{
		Block:                     ev.Block,
		Timestamp:                 header.Time,
		DatetimeUTC:               time.Unix(int64(header.Time), 0).UTC().Format("2006-01-02T15:04:05Z"),
		CollateralAsset:           ev.CollateralAsset.Hex(),
		DebtAsset:                 ev.DebtAsset.Hex(),
		User:                      ev.User.Hex(),
		Liquidator:                ev.Liquidator.Hex(),
		CollateralOut:             collateralOut,
		DebtToCover:               debtToCover,
		ReceiveAToken:             ev.ReceiveAToken,
		CollateralSymbol:          collateralSymbol,
		DebtSymbol:                debtSymbol,
		CollateralPriceUSDAtBlock: ratOrEmpty(collateralPrice),
		DebtPriceUSDAtBlock:       ratOrEmpty(debtPrice),
		CollateralValueUSD:        collateralValue,
		DebtValueUSD:              debtValue,
		ETHPriceUSDAtBlock:        ratOrEmpty(ethPrice),
		Tx:                        ev.Tx,
		BlockBuilder:              header.Coinbase.Hex(),
		GasUsed:                   receipt.GasUsed,
		GasPriceGwei:              gasPriceGwei,
	}, nil
}

func (s *Scanner) fetchHeader(ctx context.Context, block uint64) (*types.Header, error) {
	var last error
	for attempt := 0; attempt <= len(retryBackoff); attempt++ {
		client, url, err := s.Pool.Acquire(ctx, s.BaseTimeout, attempt > 0, true)
		if err != nil {
			last = err
			s.Pool.Rotate()
			sleep(ctx, backoffAt(attempt))
			continue
		}
		start := time.Now()
		header, err := client.HeaderByNumber(ctx, new(big.Int).SetUint64(block))
		s.Pool.Observe(url, time.Since(start), err)
		if err == nil {
			return header, nil
		}
		last = err
		s.Pool.Rotate()
		sleep(ctx, backoffAt(attempt))
	}
	return nil, last
}

func (s *Scanner) fetchReceipt(ctx context.Context, tx common.Hash) (*types.Receipt, error) {
	var last error
	for attempt := 0; attempt <= len(retryBackoff); attempt++ {
		client, url, err := s.Pool.Acquire(ctx, s.BaseTimeout, attempt > 0, true)
		if err != nil {
			last = err
			s.Pool.Rotate()
			sleep(ctx, backoffAt(attempt))
			continue
		}
		start := time.Now()
		receipt, err := client.TransactionReceipt(ctx, tx)
		s.Pool.Observe(url, time.Since(start), err)
		if err == nil {
			return receipt, nil
		}
		last = err
		s.Pool.Rotate()
		sleep(ctx, backoffAt(attempt))
	}
	return nil, last
}

func backoffAt(attempt int) time.Duration {
	if attempt >= len(retryBackoff) {
		return retryBackoff[len(retryBackoff)-1]
	}
	return retryBackoff[attempt]
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func (s *Scanner) writeStatus(status string, from, to, current uint64, message string) {
	if err := s.Checkpoint.WriteStatus(aaveliq.ScanStatus{
		Status:       status,
		FromBlock:    from,
		ToBlock:      to,
		CurrentBlock: current,
		Message:      message,
	}); err != nil {
		log.Printf("scanner: write status: %v", err)
	}
}

// formatTokenAmount renders amount (raw integer units) scaled by
// decimals as a decimal string. Trailing zeros and a trailing decimal
// point are trimmed for readability; the value is computed with
// big.Rat throughout so no float imprecision leaks into the CSV.
func formatTokenAmount(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return ""
	}
	r := new(big.Rat).SetFrac(amount, pow10(decimals))
	return trimRat(r, int(decimals))
}

// valueUSD computes round(amount_decimal * price, 2), or "" if price
// is unavailable. USD value columns are fixed 2-decimal strings, never
// trimmed.
func valueUSD(amount *big.Int, decimals uint8, price *big.Rat) string {
	if amount == nil || price == nil || price.Sign() == 0 {
		return ""
	}
	decimalAmount := new(big.Rat).SetFrac(amount, pow10(decimals))
	value := new(big.Rat).Mul(decimalAmount, price)
	return value.FloatString(2)
}

// ratOrEmpty renders a resolved price as an 8-decimal fixed-point
// string, or "" if no layer produced a result.
func ratOrEmpty(r *big.Rat) string {
	if r == nil {
		return ""
	}
	return r.FloatString(8)
}

// trimRat renders r with up to `decimals` fractional digits, trimming
// trailing zeros and a trailing '.'. Callers that need a fixed width
// (price and USD value columns) format the value themselves via
// FloatString; this helper produces the shorter numeric-string form
// used by the amount columns.
func trimRat(r *big.Rat, decimals int) string {
	s := r.FloatString(decimals)
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	if s == "" || s == "-" {
		return "0"
	}
	return s
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
