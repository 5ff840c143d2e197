package scanner

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aaveliq "github.com/aave-liq/scanner"
	"github.com/aave-liq/scanner/internal/csvstore"
)

// stubResolver returns a fixed price per symbol, or nil for symbols
// absent from its table, mirroring "no layer could resolve" without
// any live RPC dependency.
type stubResolver struct {
	prices map[string]*big.Rat
}

func (s *stubResolver) PriceUSD(ctx context.Context, symbol string, asset common.Address, block, eventTimestamp uint64) *big.Rat {
	return s.prices[symbol]
}

func TestDetectSweepGapsFindsMissingSubrange(t *testing.T) {
	scanned := []blockRange{
		{From: 100, To: 200},
		{From: 201, To: 300}, // contiguous, no gap
		{From: 350, To: 400}, // gap: 301-349
	}
	gaps := detectSweepGaps(scanned)
	assert.Equal(t, []blockRange{{From: 301, To: 349}}, gaps)
}

func TestDetectSweepGapsEmptyWhenContiguous(t *testing.T) {
	scanned := []blockRange{
		{From: 1, To: 10},
		{From: 11, To: 20},
	}
	assert.Empty(t, detectSweepGaps(scanned))
}

func TestFormatTokenAmountScalesByDecimals(t *testing.T) {
	assert.Equal(t, "1.5", formatTokenAmount(big.NewInt(1_500_000_000_000_000_000), 18))
	assert.Equal(t, "2500", formatTokenAmount(big.NewInt(2_500_000_000), 6))
	assert.Equal(t, "", formatTokenAmount(nil, 18))
}

func TestValueUSDRoundsToTwoDecimals(t *testing.T) {
	amount := big.NewInt(1_500_000_000_000_000_000) // 1.5 tokens @ 18 decimals
	price := big.NewRat(3000, 1)
	assert.Equal(t, "4500.00", valueUSD(amount, 18, price))
}

func TestValueUSDEmptyWhenPriceNil(t *testing.T) {
	assert.Equal(t, "", valueUSD(big.NewInt(1), 18, nil))
}

func TestValueUSDEmptyWhenPriceZero(t *testing.T) {
	assert.Equal(t, "", valueUSD(big.NewInt(1), 18, big.NewRat(0, 1)))
}

func TestRatOrEmptyFormatsEightDecimals(t *testing.T) {
	assert.Equal(t, "3000.00000000", ratOrEmpty(big.NewRat(3000, 1)))
	assert.Equal(t, "", ratOrEmpty(nil))
}

func TestTrimRatTrimsTrailingZeros(t *testing.T) {
	assert.Equal(t, "1.5", trimRat(big.NewRat(3, 2), 18))
	assert.Equal(t, "0", trimRat(big.NewRat(0, 1), 18))
}

func TestBackfillFillsMissingPricesAndRecomputesValue(t *testing.T) {
	dir := t.TempDir()
	csv := csvstore.New(filepath.Join(dir, "liquidations.csv"))
	_, err := csv.AppendIfNew(aaveliq.LiquidationEvent{
		Block: 18_000_000, Timestamp: 1700000000, Tx: "0xaaa",
		CollateralAsset:  "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
		DebtAsset:        "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		CollateralSymbol: "WETH", DebtSymbol: "USDC",
		CollateralOut: "2", DebtToCover: "3000",
		// price columns intentionally left empty
	})
	require.NoError(t, err)

	sc := &Scanner{
		CSV: csv,
		Resolver: &stubResolver{prices: map[string]*big.Rat{
			"WETH": big.NewRat(3000, 1),
			"USDC": big.NewRat(1, 1),
			"ETH":  big.NewRat(3000, 1),
		}},
	}

	result, err := sc.Backfill(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.RowsInspected)
	assert.Equal(t, 1, result.RowsUpdated)

	rows, err := csv.LoadRows()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "3000.00000000", rows[0]["collateral_price_usd_at_block"])
	assert.Equal(t, "6000.00", rows[0]["collateral_value_usd"])
	assert.Equal(t, "1.00000000", rows[0]["debt_price_usd_at_block"])
	assert.Equal(t, "3000.00", rows[0]["debt_value_usd"])
	assert.Equal(t, "3000.00000000", rows[0]["eth_price_usd_at_block"])
}

func TestBackfillLeavesUnresolvableRowsUntouched(t *testing.T) {
	dir := t.TempDir()
	csv := csvstore.New(filepath.Join(dir, "liquidations.csv"))
	_, err := csv.AppendIfNew(aaveliq.LiquidationEvent{
		Block: 18_000_000, Timestamp: 1700000000, Tx: "0xaaa",
		CollateralAsset:  "0x1111111111111111111111111111111111111111",
		CollateralSymbol: "UNKNOWNTOKEN", CollateralOut: "5",
	})
	require.NoError(t, err)

	sc := &Scanner{CSV: csv, Resolver: &stubResolver{prices: map[string]*big.Rat{}}}

	result, err := sc.Backfill(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.RowsInspected)
	assert.Equal(t, 0, result.RowsUpdated)

	rows, err := csv.LoadRows()
	require.NoError(t, err)
	assert.Equal(t, "", rows[0]["collateral_price_usd_at_block"])
}

func TestBackfillSkipsRowsAlreadyFullyPriced(t *testing.T) {
	dir := t.TempDir()
	csv := csvstore.New(filepath.Join(dir, "liquidations.csv"))
	_, err := csv.AppendIfNew(aaveliq.LiquidationEvent{
		Block: 18_000_000, Timestamp: 1700000000, Tx: "0xaaa",
		CollateralPriceUSDAtBlock: "3000.00000000",
		DebtPriceUSDAtBlock:       "1.00000000",
		ETHPriceUSDAtBlock:        "3000.00000000",
	})
	require.NoError(t, err)

	sc := &Scanner{CSV: csv, Resolver: &stubResolver{prices: map[string]*big.Rat{}}}

	result, err := sc.Backfill(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.RowsInspected)
	assert.Equal(t, 0, result.RowsUpdated)
}
