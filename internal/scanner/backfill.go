package scanner

import (
	"context"
	"log"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/aave-liq/scanner/pkg/priceresolver"
)

// BackfillResult summarizes one Backfill call.
type BackfillResult struct {
	RowsInspected int
	RowsUpdated   int
}

// Backfill re-resolves the price columns of every CSV row that is
// currently missing collateral, debt, or ETH price data. A row is
// rewritten only if at least one previously empty price column now
// resolves; rows that still have no authoritative price available are
// left untouched; an incomplete row is more useful than a missing one,
// and a later pass can still repair it.
func (s *Scanner) Backfill(ctx context.Context) (BackfillResult, error) {
	rows, err := s.CSV.LoadRows()
	if err != nil {
		return BackfillResult{}, err
	}

	var result BackfillResult
	changed := false

	for i, row := range rows {
		if ctx.Err() != nil {
			break
		}
		if row["collateral_price_usd_at_block"] != "" &&
			row["debt_price_usd_at_block"] != "" &&
			row["eth_price_usd_at_block"] != "" {
			continue
		}
		result.RowsInspected++

		block, err := strconv.ParseUint(row["block"], 10, 64)
		if err != nil {
			continue
		}
		ts, err := strconv.ParseUint(row["timestamp"], 10, 64)
		if err != nil {
			continue
		}

		updated := false
		if row["collateral_price_usd_at_block"] == "" {
			if s.fillPrice(ctx, row, "collateralSymbol", "collateralAsset", "collateralOut",
				"collateral_price_usd_at_block", "collateral_value_usd", block, ts) {
				updated = true
			}
		}
		if row["debt_price_usd_at_block"] == "" {
			if s.fillPrice(ctx, row, "debtSymbol", "debtAsset", "debtToCover",
				"debt_price_usd_at_block", "debt_value_usd", block, ts) {
				updated = true
			}
		}
		if row["eth_price_usd_at_block"] == "" {
			ethPrice := s.Resolver.PriceUSD(ctx, "ETH", priceresolver.WETHAddress, block, ts)
			if ethPrice != nil {
				row["eth_price_usd_at_block"] = ratOrEmpty(ethPrice)
				updated = true
			}
		}

		if updated {
			rows[i] = row
			result.RowsUpdated++
			changed = true
		}
	}

	if changed {
		if err := s.CSV.RewriteRows(rows); err != nil {
			return result, err
		}
		log.Printf("scanner: backfill inspected=%d updated=%d", result.RowsInspected, result.RowsUpdated)
	}
	return result, nil
}

// fillPrice resolves symbolCol/assetCol's price at (block, ts) and, on
// success, writes the 8-decimal price into priceCol and the recomputed
// round(amount*price, 2) USD value into valueCol, mutating row in place.
func (s *Scanner) fillPrice(ctx context.Context, row map[string]string, symbolCol, assetCol, amountCol, priceCol, valueCol string, block, ts uint64) bool {
	symbol := row[symbolCol]
	asset := common.HexToAddress(row[assetCol])
	price := s.Resolver.PriceUSD(ctx, symbol, asset, block, ts)
	if price == nil {
		return false
	}
	row[priceCol] = ratOrEmpty(price)

	amount, ok := new(big.Rat).SetString(row[amountCol])
	if ok && price.Sign() > 0 {
		value := new(big.Rat).Mul(amount, price)
		row[valueCol] = value.FloatString(2)
	}
	return true
}
