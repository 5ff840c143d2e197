// Package dailyprices builds a daily ETH/USD time series off the same
// price resolution chain the liquidation scanner uses, starting 7 days
// before the first liquidation event found in the canonical
// liquidations CSV, for downstream daily-returns and volatility work.
// It is a secondary pipeline: it shares the provider pool and the ETH
// resolution path only, writes to its own CSV and status file, and
// never touches the liquidations CSV.
package dailyprices

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"time"

	aaveliq "github.com/aave-liq/scanner"
	"github.com/aave-liq/scanner/internal/csvstore"
	"github.com/aave-liq/scanner/pkg/priceresolver"
	"github.com/aave-liq/scanner/pkg/providerpool"
)

const lookbackDays = 7

// FieldOrder is the fixed column order for the daily ETH price CSV.
var FieldOrder = []string{"date", "eth_price_usd", "block_number", "source"}

// Builder drives one pass of the daily dataset builder.
type Builder struct {
	Pool            *providerpool.Pool
	Resolver        *priceresolver.Resolver
	LiquidationsCSV *csvstore.Store
	CSVPath         string
	StatusPath      string
	BaseTimeout     time.Duration

	now func() time.Time
}

func New(pool *providerpool.Pool, resolver *priceresolver.Resolver, liquidationsCSV *csvstore.Store, csvPath, statusPath string, baseTimeout time.Duration) *Builder {
	return &Builder{
		Pool:            pool,
		Resolver:        resolver,
		LiquidationsCSV: liquidationsCSV,
		CSVPath:         csvPath,
		StatusPath:      statusPath,
		BaseTimeout:     baseTimeout,
		now:             time.Now,
	}
}

// Run appends one row per missing UTC day, from the anchor day (7 days
// before the first liquidation event, or the day after the last row
// already in this CSV, whichever is later) through yesterday UTC (today
// is never written since it isn't a closed day yet).
func (b *Builder) Run(ctx context.Context) error {
	liqSummary, err := b.LiquidationsCSV.Summarize()
	if err != nil {
		return fmt.Errorf("dailyprices: summarize liquidations csv: %w", err)
	}
	if !liqSummary.HasRows {
		b.writeStatus("waiting", "no liquidation events yet")
		return nil
	}

	anchor := dayOf(time.Unix(int64(liqSummary.MinTimestamp), 0).UTC().AddDate(0, 0, -lookbackDays))

	existingDates, lastDate, err := b.loadExistingDates()
	if err != nil {
		return fmt.Errorf("dailyprices: load existing rows: %w", err)
	}
	start := anchor
	if lastDate != "" {
		if parsed, err := time.Parse("2006-01-02", lastDate); err == nil {
			candidate := dayOf(parsed.AddDate(0, 0, 1))
			if candidate.After(start) {
				start = candidate
			}
		}
	}

	today := dayOf(b.clock())
	if !start.Before(today) {
		b.writeStatus("completed", "up to date")
		return nil
	}

	client, _, err := b.Pool.Acquire(ctx, b.BaseTimeout, false, true)
	if err != nil {
		b.writeStatus("error", fmt.Sprintf("acquire: %v", err))
		return fmt.Errorf("dailyprices: acquire client: %w", err)
	}
	tipBlock, err := client.BlockNumber(ctx)
	if err != nil {
		b.writeStatus("error", fmt.Sprintf("block number: %v", err))
		return fmt.Errorf("dailyprices: block number: %w", err)
	}
	tipHeader, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		b.writeStatus("error", fmt.Sprintf("header: %v", err))
		return fmt.Errorf("dailyprices: tip header: %w", err)
	}

	written := 0
	for day := start; day.Before(today); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			break
		}
		dateStr := day.Format("2006-01-02")
		if existingDates[dateStr] {
			continue
		}

		targetTs := uint64(day.Unix())
		block, err := b.findBlockAtOrBefore(ctx, tipBlock, tipHeader.Time, targetTs)
		if err != nil {
			continue
		}

		price := b.Resolver.PriceUSD(ctx, "ETH", priceresolver.WETHAddress, block, targetTs)
		if price == nil {
			continue
		}

		if err := b.appendRow(dateStr, price, block); err != nil {
			return fmt.Errorf("dailyprices: append row: %w", err)
		}
		existingDates[dateStr] = true
		written++
	}

	b.writeStatus("completed", fmt.Sprintf("wrote %d day(s)", written))
	return nil
}

func (b *Builder) clock() time.Time {
	if b.now != nil {
		return b.now()
	}
	return time.Now()
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// findBlockAtOrBefore binary-searches for the highest block whose
// timestamp is ≤ targetTs, seeding the search range from a linear
// estimate off the known tip block/timestamp and Ethereum mainnet's
// ~12-second block time.
func (b *Builder) findBlockAtOrBefore(ctx context.Context, tipBlock, tipTs, targetTs uint64) (uint64, error) {
	if targetTs >= tipTs {
		return tipBlock, nil
	}
	elapsed := tipTs - targetTs
	estimate := int64(tipBlock) - int64(elapsed/12)
	if estimate < 1 {
		estimate = 1
	}

	lo, hi := uint64(1), tipBlock
	if uint64(estimate) < hi {
		// narrow the initial window around the estimate to cut down
		// on header fetches for a 12s/block chain.
		if uint64(estimate) > 100_000 {
			lo = uint64(estimate) - 100_000
		}
		hi = uint64(estimate) + 100_000
		if hi > tipBlock {
			hi = tipBlock
		}
	}

	best := lo
	for lo <= hi {
		mid := lo + (hi-lo)/2
		ts, err := b.blockTimestamp(ctx, mid)
		if err != nil {
			return 0, err
		}
		if ts <= targetTs {
			best = mid
			if mid == hi {
				break
			}
			lo = mid + 1
		} else {
			if mid == 0 {
				break
			}
			hi = mid - 1
		}
	}
	return best, nil
}

func (b *Builder) blockTimestamp(ctx context.Context, block uint64) (uint64, error) {
	client, _, err := b.Pool.Acquire(ctx, b.BaseTimeout, false, true)
	if err != nil {
		b.Pool.Rotate()
		return 0, err
	}
	header, err := client.HeaderByNumber(ctx, new(big.Int).SetUint64(block))
	if err != nil {
		b.Pool.Rotate()
		return 0, err
	}
	return header.Time, nil
}

func (b *Builder) loadExistingDates() (map[string]bool, string, error) {
	dates := make(map[string]bool)
	var last string

	f, err := os.Open(b.CSVPath)
	if os.IsNotExist(err) {
		return dates, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err == io.EOF {
		return dates, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	dateCol := 0
	for i, col := range header {
		if col == "date" {
			dateCol = i
		}
	}
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, "", err
		}
		if dateCol < len(rec) {
			dates[rec[dateCol]] = true
			if rec[dateCol] > last {
				last = rec[dateCol]
			}
		}
	}
	return dates, last, nil
}

func (b *Builder) appendRow(date string, price *big.Rat, block uint64) error {
	if err := os.MkdirAll(filepath.Dir(b.CSVPath), 0o755); err != nil {
		return err
	}
	needsHeader := false
	if info, err := os.Stat(b.CSVPath); os.IsNotExist(err) || (err == nil && info.Size() == 0) {
		needsHeader = true
	}
	f, err := os.OpenFile(b.CSVPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if needsHeader {
		if err := w.Write(FieldOrder); err != nil {
			return err
		}
	}
	row := []string{date, price.FloatString(8), fmt.Sprintf("%d", block), "aave_oracle_or_chainlink"}
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Sync()
}

// writeStatus atomically projects a status file in the same shape as
// aaveliq.ScanStatus, mirroring checkpoint.Store.WriteStatus's
// temp-file-plus-rename pattern for the liquidations status file.
func (b *Builder) writeStatus(status, message string) {
	rows, _ := countRows(b.CSVPath)
	s := aaveliq.ScanStatus{
		Status:      status,
		EventsFound: rows,
		LastUpdated: aaveliq.Now().Unix(),
		Message:     message,
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return
	}
	dir := filepath.Dir(b.StatusPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}
	tmp, err := os.CreateTemp(dir, "daily_status_tmp_*.json")
	if err != nil {
		return
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return
	}
	if err := tmp.Close(); err != nil {
		return
	}
	os.Rename(tmpPath, b.StatusPath)
}

func countRows(path string) (int, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return len(rows) - 1, nil
}
