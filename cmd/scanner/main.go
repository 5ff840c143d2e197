// Command scanner is the liquidation indexer's CLI surface: `run`
// drives the resumable scan loop plus the daily ETH/USD dataset
// builder as background scheduled passes, `validate` forces one
// gap-detection/backfill pass (with an optional CSV backup first), and
// `stats` prints the provider pool's health table.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"github.com/aave-liq/scanner/internal/checkpoint"
	"github.com/aave-liq/scanner/internal/config"
	"github.com/aave-liq/scanner/internal/csvstore"
	"github.com/aave-liq/scanner/internal/dailyprices"
	"github.com/aave-liq/scanner/internal/pricecache"
	"github.com/aave-liq/scanner/internal/scanner"
	"github.com/aave-liq/scanner/internal/scheduler"
	"github.com/aave-liq/scanner/pkg/logreader"
	"github.com/aave-liq/scanner/pkg/priceresolver"
	"github.com/aave-liq/scanner/pkg/providerpool"
	"github.com/aave-liq/scanner/pkg/tokenregistry"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load("config.yml")
	if err != nil {
		log.Fatalf("scanner: config: %v", err)
	}

	switch os.Args[1] {
	case "run":
		runCmd(cfg, os.Args[2:])
	case "validate":
		validateCmd(cfg, os.Args[2:])
	case "stats":
		statsCmd(cfg)
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: scanner <run|validate|stats> [flags]")
}

// build wires every component Scanner and the daily dataset builder
// need off a loaded Config.
func build(cfg *config.Config) (*providerpool.Pool, *scanner.Scanner, *dailyprices.Builder, *checkpoint.Store) {
	pool := providerpool.New(cfg.Chain, cfg.ChainID(), cfg.RPCEndpoints)
	baseTimeout := cfg.RPCBaseTimeout()

	client, _, err := pool.Acquire(context.Background(), baseTimeout, false, true)
	if err != nil {
		log.Fatalf("scanner: acquire initial rpc client: %v", err)
	}

	registry := tokenregistry.New(client)

	var cache priceresolver.Cache
	if cfg.PriceCacheDSN != "" {
		c, err := pricecache.New(cfg.PriceCacheDSN)
		if err != nil {
			log.Printf("scanner: price cache disabled: %v", err)
		} else {
			cache = c
		}
	}
	resolver := priceresolver.New(pool, cache, baseTimeout)
	reader := logreader.New(pool, baseTimeout)

	liqCSV := csvstore.New(cfg.CSVPath)
	if err := liqCSV.EnsureHeader(); err != nil {
		log.Fatalf("scanner: ensure csv header: %v", err)
	}
	ckpt := checkpoint.New(liqCSV, cfg.StatusPath, cfg.GenesisBlock)

	poolAddress := common.HexToAddress(cfg.AavePoolAddress)
	sc := scanner.New(pool, reader, registry, resolver, liqCSV, ckpt, poolAddress, cfg.ChainID(), baseTimeout)

	dailyBuilder := dailyprices.New(pool, resolver, liqCSV, cfg.DailyCSVPath, cfg.DailyStatusPath, baseTimeout)

	return pool, sc, dailyBuilder, ckpt
}

func runCmd(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	to := fs.String("to", "", "scan up to this block number, or \"latest\" (default: live tip, no cap)")
	once := fs.Bool("once", false, "run a single scan pass and exit instead of looping")
	fs.Parse(args)

	_, sc, dailyBuilder, _ := build(cfg)

	var toBlock uint64
	if *to != "" && *to != "latest" {
		n, err := strconv.ParseUint(*to, 10, 64)
		if err != nil {
			log.Fatalf("scanner: invalid --to %q: %v", *to, err)
		}
		toBlock = n
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *once {
		result, err := sc.Run(ctx, toBlock)
		if err != nil {
			log.Fatalf("scanner: run: %v", err)
		}
		log.Printf("scanner: scanned %d-%d, %d event(s), %d gap(s) remaining", result.FromBlock, result.ToBlock, result.EventsFound, len(result.SkippedGaps))
		return
	}

	scanSched := scheduler.New("liquidation-scan", cfg.ScanInterval(), cfg.SkipInitialScan, func(ctx context.Context) error {
		_, err := sc.Run(ctx, toBlock)
		return err
	})

	if cfg.DisableBackground {
		scanSched.Run(ctx)
		return
	}

	dailySched := scheduler.NewDaily("daily-eth-prices", 0, 5, dailyBuilder.Run)

	done := make(chan struct{}, 2)
	go func() { scanSched.Run(ctx); done <- struct{}{} }()
	go func() { dailySched.Run(ctx); done <- struct{}{} }()
	<-done
	<-done
}

// validateCmd forces one gap-detection/backfill pass up to the live
// tip, optionally backing up the canonical CSV first.
func validateCmd(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	backup := fs.Bool("backup", false, "snapshot the canonical CSV before validating")
	fs.Parse(args)

	if *backup {
		path, err := csvstore.Backup(cfg.CSVPath)
		if err != nil {
			log.Fatalf("scanner: backup: %v", err)
		}
		if path != "" {
			log.Printf("scanner: backed up csv to %s", path)
		}
	}

	_, sc, _, _ := build(cfg)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backfill, err := sc.Backfill(ctx)
	if err != nil {
		log.Fatalf("scanner: backfill prices: %v", err)
	}
	log.Printf("scanner: backfill inspected %d row(s), updated %d", backfill.RowsInspected, backfill.RowsUpdated)

	result, err := sc.Run(ctx, 0)
	if err != nil {
		log.Fatalf("scanner: validate: %v", err)
	}
	log.Printf("scanner: validated %d-%d, %d event(s) appended, %d gap(s) remaining", result.FromBlock, result.ToBlock, result.EventsFound, len(result.SkippedGaps))
}

// statsCmd prints the provider pool's per-endpoint health table.
func statsCmd(cfg *config.Config) {
	pool := providerpool.New(cfg.Chain, cfg.ChainID(), cfg.RPCEndpoints)
	// touch every endpoint once so the table reflects live reachability
	ctx := context.Background()
	for range cfg.RPCEndpoints {
		if _, _, err := pool.Acquire(ctx, cfg.RPCBaseTimeout(), true, false); err != nil {
			break
		}
		pool.Rotate()
	}

	fmt.Printf("%-60s %8s %8s %8s %10s %10s\n", "URL", "SUCCESS", "ERRORS", "TOTAL", "RATE%", "AVG_MS")
	for _, s := range pool.Stats() {
		fmt.Printf("%-60s %8d %8d %8d %10.1f %10.1f\n", s.URL, s.Success, s.Errors, s.Total, s.SuccessRate, s.AvgResponseMs)
	}
}
