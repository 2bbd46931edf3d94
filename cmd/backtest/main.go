package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"breakout-backend/internal/domain"
	"breakout-backend/internal/infrastructure/csvdata"
	"breakout-backend/internal/usecase"
)

func main() {
	var (
		csvPath  = flag.String("csv", "", "single CSV file of M15 candles")
		pair     = flag.String("pair", "EUR_USD", "instrument for -csv mode")
		pairs    = flag.String("pairs", "", "comma separated instruments for -data-dir mode")
		dataDir  = flag.String("data-dir", "", "directory with <PAIR>.csv files")
		start    = flag.String("start", "", "start date (YYYY-MM-DD, inclusive)")
		end      = flag.String("end", "", "end date (YYYY-MM-DD, inclusive)")
		strategy = flag.String("strategy", "standard", "exit strategy: standard, aggressive, scaling, dpl")
		risk     = flag.Float64("risk", 0, "risk per trade percent (overrides preset)")
		preset   = flag.String("preset", "default", "config preset: default, conservative, aggressive")
		output   = flag.String("output", "", "write full JSON report to this file")
	)
	flag.Parse()

	cfg := domain.PresetConfig(*preset)
	kind, ok := domain.ParseStrategy(*strategy)
	if !ok {
		log.Fatalf("unknown strategy %q", *strategy)
	}
	cfg.Strategy = kind
	if *risk > 0 {
		cfg.Risk.RiskPerTradePercent = *risk
	}
	if err := cfg.Validate(false); err != nil {
		log.Fatal(err)
	}

	data, err := loadData(*csvPath, *pair, *pairs, *dataDir)
	if err != nil {
		log.Fatal(err)
	}
	for p, candles := range data {
		data[p] = filterRange(candles, *start, *end)
		if len(data[p]) == 0 {
			log.Fatalf("%s: no candles in requested range", p)
		}
	}

	report, err := usecase.NewEngine(cfg).RunPortfolio(data)
	if err != nil {
		log.Fatal(err)
	}

	printSummary(report)

	if *output != "" {
		buf, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			log.Fatal(err)
		}
		if err := os.WriteFile(*output, buf, 0o644); err != nil {
			log.Fatal(err)
		}
		log.Printf("Report written to %s", *output)
	}
}

func loadData(csvPath, pair, pairs, dataDir string) (map[string][]domain.Candle, error) {
	data := make(map[string][]domain.Candle)

	switch {
	case csvPath != "":
		candles, err := csvdata.LoadCandles(csvPath)
		if err != nil {
			return nil, err
		}
		data[pair] = candles
	case dataDir != "":
		names := strings.Split(pairs, ",")
		if pairs == "" {
			matches, err := filepath.Glob(filepath.Join(dataDir, "*.csv"))
			if err != nil {
				return nil, err
			}
			names = names[:0]
			for _, m := range matches {
				names = append(names, strings.TrimSuffix(filepath.Base(m), ".csv"))
			}
		}
		for _, name := range names {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			candles, err := csvdata.LoadCandles(filepath.Join(dataDir, name+".csv"))
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			data[name] = candles
		}
	default:
		return nil, fmt.Errorf("either -csv or -data-dir is required")
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("no data loaded")
	}
	return data, nil
}

func filterRange(candles []domain.Candle, start, end string) []domain.Candle {
	from := time.Time{}
	to := time.Time{}
	if start != "" {
		if t, err := time.Parse("2006-01-02", start); err == nil {
			from = t
		}
	}
	if end != "" {
		if t, err := time.Parse("2006-01-02", end); err == nil {
			to = t.Add(24 * time.Hour)
		}
	}

	out := candles[:0:0]
	for _, c := range candles {
		if !from.IsZero() && c.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && !c.Timestamp.Before(to) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func printSummary(r *domain.Report) {
	fmt.Println()
	fmt.Println("=================================================")
	fmt.Printf("  Backtest: %s [%s]\n", strings.Join(r.Pairs, ", "), r.Strategy)
	fmt.Printf("  Period:   %s to %s\n", r.StartDate, r.EndDate)
	fmt.Println("=================================================")
	fmt.Printf("  Trades:          %d (W %d / L %d, %.1f%%)\n", r.TotalTrades, r.Wins, r.Losses, r.WinRate)
	fmt.Printf("  Net profit:      %.2f\n", r.NetProfit)
	fmt.Printf("  Profit factor:   %.2f\n", r.ProfitFactor)
	fmt.Printf("  Balance:         %.2f -> %.2f\n", r.InitialBalance, r.FinalBalance)
	fmt.Printf("  Max drawdown:    %.2f\n", r.MaxDrawdown)
	fmt.Printf("  Sharpe:          %.2f\n", r.SharpeRatio)
	fmt.Printf("  Avg win / loss:  %.2f / %.2f\n", r.AvgWin, r.AvgLoss)
	fmt.Printf("  Best / worst:    %.2f / %.2f\n", r.BestTrade, r.WorstTrade)
	fmt.Printf("  Avg duration:    %.1f h\n", r.AvgTradeDurationHours)

	if len(r.ByPair) > 1 {
		fmt.Println("  Per pair:")
		names := make([]string, 0, len(r.ByPair))
		for name := range r.ByPair {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			s := r.ByPair[name]
			fmt.Printf("    %-8s %3d trades, %3d wins, %+.2f\n", name, s.Trades, s.Wins, s.NetProfit)
		}
	}

	if len(r.Rejections) > 0 {
		fmt.Println("  Rejected signals:")
		names := make([]string, 0, len(r.Rejections))
		for name := range r.Rejections {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("    %-16s %d\n", name, r.Rejections[name])
		}
	}
	fmt.Println("=================================================")
}
