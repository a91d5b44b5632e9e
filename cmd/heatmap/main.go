package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"gexmap/config"
	"gexmap/heat"
	"gexmap/logging"
	"gexmap/massive"
	"gexmap/web"
)

type heatFlags struct {
	configPath  string
	timeframe   string
	days        int
	style       string
	bins        int
	levels      int
	candlesFile string
	format      string
}

func main() {
	var f heatFlags

	rootCmd := &cobra.Command{
		Use:   "heatmap TICKER",
		Short: "Candle overlap heat map for a ticker",
		Long: `Bins the traded price range and counts how many consecutive candles keep
overlapping each level. Candles come from the Massive aggregates API or from a JSON
file holding an array of {timestamp, open, high, low, close, volume} bars.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), strings.ToUpper(args[0]), f)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVar(&f.configPath, "config", "", "Optional YAML config file")
	flags.StringVar(&f.timeframe, "timeframe", "5minute", "Bar size ("+strings.Join(massive.Timeframes(), "|")+")")
	flags.IntVar(&f.days, "days", 7, "Days of history to fetch")
	flags.StringVar(&f.style, "style", "ohlc4", "Price rendering (ohlc4|candlestick)")
	flags.IntVar(&f.bins, "bins", heat.DefaultBins, "Number of price bins")
	flags.IntVar(&f.levels, "levels", 10, "Hottest price levels to list")
	flags.StringVar(&f.candlesFile, "candles-file", "", "Read candles from a JSON file instead of Massive")
	flags.StringVar(&f.format, "format", "table", "Output format (table|json)")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, ticker string, f heatFlags) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	logging.Setup(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format, File: cfg.Logging.File})

	if f.style != "ohlc4" && f.style != "candlestick" {
		return fmt.Errorf("unknown style %q (want ohlc4 or candlestick)", f.style)
	}
	if f.format != "table" && f.format != "json" {
		return fmt.Errorf("unknown format %q (want table or json)", f.format)
	}
	if f.days < 1 {
		return fmt.Errorf("--days must be at least 1")
	}
	tf, err := massive.ParseTimeframe(f.timeframe)
	if err != nil {
		return err
	}

	candles, err := loadCandles(ctx, cfg, f, ticker, tf)
	if err != nil {
		return err
	}

	report, err := web.BuildHeatReport(ticker, tf.Label, candles, f.bins)
	if err != nil {
		return err
	}

	if f.format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printCandles(report, f.style)
	printLevels(report, f.levels)
	return nil
}

// loadCandles reads a candle file or fetches bars from Massive
func loadCandles(ctx context.Context, cfg *config.Settings, f heatFlags, ticker string, tf massive.Timeframe) ([]heat.Candle, error) {
	if f.candlesFile != "" {
		data, err := os.ReadFile(f.candlesFile)
		if err != nil {
			return nil, fmt.Errorf("reading candles file: %w", err)
		}
		var candles []heat.Candle
		if err := json.Unmarshal(data, &candles); err != nil {
			return nil, fmt.Errorf("parsing candles file: %w", err)
		}
		sort.SliceStable(candles, func(i, j int) bool {
			return candles[i].Timestamp.Before(candles[j].Timestamp)
		})
		return candles, nil
	}

	client, err := massive.NewClient(massive.Options{
		APIKey:            cfg.Massive.APIKey,
		BaseURL:           cfg.Massive.BaseURL,
		RequestsPerMinute: cfg.Massive.RequestsPerMinute,
	})
	if err != nil {
		return nil, err
	}
	to := cfg.NormalizerParams().CurrentTime()
	return client.Candles(ctx, ticker, tf, to.AddDate(0, 0, -f.days), to, 0)
}

func printCandles(report *web.HeatReport, style string) {
	fmt.Printf("🔥 %s %s heat, %d candles from %s to %s, bin width %.4f\n\n",
		report.Ticker, report.Timeframe, len(report.Candles),
		report.From.Format("2006-01-02 15:04"), report.To.Format("2006-01-02 15:04"),
		report.Field.BinWidth)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	if style == "candlestick" {
		fmt.Fprintln(w, "TIME\tOPEN\tHIGH\tLOW\tCLOSE\tWEIGHTED\tMAX HEAT\tAVG HEAT\tBIAS")
	} else {
		fmt.Fprintln(w, "TIME\tOHLC4\tWEIGHTED\tMAX HEAT\tAVG HEAT\tBIAS")
	}
	fmt.Fprintln(w, strings.Repeat("-", 80))

	for i, c := range report.Candles {
		ch := report.Field.Candles[i]
		bias := "bearish"
		if report.Bullish[i] {
			bias = "bullish"
		}
		ts := c.Timestamp.Format("01-02 15:04")
		if style == "candlestick" {
			fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%d\t%.2f\t%s\n",
				ts, c.Open, c.High, c.Low, c.Close,
				report.Field.Weighted[i], ch.MaxHeat, ch.AvgHeat, bias)
		} else {
			fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%d\t%.2f\t%s\n",
				ts, report.OHLC4[i],
				report.Field.Weighted[i], ch.MaxHeat, ch.AvgHeat, bias)
		}
	}
	w.Flush()
}

// printLevels lists the bins carrying the most cumulative heat at the last candle
func printLevels(report *web.HeatReport, n int) {
	if n <= 0 {
		return
	}
	last := report.Field.Column(len(report.Candles) - 1)

	idx := make([]int, 0, len(last))
	for b, v := range last {
		if v > 0 {
			idx = append(idx, b)
		}
	}
	if len(idx) == 0 {
		fmt.Println("\nNo overlapping price levels")
		return
	}
	sort.SliceStable(idx, func(i, j int) bool { return last[idx[i]] > last[idx[j]] })
	if len(idx) > n {
		idx = idx[:n]
	}

	fmt.Println("\nHottest levels:")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "PRICE\tHEAT\t")
	for _, b := range idx {
		fmt.Fprintf(w, "%.2f\t%.0f\t\n", report.Field.Prices[b], last[b])
	}
	w.Flush()
}
