package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"gexmap/analysis"
	"gexmap/chain"
	"gexmap/config"
	"gexmap/logging"
	"gexmap/schwab"
	"gexmap/web"
)

type gexFlags struct {
	configPath  string
	expiration  string
	chainFile   string
	strikeRange float64
	top         int
	format      string
	watch       bool
}

func main() {
	var f gexFlags

	rootCmd := &cobra.Command{
		Use:   "gex TICKER",
		Short: "Gamma exposure by strike for an option chain",
		Long: `Computes per-strike gamma exposure (gamma x open interest x 100 x spot^2,
calls positive and puts negative) from a Schwab option chain, either fetched live
or read from a saved chain file.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), strings.ToUpper(args[0]), f)
		},
	}

	flags := rootCmd.Flags()
	flags.StringVar(&f.configPath, "config", "", "Optional YAML config file")
	flags.StringVar(&f.expiration, "expiration", string(analysis.FilterNextFriday), "Expirations to include (today|next-friday|two-fridays|all)")
	flags.StringVar(&f.chainFile, "chain-file", "", "Read the option chain from a JSON file instead of Schwab")
	flags.Float64Var(&f.strikeRange, "strike-range", 0, "Strikes kept either side of spot (default STREAM_STRIKES_RANGE)")
	flags.IntVar(&f.top, "top", web.DefaultTopStrikes, "Number of top strikes to list")
	flags.StringVar(&f.format, "format", "table", "Output format (table|json)")
	flags.BoolVar(&f.watch, "watch", false, "Refresh every STREAM_REFRESH_INTERVAL until interrupted")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, ticker string, f gexFlags) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	logging.Setup(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format, File: cfg.Logging.File})

	filter, err := analysis.ParseExpirationFilter(f.expiration)
	if err != nil {
		return err
	}
	if f.format != "table" && f.format != "json" {
		return fmt.Errorf("unknown format %q (want table or json)", f.format)
	}
	window := f.strikeRange
	if window <= 0 {
		window = cfg.Stream.StrikesRange
	}

	var client *schwab.Client
	if f.chainFile == "" {
		client = schwab.NewClient(schwab.Options{
			BaseURL:           cfg.Schwab.BaseURL,
			TokenPath:         cfg.Schwab.TokenPath,
			RequestsPerSecond: cfg.Schwab.RequestsPerSecond,
			BreakerTimeout:    cfg.Stream.ReconnectTimeout,
		})
	}

	once := func() error {
		params := cfg.NormalizerParams()
		payload, err := loadChain(ctx, client, f.chainFile, ticker, filter, params.CurrentTime())
		if err != nil {
			return err
		}

		var spot float64
		if payload.UnderlyingPrice <= 0 && client != nil {
			if spot, err = client.GetSpotPrice(ctx, ticker); err != nil {
				log.Warn().Err(err).Str("ticker", ticker).Msg("No spot price, exposure will be zero")
			}
		}

		report, err := web.BuildGEXReport(ticker, payload, web.GEXOptions{
			Filter:       filter,
			Params:       params,
			SpotPrice:    spot,
			StrikeWindow: window,
			Top:          f.top,
		})
		if err != nil {
			return err
		}

		if f.format == "json" {
			return printJSON(report)
		}
		printTable(report)
		return nil
	}

	if err := once(); err != nil || !f.watch {
		return err
	}

	refresh := time.NewTicker(cfg.Stream.RefreshInterval)
	defer refresh.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-refresh.C:
			if err := once(); err != nil {
				log.Error().Err(err).Str("ticker", ticker).Msg("Refresh failed")
			}
		}
	}
}

// loadChain reads a saved chain file or fetches the chain from Schwab
func loadChain(ctx context.Context, client *schwab.Client, path, ticker string, filter analysis.ExpirationFilter, now time.Time) (*chain.Payload, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading chain file: %w", err)
		}
		var payload chain.Payload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("parsing chain file: %w", err)
		}
		return &payload, nil
	}

	return client.GetOptionChain(ctx, schwab.ChainQuery{
		Symbol: ticker,
		ToDate: analysis.Cutoff(filter, now),
	})
}

func printJSON(report *web.GEXReport) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func printTable(report *web.GEXReport) {
	fmt.Printf("📊 %s gamma exposure (%s), spot $%.2f, %d contracts (%d synthesized, %d dropped)\n\n",
		report.Ticker, report.Expiration, report.SpotPrice,
		report.Chain.Filtered, report.Chain.Synthesized, report.Chain.Dropped)

	var peak, trough analysis.Strike
	if report.Peak != nil {
		peak = report.Peak.Strike
	}
	if report.Trough != nil {
		trough = report.Trough.Strike
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "STRIKE\tCALL GEX\tPUT GEX\tNET GEX\t\t")
	for _, l := range report.Snapshot.Levels() {
		mark := ""
		switch {
		case report.Peak != nil && l.Strike == peak:
			mark = "peak"
		case report.Trough != nil && l.Strike == trough:
			mark = "trough"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t\n",
			l.Strike,
			web.FormatExposure(l.CallExposure),
			web.FormatExposure(l.PutExposure),
			web.FormatExposure(l.Total()),
			mark,
		)
	}
	w.Flush()

	fmt.Printf("\nNet exposure: %s\n", web.FormatCurrency(report.TotalExposure))
	if len(report.Top) > 0 {
		fmt.Println("\nTop strikes:")
		for i, l := range report.Top {
			fmt.Printf("  %d. %s  %s\n", i+1, l.Strike, web.FormatExposure(l.Total()))
		}
	}
}
