package main

import (
	"context"
	"fmt"

	"remora/internal/app"
	"remora/internal/config"
	"remora/internal/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [symbol...]",
	Short: "Run one analysis cycle and print the outcome",
	Long: `Runs the fetch-score-analyze pipeline once for the given symbols
(default: the configured watchlist) and prints each outcome.`,
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}

// withApp handles common pipeline setup and teardown for one-shot commands.
func withApp(fn func(ctx context.Context, a *app.App, log *zap.Logger) error) error {
	log := logger.Must(debug)
	defer log.Sync()

	var cfg *config.Config
	if cfgFile != "" {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
	} else {
		cfg = config.Defaults()
		log.Warn("no config file specified, using defaults")
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	ctx := context.Background()
	a, err := app.Bootstrap(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a, log)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app.App, log *zap.Logger) error {
		symbols := args
		if len(symbols) == 0 {
			symbols = a.Symbols()
		}

		for i, symbol := range symbols {
			if i > 0 {
				fmt.Println()
			}
			res, err := a.AnalyzeSymbol(ctx, symbol)
			if err != nil {
				fmt.Printf("%s: cycle failed: %v\n", symbol, err)
				continue
			}
			printCycle(res)
		}
		return nil
	})
}

func printCycle(res *app.CycleResult) {
	fmt.Printf("%s\n", res.Symbol)
	fmt.Printf("  Signal:      %.1f %s\n", res.Assessment.Strength, res.Assessment.Direction)
	for _, reason := range res.Assessment.Reasons {
		fmt.Printf("               %s\n", reason)
	}

	if res.Position != nil {
		fmt.Printf("  Position:    %s %.6f @ %.2f (PnL %.2f)\n",
			res.Position.Side, res.Position.Size, res.Position.EntryPrice, res.Position.UnrealizedPL)
	}

	if !res.Analyzed {
		fmt.Println("  Oracle:      skipped (weak signal, no open position)")
	} else if res.Result != nil {
		rec := res.Result.Recommendation
		fmt.Printf("  Oracle:      %s via %s (%d tokens)\n",
			rec.Action, res.Result.Provider, res.Result.TokensUsed())
		fmt.Printf("  Confidence:  %.0f%%\n", rec.Confidence)
		if rec.EntryPrice != nil {
			fmt.Printf("  Entry:       %.2f\n", *rec.EntryPrice)
		}
		if rec.StopLoss != nil {
			fmt.Printf("  Stop loss:   %.2f\n", *rec.StopLoss)
		}
		if rec.TakeProfit != nil {
			fmt.Printf("  Take profit: %.2f\n", *rec.TakeProfit)
		}
		if rec.Justification != "" {
			fmt.Printf("  Reasoning:   %s\n", rec.Justification)
		}
	}

	if res.Strategy != nil {
		fmt.Printf("  Strategy:    #%d stored, expires %s\n",
			res.Strategy.ID, res.Strategy.ExpiresAt.Format("2006-01-02 15:04:05"))
	}
	if res.ReportPath != "" {
		fmt.Printf("  Report:      %s\n", res.ReportPath)
	}
}
