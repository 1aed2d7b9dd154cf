package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"remora/internal/app"
	"remora/internal/config"
	"remora/internal/core"
	"remora/internal/logger"
	strategystore "remora/internal/storage/strategy"
	"remora/internal/strategy"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var strategiesCmd = &cobra.Command{
	Use:   "strategies",
	Short: "Strategy store operations",
	Long:  `Commands for inspecting and maintaining stored trade strategies.`,
}

var strategiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored strategies",
	RunE:  runStrategiesList,
}

var strategiesStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show lifecycle counters",
	RunE:  runStrategiesStats,
}

var strategiesExpireCmd = &cobra.Command{
	Use:   "expire",
	Short: "Expire overdue pending strategies now",
	RunE:  runStrategiesExpire,
}

var strategiesCancelCmd = &cobra.Command{
	Use:   "cancel <strategy-id>",
	Short: "Cancel a pending strategy",
	Args:  cobra.ExactArgs(1),
	RunE:  runStrategiesCancel,
}

var strategiesCloseCmd = &cobra.Command{
	Use:   "close <strategy-id>",
	Short: "Mark an open strategy as closed",
	Args:  cobra.ExactArgs(1),
	RunE:  runStrategiesClose,
}

var (
	listSymbol string
	listStatus string
	listLimit  int
)

func init() {
	rootCmd.AddCommand(strategiesCmd)
	strategiesCmd.AddCommand(strategiesListCmd)
	strategiesCmd.AddCommand(strategiesStatsCmd)
	strategiesCmd.AddCommand(strategiesExpireCmd)
	strategiesCmd.AddCommand(strategiesCancelCmd)
	strategiesCmd.AddCommand(strategiesCloseCmd)

	strategiesListCmd.Flags().StringVar(&listSymbol, "symbol", "", "Filter by symbol")
	strategiesListCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status (PENDING, OPEN, CLOSED, CANCELLED, EXPIRED)")
	strategiesListCmd.Flags().IntVar(&listLimit, "limit", 20, "Maximum rows")
}

// withStrategies opens the strategy store without the rest of the pipeline,
// so these commands work even when no feed or exchange is configured.
func withStrategies(fn func(ctx context.Context, mgr *strategy.Manager, log *zap.Logger) error) error {
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

	ctx := context.Background()
	store, err := app.OpenStrategyStore(ctx, cfg.Storage.Strategies)
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(ctx, strategy.NewManager(store, log), log)
}

func runStrategiesList(cmd *cobra.Command, args []string) error {
	var status core.StrategyStatus
	if listStatus != "" {
		status = core.StrategyStatus(strings.ToUpper(listStatus))
		if !status.IsValid() {
			return fmt.Errorf("unknown status %q", listStatus)
		}
	}

	return withStrategies(func(ctx context.Context, mgr *strategy.Manager, log *zap.Logger) error {
		list, err := mgr.List(ctx, strategystore.ListFilter{
			Symbol: strings.ToUpper(listSymbol),
			Status: status,
			Limit:  listLimit,
		})
		if err != nil {
			return fmt.Errorf("listing strategies: %w", err)
		}

		if len(list) == 0 {
			fmt.Println("No strategies found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSYMBOL\tACTION\tCONF\tENTRY\tSTATUS\tEXECUTED\tEXPIRES\t")
		fmt.Fprintln(w, "--\t------\t------\t----\t-----\t------\t--------\t-------\t")

		for _, s := range list {
			executed := ""
			if s.Executed {
				executed = "yes"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%.0f%%\t%.2f\t%s\t%s\t%s\t\n",
				s.ID, s.Symbol, s.Action, s.Confidence, s.EntryPrice, s.Status, executed,
				s.ExpiresAt.Format("2006-01-02 15:04"))
		}
		w.Flush()

		log.Info("strategies listed", zap.Int("count", len(list)))
		return nil
	})
}

func runStrategiesStats(cmd *cobra.Command, args []string) error {
	return withStrategies(func(ctx context.Context, mgr *strategy.Manager, log *zap.Logger) error {
		stats, err := mgr.Stats(ctx)
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Println("Strategy Stats")
		fmt.Println("--------------")
		fmt.Printf("Total:          %d\n", stats.Total)
		fmt.Printf("Pending:        %d\n", stats.Pending)
		fmt.Printf("Open:           %d\n", stats.Open)
		fmt.Printf("Closed:         %d\n", stats.Closed)
		fmt.Printf("Cancelled:      %d\n", stats.Cancelled)
		fmt.Printf("Expired:        %d\n", stats.Expired)
		fmt.Printf("Executed:       %d\n", stats.Executed)
		fmt.Printf("Long/Short:     %d/%d\n", stats.Long, stats.Short)
		fmt.Printf("Avg confidence: %.1f%%\n", stats.AvgConfidence)
		fmt.Printf("Success rate:   %.1f%%\n", stats.SuccessRate)
		return nil
	})
}

func runStrategiesExpire(cmd *cobra.Command, args []string) error {
	return withStrategies(func(ctx context.Context, mgr *strategy.Manager, log *zap.Logger) error {
		n, err := mgr.ExpireOverdue(ctx)
		if err != nil {
			return fmt.Errorf("expiring strategies: %w", err)
		}
		fmt.Printf("Expired %d overdue strategies.\n", n)
		log.Info("expiry sweep complete", zap.Int("expired", n))
		return nil
	})
}

func runStrategiesCancel(cmd *cobra.Command, args []string) error {
	id, err := parseStrategyID(args[0])
	if err != nil {
		return err
	}
	return withStrategies(func(ctx context.Context, mgr *strategy.Manager, log *zap.Logger) error {
		if err := mgr.Cancel(ctx, id); err != nil {
			return fmt.Errorf("cancelling strategy %d: %w", id, err)
		}
		fmt.Printf("Strategy %d cancelled.\n", id)
		log.Info("strategy cancelled", zap.Int64("id", id))
		return nil
	})
}

func runStrategiesClose(cmd *cobra.Command, args []string) error {
	id, err := parseStrategyID(args[0])
	if err != nil {
		return err
	}
	return withStrategies(func(ctx context.Context, mgr *strategy.Manager, log *zap.Logger) error {
		if err := mgr.Close(ctx, id); err != nil {
			return fmt.Errorf("closing strategy %d: %w", id, err)
		}
		fmt.Printf("Strategy %d closed.\n", id)
		log.Info("strategy closed", zap.Int64("id", id))
		return nil
	})
}

func parseStrategyID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid strategy id %q", arg)
	}
	return id, nil
}
