package main

import (
	"context"
	"fmt"

	"remora/internal/app"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var executeAmount float64

var executeCmd = &cobra.Command{
	Use:   "execute <strategy-id>",
	Short: "Execute a stored strategy on the exchange",
	Args:  cobra.ExactArgs(1),
	RunE:  runExecute,
}

func init() {
	rootCmd.AddCommand(executeCmd)
	executeCmd.Flags().Float64Var(&executeAmount, "amount", 0, "Order size in USDT (0 uses the configured default)")
}

func runExecute(cmd *cobra.Command, args []string) error {
	id, err := parseStrategyID(args[0])
	if err != nil {
		return err
	}

	return withApp(func(ctx context.Context, a *app.App, log *zap.Logger) error {
		result, err := a.ExecuteStrategy(ctx, id, executeAmount)
		if err != nil {
			return fmt.Errorf("executing strategy %d: %w", id, err)
		}

		if !result.Success {
			fmt.Printf("Execution rejected: %s\n", result.Error)
			return nil
		}

		fmt.Println("Order placed")
		fmt.Println("------------")
		fmt.Printf("Ticket:      %s\n", result.Ticket)
		fmt.Printf("Symbol:      %s\n", result.Symbol)
		fmt.Printf("Side:        %s\n", result.Side)
		fmt.Printf("Quantity:    %.6f\n", result.Quantity)
		fmt.Printf("Entry price: %.2f\n", result.EntryPrice)
		if result.TakeProfit != nil {
			fmt.Printf("Take profit: %.2f\n", *result.TakeProfit)
		}
		if result.StopLoss != nil {
			fmt.Printf("Stop loss:   %.2f\n", *result.StopLoss)
		}
		fmt.Printf("Order ID:    %s\n", result.OrderID)
		return nil
	})
}
