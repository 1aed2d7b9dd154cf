package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "remora",
	Short: "Remora - signal-gated crypto strategy daemon",
	Long: `Remora watches a set of perpetual futures symbols, scores technical
signals on a fixed cycle, consults a reasoning oracle when the market
warrants it, and manages the resulting trade strategies end to end.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug mode")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
