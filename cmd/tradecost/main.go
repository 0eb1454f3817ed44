package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"
)

const (
	appName = "tradecost"
	version = "v1.2.0"
)

var (
	flagConfig   string
	flagLogLevel string
)

func main() {
	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Trade cost estimation engine for crypto order books",
		Version: version,
		Long: `tradecost estimates the all-in cost of executing a trade against a
live L2 order book: expected slippage, market impact, maker/taker split,
and exchange fees, per trade or as a parameter sweep.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(flagLogLevel)
		},
	}

	// Accept snake_case flag spellings from older scripts
	rootCmd.SetGlobalNormalizationFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to YAML config (built-in defaults when empty)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (trace|debug|info|warn|error)")

	rootCmd.AddCommand(newSimulateCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newReplayCmd())
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// setupLogging configures zerolog: pretty console output on a TTY, JSON
// lines otherwise.
func setupLogging(level string) {
	zerolog.TimeFieldFormat = time.RFC3339

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s %s (%s, %s/%s)\n", appName, version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
