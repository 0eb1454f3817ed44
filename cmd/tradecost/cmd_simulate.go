package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quantlab-io/tradecost/internal/config"
	"github.com/quantlab-io/tradecost/internal/export"
	"github.com/quantlab-io/tradecost/internal/marketdata"
	"github.com/quantlab-io/tradecost/internal/sim"
	"github.com/quantlab-io/tradecost/internal/volatility"
)

func newSimulateCmd() *cobra.Command {
	var (
		input         string
		output        string
		csvOutput     string
		exchange      string
		symbol        string
		side          string
		orderType     string
		quantity      float64
		quantityQuote float64
		volOverride   float64
		feeTier       string
		impactModel   string
		mode          string
		quantities    []float64
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a one-off simulation against a recorded feed",
		Long: `Replays a recorded snapshot file to build market state, then runs a
single simulation, or a batch sweep when --quantities is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flagConfig)
			if err != nil {
				return err
			}

			engine := sim.NewEngine(cfg)
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = engine.Shutdown(ctx)
			}()

			vol := volatility.NewCalculator(cfg.Volatility.Windows, cfg.Volatility.EWMALambda)
			processor := marketdata.NewProcessor(engine, vol, 0)
			if err := marketdata.Replay(cmd.Context(), input, 0, func(msg []byte) {
				if err := processor.Handle(msg); err != nil {
					log.Warn().Err(err).Msg("skipping bad snapshot")
				}
			}); err != nil {
				return err
			}

			base := sim.Request{
				Exchange:      exchange,
				Symbol:        symbol,
				OrderType:     orderType,
				Side:          side,
				Quantity:      quantity,
				QuantityQuote: quantityQuote,
				Volatility:    volOverride,
				FeeTier:       feeTier,
				ImpactModel:   impactModel,
				Mode:          mode,
			}

			if len(quantities) > 0 {
				return runSweep(engine, base, quantities, csvOutput)
			}

			result := engine.Simulate(base)
			if result.Error != "" {
				return fmt.Errorf("simulation failed: %s", result.Error)
			}
			if output != "" {
				return export.SaveResultJSON(output, result)
			}
			return export.WriteResultJSON(os.Stdout, result)
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "Recorded snapshot file (JSON lines)")
	cmd.Flags().StringVar(&output, "output", "", "Write the result JSON to a file instead of stdout")
	cmd.Flags().StringVar(&csvOutput, "csv", "", "Write sweep results to a CSV file")
	cmd.Flags().StringVar(&exchange, "exchange", "OKX", "Exchange name")
	cmd.Flags().StringVar(&symbol, "symbol", "BTC-USDT-SWAP", "Instrument symbol")
	cmd.Flags().StringVar(&side, "side", "buy", "Trade side (buy|sell)")
	cmd.Flags().StringVar(&orderType, "order-type", "market", "Order type (market|limit)")
	cmd.Flags().Float64Var(&quantity, "quantity", 0, "Order quantity in base units")
	cmd.Flags().Float64Var(&quantityQuote, "quantity-quote", 0, "Order quantity in quote units, converted at mid")
	cmd.Flags().Float64Var(&volOverride, "volatility", 0, "Override the live volatility estimate (annualized %)")
	cmd.Flags().StringVar(&feeTier, "fee-tier", "TIER1", "Fee tier (TIER1..TIER5)")
	cmd.Flags().StringVar(&impactModel, "impact-model", "almgren-chriss", "Impact model (almgren-chriss|square-root|linear)")
	cmd.Flags().StringVar(&mode, "mode", "basic", "Result detail (basic|advanced)")
	cmd.Flags().Float64SliceVar(&quantities, "quantities", nil, "Run a batch sweep over these quantities")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

// runSweep submits one batch over the quantity list and waits for it
func runSweep(engine *sim.Engine, base sim.Request, quantities []float64, csvOutput string) error {
	variations := make([]sim.Variation, len(quantities))
	for i, q := range quantities {
		variations[i] = sim.Variation{Quantity: q}
	}

	id, err := engine.StartBatch(base, variations)
	if err != nil {
		return err
	}

	for engine.IsBatchRunning(id) {
		time.Sleep(10 * time.Millisecond)
	}
	br, ok := engine.BatchResult(id, true)
	if !ok {
		return fmt.Errorf("batch %s produced no result", id)
	}

	log.Info().
		Int("count", br.Count).
		Float64("processing_ms", br.ProcessingMs).
		Msg("sweep complete")

	if csvOutput != "" {
		return export.SaveBatchCSV(csvOutput, br)
	}
	return export.WriteBatchCSV(os.Stdout, br)
}
