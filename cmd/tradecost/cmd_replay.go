package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quantlab-io/tradecost/internal/book"
	"github.com/quantlab-io/tradecost/internal/marketdata"
	"github.com/quantlab-io/tradecost/internal/volatility"
)

// replaySink collects the last state pushed by the processor
type replaySink struct {
	metrics   book.MarketMetrics
	estimates volatility.Estimates
	updates   int
}

func (s *replaySink) UpdateMarketData(ob *book.OrderBook, m book.MarketMetrics) {
	s.metrics = m
	s.updates++
}

func (s *replaySink) UpdateVolatilityEstimates(est volatility.Estimates) {
	s.estimates = est
}

func newReplayCmd() *cobra.Command {
	var (
		input      string
		intervalMs int
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a recorded feed and report the derived market state",
		RunE: func(cmd *cobra.Command, args []string) error {
			sink := &replaySink{}
			processor := marketdata.NewProcessor(sink, volatility.NewCalculator(nil, 0), 0)

			bad := 0
			err := marketdata.Replay(cmd.Context(), input, time.Duration(intervalMs)*time.Millisecond, func(msg []byte) {
				if err := processor.Handle(msg); err != nil {
					bad++
					log.Debug().Err(err).Msg("bad snapshot")
				}
			})
			if err != nil {
				return err
			}

			log.Info().
				Int("updates", sink.updates).
				Int("rejected", bad).
				Float64("mid_price", sink.metrics.MidPrice).
				Float64("volatility", sink.metrics.Volatility).
				Msg("replay summary")

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]interface{}{
				"updates":    sink.updates,
				"rejected":   bad,
				"metrics":    sink.metrics,
				"volatility": sink.estimates,
			})
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "Recorded snapshot file (JSON lines)")
	cmd.Flags().IntVar(&intervalMs, "interval", 0, "Delay between messages in milliseconds")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}
