// Package export writes simulation output to files: JSON for single
// results, CSV for batch sweeps.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/quantlab-io/tradecost/internal/sim"
)

// WriteResultJSON writes one result as indented JSON
func WriteResultJSON(w io.Writer, res sim.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("export: encode result: %w", err)
	}
	return nil
}

// SaveResultJSON writes one result to path
func SaveResultJSON(path string, res sim.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create %s: %w", path, err)
	}
	defer f.Close()

	if err := WriteResultJSON(f, res); err != nil {
		return err
	}
	log.Info().Str("path", path).Msg("result exported")
	return nil
}

var batchHeader = []string{
	"index", "symbol", "side", "order_type", "quantity", "mid_price",
	"order_value", "slippage_pct", "impact_pct", "maker_proportion",
	"fee_total", "net_cost", "net_cost_pct", "latency_ms", "error",
}

// WriteBatchCSV writes a batch's results as CSV, one row per item in
// submission order.
func WriteBatchCSV(w io.Writer, br *sim.BatchResult) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(batchHeader); err != nil {
		return fmt.Errorf("export: write csv header: %w", err)
	}

	for i, item := range br.Results {
		res := item.Result
		row := []string{
			strconv.Itoa(i),
			res.Symbol,
			res.Side,
			res.OrderType,
			formatFloat(res.Quantity),
			formatFloat(res.MidPrice),
			formatFloat(res.OrderValue),
			formatFloat(res.SlippagePct),
			formatFloat(res.Impact.TotalImpactPct),
			formatFloat(res.MakerProportion),
			formatFloat(res.Fees.TotalFee),
			formatFloat(res.NetCost),
			formatFloat(res.NetCostPct),
			formatFloat(res.LatencyMs),
			res.Error,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("export: write csv row %d: %w", i, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("export: flush csv: %w", err)
	}
	return nil
}

// SaveBatchCSV writes a batch to path
func SaveBatchCSV(path string, br *sim.BatchResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create %s: %w", path, err)
	}
	defer f.Close()

	if err := WriteBatchCSV(f, br); err != nil {
		return err
	}
	log.Info().Str("path", path).Int("rows", len(br.Results)).Msg("batch exported")
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
