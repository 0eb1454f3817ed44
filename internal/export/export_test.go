package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlab-io/tradecost/internal/sim"
)

func TestWriteResultJSON(t *testing.T) {
	res := sim.Result{
		Symbol:     "BTC-USDT-SWAP",
		Side:       "buy",
		Quantity:   1.5,
		NetCost:    0.35,
		NetCostPct: 0.2333,
	}

	var buf bytes.Buffer
	require.NoError(t, WriteResultJSON(&buf, res))

	var decoded sim.Result
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, res.Symbol, decoded.Symbol)
	assert.InDelta(t, res.NetCost, decoded.NetCost, 1e-9)
}

func TestWriteBatchCSV(t *testing.T) {
	br := &sim.BatchResult{
		ID:    "b-1",
		Count: 2,
		Results: []sim.BatchItem{
			{Variation: sim.Variation{Quantity: 0.5}, Result: sim.Result{Symbol: "BTC-USDT-SWAP", Side: "buy", Quantity: 0.5, NetCost: 0.1}},
			{Result: sim.Result{Error: "no market data available for simulation"}},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteBatchCSV(&buf, br))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, batchHeader, records[0])
	assert.Equal(t, "0", records[1][0])
	assert.Equal(t, "BTC-USDT-SWAP", records[1][1])
	assert.Equal(t, "0.5", records[1][4])
	assert.Equal(t, "no market data available for simulation", records[2][14])
}

func TestSaveBatchCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.csv")
	br := &sim.BatchResult{
		Results: []sim.BatchItem{{Result: sim.Result{Symbol: "X", Quantity: 1}}},
	}

	require.NoError(t, SaveBatchCSV(path, br))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "net_cost_pct")
}

func TestSaveResultJSON_BadPath(t *testing.T) {
	err := SaveResultJSON(filepath.Join(t.TempDir(), "missing", "out.json"), sim.Result{})
	assert.Error(t, err)
}
