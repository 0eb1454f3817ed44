package marketdata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSnapshot_Valid(t *testing.T) {
	raw := []byte(`{
		"timestamp": "2025-05-04T10:39:13Z",
		"exchange": "OKX",
		"symbol": "BTC-USDT-SWAP",
		"asks": [["95445.5", "9.06"], ["95448.0", "2.05"]],
		"bids": [["95445.4", "1104.23"], ["95445.3", "0.02"]]
	}`)

	ob, err := ParseSnapshot(raw)
	require.NoError(t, err)

	assert.Equal(t, "OKX", ob.Exchange)
	assert.Equal(t, "BTC-USDT-SWAP", ob.Symbol)
	assert.Equal(t, time.Date(2025, 5, 4, 10, 39, 13, 0, time.UTC), ob.Timestamp.UTC())
	require.Len(t, ob.Asks, 2)
	require.Len(t, ob.Bids, 2)
	assert.InDelta(t, 95445.5, ob.BestAsk(), 1e-9)
	assert.InDelta(t, 95445.4, ob.BestBid(), 1e-9)
	assert.InDelta(t, 9.06, ob.Asks[0].Quantity, 1e-9)
}

func TestParseSnapshot_DropsZeroQuantityLevels(t *testing.T) {
	raw := []byte(`{
		"timestamp": "2025-05-04T10:39:13Z",
		"symbol": "BTC-USDT-SWAP",
		"asks": [["100.0", "0"], ["101.0", "1.5"]],
		"bids": [["99.0", "2.0"]]
	}`)

	ob, err := ParseSnapshot(raw)
	require.NoError(t, err)
	require.Len(t, ob.Asks, 1)
	assert.InDelta(t, 101.0, ob.Asks[0].Price, 1e-9)
}

func TestParseSnapshot_MalformedLevel(t *testing.T) {
	cases := map[string]string{
		"short level":    `{"asks": [["100.0"]], "bids": []}`,
		"bad price":      `{"asks": [["abc", "1"]], "bids": []}`,
		"bad quantity":   `{"asks": [["100.0", "x"]], "bids": []}`,
		"negative price": `{"asks": [["-1", "1"]], "bids": []}`,
		"negative qty":   `{"asks": [["100.0", "-2"]], "bids": []}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSnapshot([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestParseSnapshot_EmptyBook(t *testing.T) {
	_, err := ParseSnapshot([]byte(`{"symbol": "X", "asks": [], "bids": []}`))
	assert.ErrorContains(t, err, "empty order book")
}

func TestParseSnapshot_InvalidJSON(t *testing.T) {
	_, err := ParseSnapshot([]byte(`{not json`))
	assert.Error(t, err)
}

func TestParseSnapshot_BadTimestampFallsBack(t *testing.T) {
	before := time.Now().UTC()
	ob, err := ParseSnapshot([]byte(`{"timestamp": "yesterday", "asks": [["100", "1"]], "bids": [["99", "1"]]}`))
	require.NoError(t, err)
	assert.False(t, ob.Timestamp.Before(before))
}
