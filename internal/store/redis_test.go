package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlab-io/tradecost/internal/sim"
)

func TestPublishResult(t *testing.T) {
	client, mock := redismock.NewClientMock()
	pub := NewPublisherWithClient(client)

	res := sampleResult()
	payload, err := json.Marshal(res)
	require.NoError(t, err)

	mock.ExpectSet("tradecost:latest:BTC-USDT-SWAP", payload, 0).SetVal("OK")
	mock.ExpectPublish(ResultsChannel, payload).SetVal(1)

	require.NoError(t, pub.PublishResult(context.Background(), res))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishResult_SetFails(t *testing.T) {
	client, mock := redismock.NewClientMock()
	pub := NewPublisherWithClient(client)

	res := sampleResult()
	payload, _ := json.Marshal(res)
	mock.ExpectSet("tradecost:latest:BTC-USDT-SWAP", payload, 0).SetErr(assert.AnError)

	err := pub.PublishResult(context.Background(), res)
	assert.ErrorContains(t, err, "set latest result")
}

func TestPublishBatch(t *testing.T) {
	client, mock := redismock.NewClientMock()
	pub := NewPublisherWithClient(client)

	br := &sim.BatchResult{
		ID:          "b-9",
		Count:       1,
		SubmittedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Results:     []sim.BatchItem{{Result: sampleResult()}},
	}
	payload, err := json.Marshal(br)
	require.NoError(t, err)

	mock.ExpectSet("tradecost:batch:b-9", payload, time.Hour).SetVal("OK")

	require.NoError(t, pub.PublishBatch(context.Background(), br))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestResult(t *testing.T) {
	client, mock := redismock.NewClientMock()
	pub := NewPublisherWithClient(client)

	res := sampleResult()
	payload, _ := json.Marshal(res)
	mock.ExpectGet("tradecost:latest:BTC-USDT-SWAP").SetVal(string(payload))

	got, err := pub.LatestResult(context.Background(), "BTC-USDT-SWAP")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, res.Symbol, got.Symbol)
	assert.InDelta(t, res.NetCost, got.NetCost, 1e-9)
}

func TestLatestResult_Missing(t *testing.T) {
	client, mock := redismock.NewClientMock()
	pub := NewPublisherWithClient(client)

	mock.ExpectGet("tradecost:latest:ETH-USDT").RedisNil()

	got, err := pub.LatestResult(context.Background(), "ETH-USDT")
	require.NoError(t, err)
	assert.Nil(t, got)
}
