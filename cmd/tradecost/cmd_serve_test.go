package main

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlab-io/tradecost/internal/sim"
	"github.com/quantlab-io/tradecost/internal/store"
)

func TestStoreHooks_NoBackends(t *testing.T) {
	resultHook, batchHook := storeHooks(context.Background(), nil, nil)
	assert.Nil(t, resultHook)
	assert.Nil(t, batchHook)
}

func TestStoreHooks_RedisOnlyPublishesBatches(t *testing.T) {
	client, mock := redismock.NewClientMock()
	pub := store.NewPublisherWithClient(client)

	resultHook, batchHook := storeHooks(context.Background(), nil, pub)
	require.NotNil(t, resultHook)
	require.NotNil(t, batchHook)

	br := &sim.BatchResult{
		ID:          "b-1",
		Count:       1,
		SubmittedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Results: []sim.BatchItem{
			{Variation: sim.Variation{Quantity: 1}, Result: sim.Result{Symbol: "BTC-USDT-SWAP", Quantity: 1}},
		},
	}
	payload, err := json.Marshal(br)
	require.NoError(t, err)

	mock.ExpectSet("tradecost:batch:b-1", payload, time.Hour).SetVal("OK")
	batchHook(br)
	assert.NoError(t, mock.ExpectationsWereMet())
}
