// Package store persists simulation output: a Postgres repository for
// durable history and a Redis publisher for live consumers. Both are
// optional; the engine runs without them.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/quantlab-io/tradecost/internal/sim"
)

const defaultQueryTimeout = 5 * time.Second

// Repo writes simulation and batch records to Postgres
type Repo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Open connects to Postgres and verifies the connection
func Open(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connect postgres: %w", err)
	}
	return db, nil
}

// NewRepo wraps an open connection; a non-positive timeout uses the
// default.
func NewRepo(db *sqlx.DB, timeout time.Duration) *Repo {
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}
	return &Repo{db: db, timeout: timeout}
}

// SimulationRow is the persisted shape of one simulation
type SimulationRow struct {
	ID         int64     `db:"id"`
	Timestamp  time.Time `db:"ts"`
	Exchange   string    `db:"exchange"`
	Symbol     string    `db:"symbol"`
	Side       string    `db:"side"`
	OrderType  string    `db:"order_type"`
	Quantity   float64   `db:"quantity"`
	MidPrice   float64   `db:"mid_price"`
	OrderValue float64   `db:"order_value"`
	Slippage   float64   `db:"slippage_pct"`
	Impact     float64   `db:"impact_pct"`
	FeeTotal   float64   `db:"fee_total"`
	NetCost    float64   `db:"net_cost"`
	NetCostPct float64   `db:"net_cost_pct"`
	LatencyMs  float64   `db:"latency_ms"`
	Error      string    `db:"error"`
}

func rowFromResult(res sim.Result) SimulationRow {
	return SimulationRow{
		Timestamp:  res.Timestamp,
		Exchange:   res.Exchange,
		Symbol:     res.Symbol,
		Side:       res.Side,
		OrderType:  res.OrderType,
		Quantity:   res.Quantity,
		MidPrice:   res.MidPrice,
		OrderValue: res.OrderValue,
		Slippage:   res.SlippagePct,
		Impact:     res.Impact.TotalImpactPct,
		FeeTotal:   res.Fees.TotalFee,
		NetCost:    res.NetCost,
		NetCostPct: res.NetCostPct,
		LatencyMs:  res.LatencyMs,
		Error:      res.Error,
	}
}

const insertSimulationSQL = `
	INSERT INTO simulations (
		ts, exchange, symbol, side, order_type, quantity, mid_price,
		order_value, slippage_pct, impact_pct, fee_total, net_cost,
		net_cost_pct, latency_ms, error
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

// InsertSimulation persists one simulation result
func (r *Repo) InsertSimulation(ctx context.Context, res sim.Result) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	row := rowFromResult(res)
	_, err := r.db.ExecContext(ctx, insertSimulationSQL,
		row.Timestamp, row.Exchange, row.Symbol, row.Side, row.OrderType,
		row.Quantity, row.MidPrice, row.OrderValue, row.Slippage,
		row.Impact, row.FeeTotal, row.NetCost, row.NetCostPct,
		row.LatencyMs, row.Error)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			return fmt.Errorf("store: insert simulation (pq %s): %w", pqErr.Code, err)
		}
		return fmt.Errorf("store: insert simulation: %w", err)
	}
	return nil
}

// InsertBatch persists the batch summary and every item atomically
func (r *Repo) InsertBatch(ctx context.Context, br *sim.BatchResult) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(br.Results)/100+1))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin batch tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO batches (id, submitted_at, completed_at, item_count, processing_ms)
		VALUES ($1, $2, $3, $4, $5)`,
		br.ID, br.SubmittedAt, br.CompletedAt, br.Count, br.ProcessingMs)
	if err != nil {
		return fmt.Errorf("store: insert batch summary: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO batch_items (
			batch_id, idx, symbol, side, quantity, net_cost, net_cost_pct, error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`)
	if err != nil {
		return fmt.Errorf("store: prepare batch items: %w", err)
	}
	defer stmt.Close()

	for i, item := range br.Results {
		res := item.Result
		if _, err := stmt.ExecContext(ctx, br.ID, i, res.Symbol, res.Side,
			res.Quantity, res.NetCost, res.NetCostPct, res.Error); err != nil {
			return fmt.Errorf("store: insert batch item %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit batch: %w", err)
	}
	return nil
}

// RecentSimulations returns the latest persisted simulations, newest
// first.
func (r *Repo) RecentSimulations(ctx context.Context, limit int) ([]SimulationRow, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}
	var rows []SimulationRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, ts, exchange, symbol, side, order_type, quantity,
		       mid_price, order_value, slippage_pct, impact_pct, fee_total,
		       net_cost, net_cost_pct, latency_ms, error
		FROM simulations
		ORDER BY ts DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: select recent simulations: %w", err)
	}
	return rows, nil
}
