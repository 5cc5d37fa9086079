// Package sqlite persists execution results to a local SQLite journal.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite"

	"github.com/fd1az/flashloan-engine/business/execution/domain"
	"github.com/fd1az/flashloan-engine/internal/apperror"
	"github.com/fd1az/flashloan-engine/internal/logger"
)

const tracerName = "github.com/fd1az/flashloan-engine/business/execution/infra/sqlite"

const schema = `
CREATE TABLE IF NOT EXISTS executions (
    id              TEXT PRIMARY KEY,
    provider        TEXT    NOT NULL,
    token           TEXT    NOT NULL,
    amount          TEXT    NOT NULL,
    receiver        TEXT    NOT NULL,
    opportunity_id  TEXT    NOT NULL DEFAULT '',
    success         INTEGER NOT NULL,
    tx_id           TEXT    NOT NULL DEFAULT '',
    tx_ids          TEXT    NOT NULL DEFAULT '[]',
    realized_profit TEXT    NOT NULL DEFAULT '0',
    elapsed_ms      INTEGER NOT NULL DEFAULT 0,
    compute_units   INTEGER NOT NULL DEFAULT 0,
    attempts        INTEGER NOT NULL DEFAULT 0,
    code            TEXT    NOT NULL DEFAULT '',
    error           TEXT    NOT NULL DEFAULT '',
    logs            TEXT    NOT NULL DEFAULT '[]',
    completed_at    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_executions_completed ON executions(completed_at DESC);
CREATE INDEX IF NOT EXISTS idx_executions_receiver  ON executions(receiver);
`

// Journal appends every terminal execution result to SQLite.
type Journal struct {
	db     *sql.DB
	logger logger.LoggerInterface
	tracer trace.Tracer
}

// Open opens (or creates) the journal at dsn. ":memory:" is accepted.
func Open(dsn string, log logger.LoggerInterface) (*Journal, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite.Open: open %q: %w", dsn, err)
	}
	// single writer; also keeps an in-memory database on one connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite.Open: apply schema: %w", err)
	}

	return &Journal{db: db, logger: log, tracer: otel.Tracer(tracerName)}, nil
}

// Record inserts r. Re-recording the same id replaces the row.
func (j *Journal) Record(ctx context.Context, r domain.Result) error {
	ctx, span := j.tracer.Start(ctx, "Journal.Record", trace.WithAttributes(
		attribute.String("execution_id", r.ID),
	))
	defer span.End()

	logs, err := json.Marshal(r.Logs)
	if err != nil {
		return apperror.New(apperror.CodeJournalWriteFailed, apperror.WithCause(err))
	}
	txIDs, err := json.Marshal(r.TxIDs)
	if err != nil {
		return apperror.New(apperror.CodeJournalWriteFailed, apperror.WithCause(err))
	}

	_, err = j.db.ExecContext(ctx, `
INSERT OR REPLACE INTO executions (
    id, provider, token, amount, receiver, opportunity_id, success, tx_id, tx_ids,
    realized_profit, elapsed_ms, compute_units, attempts, code, error, logs, completed_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Provider, r.Token, r.Amount.String(), r.Receiver, r.OpportunityID,
		r.Success, r.TxID, string(txIDs), r.RealizedProfit.String(), r.Elapsed.Milliseconds(),
		int64(r.ComputeUnits), r.Attempts, string(r.Code), r.Error, string(logs),
		r.CompletedAt.UnixNano(),
	)
	if err != nil {
		span.RecordError(err)
		return apperror.New(apperror.CodeJournalWriteFailed,
			apperror.WithContextf("execution %s", r.ID), apperror.WithCause(err))
	}

	j.logger.Debug(ctx, "execution journaled", "execution_id", r.ID, "success", r.Success)
	return nil
}

// Recent returns up to limit results, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]domain.Result, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT id, provider, token, amount, receiver, opportunity_id, success, tx_id, tx_ids,
       realized_profit, elapsed_ms, compute_units, attempts, code, error, logs, completed_at
FROM executions ORDER BY completed_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite.Recent: query: %w", err)
	}
	defer rows.Close()

	var out []domain.Result
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Ping checks the database connection.
func (j *Journal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func scanResult(rows *sql.Rows) (domain.Result, error) {
	var (
		r                      domain.Result
		amount, profit, code   string
		logs, txIDs            string
		elapsedMs, completedNs int64
		computeUnits           int64
	)
	err := rows.Scan(&r.ID, &r.Provider, &r.Token, &amount, &r.Receiver, &r.OpportunityID,
		&r.Success, &r.TxID, &txIDs, &profit, &elapsedMs, &computeUnits, &r.Attempts, &code,
		&r.Error, &logs, &completedNs)
	if err != nil {
		return r, fmt.Errorf("sqlite.Recent: scan: %w", err)
	}

	if r.Amount, err = decimal.NewFromString(amount); err != nil {
		return r, fmt.Errorf("sqlite.Recent: amount of %s: %w", r.ID, err)
	}
	if r.RealizedProfit, err = decimal.NewFromString(profit); err != nil {
		return r, fmt.Errorf("sqlite.Recent: profit of %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(logs), &r.Logs); err != nil {
		return r, fmt.Errorf("sqlite.Recent: logs of %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(txIDs), &r.TxIDs); err != nil {
		return r, fmt.Errorf("sqlite.Recent: tx ids of %s: %w", r.ID, err)
	}
	r.Code = apperror.Code(code)
	r.Elapsed = time.Duration(elapsedMs) * time.Millisecond
	r.ComputeUnits = uint64(computeUnits)
	r.CompletedAt = time.Unix(0, completedNs)
	return r, nil
}
