package dropcopy

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Ledger persists drop-copy events into SQLite, keyed by event id so
// re-consuming the stream after a restart is harmless.
type Ledger struct {
	db *sql.DB
}

// ClientActivity summarizes one client's stored responses.
type ClientActivity struct {
	ClientID  uint32
	Accepted  int64
	Canceled  int64
	Filled    int64
	Rejected  int64
	ExecTotal int64
}

// TickerVolume is the traded volume recorded for one ticker. Every
// fill is drop-copied twice, once per counterparty, so the traded
// quantity is half the summed exec quantity.
type TickerVolume struct {
	TickerID  uint32
	TradedQty int64
}

// Report is the ledger's end-of-day integrity summary.
type Report struct {
	Events     int64
	Duplicates int64
	Clients    []ClientActivity
	Volumes    []TickerVolume
}

// OpenLedger creates or opens the ledger database at path.
func OpenLedger(path string) (*Ledger, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	ledger := &Ledger{db: db}
	if err := ledger.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return ledger, nil
}

func (l *Ledger) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS responses (
			event_id TEXT PRIMARY KEY,
			client_id INTEGER NOT NULL,
			ticker_id INTEGER NOT NULL,
			client_order_id INTEGER NOT NULL,
			market_order_id INTEGER NOT NULL,
			type TEXT NOT NULL,
			side TEXT NOT NULL,
			price INTEGER NOT NULL,
			exec_qty INTEGER NOT NULL,
			leaves_qty INTEGER NOT NULL,
			ts_unix_nanos INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_responses_client
			ON responses(client_id)`,
		`CREATE INDEX IF NOT EXISTS idx_responses_ticker
			ON responses(ticker_id)`,
	}

	for _, query := range queries {
		if _, err := l.db.Exec(query); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}
	return nil
}

// Insert stores one event. It reports whether the event was a
// duplicate of one already stored.
func (l *Ledger) Insert(ctx context.Context, event Event) (duplicate bool, err error) {
	result, err := l.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO responses
			(event_id, client_id, ticker_id, client_order_id, market_order_id,
			 type, side, price, exec_qty, leaves_qty, ts_unix_nanos)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.EventID, event.ClientID, event.TickerID, event.ClientOrderID,
		event.MarketOrderID, event.Type, event.Side, event.Price,
		event.ExecQty, event.LeavesQty, event.TsUnixNanos,
	)
	if err != nil {
		return false, fmt.Errorf("inserting event: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking insert result: %w", err)
	}
	return rows == 0, nil
}

// BuildReport summarizes the stored events.
func (l *Ledger) BuildReport(ctx context.Context) (Report, error) {
	var report Report

	if err := l.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM responses",
	).Scan(&report.Events); err != nil {
		return Report{}, fmt.Errorf("counting events: %w", err)
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT client_id,
			SUM(type = 'ACCEPTED'),
			SUM(type = 'CANCELED'),
			SUM(type = 'FILLED'),
			SUM(type = 'CANCEL_REJECTED'),
			SUM(CASE WHEN type = 'FILLED' THEN exec_qty ELSE 0 END)
		 FROM responses GROUP BY client_id ORDER BY client_id`,
	)
	if err != nil {
		return Report{}, fmt.Errorf("querying client activity: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c ClientActivity
		if err := rows.Scan(&c.ClientID, &c.Accepted, &c.Canceled, &c.Filled, &c.Rejected, &c.ExecTotal); err != nil {
			return Report{}, fmt.Errorf("scanning client activity: %w", err)
		}
		report.Clients = append(report.Clients, c)
	}
	if err := rows.Err(); err != nil {
		return Report{}, fmt.Errorf("reading client activity: %w", err)
	}

	volRows, err := l.db.QueryContext(ctx,
		`SELECT ticker_id,
			SUM(CASE WHEN type = 'FILLED' THEN exec_qty ELSE 0 END) / 2
		 FROM responses GROUP BY ticker_id ORDER BY ticker_id`,
	)
	if err != nil {
		return Report{}, fmt.Errorf("querying ticker volume: %w", err)
	}
	defer volRows.Close()

	for volRows.Next() {
		var v TickerVolume
		if err := volRows.Scan(&v.TickerID, &v.TradedQty); err != nil {
			return Report{}, fmt.Errorf("scanning ticker volume: %w", err)
		}
		report.Volumes = append(report.Volumes, v)
	}
	if err := volRows.Err(); err != nil {
		return Report{}, fmt.Errorf("reading ticker volume: %w", err)
	}

	return report, nil
}

// Close closes the database connection.
func (l *Ledger) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}
