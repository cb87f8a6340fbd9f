// Package sqlite implements the gateway's trade journal: an append-only
// record of every execution attempt, kept locally so fills survive a
// gateway restart and feed the daily snapshot job.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"trade-routerv1/internal/model"
)

// JournalConfig configures the trade journal.
type JournalConfig struct {
	DBPath string // e.g. "data/trades.db"; ":memory:" for tests
}

// TradeJournal is a single-connection SQLite writer.
type TradeJournal struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (j *TradeJournal) DB() *sql.DB { return j.db }

// NewJournal opens the database in WAL mode and ensures the schema.
func NewJournal(cfg JournalConfig) (*TradeJournal, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[journal] opened database at %s", cfg.DBPath)
	return &TradeJournal{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			order_id       TEXT    NOT NULL,
			account_alias  TEXT    NOT NULL,
			ticker         TEXT    NOT NULL,
			exchange       TEXT,
			currency       TEXT    NOT NULL,
			action         TEXT    NOT NULL,
			qty            INTEGER NOT NULL,
			price          REAL    NOT NULL,
			success        INTEGER NOT NULL,
			message        TEXT,
			reason         TEXT,
			executed_at    INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_trades_account_ts
			ON trades (account_alias, executed_at);
	`)
	return err
}

// Trade is one journaled execution attempt.
type Trade struct {
	OrderID      string
	AccountAlias string
	Ticker       string
	Exchange     string
	Currency     model.Currency
	Action       model.Action
	Qty          int64
	Price        float64
	Success      bool
	Message      string
	Reason       string
	ExecutedAt   time.Time
}

// RecordExecution journals the outcome of one order.
func (j *TradeJournal) RecordExecution(ctx context.Context, order *model.Order, result *model.OrderResult, fillPrice float64) error {
	success := 0
	if result.Success {
		success = 1
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO trades
			(order_id, account_alias, ticker, exchange, currency, action, qty, price, success, message, reason, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID.String(),
		order.AccountAlias,
		order.Ticker,
		order.Exchange,
		string(order.Currency),
		string(order.Action),
		order.Qty,
		fillPrice,
		success,
		result.Message,
		order.Reason,
		time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: record execution: %w", err)
	}
	return nil
}

// RecentTrades returns the account's newest trades, most recent first.
func (j *TradeJournal) RecentTrades(ctx context.Context, alias string, limit int) ([]Trade, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT order_id, account_alias, ticker, exchange, currency, action, qty, price, success, message, reason, executed_at
		FROM trades
		WHERE account_alias = ?
		ORDER BY executed_at DESC, id DESC
		LIMIT ?`, alias, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: read trades: %w", err)
	}
	defer rows.Close()

	var trades []Trade
	for rows.Next() {
		var t Trade
		var currency, action string
		var success int
		var executedAt int64
		if err := rows.Scan(&t.OrderID, &t.AccountAlias, &t.Ticker, &t.Exchange, &currency, &action,
			&t.Qty, &t.Price, &success, &t.Message, &t.Reason, &executedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan trade: %w", err)
		}
		t.Currency = model.Currency(currency)
		t.Action = model.Action(action)
		t.Success = success == 1
		t.ExecutedAt = time.Unix(executedAt, 0).UTC()
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// DailyFillCount counts successful fills for the UTC day containing now.
// Used by the daily snapshot job.
func (j *TradeJournal) DailyFillCount(ctx context.Context, alias string, now time.Time) (int, error) {
	dayStart := now.UTC().Truncate(24 * time.Hour)
	var count int
	err := j.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM trades
		WHERE account_alias = ? AND success = 1 AND executed_at >= ? AND executed_at < ?`,
		alias, dayStart.Unix(), dayStart.Add(24*time.Hour).Unix(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("sqlite: daily fill count: %w", err)
	}
	return count, nil
}

// Close closes the database.
func (j *TradeJournal) Close() error {
	return j.db.Close()
}
