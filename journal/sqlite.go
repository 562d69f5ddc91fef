package journal

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// one writer at a time; sessions for several assets share the file
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(trade_id, asset, direction, mode, amount, entry_price, exit_price, open_time, close_time, result, profit, strength, indicators, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TradeID, t.Asset, t.Direction, t.Mode, t.Amount, t.EntryPrice, t.ExitPrice,
		t.OpenTime.UTC(), t.CloseTime.UTC(), t.Result, t.Profit, t.Strength, t.Indicators, t.Reason,
	)
	return err
}

func (j *SQLite) RecordStats(s StatsSnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO stats
		(time, asset, wins, losses, draws, unknown, total_profit, win_rate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Time.UTC(), s.Asset, s.Wins, s.Losses, s.Draws, s.Unknown, s.TotalProfit, s.WinRate,
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
