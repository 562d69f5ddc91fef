package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Run summarizes one session, live or replayed.
type Run struct {
	RunID    string
	Created  time.Time
	Asset    string
	Strategy string
	Mode     string
	Dataset  string
	Config   []byte

	Start   time.Time
	End     time.Time
	Candles int

	Trades    int
	Wins      int
	Losses    int
	Draws     int
	NetProfit decimal.Decimal
	WinRate   float64
}

func (j *SQLite) RecordRun(r Run) error {
	_, err := j.db.Exec(`
		INSERT INTO runs
		(run_id, created, asset, strategy, mode, dataset, config, start_time, end_time, candles, trades, wins, losses, draws, net_profit, win_rate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Created.UTC(), r.Asset, r.Strategy, r.Mode, r.Dataset, r.Config,
		r.Start.UTC(), r.End.UTC(), r.Candles, r.Trades, r.Wins, r.Losses, r.Draws, r.NetProfit, r.WinRate,
	)
	return err
}

func (j *SQLite) GetRun(runID string) (Run, error) {
	var r Run
	err := j.db.QueryRow(`
		SELECT run_id, created, asset, strategy, mode, dataset, config, start_time, end_time, candles, trades, wins, losses, draws, net_profit, win_rate
		FROM runs WHERE run_id = ?`, runID).Scan(
		&r.RunID, &r.Created, &r.Asset, &r.Strategy, &r.Mode, &r.Dataset, &r.Config,
		&r.Start, &r.End, &r.Candles, &r.Trades, &r.Wins, &r.Losses, &r.Draws, &r.NetProfit, &r.WinRate,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, fmt.Errorf("run %q not found", runID)
		}
		return Run{}, err
	}
	return r, nil
}
