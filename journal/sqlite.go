package journal

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"spotbot/market"
	"spotbot/zone"
)

type SQLiteJournal struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteJournal{db: db}, nil
}

func (j *SQLiteJournal) RecordClose(r CloseRecord) error {
	// position_id is the primary key, so replaying a closure cannot
	// produce a second audit row
	_, err := j.db.Exec(`
		INSERT OR IGNORE INTO closes
		(position_id, symbol, timeframe, tactic, entry_zone, entry_price, exit_price,
		 quantity, invested_usd, realized_usd, reason, actor, open_time, close_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.PositionID, r.Symbol, string(r.Timeframe), r.Tactic, string(r.EntryZone),
		r.EntryPrice, r.ExitPrice, r.Quantity, r.InvestedUSD, r.RealizedUSD,
		r.Reason, r.Actor, r.OpenTime, r.CloseTime,
	)
	return err
}

func (j *SQLiteJournal) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity (time, cash_usd, invested_usd, equity_usd, open_positions)
		VALUES (?, ?, ?, ?, ?)`,
		e.Time, e.CashUSD, e.InvestedUSD, e.EquityUSD, e.OpenPositions,
	)
	return err
}

// ListCloses returns recorded closures newest-first, up to limit.
func (j *SQLiteJournal) ListCloses(limit int) ([]CloseRecord, error) {
	rows, err := j.db.Query(`
		SELECT position_id, symbol, timeframe, tactic, entry_zone, entry_price,
		       exit_price, quantity, invested_usd, realized_usd, reason, actor,
		       open_time, close_time
		FROM closes ORDER BY close_time DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CloseRecord
	for rows.Next() {
		var (
			r      CloseRecord
			tf, zn string
			ot, ct time.Time
		)
		if err := rows.Scan(&r.PositionID, &r.Symbol, &tf, &r.Tactic, &zn,
			&r.EntryPrice, &r.ExitPrice, &r.Quantity, &r.InvestedUSD,
			&r.RealizedUSD, &r.Reason, &r.Actor, &ot, &ct); err != nil {
			return nil, err
		}
		r.Timeframe = market.Timeframe(tf)
		r.EntryZone = zone.Zone(zn)
		r.OpenTime, r.CloseTime = ot, ct
		out = append(out, r)
	}
	return out, rows.Err()
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
