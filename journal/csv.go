package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"
)

type CSVJournal struct {
	closes *csv.Writer
	equity *csv.Writer
	cf, ef *os.File
}

// NewCSV opens (or creates) append-mode CSV logs. Headers are written only
// when the file is new, so repeated runs keep appending to one audit trail.
func NewCSV(closesPath, equityPath string) (*CSVJournal, error) {
	cf, fresh, err := openAppend(closesPath)
	if err != nil {
		return nil, err
	}
	cw := csv.NewWriter(cf)
	if fresh {
		if err := cw.Write([]string{"position_id", "symbol", "timeframe", "tactic",
			"entry_zone", "entry_price", "exit_price", "quantity", "invested_usd",
			"realized_usd", "reason", "actor", "open_time", "close_time"}); err != nil {
			cf.Close()
			return nil, err
		}
	}

	ef, fresh, err := openAppend(equityPath)
	if err != nil {
		cf.Close()
		return nil, err
	}
	ew := csv.NewWriter(ef)
	if fresh {
		if err := ew.Write([]string{"time", "cash_usd", "invested_usd", "equity_usd", "open_positions"}); err != nil {
			cf.Close()
			ef.Close()
			return nil, err
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, err
	}
	ew.Flush()
	if err := ew.Error(); err != nil {
		return nil, err
	}

	return &CSVJournal{closes: cw, equity: ew, cf: cf, ef: ef}, nil
}

func openAppend(path string) (*os.File, bool, error) {
	info, statErr := os.Stat(path)
	fresh := statErr != nil || info.Size() == 0
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, false, err
	}
	return f, fresh, nil
}

func (j *CSVJournal) RecordClose(r CloseRecord) error {
	j.closes.Write([]string{
		r.PositionID,
		r.Symbol,
		string(r.Timeframe),
		r.Tactic,
		string(r.EntryZone),
		f(r.EntryPrice),
		f(r.ExitPrice),
		f(r.Quantity),
		f(r.InvestedUSD),
		f(r.RealizedUSD),
		r.Reason,
		r.Actor,
		r.OpenTime.Format(time.RFC3339),
		r.CloseTime.Format(time.RFC3339),
	})
	j.closes.Flush()
	return j.closes.Error()
}

func (j *CSVJournal) RecordEquity(e EquitySnapshot) error {
	j.equity.Write([]string{
		e.Time.Format(time.RFC3339),
		f(e.CashUSD),
		f(e.InvestedUSD),
		f(e.EquityUSD),
		strconv.Itoa(e.OpenPositions),
	})
	j.equity.Flush()
	return j.equity.Error()
}

func (j *CSVJournal) Close() error {
	j.closes.Flush()
	j.equity.Flush()
	if err := j.cf.Close(); err != nil {
		j.ef.Close()
		return err
	}
	return j.ef.Close()
}

func f(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
