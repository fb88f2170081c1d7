package journal

const Schema = `
CREATE TABLE IF NOT EXISTS closes (
	position_id TEXT PRIMARY KEY,
	symbol TEXT NOT NULL,
	timeframe TEXT NOT NULL,
	tactic TEXT NOT NULL,
	entry_zone TEXT NOT NULL,
	entry_price REAL NOT NULL,
	exit_price REAL NOT NULL,
	quantity REAL NOT NULL,
	invested_usd REAL NOT NULL,
	realized_usd REAL NOT NULL,
	reason TEXT NOT NULL,
	actor TEXT NOT NULL,
	open_time DATETIME NOT NULL,
	close_time DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS equity (
	time DATETIME NOT NULL,
	cash_usd REAL NOT NULL,
	invested_usd REAL NOT NULL,
	equity_usd REAL NOT NULL,
	open_positions INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_closes_symbol ON closes(symbol);
CREATE INDEX IF NOT EXISTS idx_equity_time ON equity(time);
`
