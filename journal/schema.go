package journal

// Money columns are TEXT so decimal values round-trip exactly.
const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	trade_id TEXT PRIMARY KEY,
	asset TEXT NOT NULL,
	direction TEXT NOT NULL,
	mode TEXT NOT NULL,
	amount TEXT NOT NULL,
	entry_price REAL NOT NULL,
	exit_price REAL NOT NULL,
	open_time DATETIME NOT NULL,
	close_time DATETIME NOT NULL,
	result TEXT NOT NULL,
	profit TEXT NOT NULL,
	strength REAL NOT NULL,
	indicators TEXT NOT NULL,
	reason TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_close_time ON trades(close_time);

CREATE TABLE IF NOT EXISTS stats (
	time DATETIME NOT NULL,
	asset TEXT NOT NULL,
	wins INTEGER NOT NULL,
	losses INTEGER NOT NULL,
	draws INTEGER NOT NULL,
	unknown INTEGER NOT NULL,
	total_profit TEXT NOT NULL,
	win_rate REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_stats_time ON stats(time);

CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	created DATETIME NOT NULL,
	asset TEXT NOT NULL,
	strategy TEXT NOT NULL,
	mode TEXT NOT NULL,
	dataset TEXT NOT NULL,
	config BLOB,
	start_time DATETIME NOT NULL,
	end_time DATETIME NOT NULL,
	candles INTEGER NOT NULL,
	trades INTEGER NOT NULL,
	wins INTEGER NOT NULL,
	losses INTEGER NOT NULL,
	draws INTEGER NOT NULL,
	net_profit TEXT NOT NULL,
	win_rate REAL NOT NULL
);
`
