package store

// schemaVersion is the schema this build writes
const schemaVersion = 1

var schema = `
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);

CREATE TABLE IF NOT EXISTS runs (
	run_id         TEXT PRIMARY KEY,
	started_at     TEXT NOT NULL,
	score_rows     INTEGER NOT NULL,
	gold_rows      INTEGER NOT NULL,
	thresholds     TEXT NOT NULL,
	strategies     TEXT NOT NULL,
	best_threshold REAL,
	best_strategy  TEXT,
	best_f1        REAL,
	report         BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS results (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL,
	threshold  REAL NOT NULL,
	strategy   TEXT NOT NULL,
	precision  REAL NOT NULL,
	recall     REAL NOT NULL,
	f1         REAL NOT NULL,
	support    INTEGER NOT NULL,
	matched    INTEGER NOT NULL,
	skipped    INTEGER NOT NULL,
	error      TEXT,
	UNIQUE(run_id, threshold, strategy),
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`
