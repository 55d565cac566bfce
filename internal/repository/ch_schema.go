package repository

import "fmt"

// Schema returns the idempotent DDL for the bar and history tables.
func Schema(barsTable, historyTable string) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	ts     DateTime64(3, 'UTC'),
	symbol LowCardinality(String),
	close  Float64
) ENGINE = ReplacingMergeTree
ORDER BY (symbol, ts)`, barsTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	ts       DateTime64(3, 'UTC'),
	epoch    Int64,
	ensemble LowCardinality(String),
	kind     LowCardinality(String),
	key      String,
	value    Float64
) ENGINE = MergeTree
ORDER BY (ensemble, kind, key, ts)`, historyTable),
	}
}
