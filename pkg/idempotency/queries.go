package idempotency

const (
	queryInitTable = "InitTable"
	queryClaim     = "Claim"
	queryBind      = "Bind"
	queryLookup    = "Lookup"
	queryRelease   = "Release"
	queryCleanup   = "Cleanup"
)

var commonQueries = map[string]string{
	queryInitTable: `CREATE TABLE IF NOT EXISTS %s (
			workflow_id TEXT NOT NULL,
			key TEXT NOT NULL,
			execution_id TEXT,
			status INTEGER NOT NULL,
			first_seen_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_update TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (workflow_id, key)
			)`,
	queryClaim:   "INSERT INTO %s (workflow_id, key, status) VALUES (?, ?, 0) ON CONFLICT(workflow_id, key) DO NOTHING",
	queryBind:    "UPDATE %s SET execution_id=?, status=1, last_update=CURRENT_TIMESTAMP WHERE workflow_id=? AND key=?",
	queryLookup:  "SELECT execution_id FROM %s WHERE workflow_id=? AND key=?",
	queryRelease: "DELETE FROM %s WHERE workflow_id=? AND key=?",
	queryCleanup: "DELETE FROM %s WHERE last_update < ?",
}
