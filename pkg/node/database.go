package node

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/user/verdandi"
)

// DatabaseNode runs a read-only query and emits the rows. The connection is
// opened per execution and closed when the node finishes; the validator has
// already refused destructive statements.
type DatabaseNode struct {
	open func(driver, dsn string) (*sql.DB, error)
}

func NewDatabase(open func(driver, dsn string) (*sql.DB, error)) *DatabaseNode {
	if open == nil {
		open = sql.Open
	}
	return &DatabaseNode{open: open}
}

func (d *DatabaseNode) Execute(ctx context.Context, node verdandi.Node, input map[string]interface{}, ec verdandi.ExecContext) (map[string]interface{}, error) {
	query := node.ConfigString("query")
	if query == "" {
		return nil, fmt.Errorf("database node %s has no query", node.ID)
	}

	driver := node.ConfigString("driver")
	if driver == "" {
		driver = "sqlite"
	}
	driver = driverName(driver)
	dsn := node.ConfigString("dsn")

	creds, err := resolveCredential(ctx, node, ec)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve credential: %w", err)
	}
	if creds["dsn"] != "" {
		dsn = creds["dsn"]
	}
	if dsn == "" {
		return nil, fmt.Errorf("database node %s has no dsn", node.ID)
	}

	db, err := d.open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to run query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var result []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return map[string]interface{}{
		"rows":  result,
		"count": len(result),
	}, nil
}

// driverName maps config names to the names the drivers register under.
func driverName(driver string) string {
	switch driver {
	case "postgres":
		return "pgx"
	case "mssql":
		return "sqlserver"
	default:
		return driver
	}
}
