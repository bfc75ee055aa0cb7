package datasource

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"

	"github.com/simon020286/go-transforms/codec"
	"github.com/simon020286/go-transforms/models"
)

// default database/sql driver per service; postgres can use lib/pq with driver: postgres
var sqlDrivers = map[string]string{
	ServicePostgres:  "pgx",
	ServiceMySQL:     "mysql",
	ServiceSQLite:    "sqlite",
	ServiceSQLServer: "sqlserver",
	ServiceDuckDB:    "duckdb",
}

// SQLDataSource runs queries through a database/sql pool
type SQLDataSource struct {
	driver string
	db     *sql.DB
}

var _ models.QueryStepDataSource = (*SQLDataSource)(nil)

func OpenSQL(ctx context.Context, driver, dsn string, maxOpenConns int) (*SQLDataSource, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return &SQLDataSource{driver: driver, db: db}, nil
}

// FetchData runs query with params bound positionally and returns one tree per
// row, columns in select order
func (s *SQLDataSource) FetchData(ctx context.Context, query string, params []any) ([]*models.Tree, error) {
	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	var result []*models.Tree
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		row := models.NewTree()
		for i, col := range cols {
			v, err := columnValue(values[i])
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", col, err)
			}
			row.Set(col, v)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return result, nil
}

// columnValue converts a scanned column. Text columns some drivers return as
// []byte are read as strings.
func columnValue(v any) (models.Value, error) {
	if b, ok := v.([]byte); ok {
		return models.String(b), nil
	}
	return codec.Natural(v)
}

func (s *SQLDataSource) Close() error {
	return s.db.Close()
}
