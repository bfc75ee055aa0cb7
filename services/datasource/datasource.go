// Package datasource implements the query step datasource on SQL databases
// and MongoDB.
package datasource

import (
	"context"
	"fmt"
	"strings"

	"github.com/simon020286/go-transforms/config"
	"github.com/simon020286/go-transforms/models"
)

// Supported datasource services
const (
	ServicePostgres  = "postgres"
	ServiceMySQL     = "mysql"
	ServiceSQLite    = "sqlite"
	ServiceSQLServer = "sqlserver"
	ServiceDuckDB    = "duckdb"
	ServiceMongoDB   = "mongodb"
)

// Open connects the datasource described by cfg
func Open(ctx context.Context, cfg *config.DataSourceConfig) (models.QueryStepDataSource, error) {
	dsn, err := config.ResolveString(cfg.URL)
	if err != nil {
		return nil, &models.ConfigError{Msg: "datasource url", Err: err}
	}
	if dsn == "" {
		return nil, &models.ConfigError{Msg: "datasource: missing 'url'"}
	}

	service := strings.ToLower(cfg.Service)
	switch service {
	case ServiceMongoDB, "mongo":
		return OpenMongo(ctx, dsn, cfg.Database)
	case ServicePostgres, ServiceMySQL, ServiceSQLite, ServiceSQLServer, ServiceDuckDB:
		driver := cfg.Driver
		if driver == "" {
			driver = sqlDrivers[service]
		}
		return OpenSQL(ctx, driver, dsn, cfg.MaxOpenConns)
	}
	return nil, &models.ConfigError{Msg: fmt.Sprintf("datasource: unsupported service '%s'", cfg.Service)}
}
