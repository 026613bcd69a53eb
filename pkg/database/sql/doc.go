/*
Package sql provides a unified interface for SQL database access.

This package holds the shared Config and SQL interface. Adapters exist for:
  - PostgreSQL: Production-grade relational database
  - SQLite: Embedded database for development and testing

Basic usage:

	import (
		"github.com/chris-alexander-pop/system-design-library/pkg/database/sql"
		"github.com/chris-alexander-pop/system-design-library/pkg/database/sql/adapters/postgres"
	)

	cfg := sql.Config{
		Driver:   "postgres",
		Host:     "localhost",
		Port:     "5432",
		User:     "postgres",
		Password: "secret",
		Name:     "mydb",
	}

	db, err := postgres.New(cfg)
	if err != nil {
		log.Fatal(err)
	}

	// postgres.New returns a *gorm.DB; use it directly for queries
	db.WithContext(ctx).First(&record)
*/
package sql
