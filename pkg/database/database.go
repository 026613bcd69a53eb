// Package database holds driver and store-type constants shared by the
// database adapters.
//
// The only adapters in this tree are in pkg/database/sql (PostgreSQL and
// SQLite). The other driver constants below have no adapter here.
//
// Usage:
//
//	import "github.com/chris-alexander-pop/system-design-library/pkg/database/sql/adapters/postgres"
//
//	gormDB, err := postgres.New(cfg) // gormDB is a *gorm.DB
package database

// Driver enum
const (
	DriverPostgres   = "postgres"
	DriverMySQL      = "mysql"
	DriverSQLite     = "sqlite"
	DriverSQLServer  = "sqlserver"
	DriverClickHouse = "clickhouse"

	// NoSQL Drivers
	DriverMongoDB   = "mongodb"
	DriverRedis     = "redis"
	DriverCassandra = "cassandra"
	DriverDynamoDB  = "dynamodb"

	// Vector Drivers
	DriverPinecone = "pinecone"
)

// StoreType enum
type StoreType string

const (
	StoreTypeSQL      StoreType = "sql"
	StoreTypeDocument StoreType = "document"
	StoreTypeKeyValue StoreType = "key_value"
	StoreTypeVector   StoreType = "vector"
)
