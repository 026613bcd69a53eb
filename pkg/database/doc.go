/*
Package database provides shared pieces for database access.

Contents:
  - Driver and store-type constants.
  - Sentinel errors for database operations.
  - GORMLogger, which routes GORM's log output through pkg/logger.

The adapters live in pkg/database/sql and cover PostgreSQL and SQLite only;
no NoSQL or vector adapters, sharding, partitioning or retry logic are included.
*/
package database
