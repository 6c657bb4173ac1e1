// Package storage defines the repository interfaces the notification core
// depends on (change log, hook registry, task queue, user lookup) and an
// in-memory implementation for tests and dev mode. The durable
// PostgreSQL-backed implementation lives in the postgres subpackage.
package storage
