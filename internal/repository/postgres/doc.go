// Package postgres implements the service repositories on PostgreSQL via
// database/sql and lib/pq. Every counter change is a single statement so
// concurrent updates never lose increments.
package postgres
