// Package storage is the record store adapter.
//
// It holds the violation table, the subscriber table (soft delete only) and an
// audit log, behind a single Store interface with sqlite and in-memory drivers.
package storage
