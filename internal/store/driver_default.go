//go:build !sqlite_vec || !cgo

package store

// Default build: pure-Go SQLite driver, no cgo required.
const driverName = "sqlite"
