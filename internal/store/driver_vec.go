//go:build sqlite_vec && cgo

package store

import (
	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

// sqlite_vec build: cgo driver with the sqlite-vec extension, which
// ships vector_distance_cos natively.
const driverName = "sqlite3"

func init() {
	// vec.Auto() registers sqlite-vec as an auto-loadable extension on
	// every new go-sqlite3 connection.
	vec.Auto()
}
