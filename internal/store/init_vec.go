//go:build sqlite_vec && cgo

package store

import (
	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

func init() {
	// Registers sqlite-vec as an auto-loaded extension on every
	// mattn/go-sqlite3 connection, which makes vec_distance_cosine and
	// vec_version available to Index.
	vec.Auto()
}
