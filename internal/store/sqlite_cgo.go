// ABOUTME: Registers the cgo SQLite driver as an alternative to the pure-Go driver
// ABOUTME: Selected with database.driver "sqlite3"; requires CGO_ENABLED=1 at runtime

package store

import (
	_ "github.com/mattn/go-sqlite3"
)
