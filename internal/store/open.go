// ABOUTME: Backend selection for the store package
// ABOUTME: Maps a configured driver name to a concrete Store implementation

package store

import (
	"context"
	"fmt"
)

// Driver names accepted by Open.
const (
	DriverSQLite    = "sqlite"  // modernc.org/sqlite (pure Go)
	DriverSQLiteCGO = "sqlite3" // github.com/mattn/go-sqlite3
	DriverPostgres  = "postgres"
	DriverMongo     = "mongo"
)

// Options selects and configures a backend.
type Options struct {
	Driver        string
	Path          string // sqlite drivers
	DSN           string // postgres and mongo
	MongoDatabase string
}

// Open creates the store for the configured driver.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "", DriverSQLite:
		return NewSQLiteStoreWithDriver(DriverSQLite, opts.Path)
	case DriverSQLiteCGO:
		return NewSQLiteStoreWithDriver(DriverSQLiteCGO, opts.Path)
	case DriverPostgres:
		return NewPostgresStore(ctx, opts.DSN)
	case DriverMongo:
		return NewMongoStore(ctx, opts.DSN, opts.MongoDatabase)
	default:
		return nil, fmt.Errorf("unknown database driver %q", opts.Driver)
	}
}
