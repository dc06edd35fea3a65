package store

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/BatmanBruc/bat-bot-freepik/types"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Options selects and configures the entitlement store.
type Options struct {
	Driver      string
	PostgresDSN string
	SQLitePath  string
	Plans       []types.Plan
	// Fallback opens a memory store when the configured backend fails.
	Fallback bool
}

// Open picks the entitlement store once at startup.
func Open(ctx context.Context, opts Options) (types.EntitlementStore, error) {
	driver := strings.ToLower(strings.TrimSpace(opts.Driver))
	if driver == "" {
		driver = DriverPostgres
	}

	var (
		s   types.EntitlementStore
		err error
	)
	switch driver {
	case DriverPostgres:
		s, err = NewPostgresStore(ctx, opts.PostgresDSN, opts.Plans...)
	case DriverSQLite:
		path := opts.SQLitePath
		if path == "" {
			path = "freepik.db"
		}
		s, err = NewSQLiteStore(path, opts.Plans...)
	case DriverMemory:
		return NewMemoryStore(opts.Plans...), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
	if err == nil {
		return s, nil
	}
	if !opts.Fallback {
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}
	log.Printf("Store: %s unavailable (%v), falling back to in-memory store", driver, err)
	return NewMemoryStore(opts.Plans...), nil
}
