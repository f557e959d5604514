package store

import (
	"context"
	"fmt"
)

// Connect opens the engine named by driver. SQL engines are returned as
// found; only Migrate (txiso init) provisions them. A memory store lives for
// one process, so it is migrated on open.
func Connect(ctx context.Context, driver, dsn string, opts Options) (Store, error) {
	if driver == DriverMemory {
		s := NewMemoryStore()
		if err := s.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate %s: %w", driver, err)
		}
		return s, nil
	}
	s, err := Open(ctx, driver, dsn, opts)
	if err != nil {
		return nil, err
	}
	return s, nil
}
