package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dripline/dripline/pkg/persistence"
	"github.com/dripline/dripline/pkg/persistence/memory"
	"github.com/dripline/dripline/pkg/persistence/mongodb"
	"github.com/dripline/dripline/pkg/persistence/postgresql"
)

var ErrUnsupportedPersistence = errors.New("unsupported persistence provider")

var supportedPersistenceProviders = []string{"memory", "postgres", "postgresql", "mongodb", "mongodb+srv"}

// NewPersistence opens the backend named by the scheme of databaseURL.
//
//nolint:ireturn // the backend is chosen at runtime
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	provider := parsePersistenceProvider(databaseURL)

	switch provider {
	case "memory":
		return memory.NewPersistence(logger)
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	case "mongodb", "mongodb+srv":
		return mongodb.NewPersistence(ctx, logger, databaseURL)
	default:
		return nil, fmt.Errorf("%q: %w", provider, ErrUnsupportedPersistence)
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, _ := strings.Cut(databaseURL, "://")

	for _, supported := range supportedPersistenceProviders {
		if provider == supported {
			return provider
		}
	}

	return provider
}
