package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-gota/gota/dataframe"

	"omnichannel/internal/config"
	apperrors "omnichannel/internal/errors"
	"omnichannel/internal/infrastructure"
)

// Store persists tables by name
type Store interface {
	// Load reads the named table. Every column is returned as text.
	Load(ctx context.Context, name string) (dataframe.DataFrame, error)

	// Save writes df to the named table, replacing its contents. Overrides
	// pin the warehouse type of individual columns and are ignored by
	// stores without a schema.
	Save(ctx context.Context, df dataframe.DataFrame, name string, overrides Overrides) error

	Close() error
}

// New returns the store selected by cfg.Source
func New(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = infrastructure.WithComponent(logger, "storage")

	switch cfg.Source {
	case "", "local":
		return NewLocal(cfg.LocalDir, cfg.CredentialsFile, logger), nil
	case "bigquery":
		return NewBigQuery(ctx, cfg, logger)
	default:
		return nil, apperrors.NewConfigError(fmt.Sprintf("unknown storage source %q", cfg.Source), nil)
	}
}

func requireName(name string) error {
	if name == "" {
		return apperrors.NewConfigError("table name is empty", nil)
	}
	return nil
}
