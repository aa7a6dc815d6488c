package repository

import (
	"context"

	"github.com/pkg/errors"
)

// Options selects and configures a checkpoint backend.
type Options struct {
	Driver        string
	SQLitePath    string
	PostgresURL   string
	MongoURL      string
	MongoDatabase string
}

// NewCheckpointStore opens the backend named by opts.Driver.
func NewCheckpointStore(ctx context.Context, opts Options) (CheckpointStore, error) {
	switch opts.Driver {
	case "", "sqlite":
		path := opts.SQLitePath
		if path == "" {
			path = "assistant.db"
		}
		return NewSQLiteStore(path)
	case "postgres":
		return NewPostgresStore(ctx, opts.PostgresURL)
	case "mongo":
		return NewMongoStore(ctx, opts.MongoURL, opts.MongoDatabase)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, errors.Errorf("unknown checkpoint driver %q", opts.Driver)
	}
}
