package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"reportbatch/internal/amqp"
	"reportbatch/internal/core"
	applog "reportbatch/internal/log"
	"reportbatch/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
	clock  core.Clock
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger.With(applog.FieldComponent, applog.ComponentBackend),
		clock:  core.SystemClock{},
	}
}

// CreateBackend opens the store for config.Type, runs its migrations and
// connects the optional AMQP publisher. A broker that cannot be reached is
// logged and the backend runs without notifications.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		repo *storage.Repository
		err  error
	)
	switch config.Type {
	case SQLiteBackend:
		repo, err = storage.NewSQLiteRepository(config.SQLiteDBPath, storage.WithClock(f.clock))
	case MySQLBackend:
		repo, err = storage.NewMySQLRepository(config.MySQLDSN, storage.WithClock(f.clock))
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s repository: %w", config.Type, err)
	}

	result := &BackendResult{Store: repo}

	var amqpClient *amqp.Client
	if config.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without notifications", "error", err)
		} else {
			result.Publisher = amqpClient
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	result.Cleanup = func() error {
		var errs []error
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				errs = append(errs, fmt.Errorf("amqp: %w", err))
			}
		}
		if err := repo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
		return errors.Join(errs...)
	}

	f.logger.InfoContext(ctx, "Initialized backend",
		"type", config.Type,
		"dialect", repo.Dialect(),
		"amqp_enabled", result.Publisher != nil)

	return result, nil
}
