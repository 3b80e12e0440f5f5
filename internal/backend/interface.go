package backend

import (
	"context"

	"reportbatch/internal/services"
	"reportbatch/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the opened store, the optional report publisher
// and a cleanup function releasing both.
type BackendResult struct {
	Store *storage.Repository
	// Publisher is nil when AMQP is disabled or unreachable.
	Publisher services.ReportPublisher
	Cleanup   CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	SQLiteDBPath string
	MySQLDSN     string

	// AMQP is optional for every backend
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType names the database a backend stores into
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MySQLBackend  BackendType = "mysql"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MySQLBackend:
		return true
	default:
		return false
	}
}
