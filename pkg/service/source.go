package service

import (
	"context"

	"github.com/ignatij/exectrack/pkg/models"
)

// ExecutionSource reads wire records from the executions table.
type ExecutionSource interface {
	// ListExecutions returns every record of every execution.
	ListExecutions(ctx context.Context) ([]models.WireRecord, error)
	// QueryExecution returns the records whose exec-id equals executionID.
	// An unknown execution yields an empty slice and no error.
	QueryExecution(ctx context.Context, executionID string) ([]models.WireRecord, error)
}

// Logger defines the logging interface used by the controller.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}
