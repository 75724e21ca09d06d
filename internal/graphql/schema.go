// Package graphql exposes users, transactions and recurring templates over a
// schema-first GraphQL API.
package graphql

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"

	graphqlgo "github.com/graph-gophers/graphql-go"

	"expensetracker/internal/core"
	applog "expensetracker/internal/log"
)

//go:embed schema.graphql
var schemaSDL string

// maxDepth bounds nested selections such as user.transactions.
const maxDepth = 8

// NewSchema parses the embedded schema against r.
func NewSchema(r *Resolver) (*graphqlgo.Schema, error) {
	schema, err := graphqlgo.ParseSchema(schemaSDL, r,
		graphqlgo.MaxDepth(maxDepth),
		graphqlgo.Logger(panicLogger{}),
	)
	if err != nil {
		return nil, fmt.Errorf("parse graphql schema: %w", err)
	}
	return schema, nil
}

type panicLogger struct{}

func (panicLogger) LogPanic(ctx context.Context, value any) {
	slog.ErrorContext(ctx, "GraphQL resolver panic", "panic", value)
}

var (
	errUnauthenticated = errors.New("unauthenticated")
	errNotFound        = errors.New("not found")
	errInternal        = errors.New("internal server error")
)

// clientError maps err to the message returned to API clients. Unexpected
// errors are logged and replaced by a generic message.
func clientError(ctx context.Context, op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, core.ErrUnauthenticated):
		return errUnauthenticated
	case errors.Is(err, core.ErrNotFound):
		return errNotFound
	case errors.Is(err, core.ErrInvalidLogin):
		return core.ErrInvalidLogin
	case errors.Is(err, core.ErrConflict), core.IsValidationError(err):
		return err
	}
	slog.ErrorContext(ctx, "GraphQL operation failed", applog.FieldOperation, op, applog.FieldError, err)
	return errInternal
}
