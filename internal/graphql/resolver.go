package graphql

import (
	"context"

	"expensetracker/internal/services"
)

// SessionManager starts and ends login sessions for the current request.
type SessionManager interface {
	Login(ctx context.Context, userID string) error
	Logout(ctx context.Context) error
}

// Resolver is the root resolver for queries and mutations.
type Resolver struct {
	users        *services.UserService
	transactions *services.TransactionService
	templates    *services.TemplateService
	sessions     SessionManager
}

func NewResolver(users *services.UserService, transactions *services.TransactionService, templates *services.TemplateService, sessions SessionManager) *Resolver {
	return &Resolver{
		users:        users,
		transactions: transactions,
		templates:    templates,
		sessions:     sessions,
	}
}
