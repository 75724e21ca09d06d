package graphql

import (
	"context"
	"errors"

	graphqlgo "github.com/graph-gophers/graphql-go"

	"expensetracker/internal/core"
	"expensetracker/internal/session"
)

// AuthUser returns the signed-in user, or null for anonymous requests.
func (r *Resolver) AuthUser(ctx context.Context) (*userResolver, error) {
	userID := session.UserID(ctx)
	if userID == "" {
		return nil, nil
	}
	u, err := r.users.Get(ctx, userID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, clientError(ctx, "authUser", err)
	}
	return &userResolver{root: r, u: u}, nil
}

// User returns a user profile. Users can only look up themselves.
func (r *Resolver) User(ctx context.Context, args struct{ UserID graphqlgo.ID }) (*userResolver, error) {
	current, err := session.RequireUser(ctx)
	if err != nil {
		return nil, clientError(ctx, "user", err)
	}
	if string(args.UserID) != current {
		return nil, errNotFound
	}
	u, err := r.users.Get(ctx, current)
	if err != nil {
		return nil, clientError(ctx, "user", err)
	}
	return &userResolver{root: r, u: u}, nil
}

func (r *Resolver) Transactions(ctx context.Context) ([]*transactionResolver, error) {
	userID, err := session.RequireUser(ctx)
	if err != nil {
		return nil, clientError(ctx, "transactions", err)
	}
	txs, err := r.transactions.List(ctx, userID)
	if err != nil {
		return nil, clientError(ctx, "transactions", err)
	}
	return transactionResolvers(txs), nil
}

func (r *Resolver) Transaction(ctx context.Context, args struct{ TransactionID graphqlgo.ID }) (*transactionResolver, error) {
	userID, err := session.RequireUser(ctx)
	if err != nil {
		return nil, clientError(ctx, "transaction", err)
	}
	t, err := r.transactions.Get(ctx, userID, string(args.TransactionID))
	if err != nil {
		return nil, clientError(ctx, "transaction", err)
	}
	return &transactionResolver{t: t}, nil
}

func (r *Resolver) CategoryStatistics(ctx context.Context) ([]*categoryStatResolver, error) {
	userID, err := session.RequireUser(ctx)
	if err != nil {
		return nil, clientError(ctx, "categoryStatistics", err)
	}
	stats, err := r.transactions.CategoryStatistics(ctx, userID)
	if err != nil {
		return nil, clientError(ctx, "categoryStatistics", err)
	}
	out := make([]*categoryStatResolver, len(stats))
	for i, s := range stats {
		out[i] = &categoryStatResolver{s: s}
	}
	return out, nil
}

func (r *Resolver) RecurringTemplates(ctx context.Context) ([]*templateResolver, error) {
	userID, err := session.RequireUser(ctx)
	if err != nil {
		return nil, clientError(ctx, "recurringTemplates", err)
	}
	templates, err := r.templates.List(ctx, userID)
	if err != nil {
		return nil, clientError(ctx, "recurringTemplates", err)
	}
	out := make([]*templateResolver, len(templates))
	for i, t := range templates {
		out[i] = &templateResolver{root: r, t: t}
	}
	return out, nil
}

func (r *Resolver) RecurringTemplate(ctx context.Context, args struct{ TemplateID graphqlgo.ID }) (*templateResolver, error) {
	userID, err := session.RequireUser(ctx)
	if err != nil {
		return nil, clientError(ctx, "recurringTemplate", err)
	}
	t, err := r.templates.Get(ctx, userID, string(args.TemplateID))
	if err != nil {
		return nil, clientError(ctx, "recurringTemplate", err)
	}
	return &templateResolver{root: r, t: t}, nil
}
