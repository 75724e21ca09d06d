package graphql

import (
	"context"

	graphqlgo "github.com/graph-gophers/graphql-go"

	"expensetracker/internal/core"
	"expensetracker/internal/session"
)

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

type userResolver struct {
	root *Resolver
	u    core.User
}

func (r *userResolver) ID() graphqlgo.ID        { return graphqlgo.ID(r.u.ID) }
func (r *userResolver) Username() string        { return r.u.Username }
func (r *userResolver) Name() string            { return r.u.Name }
func (r *userResolver) ProfilePicture() *string { return optionalString(r.u.ProfilePicture) }
func (r *userResolver) Gender() *string         { return optionalString(r.u.Gender) }

// Transactions lists the user's transactions. Only the signed-in user can
// see their own.
func (r *userResolver) Transactions(ctx context.Context) ([]*transactionResolver, error) {
	if session.UserID(ctx) != r.u.ID {
		return nil, errUnauthenticated
	}
	txs, err := r.root.transactions.List(ctx, r.u.ID)
	if err != nil {
		return nil, clientError(ctx, "user.transactions", err)
	}
	return transactionResolvers(txs), nil
}

type transactionResolver struct {
	t core.Transaction
}

func transactionResolvers(txs []core.Transaction) []*transactionResolver {
	out := make([]*transactionResolver, len(txs))
	for i, t := range txs {
		out[i] = &transactionResolver{t: t}
	}
	return out
}

func (r *transactionResolver) ID() graphqlgo.ID     { return graphqlgo.ID(r.t.ID) }
func (r *transactionResolver) UserID() graphqlgo.ID { return graphqlgo.ID(r.t.UserID) }
func (r *transactionResolver) Description() string  { return r.t.Description }
func (r *transactionResolver) PaymentType() string  { return string(r.t.PaymentType) }
func (r *transactionResolver) Category() string     { return r.t.Category }
func (r *transactionResolver) Type() string         { return string(r.t.Type) }
func (r *transactionResolver) Amount() float64      { return r.t.Amount.Float() }
func (r *transactionResolver) Location() *string    { return optionalString(r.t.Location) }
func (r *transactionResolver) Date() string         { return r.t.Date.String() }

func (r *transactionResolver) TemplateID() *graphqlgo.ID {
	if r.t.TemplateID == "" {
		return nil
	}
	id := graphqlgo.ID(r.t.TemplateID)
	return &id
}

type categoryStatResolver struct {
	s core.CategoryStat
}

func (r *categoryStatResolver) Category() string     { return r.s.Category }
func (r *categoryStatResolver) TotalAmount() float64 { return r.s.Total.Float() }

type templateResolver struct {
	root *Resolver
	t    core.RecurringTemplate
}

func (r *templateResolver) ID() graphqlgo.ID       { return graphqlgo.ID(r.t.ID) }
func (r *templateResolver) Description() string    { return r.t.Description }
func (r *templateResolver) PaymentType() string    { return string(r.t.PaymentType) }
func (r *templateResolver) Category() string       { return r.t.Category }
func (r *templateResolver) Type() string           { return string(r.t.Type) }
func (r *templateResolver) Amount() float64        { return r.t.Amount.Float() }
func (r *templateResolver) Interval() string       { return string(r.t.Interval) }
func (r *templateResolver) StartDate() string      { return r.t.StartDate.String() }
func (r *templateResolver) NextOccurrence() string { return r.t.NextOccurrence.String() }
func (r *templateResolver) EndDate() *string       { return optionalString(r.t.EndDate.String()) }
func (r *templateResolver) Occurrences() int32     { return int32(r.t.Occurrences) }
func (r *templateResolver) Active() bool           { return r.t.Active }
func (r *templateResolver) ReviewReason() *string  { return optionalString(r.t.ReviewReason) }

func (r *templateResolver) MaxOccurrences() *int32 {
	if r.t.MaxOccurrences == 0 {
		return nil
	}
	n := int32(r.t.MaxOccurrences)
	return &n
}

// Transactions lists the transactions generated from this template.
func (r *templateResolver) Transactions(ctx context.Context) ([]*transactionResolver, error) {
	txs, err := r.root.transactions.ListForTemplate(ctx, r.t.UserID, r.t.ID)
	if err != nil {
		return nil, clientError(ctx, "recurringTemplate.transactions", err)
	}
	return transactionResolvers(txs), nil
}

type logoutResolver struct {
	message string
}

func (r *logoutResolver) Message() string { return r.message }
