package graphql

import (
	"context"
	"log/slog"

	graphqlgo "github.com/graph-gophers/graphql-go"

	"expensetracker/internal/core"
	"expensetracker/internal/services"
	"expensetracker/internal/session"
)

type signUpInput struct {
	Username string
	Name     string
	Password string
	Gender   string
}

type loginInput struct {
	Username string
	Password string
}

type createTransactionInput struct {
	Description string
	PaymentType string
	Category    string
	Type        string
	Amount      float64
	Location    *string
	Date        string
}

type updateTransactionInput struct {
	TransactionID graphqlgo.ID
	Description   *string
	PaymentType   *string
	Category      *string
	Type          *string
	Amount        *float64
	Location      *string
	Date          *string
}

type createTemplateInput struct {
	Description    string
	PaymentType    string
	Category       string
	Type           string
	Amount         float64
	Interval       string
	StartDate      string
	EndDate        *string
	MaxOccurrences *int32
}

type updateTemplateInput struct {
	TemplateID     graphqlgo.ID
	Description    *string
	PaymentType    *string
	Category       *string
	Type           *string
	Amount         *float64
	EndDate        *string
	MaxOccurrences *int32
	Active         *bool
}

// SignUp registers a user and signs them in.
func (r *Resolver) SignUp(ctx context.Context, args struct{ Input signUpInput }) (*userResolver, error) {
	u, err := r.users.SignUp(ctx, services.SignUpInput{
		Username: args.Input.Username,
		Name:     args.Input.Name,
		Password: args.Input.Password,
		Gender:   args.Input.Gender,
	})
	if err != nil {
		return nil, clientError(ctx, "signUp", err)
	}
	if err := r.sessions.Login(ctx, u.ID); err != nil {
		return nil, clientError(ctx, "signUp", err)
	}
	return &userResolver{root: r, u: u}, nil
}

func (r *Resolver) Login(ctx context.Context, args struct{ Input loginInput }) (*userResolver, error) {
	u, err := r.users.Authenticate(ctx, args.Input.Username, args.Input.Password)
	if err != nil {
		slog.WarnContext(ctx, "Login failed", "username", args.Input.Username)
		return nil, clientError(ctx, "login", err)
	}
	if err := r.sessions.Login(ctx, u.ID); err != nil {
		return nil, clientError(ctx, "login", err)
	}
	return &userResolver{root: r, u: u}, nil
}

func (r *Resolver) Logout(ctx context.Context) (*logoutResolver, error) {
	if err := r.sessions.Logout(ctx); err != nil {
		return nil, clientError(ctx, "logout", err)
	}
	return &logoutResolver{message: "Logged out successfully"}, nil
}

func (r *Resolver) CreateTransaction(ctx context.Context, args struct{ Input createTransactionInput }) (*transactionResolver, error) {
	userID, err := session.RequireUser(ctx)
	if err != nil {
		return nil, clientError(ctx, "createTransaction", err)
	}
	in := args.Input
	amount, err := core.MoneyFromFloat(in.Amount)
	if err != nil {
		return nil, err
	}
	date, err := core.ParseDate(in.Date)
	if err != nil {
		return nil, err
	}
	t, err := r.transactions.Create(ctx, userID, services.TransactionInput{
		Description: in.Description,
		PaymentType: core.PaymentType(in.PaymentType),
		Category:    in.Category,
		Type:        core.TransactionType(in.Type),
		Amount:      amount,
		Location:    deref(in.Location),
		Date:        date,
	})
	if err != nil {
		return nil, clientError(ctx, "createTransaction", err)
	}
	return &transactionResolver{t: t}, nil
}

func (r *Resolver) UpdateTransaction(ctx context.Context, args struct{ Input updateTransactionInput }) (*transactionResolver, error) {
	userID, err := session.RequireUser(ctx)
	if err != nil {
		return nil, clientError(ctx, "updateTransaction", err)
	}
	in := args.Input
	patch := services.TransactionPatch{
		Description: in.Description,
		Category:    in.Category,
		Location:    in.Location,
	}
	if in.PaymentType != nil {
		p := core.PaymentType(*in.PaymentType)
		patch.PaymentType = &p
	}
	if in.Type != nil {
		typ := core.TransactionType(*in.Type)
		patch.Type = &typ
	}
	if in.Amount != nil {
		m, err := core.MoneyFromFloat(*in.Amount)
		if err != nil {
			return nil, err
		}
		patch.Amount = &m
	}
	if in.Date != nil {
		d, err := core.ParseDate(*in.Date)
		if err != nil {
			return nil, err
		}
		patch.Date = &d
	}

	t, err := r.transactions.Update(ctx, userID, string(in.TransactionID), patch)
	if err != nil {
		return nil, clientError(ctx, "updateTransaction", err)
	}
	return &transactionResolver{t: t}, nil
}

func (r *Resolver) DeleteTransaction(ctx context.Context, args struct{ TransactionID graphqlgo.ID }) (*transactionResolver, error) {
	userID, err := session.RequireUser(ctx)
	if err != nil {
		return nil, clientError(ctx, "deleteTransaction", err)
	}
	t, err := r.transactions.Delete(ctx, userID, string(args.TransactionID))
	if err != nil {
		return nil, clientError(ctx, "deleteTransaction", err)
	}
	return &transactionResolver{t: t}, nil
}

func (r *Resolver) CreateRecurringTemplate(ctx context.Context, args struct{ Input createTemplateInput }) (*templateResolver, error) {
	userID, err := session.RequireUser(ctx)
	if err != nil {
		return nil, clientError(ctx, "createRecurringTemplate", err)
	}
	in := args.Input
	amount, err := core.MoneyFromFloat(in.Amount)
	if err != nil {
		return nil, err
	}
	start, err := core.ParseDate(in.StartDate)
	if err != nil {
		return nil, err
	}
	var end core.Date
	if in.EndDate != nil && *in.EndDate != "" {
		if end, err = core.ParseDate(*in.EndDate); err != nil {
			return nil, err
		}
	}
	var maxOccurrences int
	if in.MaxOccurrences != nil {
		maxOccurrences = int(*in.MaxOccurrences)
	}

	t, err := r.templates.Create(ctx, userID, services.TemplateInput{
		Description:    in.Description,
		PaymentType:    core.PaymentType(in.PaymentType),
		Category:       in.Category,
		Type:           core.TransactionType(in.Type),
		Amount:         amount,
		Interval:       core.Interval(in.Interval),
		StartDate:      start,
		EndDate:        end,
		MaxOccurrences: maxOccurrences,
	})
	if err != nil {
		return nil, clientError(ctx, "createRecurringTemplate", err)
	}
	return &templateResolver{root: r, t: t}, nil
}

// UpdateRecurringTemplate edits a template's entry fields, end condition or
// active flag. The schedule itself cannot be moved.
func (r *Resolver) UpdateRecurringTemplate(ctx context.Context, args struct{ Input updateTemplateInput }) (*templateResolver, error) {
	userID, err := session.RequireUser(ctx)
	if err != nil {
		return nil, clientError(ctx, "updateRecurringTemplate", err)
	}
	in := args.Input
	patch := services.TemplatePatch{
		Description: in.Description,
		Category:    in.Category,
		Active:      in.Active,
	}
	if in.PaymentType != nil {
		p := core.PaymentType(*in.PaymentType)
		patch.PaymentType = &p
	}
	if in.Type != nil {
		typ := core.TransactionType(*in.Type)
		patch.Type = &typ
	}
	if in.Amount != nil {
		m, err := core.MoneyFromFloat(*in.Amount)
		if err != nil {
			return nil, err
		}
		patch.Amount = &m
	}
	if in.EndDate != nil {
		var end core.Date
		if *in.EndDate != "" {
			if end, err = core.ParseDate(*in.EndDate); err != nil {
				return nil, err
			}
		}
		patch.EndDate = &end
	}
	if in.MaxOccurrences != nil {
		n := int(*in.MaxOccurrences)
		patch.MaxOccurrences = &n
	}

	t, err := r.templates.Update(ctx, userID, string(in.TemplateID), patch)
	if err != nil {
		return nil, clientError(ctx, "updateRecurringTemplate", err)
	}
	return &templateResolver{root: r, t: t}, nil
}

// DeleteRecurringTemplate removes a template. Transactions it generated are
// kept.
func (r *Resolver) DeleteRecurringTemplate(ctx context.Context, args struct{ TemplateID graphqlgo.ID }) (*templateResolver, error) {
	userID, err := session.RequireUser(ctx)
	if err != nil {
		return nil, clientError(ctx, "deleteRecurringTemplate", err)
	}
	t, err := r.templates.Delete(ctx, userID, string(args.TemplateID))
	if err != nil {
		return nil, clientError(ctx, "deleteRecurringTemplate", err)
	}
	return &templateResolver{root: r, t: t}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
