package usecase

import (
	"context"
	"errors"
	"strings"

	"commission-intake/internal/domain"
)

const defaultCommissionTitle = "Custom Commission"

// RecordStore is the persistence consumed by order finalization and the
// maker lookups.
type RecordStore interface {
	FindCustomerByEmail(ctx context.Context, email string) (domain.Customer, bool, error)
	CreateCustomer(ctx context.Context, in domain.NewCustomer) (domain.Customer, error)
	CreateCommission(ctx context.Context, in domain.NewCommission) (domain.Commission, error)
	GetMakerByHandle(ctx context.Context, handle string) (domain.Maker, bool, error)
	ListMakerCommissions(ctx context.Context, makerID string, limit int) ([]domain.Commission, error)
}

type OrderInput struct {
	MakerID     string
	Email       string
	Name        string
	Title       string
	Description string
	Transcript  []domain.Message
}

// Finalizer turns accumulated intake state into a persisted commission.
type Finalizer struct {
	store RecordStore
}

func NewFinalizer(store RecordStore) (*Finalizer, error) {
	if store == nil {
		return nil, errors.New("usecase: record store must not be nil")
	}
	return &Finalizer{store: store}, nil
}

// PlaceOrder validates the contact fields, resolves the customer by email
// and creates one pending commission. Customer lookup and creation are not
// atomic; a customer created before a failed commission write is kept.
func (f *Finalizer) PlaceOrder(ctx context.Context, in OrderInput) (domain.Commission, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" {
		return domain.Commission{}, newError(ErrorMissingEmail, "missing_email", nil)
	}
	name := joinFields(in.Name)
	if name == "" {
		return domain.Commission{}, newError(ErrorMissingName, "missing_name", nil)
	}
	makerID := strings.TrimSpace(in.MakerID)
	if makerID == "" {
		return domain.Commission{}, newError(ErrorInvalidInput, "missing_maker_id", nil)
	}

	customer, found, err := f.store.FindCustomerByEmail(ctx, email)
	if err != nil {
		return domain.Commission{}, newError(ErrorStore, "customer_lookup_error", err)
	}
	if !found {
		customer, err = f.store.CreateCustomer(ctx, domain.NewCustomer{Name: name, Email: email})
		if err != nil {
			return domain.Commission{}, newError(ErrorStore, "customer_create_error", err)
		}
	}

	title := joinFields(in.Title)
	if title == "" {
		title = defaultCommissionTitle
	}
	description := in.Description
	if len(in.Transcript) > 0 {
		description = customerTurns(in.Transcript)
	}

	commission, err := f.store.CreateCommission(ctx, domain.NewCommission{
		MakerID:     makerID,
		CustomerID:  customer.ID,
		Title:       title,
		Description: description,
		Status:      domain.StatusPending,
		ChatHistory: append([]domain.Message(nil), in.Transcript...),
	})
	if err != nil {
		return domain.Commission{}, newError(ErrorStore, "commission_create_error", err)
	}
	return commission, nil
}

func customerTurns(transcript []domain.Message) string {
	var lines []string
	for _, m := range transcript {
		if m.Role == domain.RoleCustomer {
			lines = append(lines, m.Content)
		}
	}
	return strings.Join(lines, "\n")
}
