// Package accounts manages payment account registration: the external payout
// handles a user exposes on their public pay page.
package accounts

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/vanitypay/vanitypay/internal/app/core/service"
	"github.com/vanitypay/vanitypay/internal/app/domain/account"
	"github.com/vanitypay/vanitypay/internal/app/metrics"
	"github.com/vanitypay/vanitypay/internal/app/storage"
	"github.com/vanitypay/vanitypay/pkg/logger"
)

const (
	maxHandleLen      = 255
	maxNameLen        = 255
	maxDescriptionLen = 1000
)

// Service manages payment accounts.
type Service struct {
	store storage.AccountStore
	log   *logger.Logger
}

// New constructs an account service.
func New(store storage.AccountStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("accounts")
	}
	return &Service{store: store, log: log}
}

// Update carries the mutable account fields. Nil fields are left unchanged.
type Update struct {
	Handle      *string
	Type        *string
	Name        *string
	Description *string
	Status      *string
	Metadata    map[string]string
}

// Create registers a payment account for the owner. The whole input is
// validated before anything is written; on failure every invalid field is
// reported.
func (s *Service) Create(ctx context.Context, ownerID string, acct account.Account) (account.Account, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return account.Account{}, service.RequiredError("owner_id")
	}

	acct.OwnerID = ownerID
	acct.Handle = strings.TrimSpace(acct.Handle)
	acct.Name = strings.TrimSpace(acct.Name)
	acct.Description = strings.TrimSpace(acct.Description)
	if acct.Status == "" {
		acct.Status = account.StatusActive
	}

	var verrs service.ValidationErrors
	s.validateFields(ctx, &verrs, acct, "")
	if err := verrs.Err(); err != nil {
		return account.Account{}, err
	}

	created, err := s.store.CreateAccount(ctx, acct)
	if err != nil {
		return account.Account{}, err
	}

	metrics.RecordAccountCreated()
	s.log.WithField("account_id", created.ID).
		WithField("owner_id", ownerID).
		WithField("handle", created.Handle).
		Info("payment account created")
	return created, nil
}

// Get returns an account if it belongs to the caller.
func (s *Service) Get(ctx context.Context, callerID, id string) (account.Account, error) {
	acct, err := s.store.GetAccount(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return account.Account{}, service.NewNotFoundError("payment account", id)
		}
		return account.Account{}, err
	}
	if err := service.EnsureOwnership(acct.OwnerID, callerID, "payment account", id); err != nil {
		return account.Account{}, err
	}
	return acct, nil
}

// List returns the caller's accounts, oldest first.
func (s *Service) List(ctx context.Context, callerID string) ([]account.Account, error) {
	if strings.TrimSpace(callerID) == "" {
		return nil, service.RequiredError("owner_id")
	}
	return s.store.ListAccounts(ctx, callerID)
}

// UpdateAccount applies the given changes to an account the caller owns.
func (s *Service) UpdateAccount(ctx context.Context, callerID, id string, upd Update) (account.Account, error) {
	acct, err := s.Get(ctx, callerID, id)
	if err != nil {
		return account.Account{}, err
	}

	if upd.Handle != nil {
		acct.Handle = strings.TrimSpace(*upd.Handle)
	}
	if upd.Type != nil {
		acct.Type = account.Type(strings.TrimSpace(*upd.Type))
	}
	if upd.Name != nil {
		acct.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.Description != nil {
		acct.Description = strings.TrimSpace(*upd.Description)
	}
	if upd.Status != nil {
		acct.Status = account.Status(strings.TrimSpace(*upd.Status))
	}
	if upd.Metadata != nil {
		acct.Metadata = upd.Metadata
	}

	var verrs service.ValidationErrors
	s.validateFields(ctx, &verrs, acct, acct.ID)
	if err := verrs.Err(); err != nil {
		return account.Account{}, err
	}

	updated, err := s.store.UpdateAccount(ctx, acct)
	if err != nil {
		return account.Account{}, err
	}

	s.log.WithField("account_id", updated.ID).
		WithField("owner_id", callerID).
		Info("payment account updated")
	return updated, nil
}

// Delete removes an account the caller owns. Linked payment requests keep
// working through their tokens; the link is detached by the store.
func (s *Service) Delete(ctx context.Context, callerID, id string) error {
	if _, err := s.Get(ctx, callerID, id); err != nil {
		return err
	}
	if err := s.store.DeleteAccount(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return service.NewNotFoundError("payment account", id)
		}
		return err
	}
	s.log.WithField("account_id", id).
		WithField("owner_id", callerID).
		Info("payment account deleted")
	return nil
}

// PublicPage is the view data behind GET /pay/{handle}: the resolved account
// plus every active account of the same owner.
type PublicPage struct {
	Handle   string            `json:"handle"`
	OwnerID  string            `json:"owner_id"`
	Account  account.Account   `json:"account"`
	Accounts []account.Account `json:"accounts"`
}

// ResolvePublic resolves a public pay page by handle. Anything short of an
// active account resolves to the same not-found error; existence of inactive
// or suspended handles is never revealed.
func (s *Service) ResolvePublic(ctx context.Context, handle string) (PublicPage, error) {
	handle = strings.TrimSpace(handle)
	acct, err := s.store.GetAccountByHandle(ctx, handle)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PublicPage{}, service.NewNotFoundError("pay page", handle)
		}
		return PublicPage{}, err
	}
	if acct.Status != account.StatusActive {
		return PublicPage{}, service.NewNotFoundError("pay page", handle)
	}

	siblings, err := s.store.ListAccounts(ctx, acct.OwnerID)
	if err != nil {
		return PublicPage{}, err
	}
	active := make([]account.Account, 0, len(siblings))
	for _, a := range siblings {
		if a.Status == account.StatusActive {
			active = append(active, a)
		}
	}

	return PublicPage{
		Handle:   acct.Handle,
		OwnerID:  acct.OwnerID,
		Account:  acct,
		Accounts: active,
	}, nil
}

// validateFields records every invalid field. selfID is the account being
// updated, so its own handle does not count as taken.
func (s *Service) validateFields(ctx context.Context, verrs *service.ValidationErrors, acct account.Account, selfID string) {
	switch {
	case acct.Handle == "":
		verrs.AddRequired("handle")
	case len(acct.Handle) > maxHandleLen:
		verrs.Add("handle", "must be at most 255 characters")
	default:
		existing, err := s.store.GetAccountByHandle(ctx, acct.Handle)
		if err == nil && existing.ID != selfID {
			verrs.Add("handle", "has already been taken")
		} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
			verrs.Add("handle", "could not be verified")
		}
	}

	switch {
	case acct.Type == "":
		verrs.AddRequired("type")
	case !account.ValidType(acct.Type):
		verrs.Add("type", "must be one of venmo, zelle, paypal, cash_app")
	}

	if len(acct.Name) > maxNameLen {
		verrs.Add("name", "must be at most 255 characters")
	}
	if len(acct.Description) > maxDescriptionLen {
		verrs.Add("description", "must be at most 1000 characters")
	}
	if !account.ValidStatus(acct.Status) {
		verrs.Add("status", "must be one of active, inactive, suspended")
	}
}
