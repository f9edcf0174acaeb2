// Package requests manages payment requests and their public share links.
package requests

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vanitypay/vanitypay/internal/app/core/service"
	"github.com/vanitypay/vanitypay/internal/app/domain/account"
	"github.com/vanitypay/vanitypay/internal/app/domain/request"
	"github.com/vanitypay/vanitypay/internal/app/metrics"
	"github.com/vanitypay/vanitypay/internal/app/storage"
	"github.com/vanitypay/vanitypay/pkg/logger"
)

const (
	maxTitleLen = 255
	minAmount   = 0.01
	maxAmount   = 99999999.99

	// maxTokenAttempts bounds the generate-check-retry loop. With a 62^64
	// token space a single retry is already extraordinary.
	maxTokenAttempts = 10
)

const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Service manages payment requests.
type Service struct {
	accounts storage.AccountStore
	store    storage.RequestStore
	log      *logger.Logger
}

// New constructs a payment request service.
func New(accounts storage.AccountStore, store storage.RequestStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("requests")
	}
	return &Service{accounts: accounts, store: store, log: log}
}

// Update carries the mutable request fields. Nil fields are left unchanged.
// UUID, token, owner and paid_at are not settable; paid_at follows status.
type Update struct {
	AccountID   *string
	Title       *string
	Description *string
	Currency    *string
	Amount      *float64
	Status      *string
	ExpiresAt   *time.Time
	ClearExpiry bool
	Metadata    map[string]string
}

// Create validates and stores a new payment request for the owner, issuing
// its permanent uuid and share token.
func (s *Service) Create(ctx context.Context, ownerID string, req request.Request) (request.Request, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return request.Request{}, service.RequiredError("owner_id")
	}

	req.OwnerID = ownerID
	req.Title = strings.TrimSpace(req.Title)
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	if req.Currency == "" {
		req.Currency = request.DefaultCurrency
	}
	if req.Status == "" {
		req.Status = request.StatusPending
	}

	var verrs service.ValidationErrors
	s.validateFields(ctx, &verrs, req)
	if err := verrs.Err(); err != nil {
		return request.Request{}, err
	}

	req.UUID = uuid.NewString()
	token, err := s.issueToken(ctx)
	if err != nil {
		return request.Request{}, err
	}
	req.Token = token

	now := time.Now().UTC()
	req.PaidAt = nil
	if req.Status == request.StatusPaid {
		req.PaidAt = &now
	}

	created, err := s.store.CreateRequest(ctx, req)
	if err != nil {
		return request.Request{}, err
	}

	metrics.RecordRequestCreated()
	metrics.RecordStatusTransition(string(created.Status))
	s.log.WithField("request_id", created.ID).
		WithField("owner_id", ownerID).
		WithField("status", string(created.Status)).
		Info("payment request created")
	return created, nil
}

// Get returns a request if it belongs to the caller.
func (s *Service) Get(ctx context.Context, callerID, id string) (request.Request, error) {
	req, err := s.store.GetRequest(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return request.Request{}, service.NewNotFoundError("payment request", id)
		}
		return request.Request{}, err
	}
	if err := service.EnsureOwnership(req.OwnerID, callerID, "payment request", id); err != nil {
		return request.Request{}, err
	}
	return req, nil
}

// List returns the caller's requests, newest first.
func (s *Service) List(ctx context.Context, callerID string) ([]request.Request, error) {
	if strings.TrimSpace(callerID) == "" {
		return nil, service.RequiredError("owner_id")
	}
	return s.store.ListRequests(ctx, callerID)
}

// UpdateRequest applies the given changes to a request the caller owns. The
// uuid and token survive any update; paid_at is recomputed from the status
// transition and never taken from the caller.
func (s *Service) UpdateRequest(ctx context.Context, callerID, id string, upd Update) (request.Request, error) {
	req, err := s.Get(ctx, callerID, id)
	if err != nil {
		return request.Request{}, err
	}
	prevStatus := req.Status

	if upd.AccountID != nil {
		req.AccountID = strings.TrimSpace(*upd.AccountID)
	}
	if upd.Title != nil {
		req.Title = strings.TrimSpace(*upd.Title)
	}
	if upd.Description != nil {
		req.Description = *upd.Description
	}
	if upd.Currency != nil {
		req.Currency = strings.ToUpper(strings.TrimSpace(*upd.Currency))
	}
	if upd.Amount != nil {
		req.Amount = *upd.Amount
	}
	if upd.Status != nil {
		req.Status = request.Status(strings.ToLower(strings.TrimSpace(*upd.Status)))
	}
	if upd.ClearExpiry {
		req.ExpiresAt = nil
	} else if upd.ExpiresAt != nil {
		t := upd.ExpiresAt.UTC()
		req.ExpiresAt = &t
	}
	if upd.Metadata != nil {
		req.Metadata = upd.Metadata
	}

	var verrs service.ValidationErrors
	s.validateFields(ctx, &verrs, req)
	if err := verrs.Err(); err != nil {
		return request.Request{}, err
	}

	applyPaidAt(&req, prevStatus)

	updated, err := s.store.UpdateRequest(ctx, req)
	if err != nil {
		return request.Request{}, err
	}

	if updated.Status != prevStatus {
		metrics.RecordStatusTransition(string(updated.Status))
	}
	s.log.WithField("request_id", updated.ID).
		WithField("owner_id", callerID).
		WithField("status", string(updated.Status)).
		Info("payment request updated")
	return updated, nil
}

// Delete removes a request the caller owns.
func (s *Service) Delete(ctx context.Context, callerID, id string) error {
	if _, err := s.Get(ctx, callerID, id); err != nil {
		return err
	}
	if err := s.store.DeleteRequest(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return service.NewNotFoundError("payment request", id)
		}
		return err
	}
	s.log.WithField("request_id", id).
		WithField("owner_id", callerID).
		Info("payment request deleted")
	return nil
}

// PublicPayment is the view data behind GET /pay/{handle}/{token}: the
// resolved request plus the owner's active accounts for paying it.
type PublicPayment struct {
	Request  request.Request   `json:"request"`
	Account  account.Account   `json:"account"`
	Accounts []account.Account `json:"accounts"`
	Expired  bool              `json:"expired"`
}

// ResolvePublic resolves a share link. The token must match a request and the
// handle must be an active account of that request's owner; every miss yields
// the same not-found error so link guessing learns nothing.
func (s *Service) ResolvePublic(ctx context.Context, handle, token string) (PublicPayment, error) {
	notFound := service.NewNotFoundError("payment request", "")

	req, err := s.store.GetRequestByToken(ctx, strings.TrimSpace(token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PublicPayment{}, notFound
		}
		return PublicPayment{}, err
	}

	acct, err := s.accounts.GetAccountByHandle(ctx, strings.TrimSpace(handle))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PublicPayment{}, notFound
		}
		return PublicPayment{}, err
	}
	if acct.Status != account.StatusActive || acct.OwnerID != req.OwnerID {
		return PublicPayment{}, notFound
	}

	siblings, err := s.accounts.ListAccounts(ctx, req.OwnerID)
	if err != nil {
		return PublicPayment{}, err
	}
	active := make([]account.Account, 0, len(siblings))
	for _, a := range siblings {
		if a.Status == account.StatusActive {
			active = append(active, a)
		}
	}

	return PublicPayment{
		Request:  req,
		Account:  acct,
		Accounts: active,
		Expired:  req.Expired(time.Now().UTC()),
	}, nil
}

// issueToken generates a share token, retrying on the rare collision with an
// existing request.
func (s *Service) issueToken(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		token, err := generateToken()
		if err != nil {
			return "", err
		}
		exists, err := s.store.TokenExists(ctx, token)
		if err != nil {
			return "", err
		}
		if !exists {
			return token, nil
		}
		metrics.RecordTokenRetry()
		s.log.WithField("attempt", attempt+1).Warn("share token collision, regenerating")
	}
	return "", fmt.Errorf("could not issue a unique share token after %d attempts", maxTokenAttempts)
}

// generateToken returns 64 characters drawn uniformly from the alphanumeric
// alphabet. Bytes outside the largest multiple of 62 are rejected so no
// character is more likely than another.
func generateToken() (string, error) {
	const limit = byte(len(tokenAlphabet) * 4) // 248
	out := make([]byte, 0, request.TokenLength)
	buf := make([]byte, request.TokenLength)
	for len(out) < request.TokenLength {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, tokenAlphabet[int(b)%len(tokenAlphabet)])
			if len(out) == request.TokenLength {
				break
			}
		}
	}
	return string(out), nil
}

// applyPaidAt keeps paid_at in lockstep with status: stamped on entering paid,
// cleared on leaving it, untouched when paid stays paid.
func applyPaidAt(req *request.Request, prev request.Status) {
	switch {
	case req.Status == request.StatusPaid && prev != request.StatusPaid:
		now := time.Now().UTC()
		req.PaidAt = &now
	case req.Status != request.StatusPaid:
		req.PaidAt = nil
	}
}

// validateFields records every invalid field of the request.
func (s *Service) validateFields(ctx context.Context, verrs *service.ValidationErrors, req request.Request) {
	if len(req.Title) > maxTitleLen {
		verrs.Add("title", "must be at most 255 characters")
	}

	if len(req.Currency) != 3 {
		verrs.Add("currency", "must be exactly 3 characters")
	}

	switch {
	case req.Amount < minAmount:
		verrs.Add("amount", "must be at least 0.01")
	case req.Amount > maxAmount:
		verrs.Add("amount", "must be at most 99999999.99")
	case !twoDecimalPlaces(req.Amount):
		verrs.Add("amount", "must have at most 2 decimal places")
	}

	if !request.ValidStatus(req.Status) {
		verrs.Add("status", "must be one of pending, paid, cancelled")
	}

	if req.AccountID != "" {
		acct, err := s.accounts.GetAccount(ctx, req.AccountID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			verrs.Add("payment_account_id", "is invalid")
		case err != nil:
			verrs.Add("payment_account_id", "could not be verified")
		case acct.OwnerID != req.OwnerID:
			verrs.Add("payment_account_id", "is invalid")
		}
	}
}

func twoDecimalPlaces(amount float64) bool {
	cents := amount * 100
	return math.Abs(cents-math.Round(cents)) < 1e-6
}
