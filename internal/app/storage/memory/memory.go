package memory

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vanitypay/vanitypay/internal/app/domain/account"
	"github.com/vanitypay/vanitypay/internal/app/domain/request"
	"github.com/vanitypay/vanitypay/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
// Misses are reported as sql.ErrNoRows to match the postgres store.
type Store struct {
	mu               sync.RWMutex
	nextID           int64
	accounts         map[string]account.Account
	accountsByHandle map[string]string
	requests         map[string]request.Request
	requestsByToken  map[string]string
}

var _ storage.AccountStore = (*Store)(nil)
var _ storage.RequestStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:           1,
		accounts:         make(map[string]account.Account),
		accountsByHandle: make(map[string]string),
		requests:         make(map[string]request.Request),
		requestsByToken:  make(map[string]string),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// AccountStore implementation -------------------------------------------------

func (s *Store) CreateAccount(_ context.Context, acct account.Account) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if acct.ID == "" {
		acct.ID = s.nextIDLocked()
	} else if _, exists := s.accounts[acct.ID]; exists {
		return account.Account{}, fmt.Errorf("payment account %s already exists", acct.ID)
	}
	if _, taken := s.accountsByHandle[acct.Handle]; taken {
		return account.Account{}, fmt.Errorf("handle %s already in use", acct.Handle)
	}

	now := time.Now().UTC()
	acct.CreatedAt = now
	acct.UpdatedAt = now
	acct.Metadata = cloneMap(acct.Metadata)

	s.accounts[acct.ID] = acct
	s.accountsByHandle[acct.Handle] = acct.ID
	return cloneAccount(acct), nil
}

func (s *Store) UpdateAccount(_ context.Context, acct account.Account) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.accounts[acct.ID]
	if !ok {
		return account.Account{}, sql.ErrNoRows
	}
	if id, taken := s.accountsByHandle[acct.Handle]; taken && id != acct.ID {
		return account.Account{}, fmt.Errorf("handle %s already in use", acct.Handle)
	}

	acct.OwnerID = original.OwnerID
	acct.CreatedAt = original.CreatedAt
	acct.UpdatedAt = time.Now().UTC()
	acct.Metadata = cloneMap(acct.Metadata)

	if original.Handle != acct.Handle {
		delete(s.accountsByHandle, original.Handle)
	}
	s.accounts[acct.ID] = acct
	s.accountsByHandle[acct.Handle] = acct.ID
	return cloneAccount(acct), nil
}

func (s *Store) GetAccount(_ context.Context, id string) (account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[id]
	if !ok {
		return account.Account{}, sql.ErrNoRows
	}
	return cloneAccount(acct), nil
}

func (s *Store) GetAccountByHandle(_ context.Context, handle string) (account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.accountsByHandle[handle]
	if !ok {
		return account.Account{}, sql.ErrNoRows
	}
	return cloneAccount(s.accounts[id]), nil
}

func (s *Store) ListAccounts(_ context.Context, ownerID string) ([]account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]account.Account, 0)
	for _, acct := range s.accounts {
		if ownerID == "" || acct.OwnerID == ownerID {
			result = append(result, cloneAccount(acct))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *Store) DeleteAccount(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return sql.ErrNoRows
	}
	delete(s.accounts, id)
	delete(s.accountsByHandle, acct.Handle)

	// Detach linked requests, mirroring ON DELETE SET NULL in the schema.
	for rid, req := range s.requests {
		if req.AccountID == id {
			req.AccountID = ""
			s.requests[rid] = req
		}
	}
	return nil
}

// RequestStore implementation -------------------------------------------------

func (s *Store) CreateRequest(_ context.Context, req request.Request) (request.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.ID == "" {
		req.ID = s.nextIDLocked()
	} else if _, exists := s.requests[req.ID]; exists {
		return request.Request{}, fmt.Errorf("payment request %s already exists", req.ID)
	}
	if _, taken := s.requestsByToken[req.Token]; taken {
		return request.Request{}, fmt.Errorf("token already in use")
	}

	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now
	req.Metadata = cloneMap(req.Metadata)
	req.ExpiresAt = cloneTime(req.ExpiresAt)
	req.PaidAt = cloneTime(req.PaidAt)

	s.requests[req.ID] = req
	s.requestsByToken[req.Token] = req.ID
	return cloneRequest(req), nil
}

func (s *Store) UpdateRequest(_ context.Context, req request.Request) (request.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.requests[req.ID]
	if !ok {
		return request.Request{}, sql.ErrNoRows
	}

	// Identity fields never change once issued.
	req.UUID = original.UUID
	req.Token = original.Token
	req.OwnerID = original.OwnerID
	req.CreatedAt = original.CreatedAt
	req.UpdatedAt = time.Now().UTC()
	req.Metadata = cloneMap(req.Metadata)
	req.ExpiresAt = cloneTime(req.ExpiresAt)
	req.PaidAt = cloneTime(req.PaidAt)

	s.requests[req.ID] = req
	return cloneRequest(req), nil
}

func (s *Store) GetRequest(_ context.Context, id string) (request.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requests[id]
	if !ok {
		return request.Request{}, sql.ErrNoRows
	}
	return cloneRequest(req), nil
}

func (s *Store) GetRequestByToken(_ context.Context, token string) (request.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.requestsByToken[token]
	if !ok {
		return request.Request{}, sql.ErrNoRows
	}
	return cloneRequest(s.requests[id]), nil
}

func (s *Store) TokenExists(_ context.Context, token string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.requestsByToken[token]
	return ok, nil
}

func (s *Store) ListRequests(_ context.Context, ownerID string) ([]request.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]request.Request, 0)
	for _, req := range s.requests {
		if ownerID == "" || req.OwnerID == ownerID {
			result = append(result, cloneRequest(req))
		}
	}
	// Newest first, matching the postgres store ordering.
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *Store) DeleteRequest(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return sql.ErrNoRows
	}
	delete(s.requests, id)
	delete(s.requestsByToken, req.Token)
	return nil
}

// Helpers ----------------------------------------------------------------------

func cloneMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneAccount(acct account.Account) account.Account {
	acct.Metadata = cloneMap(acct.Metadata)
	return acct
}

func cloneRequest(req request.Request) request.Request {
	req.Metadata = cloneMap(req.Metadata)
	req.ExpiresAt = cloneTime(req.ExpiresAt)
	req.PaidAt = cloneTime(req.PaidAt)
	return req
}
