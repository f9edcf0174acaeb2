// Package storage declares the persistence interfaces consumed by the
// application services. Implementations return sql.ErrNoRows for misses so
// services can classify them uniformly.
package storage

import (
	"context"

	"github.com/vanitypay/vanitypay/internal/app/domain/account"
	"github.com/vanitypay/vanitypay/internal/app/domain/request"
)

// AccountStore persists payment accounts.
type AccountStore interface {
	CreateAccount(ctx context.Context, acct account.Account) (account.Account, error)
	UpdateAccount(ctx context.Context, acct account.Account) (account.Account, error)
	GetAccount(ctx context.Context, id string) (account.Account, error)
	GetAccountByHandle(ctx context.Context, handle string) (account.Account, error)
	ListAccounts(ctx context.Context, ownerID string) ([]account.Account, error)
	DeleteAccount(ctx context.Context, id string) error
}

// RequestStore persists payment requests.
type RequestStore interface {
	CreateRequest(ctx context.Context, req request.Request) (request.Request, error)
	UpdateRequest(ctx context.Context, req request.Request) (request.Request, error)
	GetRequest(ctx context.Context, id string) (request.Request, error)
	GetRequestByToken(ctx context.Context, token string) (request.Request, error)
	// TokenExists reports whether any request already carries the token. Used
	// by the token issuer's collision check.
	TokenExists(ctx context.Context, token string) (bool, error)
	ListRequests(ctx context.Context, ownerID string) ([]request.Request, error)
	DeleteRequest(ctx context.Context, id string) error
}
