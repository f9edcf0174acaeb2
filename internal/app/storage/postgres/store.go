package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/vanitypay/vanitypay/internal/app/domain/account"
	"github.com/vanitypay/vanitypay/internal/app/domain/request"
	"github.com/vanitypay/vanitypay/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.AccountStore = (*Store)(nil)
var _ storage.RequestStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// --- AccountStore -----------------------------------------------------------

const accountColumns = `id, owner_id, handle, type, name, description, status, metadata, created_at, updated_at`

func (s *Store) CreateAccount(ctx context.Context, acct account.Account) (account.Account, error) {
	if acct.ID == "" {
		acct.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	acct.CreatedAt = now
	acct.UpdatedAt = now

	metadataJSON, err := json.Marshal(acct.Metadata)
	if err != nil {
		return account.Account{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO payment_accounts (id, owner_id, handle, type, name, description, status, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, acct.ID, acct.OwnerID, acct.Handle, acct.Type, acct.Name, acct.Description, acct.Status, metadataJSON, acct.CreatedAt, acct.UpdatedAt)
	if err != nil {
		return account.Account{}, err
	}
	return acct, nil
}

func (s *Store) UpdateAccount(ctx context.Context, acct account.Account) (account.Account, error) {
	existing, err := s.GetAccount(ctx, acct.ID)
	if err != nil {
		return account.Account{}, err
	}

	acct.OwnerID = existing.OwnerID
	acct.CreatedAt = existing.CreatedAt
	acct.UpdatedAt = time.Now().UTC()

	metadataJSON, err := json.Marshal(acct.Metadata)
	if err != nil {
		return account.Account{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE payment_accounts
		SET handle = $2, type = $3, name = $4, description = $5, status = $6, metadata = $7, updated_at = $8
		WHERE id = $1
	`, acct.ID, acct.Handle, acct.Type, acct.Name, acct.Description, acct.Status, metadataJSON, acct.UpdatedAt)
	if err != nil {
		return account.Account{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return account.Account{}, sql.ErrNoRows
	}
	return acct, nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (account.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM payment_accounts
		WHERE id = $1
	`, id)
	return scanAccount(row)
}

func (s *Store) GetAccountByHandle(ctx context.Context, handle string) (account.Account, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+`
		FROM payment_accounts
		WHERE handle = $1
	`, handle)
	return scanAccount(row)
}

func (s *Store) ListAccounts(ctx context.Context, ownerID string) ([]account.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+accountColumns+`
		FROM payment_accounts
		WHERE ($1 = '' OR owner_id = $1)
		ORDER BY created_at
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []account.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, acct)
	}
	return result, rows.Err()
}

func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM payment_accounts WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (account.Account, error) {
	var (
		acct        account.Account
		metadataRaw []byte
	)
	if err := row.Scan(&acct.ID, &acct.OwnerID, &acct.Handle, &acct.Type, &acct.Name,
		&acct.Description, &acct.Status, &metadataRaw, &acct.CreatedAt, &acct.UpdatedAt); err != nil {
		return account.Account{}, err
	}
	if len(metadataRaw) > 0 {
		_ = json.Unmarshal(metadataRaw, &acct.Metadata)
	}
	return acct, nil
}

// --- RequestStore -----------------------------------------------------------

const requestColumns = `id, uuid, owner_id, payment_account_id, title, description, currency, amount, token, status, expires_at, paid_at, metadata, created_at, updated_at`

func (s *Store) CreateRequest(ctx context.Context, req request.Request) (request.Request, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now

	metadataJSON, err := json.Marshal(req.Metadata)
	if err != nil {
		return request.Request{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO payment_requests (id, uuid, owner_id, payment_account_id, title, description, currency, amount, token, status, expires_at, paid_at, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, req.ID, req.UUID, req.OwnerID, nullString(req.AccountID), req.Title, req.Description,
		req.Currency, req.Amount, req.Token, req.Status, nullTime(req.ExpiresAt), nullTime(req.PaidAt),
		metadataJSON, req.CreatedAt, req.UpdatedAt)
	if err != nil {
		return request.Request{}, err
	}
	return req, nil
}

func (s *Store) UpdateRequest(ctx context.Context, req request.Request) (request.Request, error) {
	existing, err := s.GetRequest(ctx, req.ID)
	if err != nil {
		return request.Request{}, err
	}

	// Identity fields never change once issued.
	req.UUID = existing.UUID
	req.Token = existing.Token
	req.OwnerID = existing.OwnerID
	req.CreatedAt = existing.CreatedAt
	req.UpdatedAt = time.Now().UTC()

	metadataJSON, err := json.Marshal(req.Metadata)
	if err != nil {
		return request.Request{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE payment_requests
		SET payment_account_id = $2, title = $3, description = $4, currency = $5, amount = $6,
			status = $7, expires_at = $8, paid_at = $9, metadata = $10, updated_at = $11
		WHERE id = $1
	`, req.ID, nullString(req.AccountID), req.Title, req.Description, req.Currency, req.Amount,
		req.Status, nullTime(req.ExpiresAt), nullTime(req.PaidAt), metadataJSON, req.UpdatedAt)
	if err != nil {
		return request.Request{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return request.Request{}, sql.ErrNoRows
	}
	return req, nil
}

func (s *Store) GetRequest(ctx context.Context, id string) (request.Request, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+requestColumns+`
		FROM payment_requests
		WHERE id = $1
	`, id)
	return scanRequest(row)
}

func (s *Store) GetRequestByToken(ctx context.Context, token string) (request.Request, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+requestColumns+`
		FROM payment_requests
		WHERE token = $1
	`, token)
	return scanRequest(row)
}

func (s *Store) TokenExists(ctx context.Context, token string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM payment_requests WHERE token = $1)
	`, token).Scan(&exists)
	return exists, err
}

func (s *Store) ListRequests(ctx context.Context, ownerID string) ([]request.Request, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+requestColumns+`
		FROM payment_requests
		WHERE ($1 = '' OR owner_id = $1)
		ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []request.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, req)
	}
	return result, rows.Err()
}

func (s *Store) DeleteRequest(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM payment_requests WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func scanRequest(row rowScanner) (request.Request, error) {
	var (
		req         request.Request
		accountID   sql.NullString
		expiresAt   sql.NullTime
		paidAt      sql.NullTime
		metadataRaw []byte
	)
	if err := row.Scan(&req.ID, &req.UUID, &req.OwnerID, &accountID, &req.Title, &req.Description,
		&req.Currency, &req.Amount, &req.Token, &req.Status, &expiresAt, &paidAt,
		&metadataRaw, &req.CreatedAt, &req.UpdatedAt); err != nil {
		return request.Request{}, err
	}
	if accountID.Valid {
		req.AccountID = accountID.String
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		req.ExpiresAt = &t
	}
	if paidAt.Valid {
		t := paidAt.Time
		req.PaidAt = &t
	}
	if len(metadataRaw) > 0 {
		_ = json.Unmarshal(metadataRaw, &req.Metadata)
	}
	return req, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
