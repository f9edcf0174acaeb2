package postgres

import (
	"context"
	"os"
	"testing"

	_ "github.com/lib/pq"

	"github.com/vanitypay/vanitypay/internal/app/domain/account"
	"github.com/vanitypay/vanitypay/internal/app/domain/request"
	"github.com/vanitypay/vanitypay/internal/database"
)

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	db, err := database.Open(database.Config{Driver: "postgres", DSN: dsn})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	store := New(db)
	ctx := context.Background()

	acct, err := store.CreateAccount(ctx, account.Account{
		OwnerID: "it-owner",
		Handle:  "it-handle",
		Type:    account.TypeVenmo,
		Status:  account.StatusActive,
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	t.Cleanup(func() { _ = store.DeleteAccount(ctx, acct.ID) })

	byHandle, err := store.GetAccountByHandle(ctx, "it-handle")
	if err != nil {
		t.Fatalf("get by handle: %v", err)
	}
	if byHandle.ID != acct.ID {
		t.Fatalf("handle lookup resolved wrong account")
	}

	req, err := store.CreateRequest(ctx, request.Request{
		OwnerID:   "it-owner",
		UUID:      "it-uuid",
		AccountID: acct.ID,
		Token:     "it-token",
		Currency:  "USD",
		Amount:    9.99,
		Status:    request.StatusPending,
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	t.Cleanup(func() { _ = store.DeleteRequest(ctx, req.ID) })

	exists, err := store.TokenExists(ctx, "it-token")
	if err != nil || !exists {
		t.Fatalf("token should exist: %v %v", exists, err)
	}

	byToken, err := store.GetRequestByToken(ctx, "it-token")
	if err != nil {
		t.Fatalf("get by token: %v", err)
	}
	if byToken.ID != req.ID || byToken.AccountID != acct.ID {
		t.Fatalf("token lookup resolved wrong request")
	}

	// Deleting the account detaches the link (ON DELETE SET NULL).
	if err := store.DeleteAccount(ctx, acct.ID); err != nil {
		t.Fatalf("delete account: %v", err)
	}
	detached, err := store.GetRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("get detached request: %v", err)
	}
	if detached.AccountID != "" {
		t.Fatalf("expected link to be cleared, still %q", detached.AccountID)
	}
}
