package memory

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/vanitypay/vanitypay/internal/app/domain/account"
	"github.com/vanitypay/vanitypay/internal/app/domain/request"
)

func TestAccountHandleIndex(t *testing.T) {
	store := New()
	ctx := context.Background()

	acct, err := store.CreateAccount(ctx, account.Account{
		OwnerID: "alice", Handle: "coffee", Type: account.TypeVenmo, Status: account.StatusActive,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	byHandle, err := store.GetAccountByHandle(ctx, "coffee")
	if err != nil {
		t.Fatalf("get by handle: %v", err)
	}
	if byHandle.ID != acct.ID {
		t.Fatalf("handle index resolved wrong account")
	}

	if _, err := store.CreateAccount(ctx, account.Account{
		OwnerID: "bob", Handle: "coffee", Type: account.TypeZelle,
	}); err == nil {
		t.Fatal("duplicate handle must be rejected")
	}

	// Renaming the handle moves the index entry.
	acct.Handle = "tea"
	if _, err := store.UpdateAccount(ctx, acct); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := store.GetAccountByHandle(ctx, "coffee"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("stale handle should be gone, got %v", err)
	}
	if _, err := store.GetAccountByHandle(ctx, "tea"); err != nil {
		t.Fatalf("new handle should resolve: %v", err)
	}

	// Deleting the account frees the handle.
	if err := store.DeleteAccount(ctx, acct.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetAccountByHandle(ctx, "tea"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("deleted handle should be gone, got %v", err)
	}
}

func TestRequestTokenIndex(t *testing.T) {
	store := New()
	ctx := context.Background()

	req, err := store.CreateRequest(ctx, request.Request{
		OwnerID: "alice", UUID: "u1", Token: "t1", Amount: 5, Status: request.StatusPending,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	exists, err := store.TokenExists(ctx, "t1")
	if err != nil || !exists {
		t.Fatalf("expected token to exist, got %v %v", exists, err)
	}
	exists, err = store.TokenExists(ctx, "t2")
	if err != nil || exists {
		t.Fatalf("expected token to be free, got %v %v", exists, err)
	}

	byToken, err := store.GetRequestByToken(ctx, "t1")
	if err != nil {
		t.Fatalf("get by token: %v", err)
	}
	if byToken.ID != req.ID {
		t.Fatalf("token index resolved wrong request")
	}

	if err := store.DeleteRequest(ctx, req.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if exists, _ := store.TokenExists(ctx, "t1"); exists {
		t.Fatal("deleted token should be free")
	}
}

func TestUpdatePreservesIdentity(t *testing.T) {
	store := New()
	ctx := context.Background()

	req, err := store.CreateRequest(ctx, request.Request{
		OwnerID: "alice", UUID: "u1", Token: "t1", Amount: 5, Status: request.StatusPending,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	req.UUID = "forged"
	req.Token = "forged"
	req.OwnerID = "mallory"
	req.Amount = 6
	updated, err := store.UpdateRequest(ctx, req)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.UUID != "u1" || updated.Token != "t1" || updated.OwnerID != "alice" {
		t.Fatalf("identity fields must survive updates: %+v", updated)
	}
	if updated.Amount != 6 {
		t.Fatalf("mutable field not updated")
	}
}

func TestDeleteAccountDetachesRequests(t *testing.T) {
	store := New()
	ctx := context.Background()

	acct, err := store.CreateAccount(ctx, account.Account{
		OwnerID: "alice", Handle: "coffee", Type: account.TypeVenmo, Status: account.StatusActive,
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	linked, err := store.CreateRequest(ctx, request.Request{
		OwnerID: "alice", UUID: "u1", Token: "t1", AccountID: acct.ID, Amount: 5, Status: request.StatusPending,
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	other, err := store.CreateRequest(ctx, request.Request{
		OwnerID: "alice", UUID: "u2", Token: "t2", Amount: 5, Status: request.StatusPending,
	})
	if err != nil {
		t.Fatalf("create unlinked request: %v", err)
	}

	if err := store.DeleteAccount(ctx, acct.ID); err != nil {
		t.Fatalf("delete account: %v", err)
	}

	// Same behavior as ON DELETE SET NULL in the postgres schema.
	got, err := store.GetRequest(ctx, linked.ID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if got.AccountID != "" {
		t.Fatalf("expected link to be detached, still %q", got.AccountID)
	}
	if got.Token != "t1" || got.Status != request.StatusPending {
		t.Fatalf("detaching must not touch other fields: %+v", got)
	}
	if got, _ := store.GetRequest(ctx, other.ID); got.AccountID != "" {
		t.Fatalf("unlinked request must be untouched: %+v", got)
	}
}

func TestMissesReturnNoRows(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.GetAccount(ctx, "nope"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
	if _, err := store.GetRequest(ctx, "nope"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
	if err := store.DeleteAccount(ctx, "nope"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
	if err := store.DeleteRequest(ctx, "nope"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}
