package requests

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vanitypay/vanitypay/internal/app/core/service"
	"github.com/vanitypay/vanitypay/internal/app/domain/account"
	"github.com/vanitypay/vanitypay/internal/app/domain/request"
	"github.com/vanitypay/vanitypay/internal/app/storage/memory"
)

func newTestService() (*Service, *memory.Store) {
	store := memory.New()
	return New(store, store, nil), store
}

func TestCreateIssuesIdentifiers(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	req, err := svc.Create(ctx, "alice", request.Request{Amount: 25.50})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if req.UUID == "" {
		t.Fatal("expected uuid to be assigned")
	}
	if len(req.Token) != request.TokenLength {
		t.Fatalf("expected %d-char token, got %d", request.TokenLength, len(req.Token))
	}
	for _, c := range req.Token {
		if !strings.ContainsRune(tokenAlphabet, c) {
			t.Fatalf("token contains non-alphanumeric character %q", c)
		}
	}
	if req.Currency != "USD" {
		t.Fatalf("expected default currency USD, got %q", req.Currency)
	}
	if req.Status != request.StatusPending {
		t.Fatalf("expected default status pending, got %s", req.Status)
	}
	if req.PaidAt != nil {
		t.Fatal("pending request must not carry paid_at")
	}

	// Tokens differ between requests.
	second, err := svc.Create(ctx, "alice", request.Request{Amount: 10})
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if second.Token == req.Token || second.UUID == req.UUID {
		t.Fatal("identifiers must be unique per request")
	}
}

func TestIdentifiersSurviveUpdate(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	req, err := svc.Create(ctx, "alice", request.Request{Amount: 5})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	title := "lunch"
	updated, err := svc.UpdateRequest(ctx, "alice", req.ID, Update{Title: &title})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.UUID != req.UUID {
		t.Fatalf("uuid changed on update: %s != %s", updated.UUID, req.UUID)
	}
	if updated.Token != req.Token {
		t.Fatalf("token changed on update")
	}
	if updated.Title != "lunch" {
		t.Fatalf("title not updated")
	}
}

func TestPaidAtTransitions(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	req, err := svc.Create(ctx, "alice", request.Request{Amount: 5})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	paid := "paid"
	afterPaid, err := svc.UpdateRequest(ctx, "alice", req.ID, Update{Status: &paid})
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if afterPaid.PaidAt == nil {
		t.Fatal("expected paid_at to be stamped on entering paid")
	}
	stamp := *afterPaid.PaidAt

	// paid -> paid leaves the stamp untouched.
	title := "drinks"
	again, err := svc.UpdateRequest(ctx, "alice", req.ID, Update{Title: &title, Status: &paid})
	if err != nil {
		t.Fatalf("update while paid: %v", err)
	}
	if again.PaidAt == nil || !again.PaidAt.Equal(stamp) {
		t.Fatalf("paid_at changed on paid->paid update: %v != %v", again.PaidAt, stamp)
	}

	// Leaving paid clears the stamp.
	pending := "pending"
	reverted, err := svc.UpdateRequest(ctx, "alice", req.ID, Update{Status: &pending})
	if err != nil {
		t.Fatalf("revert: %v", err)
	}
	if reverted.PaidAt != nil {
		t.Fatal("expected paid_at to clear when leaving paid")
	}

	// cancelled never carries a stamp.
	cancelled := "cancelled"
	c, err := svc.UpdateRequest(ctx, "alice", req.ID, Update{Status: &cancelled})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if c.PaidAt != nil {
		t.Fatal("cancelled request must not carry paid_at")
	}
}

func TestCreateAsPaidStampsPaidAt(t *testing.T) {
	svc, _ := newTestService()

	req, err := svc.Create(context.Background(), "alice", request.Request{Amount: 5, Status: request.StatusPaid})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if req.PaidAt == nil {
		t.Fatal("request created as paid must carry paid_at")
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	tests := []struct {
		name  string
		req   request.Request
		field string
	}{
		{"zero amount", request.Request{Amount: 0}, "amount"},
		{"negative amount", request.Request{Amount: -3}, "amount"},
		{"too many decimals", request.Request{Amount: 1.005}, "amount"},
		{"amount too large", request.Request{Amount: 100000000}, "amount"},
		{"bad currency", request.Request{Amount: 5, Currency: "DOLLARS"}, "currency"},
		{"bad status", request.Request{Amount: 5, Status: "archived"}, "status"},
		{"unknown account link", request.Request{Amount: 5, AccountID: "missing"}, "payment_account_id"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, "alice", tc.req)
			if err == nil {
				t.Fatal("expected validation error")
			}
			var verrs *service.ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("expected field errors, got %v", err)
			}
			if _, ok := verrs.Fields()[tc.field]; !ok {
				t.Fatalf("expected %s in field errors, got %v", tc.field, verrs.Fields())
			}
		})
	}
}

func TestValidationIsAtomic(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, "alice", request.Request{Amount: 0, Currency: "X"})
	if err == nil {
		t.Fatal("expected validation error")
	}
	var verrs *service.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected field errors, got %v", err)
	}
	if len(verrs.Fields()) != 2 {
		t.Fatalf("expected both fields reported, got %v", verrs.Fields())
	}

	// Nothing was written.
	list, err := store.ListRequests(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("rejected create must not persist, found %d rows", len(list))
	}
}

func TestAccountLinkOwnership(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	bobAcct, err := store.CreateAccount(ctx, account.Account{
		OwnerID: "bob", Handle: "bob-venmo", Type: account.TypeVenmo, Status: account.StatusActive,
	})
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}

	// Linking someone else's account is a field error, not a forbidden error:
	// to the caller the foreign account simply is not a valid choice.
	_, err = svc.Create(ctx, "alice", request.Request{Amount: 5, AccountID: bobAcct.ID})
	var verrs *service.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected field errors, got %v", err)
	}
	if _, ok := verrs.Fields()["payment_account_id"]; !ok {
		t.Fatalf("expected payment_account_id error, got %v", verrs.Fields())
	}
}

func TestMarkPaidAfterLinkedAccountDeleted(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	acct, err := store.CreateAccount(ctx, account.Account{
		OwnerID: "alice", Handle: "alice-venmo", Type: account.TypeVenmo, Status: account.StatusActive,
	})
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}
	req, err := svc.Create(ctx, "alice", request.Request{Amount: 5, AccountID: acct.ID})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := store.DeleteAccount(ctx, acct.ID); err != nil {
		t.Fatalf("delete account: %v", err)
	}

	// The store detached the link, so the request stays fully editable.
	paid := "paid"
	updated, err := svc.UpdateRequest(ctx, "alice", req.ID, Update{Status: &paid})
	if err != nil {
		t.Fatalf("marking paid after deleting the linked account: %v", err)
	}
	if updated.AccountID != "" {
		t.Fatalf("expected a detached link, got %q", updated.AccountID)
	}
	if updated.PaidAt == nil {
		t.Fatal("expected paid_at to be stamped")
	}
}

// collidingStore reports the first generated token as taken so the issuer has
// to retry.
type collidingStore struct {
	*memory.Store
	rejected string
}

func (c *collidingStore) TokenExists(ctx context.Context, token string) (bool, error) {
	if c.rejected == "" {
		c.rejected = token
		return true, nil
	}
	return c.Store.TokenExists(ctx, token)
}

func TestCreateRetriesOnTokenCollision(t *testing.T) {
	mem := memory.New()
	store := &collidingStore{Store: mem}
	svc := New(mem, store, nil)

	req, err := svc.Create(context.Background(), "alice", request.Request{Amount: 5})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if store.rejected == "" {
		t.Fatal("expected the issuer to probe for collisions")
	}
	if req.Token == store.rejected {
		t.Fatalf("colliding token was not regenerated")
	}
	if len(req.Token) != request.TokenLength {
		t.Fatalf("expected %d-char token after retry, got %d", request.TokenLength, len(req.Token))
	}
}

func TestOwnershipGuard(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	req, err := svc.Create(ctx, "alice", request.Request{Amount: 5})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Get(ctx, "mallory", req.ID); !service.IsForbidden(err) {
		t.Fatalf("expected forbidden for foreign get, got %v", err)
	}
	amount := 9999.99
	if _, err := svc.UpdateRequest(ctx, "mallory", req.ID, Update{Amount: &amount}); !service.IsForbidden(err) {
		t.Fatalf("expected forbidden for foreign update, got %v", err)
	}
	if err := svc.Delete(ctx, "mallory", req.ID); !service.IsForbidden(err) {
		t.Fatalf("expected forbidden for foreign delete, got %v", err)
	}

	got, err := svc.Get(ctx, "alice", req.ID)
	if err != nil {
		t.Fatalf("owner get: %v", err)
	}
	if got.Amount != 5 {
		t.Fatalf("request was modified by a foreign caller")
	}
}

func TestListNewestFirst(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	first, err := svc.Create(ctx, "alice", request.Request{Amount: 1})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := svc.Create(ctx, "alice", request.Request{Amount: 2})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	list, err := svc.List(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(list))
	}
	if list[0].ID != second.ID || list[1].ID != first.ID {
		t.Fatalf("expected newest first, got %s then %s", list[0].ID, list[1].ID)
	}
}

func TestResolvePublic(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	aliceAcct, err := store.CreateAccount(ctx, account.Account{
		OwnerID: "alice", Handle: "alice-venmo", Type: account.TypeVenmo, Status: account.StatusActive,
	})
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}
	if _, err := store.CreateAccount(ctx, account.Account{
		OwnerID: "alice", Handle: "alice-idle", Type: account.TypeZelle, Status: account.StatusInactive,
	}); err != nil {
		t.Fatalf("seed inactive account: %v", err)
	}
	if _, err := store.CreateAccount(ctx, account.Account{
		OwnerID: "bob", Handle: "bob-venmo", Type: account.TypeVenmo, Status: account.StatusActive,
	}); err != nil {
		t.Fatalf("seed foreign account: %v", err)
	}

	req, err := svc.Create(ctx, "alice", request.Request{Amount: 12.34, Title: "lunch"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	payment, err := svc.ResolvePublic(ctx, "alice-venmo", req.Token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if payment.Request.ID != req.ID {
		t.Fatalf("resolved wrong request")
	}
	if payment.Account.ID != aliceAcct.ID {
		t.Fatalf("resolved wrong account")
	}
	if len(payment.Accounts) != 1 {
		t.Fatalf("expected only active accounts, got %d", len(payment.Accounts))
	}

	// Every miss resolves identically: unknown token, unknown handle, a
	// handle of a different owner, and an inactive handle of the owner.
	misses := []struct {
		name   string
		handle string
		token  string
	}{
		{"unknown token", "alice-venmo", strings.Repeat("x", request.TokenLength)},
		{"unknown handle", "ghost", req.Token},
		{"foreign handle", "bob-venmo", req.Token},
		{"inactive handle", "alice-idle", req.Token},
	}
	var messages []string
	for _, tc := range misses {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.ResolvePublic(ctx, tc.handle, tc.token)
			if !service.IsNotFound(err) {
				t.Fatalf("expected not found, got %v", err)
			}
			messages = append(messages, err.Error())
		})
	}
	for i := 1; i < len(messages); i++ {
		if messages[i] != messages[0] {
			t.Fatalf("misses must be indistinguishable: %q != %q", messages[i], messages[0])
		}
	}
}

func TestResolvePublicExpiredStillResolves(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	if _, err := store.CreateAccount(ctx, account.Account{
		OwnerID: "alice", Handle: "alice-venmo", Type: account.TypeVenmo, Status: account.StatusActive,
	}); err != nil {
		t.Fatalf("seed account: %v", err)
	}

	past := time.Now().UTC().Add(-time.Hour)
	req, err := svc.Create(ctx, "alice", request.Request{Amount: 5, ExpiresAt: &past})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	payment, err := svc.ResolvePublic(ctx, "alice-venmo", req.Token)
	if err != nil {
		t.Fatalf("expired requests still resolve: %v", err)
	}
	if !payment.Expired {
		t.Fatal("expected payment to be flagged expired")
	}
	if payment.Request.Status != request.StatusPending {
		t.Fatalf("expiry must not change stored status, got %s", payment.Request.Status)
	}
}

func TestGenerateToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 32; i++ {
		token, err := generateToken()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(token) != request.TokenLength {
			t.Fatalf("expected length %d, got %d", request.TokenLength, len(token))
		}
		for _, c := range token {
			if !strings.ContainsRune(tokenAlphabet, c) {
				t.Fatalf("unexpected character %q", c)
			}
		}
		if seen[token] {
			t.Fatal("duplicate token generated")
		}
		seen[token] = true
	}
}
