package memory_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cygon23/caeerhub-platform-sub002/pkg/entitlement"
	"github.com/cygon23/caeerhub-platform-sub002/storage/memory"
)

func seedStore(t *testing.T, store *memory.Store, userID string, credits int) {
	t.Helper()
	err := store.SetEntitlement(context.Background(), &entitlement.Entitlement{
		UserID:           userID,
		CreditsAvailable: credits,
	})
	if err != nil {
		t.Fatalf("SetEntitlement failed: %v", err)
	}
}

func TestGetEntitlementNotFound(t *testing.T) {
	store := memory.New()
	_, err := store.GetEntitlement(context.Background(), "nobody")
	if !errors.Is(err, entitlement.ErrEntitlementNotFound) {
		t.Errorf("expected ErrEntitlementNotFound, got %v", err)
	}
}

func TestDeductAtomicity(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	seedStore(t, store, "u1", 5)

	result, err := store.Deduct(ctx, &entitlement.DeductRequest{
		UserID:  "u1",
		Feature: "roadmap",
		Amount:  3,
		Artifact: &entitlement.Artifact{
			UserID:  "u1",
			Feature: "roadmap",
			Source:  "ai",
			Payload: json.RawMessage(`{"ok": true}`),
		},
	})
	if err != nil {
		t.Fatalf("Deduct failed: %v", err)
	}
	if result.NewBalance != 2 {
		t.Errorf("new balance = %d, want 2", result.NewBalance)
	}

	ent, err := store.GetEntitlement(ctx, "u1")
	if err != nil {
		t.Fatalf("GetEntitlement failed: %v", err)
	}
	if ent.UsageCounts["roadmap"] != 1 {
		t.Errorf("usage count = %d, want 1", ent.UsageCounts["roadmap"])
	}

	txns, _ := store.GetTransactions(ctx, "u1", 10)
	if len(txns) != 1 || txns[0].Delta != -3 {
		t.Errorf("unexpected ledger: %+v", txns)
	}

	artifact, err := store.GetArtifact(ctx, "u1", "roadmap")
	if err != nil {
		t.Fatalf("GetArtifact failed: %v", err)
	}
	if artifact.Source != "ai" || artifact.ID == "" {
		t.Errorf("unexpected artifact: %+v", artifact)
	}
}

func TestDeductInsufficient(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	seedStore(t, store, "u1", 2)

	_, err := store.Deduct(ctx, &entitlement.DeductRequest{UserID: "u1", Feature: "roadmap", Amount: 3})
	if !errors.Is(err, entitlement.ErrInsufficientCredits) {
		t.Errorf("expected ErrInsufficientCredits, got %v", err)
	}

	// Nothing changed.
	ent, _ := store.GetEntitlement(ctx, "u1")
	if ent.CreditsAvailable != 2 {
		t.Errorf("balance changed on failed deduct: %d", ent.CreditsAvailable)
	}
	txns, _ := store.GetTransactions(ctx, "u1", 10)
	if len(txns) != 0 {
		t.Errorf("ledger written on failed deduct: %d entries", len(txns))
	}
}

func TestDeductUsageLimit(t *testing.T) {
	store := memory.New()
	err := store.SetEntitlement(context.Background(), &entitlement.Entitlement{
		UserID:           "u1",
		CreditsAvailable: 10,
		UsageCounts:      map[string]int{"roadmap": 1},
		UsageLimits:      map[string]int{"roadmap": 1},
	})
	if err != nil {
		t.Fatalf("SetEntitlement failed: %v", err)
	}

	_, err = store.Deduct(context.Background(), &entitlement.DeductRequest{UserID: "u1", Feature: "roadmap", Amount: 3})
	if !errors.Is(err, entitlement.ErrUsageLimitExceeded) {
		t.Errorf("expected ErrUsageLimitExceeded, got %v", err)
	}
}

// TestDeductConcurrent races many deductions; exactly balance/amount may win.
func TestDeductConcurrent(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	seedStore(t, store, "u1", 10)

	var wg sync.WaitGroup
	var successes int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Deduct(ctx, &entitlement.DeductRequest{UserID: "u1", Feature: "roadmap", Amount: 3})
			if err == nil {
				atomic.AddInt32(&successes, 1)
			} else if !errors.Is(err, entitlement.ErrInsufficientCredits) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 3 {
		t.Errorf("%d deductions committed, want 3 (10 credits / 3 each)", successes)
	}
	ent, _ := store.GetEntitlement(ctx, "u1")
	if ent.CreditsAvailable != 1 {
		t.Errorf("final balance = %d, want 1", ent.CreditsAvailable)
	}
	txns, _ := store.GetTransactions(ctx, "u1", 50)
	if len(txns) != 3 {
		t.Errorf("ledger has %d entries, want 3", len(txns))
	}
}

func TestGrantDuplicateReference(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	first, err := store.Grant(ctx, &entitlement.GrantRequest{UserID: "u1", Amount: 20, ReferenceID: "cs_123"})
	if err != nil {
		t.Fatalf("Grant failed: %v", err)
	}
	if first.NewBalance != 20 {
		t.Errorf("new balance = %d, want 20", first.NewBalance)
	}

	_, err = store.Grant(ctx, &entitlement.GrantRequest{UserID: "u1", Amount: 20, ReferenceID: "cs_123"})
	if !errors.Is(err, entitlement.ErrDuplicateReference) {
		t.Errorf("expected ErrDuplicateReference, got %v", err)
	}

	ent, _ := store.GetEntitlement(ctx, "u1")
	if ent.CreditsAvailable != 20 {
		t.Errorf("replayed grant changed balance: %d", ent.CreditsAvailable)
	}

	// Same reference, different user is a distinct grant.
	if _, err := store.Grant(ctx, &entitlement.GrantRequest{UserID: "u2", Amount: 20, ReferenceID: "cs_123"}); err != nil {
		t.Errorf("grant for second user failed: %v", err)
	}
}

func TestGrantWithoutReference(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := store.Grant(ctx, &entitlement.GrantRequest{UserID: "u1", Amount: 5}); err != nil {
			t.Fatalf("Grant %d failed: %v", i, err)
		}
	}
	ent, _ := store.GetEntitlement(ctx, "u1")
	if ent.CreditsAvailable != 10 {
		t.Errorf("balance = %d, want 10", ent.CreditsAvailable)
	}
}

func TestGetTransactionsNewestFirst(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	seedStore(t, store, "u1", 10)

	features := []string{"roadmap", "practice-questions", "academic-plan"}
	for _, f := range features {
		if _, err := store.Deduct(ctx, &entitlement.DeductRequest{UserID: "u1", Feature: f, Amount: 1}); err != nil {
			t.Fatalf("Deduct failed: %v", err)
		}
	}

	txns, err := store.GetTransactions(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("GetTransactions failed: %v", err)
	}
	if len(txns) != 2 {
		t.Fatalf("got %d transactions, want 2", len(txns))
	}
	if txns[0].Feature != "academic-plan" || txns[1].Feature != "practice-questions" {
		t.Errorf("not newest-first: %s, %s", txns[0].Feature, txns[1].Feature)
	}
}

func TestArtifactOverwrite(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	if _, err := store.GetArtifact(ctx, "u1", "roadmap"); !errors.Is(err, entitlement.ErrArtifactNotFound) {
		t.Errorf("expected ErrArtifactNotFound, got %v", err)
	}

	for _, source := range []string{"fallback", "ai"} {
		err := store.SaveArtifact(ctx, &entitlement.Artifact{
			UserID:  "u1",
			Feature: "roadmap",
			Source:  source,
			Payload: json.RawMessage(`{}`),
		})
		if err != nil {
			t.Fatalf("SaveArtifact failed: %v", err)
		}
	}

	artifact, err := store.GetArtifact(ctx, "u1", "roadmap")
	if err != nil {
		t.Fatalf("GetArtifact failed: %v", err)
	}
	if artifact.Source != "ai" {
		t.Errorf("source = %s, want latest write (ai)", artifact.Source)
	}
}

func TestStoreCopiesOnRead(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	seedStore(t, store, "u1", 5)

	ent, _ := store.GetEntitlement(ctx, "u1")
	ent.CreditsAvailable = 999
	ent.UsageCounts["roadmap"] = 999

	fresh, _ := store.GetEntitlement(ctx, "u1")
	if fresh.CreditsAvailable != 5 {
		t.Error("mutating a returned entitlement leaked into the store")
	}
	if fresh.UsageCounts["roadmap"] != 0 {
		t.Error("mutating a returned usage map leaked into the store")
	}
}

func TestClear(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	seedStore(t, store, "u1", 5)

	store.Clear()
	if _, err := store.GetEntitlement(ctx, "u1"); !errors.Is(err, entitlement.ErrEntitlementNotFound) {
		t.Errorf("expected cleared store, got %v", err)
	}
}
