package history

import (
	"testing"
	"time"

	"claimchain/internal/types"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func result(claim types.Claim, status types.ChainStatus, at time.Time) types.VerificationResult {
	r := types.VerificationResult{
		ClaimID:    claim.ID,
		Status:     status,
		WorkItems:  []types.WorkItem{},
		VerifiedAt: at,
	}
	if status == types.ChainVerified {
		r.Evidence = &types.VerificationEvidence{Confidence: types.Confidence(0.9)}
	} else {
		r.WorkItems = append(r.WorkItems, types.WorkItem{
			ID:      types.NewID(),
			ClaimID: claim.ID,
			Title:   "do the work",
		})
	}
	return r
}

func TestRecordAndRecent(t *testing.T) {
	store := openStore(t)
	claim := types.Claim{ID: types.NewID(), Statement: "retries are bounded", Type: types.ClaimBehavioral}

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	if err := store.RecordVerification(claim, result(claim, types.ChainNeedsTests, base)); err != nil {
		t.Fatalf("RecordVerification() error = %v", err)
	}
	if err := store.RecordVerification(claim, result(claim, types.ChainVerified, base.Add(time.Hour))); err != nil {
		t.Fatal(err)
	}

	records, err := store.Recent(10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].Status != types.ChainVerified {
		t.Errorf("newest record status = %s, want verified", records[0].Status)
	}
	if records[0].Confidence != 0.9 {
		t.Errorf("Confidence = %v, want 0.9", records[0].Confidence)
	}
	if records[1].Status != types.ChainNeedsTests {
		t.Errorf("older record status = %s", records[1].Status)
	}
	if len(records[1].WorkItems) != 1 || records[1].WorkItems[0].Title != "do the work" {
		t.Errorf("WorkItems = %+v", records[1].WorkItems)
	}
}

func TestForClaimOrdersProgression(t *testing.T) {
	store := openStore(t)
	claim := types.Claim{ID: types.NewID(), Statement: "tokens rotate", Type: types.ClaimSecurity}
	other := types.Claim{ID: types.NewID(), Statement: "unrelated", Type: types.ClaimFunctional}

	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	progression := []types.ChainStatus{
		types.ChainNotStarted,
		types.ChainNeedsTests,
		types.ChainTestsFailing,
		types.ChainVerified,
	}
	for i, status := range progression {
		if err := store.RecordVerification(claim, result(claim, status, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.RecordVerification(other, result(other, types.ChainNotStarted, base)); err != nil {
		t.Fatal(err)
	}

	records, err := store.ForClaim(claim.ID)
	if err != nil {
		t.Fatalf("ForClaim() error = %v", err)
	}
	if len(records) != len(progression) {
		t.Fatalf("got %d records, want %d", len(records), len(progression))
	}
	for i, rec := range records {
		if rec.Status != progression[i] {
			t.Errorf("record %d status = %s, want %s", i, rec.Status, progression[i])
		}
		if rec.ClaimID != claim.ID {
			t.Errorf("record %d belongs to claim %v", i, rec.ClaimID)
		}
	}
}

func TestStatusCountsUseLatestPerClaim(t *testing.T) {
	store := openStore(t)
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	a := types.Claim{ID: types.NewID(), Statement: "a", Type: types.ClaimFunctional}
	b := types.Claim{ID: types.NewID(), Statement: "b", Type: types.ClaimFunctional}

	if err := store.RecordVerification(a, result(a, types.ChainNotStarted, base)); err != nil {
		t.Fatal(err)
	}
	if err := store.RecordVerification(a, result(a, types.ChainVerified, base.Add(time.Hour))); err != nil {
		t.Fatal(err)
	}
	if err := store.RecordVerification(b, result(b, types.ChainNeedsTests, base)); err != nil {
		t.Fatal(err)
	}

	counts, err := store.StatusCounts()
	if err != nil {
		t.Fatalf("StatusCounts() error = %v", err)
	}
	if counts[types.ChainVerified] != 1 || counts[types.ChainNeedsTests] != 1 {
		t.Errorf("counts = %v", counts)
	}
	if counts[types.ChainNotStarted] != 0 {
		t.Errorf("superseded status still counted: %v", counts)
	}
}

func TestStoreReopens(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	claim := types.Claim{ID: types.NewID(), Statement: "persisted", Type: types.ClaimFunctional}
	if err := store.RecordVerification(claim, result(claim, types.ChainVerified, time.Now())); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewStore(dir)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()
	records, err := reopened.Recent(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Statement != "persisted" {
		t.Errorf("records = %+v", records)
	}
}
