package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"testing"

	"datamarket/internal/blob"
	"datamarket/pkg/domain"
)

func TestRegisterComputedHashMatchesDigestFormula(t *testing.T) {
	m := newMarket(t)
	ownerBefore := m.balance(t, testOwner)

	d := m.register(t, "weather")
	sum := sha256.Sum256([]byte("files/weather:7:4096"))
	if d.Hash.String() != hex.EncodeToString(sum[:]) {
		t.Fatalf("computed hash %s does not match sha256(fileKey:datasetId:fileSize)", d.Hash)
	}
	if d.ID != domain.DatasetIDFor(testOwner, "weather") {
		t.Fatalf("unexpected dataset id %s", d.ID)
	}
	if !d.Source.Computed() || *d.Source.FileSize != 4096 {
		t.Fatalf("expected computed source, got %+v", d.Source)
	}
	if d.Verification.Status != domain.VerificationUnverified {
		t.Fatalf("new dataset should be unverified, got %s", d.Verification.Status)
	}
	if d.License.Type != domain.LicenseMIT {
		t.Fatalf("expected license to default to mit, got %s", d.License.Type)
	}
	if d.StorageDeposit != domain.DatasetRecordSize {
		t.Fatalf("expected deposit %d, got %d", domain.DatasetRecordSize, d.StorageDeposit)
	}
	if got := m.balance(t, testOwner); got != ownerBefore-d.StorageDeposit {
		t.Fatalf("owner balance %d, want %d", got, ownerBefore-d.StorageDeposit)
	}
	if got := m.balance(t, domain.RentEscrowAccount); got != d.StorageDeposit {
		t.Fatalf("escrow balance %d, want %d", got, d.StorageDeposit)
	}
	if cfg := m.config(t); cfg.TotalDatasets != 1 {
		t.Fatalf("expected total datasets 1, got %d", cfg.TotalDatasets)
	}
	ev := m.lastEvent(t)
	if ev.Type != domain.EventDatasetRegistered || ev.RecordID != d.ID || ev.Fields["computed"] != "true" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestRegisterPrecomputedHash(t *testing.T) {
	m := newMarket(t)
	hash := strings.Repeat("ab", 32)
	d := m.registerWith(t, RegisterInput{
		Key:         "precomputed",
		MetadataURI: "ipfs://meta",
		Precomputed: &PrecomputedHash{Hash: hash},
		Price:       testPrice,
	})
	if d.Hash.String() != hash {
		t.Fatalf("expected hash %s, got %s", hash, d.Hash)
	}
	if d.Source.Computed() {
		t.Fatalf("precomputed dataset reports computed source")
	}
}

func TestRegisterRejectsInvalidInput(t *testing.T) {
	valid := computedInput("valid")
	cases := []struct {
		name   string
		mutate func(*RegisterInput)
		code   domain.Code
	}{
		{"empty key", func(in *RegisterInput) { in.Key = "  " }, domain.CodeInvalidKey},
		{"long key", func(in *RegisterInput) { in.Key = strings.Repeat("k", domain.MaxKeyLength+1) }, domain.CodeInvalidKey},
		{"zero size", func(in *RegisterInput) { in.Computed.FileSize = 0 }, domain.CodeInvalidSize},
		{"empty file key", func(in *RegisterInput) { in.Computed.FileKey = "" }, domain.CodeInvalidKey},
		{"no hash", func(in *RegisterInput) { in.Computed = nil }, domain.CodeInvalidHash},
		{"both hashes", func(in *RegisterInput) { in.Precomputed = &PrecomputedHash{Hash: strings.Repeat("0f", 32)} }, domain.CodeInvalidHash},
		{"short hash", func(in *RegisterInput) { in.Computed = nil; in.Precomputed = &PrecomputedHash{Hash: "abc"} }, domain.CodeInvalidHash},
		{"zero hash", func(in *RegisterInput) { in.Computed = nil; in.Precomputed = &PrecomputedHash{Hash: strings.Repeat("0", 64)} }, domain.CodeInvalidHash},
		{"empty uri", func(in *RegisterInput) { in.MetadataURI = "" }, domain.CodeInvalidURI},
		{"cheap", func(in *RegisterInput) { in.Price = domain.MinPrice - 1 }, domain.CodeInvalidPrice},
		{"expensive", func(in *RegisterInput) { in.Price = domain.MaxPrice + 1 }, domain.CodeInvalidPrice},
		{"license type", func(in *RegisterInput) { in.License.Type = "gpl" }, domain.CodeInvalidLicense},
		{"zero owners", func(in *RegisterInput) { in.License.MaxOwners = uint32Ptr(0) }, domain.CodeInvalidLicense},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := newMarket(t)
			in := valid
			computed := *valid.Computed
			in.Computed = &computed
			tc.mutate(&in)
			events := m.eventCount(t)
			_, _, err := m.svc.Register(context.Background(), testOwner, in)
			expectCode(t, err, tc.code)
			if domain.KindOf(err) != domain.KindValidation {
				t.Fatalf("expected validation kind, got %s", domain.KindOf(err))
			}
			list, _ := m.svc.ListDatasets(context.Background(), "")
			if len(list) != 0 {
				t.Fatalf("failed register created %d datasets", len(list))
			}
			if m.eventCount(t) != events {
				t.Fatalf("failed register emitted an event")
			}
		})
	}
}

func TestRegisterDuplicateAndDepositFailure(t *testing.T) {
	ctx := context.Background()
	m := newMarket(t)
	m.register(t, "dup")
	_, _, err := m.svc.Register(ctx, testOwner, computedInput("dup"))
	expectCode(t, err, domain.CodeDuplicateDataset)

	// Same key under a different owner is a different listing.
	if _, _, err := m.svc.Register(ctx, testBuyer, computedInput("dup")); err != nil {
		t.Fatalf("register under second owner: %v", err)
	}

	_, _, err = m.svc.Register(ctx, "pauper", computedInput("broke"))
	expectCode(t, err, domain.CodePaymentRejected)
	if domain.KindOf(err) != domain.KindExternalDependency {
		t.Fatalf("expected external dependency kind, got %s", domain.KindOf(err))
	}
	if cfg := m.config(t); cfg.TotalDatasets != 2 {
		t.Fatalf("failed register counted: %d", cfg.TotalDatasets)
	}
}

func TestUpdateDataset(t *testing.T) {
	ctx := context.Background()
	m := newMarket(t)
	d := m.listed(t, "update")

	_, _, err := m.svc.UpdateDataset(ctx, testBuyer, d.ID, UpdateInput{Price: uint64Ptr(testPrice * 2)})
	expectCode(t, err, domain.CodeUnauthorized)

	_, _, err = m.svc.UpdateDataset(ctx, testOwner, d.ID, UpdateInput{Price: uint64Ptr(1)})
	expectCode(t, err, domain.CodeInvalidPrice)

	_, _, err = m.svc.UpdateDataset(ctx, testOwner, "missing", UpdateInput{Price: uint64Ptr(testPrice)})
	expectCode(t, err, domain.CodeNotFound)

	updated, _, err := m.svc.UpdateDataset(ctx, testOwner, d.ID, UpdateInput{
		MetadataURI: strPtr(" ipfs://v2 "),
		Price:       uint64Ptr(testPrice * 3),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.MetadataURI != "ipfs://v2" || updated.Price != testPrice*3 {
		t.Fatalf("unexpected update result %+v", updated)
	}
	if updated.Verification.Status != domain.VerificationVerified || updated.Verification.Score != 75 {
		t.Fatalf("update touched verification: %+v", updated.Verification)
	}
	if ev := m.lastEvent(t); ev.Type != domain.EventDatasetUpdated {
		t.Fatalf("unexpected event %s", ev.Type)
	}
}

func TestAuthorizationPrecedesFieldValidation(t *testing.T) {
	ctx := context.Background()
	m := newMarket(t, WithProofStore(blob.NewMemory()))
	d := m.register(t, "authz-first")
	const intruder Principal = "mallory"

	cases := map[string]func() error{
		"update price": func() error {
			_, _, err := m.svc.UpdateDataset(ctx, intruder, d.ID, UpdateInput{Price: uint64Ptr(1)})
			return err
		},
		"update uri": func() error {
			_, _, err := m.svc.UpdateDataset(ctx, intruder, d.ID, UpdateInput{MetadataURI: strPtr(strings.Repeat("u", 500))})
			return err
		},
		"update hash": func() error {
			_, _, err := m.svc.UpdateHash(ctx, intruder, d.ID, "zz")
			return err
		},
		"verify score": func() error {
			_, _, err := m.svc.Verify(ctx, intruder, d.ID, VerifyInput{Score: 101})
			return err
		},
		"verify type": func() error {
			_, _, err := m.svc.Verify(ctx, intruder, d.ID, VerifyInput{Score: 60, VerifierType: "oracle", Proof: []byte("p")})
			return err
		},
	}
	for name, call := range cases {
		t.Run(name, func(t *testing.T) {
			expectCode(t, call(), domain.CodeUnauthorized)
		})
	}
	if got := m.dataset(t, d.ID); got.Price != d.Price || got.Hash != d.Hash || got.Verification.Round != 0 {
		t.Fatalf("rejected calls changed the dataset: %+v", got)
	}
}

func TestUpdateHashResetsVerification(t *testing.T) {
	ctx := context.Background()
	m := newMarket(t)
	d := m.listed(t, "rehash")

	_, _, err := m.svc.UpdateHash(ctx, testBuyer, d.ID, strings.Repeat("cd", 32))
	expectCode(t, err, domain.CodeUnauthorized)
	_, _, err = m.svc.UpdateHash(ctx, testOwner, d.ID, "zz")
	expectCode(t, err, domain.CodeInvalidHash)

	updated, _, err := m.svc.UpdateHash(ctx, testOwner, d.ID, strings.Repeat("cd", 32))
	if err != nil {
		t.Fatalf("update hash: %v", err)
	}
	if updated.Hash.String() != strings.Repeat("cd", 32) {
		t.Fatalf("hash not replaced: %s", updated.Hash)
	}
	if updated.Verification.Status != domain.VerificationUnverified || updated.Verification.Score != 0 || updated.Verification.VerifiedAt != nil {
		t.Fatalf("verification not reset: %+v", updated.Verification)
	}
	if updated.Verification.Round != 1 {
		t.Fatalf("round should survive a hash update, got %d", updated.Verification.Round)
	}
	if updated.Source.Computed() {
		t.Fatalf("source still marked computed")
	}
	ev := m.lastEvent(t)
	if ev.Type != domain.EventDatasetHashUpdated || ev.Fields["previous_hash"] != d.Hash.String() {
		t.Fatalf("unexpected event %+v", ev)
	}

	_, _, err = m.svc.Purchase(ctx, testBuyer, d.ID, testPrice)
	expectCode(t, err, domain.CodeInsufficientVerification)
}

func TestVerify(t *testing.T) {
	ctx := context.Background()
	m := newMarket(t)
	d := m.register(t, "verify")

	_, _, err := m.svc.Verify(ctx, testOwner, d.ID, VerifyInput{Score: 90})
	expectCode(t, err, domain.CodeUnauthorized)
	_, _, err = m.svc.Verify(ctx, testVerifier, d.ID, VerifyInput{Score: 101})
	expectCode(t, err, domain.CodeInvalidScore)
	_, _, err = m.svc.Verify(ctx, testVerifier, d.ID, VerifyInput{Score: -1})
	expectCode(t, err, domain.CodeInvalidScore)
	_, _, err = m.svc.Verify(ctx, testVerifier, d.ID, VerifyInput{Score: 60, VerifierType: "oracle"})
	expectCode(t, err, domain.CodeInvalidVerifier)
	_, _, err = m.svc.Verify(ctx, testVerifier, "missing", VerifyInput{Score: 60})
	expectCode(t, err, domain.CodeNotFound)

	low, _, err := m.svc.Verify(ctx, testVerifier, d.ID, VerifyInput{Score: 50, VerifierType: domain.VerifierAIAgent})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if low.Verification.Status != domain.VerificationVerified || low.Verification.Score != 50 || low.Verification.Listable() {
		t.Fatalf("score at threshold must be recorded but not listable: %+v", low.Verification)
	}
	if low.Verification.Round != 1 || low.Verification.VerifiedAt == nil {
		t.Fatalf("unexpected verification %+v", low.Verification)
	}
	if ev := m.lastEvent(t); ev.Type != domain.EventDatasetVerified || ev.Fields["listable"] != "false" {
		t.Fatalf("unexpected event %+v", ev)
	}

	high := m.verify(t, d.ID, 51)
	if !high.Verification.Listable() || high.Verification.Round != 2 {
		t.Fatalf("re-verification should overwrite and bump round: %+v", high.Verification)
	}
	if high.Verification.VerifierType != domain.VerifierMetadata {
		t.Fatalf("expected default verifier type, got %s", high.Verification.VerifierType)
	}
}

func TestVerifyArchivesProof(t *testing.T) {
	ctx := context.Background()
	proofs := blob.NewMemory()
	m := newMarket(t, WithProofStore(proofs))
	d := m.register(t, "proof")

	proof := []byte(`{"model":"v1","checks":12}`)
	verified, _, err := m.svc.Verify(ctx, testVerifier, d.ID, VerifyInput{Score: 80, VerifierType: domain.VerifierZKProof, Proof: proof})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	digest := domain.DigestOf(proof)
	if verified.Verification.ProofDigest != digest.String() {
		t.Fatalf("proof digest %s, want %s", verified.Verification.ProofDigest, digest)
	}
	if !strings.HasPrefix(verified.Verification.ProofKey, "proofs/"+d.ID+"/"+digest.String()+"-") {
		t.Fatalf("unexpected proof key %s", verified.Verification.ProofKey)
	}
	info, err := proofs.Head(ctx, verified.Verification.ProofKey)
	if err != nil {
		t.Fatalf("head proof: %v", err)
	}
	if info.Metadata["dataset"] != d.ID || info.Metadata["round"] != "1" {
		t.Fatalf("unexpected proof metadata %+v", info.Metadata)
	}

	// An identical proof reuses the committed artifact.
	again, _, err := m.svc.Verify(ctx, testVerifier, d.ID, VerifyInput{Score: 80, Proof: proof})
	if err != nil {
		t.Fatalf("re-verify: %v", err)
	}
	if again.Verification.ProofKey != verified.Verification.ProofKey || again.Verification.Round != 2 {
		t.Fatalf("expected committed artifact reuse, got %+v", again.Verification)
	}
	list, err := NewProofArchive(proofs).List(ctx, d.ID)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one archived proof, got %d (%v)", len(list), err)
	}
}

type failingRule struct{ name string }

func (r failingRule) Name() string { return r.name }

func (r failingRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	for _, c := range changes {
		if c.Entity == domain.EntityDataset && c.Action == domain.ActionUpdate {
			return domain.Result{Violations: []domain.Violation{{Rule: r.name, Severity: domain.SeverityBlock, Message: "rejected"}}}, nil
		}
	}
	return domain.Result{}, nil
}

func TestVerifyDiscardsProofWhenCommitFails(t *testing.T) {
	ctx := context.Background()
	proofs := blob.NewMemory()
	m := newMarket(t, WithProofStore(proofs))
	d := m.register(t, "discard")
	m.store.RulesEngine().Register(failingRule{name: "reject_updates"})

	proof := []byte("artifact")
	_, _, err := m.svc.Verify(ctx, testVerifier, d.ID, VerifyInput{Score: 80, Proof: proof})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	if list, err := NewProofArchive(proofs).List(ctx, d.ID); err != nil || len(list) != 0 {
		t.Fatalf("expected proof to be discarded, got %d (%v)", len(list), err)
	}
	if got := m.dataset(t, d.ID); got.Verification.Status != domain.VerificationUnverified {
		t.Fatalf("failed verify changed status to %s", got.Verification.Status)
	}
}

type brokenBlobStore struct{ blob.Store }

func (brokenBlobStore) Head(context.Context, string) (blob.Info, error) {
	return blob.Info{}, errors.New("network down")
}

func (brokenBlobStore) Put(context.Context, string, io.Reader, blob.PutOptions) (blob.Info, error) {
	return blob.Info{}, errors.New("network down")
}

func TestDiscardedAttemptKeepsCommittedProof(t *testing.T) {
	ctx := context.Background()
	proofs := blob.NewMemory()
	m := newMarket(t, WithProofStore(proofs))
	d := m.register(t, "shared-proof")
	archive := NewProofArchive(proofs)
	proof := []byte("attestation")

	// A stalled attempt writes first, a second Verify of the same artifact
	// commits, then the stalled attempt fails and cleans up after itself.
	stalled, err := archive.Archive(ctx, d.ID, d.Verification, proof)
	if err != nil || !stalled.Created {
		t.Fatalf("archive: %+v %v", stalled, err)
	}
	verified, _, err := m.svc.Verify(ctx, testVerifier, d.ID, VerifyInput{Score: 90, Proof: proof})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if verified.Verification.ProofKey == stalled.Key {
		t.Fatalf("concurrent attempts must not share a proof key")
	}
	if err := archive.Discard(ctx, stalled); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if _, err := proofs.Head(ctx, verified.Verification.ProofKey); err != nil {
		t.Fatalf("committed proof lost after discard: %v", err)
	}

	// Reusing the committed artifact never deletes it.
	reused, err := archive.Archive(ctx, d.ID, verified.Verification, proof)
	if err != nil || reused.Created || reused.Key != verified.Verification.ProofKey {
		t.Fatalf("expected reuse of committed artifact, got %+v %v", reused, err)
	}
	if err := archive.Discard(ctx, reused); err != nil {
		t.Fatalf("discard reused: %v", err)
	}
	if _, err := proofs.Head(ctx, verified.Verification.ProofKey); err != nil {
		t.Fatalf("committed proof lost after discarding a reuse: %v", err)
	}
}

func TestVerifyProofArchiveFailure(t *testing.T) {
	m := newMarket(t, WithProofStore(brokenBlobStore{Store: blob.NewMemory()}))
	d := m.register(t, "offline")
	_, _, err := m.svc.Verify(context.Background(), testVerifier, d.ID, VerifyInput{Score: 80, Proof: []byte("x")})
	expectCode(t, err, domain.CodeProofArchiveFailed)
	if domain.KindOf(err) != domain.KindExternalDependency {
		t.Fatalf("expected external dependency kind, got %s", domain.KindOf(err))
	}
	if got := m.dataset(t, d.ID); got.Verification.Round != 0 {
		t.Fatalf("archive failure still verified the dataset")
	}
}

func TestCloseDataset(t *testing.T) {
	ctx := context.Background()
	m := newMarket(t)
	d := m.register(t, "close")
	ownerBefore := m.balance(t, testOwner)

	_, err := m.svc.CloseDataset(ctx, testBuyer, d.ID)
	expectCode(t, err, domain.CodeUnauthorized)

	if _, err := m.svc.CloseDataset(ctx, testOwner, d.ID); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := m.svc.GetDataset(ctx, d.ID); !domain.IsCode(err, domain.CodeNotFound) {
		t.Fatalf("expected closed dataset to be gone, got %v", err)
	}
	if got := m.balance(t, testOwner); got != ownerBefore+d.StorageDeposit {
		t.Fatalf("deposit not refunded: %d", got)
	}
	if got := m.balance(t, domain.RentEscrowAccount); got != 0 {
		t.Fatalf("escrow still holds %d", got)
	}
	if cfg := m.config(t); cfg.TotalDatasets != 1 {
		t.Fatalf("stats are cumulative, got total datasets %d", cfg.TotalDatasets)
	}
	if ev := m.lastEvent(t); ev.Type != domain.EventDatasetClosed || ev.RecordID != d.ID {
		t.Fatalf("unexpected event %+v", ev)
	}

	_, err = m.svc.CloseDataset(ctx, testOwner, d.ID)
	expectCode(t, err, domain.CodeNotFound)

	// The key is free again once closed.
	m.register(t, "close")
}

func TestCloseDatasetWithPurchases(t *testing.T) {
	ctx := context.Background()
	m := newMarket(t)
	d := m.listed(t, "sold")
	if _, _, err := m.svc.Purchase(ctx, testBuyer, d.ID, testPrice); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	_, err := m.svc.CloseDataset(ctx, testOwner, d.ID)
	expectCode(t, err, domain.CodeHasPurchases)
	if got := m.dataset(t, d.ID); got.PurchaseCount != 1 {
		t.Fatalf("dataset changed after rejected close: %+v", got)
	}
}
