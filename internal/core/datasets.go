package core

import (
	"context"
	"math"
	"strconv"
	"strings"

	"datamarket/internal/validation"
	"datamarket/pkg/domain"
)

// ComputedHash derives the digest from the storage coordinates of the file.
type ComputedHash struct {
	FileKey   string `json:"file_key"`
	DatasetID uint64 `json:"dataset_id"`
	FileSize  uint64 `json:"file_size"`
}

// PrecomputedHash carries a digest computed off-system, hex encoded.
type PrecomputedHash struct {
	Hash string `json:"hash"`
}

// RegisterInput describes a new listing. Exactly one of Computed and
// Precomputed must be set.
type RegisterInput struct {
	Key         string           `json:"key"`
	MetadataURI string           `json:"metadata_uri"`
	Computed    *ComputedHash    `json:"computed,omitempty"`
	Precomputed *PrecomputedHash `json:"precomputed,omitempty"`
	Price       uint64           `json:"price"`
	License     License          `json:"license"`
}

// UpdateInput changes listing metadata. Nil fields are left as is.
type UpdateInput struct {
	MetadataURI *string `json:"metadata_uri,omitempty"`
	Price       *uint64 `json:"price,omitempty"`
}

// VerifyInput is the verifier's attestation. Proof is opaque to the engine
// and is archived as-is.
type VerifyInput struct {
	Score        int                 `json:"score"`
	VerifierType domain.VerifierType `json:"verifier_type"`
	Proof        []byte              `json:"proof,omitempty"`
}

func resolveHash(in RegisterInput) (Digest, domain.HashSource, error) {
	switch {
	case in.Computed != nil && in.Precomputed != nil:
		return Digest{}, domain.HashSource{}, domain.NewError(domain.CodeInvalidHash, "computed and precomputed hash are mutually exclusive")
	case in.Computed != nil:
		c := in.Computed
		if err := validation.All(validation.FileKey(c.FileKey), validation.Size(c.FileSize)); err != nil {
			return Digest{}, domain.HashSource{}, err
		}
		datasetID, fileSize := c.DatasetID, c.FileSize
		source := domain.HashSource{FileKey: c.FileKey, DatasetID: &datasetID, FileSize: &fileSize}
		return domain.ComputeDigest(c.FileKey, c.DatasetID, c.FileSize), source, nil
	case in.Precomputed != nil:
		d, err := validation.HashHex(in.Precomputed.Hash)
		return d, domain.HashSource{}, err
	default:
		return Digest{}, domain.HashSource{}, domain.NewError(domain.CodeInvalidHash, "hash source required")
	}
}

// Register lists a new dataset owned by owner. The storage deposit for the
// record moves from the owner's balance into rent escrow.
func (s *Service) Register(ctx context.Context, owner Principal, in RegisterInput) (Dataset, Result, error) {
	var created Dataset
	res, err := s.run(ctx, OpRegisterDataset, owner, func(tx Transaction) (string, error) {
		key := strings.TrimSpace(in.Key)
		uri := strings.TrimSpace(in.MetadataURI)
		if err := validation.All(
			validation.Principal(owner),
			validation.Key(key),
		); err != nil {
			return "", err
		}
		digest, source, err := resolveHash(in)
		if err != nil {
			return "", err
		}
		license := in.License
		if license.Type == "" {
			license.Type = domain.LicenseMIT
		}
		if err := validation.All(
			validation.URI(uri),
			validation.Price(in.Price),
			validation.License(license),
		); err != nil {
			return "", err
		}

		cfg, err := requirePlatform(tx)
		if err != nil {
			return "", err
		}
		if cfg.Paused {
			return "", domain.NewError(domain.CodePlatformPaused, "platform is paused")
		}
		id := domain.DatasetIDFor(owner, key)
		if _, exists := tx.FindDataset(id); exists {
			return id, domain.NewError(domain.CodeDuplicateDataset, "dataset %q already registered by %s", key, owner)
		}
		deposit, err := checkedMul(domain.DatasetRecordSize, cfg.DepositPerByte, "storage deposit")
		if err != nil {
			return id, err
		}
		if _, err := tx.Transfer(owner, domain.RentEscrowAccount, deposit, domain.LedgerRentDeposit, id); err != nil {
			return id, err
		}
		created, err = tx.CreateDataset(Dataset{
			Base:           Base{ID: id},
			Owner:          owner,
			Key:            key,
			MetadataURI:    uri,
			Hash:           digest,
			Source:         source,
			Verification:   domain.Verification{Status: domain.VerificationUnverified},
			License:        license,
			Price:          in.Price,
			StorageDeposit: deposit,
		})
		if err != nil {
			return id, err
		}
		total, err := checkedAdd(cfg.TotalDatasets, 1, "total datasets")
		if err != nil {
			return id, err
		}
		if _, err := tx.UpdatePlatformConfig(func(c *PlatformConfig) error {
			c.TotalDatasets = total
			return nil
		}); err != nil {
			return id, err
		}
		return id, appendEvent(tx, domain.EventDatasetRegistered, EntityDataset, id, map[string]string{
			"owner":    string(owner),
			"key":      key,
			"hash":     digest.String(),
			"computed": strconv.FormatBool(source.Computed()),
			"price":    strconv.FormatUint(in.Price, 10),
			"license":  string(license.Type),
			"deposit":  strconv.FormatUint(deposit, 10),
		})
	})
	return created, res, err
}

// UpdateDataset changes metadata or price. Verification and purchases are
// never touched.
func (s *Service) UpdateDataset(ctx context.Context, owner Principal, id string, in UpdateInput) (Dataset, Result, error) {
	var updated Dataset
	res, err := s.run(ctx, OpUpdateDataset, owner, func(tx Transaction) (string, error) {
		if _, err := requirePlatform(tx); err != nil {
			return id, err
		}
		current, err := requireDataset(tx, id)
		if err != nil {
			return id, err
		}
		if err := authorize(RoleOwner, current.Owner, owner); err != nil {
			return id, err
		}
		var uri string
		if in.MetadataURI != nil {
			uri = strings.TrimSpace(*in.MetadataURI)
			if err := validation.URI(uri); err != nil {
				return id, err
			}
		}
		if in.Price != nil {
			if err := validation.Price(*in.Price); err != nil {
				return id, err
			}
		}
		updated, err = tx.UpdateDataset(id, func(d *Dataset) error {
			if in.MetadataURI != nil {
				d.MetadataURI = uri
			}
			if in.Price != nil {
				d.Price = *in.Price
			}
			return nil
		})
		if err != nil {
			return id, err
		}
		return id, appendEvent(tx, domain.EventDatasetUpdated, EntityDataset, id, map[string]string{
			"metadata_uri": updated.MetadataURI,
			"price":        strconv.FormatUint(updated.Price, 10),
		})
	})
	return updated, res, err
}

// UpdateHash replaces the content digest. The previous verification described
// different content, so the dataset drops back to unverified.
func (s *Service) UpdateHash(ctx context.Context, owner Principal, id string, hash string) (Dataset, Result, error) {
	var updated Dataset
	res, err := s.run(ctx, OpUpdateHash, owner, func(tx Transaction) (string, error) {
		if _, err := requirePlatform(tx); err != nil {
			return id, err
		}
		current, err := requireDataset(tx, id)
		if err != nil {
			return id, err
		}
		if err := authorize(RoleOwner, current.Owner, owner); err != nil {
			return id, err
		}
		digest, err := validation.HashHex(hash)
		if err != nil {
			return id, err
		}
		previous := current.Hash
		updated, err = tx.UpdateDataset(id, func(d *Dataset) error {
			d.Hash = digest
			d.Source = domain.HashSource{}
			d.Verification = domain.Verification{
				Status: domain.VerificationUnverified,
				Round:  d.Verification.Round,
			}
			return nil
		})
		if err != nil {
			return id, err
		}
		return id, appendEvent(tx, domain.EventDatasetHashUpdated, EntityDataset, id, map[string]string{
			"previous_hash": previous.String(),
			"hash":          digest.String(),
		})
	})
	return updated, res, err
}

// Verify records the verifier's score. The caller is authorized before the
// score is validated. The proof is archived before the transaction opens and
// removed again if the transaction does not commit.
func (s *Service) Verify(ctx context.Context, verifier Principal, id string, in VerifyInput) (Dataset, Result, error) {
	if in.VerifierType == "" {
		in.VerifierType = domain.VerifierMetadata
	}
	var committed domain.Verification
	err := s.store.View(ctx, func(v TransactionView) error {
		cfg, ok := v.PlatformConfig()
		if !ok {
			return domain.NewError(domain.CodeNotInitialized, "platform is not initialized")
		}
		if err := authorize(RoleVerifier, cfg.Verifier, verifier); err != nil {
			return err
		}
		d, ok := v.FindDataset(id)
		if !ok {
			return domain.NewError(domain.CodeNotFound, "dataset %s not found", id)
		}
		committed = d.Verification
		return nil
	})
	if err == nil {
		err = validation.All(validation.Score(in.Score), validation.VerifierType(in.VerifierType))
	}
	if err != nil {
		return s.rejectVerify(ctx, verifier, id, err)
	}
	var proof ArchivedProof
	if len(in.Proof) > 0 {
		if proof, err = s.proofs.Archive(ctx, id, committed, in.Proof); err != nil {
			return s.rejectVerify(ctx, verifier, id, err)
		}
	}

	var updated Dataset
	res, err := s.run(ctx, OpVerifyDataset, verifier, func(tx Transaction) (string, error) {
		cfg, err := requirePlatform(tx)
		if err != nil {
			return id, err
		}
		if err := authorize(RoleVerifier, cfg.Verifier, verifier); err != nil {
			return id, err
		}
		current, err := requireDataset(tx, id)
		if err != nil {
			return id, err
		}
		if current.Verification.Round == math.MaxUint32 {
			return id, domain.NewError(domain.CodeArithmeticOverflow, "verification round overflows")
		}
		now := tx.Now()
		updated, err = tx.UpdateDataset(id, func(d *Dataset) error {
			v := domain.Verification{
				Status:       domain.VerificationVerified,
				Score:        uint8(in.Score),
				VerifierType: in.VerifierType,
				VerifiedAt:   &now,
				Round:        d.Verification.Round + 1,
			}
			if len(in.Proof) > 0 {
				v.ProofDigest = proof.Digest.String()
				v.ProofKey = proof.Key
			}
			d.Verification = v
			return nil
		})
		if err != nil {
			return id, err
		}
		return id, appendEvent(tx, domain.EventDatasetVerified, EntityDataset, id, map[string]string{
			"score":         strconv.Itoa(in.Score),
			"verifier_type": string(in.VerifierType),
			"round":         strconv.FormatUint(uint64(updated.Verification.Round), 10),
			"listable":      strconv.FormatBool(updated.Verification.Listable()),
			"proof_digest":  updated.Verification.ProofDigest,
		})
	})
	if err != nil {
		if derr := s.proofs.Discard(context.WithoutCancel(ctx), proof); derr != nil {
			s.logger.Error("discard proof failed", "operation", OpVerifyDataset, "entity_id", id, "key", proof.Key, "error", derr)
		}
	}
	return updated, res, err
}

// rejectVerify reports a verify failure that happened before the transaction
// opened through the same hooks a transactional failure would use.
func (s *Service) rejectVerify(ctx context.Context, verifier Principal, id string, cause error) (Dataset, Result, error) {
	res, err := s.run(ctx, OpVerifyDataset, verifier, func(Transaction) (string, error) {
		return id, cause
	})
	return Dataset{}, res, err
}

// CloseDataset deletes a listing without purchases and refunds its storage
// deposit to the owner.
func (s *Service) CloseDataset(ctx context.Context, owner Principal, id string) (Result, error) {
	return s.run(ctx, OpCloseDataset, owner, func(tx Transaction) (string, error) {
		if _, err := requirePlatform(tx); err != nil {
			return id, err
		}
		current, err := requireDataset(tx, id)
		if err != nil {
			return id, err
		}
		if err := authorize(RoleOwner, current.Owner, owner); err != nil {
			return id, err
		}
		if current.PurchaseCount > 0 {
			return id, domain.NewError(domain.CodeHasPurchases, "dataset %s has %d purchases", id, current.PurchaseCount)
		}
		if _, err := tx.Transfer(domain.RentEscrowAccount, owner, current.StorageDeposit, domain.LedgerRentRefund, id); err != nil {
			return id, err
		}
		if err := tx.DeleteDataset(id); err != nil {
			return id, err
		}
		return id, appendEvent(tx, domain.EventDatasetClosed, EntityDataset, id, map[string]string{
			"owner":  string(owner),
			"refund": strconv.FormatUint(current.StorageDeposit, 10),
		})
	})
}
