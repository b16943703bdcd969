package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"datamarket/internal/blob"
	"datamarket/pkg/domain"

	"github.com/google/uuid"
)

const proofContentType = "application/octet-stream"

// ProofArchive stores verification proof artifacts under
// proofs/<datasetID>/<sha256>-<attempt>. Every Verify call writes its own
// object, so discarding one attempt never removes an artifact another
// attempt committed.
type ProofArchive struct {
	store   blob.Store
	attempt func() string
}

// ArchivedProof identifies a stored artifact. Created is false when the
// committed verification's artifact was reused.
type ArchivedProof struct {
	Key     string
	Digest  Digest
	Created bool
}

// NewProofArchive wraps a blob store.
func NewProofArchive(store blob.Store) *ProofArchive {
	return &ProofArchive{store: store, attempt: uuid.NewString}
}

// ProofKey returns the blob key for one archive attempt of an artifact with
// digest d.
func ProofKey(datasetID string, d Digest, attempt string) string {
	return fmt.Sprintf("proofs/%s/%s-%s", datasetID, d, attempt)
}

// Archive stores proof for the verification round after committed. When the
// committed verification already references an identical artifact that is
// still present, that object is reused instead of uploading again.
func (a *ProofArchive) Archive(ctx context.Context, datasetID string, committed domain.Verification, proof []byte) (ArchivedProof, error) {
	digest := domain.DigestOf(proof)
	if committed.ProofKey != "" && committed.ProofDigest == digest.String() {
		_, err := a.store.Head(ctx, committed.ProofKey)
		switch {
		case err == nil:
			return ArchivedProof{Key: committed.ProofKey, Digest: digest}, nil
		case !errors.Is(err, blob.ErrNotFound):
			return ArchivedProof{}, domain.WrapError(domain.CodeProofArchiveFailed, err, "head proof %s", committed.ProofKey)
		}
	}
	key := ProofKey(datasetID, digest, a.attempt())
	_, err := a.store.Put(ctx, key, bytes.NewReader(proof), blob.PutOptions{
		ContentType: proofContentType,
		Metadata: map[string]string{
			"dataset": datasetID,
			"round":   fmt.Sprint(uint64(committed.Round) + 1),
		},
	})
	if err != nil {
		return ArchivedProof{}, domain.WrapError(domain.CodeProofArchiveFailed, err, "put proof %s", key)
	}
	return ArchivedProof{Key: key, Digest: digest, Created: true}, nil
}

// Discard removes an artifact written by Archive whose transaction did not
// commit. Reused artifacts are left alone.
func (a *ProofArchive) Discard(ctx context.Context, proof ArchivedProof) error {
	if !proof.Created {
		return nil
	}
	_, err := a.store.Delete(ctx, proof.Key)
	return err
}

// List returns the artifacts stored for a dataset.
func (a *ProofArchive) List(ctx context.Context, datasetID string) ([]blob.Info, error) {
	return a.store.List(ctx, "proofs/"+datasetID+"/")
}
