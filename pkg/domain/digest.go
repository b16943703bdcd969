package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

// DigestSize is the fixed length of a content digest in bytes.
const DigestSize = sha256.Size

// Digest is a fixed-length content hash. It encodes as 64 lowercase hex
// characters in JSON.
type Digest [DigestSize]byte

// ComputeDigest derives the on-record digest for a file as
// sha256(fileKey ":" datasetID ":" fileSize), with decimal integers.
func ComputeDigest(fileKey string, datasetID, fileSize uint64) Digest {
	payload := fileKey + ":" + strconv.FormatUint(datasetID, 10) + ":" + strconv.FormatUint(fileSize, 10)
	return Digest(sha256.Sum256([]byte(payload)))
}

// DigestOf hashes arbitrary bytes.
func DigestOf(b []byte) Digest {
	return Digest(sha256.Sum256(b))
}

// ParseDigest decodes a 64 character hex string.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	if len(s) != hex.EncodedLen(DigestSize) {
		return d, fmt.Errorf("digest must be %d hex characters, got %d", hex.EncodedLen(DigestSize), len(s))
	}
	if _, err := hex.Decode(d[:], []byte(s)); err != nil {
		return Digest{}, fmt.Errorf("decode digest: %w", err)
	}
	return d, nil
}

// IsZero reports whether every byte is zero.
func (d Digest) IsZero() bool { return d == Digest{} }

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// MarshalText implements encoding.TextMarshaler.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := ParseDigest(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DatasetIDFor returns the deterministic address of an owner's listing key.
func DatasetIDFor(owner Principal, key string) string {
	sum := sha256.Sum256([]byte(string(owner) + ":" + key))
	return hex.EncodeToString(sum[:])
}

// PurchaseIDFor returns the deterministic address of the single purchase a
// buyer may hold for a dataset.
func PurchaseIDFor(buyer Principal, datasetID string) string {
	sum := sha256.Sum256([]byte("purchase:" + string(buyer) + ":" + datasetID))
	return hex.EncodeToString(sum[:])
}
