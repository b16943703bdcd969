// Package validation holds the pure field predicates every marketplace
// transition runs before it touches a record. Each check returns nil or a
// *domain.Error carrying the precise failure code.
package validation

import (
	"encoding/hex"
	"strings"

	"datamarket/pkg/domain"
)

// Key checks an internal listing key after trimming.
func Key(key string) error {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return domain.NewError(domain.CodeInvalidKey, "key must not be empty")
	}
	if len(trimmed) > domain.MaxKeyLength {
		return domain.NewError(domain.CodeInvalidKey, "key exceeds %d characters", domain.MaxKeyLength)
	}
	return nil
}

// FileKey checks the storage key used to derive a computed digest.
func FileKey(key string) error {
	if key == "" {
		return domain.NewError(domain.CodeInvalidKey, "file key must not be empty")
	}
	if len(key) > domain.MaxFileKeyLength {
		return domain.NewError(domain.CodeInvalidKey, "file key exceeds %d characters", domain.MaxFileKeyLength)
	}
	return nil
}

// URI checks a metadata reference after trimming.
func URI(uri string) error {
	trimmed := strings.TrimSpace(uri)
	if trimmed == "" {
		return domain.NewError(domain.CodeInvalidURI, "metadata uri must not be empty")
	}
	if len(trimmed) > domain.MaxURILength {
		return domain.NewError(domain.CodeInvalidURI, "metadata uri exceeds %d characters", domain.MaxURILength)
	}
	return nil
}

// HashHex checks a hex-encoded digest and returns it decoded.
func HashHex(s string) (domain.Digest, error) {
	if len(s) != hex.EncodedLen(domain.DigestSize) {
		return domain.Digest{}, domain.NewError(domain.CodeInvalidHash, "hash must be %d hex characters, got %d", hex.EncodedLen(domain.DigestSize), len(s))
	}
	d, err := domain.ParseDigest(s)
	if err != nil {
		return domain.Digest{}, domain.WrapError(domain.CodeInvalidHash, err, "invalid hash")
	}
	return d, Digest(d)
}

// Digest rejects the all-zero digest.
func Digest(d domain.Digest) error {
	if d.IsZero() {
		return domain.NewError(domain.CodeInvalidHash, "hash must not be all zero")
	}
	return nil
}

// Price checks the listing price bounds, both inclusive.
func Price(price uint64) error {
	if price < domain.MinPrice || price > domain.MaxPrice {
		return domain.NewError(domain.CodeInvalidPrice, "price %d outside [%d, %d]", price, domain.MinPrice, domain.MaxPrice)
	}
	return nil
}

// Score checks a verification score.
func Score(score int) error {
	if score < 0 || score > int(domain.MaxScore) {
		return domain.NewError(domain.CodeInvalidScore, "score %d outside [0, %d]", score, domain.MaxScore)
	}
	return nil
}

// Listable requires a verified score strictly above the listing threshold.
func Listable(v domain.Verification) error {
	if v.Status != domain.VerificationVerified {
		return domain.NewError(domain.CodeInsufficientVerification, "dataset is not verified")
	}
	if v.Score <= domain.ListingThreshold {
		return domain.NewError(domain.CodeInsufficientVerification, "score %d does not exceed %d", v.Score, domain.ListingThreshold)
	}
	return nil
}

// Bps checks a basis point rate against the 100% ceiling.
func Bps(bps uint64) error {
	if bps > domain.MaxBps {
		return domain.NewError(domain.CodeFeeTooHigh, "%d bps exceeds %d", bps, domain.MaxBps)
	}
	return nil
}

// PlatformFee checks the platform fee against the fee cap.
func PlatformFee(bps uint64) error {
	if bps > domain.FeeCapBps {
		return domain.NewError(domain.CodeFeeTooHigh, "platform fee %d bps exceeds cap %d", bps, domain.FeeCapBps)
	}
	return nil
}

// Size rejects a zero file size.
func Size(size uint64) error {
	if size == 0 {
		return domain.NewError(domain.CodeInvalidSize, "file size must be greater than zero")
	}
	return nil
}

// Amount rejects a zero transfer amount.
func Amount(amount uint64) error {
	if amount == 0 {
		return domain.NewError(domain.CodeInvalidAmount, "amount must be greater than zero")
	}
	return nil
}

// Destination checks a payment destination principal.
func Destination(p domain.Principal) error {
	if p.IsZero() || p.Reserved() {
		return domain.NewError(domain.CodeInvalidPaymentDestination, "invalid payment destination %q", p)
	}
	return nil
}

// Principal checks that an acting principal is set and is not a system account.
func Principal(p domain.Principal) error {
	if p.IsZero() || p.Reserved() {
		return domain.NewError(domain.CodeUnauthorized, "principal %q cannot act", p)
	}
	return nil
}

// Access checks a requested access type.
func Access(t domain.AccessType) error {
	if !t.Valid() {
		return domain.NewError(domain.CodeInvalidAccess, "unknown access type %q", t)
	}
	return nil
}

// VerifierType checks the mechanism named by a verification.
func VerifierType(t domain.VerifierType) error {
	if !t.Valid() {
		return domain.NewError(domain.CodeInvalidVerifier, "unknown verifier type %q", t)
	}
	return nil
}
