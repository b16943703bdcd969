// Package domain defines the persistent marketplace records, value types, and
// rule evaluation primitives used by datamarket.
package domain

import (
	"time"
)

// EntityType identifies the type of record stored in the marketplace state.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityPlatformConfig identifies the singleton platform configuration.
	EntityPlatformConfig EntityType = "platform_config"
	// EntityDataset identifies a dataset listing.
	EntityDataset EntityType = "dataset"
	// EntityPurchase identifies a purchase/license record.
	EntityPurchase EntityType = "purchase"
	// EntityBalance identifies a principal balance cell.
	EntityBalance EntityType = "balance"
	// EntityLedgerEntry identifies an append-only value movement.
	EntityLedgerEntry EntityType = "ledger_entry"
	// EntityEvent identifies an outbox event.
	EntityEvent EntityType = "event"
)

// Principal is an externally authenticated identity. The core only compares
// principals for equality and never interprets their contents.
type Principal string

// IsZero reports whether the principal is unset.
func (p Principal) IsZero() bool { return p == "" }

// Reserved accounts. They cannot be used as acting principals.
const (
	// ExternalAccount is the counterparty of host deposits and withdrawals.
	ExternalAccount Principal = "@external"
	// RentEscrowAccount holds refundable storage deposits for open datasets.
	RentEscrowAccount Principal = "@rent-escrow"
)

// Reserved reports whether p names one of the system accounts.
func (p Principal) Reserved() bool {
	return p == ExternalAccount || p == RentEscrowAccount
}

// Marketplace limits.
const (
	MaxKeyLength     = 64
	MaxFileKeyLength = 100
	MaxURILength     = 200

	MinPrice uint64 = 100_000
	MaxPrice uint64 = 1_000_000_000_000

	MaxScore         uint8 = 100
	ListingThreshold uint8 = 50

	MaxBps                uint64 = 10_000
	FeeCapBps             uint64 = 2_000
	DefaultPlatformFeeBps uint64 = 500

	MaxOwnersLimit  uint32 = 1_000
	MaxLicenseDays  uint32 = 3_650
	AccessLogLimit         = 32
	PlatformConfigID       = "platform"
)

// Fixed record layouts used for rent accounting. Strings are length-prefixed
// with a u32 and reserve their maximum length; optionals carry a tag byte.
const (
	recordTag        = 8
	principalSize    = 32
	u64Size          = 8
	optionalU64Size  = 1 + u64Size
	optionalU32Size  = 1 + 4
	verificationSize = 1 + 1 + 1 + DigestSize + u64Size + 4
	licenseSize      = 1 + 2 + optionalU32Size + optionalU32Size + 5
	accessRecordSize = DigestSize + 1 + u64Size

	// DatasetRecordSize is the storage footprint charged at registration.
	DatasetRecordSize = recordTag + principalSize +
		(4 + MaxKeyLength) + (4 + MaxURILength) + DigestSize +
		(4 + MaxFileKeyLength) + optionalU64Size + optionalU64Size +
		verificationSize + licenseSize +
		6*u64Size + 1

	// PurchaseRecordSize is the storage footprint of a purchase record.
	PurchaseRecordSize = recordTag + principalSize + principalSize +
		3*u64Size + u64Size + optionalU64Size + 5 + u64Size +
		4 + AccessLogLimit*accessRecordSize + 1
)

// Base contains common fields for all persistent records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PlatformConfig is the marketplace singleton. It is created once and then
// only changed by its admin.
type PlatformConfig struct {
	Base
	Admin                Principal `json:"admin"`
	Verifier             Principal `json:"verifier"`
	Treasury             Principal `json:"treasury"`
	FeeBps               uint64    `json:"fee_bps"`
	Paused               bool      `json:"paused"`
	DepositPerByte       uint64    `json:"deposit_per_byte"`
	TotalVolume          uint64    `json:"total_volume"`
	TotalPlatformRevenue uint64    `json:"total_platform_revenue"`
	TotalDatasets        uint64    `json:"total_datasets"`
	TotalPurchases       uint64    `json:"total_purchases"`
}

// VerificationStatus captures whether a dataset has been scored.
type VerificationStatus string

// Verification states.
const (
	VerificationUnverified VerificationStatus = "unverified"
	VerificationVerified   VerificationStatus = "verified"
)

// VerifierType names the mechanism the external verifier used.
type VerifierType string

// Known verifier mechanisms.
const (
	VerifierMetadata            VerifierType = "metadata"
	VerifierAIAgent             VerifierType = "ai_agent"
	VerifierZKProof             VerifierType = "zk_proof"
	VerifierHardwareAttestation VerifierType = "hardware_attestation"
)

// Valid reports whether t is a known verifier type.
func (t VerifierType) Valid() bool {
	switch t {
	case VerifierMetadata, VerifierAIAgent, VerifierZKProof, VerifierHardwareAttestation:
		return true
	}
	return false
}

// Verification is the latest verification outcome recorded for a dataset.
type Verification struct {
	Status       VerificationStatus `json:"status"`
	Score        uint8              `json:"score"`
	VerifierType VerifierType       `json:"verifier_type,omitempty"`
	ProofDigest  string             `json:"proof_digest,omitempty"`
	ProofKey     string             `json:"proof_key,omitempty"`
	VerifiedAt   *time.Time         `json:"verified_at,omitempty"`
	Round        uint32             `json:"round"`
}

// Listable reports whether the dataset may be purchased.
func (v Verification) Listable() bool {
	return v.Status == VerificationVerified && v.Score > ListingThreshold
}

// LicenseType enumerates the supported license families.
type LicenseType string

// License families.
const (
	LicenseMIT          LicenseType = "mit"
	LicenseCommercial   LicenseType = "commercial"
	LicenseResearchOnly LicenseType = "research_only"
	LicenseCustom       LicenseType = "custom"
	LicenseViewOnly     LicenseType = "view_only"
	LicenseExclusive    LicenseType = "exclusive"
)

// Valid reports whether t is a known license type.
func (t LicenseType) Valid() bool {
	switch t {
	case LicenseMIT, LicenseCommercial, LicenseResearchOnly, LicenseCustom, LicenseViewOnly, LicenseExclusive:
		return true
	}
	return false
}

// UsageRights lists what a license holder may do with the data.
type UsageRights struct {
	CommercialUse   bool `json:"commercial_use"`
	AITraining      bool `json:"ai_training"`
	DerivativeWorks bool `json:"derivative_works"`
	Redistribution  bool `json:"redistribution"`
	ConsentRequired bool `json:"consent_required"`
}

// AccessType is the kind of access a license holder requests.
type AccessType string

// Access types checked by VerifyAccess.
const (
	AccessView           AccessType = "view"
	AccessDownload       AccessType = "download"
	AccessCommercial     AccessType = "commercial"
	AccessAITraining     AccessType = "ai_training"
	AccessDerivative     AccessType = "derivative"
	AccessRedistribution AccessType = "redistribution"
)

// Valid reports whether t is a known access type.
func (t AccessType) Valid() bool {
	switch t {
	case AccessView, AccessDownload, AccessCommercial, AccessAITraining, AccessDerivative, AccessRedistribution:
		return true
	}
	return false
}

// Permits reports whether the rights allow the requested access type. View and
// download are implied by any purchase.
func (r UsageRights) Permits(t AccessType) bool {
	switch t {
	case AccessView, AccessDownload:
		return true
	case AccessCommercial:
		return r.CommercialUse
	case AccessAITraining:
		return r.AITraining
	case AccessDerivative:
		return r.DerivativeWorks
	case AccessRedistribution:
		return r.Redistribution
	}
	return false
}

// License holds the terms attached to a listing.
type License struct {
	Type         LicenseType `json:"type"`
	RoyaltyBps   uint64      `json:"royalty_bps"`
	MaxOwners    *uint32     `json:"max_owners,omitempty"`
	DurationDays *uint32     `json:"duration_days,omitempty"`
	Rights       UsageRights `json:"usage_rights"`
}

// OwnerLimit returns the maximum number of purchases, if any. Exclusive
// licenses are always capped at one.
func (l License) OwnerLimit() (uint32, bool) {
	if l.Type == LicenseExclusive {
		return 1, true
	}
	if l.MaxOwners != nil {
		return *l.MaxOwners, true
	}
	return 0, false
}

// HashSource records the inputs of a computed digest. Every field is empty when
// the digest was supplied precomputed.
type HashSource struct {
	FileKey   string  `json:"file_key,omitempty"`
	DatasetID *uint64 `json:"dataset_id,omitempty"`
	FileSize  *uint64 `json:"file_size,omitempty"`
}

// Computed reports whether the digest was derived by the engine.
func (h HashSource) Computed() bool {
	return h.FileKey != "" && h.DatasetID != nil && h.FileSize != nil
}

// Dataset is a single sellable listing.
type Dataset struct {
	Base
	Owner          Principal    `json:"owner"`
	Key            string       `json:"key"`
	MetadataURI    string       `json:"metadata_uri"`
	Hash           Digest       `json:"hash"`
	Source         HashSource   `json:"source"`
	Verification   Verification `json:"verification"`
	License        License      `json:"license"`
	Price          uint64       `json:"price"`
	Revenue        uint64       `json:"revenue"`
	PurchaseCount  uint64       `json:"purchase_count"`
	StorageDeposit uint64       `json:"storage_deposit"`
}

// AccessRecord is one entry of a purchase's access log.
type AccessRecord struct {
	RequestID string     `json:"request_id"`
	Type      AccessType `json:"type"`
	At        time.Time  `json:"at"`
}

// Purchase is the license a buyer holds over one dataset.
type Purchase struct {
	Base
	Buyer        Principal      `json:"buyer"`
	DatasetID    string         `json:"dataset_id"`
	AmountPaid   uint64         `json:"amount_paid"`
	PlatformFee  uint64         `json:"platform_fee"`
	SellerAmount uint64         `json:"seller_amount"`
	PurchasedAt  time.Time      `json:"purchased_at"`
	ExpiresAt    *time.Time     `json:"expires_at,omitempty"`
	Rights       UsageRights    `json:"usage_rights"`
	AccessCount  uint64         `json:"access_count"`
	AccessLog    []AccessRecord `json:"access_log,omitempty"`
}

// Expired reports whether a time-limited license has lapsed at now.
func (p Purchase) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && !now.Before(*p.ExpiresAt)
}

// LedgerReason explains a value movement.
type LedgerReason string

// Ledger reasons.
const (
	LedgerDeposit        LedgerReason = "deposit"
	LedgerWithdrawal     LedgerReason = "withdrawal"
	LedgerPurchaseSeller LedgerReason = "purchase_seller"
	LedgerPurchaseFee    LedgerReason = "purchase_fee"
	LedgerRentDeposit    LedgerReason = "rent_deposit"
	LedgerRentRefund     LedgerReason = "rent_refund"
)

// LedgerEntry is an append-only record of value moving between two accounts.
type LedgerEntry struct {
	ID        string       `json:"id"`
	Sequence  uint64       `json:"sequence"`
	From      Principal    `json:"from"`
	To        Principal    `json:"to"`
	Amount    uint64       `json:"amount"`
	Reason    LedgerReason `json:"reason"`
	Reference string       `json:"reference,omitempty"`
	At        time.Time    `json:"at"`
}

// Balance is the value held by a principal.
type Balance struct {
	Principal Principal `json:"principal"`
	Amount    uint64    `json:"amount"`
}
