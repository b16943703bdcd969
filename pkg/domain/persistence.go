package domain

import (
	"context"
	"time"
)

// Transaction exposes the record operations a persistence implementation must
// support within an atomic scope. Every mutation is recorded as a Change and
// nothing becomes visible outside the transaction until it commits.
type Transaction interface {
	Snapshot() TransactionView
	Now() time.Time

	PlatformConfig() (PlatformConfig, bool)
	CreatePlatformConfig(PlatformConfig) (PlatformConfig, error)
	UpdatePlatformConfig(mutator func(*PlatformConfig) error) (PlatformConfig, error)

	FindDataset(id string) (Dataset, bool)
	CreateDataset(Dataset) (Dataset, error)
	UpdateDataset(id string, mutator func(*Dataset) error) (Dataset, error)
	DeleteDataset(id string) error

	FindPurchase(id string) (Purchase, bool)
	CreatePurchase(Purchase) (Purchase, error)
	UpdatePurchase(id string, mutator func(*Purchase) error) (Purchase, error)

	Balance(p Principal) uint64
	Transfer(from, to Principal, amount uint64, reason LedgerReason, reference string) (LedgerEntry, error)

	AccessRequest(requestID string) (string, bool)
	RememberAccessRequest(requestID, purchaseID string)

	AppendEvent(Event) (Event, error)
}

// TransactionView provides read-only access to snapshot data for rules and queries.
type TransactionView interface {
	PlatformConfig() (PlatformConfig, bool)
	FindDataset(id string) (Dataset, bool)
	ListDatasets() []Dataset
	FindPurchase(id string) (Purchase, bool)
	ListPurchases() []Purchase
	Balance(p Principal) uint64
	ListBalances() []Balance
	ListLedgerEntries() []LedgerEntry
	ListEvents(afterSequence uint64, limit int) []Event
}

// PersistentStore is the abstraction over durable backends used by the service.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	RulesEngine() *RulesEngine
	NowFunc() func() time.Time
}
