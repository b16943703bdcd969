package core

import (
	"context"

	"datamarket/pkg/domain"
)

// GetPlatformConfig returns the platform singleton.
func (s *Service) GetPlatformConfig(ctx context.Context) (PlatformConfig, error) {
	var cfg PlatformConfig
	err := s.store.View(ctx, func(v TransactionView) error {
		var ok bool
		cfg, ok = v.PlatformConfig()
		if !ok {
			return domain.NewError(domain.CodeNotInitialized, "platform is not initialized")
		}
		return nil
	})
	return cfg, err
}

// GetDataset returns one dataset.
func (s *Service) GetDataset(ctx context.Context, id string) (Dataset, error) {
	var d Dataset
	err := s.store.View(ctx, func(v TransactionView) error {
		var ok bool
		d, ok = v.FindDataset(id)
		if !ok {
			return domain.NewError(domain.CodeNotFound, "dataset %s not found", id)
		}
		return nil
	})
	return d, err
}

// ListDatasets returns every dataset, or only those of owner when it is set.
func (s *Service) ListDatasets(ctx context.Context, owner Principal) ([]Dataset, error) {
	var out []Dataset
	err := s.store.View(ctx, func(v TransactionView) error {
		for _, d := range v.ListDatasets() {
			if owner.IsZero() || d.Owner == owner {
				out = append(out, d)
			}
		}
		return nil
	})
	return out, err
}

// GetPurchase returns one purchase by its ID.
func (s *Service) GetPurchase(ctx context.Context, id string) (Purchase, error) {
	var p Purchase
	err := s.store.View(ctx, func(v TransactionView) error {
		var ok bool
		p, ok = v.FindPurchase(id)
		if !ok {
			return domain.NewError(domain.CodeNotFound, "purchase %s not found", id)
		}
		return nil
	})
	return p, err
}

// ListPurchases returns the purchases of datasetID, or all of them when it is
// empty.
func (s *Service) ListPurchases(ctx context.Context, datasetID string) ([]Purchase, error) {
	var out []Purchase
	err := s.store.View(ctx, func(v TransactionView) error {
		for _, p := range v.ListPurchases() {
			if datasetID == "" || p.DatasetID == datasetID {
				out = append(out, p)
			}
		}
		return nil
	})
	return out, err
}

// Balance returns the value held by principal.
func (s *Service) Balance(ctx context.Context, principal Principal) (uint64, error) {
	var amount uint64
	err := s.store.View(ctx, func(v TransactionView) error {
		amount = v.Balance(principal)
		return nil
	})
	return amount, err
}

// Ledger returns every ledger entry in sequence order.
func (s *Service) Ledger(ctx context.Context) ([]LedgerEntry, error) {
	var out []LedgerEntry
	err := s.store.View(ctx, func(v TransactionView) error {
		out = v.ListLedgerEntries()
		return nil
	})
	return out, err
}

// Events returns up to limit outbox events after the given sequence.
func (s *Service) Events(ctx context.Context, after uint64, limit int) ([]Event, error) {
	var out []Event
	err := s.store.View(ctx, func(v TransactionView) error {
		out = v.ListEvents(after, limit)
		return nil
	})
	return out, err
}
