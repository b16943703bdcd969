package core

import (
	"context"
	"fmt"

	"datamarket/internal/validation"
	"datamarket/pkg/domain"
)

// NewListingThresholdRule blocks purchases of datasets that are not listable.
func NewListingThresholdRule() domain.Rule {
	return listingThresholdRule{}
}

type listingThresholdRule struct{}

func (listingThresholdRule) Name() string { return "listing_threshold" }

func (r listingThresholdRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, p := range createdPurchases(changes) {
		d, ok := view.FindDataset(p.DatasetID)
		if !ok {
			res.Violations = append(res.Violations, blocking(r.Name(), domain.CodeNotFound, EntityPurchase, p.ID,
				fmt.Sprintf("purchase %s references missing dataset %s", p.ID, p.DatasetID)))
			continue
		}
		if err := validation.Listable(d.Verification); err != nil {
			res.Violations = append(res.Violations, blocking(r.Name(), domain.CodeInsufficientVerification, EntityPurchase, p.ID,
				fmt.Sprintf("dataset %s: %s", d.ID, err.Error())))
		}
	}
	return res, nil
}
