package core

import (
	"context"
	"fmt"

	"datamarket/pkg/domain"
)

// NewSinglePurchaseRule blocks any change set that leaves a buyer holding more
// than one purchase of the same dataset.
func NewSinglePurchaseRule() domain.Rule {
	return singlePurchaseRule{}
}

type singlePurchaseRule struct{}

func (singlePurchaseRule) Name() string { return "single_purchase" }

func (r singlePurchaseRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	created := createdPurchases(changes)
	if len(created) == 0 {
		return domain.Result{}, nil
	}
	type pair struct {
		buyer   Principal
		dataset string
	}
	held := make(map[pair]int)
	for _, p := range view.ListPurchases() {
		held[pair{p.Buyer, p.DatasetID}]++
	}
	res := domain.Result{}
	for _, p := range created {
		if want := domain.PurchaseIDFor(p.Buyer, p.DatasetID); p.ID != want {
			res.Violations = append(res.Violations, blocking(r.Name(), domain.CodeAlreadyPurchased, EntityPurchase, p.ID,
				fmt.Sprintf("purchase %s is not addressed by buyer and dataset", p.ID)))
			continue
		}
		if n := held[pair{p.Buyer, p.DatasetID}]; n > 1 {
			res.Violations = append(res.Violations, blocking(r.Name(), domain.CodeAlreadyPurchased, EntityPurchase, p.ID,
				fmt.Sprintf("%s holds %d purchases of %s", p.Buyer, n, p.DatasetID)))
		}
	}
	return res, nil
}
