package core

import (
	"context"
	"fmt"

	"datamarket/pkg/domain"
)

// NewCloseGuardRule blocks deleting a dataset that has been purchased.
func NewCloseGuardRule() domain.Rule {
	return closeGuardRule{}
}

type closeGuardRule struct{}

func (closeGuardRule) Name() string { return "close_guard" }

func (r closeGuardRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	closed := make(map[string]Dataset)
	for _, c := range changes {
		if c.Entity != EntityDataset || c.Action != ActionDelete {
			continue
		}
		d, _ := domain.DecodePayload[Dataset](c.Before)
		d.ID = c.EntityID
		closed[c.EntityID] = d
	}
	if len(closed) == 0 {
		return domain.Result{}, nil
	}
	res := domain.Result{}
	referenced := make(map[string]int)
	for _, p := range view.ListPurchases() {
		if _, ok := closed[p.DatasetID]; ok {
			referenced[p.DatasetID]++
		}
	}
	for id, d := range closed {
		if d.PurchaseCount > 0 || referenced[id] > 0 {
			res.Violations = append(res.Violations, blocking(r.Name(), domain.CodeHasPurchases, EntityDataset, id,
				fmt.Sprintf("dataset %s closed with %d purchases", id, max(d.PurchaseCount, uint64(referenced[id])))))
		}
	}
	return res, nil
}
