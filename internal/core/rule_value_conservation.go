package core

import (
	"context"
	"fmt"
	"math/big"

	"datamarket/pkg/domain"
)

// NewValueConservationRule checks that value only enters or leaves through the
// external account. Within a transaction the sum of balance deltas must equal
// the net external flow recorded in the ledger, and the rent escrow must hold
// exactly the deposits of open datasets.
func NewValueConservationRule() domain.Rule {
	return valueConservationRule{}
}

type valueConservationRule struct{}

func (valueConservationRule) Name() string { return "value_conservation" }

func (r valueConservationRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	balances := new(big.Int)
	external := new(big.Int)
	touched := false
	for _, c := range changes {
		switch c.Entity {
		case EntityBalance:
			touched = true
			if after, ok := domain.DecodePayload[domain.Balance](c.After); ok {
				balances.Add(balances, new(big.Int).SetUint64(after.Amount))
			}
			if before, ok := domain.DecodePayload[domain.Balance](c.Before); ok {
				balances.Sub(balances, new(big.Int).SetUint64(before.Amount))
			}
		case EntityLedgerEntry:
			touched = true
			entry, ok := domain.DecodePayload[LedgerEntry](c.After)
			if !ok {
				return domain.Result{}, fmt.Errorf("decode ledger change %s", c.EntityID)
			}
			amount := new(big.Int).SetUint64(entry.Amount)
			if entry.From == domain.ExternalAccount {
				external.Add(external, amount)
			}
			if entry.To == domain.ExternalAccount {
				external.Sub(external, amount)
			}
		case EntityDataset:
			touched = true
		}
	}
	if !touched {
		return domain.Result{}, nil
	}

	res := domain.Result{}
	if balances.Cmp(external) != 0 {
		res.Violations = append(res.Violations, blocking(r.Name(), "", EntityBalance, "",
			fmt.Sprintf("balances moved by %s but external flow is %s", balances, external)))
	}
	escrowed := new(big.Int)
	for _, d := range view.ListDatasets() {
		escrowed.Add(escrowed, new(big.Int).SetUint64(d.StorageDeposit))
	}
	if held := new(big.Int).SetUint64(view.Balance(domain.RentEscrowAccount)); held.Cmp(escrowed) != 0 {
		res.Violations = append(res.Violations, blocking(r.Name(), "", EntityBalance, string(domain.RentEscrowAccount),
			fmt.Sprintf("rent escrow holds %s, open datasets deposited %s", held, escrowed)))
	}
	return res, nil
}
