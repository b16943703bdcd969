package core

import (
	"context"
	"strconv"

	"datamarket/internal/validation"
	"datamarket/pkg/domain"
)

// Deposit credits principal with amount from outside the marketplace. The
// host is responsible for having collected the funds.
func (s *Service) Deposit(ctx context.Context, principal Principal, amount uint64) (LedgerEntry, Result, error) {
	return s.moveExternal(ctx, OpDeposit, principal, amount, domain.ExternalAccount, principal, domain.LedgerDeposit, domain.EventFundsDeposited)
}

// Withdraw pays amount out of principal's own balance.
func (s *Service) Withdraw(ctx context.Context, principal Principal, amount uint64) (LedgerEntry, Result, error) {
	return s.moveExternal(ctx, OpWithdraw, principal, amount, principal, domain.ExternalAccount, domain.LedgerWithdrawal, domain.EventFundsWithdrawn)
}

func (s *Service) moveExternal(ctx context.Context, opName string, principal Principal, amount uint64, from, to Principal, reason domain.LedgerReason, typ domain.EventType) (LedgerEntry, Result, error) {
	var entry LedgerEntry
	res, err := s.run(ctx, opName, principal, func(tx Transaction) (string, error) {
		if err := validation.All(validation.Principal(principal), validation.Amount(amount)); err != nil {
			return string(principal), err
		}
		if _, err := requirePlatform(tx); err != nil {
			return string(principal), err
		}
		var err error
		entry, err = tx.Transfer(from, to, amount, reason, "")
		if err != nil {
			return string(principal), err
		}
		return string(principal), appendEvent(tx, typ, EntityBalance, string(principal), map[string]string{
			"amount":  strconv.FormatUint(amount, 10),
			"balance": strconv.FormatUint(tx.Balance(principal), 10),
			"ledger":  entry.ID,
		})
	})
	return entry, res, err
}
