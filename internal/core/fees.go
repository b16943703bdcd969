package core

import (
	"math/bits"

	"datamarket/pkg/domain"
)

// Split is the division of one payment between seller and treasury.
type Split struct {
	Payment uint64
	Fee     uint64
	Seller  uint64
}

// SplitPayment computes fee = payment*bps/10000 with truncating division and
// the seller remainder. The product must fit in 64 bits; a payment whose
// product would wrap fails with ArithmeticOverflow.
func SplitPayment(payment, bps uint64) (Split, error) {
	product, err := checkedMul(payment, bps, "fee product")
	if err != nil {
		return Split{}, err
	}
	fee := product / domain.MaxBps
	if fee > payment {
		return Split{}, domain.NewError(domain.CodeArithmeticOverflow, "fee %d exceeds payment %d", fee, payment)
	}
	return Split{Payment: payment, Fee: fee, Seller: payment - fee}, nil
}

// checkedAdd returns a+b or ArithmeticOverflow.
func checkedAdd(a, b uint64, what string) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, domain.NewError(domain.CodeArithmeticOverflow, "%s overflows", what)
	}
	return sum, nil
}

// checkedMul returns a*b or ArithmeticOverflow.
func checkedMul(a, b uint64, what string) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, domain.NewError(domain.CodeArithmeticOverflow, "%s overflows", what)
	}
	return lo, nil
}
