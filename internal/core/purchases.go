package core

import (
	"context"
	"strconv"
	"strings"
	"time"

	"datamarket/internal/validation"
	"datamarket/pkg/domain"
)

// Access is the outcome of an access check. Reason carries the error code
// when access is denied.
type Access struct {
	Granted  bool        `json:"granted"`
	Purchase Purchase    `json:"purchase"`
	Reason   domain.Code `json:"reason,omitempty"`
}

// Purchase buys a license to dataset id for payment. The buyer is debited the
// full payment, the owner is credited the seller share and the treasury the
// platform fee, all in the same transaction that creates the purchase.
func (s *Service) Purchase(ctx context.Context, buyer Principal, id string, payment uint64) (Purchase, Result, error) {
	var created Purchase
	res, err := s.run(ctx, OpPurchaseDataset, buyer, func(tx Transaction) (string, error) {
		if err := validation.Principal(buyer); err != nil {
			return id, err
		}
		cfg, err := requirePlatform(tx)
		if err != nil {
			return id, err
		}
		if cfg.Paused {
			return id, domain.NewError(domain.CodePlatformPaused, "platform is paused")
		}
		dataset, err := requireDataset(tx, id)
		if err != nil {
			return id, err
		}
		if err := validation.Listable(dataset.Verification); err != nil {
			return id, err
		}
		if dataset.Owner == buyer {
			return id, domain.NewError(domain.CodeSelfPurchaseNotAllowed, "owner cannot buy own dataset")
		}
		purchaseID := domain.PurchaseIDFor(buyer, id)
		if _, exists := tx.FindPurchase(purchaseID); exists {
			return purchaseID, domain.NewError(domain.CodeAlreadyPurchased, "%s already holds a license for %s", buyer, id)
		}
		if limit, ok := dataset.License.OwnerLimit(); ok && dataset.PurchaseCount >= uint64(limit) {
			return id, domain.NewError(domain.CodeMaxOwnersReached, "dataset %s reached %d owners", id, limit)
		}
		if payment < dataset.Price {
			return id, domain.NewError(domain.CodeInsufficientPayment, "payment %d below price %d", payment, dataset.Price)
		}
		split, err := SplitPayment(payment, cfg.FeeBps)
		if err != nil {
			return id, err
		}
		if err := validation.All(validation.Destination(dataset.Owner), validation.Destination(cfg.Treasury)); err != nil {
			return id, err
		}

		revenue, err := checkedAdd(dataset.Revenue, split.Seller, "dataset revenue")
		if err != nil {
			return id, err
		}
		count, err := checkedAdd(dataset.PurchaseCount, 1, "purchase count")
		if err != nil {
			return id, err
		}
		volume, err := checkedAdd(cfg.TotalVolume, split.Payment, "total volume")
		if err != nil {
			return id, err
		}
		platformRevenue, err := checkedAdd(cfg.TotalPlatformRevenue, split.Fee, "platform revenue")
		if err != nil {
			return id, err
		}
		purchases, err := checkedAdd(cfg.TotalPurchases, 1, "total purchases")
		if err != nil {
			return id, err
		}

		if held := tx.Balance(buyer); held < split.Payment {
			return id, domain.NewError(domain.CodePaymentRejected, "%s holds %d, payment needs %d", buyer, held, split.Payment)
		}
		if _, err := tx.Transfer(buyer, dataset.Owner, split.Seller, domain.LedgerPurchaseSeller, purchaseID); err != nil {
			return id, err
		}
		if _, err := tx.Transfer(buyer, cfg.Treasury, split.Fee, domain.LedgerPurchaseFee, purchaseID); err != nil {
			return id, err
		}

		now := tx.Now()
		var expires *time.Time
		if days := dataset.License.DurationDays; days != nil {
			at := now.Add(time.Duration(*days) * 24 * time.Hour)
			expires = &at
		}
		created, err = tx.CreatePurchase(Purchase{
			Base:         Base{ID: purchaseID},
			Buyer:        buyer,
			DatasetID:    id,
			AmountPaid:   split.Payment,
			PlatformFee:  split.Fee,
			SellerAmount: split.Seller,
			PurchasedAt:  now,
			ExpiresAt:    expires,
			Rights:       dataset.License.Rights,
		})
		if err != nil {
			return purchaseID, err
		}
		if _, err := tx.UpdateDataset(id, func(d *Dataset) error {
			d.Revenue = revenue
			d.PurchaseCount = count
			return nil
		}); err != nil {
			return purchaseID, err
		}
		if _, err := tx.UpdatePlatformConfig(func(c *PlatformConfig) error {
			c.TotalVolume = volume
			c.TotalPlatformRevenue = platformRevenue
			c.TotalPurchases = purchases
			return nil
		}); err != nil {
			return purchaseID, err
		}

		if err := appendEvent(tx, domain.EventDatasetPurchased, EntityPurchase, purchaseID, map[string]string{
			"dataset_id":    id,
			"buyer":         string(buyer),
			"owner":         string(dataset.Owner),
			"amount_paid":   strconv.FormatUint(split.Payment, 10),
			"platform_fee":  strconv.FormatUint(split.Fee, 10),
			"seller_amount": strconv.FormatUint(split.Seller, 10),
		}); err != nil {
			return purchaseID, err
		}
		granted := map[string]string{
			"dataset_id": id,
			"buyer":      string(buyer),
		}
		if expires != nil {
			granted["expires_at"] = expires.UTC().Format(time.RFC3339)
		}
		return purchaseID, appendEvent(tx, domain.EventAccessGranted, EntityPurchase, purchaseID, granted)
	})
	return created, res, err
}

// checkAccess applies the license checks shared by VerifyAccess and
// RecordAccess.
func checkAccess(p Purchase, found bool, t domain.AccessType, now time.Time) (Access, error) {
	if !found {
		return Access{Reason: domain.CodeNotPurchased}, domain.NewError(domain.CodeNotPurchased, "no purchase on record")
	}
	access := Access{Purchase: p}
	if p.Expired(now) {
		access.Reason = domain.CodeLicenseExpired
		return access, domain.NewError(domain.CodeLicenseExpired, "license expired at %s", p.ExpiresAt.UTC().Format(time.RFC3339))
	}
	if !p.Rights.Permits(t) {
		access.Reason = domain.CodeAccessNotPermitted
		return access, domain.NewError(domain.CodeAccessNotPermitted, "license does not permit %s", t)
	}
	access.Granted = true
	return access, nil
}

// VerifyAccess reports whether buyer may access dataset id in the given way.
// It never writes. A denial returns both the Access with its Reason and the
// matching error.
func (s *Service) VerifyAccess(ctx context.Context, buyer Principal, id string, t domain.AccessType) (Access, error) {
	if t == "" {
		t = domain.AccessView
	}
	if err := validation.Access(t); err != nil {
		return Access{}, err
	}
	var access Access
	err := s.store.View(ctx, func(v TransactionView) error {
		p, ok := v.FindPurchase(domain.PurchaseIDFor(buyer, id))
		var err error
		access, err = checkAccess(p, ok, t, s.clock.Now())
		return err
	})
	return access, err
}

// RecordAccess appends to the purchase's access log. Replaying a request ID
// returns the purchase unchanged.
func (s *Service) RecordAccess(ctx context.Context, buyer Principal, id string, t domain.AccessType, requestID string) (Purchase, Result, error) {
	var updated Purchase
	res, err := s.run(ctx, OpRecordAccess, buyer, func(tx Transaction) (string, error) {
		if t == "" {
			t = domain.AccessView
		}
		requestID = strings.TrimSpace(requestID)
		if requestID == "" {
			return id, domain.NewError(domain.CodeInvalidKey, "request id required")
		}
		if err := validation.All(validation.Principal(buyer), validation.Access(t)); err != nil {
			return id, err
		}
		purchaseID := domain.PurchaseIDFor(buyer, id)
		if applied, ok := tx.AccessRequest(requestID); ok {
			if applied != purchaseID {
				return purchaseID, domain.NewError(domain.CodeInvalidKey, "request id %q already used", requestID)
			}
			updated, _ = tx.FindPurchase(purchaseID)
			return purchaseID, nil
		}
		p, found := tx.FindPurchase(purchaseID)
		if _, err := checkAccess(p, found, t, tx.Now()); err != nil {
			return purchaseID, err
		}
		count, err := checkedAdd(p.AccessCount, 1, "access count")
		if err != nil {
			return purchaseID, err
		}
		updated, err = tx.UpdatePurchase(purchaseID, func(p *Purchase) error {
			p.AccessCount = count
			p.AccessLog = append(p.AccessLog, domain.AccessRecord{RequestID: requestID, Type: t, At: tx.Now()})
			if n := len(p.AccessLog); n > domain.AccessLogLimit {
				p.AccessLog = append([]domain.AccessRecord(nil), p.AccessLog[n-domain.AccessLogLimit:]...)
			}
			return nil
		})
		if err != nil {
			return purchaseID, err
		}
		tx.RememberAccessRequest(requestID, purchaseID)
		return purchaseID, appendEvent(tx, domain.EventAccessRecorded, EntityPurchase, purchaseID, map[string]string{
			"dataset_id":   id,
			"buyer":        string(buyer),
			"access_type":  string(t),
			"request_id":   requestID,
			"access_count": strconv.FormatUint(count, 10),
		})
	})
	return updated, res, err
}
