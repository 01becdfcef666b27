// Package quota tracks monthly try-on usage per merchant. The billing period
// is a fixed 30 days; resets happen lazily when usage is read.
package quota

import (
	"time"

	"github.com/VirtuFitHQ/VirtuFit/app/models"
	"github.com/VirtuFitHQ/VirtuFit/app/repository"
)

// BillingPeriod is the quota window length.
const BillingPeriod = 30 * 24 * time.Hour

// Accountant is the only component allowed to mutate quota_used and
// quota_reset_at.
type Accountant struct {
	merchants repository.MerchantRepository
	now       func() time.Time
}

// NewAccountant creates a quota accountant over the merchant repository.
func NewAccountant(merchants repository.MerchantRepository) *Accountant {
	return &Accountant{
		merchants: merchants,
		now:       time.Now,
	}
}

// SetClock overrides the time source.
func (a *Accountant) SetClock(now func() time.Time) {
	a.now = now
}

// HasQuota reports whether the merchant may complete another try-on. A nil
// monthly quota means unlimited. An overdue reset is applied first so a
// merchant is never rejected on a stale window.
func (a *Accountant) HasQuota(merchant *models.Merchant) (bool, error) {
	if err := a.ResetIfDue(merchant); err != nil {
		return false, err
	}
	if merchant.MonthlyQuota == nil {
		return true, nil
	}
	return merchant.QuotaUsed < *merchant.MonthlyQuota, nil
}

// ResetIfDue zeroes the usage counter when the reset timestamp has passed and
// advances it by whole billing periods until it lies in the future. The
// repository applies the reset conditionally, so concurrent readers perform
// it at most once; the loser simply refreshes its in-memory copy.
func (a *Accountant) ResetIfDue(merchant *models.Merchant) error {
	if merchant.QuotaResetAt == nil {
		return nil
	}
	now := a.now()
	if now.Before(*merchant.QuotaResetAt) {
		return nil
	}

	next := *merchant.QuotaResetAt
	for !next.After(now) {
		next = next.Add(BillingPeriod)
	}

	won, err := a.merchants.ResetQuota(merchant.ID, now, next)
	if err != nil {
		return err
	}
	if won {
		merchant.QuotaUsed = 0
		merchant.QuotaResetAt = &next
		return nil
	}

	// Another request reset first; reload the authoritative counters.
	fresh, err := a.merchants.GetByID(merchant.ID)
	if err != nil {
		return err
	}
	merchant.QuotaUsed = fresh.QuotaUsed
	merchant.QuotaResetAt = fresh.QuotaResetAt
	return nil
}

// Increment consumes one unit of quota. It must be called exactly once per
// successfully completed try-on and never on failure. Returns false when the
// quota was exhausted between the admission check and the completion.
func (a *Accountant) Increment(merchantID uint) (bool, error) {
	return a.merchants.IncrementQuota(merchantID)
}
