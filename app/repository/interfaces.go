package repository

import (
	"time"

	"github.com/VirtuFitHQ/VirtuFit/app/models"
)

// MerchantRepository defines the interface for merchant-related database operations
type MerchantRepository interface {
	Create(merchant *models.Merchant) error
	GetByID(id uint) (*models.Merchant, error)
	GetByEmail(email string) (*models.Merchant, error)
	GetByKeyHash(hash string) (*models.Merchant, models.KeyMode, error)
	Update(merchant *models.Merchant) error
	TouchKeyUsage(id uint) error
	// IncrementQuota bumps quota_used by one iff the merchant still has quota
	// left. Returns false when the monthly limit is already reached. The
	// update is a single conditional statement so concurrent completions
	// cannot overshoot the limit.
	IncrementQuota(id uint) (bool, error)
	// ResetQuota zeroes quota_used and advances the reset timestamp iff the
	// stored reset time is still due, making lazy resets race-free.
	ResetQuota(id uint, due time.Time, nextReset time.Time) (bool, error)
	Count() (int64, error)
}

// SessionRepository defines the interface for widget session persistence.
// ClaimTryOn/CompleteTryOn/FailTryOn implement the per-session atomic
// admission described in the session manager.
type SessionRepository interface {
	Create(session *models.WidgetSession) error
	GetByID(id string) (*models.WidgetSession, error)
	// ClaimTryOn conditionally moves a pending, unexpired session with
	// remaining attempts into processing. Returns false when the condition
	// does not hold; exactly one of several concurrent claims can win.
	ClaimTryOn(id string, now time.Time) (bool, error)
	// CompleteTryOn finishes a claimed attempt: increments the counter,
	// stores the result image and moves the session to nextStatus.
	CompleteTryOn(id string, resultImage string, nextStatus string, completedAt time.Time) error
	// FailTryOn releases a claimed attempt into the failed state without
	// touching the counter.
	FailTryOn(id string, errorCode string, errorMessage string) error
	// MarkExpired force-expires a session; idempotent on already-terminal rows.
	MarkExpired(id string) error
	// ExpireOverdue sweeps all non-terminal sessions past their expiry and
	// returns how many rows were touched.
	ExpireOverdue(now time.Time) (int64, error)
	CountByMerchant(merchantID uint) (int64, error)
}

// WebhookEventRepository persists the webhook delivery log.
type WebhookEventRepository interface {
	Create(event *models.WebhookEvent) error
	Update(event *models.WebhookEvent) error
	ListBySession(sessionID string) ([]models.WebhookEvent, error)
}
