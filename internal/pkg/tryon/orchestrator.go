// Package tryon coordinates one try-on attempt end to end: admission, quota,
// photo validation, the external generation call and result recording.
package tryon

import (
	"context"
	"errors"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/VirtuFitHQ/VirtuFit/app/models"
	"github.com/VirtuFitHQ/VirtuFit/app/repository"
	"github.com/VirtuFitHQ/VirtuFit/internal/pkg/quota"
	"github.com/VirtuFitHQ/VirtuFit/internal/pkg/widgetsession"
)

// Orchestration errors beyond the session manager's admission errors.
var (
	ErrQuotaExceeded    = errors.New("monthly quota exceeded")
	ErrProcessingFailed = errors.New("try-on processing failed")
)

// Notifier emits session lifecycle events. Dispatch must be best-effort;
// the orchestrator never waits on it.
type Notifier interface {
	SessionEvent(merchant *models.Merchant, session *models.WidgetSession, eventType string)
}

// Orchestrator wires the session manager, quota accountant, generation
// provider and webhook notifier into the try-on pipeline.
type Orchestrator struct {
	sessions  *widgetsession.Manager
	merchants repository.MerchantRepository
	quota     *quota.Accountant
	provider  Provider
	notifier  Notifier
}

// NewOrchestrator creates a try-on orchestrator.
func NewOrchestrator(
	sessions *widgetsession.Manager,
	merchants repository.MerchantRepository,
	accountant *quota.Accountant,
	provider Provider,
	notifier Notifier,
) *Orchestrator {
	return &Orchestrator{
		sessions:  sessions,
		merchants: merchants,
		quota:     accountant,
		provider:  provider,
		notifier:  notifier,
	}
}

// ProcessTryOn runs one attempt. Each step short-circuits on failure:
// session admission, quota, photo validation, the atomic claim, the provider
// call, then result recording and quota consumption. Provider failures and
// timeouts move the session to failed without consuming quota.
func (o *Orchestrator) ProcessTryOn(ctx context.Context, sessionID string, photo []byte) (*models.WidgetSession, error) {
	// Read-only admission pre-check so rejection reasons keep their
	// precedence: expiry, then the counter, then terminal state.
	session, err := o.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	switch {
	case session.Status == models.SESSION_EXPIRED:
		return nil, widgetsession.ErrExpired
	case session.TryOnCount >= session.MaxTryOns:
		return nil, widgetsession.ErrLimitReached
	case session.Status != models.SESSION_PENDING:
		return nil, widgetsession.ErrInvalidState
	}

	// A session whose merchant vanished is orphaned and treated as invalid.
	merchant, err := o.merchants.GetByID(session.MerchantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, widgetsession.ErrNotFound
		}
		return nil, err
	}

	hasQuota, err := o.quota.HasQuota(merchant)
	if err != nil {
		return nil, err
	}
	if !hasQuota {
		return nil, ErrQuotaExceeded
	}

	normalized, err := NormalizePhoto(photo)
	if err != nil {
		return nil, err
	}

	// The atomic claim; a concurrent attempt may have won in the meantime.
	claimed, err := o.sessions.BeginTryOn(sessionID)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, DefaultProviderTimeout)
	defer cancel()

	result, err := o.provider.GenerateTryOn(callCtx, GenerationRequest{
		SessionID:       claimed.ID,
		ProductImageURL: claimed.ProductImage,
		ProductName:     claimed.ProductName,
		ProductCategory: claimed.ProductCategory,
		UserPhoto:       normalized,
	})
	if err != nil {
		if failErr := o.sessions.RecordFailure(claimed, "PROCESSING_FAILED", err.Error()); failErr != nil {
			fiberlog.Errorf("[TryOn] failed to record failure for session %s: %v", claimed.ID, failErr)
		}
		o.notifier.SessionEvent(merchant, claimed, models.EventTryOnFailed)
		return nil, ErrProcessingFailed
	}

	updated, err := o.sessions.RecordSuccess(claimed, result.ImageURL)
	if err != nil {
		return nil, err
	}

	incremented, err := o.quota.Increment(merchant.ID)
	if err != nil {
		fiberlog.Errorf("[TryOn] quota increment failed for merchant %d: %v", merchant.ID, err)
	} else if !incremented {
		// Quota ran out between the admission check and completion; the
		// attempt already happened, so only note the exhaustion.
		fiberlog.Warnf("[TryOn] quota exhausted during completion for merchant %d", merchant.ID)
	}

	o.notifier.SessionEvent(merchant, updated, models.EventTryOnCompleted)
	return updated, nil
}
