package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/VirtuFitHQ/VirtuFit/app/models"
)

// sessionRepository implements the SessionRepository interface
type sessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository creates a new session repository instance
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

// Create creates a new widget session in the database
func (r *sessionRepository) Create(session *models.WidgetSession) error {
	return r.db.Create(session).Error
}

// GetByID retrieves a widget session by its ID
func (r *sessionRepository) GetByID(id string) (*models.WidgetSession, error) {
	var session models.WidgetSession
	err := r.db.Where("id = ?", id).First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// ClaimTryOn performs the conditional pending -> processing transition. The
// whole admission predicate sits in one UPDATE so exactly one of several
// concurrent claims on the same session can win.
func (r *sessionRepository) ClaimTryOn(id string, now time.Time) (bool, error) {
	res := r.db.Model(&models.WidgetSession{}).
		Where("id = ? AND status = ? AND try_on_count < max_try_ons AND expires_at > ?",
			id, models.SESSION_PENDING, now).
		UpdateColumn("status", models.SESSION_PROCESSING)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CompleteTryOn finishes a claimed attempt. The status guard ensures only the
// claimer can complete; the counter increment happens in the database.
func (r *sessionRepository) CompleteTryOn(id string, resultImage string, nextStatus string, completedAt time.Time) error {
	updates := map[string]any{
		"try_on_count": gorm.Expr("try_on_count + 1"),
		"result_image": resultImage,
		"status":       nextStatus,
		"completed_at": completedAt,
	}
	res := r.db.Model(&models.WidgetSession{}).
		Where("id = ? AND status = ?", id, models.SESSION_PROCESSING).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// FailTryOn releases a claimed attempt into failed without incrementing the
// try-on counter.
func (r *sessionRepository) FailTryOn(id string, errorCode string, errorMessage string) error {
	res := r.db.Model(&models.WidgetSession{}).
		Where("id = ? AND status = ?", id, models.SESSION_PROCESSING).
		Updates(map[string]any{
			"status":        models.SESSION_FAILED,
			"error_code":    errorCode,
			"error_message": errorMessage,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// MarkExpired force-expires a session. Already-terminal sessions are left
// untouched, which makes DELETE idempotent.
func (r *sessionRepository) MarkExpired(id string) error {
	return r.db.Model(&models.WidgetSession{}).
		Where("id = ? AND status NOT IN ?", id, []string{models.SESSION_COMPLETED, models.SESSION_FAILED, models.SESSION_EXPIRED}).
		UpdateColumn("status", models.SESSION_EXPIRED).Error
}

// ExpireOverdue marks all non-terminal sessions past their expiry as expired.
func (r *sessionRepository) ExpireOverdue(now time.Time) (int64, error) {
	res := r.db.Model(&models.WidgetSession{}).
		Where("status IN ? AND expires_at <= ?", []string{models.SESSION_PENDING, models.SESSION_PROCESSING}, now).
		UpdateColumn("status", models.SESSION_EXPIRED)
	return res.RowsAffected, res.Error
}

// CountByMerchant returns the number of sessions a merchant has created
func (r *sessionRepository) CountByMerchant(merchantID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.WidgetSession{}).Where("merchant_id = ?", merchantID).Count(&count).Error
	return count, err
}
