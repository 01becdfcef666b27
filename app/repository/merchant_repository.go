package repository

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/VirtuFitHQ/VirtuFit/app/models"
)

// merchantRepository implements the MerchantRepository interface
type merchantRepository struct {
	db *gorm.DB
}

// NewMerchantRepository creates a new merchant repository instance
func NewMerchantRepository(db *gorm.DB) MerchantRepository {
	return &merchantRepository{db: db}
}

// Create creates a new merchant in the database
func (r *merchantRepository) Create(merchant *models.Merchant) error {
	return r.db.Create(merchant).Error
}

// GetByID retrieves a merchant by their ID
func (r *merchantRepository) GetByID(id uint) (*models.Merchant, error) {
	var merchant models.Merchant
	err := r.db.First(&merchant, id).Error
	if err != nil {
		return nil, err
	}
	return &merchant, nil
}

// GetByEmail retrieves a merchant by their email address
func (r *merchantRepository) GetByEmail(email string) (*models.Merchant, error) {
	var merchant models.Merchant
	err := r.db.Where("email = ?", email).First(&merchant).Error
	if err != nil {
		return nil, err
	}
	return &merchant, nil
}

// GetByKeyHash resolves an API key hash to its merchant and reports whether
// the live or the test key matched.
func (r *merchantRepository) GetByKeyHash(hash string) (*models.Merchant, models.KeyMode, error) {
	trimmed := strings.TrimSpace(hash)
	if trimmed == "" {
		return nil, models.KeyModeInvalid, gorm.ErrRecordNotFound
	}

	var merchant models.Merchant
	err := r.db.Where("live_key_hash = ? AND live_key_hash <> ''", trimmed).First(&merchant).Error
	if err == nil {
		return &merchant, models.KeyModeLive, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, models.KeyModeInvalid, err
	}

	err = r.db.Where("test_key_hash = ? AND test_key_hash <> ''", trimmed).First(&merchant).Error
	if err != nil {
		return nil, models.KeyModeInvalid, err
	}
	return &merchant, models.KeyModeTest, nil
}

// Update updates an existing merchant in the database
func (r *merchantRepository) Update(merchant *models.Merchant) error {
	return r.db.Save(merchant).Error
}

// TouchKeyUsage refreshes the last-used timestamp best-effort.
func (r *merchantRepository) TouchKeyUsage(id uint) error {
	now := time.Now()
	return r.db.Model(&models.Merchant{}).
		Where("id = ?", id).
		Updates(map[string]any{"keys_last_used_at": now}).Error
}

// IncrementQuota bumps quota_used by one iff quota remains. The guard lives
// in the WHERE clause so concurrent completions cannot push usage past the
// monthly limit.
func (r *merchantRepository) IncrementQuota(id uint) (bool, error) {
	res := r.db.Model(&models.Merchant{}).
		Where("id = ? AND (monthly_quota IS NULL OR quota_used < monthly_quota)", id).
		UpdateColumn("quota_used", gorm.Expr("quota_used + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ResetQuota zeroes the usage counter iff the stored reset timestamp is still
// the one the caller observed as due. Losing the race means another request
// already performed the reset, which is fine.
func (r *merchantRepository) ResetQuota(id uint, due time.Time, nextReset time.Time) (bool, error) {
	res := r.db.Model(&models.Merchant{}).
		Where("id = ? AND quota_reset_at IS NOT NULL AND quota_reset_at <= ?", id, due).
		Updates(map[string]any{"quota_used": 0, "quota_reset_at": nextReset})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Count returns the total number of merchants
func (r *merchantRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Merchant{}).Count(&count).Error
	return count, err
}
