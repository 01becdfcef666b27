package repository

import (
	"gorm.io/gorm"

	"github.com/VirtuFitHQ/VirtuFit/app/models"
)

// webhookEventRepository implements the WebhookEventRepository interface
type webhookEventRepository struct {
	db *gorm.DB
}

// NewWebhookEventRepository creates a new webhook event repository instance
func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepository{db: db}
}

// Create persists a new webhook delivery record
func (r *webhookEventRepository) Create(event *models.WebhookEvent) error {
	return r.db.Create(event).Error
}

// Update saves delivery outcome changes on an existing record
func (r *webhookEventRepository) Update(event *models.WebhookEvent) error {
	return r.db.Save(event).Error
}

// ListBySession returns the delivery log for one session, newest first
func (r *webhookEventRepository) ListBySession(sessionID string) ([]models.WebhookEvent, error) {
	var events []models.WebhookEvent
	err := r.db.Where("session_id = ?", sessionID).Order("created_at DESC").Find(&events).Error
	return events, err
}
