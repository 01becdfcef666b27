package models

import "time"

// Webhook event types emitted over the session lifecycle.
const (
	EventSessionCreated = "session.created"
	EventTryOnCompleted = "try_on.completed"
	EventTryOnFailed    = "try_on.failed"
	EventSessionExpired = "session.expired"
)

// Webhook delivery statuses.
const (
	WebhookDelivered = "delivered"
	WebhookFailed    = "failed"
)

// WebhookEvent records one best-effort webhook dispatch to a merchant
// callback URL. Delivery failures are logged here, never surfaced to the
// widget caller.
type WebhookEvent struct {
	ID          string     `gorm:"primaryKey;type:varchar(40)" json:"id"`
	MerchantID  uint       `gorm:"index;not null" json:"merchant_id"`
	SessionID   string     `gorm:"type:varchar(40);index;not null" json:"session_id"`
	EventType   string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	PayloadJSON string     `gorm:"type:longtext;not null" json:"payload_json"`
	TargetURL   string     `gorm:"type:varchar(2048);not null" json:"target_url"`
	Status      string     `gorm:"type:varchar(20);index" json:"status"`
	Attempts    int        `gorm:"not null;default:0" json:"attempts"`
	LastError   string     `gorm:"type:text" json:"last_error,omitempty"`
	DeliveredAt *time.Time `gorm:"type:timestamp;default:null" json:"delivered_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
