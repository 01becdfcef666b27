package models

import (
	"crypto/rand"
	"fmt"
	"time"
)

// Session status constants. A session whose expiresAt has passed is treated
// as expired at read time regardless of the stored status, see EffectiveStatus.
const (
	SESSION_PENDING    = "pending"
	SESSION_PROCESSING = "processing"
	SESSION_COMPLETED  = "completed"
	SESSION_FAILED     = "failed"
	SESSION_EXPIRED    = "expired"
)

const (
	DefaultMaxTryOns  = 3
	DefaultSessionTTL = 30 * time.Minute

	sessionIDPrefix     = "ws_"
	sessionIDSlugLength = 24
)

// WidgetSession is one bounded-lifetime try-on interaction for a single
// product. The product fields are a snapshot taken at creation time; the
// merchant's live catalog is never referenced afterwards.
type WidgetSession struct {
	ID              string     `gorm:"primaryKey;type:varchar(40)" json:"id"`
	MerchantID      uint       `gorm:"index;not null" json:"merchant_id"`
	ProductID       string     `gorm:"type:varchar(100);not null" json:"product_id"`
	ProductName     string     `gorm:"type:varchar(255);not null" json:"product_name"`
	ProductImage    string     `gorm:"type:varchar(2048);not null" json:"product_image"`
	ProductCategory string     `gorm:"type:varchar(100)" json:"product_category"`
	ProductPrice    float64    `gorm:"default:0" json:"product_price"`
	ProductCurrency string     `gorm:"type:varchar(10)" json:"product_currency"`
	ShopperRef      string     `gorm:"type:varchar(100)" json:"shopper_ref"`
	CallbackURL     string     `gorm:"type:varchar(2048)" json:"-"`
	TryOnCount      int        `gorm:"not null;default:0" json:"try_on_count"`
	MaxTryOns       int        `gorm:"not null;default:3" json:"max_try_ons"`
	Status          string     `gorm:"type:varchar(20);index;default:'pending'" json:"status"`
	ResultImage     string     `gorm:"type:varchar(2048)" json:"result_image,omitempty"`
	ErrorCode       string     `gorm:"type:varchar(50)" json:"error_code,omitempty"`
	ErrorMessage    string     `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	ExpiresAt       time.Time  `gorm:"index;not null" json:"expires_at"`
	CompletedAt     *time.Time `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
}

// IsExpired reports whether the session lifetime has passed.
func (s *WidgetSession) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// IsTerminal reports whether the stored status accepts no further try-ons.
func (s *WidgetSession) IsTerminal() bool {
	switch s.Status {
	case SESSION_COMPLETED, SESSION_FAILED, SESSION_EXPIRED:
		return true
	}
	return false
}

// EffectiveStatus applies the read-time expiry override: a non-terminal
// session past its expiry reports expired even though the stored column still
// says pending or processing. Terminal statuses are kept so results stay
// fetchable after the session lifetime.
func (s *WidgetSession) EffectiveStatus(now time.Time) string {
	if !s.IsTerminal() && s.IsExpired(now) {
		return SESSION_EXPIRED
	}
	return s.Status
}

// RemainingTryOns returns how many attempts are left, never negative.
func (s *WidgetSession) RemainingTryOns() int {
	remaining := s.MaxTryOns - s.TryOnCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Base62 alphabet for session ID slugs.
const sessionIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NewSessionID creates a session ID of the form ws_<slug> where the slug is a
// cryptographically secure random Base62 string. Rejection sampling avoids
// modulo bias: 248 is the largest multiple of 62 below 256.
func NewSessionID() (string, error) {
	const maxRandomByte = 248

	slug := make([]byte, sessionIDSlugLength)
	buf := make([]byte, sessionIDSlugLength*2)
	written := 0

	for written < sessionIDSlugLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read secure random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= maxRandomByte {
				continue
			}
			slug[written] = sessionIDAlphabet[int(b)%len(sessionIDAlphabet)]
			written++
			if written == sessionIDSlugLength {
				break
			}
		}
	}

	return sessionIDPrefix + string(slug), nil
}
