package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	STATUS_ACTIVE    = "active"
	STATUS_SUSPENDED = "suspended"
	STATUS_DELETED   = "deleted"

	LiveKeyPrefix = "mk_live_"
	TestKeyPrefix = "mk_test_"
)

// KeyMode distinguishes live and test credentials.
type KeyMode string

const (
	KeyModeLive    KeyMode = "live"
	KeyModeTest    KeyMode = "test"
	KeyModeInvalid KeyMode = ""
)

// Merchant is a tenant account embedding the try-on widget in its storefront.
// API keys are stored as SHA-256 hashes plus a display prefix; the raw secret
// is only ever returned once at issue time.
type Merchant struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	BusinessName   string         `gorm:"type:varchar(150)" json:"business_name" validate:"required,min=2,max=150"`
	Email          string         `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,min=5,max=200"`
	Password       string         `gorm:"type:text" json:"-" validate:"required,min=8"`
	Plan           string         `gorm:"type:varchar(50);default:'free'" json:"plan"`
	Status         string         `gorm:"type:varchar(50);default:'active'" json:"status" validate:"oneof=active suspended deleted"`
	AllowedDomains string         `gorm:"type:text" json:"-"`
	MonthlyQuota   *int64         `gorm:"default:null" json:"monthly_quota"`
	QuotaUsed      int64          `gorm:"not null;default:0" json:"quota_used"`
	QuotaResetAt   *time.Time     `gorm:"type:timestamp;default:null" json:"quota_reset_at"`
	LiveKeyHash    string         `gorm:"type:char(64);uniqueIndex;default:''" json:"-"`
	LiveKeyPrefix  string         `gorm:"column:live_key_prefix;type:varchar(20);default:''" json:"live_key_prefix"`
	TestKeyHash    string         `gorm:"type:char(64);uniqueIndex;default:''" json:"-"`
	TestKeyPrefix  string         `gorm:"column:test_key_prefix;type:varchar(20);default:''" json:"test_key_prefix"`
	KeysCreatedAt  *time.Time     `json:"keys_created_at"`
	KeysLastUsedAt *time.Time     `json:"keys_last_used_at"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

func (m *Merchant) Validate() error {
	v := validator.New()

	return v.Struct(m)
}

// CreateMerchant builds a new merchant on the free plan with hashed password.
// Keys are not issued here; call IssueKeys and persist afterwards.
func CreateMerchant(businessName, email, password string) (*Merchant, error) {
	pw, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	m := &Merchant{
		BusinessName: businessName,
		Email:        email,
		Password:     pw,
		Plan:         "free",
		Status:       STATUS_ACTIVE,
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return m, nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

	return string(bytes), err
}

// CheckPassword verifies if the provided password matches the stored hash.
func (m *Merchant) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(m.Password), []byte(password)) == nil
}

// IsActive reports whether the merchant may authenticate.
func (m *Merchant) IsActive() bool {
	return m.Status == STATUS_ACTIVE
}

// DomainList returns the allowed domains as a slice. Entries are stored as a
// comma-separated list; empty string means no domains are whitelisted.
func (m *Merchant) DomainList() []string {
	if strings.TrimSpace(m.AllowedDomains) == "" {
		return nil
	}
	parts := strings.Split(m.AllowedDomains, ",")
	domains := make([]string, 0, len(parts))
	for _, p := range parts {
		if d := strings.TrimSpace(p); d != "" {
			domains = append(domains, d)
		}
	}
	return domains
}

// SetDomainList stores the allowed domains, dropping empty entries.
func (m *Merchant) SetDomainList(domains []string) {
	cleaned := make([]string, 0, len(domains))
	for _, d := range domains {
		if d = strings.TrimSpace(d); d != "" {
			cleaned = append(cleaned, strings.ToLower(d))
		}
	}
	m.AllowedDomains = strings.Join(cleaned, ",")
}

// IssueKeys generates a fresh live/test key pair, stores hashes and display
// prefixes on the struct and returns the raw secrets. Callers must persist
// the struct afterwards.
func (m *Merchant) IssueKeys() (liveKey string, testKey string, err error) {
	liveKey, livePrefix, liveHash, err := generateKeyMaterial(LiveKeyPrefix)
	if err != nil {
		return "", "", err
	}
	testKey, testPrefix, testHash, err := generateKeyMaterial(TestKeyPrefix)
	if err != nil {
		return "", "", err
	}

	now := time.Now()
	m.LiveKeyHash = liveHash
	m.LiveKeyPrefix = livePrefix
	m.TestKeyHash = testHash
	m.TestKeyPrefix = testPrefix
	m.KeysCreatedAt = &now
	m.KeysLastUsedAt = nil
	return liveKey, testKey, nil
}

// ModeOfKey classifies a raw API key by its prefix.
func ModeOfKey(raw string) KeyMode {
	switch {
	case strings.HasPrefix(raw, LiveKeyPrefix):
		return KeyModeLive
	case strings.HasPrefix(raw, TestKeyPrefix):
		return KeyModeTest
	default:
		return KeyModeInvalid
	}
}

// HashAPIKey returns the SHA-256 hash for the provided API key.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}

var apiKeyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

func generateKeyMaterial(prefix string) (string, string, string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", "", err
	}
	encoded := strings.ToLower(apiKeyEncoding.EncodeToString(b))
	rawKey := prefix + encoded
	if len(rawKey) < 20 {
		return "", "", "", fmt.Errorf("api key generation failed: key too short")
	}
	displayPrefix := rawKey[:len(prefix)+8]
	return rawKey, displayPrefix, HashAPIKey(rawKey), nil
}
