// Package widgetsession owns the widget session state machine: creation,
// expiry, try-on admission and result recording. No other component writes
// session status, counters or result fields.
package widgetsession

import (
	"errors"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/VirtuFitHQ/VirtuFit/app/models"
	"github.com/VirtuFitHQ/VirtuFit/app/repository"
)

// Admission errors returned by BeginTryOn and Get.
var (
	ErrNotFound     = errors.New("session not found")
	ErrExpired      = errors.New("session expired")
	ErrLimitReached = errors.New("try-on limit reached")
	ErrInvalidState = errors.New("session does not accept try-ons")
)

// Config tunes session defaults and the completion policy.
type Config struct {
	DefaultTTL       time.Duration
	DefaultMaxTryOns int
	// CompleteOnLimit controls whether a successful attempt that reaches
	// maxTryOns transitions the session to completed (true, the default) or
	// leaves it pending until deleted or expired (false). Admission still
	// rejects once the counter hits the limit either way.
	CompleteOnLimit bool
}

// Manager coordinates all widget session state transitions.
type Manager struct {
	sessions repository.SessionRepository
	cfg      Config
	now      func() time.Time
}

// NewManager creates a session manager. Zero config fields fall back to the
// model defaults (3 try-ons, 30 minute TTL, complete-on-limit).
func NewManager(sessions repository.SessionRepository, cfg Config) *Manager {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = models.DefaultSessionTTL
	}
	if cfg.DefaultMaxTryOns <= 0 {
		cfg.DefaultMaxTryOns = models.DefaultMaxTryOns
	}
	return &Manager{
		sessions: sessions,
		cfg:      cfg,
		now:      time.Now,
	}
}

// SetClock overrides the time source.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// CreateInput carries everything needed to open a session. The product
// fields are snapshotted; the merchant catalog is never consulted again.
type CreateInput struct {
	MerchantID      uint
	ProductID       string
	ProductName     string
	ProductImage    string
	ProductCategory string
	ProductPrice    float64
	ProductCurrency string
	ShopperRef      string
	CallbackURL     string
	MaxTryOns       int           // 0 = default
	TTL             time.Duration // 0 = default
}

// Create opens a new pending session. Always succeeds given a valid merchant.
func (m *Manager) Create(in CreateInput) (*models.WidgetSession, error) {
	id, err := models.NewSessionID()
	if err != nil {
		return nil, err
	}

	maxTryOns := in.MaxTryOns
	if maxTryOns <= 0 {
		maxTryOns = m.cfg.DefaultMaxTryOns
	}
	ttl := in.TTL
	if ttl <= 0 {
		ttl = m.cfg.DefaultTTL
	}

	now := m.now()
	session := &models.WidgetSession{
		ID:              id,
		MerchantID:      in.MerchantID,
		ProductID:       in.ProductID,
		ProductName:     in.ProductName,
		ProductImage:    in.ProductImage,
		ProductCategory: in.ProductCategory,
		ProductPrice:    in.ProductPrice,
		ProductCurrency: in.ProductCurrency,
		ShopperRef:      in.ShopperRef,
		CallbackURL:     in.CallbackURL,
		TryOnCount:      0,
		MaxTryOns:       maxTryOns,
		Status:          models.SESSION_PENDING,
		CreatedAt:       now,
		ExpiresAt:       now.Add(ttl),
	}

	if err := m.sessions.Create(session); err != nil {
		return nil, err
	}
	m.mirrorStatus(session.ID, session.Status)
	return session, nil
}

// Get loads a session and applies the read-time expiry override: the
// returned status is the effective one, never a stale pending.
func (m *Manager) Get(id string) (*models.WidgetSession, error) {
	session, err := m.sessions.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	session.Status = session.EffectiveStatus(m.now())
	return session, nil
}

// BeginTryOn admits one try-on attempt via the storage-level conditional
// claim. On success the session is in processing and belongs to the caller
// until RecordSuccess or RecordFailure. Concurrent claims on the same session
// cannot both win.
func (m *Manager) BeginTryOn(id string) (*models.WidgetSession, error) {
	now := m.now()
	claimed, err := m.sessions.ClaimTryOn(id, now)
	if err != nil {
		return nil, err
	}
	if claimed {
		session, err := m.sessions.GetByID(id)
		if err != nil {
			return nil, err
		}
		m.mirrorStatus(id, models.SESSION_PROCESSING)
		return session, nil
	}

	// The claim lost; reload to find out why. Expiry outranks every other
	// rejection reason.
	session, err := m.sessions.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	switch {
	case session.EffectiveStatus(now) == models.SESSION_EXPIRED:
		return nil, ErrExpired
	case session.TryOnCount >= session.MaxTryOns:
		return nil, ErrLimitReached
	default:
		return nil, ErrInvalidState
	}
}

// RecordSuccess finishes a claimed attempt: the counter is incremented, the
// result image stored and the session moved to its next state according to
// the completion policy.
func (m *Manager) RecordSuccess(session *models.WidgetSession, resultImage string) (*models.WidgetSession, error) {
	now := m.now()

	nextStatus := models.SESSION_PENDING
	if m.cfg.CompleteOnLimit && session.TryOnCount+1 >= session.MaxTryOns {
		nextStatus = models.SESSION_COMPLETED
	}

	if err := m.sessions.CompleteTryOn(session.ID, resultImage, nextStatus, now); err != nil {
		return nil, err
	}

	session.TryOnCount++
	session.Status = nextStatus
	session.ResultImage = resultImage
	session.CompletedAt = &now
	m.mirrorStatus(session.ID, nextStatus)
	return session, nil
}

// RecordFailure moves a claimed attempt to failed. The try-on counter and the
// merchant quota stay untouched.
func (m *Manager) RecordFailure(session *models.WidgetSession, errorCode, errorMessage string) error {
	if err := m.sessions.FailTryOn(session.ID, errorCode, errorMessage); err != nil {
		return err
	}
	session.Status = models.SESSION_FAILED
	session.ErrorCode = errorCode
	session.ErrorMessage = errorMessage
	m.mirrorStatus(session.ID, models.SESSION_FAILED)
	return nil
}

// Delete force-expires a session. Calling it on an already terminal session
// is a no-op, which makes the operation idempotent.
func (m *Manager) Delete(id string) error {
	if _, err := m.sessions.GetByID(id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	if err := m.sessions.MarkExpired(id); err != nil {
		return err
	}
	m.mirrorStatus(id, models.SESSION_EXPIRED)
	return nil
}

// StartSweeper launches a background ticker that marks overdue sessions
// expired to keep storage tidy. Lazy read-time expiry stays authoritative;
// the sweep only persists what reads already report. The returned function
// stops the sweeper.
func (m *Manager) StartSweeper(interval time.Duration) func() {
	stopCh := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				n, err := m.sessions.ExpireOverdue(m.now())
				if err != nil {
					fiberlog.Errorf("[SessionSweeper] sweep failed: %v", err)
					continue
				}
				if n > 0 {
					fiberlog.Infof("[SessionSweeper] marked %d sessions expired", n)
				}
			}
		}
	}()
	return func() { close(stopCh) }
}

// mirrorStatus updates the cache mirror best-effort.
func (m *Manager) mirrorStatus(id, status string) {
	if err := SetSessionStatus(id, status); err != nil {
		fiberlog.Warnf("[WidgetSession] failed to mirror status for %s: %v", id, err)
	}
}
