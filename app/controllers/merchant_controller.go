package controllers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/VirtuFitHQ/VirtuFit/app/models"
	"github.com/VirtuFitHQ/VirtuFit/app/repository"
	"github.com/VirtuFitHQ/VirtuFit/internal/pkg/apierror"
	"github.com/VirtuFitHQ/VirtuFit/internal/pkg/domainmatch"
	"github.com/VirtuFitHQ/VirtuFit/internal/pkg/entitlements"
	"github.com/VirtuFitHQ/VirtuFit/internal/pkg/merchantcontext"
	"github.com/VirtuFitHQ/VirtuFit/internal/pkg/middleware"
	"github.com/VirtuFitHQ/VirtuFit/internal/pkg/quota"
)

const maxAllowedDomains = 20

// MerchantController serves the merchant account endpoints: registration,
// profile, key rotation, domain whitelist management and the webhook
// delivery log.
type MerchantController struct {
	merchants  repository.MerchantRepository
	sessions   repository.SessionRepository
	events     repository.WebhookEventRepository
	accountant *quota.Accountant
}

func NewMerchantController(merchants repository.MerchantRepository, sessions repository.SessionRepository, events repository.WebhookEventRepository, accountant *quota.Accountant) *MerchantController {
	return &MerchantController{
		merchants:  merchants,
		sessions:   sessions,
		events:     events,
		accountant: accountant,
	}
}

type registerRequest struct {
	BusinessName string   `json:"businessName" validate:"required,min=2,max=150"`
	Email        string   `json:"email" validate:"required,email,max=200"`
	Password     string   `json:"password" validate:"required,min=8,max=200"`
	Domains      []string `json:"domains" validate:"max=20"`
}

// HandleRegister creates a merchant account on the free plan and issues the
// live and test key pair. The raw keys appear in this response and are never
// retrievable again.
func (mc *MerchantController) HandleRegister(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return apierror.SendCode(c, apierror.CodeInvalidRequest, "malformed registration request")
	}
	if err := validate.Struct(&req); err != nil {
		return apierror.SendCode(c, apierror.CodeInvalidRequest, "invalid registration request: "+err.Error())
	}
	if badDomain, ok := firstInvalidDomain(req.Domains); !ok {
		return apierror.SendCode(c, apierror.CodeInvalidRequest, "invalid domain pattern: "+badDomain)
	}

	if existing, err := mc.merchants.GetByEmail(req.Email); err == nil && existing != nil {
		return apierror.SendCode(c, apierror.CodeInvalidRequest, "an account with this email already exists")
	}

	merchant, err := models.CreateMerchant(req.BusinessName, req.Email, req.Password)
	if err != nil {
		return apierror.SendCode(c, apierror.CodeInvalidRequest, "invalid registration request: "+err.Error())
	}

	merchant.MonthlyQuota = entitlements.MonthlyTryOnQuota(entitlements.PlanFree)
	resetAt := time.Now().Add(quota.BillingPeriod)
	merchant.QuotaResetAt = &resetAt
	merchant.SetDomainList(req.Domains)

	liveKey, testKey, err := merchant.IssueKeys()
	if err != nil {
		fiberlog.Errorf("[Merchant] key issue failed during registration: %v", err)
		return apierror.SendCode(c, apierror.CodeInternalError, "could not issue API keys")
	}

	if err := mc.merchants.Create(merchant); err != nil {
		fiberlog.Errorf("[Merchant] create failed for %s: %v", req.Email, err)
		return apierror.SendCode(c, apierror.CodeInternalError, "could not create merchant account")
	}

	return apierror.Success(c, fiber.StatusCreated, fiber.Map{
		"id":           merchant.ID,
		"businessName": merchant.BusinessName,
		"email":        merchant.Email,
		"plan":         merchant.Plan,
		"keys": fiber.Map{
			"live": liveKey,
			"test": testKey,
		},
		"domains": merchant.DomainList(),
	})
}

// HandleGetProfile returns the account with current quota standing. The lazy
// billing-period reset runs here so a long-idle account reads fresh numbers.
func (mc *MerchantController) HandleGetProfile(c *fiber.Ctx) error {
	merchant := middleware.GetMerchantRecord(c)
	if merchant == nil {
		return apierror.SendCode(c, apierror.CodeInvalidMerchantKey, "merchant record missing from request")
	}

	if err := mc.accountant.ResetIfDue(merchant); err != nil {
		fiberlog.Warnf("[Merchant] quota reset check failed for %d: %v", merchant.ID, err)
	}

	sessionCount, err := mc.sessions.CountByMerchant(merchant.ID)
	if err != nil {
		fiberlog.Warnf("[Merchant] session count failed for %d: %v", merchant.ID, err)
	}

	return apierror.Success(c, fiber.StatusOK, fiber.Map{
		"id":            merchant.ID,
		"businessName":  merchant.BusinessName,
		"email":         merchant.Email,
		"plan":          merchant.Plan,
		"status":        merchant.Status,
		"monthlyQuota":  merchant.MonthlyQuota,
		"quotaUsed":     merchant.QuotaUsed,
		"quotaResetAt":  formatTimePtr(merchant.QuotaResetAt),
		"domains":       merchant.DomainList(),
		"liveKeyPrefix": merchant.LiveKeyPrefix,
		"testKeyPrefix": merchant.TestKeyPrefix,
		"keysCreatedAt": formatTimePtr(merchant.KeysCreatedAt),
		"sessionCount":  sessionCount,
		"testMode":      merchantcontext.IsTestMode(c),
	})
}

// HandleRotateKeys issues a fresh key pair and invalidates the old one.
// Requires live-key authentication; a leaked test key must not be able to
// lock the merchant out.
func (mc *MerchantController) HandleRotateKeys(c *fiber.Ctx) error {
	merchant, apiErr := mc.requireLiveKey(c)
	if apiErr != nil {
		return apierror.Send(c, apiErr)
	}

	liveKey, testKey, err := merchant.IssueKeys()
	if err != nil {
		fiberlog.Errorf("[Merchant] key rotation failed for %d: %v", merchant.ID, err)
		return apierror.SendCode(c, apierror.CodeInternalError, "could not issue API keys")
	}
	if err := mc.merchants.Update(merchant); err != nil {
		fiberlog.Errorf("[Merchant] key rotation persist failed for %d: %v", merchant.ID, err)
		return apierror.SendCode(c, apierror.CodeInternalError, "could not store rotated keys")
	}

	return apierror.Success(c, fiber.StatusOK, fiber.Map{
		"keys": fiber.Map{
			"live": liveKey,
			"test": testKey,
		},
		"rotatedAt": formatTimePtr(merchant.KeysCreatedAt),
	})
}

type updateDomainsRequest struct {
	Domains []string `json:"domains" validate:"required,max=20"`
}

// HandleUpdateDomains replaces the allowed-domain whitelist. Requires
// live-key authentication.
func (mc *MerchantController) HandleUpdateDomains(c *fiber.Ctx) error {
	merchant, apiErr := mc.requireLiveKey(c)
	if apiErr != nil {
		return apierror.Send(c, apiErr)
	}

	var req updateDomainsRequest
	if err := c.BodyParser(&req); err != nil {
		return apierror.SendCode(c, apierror.CodeInvalidRequest, "malformed domain request")
	}
	if err := validate.Struct(&req); err != nil {
		return apierror.SendCode(c, apierror.CodeInvalidRequest, "invalid domain request: "+err.Error())
	}
	if badDomain, ok := firstInvalidDomain(req.Domains); !ok {
		return apierror.SendCode(c, apierror.CodeInvalidRequest, "invalid domain pattern: "+badDomain)
	}

	merchant.SetDomainList(req.Domains)
	if err := mc.merchants.Update(merchant); err != nil {
		fiberlog.Errorf("[Merchant] domain update failed for %d: %v", merchant.ID, err)
		return apierror.SendCode(c, apierror.CodeInternalError, "could not store domains")
	}

	return apierror.Success(c, fiber.StatusOK, fiber.Map{
		"domains": merchant.DomainList(),
	})
}

// HandleListWebhookDeliveries returns the webhook delivery log for one of
// the merchant's sessions.
func (mc *MerchantController) HandleListWebhookDeliveries(c *fiber.Ctx) error {
	merchant := middleware.GetMerchantRecord(c)
	if merchant == nil {
		return apierror.SendCode(c, apierror.CodeInvalidMerchantKey, "merchant record missing from request")
	}

	sessionID := c.Params("id")
	events, err := mc.events.ListBySession(sessionID)
	if err != nil {
		fiberlog.Errorf("[Merchant] webhook log lookup failed for session %s: %v", sessionID, err)
		return apierror.SendCode(c, apierror.CodeInternalError, "could not load webhook deliveries")
	}

	deliveries := make([]fiber.Map, 0, len(events))
	for _, e := range events {
		if e.MerchantID != merchant.ID {
			continue
		}
		deliveries = append(deliveries, fiber.Map{
			"id":          e.ID,
			"event":       e.EventType,
			"status":      e.Status,
			"attempts":    e.Attempts,
			"lastError":   e.LastError,
			"deliveredAt": formatTimePtr(e.DeliveredAt),
			"createdAt":   e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	return apierror.Success(c, fiber.StatusOK, fiber.Map{
		"sessionId":  sessionID,
		"deliveries": deliveries,
	})
}

func (mc *MerchantController) requireLiveKey(c *fiber.Ctx) (*models.Merchant, *apierror.Error) {
	merchant := middleware.GetMerchantRecord(c)
	if merchant == nil {
		return nil, apierror.New(apierror.CodeInvalidMerchantKey, "merchant record missing from request")
	}
	if merchantcontext.Get(c).KeyMode != models.KeyModeLive {
		return nil, apierror.New(apierror.CodeInvalidMerchantKey, "this operation requires the live API key")
	}
	return merchant, nil
}

// firstInvalidDomain validates whitelist entries and returns the first bad
// one. Valid entries are bare hostnames, optionally with a single leading
// wildcard label.
func firstInvalidDomain(domains []string) (string, bool) {
	if len(domains) > maxAllowedDomains {
		return "too many domains", false
	}
	for _, d := range domains {
		if !domainmatch.IsValidPattern(strings.TrimSpace(d)) {
			return d, false
		}
	}
	return "", true
}
