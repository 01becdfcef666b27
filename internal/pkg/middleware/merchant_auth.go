package middleware

import (
	"errors"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/VirtuFitHQ/VirtuFit/app/models"
	"github.com/VirtuFitHQ/VirtuFit/app/repository"
	"github.com/VirtuFitHQ/VirtuFit/internal/pkg/apierror"
	"github.com/VirtuFitHQ/VirtuFit/internal/pkg/domainmatch"
	"github.com/VirtuFitHQ/VirtuFit/internal/pkg/merchantcontext"
)

// Locals key holding the full merchant record for downstream handlers.
const MerchantRecordKey = "MERCHANT_RECORD"

// Stub function variable so tests can swap in an in-memory repository.
var MerchantRepositoryImplementation = func() repository.MerchantRepository {
	return repository.GetGlobalFactory().GetMerchantRepository()
}

// MerchantAuthMiddleware authenticates requests carrying a merchant API key.
// Live keys additionally pass the origin through the domain matcher; test
// keys bypass domain checks entirely as a documented development convenience.
func MerchantAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		apiKey := extractMerchantKey(c)
		if apiKey == "" {
			return apierror.SendCode(c, apierror.CodeInvalidMerchantKey, "Missing merchant API key")
		}

		mode := models.ModeOfKey(apiKey)
		if mode == models.KeyModeInvalid {
			return apierror.SendCode(c, apierror.CodeInvalidMerchantKey, "Malformed merchant API key")
		}

		repo := MerchantRepositoryImplementation()
		merchant, matchedMode, err := repo.GetByKeyHash(models.HashAPIKey(apiKey))
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apierror.SendCode(c, apierror.CodeInvalidMerchantKey, "Unknown merchant API key")
			}
			log.Printf("merchant key lookup failed: %v", err)
			return apierror.SendCode(c, apierror.CodeInternalError, "Merchant key verification failed")
		}

		if !merchant.IsActive() {
			return apierror.SendCode(c, apierror.CodeInvalidMerchantKey, "Merchant account is not active")
		}

		if matchedMode == models.KeyModeLive {
			originHost := domainmatch.HostFromOrigin(requestOrigin(c))
			if !domainmatch.IsAllowed(originHost, merchant.DomainList()) {
				return apierror.SendCode(c, apierror.CodeDomainNotAllowed,
					"Origin "+originHost+" is not in the merchant's allowed domains")
			}
		}

		// Refresh last-used timestamp best-effort.
		if err := repo.TouchKeyUsage(merchant.ID); err != nil {
			log.Printf("failed to update key usage timestamp for merchant %d: %v", merchant.ID, err)
		}

		merchantcontext.Set(c, merchantcontext.MerchantContext{
			MerchantID:    merchant.ID,
			BusinessName:  merchant.BusinessName,
			Plan:          merchant.Plan,
			KeyMode:       matchedMode,
			Authenticated: true,
		})
		c.Locals(MerchantRecordKey, merchant)

		return c.Next()
	}
}

// GetMerchantRecord returns the authenticated merchant stored by the auth
// middleware, or nil when the request is unauthenticated.
func GetMerchantRecord(c *fiber.Ctx) *models.Merchant {
	if v := c.Locals(MerchantRecordKey); v != nil {
		if m, ok := v.(*models.Merchant); ok {
			return m
		}
	}
	return nil
}

func extractMerchantKey(c *fiber.Ctx) string {
	apiKey := strings.TrimSpace(c.Get("X-Merchant-Key"))
	if apiKey != "" {
		return apiKey
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func requestOrigin(c *fiber.Ctx) string {
	if origin := strings.TrimSpace(c.Get(fiber.HeaderOrigin)); origin != "" {
		return origin
	}
	return strings.TrimSpace(c.Get(fiber.HeaderReferer))
}
