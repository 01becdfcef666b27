package merchantcontext

import (
	"github.com/gofiber/fiber/v2"

	"github.com/VirtuFitHQ/VirtuFit/app/models"
)

// Locals key under which the authenticated merchant context is stored.
const ContextKey = "MERCHANT_CONTEXT"

// MerchantContext is the request-scoped authenticated merchant. Handlers read
// credentials from here instead of any ambient/global state.
type MerchantContext struct {
	MerchantID    uint           `json:"merchant_id"`
	BusinessName  string         `json:"business_name"`
	Plan          string         `json:"plan"`
	KeyMode       models.KeyMode `json:"key_mode"`
	Authenticated bool           `json:"authenticated"`
}

// Set stores the merchant context on the fiber request.
func Set(c *fiber.Ctx, ctx MerchantContext) {
	c.Locals(ContextKey, ctx)
}

// Get retrieves the merchant context from the fiber request. Returns an
// unauthenticated context if none is set.
func Get(c *fiber.Ctx) MerchantContext {
	if ctx := c.Locals(ContextKey); ctx != nil {
		return ctx.(MerchantContext)
	}
	return MerchantContext{Authenticated: false}
}

// MerchantID returns the current merchant's ID, or 0 if unauthenticated.
func MerchantID(c *fiber.Ctx) uint {
	return Get(c).MerchantID
}

// IsTestMode reports whether the request authenticated with a test key.
func IsTestMode(c *fiber.Ctx) bool {
	return Get(c).KeyMode == models.KeyModeTest
}
