package middleware

import (
	"log"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/VirtuFitHQ/VirtuFit/internal/pkg/apierror"
	"github.com/VirtuFitHQ/VirtuFit/internal/pkg/merchantcontext"
	"github.com/VirtuFitHQ/VirtuFit/internal/pkg/ratelimit"
)

// IPRateLimitMiddleware limits requests per client IP. It runs before
// authentication so abusive clients never reach the credential store.
func IPRateLimitMiddleware(limiter *ratelimit.Limiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return enforce(c, limiter, ClientIP(c))
	}
}

// MerchantRateLimitMiddleware limits requests per authenticated merchant.
// Must be installed after MerchantAuthMiddleware.
func MerchantRateLimitMiddleware(limiter *ratelimit.Limiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		mctx := merchantcontext.Get(c)
		if !mctx.Authenticated {
			return apierror.SendCode(c, apierror.CodeInvalidMerchantKey, "Missing merchant context")
		}
		return enforce(c, limiter, strconv.FormatUint(uint64(mctx.MerchantID), 10))
	}
}

func enforce(c *fiber.Ctx, limiter *ratelimit.Limiter, subjectID string) error {
	res, err := limiter.CheckAndIncrement(subjectID)
	if err != nil {
		// Counter store unavailable: fail open rather than take the API down.
		log.Printf("rate limiter unavailable for subject %s: %v", subjectID, err)
		return c.Next()
	}

	setRateLimitHeaders(c, res)
	if !res.Allowed {
		return apierror.SendCode(c, apierror.CodeRateLimitExceeded, "Rate limit exceeded for subject "+subjectID)
	}
	return c.Next()
}

func setRateLimitHeaders(c *fiber.Ctx, res ratelimit.Result) {
	c.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	c.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	c.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
}

// ClientIP determines the actual client IP address considering proxies.
func ClientIP(c *fiber.Ctx) string {
	// Cloudflare provides the original client IP in this header
	if cfIP := strings.TrimSpace(c.Get("CF-Connecting-IP")); cfIP != "" {
		return cfIP
	}

	// X-Forwarded-For can contain a list of IPs - the first one is the
	// original client IP
	if xff := c.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}

	return c.IP()
}
