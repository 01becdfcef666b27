package apierror

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Stable error codes exposed on the public widget API.
const (
	CodeInvalidMerchantKey  = "INVALID_MERCHANT_KEY"
	CodeDomainNotAllowed    = "DOMAIN_NOT_ALLOWED"
	CodeRateLimitExceeded   = "RATE_LIMIT_EXCEEDED"
	CodeQuotaExceeded       = "QUOTA_EXCEEDED"
	CodeSessionNotFound     = "SESSION_NOT_FOUND"
	CodeSessionExpired      = "SESSION_EXPIRED"
	CodeTryOnLimitReached   = "TRY_ON_LIMIT_REACHED"
	CodeInvalidSessionState = "INVALID_SESSION_STATE"
	CodeInvalidRequest      = "INVALID_REQUEST"
	CodeInvalidUserImage    = "INVALID_USER_IMAGE"
	CodeInvalidProductImage = "INVALID_PRODUCT_IMAGE"
	CodeProcessingFailed    = "PROCESSING_FAILED"
	CodeInternalError       = "INTERNAL_ERROR"
)

// statusByCode maps every public error code to its HTTP status.
var statusByCode = map[string]int{
	CodeInvalidMerchantKey:  fiber.StatusUnauthorized,
	CodeDomainNotAllowed:    fiber.StatusForbidden,
	CodeRateLimitExceeded:   fiber.StatusTooManyRequests,
	CodeQuotaExceeded:       fiber.StatusPaymentRequired,
	CodeSessionNotFound:     fiber.StatusNotFound,
	CodeSessionExpired:      fiber.StatusGone,
	CodeTryOnLimitReached:   fiber.StatusConflict,
	CodeInvalidSessionState: fiber.StatusConflict,
	CodeInvalidRequest:      fiber.StatusBadRequest,
	CodeInvalidUserImage:    fiber.StatusBadRequest,
	CodeInvalidProductImage: fiber.StatusBadRequest,
	CodeProcessingFailed:    fiber.StatusInternalServerError,
	CodeInternalError:       fiber.StatusInternalServerError,
}

// userMessageByCode holds display-safe texts for the widget frontend.
var userMessageByCode = map[string]string{
	CodeInvalidMerchantKey:  "This widget is not configured correctly. Please contact the store.",
	CodeDomainNotAllowed:    "This widget is not available on this site.",
	CodeRateLimitExceeded:   "Too many requests. Please wait a moment and try again.",
	CodeQuotaExceeded:       "The try-on service is temporarily unavailable for this store.",
	CodeSessionNotFound:     "This try-on session could not be found.",
	CodeSessionExpired:      "This try-on session has expired. Please start a new one.",
	CodeTryOnLimitReached:   "You have reached the maximum number of try-ons for this session.",
	CodeInvalidSessionState: "This try-on session can no longer accept new attempts.",
	CodeInvalidRequest:      "The request could not be understood.",
	CodeInvalidUserImage:    "The uploaded photo could not be read. Please try a different photo.",
	CodeInvalidProductImage: "The product image could not be read.",
	CodeProcessingFailed:    "Something went wrong while generating your try-on. Please try again.",
	CodeInternalError:       "Something went wrong. Please try again later.",
}

// Error is an API error carrying a stable code and both a technical and a
// display message.
type Error struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	UserMessage string `json:"userMessage"`
	RequestID   string `json:"requestId"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// New builds an Error for the given code with a fresh request ID.
func New(code, message string) *Error {
	userMessage, ok := userMessageByCode[code]
	if !ok {
		userMessage = userMessageByCode[CodeInternalError]
	}
	return &Error{
		Code:        code,
		Message:     message,
		UserMessage: userMessage,
		RequestID:   uuid.NewString(),
	}
}

// Status returns the HTTP status associated with the error code.
func (e *Error) Status() int {
	if status, ok := statusByCode[e.Code]; ok {
		return status
	}
	return fiber.StatusInternalServerError
}

// Send writes the error envelope to the fiber response.
func Send(c *fiber.Ctx, err *Error) error {
	return c.Status(err.Status()).JSON(fiber.Map{
		"success": false,
		"error":   err,
	})
}

// SendCode is shorthand for Send(c, New(code, message)).
func SendCode(c *fiber.Ctx, code, message string) error {
	return Send(c, New(code, message))
}

// Success writes the success envelope with the given payload.
func Success(c *fiber.Ctx, status int, data interface{}) error {
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}
