package controllers

import (
	"encoding/base64"
	"io"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/VirtuFitHQ/VirtuFit/app/models"
)

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// sessionPayload renders a widget session for the response envelope.
func sessionPayload(s *models.WidgetSession) fiber.Map {
	payload := fiber.Map{
		"id":         s.ID,
		"status":     s.Status,
		"tryOnCount": s.TryOnCount,
		"maxTryOns":  s.MaxTryOns,
		"remaining":  s.RemainingTryOns(),
		"product": fiber.Map{
			"id":       s.ProductID,
			"name":     s.ProductName,
			"image":    s.ProductImage,
			"category": s.ProductCategory,
			"price":    s.ProductPrice,
			"currency": s.ProductCurrency,
		},
		"createdAt":   s.CreatedAt.UTC().Format(time.RFC3339),
		"expiresAt":   s.ExpiresAt.UTC().Format(time.RFC3339),
		"completedAt": formatTimePtr(s.CompletedAt),
	}
	if s.ResultImage != "" {
		payload["resultImage"] = s.ResultImage
	}
	if s.ErrorCode != "" {
		payload["error"] = fiber.Map{"code": s.ErrorCode, "message": s.ErrorMessage}
	}
	return payload
}

// extractPhoto pulls the user photo out of the request: a multipart form file
// named "photo", or a base64 "photo" field in a JSON body (data URLs are
// accepted and stripped).
func extractPhoto(c *fiber.Ctx) ([]byte, bool) {
	if file, err := c.FormFile("photo"); err == nil && file != nil {
		f, err := file.Open()
		if err != nil {
			return nil, false
		}
		defer f.Close()

		data, err := io.ReadAll(f)
		if err != nil {
			return nil, false
		}
		return data, true
	}

	var body struct {
		Photo string `json:"photo"`
	}
	if err := c.BodyParser(&body); err != nil || body.Photo == "" {
		return nil, false
	}

	encoded := body.Photo
	// Strip a data URL prefix like data:image/jpeg;base64,
	if strings.HasPrefix(encoded, "data:") {
		if i := strings.Index(encoded, ","); i >= 0 {
			encoded = encoded[i+1:]
		}
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, false
	}
	return data, true
}
