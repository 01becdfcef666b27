package tryon

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/VirtuFitHQ/VirtuFit/internal/pkg/env"
)

// Provider is the external image-generation service that composites a user
// photo with a product image. Treated as an opaque remote call with a
// success or failure outcome.
type Provider interface {
	GenerateTryOn(ctx context.Context, req GenerationRequest) (*GenerationResult, error)
}

// GenerationRequest carries the product snapshot and the normalized user
// photo to the provider.
type GenerationRequest struct {
	SessionID       string
	ProductImageURL string
	ProductName     string
	ProductCategory string
	UserPhoto       []byte
}

// GenerationResult is the provider's answer on success.
type GenerationResult struct {
	ImageURL string
}

// HTTPProvider calls a JSON-over-HTTP generation endpoint.
type HTTPProvider struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// DefaultProviderTimeout bounds one generation call. Timeouts are treated
// identically to provider failures by the orchestrator.
const DefaultProviderTimeout = 60 * time.Second

// NewHTTPProviderFromEnv builds the provider client from TRYON_PROVIDER_URL
// and TRYON_PROVIDER_KEY.
func NewHTTPProviderFromEnv() *HTTPProvider {
	return &HTTPProvider{
		endpoint: env.GetEnv("TRYON_PROVIDER_URL", ""),
		apiKey:   env.GetEnv("TRYON_PROVIDER_KEY", ""),
		client:   &http.Client{Timeout: DefaultProviderTimeout},
	}
}

type providerRequest struct {
	SessionID       string `json:"session_id"`
	ProductImage    string `json:"product_image"`
	ProductName     string `json:"product_name"`
	ProductCategory string `json:"product_category,omitempty"`
	UserPhoto       string `json:"user_photo"` // base64 JPEG
}

type providerResponse struct {
	Success  bool     `json:"success"`
	ImageURL string   `json:"image_url"`
	Errors   []string `json:"errors"`
}

// GenerateTryOn posts the generation request and decodes the outcome. A
// non-2xx status, transport error or ctx timeout all count as provider
// failure.
func (p *HTTPProvider) GenerateTryOn(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	if p.endpoint == "" {
		return nil, fmt.Errorf("try-on provider endpoint is not configured")
	}

	body, err := json.Marshal(providerRequest{
		SessionID:       req.SessionID,
		ProductImage:    req.ProductImageURL,
		ProductName:     req.ProductName,
		ProductCategory: req.ProductCategory,
		UserPhoto:       base64.StdEncoding.EncodeToString(req.UserPhoto),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode provider request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var decoded providerResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode provider response: %w", err)
	}

	if !decoded.Success || decoded.ImageURL == "" {
		errorMsg := "provider reported failure"
		if len(decoded.Errors) > 0 {
			errorMsg = errorMsg + ": " + strings.Join(decoded.Errors, ", ")
		}
		return nil, errors.New(errorMsg)
	}

	return &GenerationResult{ImageURL: decoded.ImageURL}, nil
}
