// Package webhook delivers session lifecycle events to merchant callback
// URLs. Delivery is best-effort: failures are logged and recorded on the
// event row, never propagated to the widget caller.
package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/VirtuFitHQ/VirtuFit/app/models"
	"github.com/VirtuFitHQ/VirtuFit/app/repository"
	"github.com/VirtuFitHQ/VirtuFit/internal/pkg/env"
)

const deliveryTimeout = 10 * time.Second

// Notifier dispatches signed webhook events.
type Notifier struct {
	events repository.WebhookEventRepository
	client *http.Client
	secret string
}

// NewNotifier creates a notifier; the signing secret comes from
// WEBHOOK_SIGNING_SECRET.
func NewNotifier(events repository.WebhookEventRepository) *Notifier {
	return &Notifier{
		events: events,
		client: &http.Client{Timeout: deliveryTimeout},
		secret: env.GetEnv("WEBHOOK_SIGNING_SECRET", ""),
	}
}

type eventPayload struct {
	Event      string         `json:"event"`
	MerchantID uint           `json:"merchant_id"`
	Session    sessionPayload `json:"session"`
	Timestamp  string         `json:"timestamp"`
}

type sessionPayload struct {
	ID          string `json:"id"`
	ProductID   string `json:"product_id"`
	Status      string `json:"status"`
	TryOnCount  int    `json:"try_on_count"`
	MaxTryOns   int    `json:"max_try_ons"`
	ResultImage string `json:"result_image,omitempty"`
	ErrorCode   string `json:"error_code,omitempty"`
}

// SessionEvent dispatches one lifecycle event in the background. Sessions
// without a callback URL are skipped.
func (n *Notifier) SessionEvent(merchant *models.Merchant, session *models.WidgetSession, eventType string) {
	if session.CallbackURL == "" {
		return
	}

	payload, err := json.Marshal(eventPayload{
		Event:      eventType,
		MerchantID: merchant.ID,
		Session: sessionPayload{
			ID:          session.ID,
			ProductID:   session.ProductID,
			Status:      session.Status,
			TryOnCount:  session.TryOnCount,
			MaxTryOns:   session.MaxTryOns,
			ResultImage: session.ResultImage,
			ErrorCode:   session.ErrorCode,
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		fiberlog.Errorf("[Webhook] failed to encode %s payload for session %s: %v", eventType, session.ID, err)
		return
	}

	event := &models.WebhookEvent{
		ID:          "we_" + uuid.NewString(),
		MerchantID:  merchant.ID,
		SessionID:   session.ID,
		EventType:   eventType,
		PayloadJSON: string(payload),
		TargetURL:   session.CallbackURL,
	}
	if err := n.events.Create(event); err != nil {
		fiberlog.Errorf("[Webhook] failed to record %s for session %s: %v", eventType, session.ID, err)
	}

	go n.deliver(event, payload)
}

func (n *Notifier) deliver(event *models.WebhookEvent, payload []byte) {
	event.Attempts++

	err := n.post(event.TargetURL, payload)
	now := time.Now()
	if err != nil {
		event.Status = models.WebhookFailed
		event.LastError = err.Error()
		fiberlog.Errorf("[Webhook] delivery of %s for session %s failed: %v", event.EventType, event.SessionID, err)
	} else {
		event.Status = models.WebhookDelivered
		event.DeliveredAt = &now
	}

	if dbErr := n.events.Update(event); dbErr != nil {
		fiberlog.Errorf("[Webhook] failed to record delivery of %s for session %s: %v", event.EventType, event.SessionID, dbErr)
	}
}

func (n *Notifier) post(url string, payload []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if n.secret != "" {
		req.Header.Set("X-VirtuFit-Signature", SignPayload(payload, n.secret))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("callback returned status %d", resp.StatusCode)
	}
	return nil
}

// SignPayload computes the hex HMAC-SHA256 signature sent in the
// X-VirtuFit-Signature header.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received signature in constant time. Exposed for
// merchant-side verification examples and tests.
func VerifySignature(payload []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	decoded, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), decoded)
}
