package controllers

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/valyala/fasthttp"

	"github.com/VirtuFitHQ/VirtuFit/app/models"
	"github.com/VirtuFitHQ/VirtuFit/internal/pkg/apierror"
	"github.com/VirtuFitHQ/VirtuFit/internal/pkg/entitlements"
	"github.com/VirtuFitHQ/VirtuFit/internal/pkg/merchantcontext"
	"github.com/VirtuFitHQ/VirtuFit/internal/pkg/middleware"
	"github.com/VirtuFitHQ/VirtuFit/internal/pkg/tryon"
	"github.com/VirtuFitHQ/VirtuFit/internal/pkg/widgetsession"
)

const (
	pollInterval    = 2 * time.Second
	pollMaxDuration = 5 * time.Minute
)

var validate = validator.New()

// WidgetController serves the widget session endpoints embedded storefronts
// talk to. Every handler runs behind the merchant auth middleware.
type WidgetController struct {
	sessions     *widgetsession.Manager
	orchestrator *tryon.Orchestrator
	notifier     tryon.Notifier
}

func NewWidgetController(sessions *widgetsession.Manager, orchestrator *tryon.Orchestrator, notifier tryon.Notifier) *WidgetController {
	return &WidgetController{
		sessions:     sessions,
		orchestrator: orchestrator,
		notifier:     notifier,
	}
}

type createSessionRequest struct {
	Product struct {
		ID       string  `json:"id" validate:"required,max=100"`
		Name     string  `json:"name" validate:"required,max=255"`
		Image    string  `json:"image" validate:"required,url,max=2048"`
		Category string  `json:"category" validate:"max=100"`
		Price    float64 `json:"price" validate:"gte=0"`
		Currency string  `json:"currency" validate:"max=10"`
	} `json:"product"`
	User struct {
		ID string `json:"id" validate:"max=100"`
	} `json:"user"`
	Options struct {
		MaxTryOns   int    `json:"maxTryOns" validate:"gte=0,lte=10"`
		CallbackURL string `json:"callbackUrl" validate:"omitempty,url,max=2048"`
	} `json:"options"`
}

// HandleCreateSession opens a new widget session with a snapshot of the
// product. Unknown JSON fields are rejected so typos fail loudly instead of
// silently creating a half-configured session.
func (wc *WidgetController) HandleCreateSession(c *fiber.Ctx) error {
	var req createSessionRequest
	decoder := json.NewDecoder(bytes.NewReader(c.Body()))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		return apierror.SendCode(c, apierror.CodeInvalidRequest, "malformed session request: "+err.Error())
	}
	if err := validate.Struct(&req); err != nil {
		return apierror.SendCode(c, apierror.CodeInvalidRequest, "invalid session request: "+err.Error())
	}

	mctx := merchantcontext.Get(c)
	maxTryOns := req.Options.MaxTryOns
	if ceiling := entitlements.MaxTryOnsCeiling(entitlements.Normalize(mctx.Plan)); maxTryOns > ceiling {
		maxTryOns = ceiling
	}

	session, err := wc.sessions.Create(widgetsession.CreateInput{
		MerchantID:      mctx.MerchantID,
		ProductID:       req.Product.ID,
		ProductName:     req.Product.Name,
		ProductImage:    req.Product.Image,
		ProductCategory: req.Product.Category,
		ProductPrice:    req.Product.Price,
		ProductCurrency: req.Product.Currency,
		ShopperRef:      req.User.ID,
		CallbackURL:     req.Options.CallbackURL,
		MaxTryOns:       maxTryOns,
	})
	if err != nil {
		fiberlog.Errorf("[Widget] session create failed for merchant %d: %v", mctx.MerchantID, err)
		return apierror.SendCode(c, apierror.CodeInternalError, "could not create session")
	}

	if merchant := middleware.GetMerchantRecord(c); merchant != nil {
		wc.notifier.SessionEvent(merchant, session, models.EventSessionCreated)
	}

	return apierror.Success(c, fiber.StatusCreated, sessionPayload(session))
}

// HandleGetSession returns the current session state with the read-time
// expiry override applied.
func (wc *WidgetController) HandleGetSession(c *fiber.Ctx) error {
	session, apiErr := wc.loadOwnedSession(c)
	if apiErr != nil {
		return apierror.Send(c, apiErr)
	}
	return apierror.Success(c, fiber.StatusOK, sessionPayload(session))
}

// HandleTryOn runs one try-on attempt. The photo arrives as a multipart file
// or as base64 JSON.
func (wc *WidgetController) HandleTryOn(c *fiber.Ctx) error {
	session, apiErr := wc.loadOwnedSession(c)
	if apiErr != nil {
		return apierror.Send(c, apiErr)
	}

	photo, ok := extractPhoto(c)
	if !ok {
		return apierror.SendCode(c, apierror.CodeInvalidUserImage, "a photo is required, as multipart field 'photo' or base64 JSON field 'photo'")
	}

	updated, err := wc.orchestrator.ProcessTryOn(c.UserContext(), session.ID, photo)
	if err != nil {
		return wc.sendTryOnError(c, session.ID, err)
	}
	return apierror.Success(c, fiber.StatusOK, sessionPayload(updated))
}

// HandleGetResult returns the latest generation result. Completed sessions
// stay fetchable past their expiry; expired sessions without a result report
// the expiry instead.
func (wc *WidgetController) HandleGetResult(c *fiber.Ctx) error {
	session, apiErr := wc.loadOwnedSession(c)
	if apiErr != nil {
		return apierror.Send(c, apiErr)
	}

	if session.Status == models.SESSION_EXPIRED && session.ResultImage == "" {
		return apierror.SendCode(c, apierror.CodeSessionExpired, "session expired before producing a result")
	}

	data := fiber.Map{
		"sessionId":   session.ID,
		"status":      session.Status,
		"resultImage": session.ResultImage,
		"tryOnCount":  session.TryOnCount,
		"remaining":   session.RemainingTryOns(),
		"completedAt": formatTimePtr(session.CompletedAt),
	}
	if session.ErrorCode != "" {
		data["error"] = fiber.Map{"code": session.ErrorCode, "message": session.ErrorMessage}
	}
	return apierror.Success(c, fiber.StatusOK, data)
}

// HandlePollSession streams status changes as server-sent events until the
// session reaches a terminal state or the stream deadline passes. Reads go
// through the cache mirror first and fall back to storage on a miss.
func (wc *WidgetController) HandlePollSession(c *fiber.Ctx) error {
	session, apiErr := wc.loadOwnedSession(c)
	if apiErr != nil {
		return apierror.Send(c, apiErr)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	sessionID := session.ID
	initial := session.Status
	expiresAt := session.ExpiresAt

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		last := initial
		if err := writeStatusEvent(w, sessionID, last); err != nil {
			return
		}
		if isTerminalStatus(last) {
			return
		}

		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		deadline := time.Now().Add(pollMaxDuration)

		for range ticker.C {
			status := wc.currentStatus(sessionID, last, expiresAt)
			if status != last {
				last = status
				if err := writeStatusEvent(w, sessionID, last); err != nil {
					return
				}
			} else if err := writeHeartbeat(w); err != nil {
				return
			}
			if isTerminalStatus(last) || time.Now().After(deadline) {
				return
			}
		}
	}))
	return nil
}

// HandleDeleteSession force-expires a session. Deleting an already terminal
// session succeeds with no effect.
func (wc *WidgetController) HandleDeleteSession(c *fiber.Ctx) error {
	session, apiErr := wc.loadOwnedSession(c)
	if apiErr != nil {
		return apierror.Send(c, apiErr)
	}

	if err := wc.sessions.Delete(session.ID); err != nil {
		if errors.Is(err, widgetsession.ErrNotFound) {
			return apierror.SendCode(c, apierror.CodeSessionNotFound, "widget session not found")
		}
		fiberlog.Errorf("[Widget] delete failed for session %s: %v", session.ID, err)
		return apierror.SendCode(c, apierror.CodeInternalError, "could not delete session")
	}

	if merchant := middleware.GetMerchantRecord(c); merchant != nil && !session.IsTerminal() {
		session.Status = models.SESSION_EXPIRED
		wc.notifier.SessionEvent(merchant, session, models.EventSessionExpired)
	}

	return apierror.Success(c, fiber.StatusOK, fiber.Map{
		"id":     session.ID,
		"status": models.SESSION_EXPIRED,
	})
}

// loadOwnedSession fetches the session from the path and verifies it belongs
// to the authenticated merchant. Foreign sessions report not-found rather
// than forbidden so session IDs stay unguessable across tenants.
func (wc *WidgetController) loadOwnedSession(c *fiber.Ctx) (*models.WidgetSession, *apierror.Error) {
	id := c.Params("id")
	if id == "" {
		return nil, apierror.New(apierror.CodeInvalidRequest, "session id is required")
	}

	session, err := wc.sessions.Get(id)
	if err != nil {
		if errors.Is(err, widgetsession.ErrNotFound) {
			return nil, apierror.New(apierror.CodeSessionNotFound, "widget session not found")
		}
		fiberlog.Errorf("[Widget] session load failed for %s: %v", id, err)
		return nil, apierror.New(apierror.CodeInternalError, "could not load session")
	}
	if session.MerchantID != merchantcontext.MerchantID(c) {
		return nil, apierror.New(apierror.CodeSessionNotFound, "widget session not found")
	}
	return session, nil
}

// sendTryOnError maps pipeline errors onto the public error codes.
func (wc *WidgetController) sendTryOnError(c *fiber.Ctx, sessionID string, err error) error {
	switch {
	case errors.Is(err, widgetsession.ErrNotFound):
		return apierror.SendCode(c, apierror.CodeSessionNotFound, "widget session not found")
	case errors.Is(err, widgetsession.ErrExpired):
		return apierror.SendCode(c, apierror.CodeSessionExpired, "widget session has expired")
	case errors.Is(err, widgetsession.ErrLimitReached):
		return apierror.SendCode(c, apierror.CodeTryOnLimitReached, "try-on limit reached for this session")
	case errors.Is(err, widgetsession.ErrInvalidState):
		return apierror.SendCode(c, apierror.CodeInvalidSessionState, "session does not accept further try-ons")
	case errors.Is(err, tryon.ErrQuotaExceeded):
		return apierror.SendCode(c, apierror.CodeQuotaExceeded, "monthly try-on quota exceeded")
	case errors.Is(err, tryon.ErrInvalidUserImage):
		return apierror.SendCode(c, apierror.CodeInvalidUserImage, err.Error())
	case errors.Is(err, tryon.ErrProcessingFailed):
		return apierror.SendCode(c, apierror.CodeProcessingFailed, "try-on generation failed")
	default:
		fiberlog.Errorf("[Widget] try-on failed for session %s: %v", sessionID, err)
		return apierror.SendCode(c, apierror.CodeInternalError, "unexpected error during try-on")
	}
}

// currentStatus reads the cache mirror and falls back to storage on a miss.
// The mirror outlives the session, so a non-terminal mirror entry past the
// session's expiry is reported as expired instead of trusted.
func (wc *WidgetController) currentStatus(sessionID, last string, expiresAt time.Time) string {
	if status, err := widgetsession.GetSessionStatus(sessionID); err == nil && status != "" {
		if isTerminalStatus(status) || time.Now().Before(expiresAt) {
			return status
		}
		return models.SESSION_EXPIRED
	}
	session, err := wc.sessions.Get(sessionID)
	if err != nil {
		return last
	}
	return session.Status
}

func isTerminalStatus(status string) bool {
	switch status {
	case models.SESSION_COMPLETED, models.SESSION_FAILED, models.SESSION_EXPIRED:
		return true
	}
	return false
}

func writeStatusEvent(w *bufio.Writer, sessionID, status string) error {
	payload, err := json.Marshal(fiber.Map{"sessionId": sessionID, "status": status})
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: status\ndata: %s\n\n", payload); err != nil {
		return err
	}
	return w.Flush()
}

func writeHeartbeat(w *bufio.Writer) error {
	if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
		return err
	}
	return w.Flush()
}
