package controllers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/VirtuFitHQ/VirtuFit/app/models"
	"github.com/VirtuFitHQ/VirtuFit/internal/pkg/merchantcontext"
	"github.com/VirtuFitHQ/VirtuFit/internal/pkg/middleware"
	"github.com/VirtuFitHQ/VirtuFit/internal/pkg/quota"
	"github.com/VirtuFitHQ/VirtuFit/internal/pkg/tryon"
	"github.com/VirtuFitHQ/VirtuFit/internal/pkg/widgetsession"
)

// stubSessionRepo mirrors the conditional update semantics of the GORM
// session repository in memory.
type stubSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*models.WidgetSession
}

func newStubSessionRepo() *stubSessionRepo {
	return &stubSessionRepo{sessions: make(map[string]*models.WidgetSession)}
}

func (r *stubSessionRepo) Create(s *models.WidgetSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *s
	r.sessions[s.ID] = &copied
	return nil
}

func (r *stubSessionRepo) GetByID(id string) (*models.WidgetSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *s
	return &copied, nil
}

func (r *stubSessionRepo) ClaimTryOn(id string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.Status != models.SESSION_PENDING || s.TryOnCount >= s.MaxTryOns || !s.ExpiresAt.After(now) {
		return false, nil
	}
	s.Status = models.SESSION_PROCESSING
	return true, nil
}

func (r *stubSessionRepo) CompleteTryOn(id string, resultImage string, nextStatus string, completedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.Status != models.SESSION_PROCESSING {
		return gorm.ErrRecordNotFound
	}
	s.TryOnCount++
	s.ResultImage = resultImage
	s.Status = nextStatus
	s.CompletedAt = &completedAt
	return nil
}

func (r *stubSessionRepo) FailTryOn(id string, errorCode string, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.Status != models.SESSION_PROCESSING {
		return gorm.ErrRecordNotFound
	}
	s.Status = models.SESSION_FAILED
	s.ErrorCode = errorCode
	s.ErrorMessage = errorMessage
	return nil
}

func (r *stubSessionRepo) MarkExpired(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.IsTerminal() {
		return nil
	}
	s.Status = models.SESSION_EXPIRED
	return nil
}

func (r *stubSessionRepo) ExpireOverdue(now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.sessions {
		if !s.IsTerminal() && !s.ExpiresAt.After(now) {
			s.Status = models.SESSION_EXPIRED
			n++
		}
	}
	return n, nil
}

func (r *stubSessionRepo) CountByMerchant(merchantID uint) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.sessions {
		if s.MerchantID == merchantID {
			n++
		}
	}
	return n, nil
}

// stubMerchantRepo holds merchants in memory with the conditional quota
// update semantics.
type stubMerchantRepo struct {
	mu        sync.Mutex
	merchants map[uint]*models.Merchant
}

func newStubMerchantRepo(merchants ...*models.Merchant) *stubMerchantRepo {
	r := &stubMerchantRepo{merchants: make(map[uint]*models.Merchant)}
	for _, m := range merchants {
		copied := *m
		r.merchants[m.ID] = &copied
	}
	return r
}

func (r *stubMerchantRepo) Create(m *models.Merchant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.ID == 0 {
		m.ID = uint(len(r.merchants) + 1)
	}
	copied := *m
	r.merchants[m.ID] = &copied
	return nil
}

func (r *stubMerchantRepo) GetByID(id uint) (*models.Merchant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.merchants[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *m
	return &copied, nil
}

func (r *stubMerchantRepo) GetByEmail(email string) (*models.Merchant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.merchants {
		if m.Email == email {
			copied := *m
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubMerchantRepo) GetByKeyHash(hash string) (*models.Merchant, models.KeyMode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.merchants {
		if m.LiveKeyHash == hash {
			copied := *m
			return &copied, models.KeyModeLive, nil
		}
		if m.TestKeyHash == hash {
			copied := *m
			return &copied, models.KeyModeTest, nil
		}
	}
	return nil, models.KeyModeInvalid, gorm.ErrRecordNotFound
}

func (r *stubMerchantRepo) Update(m *models.Merchant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *m
	r.merchants[m.ID] = &copied
	return nil
}

func (r *stubMerchantRepo) TouchKeyUsage(uint) error { return nil }

func (r *stubMerchantRepo) IncrementQuota(id uint) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.merchants[id]
	if !ok {
		return false, gorm.ErrRecordNotFound
	}
	if m.MonthlyQuota != nil && m.QuotaUsed >= *m.MonthlyQuota {
		return false, nil
	}
	m.QuotaUsed++
	return true, nil
}

func (r *stubMerchantRepo) ResetQuota(id uint, due time.Time, nextReset time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.merchants[id]
	if !ok {
		return false, gorm.ErrRecordNotFound
	}
	if m.QuotaResetAt == nil || m.QuotaResetAt.After(due) {
		return false, nil
	}
	m.QuotaUsed = 0
	m.QuotaResetAt = &nextReset
	return true, nil
}

func (r *stubMerchantRepo) Count() (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.merchants)), nil
}

type stubProvider struct {
	generate func(ctx context.Context, req tryon.GenerationRequest) (*tryon.GenerationResult, error)
}

func (p stubProvider) GenerateTryOn(ctx context.Context, req tryon.GenerationRequest) (*tryon.GenerationResult, error) {
	return p.generate(ctx, req)
}

type stubNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *stubNotifier) SessionEvent(_ *models.Merchant, _ *models.WidgetSession, eventType string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, eventType)
}

func (n *stubNotifier) Events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

// stubMirror swaps the cache mirror for an in-memory map for the test.
func stubMirror(t *testing.T) {
	t.Helper()

	statuses := make(map[string]string)
	var mu sync.Mutex

	origGet := widgetsession.GetCacheImplementation
	origSet := widgetsession.SetCacheImplementation
	origDel := widgetsession.DelCacheImplementation

	widgetsession.GetCacheImplementation = func(key string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		return statuses[key], nil
	}
	widgetsession.SetCacheImplementation = func(key string, value interface{}, _ time.Duration) error {
		mu.Lock()
		defer mu.Unlock()
		statuses[key] = fmt.Sprint(value)
		return nil
	}
	widgetsession.DelCacheImplementation = func(key string) error {
		mu.Lock()
		defer mu.Unlock()
		delete(statuses, key)
		return nil
	}

	t.Cleanup(func() {
		widgetsession.GetCacheImplementation = origGet
		widgetsession.SetCacheImplementation = origSet
		widgetsession.DelCacheImplementation = origDel
	})
}

type envelope struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data"`
	Error   *struct {
		Code        string `json:"code"`
		Message     string `json:"message"`
		UserMessage string `json:"userMessage"`
		RequestID   string `json:"requestId"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, resp *http.Response) envelope {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.Unmarshal(body, &env), "body: %s", body)
	return env
}

func testMerchant() *models.Merchant {
	q := int64(1000)
	reset := time.Now().Add(20 * 24 * time.Hour)
	return &models.Merchant{
		ID:           7,
		BusinessName: "Aurora Apparel",
		Email:        "owner@aurora-apparel.com",
		Plan:         "starter",
		Status:       models.STATUS_ACTIVE,
		MonthlyQuota: &q,
		QuotaUsed:    0,
		QuotaResetAt: &reset,
	}
}

// newWidgetTestApp wires the widget routes with in-memory storage and a
// middleware that plants the authenticated merchant, standing in for the
// key auth middleware.
func newWidgetTestApp(t *testing.T, merchant *models.Merchant, merchants *stubMerchantRepo, sessions *stubSessionRepo, provider tryon.Provider) (*fiber.App, *stubNotifier) {
	t.Helper()
	stubMirror(t)

	manager := widgetsession.NewManager(sessions, widgetsession.Config{CompleteOnLimit: true})
	accountant := quota.NewAccountant(merchants)
	notifier := &stubNotifier{}
	orchestrator := tryon.NewOrchestrator(manager, merchants, accountant, provider, notifier)
	wc := NewWidgetController(manager, orchestrator, notifier)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		merchantcontext.Set(c, merchantcontext.MerchantContext{
			MerchantID:    merchant.ID,
			BusinessName:  merchant.BusinessName,
			Plan:          merchant.Plan,
			KeyMode:       models.KeyModeLive,
			Authenticated: true,
		})
		c.Locals(middleware.MerchantRecordKey, merchant)
		return c.Next()
	})

	widget := app.Group("/api/widget")
	widget.Post("/session", wc.HandleCreateSession)
	widget.Get("/session/:id", wc.HandleGetSession)
	widget.Post("/session/:id/try-on", wc.HandleTryOn)
	widget.Get("/session/:id/result", wc.HandleGetResult)
	widget.Delete("/session/:id", wc.HandleDeleteSession)

	return app, notifier
}

func jsonRequest(method, target string, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return req
}

func okProvider() tryon.Provider {
	return stubProvider{generate: func(context.Context, tryon.GenerationRequest) (*tryon.GenerationResult, error) {
		return &tryon.GenerationResult{ImageURL: "https://cdn.virtufit.io/results/r1.jpg"}, nil
	}}
}

func photoJSON(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 32, 32))))
	return fmt.Sprintf(`{"photo":%q}`, base64.StdEncoding.EncodeToString(buf.Bytes()))
}

const createSessionBody = `{
	"product": {
		"id": "prod_123",
		"name": "Linen Shirt",
		"image": "https://shop.example.com/products/linen-shirt.jpg",
		"category": "tops",
		"price": 59.9,
		"currency": "EUR"
	},
	"user": {"id": "shopper-42"},
	"options": {"maxTryOns": 3}
}`

func TestHandleCreateSession(t *testing.T) {
	merchant := testMerchant()
	app, notifier := newWidgetTestApp(t, merchant, newStubMerchantRepo(merchant), newStubSessionRepo(), okProvider())

	resp, err := app.Test(jsonRequest(fiber.MethodPost, "/api/widget/session", createSessionBody))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	env := decodeEnvelope(t, resp)
	require.True(t, env.Success)
	assert.Regexp(t, `^ws_[0-9a-zA-Z]{24}$`, env.Data["id"])
	assert.Equal(t, models.SESSION_PENDING, env.Data["status"])
	assert.EqualValues(t, 3, env.Data["maxTryOns"])
	assert.EqualValues(t, 3, env.Data["remaining"])
	assert.Equal(t, []string{models.EventSessionCreated}, notifier.Events())
}

func TestHandleCreateSessionRejectsUnknownFields(t *testing.T) {
	merchant := testMerchant()
	app, _ := newWidgetTestApp(t, merchant, newStubMerchantRepo(merchant), newStubSessionRepo(), okProvider())

	body := `{"product": {"id": "p", "name": "n", "image": "https://x.example/p.jpg"}, "surprise": true}`
	resp, err := app.Test(jsonRequest(fiber.MethodPost, "/api/widget/session", body))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	env := decodeEnvelope(t, resp)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_REQUEST", env.Error.Code)
	assert.NotEmpty(t, env.Error.RequestID)
}

func TestHandleCreateSessionRequiresProductImage(t *testing.T) {
	merchant := testMerchant()
	app, _ := newWidgetTestApp(t, merchant, newStubMerchantRepo(merchant), newStubSessionRepo(), okProvider())

	body := `{"product": {"id": "p", "name": "n"}}`
	resp, err := app.Test(jsonRequest(fiber.MethodPost, "/api/widget/session", body))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestHandleCreateSessionClampsMaxTryOns(t *testing.T) {
	merchant := testMerchant()
	merchant.Plan = "free" // ceiling of 3
	app, _ := newWidgetTestApp(t, merchant, newStubMerchantRepo(merchant), newStubSessionRepo(), okProvider())

	body := strings.Replace(createSessionBody, `"maxTryOns": 3`, `"maxTryOns": 10`, 1)
	resp, err := app.Test(jsonRequest(fiber.MethodPost, "/api/widget/session", body))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	env := decodeEnvelope(t, resp)
	assert.EqualValues(t, 3, env.Data["maxTryOns"])
}

func TestHandleGetSessionHidesForeignSessions(t *testing.T) {
	merchant := testMerchant()
	sessions := newStubSessionRepo()
	require.NoError(t, sessions.Create(&models.WidgetSession{
		ID:         "ws_foreignforeignforeignfo",
		MerchantID: merchant.ID + 1,
		Status:     models.SESSION_PENDING,
		MaxTryOns:  3,
		ExpiresAt:  time.Now().Add(time.Hour),
	}))
	app, _ := newWidgetTestApp(t, merchant, newStubMerchantRepo(merchant), sessions, okProvider())

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/api/widget/session/ws_foreignforeignforeignfo", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	env := decodeEnvelope(t, resp)
	require.NotNil(t, env.Error)
	assert.Equal(t, "SESSION_NOT_FOUND", env.Error.Code)
}

func TestHandleTryOnRequiresPhoto(t *testing.T) {
	merchant := testMerchant()
	sessions := newStubSessionRepo()
	require.NoError(t, sessions.Create(&models.WidgetSession{
		ID:         "ws_photolessphotolessphot",
		MerchantID: merchant.ID,
		Status:     models.SESSION_PENDING,
		MaxTryOns:  3,
		ExpiresAt:  time.Now().Add(time.Hour),
	}))
	app, _ := newWidgetTestApp(t, merchant, newStubMerchantRepo(merchant), sessions, okProvider())

	resp, err := app.Test(jsonRequest(fiber.MethodPost, "/api/widget/session/ws_photolessphotolessphot/try-on", `{}`))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	env := decodeEnvelope(t, resp)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_USER_IMAGE", env.Error.Code)
}

func TestHandleTryOnSuccess(t *testing.T) {
	merchant := testMerchant()
	merchants := newStubMerchantRepo(merchant)
	sessions := newStubSessionRepo()
	require.NoError(t, sessions.Create(&models.WidgetSession{
		ID:         "ws_happyhappyhappyhappyha",
		MerchantID: merchant.ID,
		Status:     models.SESSION_PENDING,
		MaxTryOns:  3,
		ExpiresAt:  time.Now().Add(time.Hour),
	}))
	app, notifier := newWidgetTestApp(t, merchant, merchants, sessions, okProvider())

	resp, err := app.Test(jsonRequest(fiber.MethodPost, "/api/widget/session/ws_happyhappyhappyhappyha/try-on", photoJSON(t)), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	env := decodeEnvelope(t, resp)
	require.True(t, env.Success)
	assert.EqualValues(t, 1, env.Data["tryOnCount"])
	assert.Equal(t, "https://cdn.virtufit.io/results/r1.jpg", env.Data["resultImage"])
	assert.Equal(t, models.SESSION_PENDING, env.Data["status"])

	stored, err := merchants.GetByID(merchant.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stored.QuotaUsed)
	assert.Contains(t, notifier.Events(), models.EventTryOnCompleted)
}

func TestHandleTryOnQuotaExceeded(t *testing.T) {
	merchant := testMerchant()
	merchant.QuotaUsed = *merchant.MonthlyQuota
	merchants := newStubMerchantRepo(merchant)
	sessions := newStubSessionRepo()
	require.NoError(t, sessions.Create(&models.WidgetSession{
		ID:         "ws_quotaquotaquotaquotaqu",
		MerchantID: merchant.ID,
		Status:     models.SESSION_PENDING,
		MaxTryOns:  3,
		ExpiresAt:  time.Now().Add(time.Hour),
	}))
	app, _ := newWidgetTestApp(t, merchant, merchants, sessions, okProvider())

	resp, err := app.Test(jsonRequest(fiber.MethodPost, "/api/widget/session/ws_quotaquotaquotaquotaqu/try-on", photoJSON(t)), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusPaymentRequired, resp.StatusCode)

	env := decodeEnvelope(t, resp)
	require.NotNil(t, env.Error)
	assert.Equal(t, "QUOTA_EXCEEDED", env.Error.Code)

	// The attempt never ran: no claim, no counter movement.
	stored, err := sessions.GetByID("ws_quotaquotaquotaquotaqu")
	require.NoError(t, err)
	assert.Equal(t, models.SESSION_PENDING, stored.Status)
	assert.Equal(t, 0, stored.TryOnCount)
}

func TestHandleTryOnExpiredSession(t *testing.T) {
	merchant := testMerchant()
	sessions := newStubSessionRepo()
	require.NoError(t, sessions.Create(&models.WidgetSession{
		ID:         "ws_expiredexpiredexpirede",
		MerchantID: merchant.ID,
		Status:     models.SESSION_PENDING,
		MaxTryOns:  3,
		ExpiresAt:  time.Now().Add(-time.Minute),
	}))
	app, _ := newWidgetTestApp(t, merchant, newStubMerchantRepo(merchant), sessions, okProvider())

	resp, err := app.Test(jsonRequest(fiber.MethodPost, "/api/widget/session/ws_expiredexpiredexpirede/try-on", photoJSON(t)), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusGone, resp.StatusCode)

	env := decodeEnvelope(t, resp)
	require.NotNil(t, env.Error)
	assert.Equal(t, "SESSION_EXPIRED", env.Error.Code)
}

func TestCurrentStatusOverridesStaleMirrorAfterExpiry(t *testing.T) {
	stubMirror(t)
	sessions := newStubSessionRepo()
	require.NoError(t, sessions.Create(&models.WidgetSession{
		ID:         "ws_pollstalepollstalepoll",
		MerchantID: 7,
		Status:     models.SESSION_PENDING,
		MaxTryOns:  3,
		ExpiresAt:  time.Now().Add(-time.Minute),
	}))

	// The mirror outlives the session: it still says pending after expiry.
	require.NoError(t, widgetsession.SetSessionStatus("ws_pollstalepollstalepoll", models.SESSION_PENDING))

	manager := widgetsession.NewManager(sessions, widgetsession.Config{CompleteOnLimit: true})
	wc := NewWidgetController(manager, nil, &stubNotifier{})

	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)

	assert.Equal(t, models.SESSION_EXPIRED,
		wc.currentStatus("ws_pollstalepollstalepoll", models.SESSION_PENDING, past),
		"a stale non-terminal mirror entry must not mask expiry")

	assert.Equal(t, models.SESSION_PENDING,
		wc.currentStatus("ws_pollstalepollstalepoll", models.SESSION_PENDING, future),
		"an unexpired session keeps its mirrored status")

	// Terminal mirror entries stay authoritative even past expiry
	require.NoError(t, widgetsession.SetSessionStatus("ws_pollstalepollstalepoll", models.SESSION_COMPLETED))
	assert.Equal(t, models.SESSION_COMPLETED,
		wc.currentStatus("ws_pollstalepollstalepoll", models.SESSION_PROCESSING, past))

	// On a mirror miss the read falls through to storage, which applies the
	// expiry override itself.
	require.NoError(t, widgetsession.ClearSessionStatus("ws_pollstalepollstalepoll"))
	assert.Equal(t, models.SESSION_EXPIRED,
		wc.currentStatus("ws_pollstalepollstalepoll", models.SESSION_PENDING, past))
}

func TestHandleGetResultExpiredWithoutResult(t *testing.T) {
	merchant := testMerchant()
	sessions := newStubSessionRepo()
	require.NoError(t, sessions.Create(&models.WidgetSession{
		ID:         "ws_noresultnoresultnoresu",
		MerchantID: merchant.ID,
		Status:     models.SESSION_EXPIRED,
		MaxTryOns:  3,
		ExpiresAt:  time.Now().Add(-time.Minute),
	}))
	app, _ := newWidgetTestApp(t, merchant, newStubMerchantRepo(merchant), sessions, okProvider())

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/api/widget/session/ws_noresultnoresultnoresu/result", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusGone, resp.StatusCode)
}

func TestHandleDeleteSessionIsIdempotent(t *testing.T) {
	merchant := testMerchant()
	sessions := newStubSessionRepo()
	require.NoError(t, sessions.Create(&models.WidgetSession{
		ID:         "ws_deletemedeletemedelete",
		MerchantID: merchant.ID,
		Status:     models.SESSION_PENDING,
		MaxTryOns:  3,
		ExpiresAt:  time.Now().Add(time.Hour),
	}))
	app, _ := newWidgetTestApp(t, merchant, newStubMerchantRepo(merchant), sessions, okProvider())

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodDelete, "/api/widget/session/ws_deletemedeletemedelete", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode, "attempt %d", i+1)

		env := decodeEnvelope(t, resp)
		require.True(t, env.Success)
		assert.Equal(t, models.SESSION_EXPIRED, env.Data["status"])
	}
}
