package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/workbridge/workbridge-backend/internal/middleware"
	"github.com/workbridge/workbridge-backend/internal/models"
	"github.com/workbridge/workbridge-backend/internal/realtime"
	"github.com/workbridge/workbridge-backend/internal/services/chatsvc"
	"github.com/workbridge/workbridge-backend/internal/services/razorpay"
	"github.com/workbridge/workbridge-backend/internal/utils"
)

const testSecret = "handler-test-secret"

// nopBroadcaster satisfies chatsvc.Broadcaster for handler tests that only
// care about persisted state.
type nopBroadcaster struct{}

func (nopBroadcaster) Emit(context.Context, string, interface{}, *realtime.Client) {}
func (nopBroadcaster) NotifyUser(context.Context, uuid.UUID, interface{})          {}

type testEnv struct {
	app     *fiber.App
	db      *gorm.DB
	svc     *chatsvc.Service
	gateway *razorpay.Service

	client    models.User
	freelanc  models.User
	admin     models.User
	clientP   models.ClientProfile
	freelP    models.FreelancerProfile
	job       models.Job
	clientTok string
	adminTok  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&models.User{}, &models.ClientProfile{}, &models.FreelancerProfile{},
		&models.Job{}, &models.ChatThread{}, &models.ChatMessage{},
		&models.MessageRead{}, &models.Payment{}, &models.Dispute{},
	))

	env := &testEnv{db: gdb}
	env.svc = chatsvc.New(gdb, nopBroadcaster{})

	// gateway stub: every order succeeds with a fixed id
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":       "order_test_1",
			"amount":   req["amount"],
			"currency": req["currency"],
			"receipt":  req["receipt"],
			"status":   "created",
		})
	}))
	t.Cleanup(gw.Close)
	env.gateway = razorpay.NewService("key-id", "key-secret")
	env.gateway.BaseURL = gw.URL

	env.client = models.User{ID: uuid.New(), Name: "Client", Username: "client", Email: "c@x.com", Password: "x", Role: models.RoleClient, IsActive: true}
	env.freelanc = models.User{ID: uuid.New(), Name: "Freelancer", Username: "fl", Email: "f@x.com", Password: "x", Role: models.RoleFreelancer, IsActive: true}
	env.admin = models.User{ID: uuid.New(), Name: "Admin", Username: "admin", Email: "a@x.com", Password: "x", Role: models.RoleAdmin, IsActive: true}
	require.NoError(t, gdb.Create(&env.client).Error)
	require.NoError(t, gdb.Create(&env.freelanc).Error)
	require.NoError(t, gdb.Create(&env.admin).Error)

	env.clientP = models.ClientProfile{UserID: env.client.ID}
	env.freelP = models.FreelancerProfile{UserID: env.freelanc.ID}
	require.NoError(t, gdb.Create(&env.clientP).Error)
	require.NoError(t, gdb.Create(&env.freelP).Error)

	env.job = models.Job{ClientID: env.clientP.ID, Title: "Backend work", Budget: 50000, Status: models.JobStatusOpen}
	require.NoError(t, gdb.Create(&env.job).Error)

	env.clientTok, err = utils.SignJWT(testSecret, env.client.ID.String(), string(env.client.Role), 60)
	require.NoError(t, err)
	env.adminTok, err = utils.SignJWT(testSecret, env.admin.ID.String(), string(env.admin.Role), 60)
	require.NoError(t, err)

	paymentH := NewPaymentHandler(gdb, env.gateway, env.svc)
	disputeH := NewDisputeHandler(gdb, env.svc)

	app := fiber.New()
	protected := app.Group("/api", middleware.JWTBearer(testSecret))
	protected.Post("/payments/order", middleware.RequireRoles("client"), paymentH.CreateOrder)
	protected.Post("/payments/verify", middleware.RequireRoles("client"), paymentH.Verify)
	protected.Post("/chat/threads/:id/disputes", disputeH.CreateFromThread)
	protected.Post("/admin/disputes/:id/resolve", middleware.RequireRoles("admin"), disputeH.AdminResolve)
	env.app = app

	return env
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)

	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func signCallback(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte("key-secret"))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestPaymentFlowVerifyCompletesAndStartsJob(t *testing.T) {
	env := newTestEnv(t)

	resp, out := env.do(t, "POST", "/api/payments/order", env.clientTok, map[string]interface{}{
		"job_id":        env.job.ID,
		"freelancer_id": env.freelP.ID,
		"amount":        50000,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %v", out)

	resp, out = env.do(t, "POST", "/api/payments/verify", env.clientTok, map[string]interface{}{
		"razorpay_order_id":   "order_test_1",
		"razorpay_payment_id": "pay_abc",
		"razorpay_signature":  signCallback("order_test_1", "pay_abc"),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, "body: %v", out)

	var payment models.Payment
	require.NoError(t, env.db.Where("gateway_order_id = ?", "order_test_1").First(&payment).Error)
	assert.Equal(t, models.PaymentStatusCompleted, payment.Status)
	require.NotNil(t, payment.TransactionID)
	assert.Equal(t, "pay_abc", *payment.TransactionID)
	assert.NotNil(t, payment.PaidAt)

	var job models.Job
	require.NoError(t, env.db.First(&job, "id = ?", env.job.ID).Error)
	assert.Equal(t, models.JobStatusInProgress, job.Status)

	// thread created and annotated with the payment
	var msg models.ChatMessage
	require.NoError(t, env.db.Where("message_type = ?", models.MessageTypePaymentCompleted).First(&msg).Error)
	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Metadata, &meta))
	assert.EqualValues(t, payment.ID, meta["payment_id"])
	assert.EqualValues(t, 50000, meta["amount"])
}

func TestPaymentVerifyBadSignatureMarksFailed(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, "POST", "/api/payments/order", env.clientTok, map[string]interface{}{
		"job_id":        env.job.ID,
		"freelancer_id": env.freelP.ID,
		"amount":        50000,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = env.do(t, "POST", "/api/payments/verify", env.clientTok, map[string]interface{}{
		"razorpay_order_id":   "order_test_1",
		"razorpay_payment_id": "pay_abc",
		"razorpay_signature":  "bogus",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var payment models.Payment
	require.NoError(t, env.db.Where("gateway_order_id = ?", "order_test_1").First(&payment).Error)
	assert.Equal(t, models.PaymentStatusFailed, payment.Status)

	var job models.Job
	require.NoError(t, env.db.First(&job, "id = ?", env.job.ID).Error)
	assert.Equal(t, models.JobStatusOpen, job.Status, "job untouched on failed payment")
}

func TestPaymentOrderRejectsSecondCompletedForPair(t *testing.T) {
	env := newTestEnv(t)

	completed := models.Payment{
		JobID: env.job.ID, ClientID: env.clientP.ID, FreelancerID: env.freelP.ID,
		Amount: 50000, Status: models.PaymentStatusCompleted, GatewayOrderID: "order_prev",
	}
	require.NoError(t, env.db.Create(&completed).Error)

	resp, out := env.do(t, "POST", "/api/payments/order", env.clientTok, map[string]interface{}{
		"job_id":        env.job.ID,
		"freelancer_id": env.freelP.ID,
		"amount":        50000,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "body: %v", out)
}

func TestPaymentVerifyRejectsWhenPairAlreadyPaid(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, "POST", "/api/payments/order", env.clientTok, map[string]interface{}{
		"job_id":        env.job.ID,
		"freelancer_id": env.freelP.ID,
		"amount":        50000,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// a second order for the pair completes first
	completed := models.Payment{
		JobID: env.job.ID, ClientID: env.clientP.ID, FreelancerID: env.freelP.ID,
		Amount: 50000, Status: models.PaymentStatusCompleted, GatewayOrderID: "order_prev",
	}
	require.NoError(t, env.db.Create(&completed).Error)

	resp, out := env.do(t, "POST", "/api/payments/verify", env.clientTok, map[string]interface{}{
		"razorpay_order_id":   "order_test_1",
		"razorpay_payment_id": "pay_late",
		"razorpay_signature":  signCallback("order_test_1", "pay_late"),
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "body: %v", out)

	var pending models.Payment
	require.NoError(t, env.db.Where("gateway_order_id = ?", "order_test_1").First(&pending).Error)
	assert.Equal(t, models.PaymentStatusPending, pending.Status, "late callback must not complete a second payment")

	var job models.Job
	require.NoError(t, env.db.First(&job, "id = ?", env.job.ID).Error)
	assert.Equal(t, models.JobStatusOpen, job.Status)
}

func TestPaymentOrderRequiresClientRole(t *testing.T) {
	env := newTestEnv(t)

	flTok, err := utils.SignJWT(testSecret, env.freelanc.ID.String(), string(env.freelanc.Role), 60)
	require.NoError(t, err)

	resp, _ := env.do(t, "POST", "/api/payments/order", flTok, map[string]interface{}{
		"job_id": env.job.ID, "freelancer_id": env.freelP.ID, "amount": 100,
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = env.do(t, "POST", "/api/payments/order", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestDisputeFromThreadPostsSystemMessage(t *testing.T) {
	env := newTestEnv(t)

	thread, _, err := env.svc.GetOrCreateThread(context.Background(), env.clientP.ID, env.freelP.ID, &env.job.ID)
	require.NoError(t, err)

	resp, out := env.do(t, "POST", "/api/chat/threads/1/disputes", env.clientTok, map[string]interface{}{
		"subject":     "Work not delivered",
		"description": "No commits in two weeks",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %v", out)

	var dispute models.Dispute
	require.NoError(t, env.db.First(&dispute).Error)
	assert.Equal(t, models.DisputeStatusOpen, dispute.Status)
	assert.Equal(t, env.client.ID, dispute.CreatedByID)
	require.NotNil(t, dispute.JobID)
	assert.Equal(t, env.job.ID, *dispute.JobID)

	var msg models.ChatMessage
	require.NoError(t, env.db.
		Where("thread_id = ? AND message_type = ?", thread.ID, models.MessageTypeDisputeCreated).
		First(&msg).Error)
	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Metadata, &meta))
	assert.EqualValues(t, dispute.ID, meta["dispute_id"])
	assert.Equal(t, "Work not delivered", meta["subject"])
}

func TestDisputeMissingFieldsRejected(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.svc.GetOrCreateThread(context.Background(), env.clientP.ID, env.freelP.ID, nil)
	require.NoError(t, err)

	resp, _ := env.do(t, "POST", "/api/chat/threads/1/disputes", env.clientTok, map[string]interface{}{
		"subject": "   ",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var count int64
	env.db.Model(&models.Dispute{}).Count(&count)
	assert.Zero(t, count)
}

func TestAdminResolveRequiresResolutionText(t *testing.T) {
	env := newTestEnv(t)

	dispute := models.Dispute{
		ClientID: env.clientP.ID, FreelancerID: env.freelP.ID,
		Subject: "s", Description: "d", CreatedByID: env.client.ID,
		Status: models.DisputeStatusOpen,
	}
	require.NoError(t, env.db.Create(&dispute).Error)

	// non-admin blocked by role middleware
	resp, _ := env.do(t, "POST", "/api/admin/disputes/1/resolve", env.clientTok, map[string]interface{}{
		"action": "resolve", "resolution": "refund issued",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// resolving without text fails
	resp, _ = env.do(t, "POST", "/api/admin/disputes/1/resolve", env.adminTok, map[string]interface{}{
		"action": "resolve",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// resolving with text records resolver and timestamp
	resp, _ = env.do(t, "POST", "/api/admin/disputes/1/resolve", env.adminTok, map[string]interface{}{
		"action": "resolve", "resolution": "refund issued",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var reloaded models.Dispute
	require.NoError(t, env.db.First(&reloaded, "id = ?", dispute.ID).Error)
	assert.Equal(t, models.DisputeStatusResolved, reloaded.Status)
	require.NotNil(t, reloaded.Resolution)
	assert.Equal(t, "refund issued", *reloaded.Resolution)
	require.NotNil(t, reloaded.ResolvedByID)
	assert.Equal(t, env.admin.ID, *reloaded.ResolvedByID)
	assert.NotNil(t, reloaded.ResolvedAt)

	// terminal disputes stay terminal
	resp, _ = env.do(t, "POST", "/api/admin/disputes/1/resolve", env.adminTok, map[string]interface{}{
		"action": "dismiss",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}
