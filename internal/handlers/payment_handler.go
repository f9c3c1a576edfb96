package handlers

import (
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/workbridge/workbridge-backend/internal/models"
	"github.com/workbridge/workbridge-backend/internal/services/chatsvc"
	"github.com/workbridge/workbridge-backend/internal/services/razorpay"
)

type PaymentHandler struct {
	DB      *gorm.DB
	Gateway *razorpay.Service
	Svc     *chatsvc.Service
}

func NewPaymentHandler(db *gorm.DB, gateway *razorpay.Service, svc *chatsvc.Service) *PaymentHandler {
	return &PaymentHandler{DB: db, Gateway: gateway, Svc: svc}
}

// CreateOrder handles POST /payments/order. The client funds a job for a
// specific freelancer: we register a gateway order and record a pending
// payment row keyed to it.
func (h *PaymentHandler) CreateOrder(c *fiber.Ctx) error {
	user, profile, err := clientProfileFor(h.DB, c)
	if err != nil || user.Role != models.RoleClient || profile == nil {
		return c.Status(403).JSON(fiber.Map{"success": false, "message": "Only clients can create payments"})
	}

	var req struct {
		JobID        uint  `json:"job_id"`
		FreelancerID uint  `json:"freelancer_id"`
		Amount       int64 `json:"amount"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"success": false, "message": "Invalid request"})
	}

	errs := FieldErrors{}
	if req.JobID == 0 {
		errs.Add("job_id", "Job is required")
	}
	if req.FreelancerID == 0 {
		errs.Add("freelancer_id", "Freelancer is required")
	}
	if req.Amount <= 0 {
		errs.Add("amount", "Amount must be positive")
	}
	if len(errs) > 0 {
		return validationFail(c, errs)
	}

	var job models.Job
	if err := h.DB.First(&job, "id = ?", req.JobID).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{"success": false, "message": "Job not found"})
	}
	if job.ClientID != profile.ID {
		return c.Status(403).JSON(fiber.Map{"success": false, "message": "Not your job"})
	}

	var freelancer models.FreelancerProfile
	if err := h.DB.First(&freelancer, "id = ?", req.FreelancerID).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{"success": false, "message": "Freelancer not found"})
	}

	// one successful payment per (job, freelancer)
	var dup int64
	h.DB.Model(&models.Payment{}).
		Where("job_id = ? AND freelancer_id = ? AND status = ?", job.ID, freelancer.ID, models.PaymentStatusCompleted).
		Count(&dup)
	if dup > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"message": "This job is already paid for this freelancer",
		})
	}

	receipt := fmt.Sprintf("job_%d_fl_%d_%d", job.ID, freelancer.ID, time.Now().Unix())
	order, err := h.Gateway.CreateOrder(req.Amount, "INR", receipt)
	if err != nil {
		log.Println("payment: create order:", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"success": false,
			"message": "Failed to create payment order",
		})
	}

	payment := models.Payment{
		JobID:          job.ID,
		ClientID:       profile.ID,
		FreelancerID:   freelancer.ID,
		Amount:         req.Amount,
		Currency:       order.Currency,
		PaymentMethod:  "razorpay",
		Status:         models.PaymentStatusPending,
		GatewayOrderID: order.ID,
	}
	if err := h.DB.Create(&payment).Error; err != nil {
		return fail500(c, "Failed to record payment")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"payment_id": payment.ID,
			"order_id":   order.ID,
			"amount":     order.Amount,
			"currency":   order.Currency,
			"key_id":     h.Gateway.KeyID,
		},
	})
}

// Verify handles POST /payments/verify with the checkout callback fields.
// A valid signature completes the payment, moves the job to in_progress and
// drops a payment_completed message into the pair's thread; an invalid one
// marks the payment failed.
func (h *PaymentHandler) Verify(c *fiber.Ctx) error {
	user, profile, err := clientProfileFor(h.DB, c)
	if err != nil || profile == nil {
		return c.Status(403).JSON(fiber.Map{"success": false, "message": "Client profile required"})
	}

	var req struct {
		OrderID   string `json:"razorpay_order_id"`
		PaymentID string `json:"razorpay_payment_id"`
		Signature string `json:"razorpay_signature"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"success": false, "message": "Invalid request"})
	}
	if req.OrderID == "" || req.PaymentID == "" || req.Signature == "" {
		return c.Status(400).JSON(fiber.Map{"success": false, "message": "Missing payment fields"})
	}

	var payment models.Payment
	if err := h.DB.Where("gateway_order_id = ?", req.OrderID).First(&payment).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{"success": false, "message": "Payment not found"})
	}
	if payment.ClientID != profile.ID {
		return c.Status(403).JSON(fiber.Map{"success": false, "message": "Not your payment"})
	}
	if payment.Status == models.PaymentStatusCompleted {
		return c.JSON(fiber.Map{"success": true, "message": "Payment already verified", "data": payment})
	}

	// a sibling order for the same (job, freelancer) may have completed
	// between order creation and this callback
	var dup int64
	h.DB.Model(&models.Payment{}).
		Where("job_id = ? AND freelancer_id = ? AND status = ? AND id != ?",
			payment.JobID, payment.FreelancerID, models.PaymentStatusCompleted, payment.ID).
		Count(&dup)
	if dup > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"message": "This job is already paid for this freelancer",
		})
	}

	if !h.Gateway.VerifyPaymentSignature(req.OrderID, req.PaymentID, req.Signature) {
		_ = h.DB.Model(&payment).Updates(map[string]interface{}{
			"status":             models.PaymentStatusFailed,
			"gateway_payment_id": req.PaymentID,
		}).Error
		return c.Status(400).JSON(fiber.Map{"success": false, "message": "Invalid payment signature"})
	}

	now := time.Now()
	txn := req.PaymentID
	updates := map[string]interface{}{
		"status":             models.PaymentStatusCompleted,
		"transaction_id":     txn,
		"gateway_payment_id": req.PaymentID,
		"gateway_signature":  req.Signature,
		"paid_at":            now,
	}
	if err := h.DB.Model(&payment).Updates(updates).Error; err != nil {
		return fail500(c, "Failed to update payment")
	}
	payment.Status = models.PaymentStatusCompleted
	payment.TransactionID = &txn
	payment.PaidAt = &now

	// funded job starts work
	var job models.Job
	if err := h.DB.First(&job, "id = ?", payment.JobID).Error; err == nil &&
		job.Status.CanTransition(models.JobStatusInProgress) {
		_ = h.DB.Model(&job).Update("status", models.JobStatusInProgress).Error
	}

	h.announcePayment(c, &payment, user)

	return c.JSON(fiber.Map{"success": true, "message": "Payment verified", "data": payment})
}

// announcePayment posts a payment_completed message to the client/freelancer
// thread for the paid job, creating the thread if the pair never chatted.
func (h *PaymentHandler) announcePayment(c *fiber.Ctx, payment *models.Payment, actor *models.User) {
	ctx := c.Context()
	jobID := payment.JobID
	thread, _, err := h.Svc.GetOrCreateThread(ctx, payment.ClientID, payment.FreelancerID, &jobID)
	if err != nil {
		log.Printf("payment %d: thread: %v", payment.ID, err)
		return
	}

	body := fmt.Sprintf("Payment of %s %.2f completed", payment.Currency, float64(payment.Amount)/100)
	meta := map[string]interface{}{
		"payment_id": payment.ID,
		"amount":     payment.Amount,
		"currency":   payment.Currency,
		"job_id":     payment.JobID,
	}
	if _, err := h.Svc.PostSystemMessage(ctx, thread.ID, actor, body, models.MessageTypePaymentCompleted, meta); err != nil {
		log.Printf("payment %d: post system message: %v", payment.ID, err)
	}
}

// ListMine handles GET /payments and returns the caller's payments, from
// either side of the table.
func (h *PaymentHandler) ListMine(c *fiber.Ctx) error {
	user, err := loadCurrentUser(h.DB, c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	q := h.DB.Preload("Job").Order("created_at DESC")
	switch user.Role {
	case models.RoleClient:
		q = q.Joins("JOIN client_profiles cp ON cp.id = payments.client_id").
			Where("cp.user_id = ?", user.ID)
	case models.RoleFreelancer:
		q = q.Joins("JOIN freelancer_profiles fp ON fp.id = payments.freelancer_id").
			Where("fp.user_id = ?", user.ID)
	default:
		// admins see everything
	}

	var payments []models.Payment
	if err := q.Find(&payments).Error; err != nil {
		return fail500(c, "Failed to load payments")
	}
	return c.JSON(fiber.Map{"success": true, "data": payments})
}

// GetPayment handles GET /payments/:id.
func (h *PaymentHandler) GetPayment(c *fiber.Ctx) error {
	user, err := loadCurrentUser(h.DB, c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"success": false, "message": "Invalid payment id"})
	}

	var payment models.Payment
	if err := h.DB.
		Preload("Job").
		Preload("Client").
		Preload("Freelancer").
		First(&payment, "id = ?", uint(id)).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{"success": false, "message": "Payment not found"})
	}

	allowed := user.Role == models.RoleAdmin ||
		(payment.Client != nil && payment.Client.UserID == user.ID) ||
		(payment.Freelancer != nil && payment.Freelancer.UserID == user.ID)
	if !allowed {
		return c.Status(403).JSON(fiber.Map{"success": false, "message": "Not your payment"})
	}

	return c.JSON(fiber.Map{"success": true, "data": payment})
}
