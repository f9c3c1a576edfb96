package handlers

import (
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/workbridge/workbridge-backend/internal/models"
	"github.com/workbridge/workbridge-backend/internal/services/chatsvc"
)

type DisputeHandler struct {
	DB  *gorm.DB
	Svc *chatsvc.Service
}

func NewDisputeHandler(db *gorm.DB, svc *chatsvc.Service) *DisputeHandler {
	return &DisputeHandler{DB: db, Svc: svc}
}

// CreateFromThread handles POST /chat/threads/:id/disputes. Either
// participant of the thread may raise a dispute; the other party learns
// about it from the dispute_created message posted back into the thread.
func (h *DisputeHandler) CreateFromThread(c *fiber.Ctx) error {
	user, err := loadCurrentUser(h.DB, c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	threadID, err := parseThreadID(c)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"success": false, "message": "Invalid thread id"})
	}

	thread, err := h.Svc.LoadThread(c.Context(), threadID)
	if err != nil {
		return c.Status(404).JSON(fiber.Map{"success": false, "message": "Thread not found"})
	}
	if !thread.IsParticipant(user.ID) {
		return c.Status(403).JSON(fiber.Map{"success": false, "message": "Not a participant of this thread"})
	}

	var req struct {
		Subject     string `json:"subject"`
		Description string `json:"description"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"success": false, "message": "Invalid request"})
	}

	errs := FieldErrors{}
	subject := strings.TrimSpace(req.Subject)
	description := strings.TrimSpace(req.Description)
	if subject == "" {
		errs.Add("subject", "Subject is required")
	}
	if description == "" {
		errs.Add("description", "Description is required")
	}
	if len(errs) > 0 {
		return validationFail(c, errs)
	}

	dispute := models.Dispute{
		JobID:        thread.JobID,
		ClientID:     thread.ClientID,
		FreelancerID: thread.FreelancerID,
		Subject:      subject,
		Description:  description,
		CreatedByID:  user.ID,
		Status:       models.DisputeStatusOpen,
	}
	if err := h.DB.Create(&dispute).Error; err != nil {
		return fail500(c, "Failed to create dispute")
	}

	body := "Dispute opened: " + subject
	meta := map[string]interface{}{
		"dispute_id": dispute.ID,
		"subject":    subject,
	}
	if _, err := h.Svc.PostSystemMessage(c.Context(), thread.ID, user, body, models.MessageTypeDisputeCreated, meta); err != nil {
		log.Printf("dispute %d: post system message: %v", dispute.ID, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": dispute})
}

// ListMine handles GET /disputes and returns disputes the caller is party to.
func (h *DisputeHandler) ListMine(c *fiber.Ctx) error {
	user, err := loadCurrentUser(h.DB, c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	q := h.DB.Preload("Job").Order("created_at DESC")
	switch user.Role {
	case models.RoleClient:
		q = q.Joins("JOIN client_profiles cp ON cp.id = disputes.client_id").
			Where("cp.user_id = ?", user.ID)
	case models.RoleFreelancer:
		q = q.Joins("JOIN freelancer_profiles fp ON fp.id = disputes.freelancer_id").
			Where("fp.user_id = ?", user.ID)
	default:
		return c.Status(403).JSON(fiber.Map{"success": false, "message": "Use the admin listing"})
	}

	var disputes []models.Dispute
	if err := q.Find(&disputes).Error; err != nil {
		return fail500(c, "Failed to load disputes")
	}
	return c.JSON(fiber.Map{"success": true, "data": disputes})
}

// AdminList handles GET /admin/disputes with an optional ?status= filter.
func (h *DisputeHandler) AdminList(c *fiber.Ctx) error {
	q := h.DB.
		Preload("Job").
		Preload("CreatedBy").
		Order("created_at DESC")

	if status := strings.ToLower(strings.TrimSpace(c.Query("status"))); status != "" {
		switch models.DisputeStatus(status) {
		case models.DisputeStatusOpen, models.DisputeStatusResolved, models.DisputeStatusDismissed:
			q = q.Where("status = ?", status)
		default:
			return c.Status(400).JSON(fiber.Map{"success": false, "message": "Unknown status filter"})
		}
	}

	var disputes []models.Dispute
	if err := q.Find(&disputes).Error; err != nil {
		return fail500(c, "Failed to load disputes")
	}
	return c.JSON(fiber.Map{"success": true, "data": disputes})
}

// AdminResolve handles POST /admin/disputes/:id/resolve with an action of
// "resolve" or "dismiss". Resolution text is required when resolving.
// Terminal disputes stay terminal.
func (h *DisputeHandler) AdminResolve(c *fiber.Ctx) error {
	admin, err := loadCurrentUser(h.DB, c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"success": false, "message": "Invalid dispute id"})
	}

	var req struct {
		Action     string `json:"action"`
		Resolution string `json:"resolution"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"success": false, "message": "Invalid request"})
	}

	action := strings.ToLower(strings.TrimSpace(req.Action))
	resolution := strings.TrimSpace(req.Resolution)

	var next models.DisputeStatus
	switch action {
	case "resolve":
		if resolution == "" {
			errs := FieldErrors{}
			errs.Add("resolution", "Resolution is required when resolving")
			return validationFail(c, errs)
		}
		next = models.DisputeStatusResolved
	case "dismiss":
		next = models.DisputeStatusDismissed
	default:
		return c.Status(400).JSON(fiber.Map{"success": false, "message": "Action must be resolve or dismiss"})
	}

	var dispute models.Dispute
	if err := h.DB.First(&dispute, "id = ?", uint(id)).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{"success": false, "message": "Dispute not found"})
	}
	if dispute.Status != models.DisputeStatusOpen {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"message": "Dispute is already " + string(dispute.Status),
		})
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":         next,
		"resolved_by_id": admin.ID,
		"resolved_at":    now,
	}
	if next == models.DisputeStatusResolved {
		updates["resolution"] = resolution
	}
	if err := h.DB.Model(&dispute).Updates(updates).Error; err != nil {
		return fail500(c, "Failed to update dispute")
	}
	dispute.Status = next
	dispute.ResolvedByID = &admin.ID
	dispute.ResolvedAt = &now
	if next == models.DisputeStatusResolved {
		dispute.Resolution = &resolution
	}

	return c.JSON(fiber.Map{"success": true, "data": dispute})
}
