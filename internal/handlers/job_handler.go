package handlers

import (
	"context"
	"log"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/workbridge/workbridge-backend/internal/models"
	"github.com/workbridge/workbridge-backend/internal/services/chatsvc"
)

type JobHandler struct {
	DB  *gorm.DB
	Svc *chatsvc.Service
}

func NewJobHandler(db *gorm.DB, svc *chatsvc.Service) *JobHandler {
	return &JobHandler{DB: db, Svc: svc}
}

// clientProfileFor resolves the caller's client profile, the owner key for
// jobs and payments.
func clientProfileFor(db *gorm.DB, c *fiber.Ctx) (*models.User, *models.ClientProfile, error) {
	user, err := loadCurrentUser(db, c)
	if err != nil {
		return nil, nil, err
	}
	var profile models.ClientProfile
	if err := db.Where("user_id = ?", user.ID).First(&profile).Error; err != nil {
		return user, nil, err
	}
	return user, &profile, nil
}

// CreateJob handles POST /jobs. Client-only; new jobs start as pending.
func (h *JobHandler) CreateJob(c *fiber.Ctx) error {
	user, profile, err := clientProfileFor(h.DB, c)
	if err != nil || user.Role != models.RoleClient || profile == nil {
		return c.Status(403).JSON(fiber.Map{"success": false, "message": "Only clients with a profile can post jobs"})
	}

	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Budget      int64  `json:"budget"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"success": false, "message": "Invalid request"})
	}

	errs := FieldErrors{}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		errs.Add("title", "Title is required")
	}
	if req.Budget <= 0 {
		errs.Add("budget", "Budget must be positive")
	}
	if len(errs) > 0 {
		return validationFail(c, errs)
	}

	job := models.Job{
		ClientID:    profile.ID,
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		Budget:      req.Budget,
		Status:      models.JobStatusPending,
	}
	if err := h.DB.Create(&job).Error; err != nil {
		return fail500(c, "Failed to create job")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": job})
}

// ListOpenJobs handles GET /jobs. Anyone authenticated sees open jobs.
func (h *JobHandler) ListOpenJobs(c *fiber.Ctx) error {
	var jobs []models.Job
	if err := h.DB.
		Preload("Client").
		Preload("Client.User").
		Where("status = ?", models.JobStatusOpen).
		Order("created_at DESC").
		Find(&jobs).Error; err != nil {
		return fail500(c, "Failed to load jobs")
	}
	return c.JSON(fiber.Map{"success": true, "data": jobs})
}

// MyJobs handles GET /jobs/mine and lists the caller's own jobs regardless
// of status.
func (h *JobHandler) MyJobs(c *fiber.Ctx) error {
	_, profile, err := clientProfileFor(h.DB, c)
	if err != nil || profile == nil {
		return c.Status(403).JSON(fiber.Map{"success": false, "message": "Client profile required"})
	}

	var jobs []models.Job
	if err := h.DB.
		Where("client_id = ?", profile.ID).
		Order("created_at DESC").
		Find(&jobs).Error; err != nil {
		return fail500(c, "Failed to load jobs")
	}
	return c.JSON(fiber.Map{"success": true, "data": jobs})
}

// GetJob handles GET /jobs/:id.
func (h *JobHandler) GetJob(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"success": false, "message": "Invalid job id"})
	}

	var job models.Job
	if err := h.DB.
		Preload("Client").
		Preload("Client.User").
		First(&job, "id = ?", uint(id)).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{"success": false, "message": "Job not found"})
	}
	return c.JSON(fiber.Map{"success": true, "data": job})
}

// UpdateJobStatus handles PATCH /jobs/:id/status. Only the owning client
// moves a job through its lifecycle, and only along allowed transitions.
// Completing a job drops a job_update message into every thread scoped to
// it so both parties see the change in context.
func (h *JobHandler) UpdateJobStatus(c *fiber.Ctx) error {
	user, profile, err := clientProfileFor(h.DB, c)
	if err != nil || profile == nil {
		return c.Status(403).JSON(fiber.Map{"success": false, "message": "Client profile required"})
	}

	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"success": false, "message": "Invalid job id"})
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"success": false, "message": "Invalid request"})
	}
	next := models.JobStatus(strings.ToLower(strings.TrimSpace(req.Status)))

	var job models.Job
	if err := h.DB.First(&job, "id = ?", uint(id)).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{"success": false, "message": "Job not found"})
	}
	if job.ClientID != profile.ID {
		return c.Status(403).JSON(fiber.Map{"success": false, "message": "Not your job"})
	}

	if !job.Status.CanTransition(next) {
		return c.Status(400).JSON(fiber.Map{
			"success": false,
			"message": "Cannot move job from " + string(job.Status) + " to " + string(next),
		})
	}

	if err := h.DB.Model(&job).Update("status", next).Error; err != nil {
		return fail500(c, "Failed to update job")
	}
	job.Status = next

	h.announceStatus(c.Context(), &job, user)

	return c.JSON(fiber.Map{"success": true, "data": job})
}

// announceStatus posts a job_update system message to each thread attached
// to the job. Chat delivery is best-effort relative to the status change.
func (h *JobHandler) announceStatus(ctx context.Context, job *models.Job, actor *models.User) {
	var threads []models.ChatThread
	if err := h.DB.Where("job_id = ?", job.ID).Find(&threads).Error; err != nil {
		log.Printf("job %d: load threads: %v", job.ID, err)
		return
	}

	body := "Job \"" + job.Title + "\" is now " + string(job.Status)
	meta := map[string]interface{}{
		"job_id": job.ID,
		"status": string(job.Status),
	}
	for _, t := range threads {
		if _, err := h.Svc.PostSystemMessage(ctx, t.ID, actor, body, models.MessageTypeJobUpdate, meta); err != nil {
			log.Printf("job %d: post update to thread %d: %v", job.ID, t.ID, err)
		}
	}
}
