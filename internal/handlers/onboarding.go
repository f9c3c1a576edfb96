package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/workbridge/workbridge-backend/internal/models"
)

// OnboardingHandler creates the role-specific one-to-one profile once a
// user completes onboarding. A user gets at most one profile and it must
// match their role.
type OnboardingHandler struct {
	DB *gorm.DB
}

func NewOnboardingHandler(db *gorm.DB) *OnboardingHandler {
	return &OnboardingHandler{DB: db}
}

func fail500(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"message": message,
	})
}

// CreateClientProfile handles POST /client/profile.
func (h *OnboardingHandler) CreateClientProfile(c *fiber.Ctx) error {
	user, err := loadCurrentUser(h.DB, c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}
	if user.Role != models.RoleClient {
		return c.Status(403).JSON(fiber.Map{"success": false, "message": "Only clients can create a client profile"})
	}

	var req struct {
		CompanyName string `json:"company_name"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"success": false, "message": "Invalid request"})
	}

	var existing models.ClientProfile
	if err := h.DB.Where("user_id = ?", user.ID).First(&existing).Error; err == nil {
		return c.JSON(fiber.Map{"success": true, "created": false, "data": existing})
	} else if err != gorm.ErrRecordNotFound {
		return fail500(c, "Internal server error")
	}

	profile := models.ClientProfile{
		UserID:      user.ID,
		CompanyName: strings.TrimSpace(req.CompanyName),
	}
	if err := h.DB.Create(&profile).Error; err != nil {
		return fail500(c, "Failed to create profile")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "created": true, "data": profile})
}

// CreateFreelancerProfile handles POST /freelancer/profile.
func (h *OnboardingHandler) CreateFreelancerProfile(c *fiber.Ctx) error {
	user, err := loadCurrentUser(h.DB, c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}
	if user.Role != models.RoleFreelancer {
		return c.Status(403).JSON(fiber.Map{"success": false, "message": "Only freelancers can create a freelancer profile"})
	}

	var req struct {
		Title      string `json:"title"`
		HourlyRate int64  `json:"hourly_rate"`
		Bio        string `json:"bio"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"success": false, "message": "Invalid request"})
	}

	var existing models.FreelancerProfile
	if err := h.DB.Where("user_id = ?", user.ID).First(&existing).Error; err == nil {
		return c.JSON(fiber.Map{"success": true, "created": false, "data": existing})
	} else if err != gorm.ErrRecordNotFound {
		return fail500(c, "Internal server error")
	}

	profile := models.FreelancerProfile{
		UserID:     user.ID,
		Title:      strings.TrimSpace(req.Title),
		HourlyRate: req.HourlyRate,
		Bio:        strings.TrimSpace(req.Bio),
	}
	if err := h.DB.Create(&profile).Error; err != nil {
		return fail500(c, "Failed to create profile")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "created": true, "data": profile})
}

// GetMyProfile returns the profile matching the caller's role.
func (h *OnboardingHandler) GetMyProfile(c *fiber.Ctx) error {
	user, err := loadCurrentUser(h.DB, c)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	switch user.Role {
	case models.RoleClient:
		var profile models.ClientProfile
		if err := h.DB.Where("user_id = ?", user.ID).First(&profile).Error; err != nil {
			return c.Status(404).JSON(fiber.Map{"success": false, "message": "Profile not found"})
		}
		return c.JSON(fiber.Map{"success": true, "data": profile})
	case models.RoleFreelancer:
		var profile models.FreelancerProfile
		if err := h.DB.Where("user_id = ?", user.ID).First(&profile).Error; err != nil {
			return c.Status(404).JSON(fiber.Map{"success": false, "message": "Profile not found"})
		}
		return c.JSON(fiber.Map{"success": true, "data": profile})
	default:
		return c.Status(404).JSON(fiber.Map{"success": false, "message": "No profile for this role"})
	}
}
