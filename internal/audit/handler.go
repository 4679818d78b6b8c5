package audit

import (
	"strconv"

	"ebd-backend/internal/database"
	"ebd-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type AuditLogResponse struct {
	ID          uint               `json:"id"`
	UserID      uint               `json:"user_id"`
	UserName    string             `json:"user_name"`
	EntityType  string             `json:"entity_type"`
	EntityID    uint               `json:"entity_id"`
	Action      models.AuditAction `json:"action"`
	Description string             `json:"description"`
	BeforeData  string             `json:"before_data"`
	AfterData   string             `json:"after_data"`
	CreatedAt   string             `json:"created_at"`
}

// GET /api/audit-logs?entity_type=proposal&entity_id=12&limit=50
func ListAuditLogsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		query := database.DB.Model(&models.AuditLog{}).Order("created_at DESC")

		if et := c.Query("entity_type"); et != "" {
			query = query.Where("entity_type = ?", et)
		}
		if eid := c.Query("entity_id"); eid != "" {
			id, err := strconv.Atoi(eid)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "entity_id inválido")
			}
			query = query.Where("entity_id = ?", id)
		}

		limit := 100
		if l := c.Query("limit"); l != "" {
			if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
				limit = n
			}
		}

		var logs []models.AuditLog
		if err := query.Limit(limit).Find(&logs).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Não foi possível listar os logs")
		}

		resp := make([]AuditLogResponse, 0, len(logs))
		for _, l := range logs {
			resp = append(resp, AuditLogResponse{
				ID:          l.ID,
				UserID:      l.UserID,
				UserName:    l.UserName,
				EntityType:  l.EntityType,
				EntityID:    l.EntityID,
				Action:      l.Action,
				Description: l.Description,
				BeforeData:  l.BeforeData,
				AfterData:   l.AfterData,
				CreatedAt:   l.CreatedAt.Format("2006-01-02 15:04:05"),
			})
		}

		return c.JSON(resp)
	}
}
