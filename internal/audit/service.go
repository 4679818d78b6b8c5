package audit

import (
	"encoding/json"
	"fmt"

	"ebd-backend/internal/auth"
	"ebd-backend/internal/database"
	"ebd-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type LogOptions struct {
	UserID      uint
	UserName    string
	EntityType  string
	EntityID    uint
	Action      models.AuditAction
	Description string
	Before      any
	After       any
}

func WriteLog(opts LogOptions) error {
	// jsonb do Postgres exige "null" literal, nunca string vazia
	beforeStr := "null"
	afterStr := "null"

	if opts.Before != nil {
		if b, err := json.Marshal(opts.Before); err == nil {
			beforeStr = string(b)
		}
	}
	if opts.After != nil {
		if b, err := json.Marshal(opts.After); err == nil {
			afterStr = string(b)
		}
	}

	entry := models.AuditLog{
		UserID:      opts.UserID,
		UserName:    opts.UserName,
		EntityType:  opts.EntityType,
		EntityID:    opts.EntityID,
		Action:      opts.Action,
		Description: opts.Description,
		BeforeData:  beforeStr,
		AfterData:   afterStr,
	}

	if err := database.DB.Create(&entry).Error; err != nil {
		return fmt.Errorf("não foi possível gravar o log de auditoria: %w", err)
	}

	return nil
}

// RequestUser: resolve id e nome do usuário autenticado para auditoria
func RequestUser(c *fiber.Ctx) (uint, string, error) {
	userID, ok := c.Locals(auth.CtxUserIDKey).(uint)
	if !ok {
		return 0, "", fiber.NewError(fiber.StatusForbidden, "Usuário não identificado")
	}

	var user models.User
	if err := database.DB.First(&user, "id = ?", userID).Error; err != nil {
		return 0, "", fiber.NewError(fiber.StatusInternalServerError, "Usuário não encontrado")
	}

	return userID, user.Name, nil
}
