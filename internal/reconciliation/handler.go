package reconciliation

import (
	"fmt"
	"time"

	"ebd-backend/internal/audit"
	"ebd-backend/internal/config"
	"ebd-backend/internal/database"
	"ebd-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

func loadOutstanding() ([]models.CommissionInstallment, error) {
	var outstanding []models.CommissionInstallment
	err := database.DB.
		Preload("Client").
		Preload("Vendor").
		Where("status IN ?", models.OutstandingStatuses).
		Order("due_date ASC").
		Find(&outstanding).Error
	return outstanding, err
}

type MatchRequest struct {
	Entries []StatementEntry `json:"entries"`
}

type MatchResponse struct {
	Matches   []MatchProposal `json:"matches"`
	Unmatched int             `json:"unmatched"`
	Warnings  []string        `json:"warnings,omitempty"`
}

func buildMatchResponse(entries []StatementEntry, warnings []string) (MatchResponse, error) {
	outstanding, err := loadOutstanding()
	if err != nil {
		return MatchResponse{}, err
	}

	matches := MatchEntries(entries, outstanding)
	unmatched := 0
	for _, m := range matches {
		if len(m.Candidates) == 0 {
			unmatched++
		}
	}

	return MatchResponse{Matches: matches, Unmatched: unmatched, Warnings: warnings}, nil
}

// POST /api/reconciliation/match
// Recebe os títulos já extraídos do extrato (pelo colaborador de parsing)
// e propõe os pareamentos com as parcelas em aberto.
func MatchHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body MatchRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corpo da requisição inválido")
		}
		if len(body.Entries) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Nenhum título informado")
		}

		resp, err := buildMatchResponse(body.Entries, nil)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Não foi possível carregar as parcelas em aberto")
		}
		return c.JSON(resp)
	}
}

// POST /api/reconciliation/import-xlsx (multipart, campo "file")
// Importa a planilha de retorno do banco e já propõe os pareamentos.
func ImportXLSXHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Envie a planilha no campo 'file'")
		}

		file, err := fileHeader.Open()
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Não foi possível abrir o arquivo enviado")
		}
		defer file.Close()

		entries, warnings, err := ParseStatementXLSX(file)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("Planilha inválida: %v", err))
		}
		if len(entries) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "A planilha não contém títulos legíveis")
		}

		config.GetLogger().WithField("entries", len(entries)).
			WithField("warnings", len(warnings)).
			Info("extrato importado para conciliação")

		resp, err := buildMatchResponse(entries, warnings)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Não foi possível carregar as parcelas em aberto")
		}
		return c.JSON(resp)
	}
}

type ConfirmRequest struct {
	Selections []Selection `json:"selections"`
}

// POST /api/reconciliation/confirm
// Confirma o subconjunto escolhido pelo operador. Cada baixa é aplicada
// de forma independente; o resultado reporta sucessos e falhas.
func ConfirmHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body ConfirmRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corpo da requisição inválido")
		}
		if len(body.Selections) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Nenhuma seleção para confirmar")
		}

		marker := NewGormMarker(database.DB)
		result := ConfirmMatches(c.Context(), marker, body.Selections, time.Now())

		if userID, userName, err := audit.RequestUser(c); err == nil {
			_ = audit.WriteLog(audit.LogOptions{
				UserID:      userID,
				UserName:    userName,
				EntityType:  "reconciliation",
				EntityID:    0,
				Action:      models.AuditActionPay,
				Description: fmt.Sprintf("Conciliação bancária: %d baixas, %d falhas", result.Succeeded, result.Failed),
				After:       result,
			})
		}

		return c.JSON(result)
	}
}
