package approval

import (
	"errors"
	"fmt"

	"ebd-backend/internal/audit"
	"ebd-backend/internal/bling"
	"ebd-backend/internal/commission"
	"ebd-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type RejectRequest struct {
	Reason string `json:"reason"`
}

// POST /api/proposals/:id/approve
func ApproveHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "id inválido")
		}

		result, err := svc.Approve(c.Context(), uint(id))
		if err != nil {
			return renderApprovalError(c, err)
		}

		if userID, userName, aerr := audit.RequestUser(c); aerr == nil {
			_ = audit.WriteLog(audit.LogOptions{
				UserID:      userID,
				UserName:    userName,
				EntityType:  "proposal",
				EntityID:    uint(id),
				Action:      models.AuditActionApprove,
				Description: fmt.Sprintf("Proposta aprovada, pedido Bling %s, %d parcelas", result.OrderID, result.InstallmentsCreated),
				After:       result,
			})
		}

		return c.JSON(result)
	}
}

// POST /api/proposals/:id/reject
func RejectHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "id inválido")
		}

		var body RejectRequest
		if err := c.BodyParser(&body); err != nil && len(c.Body()) > 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Corpo da requisição inválido")
		}

		if err := svc.Reject(c.Context(), uint(id), body.Reason); err != nil {
			if errors.Is(err, ErrInvalidState) {
				return fiber.NewError(fiber.StatusConflict, "Proposta não está aguardando aprovação")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "Não foi possível rejeitar a proposta")
		}

		if userID, userName, aerr := audit.RequestUser(c); aerr == nil {
			_ = audit.WriteLog(audit.LogOptions{
				UserID:      userID,
				UserName:    userName,
				EntityType:  "proposal",
				EntityID:    uint(id),
				Action:      models.AuditActionReject,
				Description: fmt.Sprintf("Proposta rejeitada: %s", body.Reason),
			})
		}

		return c.JSON(fiber.Map{"status": models.ProposalRejected})
	}
}

// renderApprovalError: toda falha vira mensagem legível para o operador;
// o detalhe bruto do gateway fica num campo secundário, nunca na mensagem
// principal.
func renderApprovalError(c *fiber.Ctx, err error) error {
	var pf *PartialFailureError
	if errors.As(err, &pf) {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":    fmt.Sprintf("Aprovação incompleta: o pedido %s já foi criado no Bling, mas uma etapa posterior falhou. Concilie manualmente ou tente aprovar de novo para retomar.", pf.OrderID),
			"order_id": pf.OrderID,
			"step":     pf.Step,
			"details":  pf.Err.Error(),
		})
	}

	var inv *bling.InventoryInsufficientError
	if errors.As(err, &inv) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":     "Estoque insuficiente no Bling para os itens da proposta. Acione o suprimento antes de aprovar.",
			"inventory": true,
			"details":   inv.Messages,
		})
	}

	var fv *bling.FiscalValidationError
	if errors.As(err, &fv) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":   "O Bling rejeitou os dados do pedido. Corrija os campos apontados e tente de novo.",
			"details": fv.Messages,
		})
	}

	var ute *commission.UnknownTermError
	switch {
	case errors.Is(err, ErrInvalidState):
		return fiber.NewError(fiber.StatusConflict, "Proposta não está aguardando aprovação")
	case errors.Is(err, ErrClientNotEligible):
		return fiber.NewError(fiber.StatusUnprocessableEntity, "Cliente não habilitado para faturamento a prazo")
	case errors.Is(err, bling.ErrMissingFiscalClassification):
		return fiber.NewError(fiber.StatusUnprocessableEntity, "Proposta sem natureza de operação, obrigatória para emitir a NF-e")
	case errors.As(err, &ute):
		return fiber.NewError(fiber.StatusUnprocessableEntity, "Condição de faturamento da proposta não é reconhecida")
	case errors.Is(err, bling.ErrGatewayTimeout):
		return fiber.NewError(fiber.StatusGatewayTimeout, "O Bling demorou demais para responder. A proposta continua aguardando aprovação, tente de novo.")
	case errors.Is(err, bling.ErrGatewayUnreachable), errors.Is(err, bling.ErrTokenRefresh):
		return fiber.NewError(fiber.StatusServiceUnavailable, "Não foi possível falar com o Bling. A proposta continua aguardando aprovação, tente de novo.")
	}

	return fiber.NewError(fiber.StatusInternalServerError, "Falha inesperada na aprovação")
}
