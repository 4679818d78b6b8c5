package commission

import (
	"fmt"
	"time"

	"ebd-backend/internal/audit"
	"ebd-backend/internal/auth"
	"ebd-backend/internal/bling"
	"ebd-backend/internal/config"
	"ebd-backend/internal/database"
	"ebd-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type InstallmentResponse struct {
	ID              uint                     `json:"id"`
	ProposalID      uint                     `json:"proposal_id"`
	ClientID        uint                     `json:"client_id"`
	ClientName      string                   `json:"client_name"`
	VendorID        uint                     `json:"vendor_id"`
	VendorName      string                   `json:"vendor_name"`
	Number          int                      `json:"number"`
	Count           int                      `json:"count"`
	FaceValue       decimal.Decimal          `json:"face_value"`
	CommissionValue decimal.Decimal          `json:"commission_value"`
	DueDate         string                   `json:"due_date"`
	ReleaseDate     *string                  `json:"release_date"`
	PaymentDate     *string                  `json:"payment_date"`
	Status          models.InstallmentStatus `json:"status"`
	DocumentNumber  *string                  `json:"document_number"`
	DocumentLink    *string                  `json:"document_link"`
}

func toInstallmentResponse(inst models.CommissionInstallment) InstallmentResponse {
	fmtDate := func(t *time.Time) *string {
		if t == nil {
			return nil
		}
		s := t.Format("2006-01-02")
		return &s
	}
	return InstallmentResponse{
		ID:              inst.ID,
		ProposalID:      inst.ProposalID,
		ClientID:        inst.ClientID,
		ClientName:      inst.Client.Name,
		VendorID:        inst.VendorID,
		VendorName:      inst.Vendor.Name,
		Number:          inst.Number,
		Count:           inst.Count,
		FaceValue:       inst.FaceValue,
		CommissionValue: inst.CommissionValue,
		DueDate:         inst.DueDate.Format("2006-01-02"),
		ReleaseDate:     fmtDate(inst.ReleaseDate),
		PaymentDate:     fmtDate(inst.PaymentDate),
		Status:          inst.Status,
		DocumentNumber:  inst.DocumentNumber,
		DocumentLink:    inst.DocumentLink,
	}
}

// GET /api/commissions/installments?status=pendente&vendor_id=3&client_id=9
// O filtro de status aceita os sinônimos legados via normalização.
func ListInstallmentsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		query := database.DB.Model(&models.CommissionInstallment{}).
			Preload("Client").
			Preload("Vendor").
			Order("due_date ASC")

		if raw := c.Query("status"); raw != "" {
			status, err := models.ParseInstallmentStatus(raw)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("Status desconhecido: %s", raw))
			}
			query = query.Where("status = ?", status)
		}
		if vid := c.QueryInt("vendor_id"); vid > 0 {
			query = query.Where("vendor_id = ?", vid)
		}
		if cid := c.QueryInt("client_id"); cid > 0 {
			query = query.Where("client_id = ?", cid)
		}

		// vendedor só enxerga as próprias comissões
		if role, ok := c.Locals(auth.CtxUserRoleKey).(models.UserRole); ok && role == models.RoleVendedor {
			vendorID, ok := c.Locals(auth.CtxVendorIDKey).(*uint)
			if !ok || vendorID == nil {
				return fiber.NewError(fiber.StatusForbidden, "Vendedor sem cadastro vinculado")
			}
			query = query.Where("vendor_id = ?", *vendorID)
		}

		var installments []models.CommissionInstallment
		if err := query.Find(&installments).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Não foi possível listar as parcelas")
		}

		resp := make([]InstallmentResponse, 0, len(installments))
		for _, inst := range installments {
			resp = append(resp, toInstallmentResponse(inst))
		}
		return c.JSON(resp)
	}
}

type MarkPaidRequest struct {
	PaymentDate *string `json:"payment_date"` // YYYY-MM-DD, default hoje
}

// POST /api/commissions/installments/:id/mark-paid
// Baixa manual. Atualização condicional: só parcelas em aberto podem ser
// pagas; zero linhas afetadas é conflito, não sucesso.
func MarkPaidHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "id inválido")
		}

		var body MarkPaidRequest
		if err := c.BodyParser(&body); err != nil && len(c.Body()) > 0 {
			return fiber.NewError(fiber.StatusBadRequest, "Corpo da requisição inválido")
		}

		now := time.Now()
		paymentDate := now
		if body.PaymentDate != nil {
			parsed, err := time.Parse("2006-01-02", *body.PaymentDate)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "payment_date deve estar no formato AAAA-MM-DD")
			}
			paymentDate = parsed
		}

		var before models.CommissionInstallment
		if err := database.DB.First(&before, "id = ?", id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Parcela não encontrada")
		}

		res := database.DB.Model(&models.CommissionInstallment{}).
			Where("id = ? AND status IN ?", id, models.OutstandingStatuses).
			Updates(map[string]interface{}{
				"status":       models.InstallmentPaid,
				"release_date": now,
				"payment_date": paymentDate,
			})
		if res.Error != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Não foi possível baixar a parcela")
		}
		if res.RowsAffected == 0 {
			return fiber.NewError(fiber.StatusConflict, "Parcela já está paga ou ainda não tem boleto em aberto")
		}

		if userID, userName, err := audit.RequestUser(c); err == nil {
			var after models.CommissionInstallment
			database.DB.First(&after, "id = ?", id)
			_ = audit.WriteLog(audit.LogOptions{
				UserID:      userID,
				UserName:    userName,
				EntityType:  "commission_installment",
				EntityID:    uint(id),
				Action:      models.AuditActionPay,
				Description: fmt.Sprintf("Baixa manual da parcela %d/%d da proposta %d", before.Number, before.Count, before.ProposalID),
				Before:      before,
				After:       after,
			})
		}

		return c.JSON(fiber.Map{"status": models.InstallmentPaid})
	}
}

// POST /api/commissions/installments/sync-documents
// Polling iniciado pelo operador (não há loop de fundo): consulta no Bling
// a situação das NF-e das propostas com parcelas aguardando nota e, quando
// autorizadas, preenche número/link do documento e agenda as parcelas.
// Situação pendente é reportada, não é erro.
func SyncDocumentsHandler(gateway *bling.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var proposals []models.Proposal
		err := database.DB.
			Where("bling_document_id IS NOT NULL").
			Where("id IN (?)", database.DB.Model(&models.CommissionInstallment{}).
				Select("DISTINCT proposal_id").
				Where("status = ?", models.InstallmentAwaitingInvoice)).
			Find(&proposals).Error
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Não foi possível carregar as propostas pendentes")
		}

		logg := config.GetLogger()
		authorized, pending, rejected := 0, 0, 0
		messages := []string{}

		for _, p := range proposals {
			ds, err := gateway.PollDocumentStatus(c.Context(), *p.BlingDocumentID)
			if err != nil {
				messages = append(messages, fmt.Sprintf("Proposta %d: falha ao consultar NF-e: %v", p.ID, err))
				continue
			}

			switch ds.State {
			case bling.IssuanceAuthorized:
				res := database.DB.Model(&models.CommissionInstallment{}).
					Where("proposal_id = ? AND status = ?", p.ID, models.InstallmentAwaitingInvoice).
					Updates(map[string]interface{}{
						"status":          models.InstallmentScheduled,
						"document_number": ds.DocumentNumber,
						"document_link":   ds.DocumentLink,
					})
				if res.Error != nil {
					messages = append(messages, fmt.Sprintf("Proposta %d: NF-e autorizada mas parcelas não atualizadas", p.ID))
					continue
				}
				authorized++
				logg.WithField("proposal_id", p.ID).
					WithField("document_number", ds.DocumentNumber).
					Info("NF-e autorizada, parcelas agendadas")

			case bling.IssuanceRejected:
				rejected++
				messages = append(messages, fmt.Sprintf("Proposta %d: NF-e rejeitada: %s", p.ID, ds.RejectionReason))

			default:
				pending++
			}
		}

		return c.JSON(fiber.Map{
			"checked":    len(proposals),
			"authorized": authorized,
			"pending":    pending,
			"rejected":   rejected,
			"messages":   messages,
		})
	}
}

// POST /api/commissions/installments/sweep-overdue
// Parcelas pendentes com vencimento passado viram vencidas. Atualização
// condicional em lote.
func SweepOverdueHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		res := database.DB.Model(&models.CommissionInstallment{}).
			Where("status = ? AND due_date < ?", models.InstallmentPending, time.Now()).
			Update("status", models.InstallmentOverdue)
		if res.Error != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Não foi possível atualizar as parcelas vencidas")
		}

		return c.JSON(fiber.Map{"marked_overdue": res.RowsAffected})
	}
}

// POST /api/commissions/installments/release-scheduled
// Disparado pelo operador depois de emitir os boletos: todas as parcelas
// agendadas entram em aberto (pendentes), sem condição de data.
func ReleaseScheduledHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		res := database.DB.Model(&models.CommissionInstallment{}).
			Where("status = ?", models.InstallmentScheduled).
			Update("status", models.InstallmentPending)
		if res.Error != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Não foi possível liberar as parcelas agendadas")
		}

		return c.JSON(fiber.Map{"released": res.RowsAffected})
	}
}
