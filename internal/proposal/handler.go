package proposal

import (
	"fmt"
	"time"

	"ebd-backend/internal/audit"
	"ebd-backend/internal/auth"
	"ebd-backend/internal/database"
	"ebd-backend/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

// achata validator.ValidationErrors num mapa campo -> regra violada
func validationErrorMap(err error) map[string]string {
	out := make(map[string]string)
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, ve := range verrs {
			out[ve.Field()] = ve.Tag()
		}
	}
	return out
}

type ProposalItemRequest struct {
	SKU       string          `json:"sku" validate:"required,max=40"`
	Name      string          `json:"name" validate:"required,max=200"`
	Quantity  int             `json:"quantity" validate:"required,gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"required"`
}

type CreateProposalRequest struct {
	ClientID          uint                  `json:"client_id" validate:"required"`
	VendorID          *uint                 `json:"vendor_id"` // admin/financeiro em nome de um vendedor
	Items             []ProposalItemRequest `json:"items" validate:"required,min=1,dive"`
	ShippingValue     decimal.Decimal       `json:"shipping_value"`
	InvoicingTerm     string                `json:"invoicing_term" validate:"required,max=40"`
	NatureOfOperation string                `json:"nature_of_operation" validate:"max=100"`
}

type ProposalResponse struct {
	ID                uint                  `json:"id"`
	ClientID          uint                  `json:"client_id"`
	ClientName        string                `json:"client_name"`
	VendorID          uint                  `json:"vendor_id"`
	VendorName        string                `json:"vendor_name"`
	Items             []models.ProposalItem `json:"items"`
	TotalValue        decimal.Decimal       `json:"total_value"`
	ShippingValue     decimal.Decimal       `json:"shipping_value"`
	DiscountPct       decimal.Decimal       `json:"discount_pct"`
	InvoicingTerm     string                `json:"invoicing_term"`
	NatureOfOperation string                `json:"nature_of_operation"`
	Status            models.ProposalStatus `json:"status"`
	RejectReason      string                `json:"reject_reason,omitempty"`
	BlingOrderNumber  *string               `json:"bling_order_number"`
	CreatedAt         time.Time             `json:"created_at"`
	ConfirmedAt       *time.Time            `json:"confirmed_at"`
}

func toProposalResponse(p models.Proposal) ProposalResponse {
	return ProposalResponse{
		ID:                p.ID,
		ClientID:          p.ClientID,
		ClientName:        p.Client.Name,
		VendorID:          p.VendorID,
		VendorName:        p.Vendor.Name,
		Items:             p.Items,
		TotalValue:        p.TotalValue,
		ShippingValue:     p.ShippingValue,
		DiscountPct:       p.DiscountPct,
		InvoicingTerm:     p.InvoicingTerm,
		NatureOfOperation: p.NatureOfOperation,
		Status:            p.Status,
		RejectReason:      p.RejectReason,
		BlingOrderNumber:  p.BlingOrderNumber,
		CreatedAt:         p.CreatedAt,
		ConfirmedAt:       p.ConfirmedAt,
	}
}

// POST /api/proposals
// Vendedor cria uma proposta para um cliente da carteira. O total é
// calculado aqui (itens + frete - desconto do cliente) e congelado; a
// aprovação nunca recalcula.
func CreateProposalHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req CreateProposalRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corpo da requisição inválido")
		}
		if err := validate.Struct(req); err != nil {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"message": "Dados da proposta inválidos",
				"fields":  validationErrorMap(err),
			})
		}

		var client models.Client
		if err := database.DB.First(&client, "id = ?", req.ClientID).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Cliente não encontrado")
		}

		// vendedor sempre cria em nome próprio; admin/financeiro indicam o vendedor
		var vendorID uint
		if role, _ := c.Locals(auth.CtxUserRoleKey).(models.UserRole); role == models.RoleVendedor {
			vid, ok := c.Locals(auth.CtxVendorIDKey).(*uint)
			if !ok || vid == nil {
				return fiber.NewError(fiber.StatusForbidden, "Vendedor sem cadastro vinculado")
			}
			vendorID = *vid
		} else {
			if req.VendorID == nil {
				return fiber.NewError(fiber.StatusBadRequest, "vendor_id é obrigatório para propostas criadas pelo escritório")
			}
			vendorID = *req.VendorID
		}

		var vendor models.Vendor
		if err := database.DB.First(&vendor, "id = ?", vendorID).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Vendedor não encontrado")
		}
		if !vendor.IsActive {
			return fiber.NewError(fiber.StatusUnprocessableEntity, "Vendedor está inativo")
		}

		items := make([]models.ProposalItem, 0, len(req.Items))
		for _, it := range req.Items {
			if it.UnitPrice.IsNegative() {
				return fiber.NewError(fiber.StatusUnprocessableEntity, fmt.Sprintf("Preço negativo no item %s", it.SKU))
			}
			items = append(items, models.ProposalItem{
				SKU:       it.SKU,
				Name:      it.Name,
				Quantity:  it.Quantity,
				UnitPrice: it.UnitPrice,
			})
		}

		p := models.Proposal{
			ClientID:          client.ID,
			VendorID:          vendor.ID,
			Items:             items,
			TotalValue:        models.ComputeTotal(items, req.ShippingValue, client.DiscountPct),
			ShippingValue:     req.ShippingValue.Round(2),
			DiscountPct:       client.DiscountPct,
			InvoicingTerm:     req.InvoicingTerm,
			NatureOfOperation: req.NatureOfOperation,
			Status:            models.ProposalAwaitingApproval,
		}

		if err := database.DB.Create(&p).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Não foi possível criar a proposta")
		}

		if userID, userName, err := audit.RequestUser(c); err == nil {
			_ = audit.WriteLog(audit.LogOptions{
				UserID:      userID,
				UserName:    userName,
				EntityType:  "proposal",
				EntityID:    p.ID,
				Action:      models.AuditActionCreate,
				Description: fmt.Sprintf("Proposta criada para o cliente %s, total %s", client.Name, p.TotalValue.StringFixed(2)),
				After:       p,
			})
		}

		p.Client = client
		p.Vendor = vendor
		return c.Status(fiber.StatusCreated).JSON(toProposalResponse(p))
	}
}

// GET /api/proposals?status=aguardando&client_id=9
// O filtro de status normaliza os sinônimos legados antes de consultar.
func ListProposalsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		query := database.DB.Model(&models.Proposal{}).
			Preload("Client").
			Preload("Vendor").
			Preload("Items").
			Order("created_at DESC")

		if raw := c.Query("status"); raw != "" {
			status, err := models.ParseProposalStatus(raw)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("Status desconhecido: %s", raw))
			}
			query = query.Where("status = ?", status)
		}
		if cid := c.QueryInt("client_id"); cid > 0 {
			query = query.Where("client_id = ?", cid)
		}
		if vid := c.QueryInt("vendor_id"); vid > 0 {
			query = query.Where("vendor_id = ?", vid)
		}

		// vendedor só enxerga as próprias propostas
		if role, ok := c.Locals(auth.CtxUserRoleKey).(models.UserRole); ok && role == models.RoleVendedor {
			vendorID, ok := c.Locals(auth.CtxVendorIDKey).(*uint)
			if !ok || vendorID == nil {
				return fiber.NewError(fiber.StatusForbidden, "Vendedor sem cadastro vinculado")
			}
			query = query.Where("vendor_id = ?", *vendorID)
		}

		var proposals []models.Proposal
		if err := query.Find(&proposals).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Não foi possível listar as propostas")
		}

		resp := make([]ProposalResponse, 0, len(proposals))
		for _, p := range proposals {
			resp = append(resp, toProposalResponse(p))
		}
		return c.JSON(resp)
	}
}

// GET /api/proposals/:id
func GetProposalHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "id inválido")
		}

		var p models.Proposal
		err = database.DB.
			Preload("Client").
			Preload("Vendor").
			Preload("Items").
			First(&p, "id = ?", id).Error
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Proposta não encontrada")
		}

		if role, ok := c.Locals(auth.CtxUserRoleKey).(models.UserRole); ok && role == models.RoleVendedor {
			vendorID, ok := c.Locals(auth.CtxVendorIDKey).(*uint)
			if !ok || vendorID == nil || p.VendorID != *vendorID {
				return fiber.NewError(fiber.StatusForbidden, "Proposta de outro vendedor")
			}
		}

		return c.JSON(toProposalResponse(p))
	}
}
