package directory

import (
	"fmt"

	"ebd-backend/internal/audit"
	"ebd-backend/internal/database"
	"ebd-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type VendorRequest struct {
	Name           string          `json:"name" validate:"required,max=150"`
	TaxID          string          `json:"tax_id" validate:"required,max=20"`
	Email          string          `json:"email" validate:"omitempty,email,max=100"`
	Phone          string          `json:"phone" validate:"max=20"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
}

// POST /api/vendors
func CreateVendorHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req VendorRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corpo da requisição inválido")
		}
		if err := validate.Struct(req); err != nil {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"message": "Dados do vendedor inválidos",
				"fields":  validationErrorMap(err),
			})
		}
		if req.CommissionRate.IsNegative() || req.CommissionRate.GreaterThan(decimal.NewFromInt(100)) {
			return fiber.NewError(fiber.StatusUnprocessableEntity, "Taxa de comissão deve estar entre 0 e 100")
		}

		vendor := models.Vendor{
			Name:           req.Name,
			TaxID:          req.TaxID,
			Email:          req.Email,
			Phone:          req.Phone,
			CommissionRate: req.CommissionRate,
			IsActive:       true,
		}

		if err := database.DB.Create(&vendor).Error; err != nil {
			return fiber.NewError(fiber.StatusConflict, "Já existe um vendedor com este CPF/CNPJ")
		}

		return c.Status(fiber.StatusCreated).JSON(vendor)
	}
}

// GET /api/vendors?active=true
func ListVendorsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		query := database.DB.Model(&models.Vendor{}).Order("name ASC")

		if c.Query("active") == "true" {
			query = query.Where("is_active = ?", true)
		}

		var vendors []models.Vendor
		if err := query.Find(&vendors).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Não foi possível listar os vendedores")
		}
		return c.JSON(vendors)
	}
}

// GET /api/vendors/:id
func GetVendorHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "id inválido")
		}

		var vendor models.Vendor
		if err := database.DB.First(&vendor, "id = ?", id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Vendedor não encontrado")
		}
		return c.JSON(vendor)
	}
}

// PUT /api/vendors/:id
// A taxa de comissão alterada vale para aprovações futuras; as parcelas
// já derivadas mantêm o valor congelado na aprovação.
func UpdateVendorHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "id inválido")
		}

		var vendor models.Vendor
		if err := database.DB.First(&vendor, "id = ?", id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Vendedor não encontrado")
		}

		var req VendorRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corpo da requisição inválido")
		}
		if err := validate.Struct(req); err != nil {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"message": "Dados do vendedor inválidos",
				"fields":  validationErrorMap(err),
			})
		}
		if req.CommissionRate.IsNegative() || req.CommissionRate.GreaterThan(decimal.NewFromInt(100)) {
			return fiber.NewError(fiber.StatusUnprocessableEntity, "Taxa de comissão deve estar entre 0 e 100")
		}

		before := vendor

		vendor.Name = req.Name
		vendor.TaxID = req.TaxID
		vendor.Email = req.Email
		vendor.Phone = req.Phone
		vendor.CommissionRate = req.CommissionRate

		if err := database.DB.Save(&vendor).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Não foi possível atualizar o vendedor")
		}

		if userID, userName, err := audit.RequestUser(c); err == nil {
			_ = audit.WriteLog(audit.LogOptions{
				UserID:      userID,
				UserName:    userName,
				EntityType:  "vendor",
				EntityID:    vendor.ID,
				Action:      models.AuditActionUpdate,
				Description: fmt.Sprintf("Cadastro do vendedor %s atualizado", vendor.Name),
				Before:      before,
				After:       vendor,
			})
		}

		return c.JSON(vendor)
	}
}

type VendorActiveRequest struct {
	IsActive bool `json:"is_active"`
}

// POST /api/vendors/:id/active
// Vendedor inativo não recebe novas propostas; o histórico permanece.
func SetVendorActiveHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "id inválido")
		}

		var req VendorActiveRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corpo da requisição inválido")
		}

		var vendor models.Vendor
		if err := database.DB.First(&vendor, "id = ?", id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Vendedor não encontrado")
		}

		before := vendor
		vendor.IsActive = req.IsActive

		if err := database.DB.Save(&vendor).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Não foi possível atualizar o vendedor")
		}

		if userID, userName, err := audit.RequestUser(c); err == nil {
			verbo := "reativado"
			if !req.IsActive {
				verbo = "inativado"
			}
			_ = audit.WriteLog(audit.LogOptions{
				UserID:      userID,
				UserName:    userName,
				EntityType:  "vendor",
				EntityID:    vendor.ID,
				Action:      models.AuditActionUpdate,
				Description: fmt.Sprintf("Vendedor %s %s", vendor.Name, verbo),
				Before:      before,
				After:       vendor,
			})
		}

		return c.JSON(vendor)
	}
}
