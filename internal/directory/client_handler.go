package directory

import (
	"fmt"
	"time"

	"ebd-backend/internal/audit"
	"ebd-backend/internal/database"
	"ebd-backend/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

func validationErrorMap(err error) map[string]string {
	out := make(map[string]string)
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, ve := range verrs {
			out[ve.Field()] = ve.Tag()
		}
	}
	return out
}

type ClientRequest struct {
	Name    string `json:"name" validate:"required,max=150"`
	CNPJ    string `json:"cnpj" validate:"required,max=20"`
	Email   string `json:"email" validate:"omitempty,email,max=100"`
	Phone   string `json:"phone" validate:"max=20"`
	Address string `json:"address" validate:"max=255"`
	City    string `json:"city" validate:"max=100"`
	State   string `json:"state" validate:"omitempty,len=2"`
	ZipCode string `json:"zip_code" validate:"max=10"`
}

// POST /api/clients
func CreateClientHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req ClientRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corpo da requisição inválido")
		}
		if err := validate.Struct(req); err != nil {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"message": "Dados do cliente inválidos",
				"fields":  validationErrorMap(err),
			})
		}

		client := models.Client{
			Name:    req.Name,
			CNPJ:    req.CNPJ,
			Email:   req.Email,
			Phone:   req.Phone,
			Address: req.Address,
			City:    req.City,
			State:   req.State,
			ZipCode: req.ZipCode,
		}

		if err := database.DB.Create(&client).Error; err != nil {
			return fiber.NewError(fiber.StatusConflict, "Já existe um cliente com este CNPJ")
		}

		return c.Status(fiber.StatusCreated).JSON(client)
	}
}

// GET /api/clients?q=batista
func ListClientsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		query := database.DB.Model(&models.Client{}).Order("name ASC")

		if q := c.Query("q"); q != "" {
			query = query.Where("name ILIKE ?", "%"+q+"%")
		}

		var clients []models.Client
		if err := query.Find(&clients).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Não foi possível listar os clientes")
		}
		return c.JSON(clients)
	}
}

// GET /api/clients/:id
func GetClientHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "id inválido")
		}

		var client models.Client
		if err := database.DB.First(&client, "id = ?", id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Cliente não encontrado")
		}
		return c.JSON(client)
	}
}

// PUT /api/clients/:id
func UpdateClientHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "id inválido")
		}

		var client models.Client
		if err := database.DB.First(&client, "id = ?", id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Cliente não encontrado")
		}

		var req ClientRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corpo da requisição inválido")
		}
		if err := validate.Struct(req); err != nil {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"message": "Dados do cliente inválidos",
				"fields":  validationErrorMap(err),
			})
		}

		before := client

		client.Name = req.Name
		client.CNPJ = req.CNPJ
		client.Email = req.Email
		client.Phone = req.Phone
		client.Address = req.Address
		client.City = req.City
		client.State = req.State
		client.ZipCode = req.ZipCode

		if err := database.DB.Save(&client).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Não foi possível atualizar o cliente")
		}

		if userID, userName, err := audit.RequestUser(c); err == nil {
			_ = audit.WriteLog(audit.LogOptions{
				UserID:      userID,
				UserName:    userName,
				EntityType:  "client",
				EntityID:    client.ID,
				Action:      models.AuditActionUpdate,
				Description: fmt.Sprintf("Cadastro do cliente %s atualizado", client.Name),
				Before:      before,
				After:       client,
			})
		}

		return c.JSON(client)
	}
}

type AssignDiscountRequest struct {
	DiscountPct decimal.Decimal `json:"discount_pct"`
}

// POST /api/clients/:id/discount
// Atribui o desconto comercial do cliente, registrando quem atribuiu e
// quando. O desconto vale para propostas futuras; as existentes mantêm o
// percentual congelado na criação.
func AssignDiscountHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "id inválido")
		}

		var req AssignDiscountRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corpo da requisição inválido")
		}
		if req.DiscountPct.IsNegative() || req.DiscountPct.GreaterThan(decimal.NewFromInt(100)) {
			return fiber.NewError(fiber.StatusUnprocessableEntity, "Desconto deve estar entre 0 e 100")
		}

		var client models.Client
		if err := database.DB.First(&client, "id = ?", id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Cliente não encontrado")
		}

		userID, userName, err := audit.RequestUser(c)
		if err != nil {
			return err
		}

		before := client
		now := time.Now()
		client.DiscountPct = req.DiscountPct
		client.DiscountAssignedBy = &userID
		client.DiscountAssignedAt = &now

		if err := database.DB.Save(&client).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Não foi possível gravar o desconto")
		}

		_ = audit.WriteLog(audit.LogOptions{
			UserID:      userID,
			UserName:    userName,
			EntityType:  "client",
			EntityID:    client.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("Desconto do cliente %s alterado para %s%%", client.Name, req.DiscountPct.StringFixed(2)),
			Before:      before,
			After:       client,
		})

		return c.JSON(client)
	}
}

type AllowDeferredRequest struct {
	AllowsDeferred bool `json:"allows_deferred"`
}

// POST /api/clients/:id/allow-deferred
// Liga/desliga a compra faturada (boleto a prazo). Restrito ao admin nas
// rotas — um cliente sem essa permissão só aprova propostas à vista.
func AllowDeferredHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "id inválido")
		}

		var req AllowDeferredRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Corpo da requisição inválido")
		}

		var client models.Client
		if err := database.DB.First(&client, "id = ?", id).Error; err != nil {
			return fiber.NewError(fiber.StatusNotFound, "Cliente não encontrado")
		}

		before := client
		client.AllowsDeferred = req.AllowsDeferred

		if err := database.DB.Save(&client).Error; err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Não foi possível atualizar o cliente")
		}

		if userID, userName, err := audit.RequestUser(c); err == nil {
			verbo := "liberada"
			if !req.AllowsDeferred {
				verbo = "bloqueada"
			}
			_ = audit.WriteLog(audit.LogOptions{
				UserID:      userID,
				UserName:    userName,
				EntityType:  "client",
				EntityID:    client.ID,
				Action:      models.AuditActionUpdate,
				Description: fmt.Sprintf("Compra faturada %s para o cliente %s", verbo, client.Name),
				Before:      before,
				After:       client,
			})
		}

		return c.JSON(client)
	}
}
