package main

import (
	"log"
	"strings"

	"ebd-backend/internal/approval"
	"ebd-backend/internal/audit"
	"ebd-backend/internal/auth"
	"ebd-backend/internal/bling"
	"ebd-backend/internal/commission"
	"ebd-backend/internal/config"
	"ebd-backend/internal/dashboard"
	"ebd-backend/internal/database"
	"ebd-backend/internal/directory"
	"ebd-backend/internal/models"
	"ebd-backend/internal/proposal"
	"ebd-backend/internal/reconciliation"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
)

func main() {
	// .env é opcional; em produção as variáveis vêm do ambiente
	_ = godotenv.Load()

	cfg := config.Load()
	database.Init(cfg)

	gateway := bling.NewClient(cfg.BlingBaseURL, bling.Credentials{
		ClientID:     cfg.BlingClientID,
		ClientSecret: cfg.BlingClientSecret,
	}, cfg.BlingTimeout)

	approvalSvc := approval.NewService(
		approval.NewGormStore(database.DB),
		gateway,
		config.GetLogger(),
	)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if e, ok := err.(*fiber.Error); ok {
				return c.Status(e.Code).JSON(fiber.Map{
					"error": e.Message,
				})
			}
			log.Println("Unexpected error:", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Erro inesperado do servidor",
			})
		},
	})

	corsOrigins := strings.Split(cfg.CORSOrigins, ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(corsOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	api := app.Group("/api")

	// Público
	api.Post("/auth/register-admin", auth.RegisterAdminHandler(cfg))
	api.Post("/auth/login", auth.LoginHandler(cfg))

	// Autenticado
	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(cfg))

	protected.Get("/auth/me", auth.MeHandler())

	// Administração
	adminRoutes := protected.Group("/admin")
	adminRoutes.Use(auth.RequireRole(models.RoleAdmin))

	adminRoutes.Post("/users", auth.CreateUserHandler())
	adminRoutes.Post("/vendors", directory.CreateVendorHandler())
	adminRoutes.Put("/vendors/:id", directory.UpdateVendorHandler())
	adminRoutes.Post("/vendors/:id/active", directory.SetVendorActiveHandler())
	adminRoutes.Post("/clients/:id/allow-deferred", directory.AllowDeferredHandler())

	// Cadastros (admin e financeiro podem editar, vendedor só lê)
	office := protected.Group("")
	office.Use(auth.RequireRole(models.RoleAdmin, models.RoleFinanceiro))

	office.Post("/clients", directory.CreateClientHandler())
	office.Put("/clients/:id", directory.UpdateClientHandler())

	protected.Get("/clients", directory.ListClientsHandler())
	protected.Get("/clients/:id", directory.GetClientHandler())
	protected.Get("/vendors", directory.ListVendorsHandler())
	protected.Get("/vendors/:id", directory.GetVendorHandler())

	// Desconto comercial: vendedor atribui na própria carteira
	protected.Post("/clients/:id/discount", auth.RequireRole(models.RoleAdmin, models.RoleFinanceiro, models.RoleVendedor), directory.AssignDiscountHandler())

	// Propostas
	protected.Post("/proposals", proposal.CreateProposalHandler())
	protected.Get("/proposals", proposal.ListProposalsHandler())
	protected.Get("/proposals/:id", proposal.GetProposalHandler())

	// Aprovação (financeiro)
	finance := protected.Group("")
	finance.Use(auth.RequireRole(models.RoleAdmin, models.RoleFinanceiro))

	finance.Post("/proposals/:id/approve", approval.ApproveHandler(approvalSvc))
	finance.Post("/proposals/:id/reject", approval.RejectHandler(approvalSvc))

	// Comissões
	protected.Get("/commissions/installments", commission.ListInstallmentsHandler())
	finance.Post("/commissions/installments/:id/mark-paid", commission.MarkPaidHandler())
	finance.Post("/commissions/installments/sync-documents", commission.SyncDocumentsHandler(gateway))
	finance.Post("/commissions/installments/sweep-overdue", commission.SweepOverdueHandler())
	finance.Post("/commissions/installments/release-scheduled", commission.ReleaseScheduledHandler())

	// Conciliação bancária (financeiro)
	finance.Post("/reconciliation/match", reconciliation.MatchHandler())
	finance.Post("/reconciliation/import-xlsx", reconciliation.ImportXLSXHandler())
	finance.Post("/reconciliation/confirm", reconciliation.ConfirmHandler())

	// Dashboard
	protected.Get("/dashboard/commission-chart", dashboard.CommissionChartHandler())

	// Auditoria
	office.Get("/audit-logs", audit.ListAuditLogsHandler())

	log.Println("Servidor rodando na porta:", cfg.HTTPPort)
	if err := app.Listen(":" + cfg.HTTPPort); err != nil {
		log.Fatal(err)
	}
}
