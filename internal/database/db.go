package database

import (
	"log"

	"ebd-backend/internal/config"
	"ebd-backend/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

func Init(cfg *config.Config) {
	var err error

	DB, err = gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("Não foi possível conectar ao banco de dados: %v", err)
	}

	err = DB.AutoMigrate(
		&models.User{},
		&models.Client{},
		&models.Vendor{},
		&models.Proposal{},
		&models.ProposalItem{},
		&models.CommissionInstallment{},
		&models.AuditLog{},
	)
	if err != nil {
		log.Fatalf("Erro no AutoMigrate: %v", err)
	}

	// Migração manual: a base antiga guardava status em texto livre
	// ("pendente", "Paga", "Faturado", ...). Normaliza para o enum canônico
	// antes do sistema subir. Valores não reconhecidos são colocados em
	// quarentena via log, nunca convertidos às cegas.
	normalizeLegacyStatuses()

	log.Println("Conexão com o banco estabelecida. Migration concluída.")
}

func normalizeLegacyStatuses() {
	type row struct {
		ID     uint
		Status string
	}

	var installments []row
	DB.Model(&models.CommissionInstallment{}).
		Select("id", "status").
		Find(&installments)

	fixed, quarantined := 0, 0
	for _, r := range installments {
		canonical, err := models.ParseInstallmentStatus(r.Status)
		if err != nil {
			log.Printf("[WARN] Parcela %d com status não reconhecido %q, mantida para revisão manual", r.ID, r.Status)
			quarantined++
			continue
		}
		if string(canonical) != r.Status {
			DB.Model(&models.CommissionInstallment{}).
				Where("id = ?", r.ID).
				Update("status", canonical)
			fixed++
		}
	}

	var proposals []row
	DB.Model(&models.Proposal{}).
		Select("id", "status").
		Find(&proposals)

	for _, r := range proposals {
		canonical, err := models.ParseProposalStatus(r.Status)
		if err != nil {
			log.Printf("[WARN] Proposta %d com status não reconhecido %q, mantida para revisão manual", r.ID, r.Status)
			quarantined++
			continue
		}
		if string(canonical) != r.Status {
			DB.Model(&models.Proposal{}).
				Where("id = ?", r.ID).
				Update("status", canonical)
			fixed++
		}
	}

	if fixed > 0 || quarantined > 0 {
		log.Printf("Normalização de status legados: %d corrigidos, %d em quarentena", fixed, quarantined)
	}
}
