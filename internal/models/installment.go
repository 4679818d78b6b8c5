package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type InstallmentStatus string

const (
	InstallmentAwaitingInvoice InstallmentStatus = "awaiting_invoice" // NF-e ainda não autorizada
	InstallmentScheduled       InstallmentStatus = "scheduled"        // NF-e autorizada, boleto agendado
	InstallmentPending         InstallmentStatus = "pending"          // dentro do prazo, aguardando pagamento
	InstallmentOverdue         InstallmentStatus = "overdue"
	InstallmentReleased        InstallmentStatus = "released"         // comissão liberada para o vendedor
	InstallmentPaid            InstallmentStatus = "paid"
)

// CommissionInstallment: uma parcela derivada de uma proposta aprovada.
// Criadas em lote na aprovação; a soma dos valores de face das parcelas
// de uma proposta é igual ao total da proposta (resto de arredondamento
// vai para a última parcela).
type CommissionInstallment struct {
	ID         uint `gorm:"primaryKey"`
	ProposalID uint `gorm:"index;not null"`
	Proposal   Proposal
	ClientID   uint `gorm:"index;not null"`
	Client     Client
	VendorID   uint `gorm:"index;not null"`
	Vendor     Vendor

	Number int `gorm:"not null"` // 1..Count
	Count  int `gorm:"not null"`

	FaceValue       decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	CommissionValue decimal.Decimal `gorm:"type:decimal(12,2);not null"`

	DueDate     time.Time  `gorm:"index;not null"`
	ReleaseDate *time.Time
	PaymentDate *time.Time

	Status InstallmentStatus `gorm:"size:30;not null;index"`

	// Vínculo com o documento fiscal no Bling (preenchido pela sincronização)
	BlingOrderID   *string `gorm:"size:40"`
	DocumentNumber *string `gorm:"size:40"`
	DocumentLink   *string `gorm:"size:500"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Conjunto de status considerados "em aberto" para conciliação bancária.
// awaiting_invoice fica de fora: sem NF-e autorizada não existe boleto.
var OutstandingStatuses = []InstallmentStatus{
	InstallmentScheduled,
	InstallmentPending,
	InstallmentOverdue,
	InstallmentReleased,
}

// ParseInstallmentStatus: normaliza status legados em texto livre para o
// enum canônico. Única definição dos sinônimos reconhecidos — usada pelo
// core e por qualquer filtro de relatório/UI.
func ParseInstallmentStatus(raw string) (InstallmentStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "awaiting_invoice", "aguardando nota", "aguardando nf", "aguardando nf-e", "sem nota":
		return InstallmentAwaitingInvoice, nil
	case "scheduled", "agendada", "agendado", "faturado", "faturada":
		return InstallmentScheduled, nil
	case "pending", "pendente", "em aberto", "aberta":
		return InstallmentPending, nil
	case "overdue", "vencida", "vencido", "atrasada", "atrasado":
		return InstallmentOverdue, nil
	case "released", "liberada", "liberado":
		return InstallmentReleased, nil
	case "paid", "paga", "pago":
		return InstallmentPaid, nil
	}
	return "", fmt.Errorf("status de parcela desconhecido: %q", raw)
}
