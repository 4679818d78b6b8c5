package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type ProposalStatus string

const (
	ProposalAwaitingApproval ProposalStatus = "awaiting_approval" // aguardando aprovação do financeiro
	ProposalApproving        ProposalStatus = "approving"         // aprovação em andamento (saga)
	ProposalApproved         ProposalStatus = "approved"
	ProposalRejected         ProposalStatus = "rejected"
)

// Etapas já concluídas da aprovação. Permite retomar uma aprovação que
// falhou depois do pedido externo já ter sido criado, sem duplicar o pedido.
type ApprovalStep string

const (
	StepNone                ApprovalStep = ""
	StepOrderCreated        ApprovalStep = "order_created"
	StepDocumentRequested   ApprovalStep = "document_requested"
	StepInstallmentsCreated ApprovalStep = "installments_created"
)

// ordem linear das etapas do cursor
var approvalStepRank = map[ApprovalStep]int{
	StepNone:                0,
	StepOrderCreated:        1,
	StepDocumentRequested:   2,
	StepInstallmentsCreated: 3,
}

// Reached: a etapa dada já foi concluída neste cursor?
func (s ApprovalStep) Reached(step ApprovalStep) bool {
	return approvalStepRank[s] >= approvalStepRank[step]
}

// Proposal: proposta B2B enviada a um cliente, aguardando ou já passada
// pela aprovação financeira. Nunca é deletada, apenas transiciona de status.
type Proposal struct {
	ID       uint   `gorm:"primaryKey"`
	ClientID uint   `gorm:"index;not null"`
	Client   Client
	VendorID uint   `gorm:"index;not null"`
	Vendor   Vendor

	Items []ProposalItem `gorm:"foreignKey:ProposalID;constraint:OnDelete:CASCADE"`

	// Total = soma dos itens + frete - desconto. Calculado na criação e
	// nunca recalculado depois da aprovação.
	TotalValue    decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	ShippingValue decimal.Decimal `gorm:"type:decimal(12,2);default:0"`
	DiscountPct   decimal.Decimal `gorm:"type:decimal(5,2);default:0"`

	// Condição de faturamento escolhida (ex: "30/60/90")
	InvoicingTerm string `gorm:"size:40;not null"`

	// Natureza de operação exigida pelo Bling para emitir a NF-e
	NatureOfOperation string `gorm:"size:100"`

	Status       ProposalStatus `gorm:"size:30;not null;index"`
	ApprovalStep ApprovalStep   `gorm:"size:30;default:''"`
	RejectReason string         `gorm:"size:500"`

	// Identificadores do pedido no Bling. Gravados no máximo uma vez e
	// nunca limpos depois de gravados (marcador de idempotência).
	BlingOrderID     *string `gorm:"size:40"`
	BlingOrderNumber *string `gorm:"size:40"`

	// Id da NF-e solicitada no Bling, usado na sincronização de documentos
	BlingDocumentID *string `gorm:"size:40"`

	CreatedAt   time.Time
	ConfirmedAt *time.Time
	UpdatedAt   time.Time
}

type ProposalItem struct {
	ID         uint            `gorm:"primaryKey"`
	ProposalID uint            `gorm:"index;not null"`
	SKU        string          `gorm:"size:40;not null"`
	Name       string          `gorm:"size:200;not null"`
	Quantity   int             `gorm:"not null"`
	UnitPrice  decimal.Decimal `gorm:"type:decimal(12,2);not null"`
}

// Subtotal do item (quantidade x preço unitário)
func (i ProposalItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ComputeTotal: soma dos itens + frete - desconto percentual, arredondado
// a 2 casas. Usado apenas na criação da proposta.
func ComputeTotal(items []ProposalItem, shipping, discountPct decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.Subtotal())
	}
	sum = sum.Add(shipping)
	discount := sum.Mul(discountPct).Div(decimal.NewFromInt(100))
	return sum.Sub(discount).Round(2)
}

// ParseProposalStatus: normaliza status legados em texto livre (português,
// inglês, maiúsculas misturadas) para o enum canônico. Valor não
// reconhecido é rejeitado, nunca propagado como string.
func ParseProposalStatus(raw string) (ProposalStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "awaiting_approval", "aguardando", "aguardando aprovacao", "aguardando aprovação", "pendente aprovacao", "pending":
		return ProposalAwaitingApproval, nil
	case "approving", "aprovando", "em aprovacao", "em aprovação":
		return ProposalApproving, nil
	case "approved", "aprovado", "aprovada", "faturado", "faturada":
		return ProposalApproved, nil
	case "rejected", "rejeitado", "rejeitada", "recusado", "recusada":
		return ProposalRejected, nil
	}
	return "", fmt.Errorf("status de proposta desconhecido: %q", raw)
}
