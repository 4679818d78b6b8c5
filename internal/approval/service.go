package approval

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"ebd-backend/internal/bling"
	"ebd-backend/internal/commission"
	"ebd-backend/internal/models"

	"github.com/sirupsen/logrus"
)

var (
	// ErrInvalidState: a proposta não está num estado que permite a
	// transição pedida (ex: aprovar proposta já aprovada). Não repetir.
	ErrInvalidState = errors.New("proposta não está aguardando aprovação")

	// ErrClientNotEligible: cliente não habilitado para compra faturada.
	ErrClientNotEligible = errors.New("cliente não habilitado para faturamento a prazo")
)

// PartialFailureError: o pedido externo foi criado mas uma etapa posterior
// falhou. Carrega o id do pedido para o operador conciliar manualmente —
// o pedido no ERP é irreversível, não há rollback compensatório.
// Nunca pode ser engolido silenciosamente.
type PartialFailureError struct {
	ProposalID uint
	OrderID    string
	Step       string
	Err        error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("aprovação da proposta %d incompleta na etapa %q (pedido Bling %s já criado): %v",
		e.ProposalID, e.Step, e.OrderID, e.Err)
}

func (e *PartialFailureError) Unwrap() error { return e.Err }

// Result: saída da aprovação bem-sucedida
type Result struct {
	OrderID             string `json:"order_id"`
	OrderNumber         string `json:"order_number"`
	InstallmentsCreated int    `json:"installments_created"`
}

// Gateway: subconjunto do cliente Bling usado pela aprovação
type Gateway interface {
	CreateOrder(ctx context.Context, ord bling.Order) (bling.CreatedOrder, error)
	RequestDocumentIssuance(ctx context.Context, orderID string) (string, error)
}

// Store: persistência da saga de aprovação. Toda transição de status é
// um update condicional — zero linhas afetadas é ErrInvalidState, nunca
// sucesso.
type Store interface {
	// ClaimProposal: CAS awaiting_approval -> approving. resume=true quando
	// a proposta já estava em approving com pedido externo gravado (retomada
	// de uma aprovação parcialmente concluída).
	ClaimProposal(ctx context.Context, id uint) (resume bool, err error)
	// ReleaseProposal: devolve a proposta para awaiting_approval (nenhum
	// efeito externo aconteceu ainda).
	ReleaseProposal(ctx context.Context, id uint) error
	// LoadProposal: proposta com Client, Vendor e Items carregados.
	LoadProposal(ctx context.Context, id uint) (*models.Proposal, error)
	// RecordOrder: grava id/número do pedido externo (no máximo uma vez) e
	// avança o cursor de etapas.
	RecordOrder(ctx context.Context, id uint, orderID, orderNumber string) error
	// RecordDocument: grava o id da NF-e solicitada.
	RecordDocument(ctx context.Context, id uint, documentID string) error
	// SaveInstallments: cria as parcelas em uma transação. Idempotente por
	// proposta: se já existem parcelas, não cria de novo.
	SaveInstallments(ctx context.Context, proposalID uint, installments []models.CommissionInstallment) (created int, err error)
	// FinishApproval: CAS approving -> approved + timestamp de confirmação.
	FinishApproval(ctx context.Context, id uint, at time.Time) error
	// RejectProposal: CAS awaiting_approval -> rejected com motivo.
	RejectProposal(ctx context.Context, id uint, reason string) error
}

// Service: orquestra a transição da proposta para aprovada mantendo o ERP
// externo e o livro de comissões consistentes com o estado final.
type Service struct {
	store   Store
	gateway Gateway
	logg    *logrus.Logger
}

func NewService(store Store, gateway Gateway, logg *logrus.Logger) *Service {
	return &Service{store: store, gateway: gateway, logg: logg}
}

// Approve: transição awaiting_approval -> approved.
//
// Ordem das etapas (cada uma verificada antes da próxima):
//  1. claim condicional do status — primeiro efeito durável, fecha a
//     corrida de dois approve simultâneos na mesma proposta;
//  2. validação de elegibilidade do cliente e da condição de faturamento;
//  3. criação do pedido + solicitação de NF-e no Bling;
//  4. derivação e gravação das parcelas de comissão;
//  5. status final approved com id/número do pedido.
//
// Falha na etapa 3 antes do pedido existir devolve a proposta para
// awaiting_approval. Falha depois do pedido existir vira PartialFailureError
// com o pedido nomeado; re-invocar Approve retoma do cursor sem duplicar o
// pedido externo.
func (s *Service) Approve(ctx context.Context, proposalID uint) (*Result, error) {
	resume, err := s.store.ClaimProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}

	p, err := s.store.LoadProposal(ctx, proposalID)
	if err != nil {
		_ = s.store.ReleaseProposal(ctx, proposalID)
		return nil, err
	}

	if resume {
		s.logg.WithFields(logrus.Fields{
			"proposal_id": proposalID,
			"step":        p.ApprovalStep,
		}).Info("retomando aprovação interrompida")
	}

	// validações internas — falha devolve a proposta para aguardando
	// aprovação (de onde o operador corrige os dados ou rejeita); um pedido
	// externo já gravado permanece e é aproveitado na próxima tentativa
	if err := s.validate(p); err != nil {
		_ = s.store.ReleaseProposal(ctx, proposalID)
		return nil, err
	}

	// etapa: pedido externo. Numa retomada sem pedido gravado, recriar é
	// seguro — o gateway resolve duplicidade pela referência.
	if !p.ApprovalStep.Reached(models.StepOrderCreated) {
		created, err := s.gateway.CreateOrder(ctx, buildOrder(p))
		if err != nil {
			_ = s.store.ReleaseProposal(ctx, proposalID)
			return nil, err
		}
		if err := s.store.RecordOrder(ctx, proposalID, created.ID, created.Number); err != nil {
			return nil, s.partial(p, created.ID, "record_order", err)
		}
		p.BlingOrderID = &created.ID
		p.BlingOrderNumber = &created.Number
		p.ApprovalStep = models.StepOrderCreated
	}

	// etapa: emissão da NF-e
	if !p.ApprovalStep.Reached(models.StepDocumentRequested) {
		documentID, err := s.gateway.RequestDocumentIssuance(ctx, *p.BlingOrderID)
		if err != nil {
			return nil, s.partial(p, *p.BlingOrderID, "request_document", err)
		}
		if err := s.store.RecordDocument(ctx, proposalID, documentID); err != nil {
			return nil, s.partial(p, *p.BlingOrderID, "record_document", err)
		}
		p.ApprovalStep = models.StepDocumentRequested
	}

	// etapa: parcelas de comissão
	now := time.Now()
	created := 0
	if !p.ApprovalStep.Reached(models.StepInstallmentsCreated) {
		installments, err := commission.DeriveInstallments(p, p.Vendor.CommissionRate, now)
		if err != nil {
			return nil, s.partial(p, *p.BlingOrderID, "derive_installments", err)
		}
		n, err := s.store.SaveInstallments(ctx, proposalID, installments)
		if err != nil {
			return nil, s.partial(p, *p.BlingOrderID, "save_installments", err)
		}
		created = n
		p.ApprovalStep = models.StepInstallmentsCreated
	}

	// etapa final: status approved
	if err := s.store.FinishApproval(ctx, proposalID, now); err != nil {
		return nil, s.partial(p, *p.BlingOrderID, "finish", err)
	}

	s.logg.WithFields(logrus.Fields{
		"proposal_id":  proposalID,
		"order_id":     *p.BlingOrderID,
		"installments": created,
	}).Info("proposta aprovada")

	return &Result{
		OrderID:             *p.BlingOrderID,
		OrderNumber:         *p.BlingOrderNumber,
		InstallmentsCreated: created,
	}, nil
}

// Reject: transição terminal awaiting_approval -> rejected, sem efeitos
// externos.
func (s *Service) Reject(ctx context.Context, proposalID uint, reason string) error {
	return s.store.RejectProposal(ctx, proposalID, reason)
}

func (s *Service) validate(p *models.Proposal) error {
	if _, err := commission.ParseTerm(p.InvoicingTerm); err != nil {
		return err
	}
	if p.InvoicingTerm != "avista" && !p.Client.AllowsDeferred {
		return ErrClientNotEligible
	}
	if p.NatureOfOperation == "" {
		return bling.ErrMissingFiscalClassification
	}
	return nil
}

func (s *Service) partial(p *models.Proposal, orderID, step string, err error) error {
	pf := &PartialFailureError{ProposalID: p.ID, OrderID: orderID, Step: step, Err: err}
	s.logg.WithFields(logrus.Fields{
		"proposal_id": p.ID,
		"order_id":    orderID,
		"step":        step,
	}).WithError(err).Error("falha parcial na aprovação — pedido externo já criado, conciliar manualmente")
	return pf
}

func buildOrder(p *models.Proposal) bling.Order {
	items := make([]bling.OrderItem, 0, len(p.Items))
	for _, it := range p.Items {
		items = append(items, bling.OrderItem{
			SKU:         it.SKU,
			Description: it.Name,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		})
	}

	days, _ := commission.ParseTerm(p.InvoicingTerm) // já validado

	return bling.Order{
		Reference:         strconv.FormatUint(uint64(p.ID), 10),
		ClientName:        p.Client.Name,
		ClientDocument:    p.Client.CNPJ,
		Address:           p.Client.Address,
		City:              p.Client.City,
		State:             p.Client.State,
		ZipCode:           p.Client.ZipCode,
		Items:             items,
		InstallmentDays:   days,
		Total:             p.TotalValue,
		NatureOfOperation: p.NatureOfOperation,
	}
}
