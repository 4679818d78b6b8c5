package approval

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"ebd-backend/internal/bling"
	"ebd-backend/internal/commission"
	"ebd-backend/internal/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes em memória com a mesma semântica condicional do GormStore ---

type fakeStore struct {
	proposal     *models.Proposal
	installments []models.CommissionInstallment
	saveErr      error
	recordErr    error
}

func (f *fakeStore) ClaimProposal(_ context.Context, id uint) (bool, error) {
	if f.proposal == nil || f.proposal.ID != id {
		return false, errors.New("proposta não encontrada")
	}
	if f.proposal.Status == models.ProposalAwaitingApproval {
		f.proposal.Status = models.ProposalApproving
		return false, nil
	}
	if f.proposal.Status == models.ProposalApproving {
		return true, nil
	}
	return false, ErrInvalidState
}

func (f *fakeStore) ReleaseProposal(_ context.Context, id uint) error {
	if f.proposal.Status == models.ProposalApproving {
		f.proposal.Status = models.ProposalAwaitingApproval
	}
	return nil
}

func (f *fakeStore) LoadProposal(_ context.Context, id uint) (*models.Proposal, error) {
	return f.proposal, nil
}

func (f *fakeStore) RecordOrder(_ context.Context, id uint, orderID, orderNumber string) error {
	if f.recordErr != nil {
		return f.recordErr
	}
	if f.proposal.BlingOrderID != nil {
		return errors.New("pedido externo já gravado")
	}
	f.proposal.BlingOrderID = &orderID
	f.proposal.BlingOrderNumber = &orderNumber
	f.proposal.ApprovalStep = models.StepOrderCreated
	return nil
}

func (f *fakeStore) RecordDocument(_ context.Context, id uint, documentID string) error {
	if f.proposal.BlingDocumentID == nil {
		f.proposal.BlingDocumentID = &documentID
		f.proposal.ApprovalStep = models.StepDocumentRequested
	}
	return nil
}

func (f *fakeStore) SaveInstallments(_ context.Context, proposalID uint, installments []models.CommissionInstallment) (int, error) {
	if f.saveErr != nil {
		return 0, f.saveErr
	}
	if len(f.installments) > 0 {
		return 0, nil
	}
	f.installments = installments
	f.proposal.ApprovalStep = models.StepInstallmentsCreated
	return len(installments), nil
}

func (f *fakeStore) FinishApproval(_ context.Context, id uint, at time.Time) error {
	if f.proposal.Status != models.ProposalApproving {
		return ErrInvalidState
	}
	f.proposal.Status = models.ProposalApproved
	f.proposal.ConfirmedAt = &at
	return nil
}

func (f *fakeStore) RejectProposal(_ context.Context, id uint, reason string) error {
	if f.proposal.Status != models.ProposalAwaitingApproval {
		return ErrInvalidState
	}
	f.proposal.Status = models.ProposalRejected
	f.proposal.RejectReason = reason
	return nil
}

type fakeGateway struct {
	created     bling.CreatedOrder
	createErr   error
	issueErr    error
	createCalls int
	issueCalls  int
}

func (f *fakeGateway) CreateOrder(_ context.Context, ord bling.Order) (bling.CreatedOrder, error) {
	f.createCalls++
	if f.createErr != nil {
		return bling.CreatedOrder{}, f.createErr
	}
	return f.created, nil
}

func (f *fakeGateway) RequestDocumentIssuance(_ context.Context, orderID string) (string, error) {
	f.issueCalls++
	if f.issueErr != nil {
		return "", f.issueErr
	}
	return "nfe-888", nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testProposal() *models.Proposal {
	return &models.Proposal{
		ID:                42,
		ClientID:          1,
		VendorID:          2,
		Client:            models.Client{ID: 1, Name: "Igreja Batista Central", CNPJ: "12345678000190", AllowsDeferred: true},
		Vendor:            models.Vendor{ID: 2, Name: "Marcos", CommissionRate: dec("10")},
		Items:             []models.ProposalItem{{SKU: "EBD-001", Name: "Revista EBD", Quantity: 10, UnitPrice: dec("10.00")}},
		TotalValue:        dec("100.00"),
		InvoicingTerm:     "30/60/90",
		NatureOfOperation: "Venda de mercadorias",
		Status:            models.ProposalAwaitingApproval,
	}
}

func newTestService(store Store, gw Gateway) *Service {
	logg := logrus.New()
	logg.SetOutput(io.Discard)
	return NewService(store, gw, logg)
}

func TestApproveSuccess(t *testing.T) {
	store := &fakeStore{proposal: testProposal()}
	gw := &fakeGateway{created: bling.CreatedOrder{ID: "9912", Number: "551"}}
	svc := newTestService(store, gw)

	result, err := svc.Approve(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "9912", result.OrderID)
	assert.Equal(t, "551", result.OrderNumber)
	assert.Equal(t, 3, result.InstallmentsCreated)

	assert.Equal(t, models.ProposalApproved, store.proposal.Status)
	require.NotNil(t, store.proposal.ConfirmedAt)

	// invariante da soma: parcelas somam exatamente o total da proposta
	sum := decimal.Zero
	for _, inst := range store.installments {
		sum = sum.Add(inst.FaceValue)
	}
	assert.True(t, sum.Equal(dec("100.00")), "soma = %s", sum)
}

func TestApproveIdempotent(t *testing.T) {
	store := &fakeStore{proposal: testProposal()}
	gw := &fakeGateway{created: bling.CreatedOrder{ID: "9912", Number: "551"}}
	svc := newTestService(store, gw)

	_, err := svc.Approve(context.Background(), 42)
	require.NoError(t, err)

	// segunda chamada: InvalidState, sem novo pedido nem novas parcelas
	_, err = svc.Approve(context.Background(), 42)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, 1, gw.createCalls)
	assert.Len(t, store.installments, 3)
}

func TestApproveGatewayUnreachableLeavesNothing(t *testing.T) {
	store := &fakeStore{proposal: testProposal()}
	gw := &fakeGateway{createErr: bling.ErrGatewayUnreachable}
	svc := newTestService(store, gw)

	_, err := svc.Approve(context.Background(), 42)
	assert.ErrorIs(t, err, bling.ErrGatewayUnreachable)

	// nenhuma parcela criada e proposta de volta para aguardando aprovação
	assert.Empty(t, store.installments)
	assert.Equal(t, models.ProposalAwaitingApproval, store.proposal.Status)
	assert.Nil(t, store.proposal.BlingOrderID)
}

func TestApprovePartialFailureThenResume(t *testing.T) {
	store := &fakeStore{proposal: testProposal()}
	gw := &fakeGateway{
		created:  bling.CreatedOrder{ID: "9912", Number: "551"},
		issueErr: bling.ErrGatewayUnreachable,
	}
	svc := newTestService(store, gw)

	_, err := svc.Approve(context.Background(), 42)

	// pedido criado, emissão falhou: falha parcial nomeando o pedido
	var pf *PartialFailureError
	require.ErrorAs(t, err, &pf)
	assert.Equal(t, "9912", pf.OrderID)
	assert.Equal(t, uint(42), pf.ProposalID)
	assert.Equal(t, models.ProposalApproving, store.proposal.Status)
	assert.Empty(t, store.installments)

	// retomada: não cria segundo pedido, conclui a aprovação
	gw.issueErr = nil
	result, err := svc.Approve(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, 1, gw.createCalls)
	assert.Equal(t, "9912", result.OrderID)
	assert.Equal(t, 3, result.InstallmentsCreated)
	assert.Equal(t, models.ProposalApproved, store.proposal.Status)
	assert.Len(t, store.installments, 3)
}

func TestApproveRecordOrderFailureThenResume(t *testing.T) {
	// a gravação do pedido falha depois do pedido já existir no ERP: a
	// proposta fica em approving sem id gravado e precisa continuar
	// retomável (recriar o pedido resolve pela referência, sem duplicar)
	store := &fakeStore{proposal: testProposal(), recordErr: errors.New("conexão com o banco perdida")}
	gw := &fakeGateway{created: bling.CreatedOrder{ID: "9912", Number: "551"}}
	svc := newTestService(store, gw)

	_, err := svc.Approve(context.Background(), 42)

	var pf *PartialFailureError
	require.ErrorAs(t, err, &pf)
	assert.Equal(t, "record_order", pf.Step)
	assert.Equal(t, models.ProposalApproving, store.proposal.Status)
	assert.Nil(t, store.proposal.BlingOrderID)

	// banco voltou: a retomada recria o pedido e conclui a aprovação
	store.recordErr = nil
	result, err := svc.Approve(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, 2, gw.createCalls)
	assert.Equal(t, "9912", result.OrderID)
	assert.Equal(t, 3, result.InstallmentsCreated)
	assert.Equal(t, models.ProposalApproved, store.proposal.Status)
}

func TestApproveResumeValidationFailureReleases(t *testing.T) {
	// o cliente perde a habilitação de faturamento entre a falha parcial e
	// a retomada: a proposta volta para aguardando aprovação (de onde pode
	// ser rejeitada), nunca fica presa em approving
	store := &fakeStore{proposal: testProposal()}
	gw := &fakeGateway{
		created:  bling.CreatedOrder{ID: "9912", Number: "551"},
		issueErr: bling.ErrGatewayUnreachable,
	}
	svc := newTestService(store, gw)

	_, err := svc.Approve(context.Background(), 42)
	var pf *PartialFailureError
	require.ErrorAs(t, err, &pf)

	store.proposal.Client.AllowsDeferred = false

	_, err = svc.Approve(context.Background(), 42)
	assert.ErrorIs(t, err, ErrClientNotEligible)
	assert.Equal(t, models.ProposalAwaitingApproval, store.proposal.Status)

	require.NoError(t, svc.Reject(context.Background(), 42, "cliente perdeu o crédito"))
	assert.Equal(t, models.ProposalRejected, store.proposal.Status)
}

func TestApproveDuplicateOrderTolerated(t *testing.T) {
	// o gateway resolve "já existe" devolvendo o id pré-existente; para o
	// orquestrador isso é indistinguível de uma criação normal
	store := &fakeStore{proposal: testProposal()}
	gw := &fakeGateway{created: bling.CreatedOrder{ID: "7001", Number: "320"}}
	svc := newTestService(store, gw)

	result, err := svc.Approve(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "7001", result.OrderID)
	assert.Len(t, store.installments, 3)
}

func TestApproveClientNotEligible(t *testing.T) {
	p := testProposal()
	p.Client.AllowsDeferred = false
	store := &fakeStore{proposal: p}
	gw := &fakeGateway{}
	svc := newTestService(store, gw)

	_, err := svc.Approve(context.Background(), 42)
	assert.ErrorIs(t, err, ErrClientNotEligible)
	assert.Equal(t, 0, gw.createCalls)
	assert.Equal(t, models.ProposalAwaitingApproval, store.proposal.Status)
}

func TestApproveUnknownTerm(t *testing.T) {
	p := testProposal()
	p.InvoicingTerm = "mensal"
	store := &fakeStore{proposal: p}
	gw := &fakeGateway{}
	svc := newTestService(store, gw)

	_, err := svc.Approve(context.Background(), 42)

	var ute *commission.UnknownTermError
	assert.ErrorAs(t, err, &ute)
	assert.Equal(t, 0, gw.createCalls)
	assert.Empty(t, store.installments)
	assert.Equal(t, models.ProposalAwaitingApproval, store.proposal.Status)
}

func TestApproveMissingFiscalClassification(t *testing.T) {
	p := testProposal()
	p.NatureOfOperation = ""
	store := &fakeStore{proposal: p}
	gw := &fakeGateway{}
	svc := newTestService(store, gw)

	_, err := svc.Approve(context.Background(), 42)
	assert.ErrorIs(t, err, bling.ErrMissingFiscalClassification)
	assert.Equal(t, 0, gw.createCalls)
	assert.Equal(t, models.ProposalAwaitingApproval, store.proposal.Status)
}

func TestRejectTerminal(t *testing.T) {
	store := &fakeStore{proposal: testProposal()}
	svc := newTestService(store, &fakeGateway{})

	err := svc.Reject(context.Background(), 42, "limite de crédito estourado")
	require.NoError(t, err)
	assert.Equal(t, models.ProposalRejected, store.proposal.Status)
	assert.Equal(t, "limite de crédito estourado", store.proposal.RejectReason)

	// rejeitar de novo (ou aprovar) é InvalidState
	assert.ErrorIs(t, svc.Reject(context.Background(), 42, "x"), ErrInvalidState)
	_, err = svc.Approve(context.Background(), 42)
	assert.ErrorIs(t, err, ErrInvalidState)
}
