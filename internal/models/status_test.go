package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestParseInstallmentStatus(t *testing.T) {
	tests := []struct {
		raw     string
		want    InstallmentStatus
		wantErr bool
	}{
		{raw: "pendente", want: InstallmentPending},
		{raw: "Pendente", want: InstallmentPending},
		{raw: "em aberto", want: InstallmentPending},
		{raw: "paga", want: InstallmentPaid},
		{raw: "pago", want: InstallmentPaid},
		{raw: "paid", want: InstallmentPaid},
		{raw: "  PAGA  ", want: InstallmentPaid},
		{raw: "liberada", want: InstallmentReleased},
		{raw: "Faturado", want: InstallmentScheduled},
		{raw: "vencida", want: InstallmentOverdue},
		{raw: "aguardando nf-e", want: InstallmentAwaitingInvoice},
		{raw: "quitada", wantErr: true},
		{raw: "", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseInstallmentStatus(tt.raw)
		if tt.wantErr {
			assert.Error(t, err, "raw=%q", tt.raw)
			continue
		}
		assert.NoError(t, err, "raw=%q", tt.raw)
		assert.Equal(t, tt.want, got, "raw=%q", tt.raw)
	}
}

func TestParseProposalStatus(t *testing.T) {
	tests := []struct {
		raw     string
		want    ProposalStatus
		wantErr bool
	}{
		{raw: "aguardando aprovação", want: ProposalAwaitingApproval},
		{raw: "pending", want: ProposalAwaitingApproval},
		{raw: "Aprovada", want: ProposalApproved},
		{raw: "faturado", want: ProposalApproved},
		{raw: "recusada", want: ProposalRejected},
		{raw: "em aprovação", want: ProposalApproving},
		{raw: "cancelada", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseProposalStatus(tt.raw)
		if tt.wantErr {
			assert.Error(t, err, "raw=%q", tt.raw)
			continue
		}
		assert.NoError(t, err, "raw=%q", tt.raw)
		assert.Equal(t, tt.want, got, "raw=%q", tt.raw)
	}
}

func TestComputeTotal(t *testing.T) {
	items := []ProposalItem{
		{Quantity: 10, UnitPrice: dec("25.00")},
		{Quantity: 3, UnitPrice: dec("14.90")},
	}
	// 250.00 + 44.70 + 20.00 frete = 314.70; 10% desconto = 283.23
	total := ComputeTotal(items, dec("20.00"), dec("10"))
	assert.True(t, total.Equal(dec("283.23")), "total = %s", total)
}
