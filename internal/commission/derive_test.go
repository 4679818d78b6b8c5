package commission

import (
	"testing"
	"time"

	"ebd-backend/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestDeriveInstallmentsRounding(t *testing.T) {
	approvedAt := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	p := &models.Proposal{
		ID:            7,
		ClientID:      1,
		VendorID:      2,
		TotalValue:    dec("100.00"),
		InvoicingTerm: "30/60/90",
	}

	got, err := DeriveInstallments(p, dec("10"), approvedAt)
	require.NoError(t, err)
	require.Len(t, got, 3)

	// 100.00 em 3 parcelas: 33.33 + 33.33 + 33.34
	assert.True(t, got[0].FaceValue.Equal(dec("33.33")), "parcela 1 = %s", got[0].FaceValue)
	assert.True(t, got[1].FaceValue.Equal(dec("33.33")), "parcela 2 = %s", got[1].FaceValue)
	assert.True(t, got[2].FaceValue.Equal(dec("33.34")), "parcela 3 = %s", got[2].FaceValue)

	sum := decimal.Zero
	for _, inst := range got {
		sum = sum.Add(inst.FaceValue)
		assert.Equal(t, models.InstallmentAwaitingInvoice, inst.Status)
		assert.Equal(t, uint(7), inst.ProposalID)
		assert.Equal(t, 3, inst.Count)
	}
	assert.True(t, sum.Equal(p.TotalValue), "soma das parcelas = %s", sum)

	assert.Equal(t, approvedAt.AddDate(0, 0, 30), got[0].DueDate)
	assert.Equal(t, approvedAt.AddDate(0, 0, 60), got[1].DueDate)
	assert.Equal(t, approvedAt.AddDate(0, 0, 90), got[2].DueDate)

	// comissão de 10% sobre o valor de face
	assert.True(t, got[2].CommissionValue.Equal(dec("3.33")), "comissão 3 = %s", got[2].CommissionValue)
}

func TestDeriveInstallmentsSumInvariant(t *testing.T) {
	// valores que historicamente quebravam a soma por arredondamento
	totals := []string{"100.00", "99.99", "0.01", "1250.37", "333.33", "47.50"}
	terms := []string{"avista", "30", "30/60", "30/60/90", "28/35/42/49/56/63"}

	for _, total := range totals {
		for _, term := range terms {
			p := &models.Proposal{TotalValue: dec(total), InvoicingTerm: term}
			got, err := DeriveInstallments(p, dec("7.5"), time.Now())
			require.NoError(t, err, "total=%s term=%s", total, term)

			sum := decimal.Zero
			for _, inst := range got {
				sum = sum.Add(inst.FaceValue)
			}
			assert.True(t, sum.Equal(p.TotalValue), "total=%s term=%s soma=%s", total, term, sum)
		}
	}
}

func TestDeriveInstallmentsUnknownTerm(t *testing.T) {
	for _, term := range []string{"", "mensal", "30/x", "30//60", "-30", "0"} {
		p := &models.Proposal{TotalValue: dec("100.00"), InvoicingTerm: term}
		got, err := DeriveInstallments(p, dec("10"), time.Now())

		var ute *UnknownTermError
		assert.ErrorAs(t, err, &ute, "term=%q", term)
		assert.Nil(t, got, "term=%q", term)
	}
}

func TestParseTerm(t *testing.T) {
	days, err := ParseTerm("30/60/90")
	require.NoError(t, err)
	assert.Equal(t, []int{30, 60, 90}, days)

	days, err = ParseTerm("avista")
	require.NoError(t, err)
	assert.Equal(t, []int{0}, days)

	days, err = ParseTerm("À Vista")
	require.NoError(t, err)
	assert.Equal(t, []int{0}, days)
}
