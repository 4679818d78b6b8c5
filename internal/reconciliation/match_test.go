package reconciliation

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"ebd-backend/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestMatchEntriesExact(t *testing.T) {
	entries := []StatementEntry{
		{PayerName: "Igreja Batista Central", Amount: dec("150.00"), DueDate: date(2024, 3, 10)},
	}
	outstanding := []models.CommissionInstallment{
		{ID: 1, FaceValue: dec("150.00"), DueDate: date(2024, 3, 10), Status: models.InstallmentPending},
		{ID: 2, FaceValue: dec("150.00"), DueDate: date(2024, 4, 10), Status: models.InstallmentPending},
		{ID: 3, FaceValue: dec("99.00"), DueDate: date(2024, 3, 10), Status: models.InstallmentPending},
	}

	matches := MatchEntries(entries, outstanding)
	require.Len(t, matches, 1)
	require.Len(t, matches[0].Candidates, 1)
	assert.Equal(t, uint(1), matches[0].Candidates[0].ID)
	require.NotNil(t, matches[0].SelectedID)
	assert.Equal(t, uint(1), *matches[0].SelectedID)
	assert.True(t, matches[0].AutoSelected)
}

func TestMatchEntriesTolerance(t *testing.T) {
	entries := []StatementEntry{
		{Amount: dec("150.01"), DueDate: date(2024, 3, 10)}, // dentro do 0.01
		{Amount: dec("150.02"), DueDate: date(2024, 3, 10)}, // fora
	}
	outstanding := []models.CommissionInstallment{
		{ID: 1, FaceValue: dec("150.00"), DueDate: date(2024, 3, 10)},
	}

	matches := MatchEntries(entries, outstanding)
	require.Len(t, matches, 2)
	assert.Len(t, matches[0].Candidates, 1)
	assert.Empty(t, matches[1].Candidates)
	assert.Nil(t, matches[1].SelectedID)
}

func TestMatchEntriesAmbiguous(t *testing.T) {
	entries := []StatementEntry{
		{Amount: dec("150.00"), DueDate: date(2024, 3, 10)},
	}
	outstanding := []models.CommissionInstallment{
		{ID: 1, FaceValue: dec("150.00"), DueDate: date(2024, 3, 10)},
		{ID: 2, FaceValue: dec("150.00"), DueDate: date(2024, 3, 10)},
	}

	// duas candidatas idênticas: nenhuma pré-selecionada, decisão é do operador
	matches := MatchEntries(entries, outstanding)
	require.Len(t, matches, 1)
	assert.Len(t, matches[0].Candidates, 2)
	assert.Nil(t, matches[0].SelectedID)
	assert.False(t, matches[0].AutoSelected)
}

// marcador fake: falha nos ids configurados
type fakeMarker struct {
	failIDs map[uint]error
	paid    map[uint]time.Time
}

func (f *fakeMarker) MarkPaid(_ context.Context, id uint, _, paymentDate time.Time) error {
	if err, ok := f.failIDs[id]; ok {
		return err
	}
	f.paid[id] = paymentDate
	return nil
}

func TestConfirmMatchesPartialFailure(t *testing.T) {
	marker := &fakeMarker{
		failIDs: map[uint]error{3: errors.New("parcela já está paga")},
		paid:    map[uint]time.Time{},
	}

	now := date(2024, 3, 15)
	entryPayment := date(2024, 3, 12)
	selections := []Selection{
		{InstallmentID: 1, PaymentDate: &entryPayment},
		{InstallmentID: 2},
		{InstallmentID: 3},
		{InstallmentID: 4},
		{InstallmentID: 5},
	}

	result := ConfirmMatches(context.Background(), marker, selections, now)

	assert.Equal(t, 4, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Messages, 1)
	assert.Contains(t, result.Messages[0], "Parcela 3")

	// data de pagamento do título quando presente, hoje quando ausente
	assert.Equal(t, entryPayment, marker.paid[1])
	assert.Equal(t, now, marker.paid[2])
}

func TestParseStatementXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]string{
		{"Sacado", "Valor", "Vencimento", "Data Pagamento", "Número"},
		{"Igreja Batista Central", "1.234,56", "10/03/2024", "12/03/2024", "TIT-001"},
		{"Comunidade da Fé", "R$ 150,00", "2024-04-10", "", "TIT-002"},
		{"Linha Quebrada", "abc", "10/03/2024", "", "TIT-003"},
	}
	for i, row := range rows {
		for j, val := range row {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+1)
			require.NoError(t, f.SetCellValue(sheet, cell, val))
		}
	}

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	entries, warnings, err := ParseStatementXLSX(&buf)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Len(t, warnings, 1)

	assert.Equal(t, "Igreja Batista Central", entries[0].PayerName)
	assert.True(t, entries[0].Amount.Equal(dec("1234.56")), "valor = %s", entries[0].Amount)
	assert.Equal(t, date(2024, 3, 10), entries[0].DueDate)
	require.NotNil(t, entries[0].PaymentDate)
	assert.Equal(t, date(2024, 3, 12), *entries[0].PaymentDate)
	assert.Equal(t, "TIT-001", entries[0].TitleNumber)

	assert.True(t, entries[1].Amount.Equal(dec("150.00")))
	assert.Nil(t, entries[1].PaymentDate)
	assert.Contains(t, warnings[0], "Linha 4")
}
