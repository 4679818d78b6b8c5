package reconciliation

import (
	"context"
	"fmt"
	"time"

	"ebd-backend/internal/models"

	"gorm.io/gorm"
)

// Selection: par confirmado pelo operador (seleção automática ou manual)
type Selection struct {
	InstallmentID uint       `json:"installment_id"`
	PaymentDate   *time.Time `json:"payment_date"` // do título; hoje quando ausente
}

// ConfirmResult: contagem de sucessos e falhas da confirmação em lote.
// As falhas não abortam o lote — semântica de falha parcial.
type ConfirmResult struct {
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Messages  []string `json:"messages"`
}

// InstallmentMarker: baixa uma parcela individual. Abstraído para os
// testes do lote não dependerem do banco.
type InstallmentMarker interface {
	MarkPaid(ctx context.Context, installmentID uint, releaseDate, paymentDate time.Time) error
}

// ConfirmMatches: aplica cada baixa de forma independente. Uma parcela que
// falhar (já paga, removida) é contada e descrita nas mensagens, e as
// demais seguem normalmente.
func ConfirmMatches(ctx context.Context, marker InstallmentMarker, selections []Selection, now time.Time) ConfirmResult {
	result := ConfirmResult{Messages: []string{}}

	for _, sel := range selections {
		paymentDate := now
		if sel.PaymentDate != nil {
			paymentDate = *sel.PaymentDate
		}

		if err := marker.MarkPaid(ctx, sel.InstallmentID, now, paymentDate); err != nil {
			result.Failed++
			result.Messages = append(result.Messages, fmt.Sprintf("Parcela %d: %v", sel.InstallmentID, err))
			continue
		}
		result.Succeeded++
	}

	return result
}

// GormMarker: baixa condicional no Postgres — só parcelas ainda em aberto
// são marcadas como pagas; zero linhas afetadas é erro, não sucesso.
type GormMarker struct {
	db *gorm.DB
}

func NewGormMarker(db *gorm.DB) *GormMarker {
	return &GormMarker{db: db}
}

func (m *GormMarker) MarkPaid(ctx context.Context, installmentID uint, releaseDate, paymentDate time.Time) error {
	res := m.db.WithContext(ctx).Model(&models.CommissionInstallment{}).
		Where("id = ? AND status IN ?", installmentID, models.OutstandingStatuses).
		Updates(map[string]interface{}{
			"status":       models.InstallmentPaid,
			"release_date": releaseDate,
			"payment_date": paymentDate,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("parcela já está paga ou não tem boleto em aberto")
	}
	return nil
}
