package commission

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"ebd-backend/internal/models"

	"github.com/shopspring/decimal"
)

// UnknownTermError: condição de faturamento não reconhecida. Nenhuma
// parcela é gerada nesse caso.
type UnknownTermError struct {
	Term string
}

func (e *UnknownTermError) Error() string {
	return fmt.Sprintf("condição de faturamento desconhecida: %q", e.Term)
}

// ParseTerm: converte o código da condição ("avista", "30", "30/60/90",
// "28/35/42/49/56/63") na lista ordenada de prazos em dias. Frações
// iguais entre as parcelas.
func ParseTerm(code string) ([]int, error) {
	code = strings.TrimSpace(strings.ToLower(code))
	if code == "" {
		return nil, &UnknownTermError{Term: code}
	}
	if code == "avista" || code == "à vista" || code == "a vista" {
		return []int{0}, nil
	}

	parts := strings.Split(code, "/")
	days := make([]int, 0, len(parts))
	for _, p := range parts {
		d, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || d <= 0 {
			return nil, &UnknownTermError{Term: code}
		}
		days = append(days, d)
	}
	return days, nil
}

// DeriveInstallments: função pura de (proposta aprovada, condição de
// faturamento, taxa de comissão) para a lista de parcelas. A soma dos
// valores de face é exatamente o total da proposta — o resto do
// arredondamento vai para a última parcela.
func DeriveInstallments(p *models.Proposal, commissionRate decimal.Decimal, approvedAt time.Time) ([]models.CommissionInstallment, error) {
	days, err := ParseTerm(p.InvoicingTerm)
	if err != nil {
		return nil, err
	}

	n := len(days)
	count := decimal.NewFromInt(int64(n))
	each := p.TotalValue.Div(count).Round(2)

	installments := make([]models.CommissionInstallment, 0, n)
	accumulated := decimal.Zero
	for i, d := range days {
		face := each
		if i == n-1 {
			face = p.TotalValue.Sub(accumulated)
		}
		accumulated = accumulated.Add(face)

		installments = append(installments, models.CommissionInstallment{
			ProposalID:      p.ID,
			ClientID:        p.ClientID,
			VendorID:        p.VendorID,
			Number:          i + 1,
			Count:           n,
			FaceValue:       face,
			CommissionValue: face.Mul(commissionRate).Div(decimal.NewFromInt(100)).Round(2),
			DueDate:         approvedAt.AddDate(0, 0, d),
			Status:          models.InstallmentAwaitingInvoice,
			BlingOrderID:    p.BlingOrderID,
		})
	}

	return installments, nil
}
