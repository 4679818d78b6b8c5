package reconciliation

import (
	"time"

	"ebd-backend/internal/models"

	"github.com/shopspring/decimal"
)

// tolerância de centavos na comparação de valores
var amountTolerance = decimal.NewFromFloat(0.01)

// StatementEntry: título extraído do extrato bancário por um colaborador
// externo (parser de documento ou LLM). Efêmero — existe só durante a
// sessão de conciliação, nunca é persistido.
type StatementEntry struct {
	PayerName   string          `json:"payer_name"`
	Amount      decimal.Decimal `json:"amount"`
	DueDate     time.Time       `json:"due_date"`
	PaymentDate *time.Time      `json:"payment_date"`
	TitleNumber string          `json:"title_number"`
}

// MatchProposal: pareamento proposto de um título com as parcelas
// candidatas. Com exatamente uma candidata a seleção vem pré-marcada;
// com várias, a desambiguação é do operador.
type MatchProposal struct {
	Entry        StatementEntry                 `json:"entry"`
	Candidates   []models.CommissionInstallment `json:"candidates"`
	SelectedID   *uint                          `json:"selected_id"`
	AutoSelected bool                           `json:"auto_selected"`
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// MatchEntries: para cada título do extrato, candidatas são as parcelas em
// aberto com |valor de face - valor do título| <= 0.01 E vencimento no
// mesmo dia (igualdade exata de data, sem janela). Zero candidatas marca o
// título como não conciliado; uma candidata é auto-selecionada; mais de
// uma fica sem seleção.
func MatchEntries(entries []StatementEntry, outstanding []models.CommissionInstallment) []MatchProposal {
	proposals := make([]MatchProposal, 0, len(entries))

	for _, entry := range entries {
		mp := MatchProposal{Entry: entry, Candidates: []models.CommissionInstallment{}}

		for _, inst := range outstanding {
			if !sameDay(inst.DueDate, entry.DueDate) {
				continue
			}
			if inst.FaceValue.Sub(entry.Amount).Abs().GreaterThan(amountTolerance) {
				continue
			}
			mp.Candidates = append(mp.Candidates, inst)
		}

		if len(mp.Candidates) == 1 {
			id := mp.Candidates[0].ID
			mp.SelectedID = &id
			mp.AutoSelected = true
		}

		proposals = append(proposals, mp)
	}

	return proposals
}
