package reconciliation

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Colunas esperadas na planilha de retorno do banco:
// Sacado | Valor | Vencimento | Data Pagamento | Número
// A primeira linha é cabeçalho e é ignorada.

// parseBrazilianAmount: converte "1.234,56" ou "R$ 1.234,56" para decimal
func parseBrazilianAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "R$")
	s = strings.TrimSpace(s)

	// remove separador de milhar e troca a vírgula decimal por ponto
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")

	return decimal.NewFromString(s)
}

// parseBrazilianDate: aceita "02/01/2006" e "2006-01-02"
func parseBrazilianDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("02/01/2006", s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("data em formato desconhecido: %q", s)
}

// ParseStatementXLSX: lê a planilha de títulos do extrato e devolve as
// entradas para conciliação. Linhas ilegíveis são puladas e reportadas —
// uma linha ruim não derruba a importação inteira.
func ParseStatementXLSX(r io.Reader) ([]StatementEntry, []string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("não foi possível abrir a planilha: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("não foi possível ler a planilha: %w", err)
	}

	entries := make([]StatementEntry, 0, len(rows))
	warnings := []string{}

	for i, row := range rows {
		if i == 0 {
			continue // cabeçalho
		}
		if len(row) < 3 || strings.TrimSpace(row[0]) == "" {
			continue
		}

		amount, err := parseBrazilianAmount(row[1])
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("Linha %d: valor ilegível %q", i+1, row[1]))
			continue
		}

		dueDate, err := parseBrazilianDate(row[2])
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("Linha %d: vencimento ilegível %q", i+1, row[2]))
			continue
		}

		entry := StatementEntry{
			PayerName: strings.TrimSpace(row[0]),
			Amount:    amount,
			DueDate:   dueDate,
		}

		if len(row) > 3 && strings.TrimSpace(row[3]) != "" {
			if paid, err := parseBrazilianDate(row[3]); err == nil {
				entry.PaymentDate = &paid
			} else {
				warnings = append(warnings, fmt.Sprintf("Linha %d: data de pagamento ilegível %q, ignorada", i+1, row[3]))
			}
		}
		if len(row) > 4 {
			entry.TitleNumber = strings.TrimSpace(row[4])
		}

		entries = append(entries, entry)
	}

	return entries, warnings, nil
}
