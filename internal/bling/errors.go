package bling

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrGatewayUnreachable: falha de rede/5xx ao falar com o Bling.
	// Transitório — seguro repetir a aprovação enquanto a proposta ainda
	// estiver aguardando aprovação.
	ErrGatewayUnreachable = errors.New("gateway Bling indisponível")

	// ErrGatewayTimeout: a chamada estourou o timeout configurado.
	// Distinto de indisponível: o pedido PODE ter sido criado do outro lado.
	ErrGatewayTimeout = errors.New("timeout na chamada ao Bling")

	// ErrMissingFiscalClassification: o pedido não carrega natureza de
	// operação. Fatal e não-retryável — o pedido não pode ser enviado assim.
	ErrMissingFiscalClassification = errors.New("pedido sem natureza de operação")

	// ErrTokenRefresh: não foi possível renovar o token OAuth.
	ErrTokenRefresh = errors.New("falha ao renovar token do Bling")
)

// FieldMessage: mensagem de validação campo a campo devolvida pelo gateway
type FieldMessage struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// FiscalValidationError: o Bling rejeitou a requisição (4xx) com mensagens
// de validação. Exibidas ao operador como vieram; não repetir sem corrigir
// os dados.
type FiscalValidationError struct {
	StatusCode int
	Messages   []FieldMessage
}

func (e *FiscalValidationError) Error() string {
	if len(e.Messages) == 0 {
		return fmt.Sprintf("bling: validação rejeitada (HTTP %d)", e.StatusCode)
	}
	parts := make([]string, 0, len(e.Messages))
	for _, m := range e.Messages {
		if m.Field != "" {
			parts = append(parts, m.Field+": "+m.Message)
		} else {
			parts = append(parts, m.Message)
		}
	}
	return fmt.Sprintf("bling: validação rejeitada (HTTP %d): %s", e.StatusCode, strings.Join(parts, "; "))
}

// InventoryInsufficientError: subtipo distinto de validação fiscal sobre
// estoque. Tratado com notificação mais proeminente no operador porque
// normalmente exige ação de suprimentos.
type InventoryInsufficientError struct {
	FiscalValidationError
}

func (e *InventoryInsufficientError) Error() string {
	return "bling: estoque insuficiente: " + e.FiscalValidationError.Error()
}

// isInventoryMessage: heurística sobre as mensagens do gateway
func isInventoryMessage(msgs []FieldMessage) bool {
	for _, m := range msgs {
		lower := strings.ToLower(m.Message)
		if strings.Contains(lower, "estoque") || strings.Contains(lower, "saldo insuficiente") {
			return true
		}
	}
	return false
}
