package bling

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOrder() Order {
	return Order{
		Reference:         "42",
		ClientName:        "Igreja Batista Central",
		ClientDocument:    "12345678000190",
		Items:             []OrderItem{{SKU: "EBD-001", Description: "Revista EBD", Quantity: 10, UnitPrice: decimal.NewFromFloat(15)}},
		InstallmentDays:   []int{30, 60, 90},
		Total:             decimal.NewFromFloat(150),
		NatureOfOperation: "Venda de mercadorias",
	}
}

// servidor de teste que sempre aceita o fluxo OAuth
func newGatewayServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/token" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"tok-123","expires_in":3600}`))
			return
		}
		handler(w, r)
	}))
}

func TestCreateOrderSuccess(t *testing.T) {
	srv := newGatewayServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pedidos/vendas", r.URL.Path)
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":9912,"numero":551}}`))
	})
	defer srv.Close()

	c := NewClient(srv.URL, Credentials{ClientID: "id", ClientSecret: "secret"}, 5*time.Second)
	created, err := c.CreateOrder(context.Background(), testOrder())
	require.NoError(t, err)
	assert.Equal(t, "9912", created.ID)
	assert.Equal(t, "551", created.Number)
}

func TestCreateOrderMissingNature(t *testing.T) {
	c := NewClient("http://localhost:1", Credentials{}, time.Second)
	ord := testOrder()
	ord.NatureOfOperation = ""

	_, err := c.CreateOrder(context.Background(), ord)
	assert.ErrorIs(t, err, ErrMissingFiscalClassification)
}

func TestCreateOrderDuplicateResolved(t *testing.T) {
	srv := newGatewayServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":{"type":"CONFLICT","message":"Pedido já existe"}}`))
			return
		}
		// GET /pedidos/vendas?numeroLoja=42
		assert.Equal(t, "42", r.URL.Query().Get("numeroLoja"))
		_, _ = w.Write([]byte(`{"data":[{"id":7001,"numero":320}]}`))
	})
	defer srv.Close()

	c := NewClient(srv.URL, Credentials{ClientID: "id", ClientSecret: "secret"}, 5*time.Second)
	created, err := c.CreateOrder(context.Background(), testOrder())
	require.NoError(t, err)
	assert.Equal(t, "7001", created.ID)
	assert.Equal(t, "320", created.Number)
}

func TestCreateOrderFiscalValidation(t *testing.T) {
	srv := newGatewayServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":{"type":"VALIDATION_ERROR","message":"Dados inválidos","fields":[{"campo":"contato.numeroDocumento","mensagem":"CNPJ inválido"}]}}`))
	})
	defer srv.Close()

	c := NewClient(srv.URL, Credentials{ClientID: "id", ClientSecret: "secret"}, 5*time.Second)
	_, err := c.CreateOrder(context.Background(), testOrder())

	var fv *FiscalValidationError
	require.ErrorAs(t, err, &fv)
	assert.Equal(t, http.StatusUnprocessableEntity, fv.StatusCode)
	assert.Len(t, fv.Messages, 2)
	assert.Equal(t, "contato.numeroDocumento", fv.Messages[1].Field)
}

func TestCreateOrderInventoryInsufficient(t *testing.T) {
	srv := newGatewayServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"VALIDATION_ERROR","message":"Estoque insuficiente para o produto EBD-001"}}`))
	})
	defer srv.Close()

	c := NewClient(srv.URL, Credentials{ClientID: "id", ClientSecret: "secret"}, 5*time.Second)
	_, err := c.CreateOrder(context.Background(), testOrder())

	var inv *InventoryInsufficientError
	assert.ErrorAs(t, err, &inv)
}

func TestCreateOrderGatewayTimeout(t *testing.T) {
	srv := newGatewayServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	})
	defer srv.Close()

	c := NewClient(srv.URL, Credentials{ClientID: "id", ClientSecret: "secret"}, 50*time.Millisecond)
	_, err := c.CreateOrder(context.Background(), testOrder())
	assert.ErrorIs(t, err, ErrGatewayTimeout)
}

func TestCreateOrderGatewayUnreachable(t *testing.T) {
	srv := newGatewayServer(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close() // porta fechada

	c := NewClient(srv.URL, Credentials{ClientID: "id", ClientSecret: "secret"}, time.Second)
	_, err := c.CreateOrder(context.Background(), testOrder())
	assert.ErrorIs(t, err, ErrGatewayUnreachable)
}

func TestPollDocumentStatus(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantState IssuanceState
		wantLink  string
		wantWhy   string
	}{
		{
			name:      "situação 6 autorizada",
			body:      `{"data":{"situacao":6,"numero":128,"linkPDF":"https://bling/nfe/128.pdf"}}`,
			wantState: IssuanceAuthorized,
			wantLink:  "https://bling/nfe/128.pdf",
		},
		{
			name:      "situação 4 rejeitada com motivo",
			body:      `{"data":{"situacao":4,"motivoRejeicao":"Rejeição 539: CNPJ do destinatário inválido"}}`,
			wantState: IssuanceRejected,
			wantWhy:   "Rejeição 539: CNPJ do destinatário inválido",
		},
		{
			name:      "situação desconhecida tratada como pendente",
			body:      `{"data":{"situacao":2}}`,
			wantState: IssuancePending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newGatewayServer(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/nfe/128", r.URL.Path)
				_, _ = w.Write([]byte(tt.body))
			})
			defer srv.Close()

			c := NewClient(srv.URL, Credentials{ClientID: "id", ClientSecret: "secret"}, 5*time.Second)
			ds, err := c.PollDocumentStatus(context.Background(), "128")
			require.NoError(t, err)
			assert.Equal(t, tt.wantState, ds.State)
			assert.Equal(t, tt.wantLink, ds.DocumentLink)
			assert.Equal(t, tt.wantWhy, ds.RejectionReason)
		})
	}
}

func TestTokenRefreshFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, Credentials{ClientID: "bad", ClientSecret: "bad"}, time.Second)
	_, err := c.CreateOrder(context.Background(), testOrder())
	assert.True(t, errors.Is(err, ErrTokenRefresh))
}
