package bling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// Códigos de situação da NF-e no Bling
const (
	situationAuthorized = 6
	situationRejected   = 4
	situationDenied     = 5
)

type IssuanceState string

const (
	IssuancePending    IssuanceState = "pending"
	IssuanceAuthorized IssuanceState = "authorized"
	IssuanceRejected   IssuanceState = "rejected"
)

// OrderItem: item do pedido enviado ao Bling
type OrderItem struct {
	SKU         string
	Description string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// Order: pedido de venda a ser criado no Bling a partir de uma proposta
// aprovada. Reference é o id da proposta no nosso sistema (numeroLoja) e
// é o que permite resolver duplicidade.
type Order struct {
	Reference         string
	ClientName        string
	ClientDocument    string
	Address           string
	City              string
	State             string
	ZipCode           string
	Items             []OrderItem
	InstallmentDays   []int
	Total             decimal.Decimal
	NatureOfOperation string
}

// CreatedOrder: identificadores devolvidos pelo Bling
type CreatedOrder struct {
	ID     string
	Number string
}

// DocumentStatus: situação da NF-e interpretada a partir do código do Bling
type DocumentStatus struct {
	State           IssuanceState
	Situation       int
	DocumentNumber  string
	DocumentLink    string
	RejectionReason string
}

type Client struct {
	baseURL string
	http    *http.Client
	tokens  *tokenSource
}

func NewClient(baseURL string, creds Credentials, timeout time.Duration) *Client {
	httpClient := &http.Client{Timeout: timeout}
	return &Client{
		baseURL: baseURL,
		http:    httpClient,
		tokens: &tokenSource{
			creds:   creds,
			baseURL: baseURL,
			http:    httpClient,
		},
	}
}

// Formato de erro da API do Bling
type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
		Fields  []struct {
			Campo    string `json:"campo"`
			Mensagem string `json:"mensagem"`
		} `json:"fields"`
	} `json:"error"`
}

// CreateOrder: cria o pedido de venda no Bling. Conflito "já existe" é
// tratado como sucesso: o pedido existente é localizado pela referência e
// devolvido, nunca duplicado.
func (c *Client) CreateOrder(ctx context.Context, ord Order) (CreatedOrder, error) {
	if ord.NatureOfOperation == "" {
		return CreatedOrder{}, ErrMissingFiscalClassification
	}

	type itemPayload struct {
		Codigo     string          `json:"codigo"`
		Descricao  string          `json:"descricao"`
		Quantidade int             `json:"quantidade"`
		Valor      decimal.Decimal `json:"valor"`
	}

	items := make([]itemPayload, 0, len(ord.Items))
	for _, it := range ord.Items {
		items = append(items, itemPayload{
			Codigo:     it.SKU,
			Descricao:  it.Description,
			Quantidade: it.Quantity,
			Valor:      it.UnitPrice,
		})
	}

	payload := map[string]any{
		"numeroLoja": ord.Reference,
		"contato": map[string]any{
			"nome":            ord.ClientName,
			"numeroDocumento": ord.ClientDocument,
			"endereco":        ord.Address,
			"municipio":       ord.City,
			"uf":              ord.State,
			"cep":             ord.ZipCode,
		},
		"itens":             items,
		"naturezaOperacao":  ord.NatureOfOperation,
		"prazosFaturamento": ord.InstallmentDays,
		"total":             ord.Total,
	}

	var created CreatedOrder
	err := c.tokens.withValidToken(ctx, func(token string) error {
		body, status, err := c.doJSON(ctx, token, http.MethodPost, "/pedidos/vendas", payload)
		if err != nil {
			return err
		}

		switch {
		case status == http.StatusCreated || status == http.StatusOK:
			var out struct {
				Data struct {
					ID     json.Number `json:"id"`
					Numero json.Number `json:"numero"`
				} `json:"data"`
			}
			if err := json.Unmarshal(body, &out); err != nil {
				return fmt.Errorf("%w: resposta ilegível do Bling: %v", ErrGatewayUnreachable, err)
			}
			created = CreatedOrder{ID: out.Data.ID.String(), Number: out.Data.Numero.String()}
			return nil

		case status == http.StatusConflict:
			// Pedido já existe — resolve pelo número de referência
			existing, err := c.findOrderByReference(ctx, token, ord.Reference)
			if err != nil {
				return err
			}
			created = existing
			return nil

		case status >= 400 && status < 500:
			return classifyAPIError(status, body)

		default:
			return fmt.Errorf("%w: HTTP %d", ErrGatewayUnreachable, status)
		}
	})
	return created, err
}

// findOrderByReference: busca o pedido existente pelo numeroLoja. Usado
// na resolução de duplicidade — o contrato exato do gateway para quando
// a re-consulta é necessária ainda precisa ser confirmado em produção.
func (c *Client) findOrderByReference(ctx context.Context, token, reference string) (CreatedOrder, error) {
	path := "/pedidos/vendas?numeroLoja=" + url.QueryEscape(reference)
	body, status, err := c.doJSON(ctx, token, http.MethodGet, path, nil)
	if err != nil {
		return CreatedOrder{}, err
	}
	if status != http.StatusOK {
		return CreatedOrder{}, fmt.Errorf("%w: busca do pedido existente falhou (HTTP %d)", ErrGatewayUnreachable, status)
	}

	var out struct {
		Data []struct {
			ID     json.Number `json:"id"`
			Numero json.Number `json:"numero"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil || len(out.Data) == 0 {
		return CreatedOrder{}, fmt.Errorf("%w: pedido duplicado não localizado pela referência %s", ErrGatewayUnreachable, reference)
	}
	return CreatedOrder{ID: out.Data[0].ID.String(), Number: out.Data[0].Numero.String()}, nil
}

// RequestDocumentIssuance: solicita a emissão da NF-e para o pedido.
// A autorização é assíncrona — acompanhar com PollDocumentStatus.
func (c *Client) RequestDocumentIssuance(ctx context.Context, orderID string) (string, error) {
	var documentID string
	err := c.tokens.withValidToken(ctx, func(token string) error {
		path := "/pedidos/vendas/" + url.PathEscape(orderID) + "/gerar-nfe"
		body, status, err := c.doJSON(ctx, token, http.MethodPost, path, nil)
		if err != nil {
			return err
		}

		switch {
		case status == http.StatusCreated || status == http.StatusOK:
			var out struct {
				Data struct {
					ID json.Number `json:"id"`
				} `json:"data"`
			}
			if err := json.Unmarshal(body, &out); err != nil {
				return fmt.Errorf("%w: resposta ilegível do Bling: %v", ErrGatewayUnreachable, err)
			}
			documentID = out.Data.ID.String()
			return nil

		case status >= 400 && status < 500:
			return classifyAPIError(status, body)

		default:
			return fmt.Errorf("%w: HTTP %d", ErrGatewayUnreachable, status)
		}
	})
	return documentID, err
}

// PollDocumentStatus: consulta a situação da NF-e. Código 6 = autorizada;
// códigos de rejeição carregam o motivo; qualquer outro código é tratado
// como "pendente — tentar depois", nunca como erro.
func (c *Client) PollDocumentStatus(ctx context.Context, documentID string) (DocumentStatus, error) {
	var ds DocumentStatus
	err := c.tokens.withValidToken(ctx, func(token string) error {
		path := "/nfe/" + url.PathEscape(documentID)
		body, status, err := c.doJSON(ctx, token, http.MethodGet, path, nil)
		if err != nil {
			return err
		}

		if status >= 400 && status < 500 {
			return classifyAPIError(status, body)
		}
		if status != http.StatusOK {
			return fmt.Errorf("%w: HTTP %d", ErrGatewayUnreachable, status)
		}

		var out struct {
			Data struct {
				Situacao       int         `json:"situacao"`
				Numero         json.Number `json:"numero"`
				LinkPDF        string      `json:"linkPDF"`
				MotivoRejeicao string      `json:"motivoRejeicao"`
			} `json:"data"`
		}
		if err := json.Unmarshal(body, &out); err != nil {
			return fmt.Errorf("%w: resposta ilegível do Bling: %v", ErrGatewayUnreachable, err)
		}

		ds = DocumentStatus{Situation: out.Data.Situacao}
		switch out.Data.Situacao {
		case situationAuthorized:
			ds.State = IssuanceAuthorized
			ds.DocumentNumber = out.Data.Numero.String()
			ds.DocumentLink = out.Data.LinkPDF
		case situationRejected, situationDenied:
			ds.State = IssuanceRejected
			ds.RejectionReason = out.Data.MotivoRejeicao
		default:
			ds.State = IssuancePending
		}
		return nil
	})
	return ds, err
}

// doJSON: executa a chamada HTTP e devolve corpo + status. Erros de
// transporte já saem classificados (timeout vs indisponível).
func (c *Client) doJSON(ctx context.Context, token, method, path string, payload any) ([]byte, int, error) {
	var reqBody io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("serialização do payload: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrGatewayUnreachable, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, classifyTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, classifyTransportError(err)
	}
	return body, resp.StatusCode, nil
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrGatewayTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrGatewayTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrGatewayUnreachable, err)
}

// classifyAPIError: transforma um 4xx do Bling em erro tipado, separando
// o caso de estoque insuficiente do restante da validação fiscal.
func classifyAPIError(status int, body []byte) error {
	var ae apiError
	msgs := []FieldMessage{}
	if err := json.Unmarshal(body, &ae); err == nil {
		if ae.Error.Message != "" {
			msgs = append(msgs, FieldMessage{Message: ae.Error.Message})
		}
		for _, f := range ae.Error.Fields {
			msgs = append(msgs, FieldMessage{Field: f.Campo, Message: f.Mensagem})
		}
	}

	fv := FiscalValidationError{StatusCode: status, Messages: msgs}
	if isInventoryMessage(msgs) {
		return &InventoryInsufficientError{FiscalValidationError: fv}
	}
	return &fv
}
