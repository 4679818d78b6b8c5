package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Client: igreja/escola cliente do B2B
type Client struct {
	ID    uint   `gorm:"primaryKey"`
	Name  string `gorm:"size:150;not null"`
	CNPJ  string `gorm:"size:20;uniqueIndex;not null"`
	Email string `gorm:"size:100"`
	Phone string `gorm:"size:20"`

	// Endereço de cobrança (usado no pedido do Bling)
	Address string `gorm:"size:255"`
	City    string `gorm:"size:100"`
	State   string `gorm:"size:2"`
	ZipCode string `gorm:"size:10"`

	// Pode comprar faturado (boleto a prazo)?
	AllowsDeferred bool `gorm:"default:false"`

	// Desconto atribuído pelo vendedor (percentual)
	DiscountPct        decimal.Decimal `gorm:"type:decimal(5,2);default:0"`
	DiscountAssignedBy *uint           // usuário que atribuiu o desconto
	DiscountAssignedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
