package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Vendor: vendedor/representante comercial
type Vendor struct {
	ID    uint   `gorm:"primaryKey"`
	Name  string `gorm:"size:150;not null"`
	TaxID string `gorm:"size:20;uniqueIndex;not null"` // CPF ou CNPJ
	Email string `gorm:"size:100"`
	Phone string `gorm:"size:20"`

	// Taxa de comissão sobre vendas aprovadas (percentual)
	CommissionRate decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0"`

	IsActive  bool `gorm:"default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
