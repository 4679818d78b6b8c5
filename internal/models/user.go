package models

import "time"

type UserRole string

const (
	RoleAdmin      UserRole = "admin"
	RoleFinanceiro UserRole = "financeiro"
	RoleVendedor   UserRole = "vendedor"
)

type User struct {
	ID           uint     `gorm:"primaryKey"`
	VendorID     *uint    // preenchido quando o usuário é um vendedor
	Vendor       *Vendor
	Name         string   `gorm:"size:100;not null"`
	Email        string   `gorm:"size:100;uniqueIndex;not null"`
	PasswordHash string   `gorm:"size:255;not null"`
	Role         UserRole `gorm:"size:20;not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
