package models

import "time"

type AuditAction string

const (
	AuditActionCreate  AuditAction = "create"
	AuditActionUpdate  AuditAction = "update"
	AuditActionApprove AuditAction = "approve"
	AuditActionReject  AuditAction = "reject"
	AuditActionPay     AuditAction = "pay"
)

// AuditLog: trilha de auditoria das ações administrativas (aprovação,
// rejeição, desconto, baixa de parcela, conciliação). Snapshots em JSON.
type AuditLog struct {
	ID          uint        `gorm:"primaryKey"`
	UserID      uint        `gorm:"index;not null"`
	UserName    string      `gorm:"size:100;not null"`
	EntityType  string      `gorm:"size:50;index;not null"`
	EntityID    uint        `gorm:"index;not null"`
	Action      AuditAction `gorm:"size:20;not null"`
	Description string      `gorm:"size:500"`
	BeforeData  string      `gorm:"type:jsonb;default:'null'"`
	AfterData   string      `gorm:"type:jsonb;default:'null'"`
	CreatedAt   time.Time   `gorm:"index"`
}
