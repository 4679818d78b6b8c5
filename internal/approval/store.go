package approval

import (
	"context"
	"fmt"
	"time"

	"ebd-backend/internal/models"

	"gorm.io/gorm"
)

// GormStore: implementação do Store sobre o Postgres. Todas as transições
// de status são updates condicionais ("set status=X where status=Y").
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) ClaimProposal(ctx context.Context, id uint) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Proposal{}).
		Where("id = ? AND status = ?", id, models.ProposalAwaitingApproval).
		Update("status", models.ProposalApproving)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 1 {
		return false, nil
	}

	// CAS não pegou nada: ou a proposta não existe, ou já saiu de
	// awaiting_approval. Qualquer proposta presa em approving é retomável —
	// inclusive quando a falha anterior aconteceu antes do pedido externo
	// ser gravado: recriar o pedido é seguro porque duplicidade é resolvida
	// pela referência (numeroLoja).
	var p models.Proposal
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return false, fmt.Errorf("proposta %d não encontrada: %w", id, err)
	}
	if p.Status == models.ProposalApproving {
		return true, nil
	}
	return false, ErrInvalidState
}

func (s *GormStore) ReleaseProposal(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Model(&models.Proposal{}).
		Where("id = ? AND status = ?", id, models.ProposalApproving).
		Update("status", models.ProposalAwaitingApproval).Error
}

func (s *GormStore) LoadProposal(ctx context.Context, id uint) (*models.Proposal, error) {
	var p models.Proposal
	err := s.db.WithContext(ctx).
		Preload("Client").
		Preload("Vendor").
		Preload("Items").
		First(&p, "id = ?", id).Error
	if err != nil {
		return nil, fmt.Errorf("proposta %d não encontrada: %w", id, err)
	}
	return &p, nil
}

func (s *GormStore) RecordOrder(ctx context.Context, id uint, orderID, orderNumber string) error {
	// bling_order_id é gravado no máximo uma vez — o WHERE garante que um
	// id já gravado nunca é sobrescrito nem limpo
	res := s.db.WithContext(ctx).Model(&models.Proposal{}).
		Where("id = ? AND bling_order_id IS NULL", id).
		Updates(map[string]interface{}{
			"bling_order_id":     orderID,
			"bling_order_number": orderNumber,
			"approval_step":      models.StepOrderCreated,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("proposta %d já tem pedido externo gravado", id)
	}
	return nil
}

func (s *GormStore) RecordDocument(ctx context.Context, id uint, documentID string) error {
	return s.db.WithContext(ctx).Model(&models.Proposal{}).
		Where("id = ? AND bling_document_id IS NULL", id).
		Updates(map[string]interface{}{
			"bling_document_id": documentID,
			"approval_step":     models.StepDocumentRequested,
		}).Error
}

func (s *GormStore) SaveInstallments(ctx context.Context, proposalID uint, installments []models.CommissionInstallment) (int, error) {
	created := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.CommissionInstallment{}).
			Where("proposal_id = ?", proposalID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			// retomada: parcelas já existem, não duplicar
			created = 0
			return nil
		}

		if err := tx.Create(&installments).Error; err != nil {
			return err
		}
		created = len(installments)

		return tx.Model(&models.Proposal{}).
			Where("id = ?", proposalID).
			Update("approval_step", models.StepInstallmentsCreated).Error
	})
	return created, err
}

func (s *GormStore) FinishApproval(ctx context.Context, id uint, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.Proposal{}).
		Where("id = ? AND status = ?", id, models.ProposalApproving).
		Updates(map[string]interface{}{
			"status":       models.ProposalApproved,
			"confirmed_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInvalidState
	}
	return nil
}

func (s *GormStore) RejectProposal(ctx context.Context, id uint, reason string) error {
	res := s.db.WithContext(ctx).Model(&models.Proposal{}).
		Where("id = ? AND status = ?", id, models.ProposalAwaitingApproval).
		Updates(map[string]interface{}{
			"status":        models.ProposalRejected,
			"reject_reason": reason,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInvalidState
	}
	return nil
}
