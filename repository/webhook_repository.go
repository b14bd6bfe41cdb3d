package repository

import (
	"fmt"

	"github.com/M-Abd-ElBaset/hls-audio-service/db"
	"github.com/M-Abd-ElBaset/hls-audio-service/model"

	"gorm.io/gorm"
)

// WebhookRepository records webhook delivery attempts. Backed by GORM,
// unlike the hand-written SQL repositories for the streaming tables.
type WebhookRepository interface {
	CreateDelivery(delivery *model.WebhookDelivery) error
	UpdateDelivery(delivery *model.WebhookDelivery) error
}

type gormWebhookRepository struct {
	DB *gorm.DB
}

// NewGormWebhookRepository creates a new instance of gormWebhookRepository.
func NewGormWebhookRepository() WebhookRepository {
	return &gormWebhookRepository{DB: db.GormDB}
}

func (r *gormWebhookRepository) CreateDelivery(delivery *model.WebhookDelivery) error {
	if err := r.DB.Create(delivery).Error; err != nil {
		return fmt.Errorf("failed to create webhook delivery record: %w", err)
	}
	return nil
}

func (r *gormWebhookRepository) UpdateDelivery(delivery *model.WebhookDelivery) error {
	if err := r.DB.Save(delivery).Error; err != nil {
		return fmt.Errorf("failed to update webhook delivery record: %w", err)
	}
	return nil
}
