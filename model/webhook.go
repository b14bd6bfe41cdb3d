package model

import "time"

// WebhookDelivery records one webhook delivery attempt series. Managed
// through GORM, separate from the hand-written SQL repositories.
type WebhookDelivery struct {
	ID          int64      `gorm:"primaryKey" json:"id"`
	Event       string     `gorm:"size:64;not null" json:"event"`
	Payload     string     `gorm:"type:longtext" json:"payload"`
	Signature   string     `gorm:"size:128" json:"signature"`
	StatusCode  int        `json:"statusCode"`
	RetryCount  int        `json:"retryCount"`
	LastError   string     `gorm:"type:text" json:"lastError,omitempty"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// TableName keeps the table name explicit.
func (WebhookDelivery) TableName() string {
	return "webhook_deliveries"
}
