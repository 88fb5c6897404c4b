package entities

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType labels user notifications
type NotificationType string

const (
	NotificationDepositPending   NotificationType = "deposit_pending"
	NotificationDepositConfirmed NotificationType = "deposit_confirmed"
	NotificationSweepCompleted   NotificationType = "sweep_completed"
)

// Notification is delivered to the notification sink
type Notification struct {
	UserID    uuid.UUID              `json:"userId"`
	Type      NotificationType       `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}
