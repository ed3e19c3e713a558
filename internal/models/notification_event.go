package models

import (
	"time"

	"github.com/guregu/null/v5"
)

// NotificationType delivery channel as stored (EMAIL, TELEGRAM, UNKNOWN)
type NotificationType string

const (
	NotificationTypeEmail    NotificationType = "EMAIL"
	NotificationTypeTelegram NotificationType = "TELEGRAM"
	NotificationTypeUnknown  NotificationType = "UNKNOWN"
)

// ParseNotificationType maps free text to a channel, anything unrecognised is UNKNOWN
func ParseNotificationType(s string) NotificationType {
	switch NotificationType(s) {
	case NotificationTypeEmail, "Email", "email":
		return NotificationTypeEmail
	case NotificationTypeTelegram, "Telegram", "telegram", "CHAT", "Chat", "chat":
		return NotificationTypeTelegram
	default:
		return NotificationTypeUnknown
	}
}

// EventStatus status of a written notification event
type EventStatus string

const (
	EventQueued EventStatus = "Queued"
	EventFailed EventStatus = "Failed"
)

// NotificationEvent notification event (notification_event table)
type NotificationEvent struct {
	ID                   string           `json:"id"`
	ToAddress            string           `json:"to_address"`
	NotificationType     NotificationType `json:"notification_type"`
	Title                null.String      `json:"title"`
	Message              string           `json:"message"`
	Context              null.String      `json:"context"`
	Status               EventStatus      `json:"status"`
	ErrorMessage         null.String      `json:"error_message"`
	SendAttempts         int              `json:"send_attempts"`
	RetryAt              null.Time        `json:"retry_at"`
	SentAt               null.Time        `json:"sent_at"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
	NotificationConfigID null.String      `json:"notification_config_id"`
}

// NamedQuery notification query (notification_query table)
type NamedQuery struct {
	ID            string
	ReferenceName string
	Query         string
}
