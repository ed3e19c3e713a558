package models

// NotificationTarget a resolved recipient. Deduplicated by ToAddress only.
type NotificationTarget struct {
	Name             string           `json:"name"`
	ToAddress        string           `json:"to_address"`
	NotificationType NotificationType `json:"notification_type"`
}

// SqlRecipientList recipient list produced by a query (sql_recipient_list table).
// Rows must carry name, to_address and notification_type.
type SqlRecipientList struct {
	ID    string
	Name  string
	Query string
}
