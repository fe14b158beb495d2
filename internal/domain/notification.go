package domain

import "time"

// NotificationKind classifies a notification for the client.
type NotificationKind string

// List of notification kinds
const (
	NotificationDelivery NotificationKind = "delivery"
	NotificationStatus   NotificationKind = "status"
	NotificationGeneral  NotificationKind = "general"
)

// Notification is a single addressed notification. The dispatch core only
// creates these as transition side effects; the feed owns read accounting.
type Notification struct {
	ID          string
	RecipientID string
	Kind        NotificationKind
	Title       string
	Message     string
	Read        bool
	CreatedAt   time.Time
}
