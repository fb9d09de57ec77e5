package model

import "time"

// NotificationType tags the condition that produced a notification.
type NotificationType string

const (
	NotificationCollision  NotificationType = "collision"
	NotificationAirspace   NotificationType = "airspace"
	NotificationHandoff    NotificationType = "handoff"
	NotificationAssistance NotificationType = "assistance"
	NotificationSystem     NotificationType = "system"
)

// Priority orders notifications for display.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// NotificationStatus is the lifecycle state; resolved is terminal.
type NotificationStatus string

const (
	NotificationPending  NotificationStatus = "pending"
	NotificationResolved NotificationStatus = "resolved"
)

// Notification records a surveillance event that requires controller
// attention. AircraftIDs are weak references; the aircraft may be deleted
// while the notification is still pending.
type Notification struct {
	ID       int                `json:"id"`
	Type     NotificationType   `json:"type"`
	Priority Priority           `json:"priority"`
	Status   NotificationStatus `json:"status"`

	Title   string `json:"title"`
	Message string `json:"message"`

	AircraftIDs []int `json:"aircraftIds"`
	SectorID    int   `json:"sectorId,omitempty"`

	CreatedAt  time.Time  `json:"createdAt"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"` // set iff Status is resolved
}
