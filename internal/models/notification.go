package models

import (
	"time"
)

// NotificationCategory groups notifications for display.
type NotificationCategory string

const (
	NotificationCategoryRequest  NotificationCategory = "REQUEST"
	NotificationCategorySystem   NotificationCategory = "SYSTEM"
	NotificationCategoryWorkflow NotificationCategory = "WORKFLOW"
)

// NotificationEvent is the lifecycle event a notification reports.
type NotificationEvent string

const (
	EventRequestCreated   NotificationEvent = "REQUEST_CREATED"
	EventRequestAccepted  NotificationEvent = "REQUEST_ACCEPTED"
	EventRequestCompleted NotificationEvent = "REQUEST_COMPLETED"
	EventRequestCancelled NotificationEvent = "REQUEST_CANCELLED"
	EventGeneric          NotificationEvent = "GENERIC"
)

// Notification is a persisted inbox entry. (recipient_id, event, reference_request_id) is unique.
type Notification struct {
	ID                 string               `db:"id" json:"id"`
	RecipientID        string               `db:"recipient_id" json:"recipient_id"`
	Category           NotificationCategory `db:"category" json:"category"`
	Event              NotificationEvent    `db:"event" json:"event"`
	Title              string               `db:"title" json:"title"`
	Body               string               `db:"body" json:"body"`
	Data               JSONMap              `db:"data" json:"data"`
	ReferenceRequestID *string              `db:"reference_request_id" json:"reference_request_id,omitempty"`
	IsRead             bool                 `db:"is_read" json:"is_read"`
	ReadAt             *time.Time           `db:"read_at" json:"read_at,omitempty"`
	CreatedAt          time.Time            `db:"created_at" json:"created_at"`
}

// ConflictPolicy decides what happens when an intent hits an existing (recipient, event, request) row.
type ConflictPolicy int

const (
	// ConflictSkip keeps the existing row untouched.
	ConflictSkip ConflictPolicy = iota
	// ConflictUpdate overwrites content and marks the row unread again.
	ConflictUpdate
)

// NotificationIntent is a notification to be written together with the transition that produced it.
type NotificationIntent struct {
	RecipientID        string
	Event              NotificationEvent
	Category           NotificationCategory
	Title              string
	Body               string
	Data               JSONMap
	ReferenceRequestID *string
	OnConflict         ConflictPolicy
}

// DedupKey is the uniqueness key shared with the notifications table.
func (i NotificationIntent) DedupKey() string {
	ref := ""
	if i.ReferenceRequestID != nil {
		ref = *i.ReferenceRequestID
	}
	return i.RecipientID + "|" + string(i.Event) + "|" + ref
}

// NotificationFilter constrains inbox listing.
type NotificationFilter struct {
	RecipientID string
	IsRead      *bool
	Limit       int
	Offset      int
}
