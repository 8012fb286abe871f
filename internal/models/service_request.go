package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/dispatch-api/pkg/geo"
)

// RequestStatus captures the lifecycle state of a service request.
type RequestStatus string

const (
	StatusPending    RequestStatus = "PENDING"
	StatusAccepted   RequestStatus = "ACCEPTED"
	StatusInProgress RequestStatus = "IN_PROGRESS"
	StatusCompleted  RequestStatus = "COMPLETED"
	StatusCancelled  RequestStatus = "CANCELLED"
)

// Valid reports whether s is a known status.
func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition may leave s.
func (s RequestStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// RequestPriority marks urgency.
type RequestPriority string

const (
	PriorityStandard  RequestPriority = "STANDARD"
	PriorityEmergency RequestPriority = "EMERGENCY"
)

// Valid reports whether p is a known priority.
func (p RequestPriority) Valid() bool {
	return p == PriorityStandard || p == PriorityEmergency
}

// DefaultEstimatedDurationMinutes applies when the customer gives no estimate.
const DefaultEstimatedDurationMinutes = 60

// MaxAdminNotesLength bounds admin_notes after cancellation notes are appended.
const MaxAdminNotesLength = 1000

// ServiceRequest is a customer's maintenance job.
type ServiceRequest struct {
	ID                       string          `db:"id" json:"id"`
	ReferenceCode            string          `db:"reference_code" json:"reference_code"`
	Title                    string          `db:"title" json:"title"`
	Description              string          `db:"description" json:"description"`
	CustomerID               string          `db:"customer_id" json:"customer_id"`
	WorkerID                 *string         `db:"worker_id" json:"worker_id,omitempty"`
	CategoryID               *string         `db:"category_id" json:"category_id,omitempty"`
	Status                   RequestStatus   `db:"status" json:"status"`
	Priority                 RequestPriority `db:"priority" json:"priority"`
	Latitude                 decimal.Decimal `db:"location_latitude" json:"location_latitude"`
	Longitude                decimal.Decimal `db:"location_longitude" json:"location_longitude"`
	Address                  string          `db:"address" json:"address"`
	Postcode                 string          `db:"postcode" json:"postcode"`
	ScheduledStart           *time.Time      `db:"scheduled_start" json:"scheduled_start,omitempty"`
	AcceptedAt               *time.Time      `db:"accepted_at" json:"accepted_at,omitempty"`
	CompletedAt              *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
	CancelledAt              *time.Time      `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CustomerNotes            string          `db:"customer_notes" json:"customer_notes"`
	AdminNotes               string          `db:"admin_notes" json:"admin_notes,omitempty"`
	EstimatedDurationMinutes int             `db:"estimated_duration_minutes" json:"estimated_duration_minutes"`
	CreatedAt                time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt                time.Time       `db:"updated_at" json:"updated_at"`
}

// Point returns the job location.
func (r *ServiceRequest) Point() geo.Point {
	lat, _ := r.Latitude.Float64()
	lon, _ := r.Longitude.Float64()
	return geo.Point{Lat: lat, Lon: lon}
}

// AssignedTo reports whether userID is the assigned worker.
func (r *ServiceRequest) AssignedTo(userID string) bool {
	return r.WorkerID != nil && userID != "" && *r.WorkerID == userID
}

// RequestOrder selects list ordering.
type RequestOrder int

const (
	OrderNewest RequestOrder = iota
	OrderOldest
	OrderRecentlyCompleted
)

// ServiceRequestFilter constrains listing queries.
type ServiceRequestFilter struct {
	CustomerID string
	WorkerID   string
	Statuses   []RequestStatus
	Priority   RequestPriority
	// CategoryID matches requests in exactly this category.
	CategoryID *string
	// WorkerScope, when set, restricts to uncategorised requests plus those in
	// WorkerScope.CategoryID (nil category means uncategorised only).
	WorkerScope *CategoryScope
	ExcludeIDs  []string
	Order       RequestOrder
	Limit       int
	Offset      int
}

// CategoryScope narrows requests to what a worker of a category may see.
type CategoryScope struct {
	CategoryID *string
}

// Transition names a lifecycle operation.
type Transition string

const (
	TransitionAccept   Transition = "accept"
	TransitionStart    Transition = "start"
	TransitionComplete Transition = "complete"
	TransitionCancel   Transition = "cancel"
)

var transitionSources = map[Transition][]RequestStatus{
	TransitionAccept:   {StatusPending},
	TransitionStart:    {StatusAccepted},
	TransitionComplete: {StatusAccepted, StatusInProgress},
	TransitionCancel:   {StatusPending, StatusAccepted, StatusInProgress},
}

var transitionTargets = map[Transition]RequestStatus{
	TransitionAccept:   StatusAccepted,
	TransitionStart:    StatusInProgress,
	TransitionComplete: StatusCompleted,
	TransitionCancel:   StatusCancelled,
}

// AllowedFrom reports whether t may be applied to a request in status s.
func (t Transition) AllowedFrom(s RequestStatus) bool {
	for _, src := range transitionSources[t] {
		if src == s {
			return true
		}
	}
	return false
}

// Target is the status a successful transition produces.
func (t Transition) Target() RequestStatus {
	return transitionTargets[t]
}

// JobMatch pairs a request with its distance from a worker.
type JobMatch struct {
	Request    ServiceRequest
	DistanceKm float64
}
